package jobs

import "sync/atomic"

// PauseController is polled by the orchestrator once per loop iteration,
// between pages. A page fetch already in flight always completes first.
type PauseController interface {
	IsPaused() bool
	// IsCancelled reports that the run should stop at the next page boundary.
	IsCancelled() bool
}

type neverPaused struct{}

func (neverPaused) IsPaused() bool    { return false }
func (neverPaused) IsCancelled() bool { return false }

// NeverPaused is the controller for background runs, which cannot be
// suspended or cancelled once dispatched.
var NeverPaused PauseController = neverPaused{}

// RunControl is the per-run pause/resume/cancel switch owned by an attended
// session. It is passed explicitly to the run it controls.
type RunControl struct {
	paused    atomic.Bool
	cancelled atomic.Bool
}

func NewRunControl() *RunControl {
	return &RunControl{}
}

// Pause returns true if the run was not already paused.
func (c *RunControl) Pause() bool {
	return c.paused.CompareAndSwap(false, true)
}

// Resume returns true if the run was paused.
func (c *RunControl) Resume() bool {
	return c.paused.CompareAndSwap(true, false)
}

func (c *RunControl) Cancel() {
	c.cancelled.Store(true)
}

func (c *RunControl) IsPaused() bool {
	return c.paused.Load()
}

func (c *RunControl) IsCancelled() bool {
	return c.cancelled.Load()
}
