package timeline

import "github.com/masa-finance/timeline-worker/api/types"

// StopReason explains why the acquisition loop ended.
type StopReason string

const (
	NotStopped     StopReason = ""
	StopExhausted  StopReason = "cursor_exhausted"
	StopMaxRecords StopReason = "max_records"
	StopMaxPages   StopReason = "max_pages"
	StopSameCursor StopReason = "same_cursor"
	StopCancelled  StopReason = "cancelled"
)

// Limits are the run ceilings. Zero disables a limit.
type Limits struct {
	MaxRecords    int
	MaxPages      int
	MaxSameCursor int
}

// ReachedRecordLimit is the only stop condition that can be checked before a fetch.
func ReachedRecordLimit(stats types.Stats, maxRecords int) bool {
	return maxRecords > 0 && stats.TotalAccepted >= maxRecords
}

// ShouldStop evaluates every stop condition independently after a page.
func ShouldStop(state CursorState, stats types.Stats, limits Limits) (StopReason, bool) {
	switch {
	case state.Exhausted():
		return StopExhausted, true
	case ReachedRecordLimit(stats, limits.MaxRecords):
		return StopMaxRecords, true
	case limits.MaxPages > 0 && stats.PagesFetched >= limits.MaxPages:
		return StopMaxPages, true
	case limits.MaxSameCursor > 0 && state.SameCursorStreak >= limits.MaxSameCursor:
		return StopSameCursor, true
	}
	return NotStopped, false
}
