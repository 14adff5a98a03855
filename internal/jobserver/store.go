package jobserver

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/masa-finance/timeline-worker/api/types"
)

// JobStore holds the durable state of background jobs. Writes are keyed by
// job id, so concurrent runs never contend on the same record.
type JobStore interface {
	// Create registers a new pending job and returns its id.
	Create(ctx context.Context, target string, filter types.FilterConfig) (string, error)
	MarkRunning(ctx context.Context, id string) error
	// UpdateStats overwrites the stats of a running job. Last write wins.
	UpdateStats(ctx context.Context, id string, stats types.Stats) error
	MarkCompleted(ctx context.Context, id string, stats types.Stats, artifactRef string) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
	Get(ctx context.Context, id string) (types.Job, error)
}

// allowedFrom lists, for each target status, the statuses a job may be in
// before moving to it. Terminal statuses never appear as a source.
var allowedFrom = map[types.JobStatus][]types.JobStatus{
	types.JobRunning:   {types.JobPending},
	types.JobCompleted: {types.JobRunning},
	// A job may fail before it starts, when it is rejected at dispatch.
	types.JobFailed: {types.JobPending, types.JobRunning},
}

func checkTransition(id string, from, to types.JobStatus) error {
	for _, s := range allowedFrom[to] {
		if s == from {
			return nil
		}
	}
	return fmt.Errorf("%w: job %s cannot go from %s to %s", ErrInvalidTransition, id, from, to)
}

func errNotRunning(id string, status types.JobStatus) error {
	return fmt.Errorf("%w: job %s is %s, stats can only change while running", ErrInvalidTransition, id, status)
}

func newJob(target string, filter types.FilterConfig) types.Job {
	return types.Job{
		ID:        uuid.New().String(),
		Target:    target,
		Filter:    filter,
		Status:    types.JobPending,
		CreatedAt: time.Now().UTC(),
	}
}

func now() *time.Time {
	t := time.Now().UTC()
	return &t
}
