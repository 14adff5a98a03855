package client

import (
	"context"
	"fmt"
	"time"

	"github.com/masa-finance/timeline-worker/api/types"
)

type JobResult struct {
	UUID       string
	maxRetries int
	delay      time.Duration
	client     *Client
}

func (jr *JobResult) SetMaxRetries(maxRetries int) {
	jr.maxRetries = maxRetries
}

func (jr *JobResult) SetDelay(delay time.Duration) {
	jr.delay = delay
}

// Wait polls the job status until the job reaches a terminal state, the
// retries are used up, or ctx is done.
func (jr *JobResult) Wait(ctx context.Context) (types.Job, error) {
	var (
		job types.Job
		err error
	)
	for retries := 0; retries < jr.maxRetries; retries++ {
		job, err = jr.client.GetStatus(ctx, jr.UUID)
		if err == nil && job.Status.IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(jr.delay):
		}
	}
	if err != nil {
		return job, fmt.Errorf("%w: %w", ErrMaxRetries, err)
	}
	return job, fmt.Errorf("%w: job %s is still %s", ErrMaxRetries, jr.UUID, job.Status)
}

// Get waits for the job and returns its records. A failed job yields
// ErrJobFailed with the server's error message.
func (jr *JobResult) Get(ctx context.Context) (types.Artifact, error) {
	job, err := jr.Wait(ctx)
	if err != nil {
		return types.Artifact{}, err
	}
	if job.Status == types.JobFailed {
		return types.Artifact{}, fmt.Errorf("%w: %s", ErrJobFailed, job.ErrorMessage)
	}
	return jr.client.GetArtifact(ctx, jr.UUID)
}
