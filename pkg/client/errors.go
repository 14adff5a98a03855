package client

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobNotCompleted = errors.New("job has not completed")
	ErrJobFailed       = errors.New("job failed")
	ErrMaxRetries      = errors.New("max retries reached")
)

// APIError is returned for any response the worker answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
	// JobID is the id of a job the server recorded before rejecting the request.
	JobID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("error: received status code %d: %s", e.StatusCode, e.Message)
}
