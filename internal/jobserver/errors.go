package jobserver

import "errors"

var (
	// ErrQueueClosed is returned when attempting to use a closed queue
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueFull is returned when attempting to enqueue to a full queue
	ErrQueueFull = errors.New("queue is full")

	// ErrJobNotFound is returned when a job is not found
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a job status change would leave a terminal state or skip one
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrJobNotCompleted is returned when asking for the result of a job that has not completed
	ErrJobNotCompleted = errors.New("job has not completed")

	// ErrArtifactNotFound is returned when an artifact reference does not resolve
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrEmptyTarget is returned when a job is submitted without a target handle
	ErrEmptyTarget = errors.New("target must not be empty")

	// ErrUnknownBackend is returned for an unrecognised JOB_STORE or ARTIFACT_STORE value
	ErrUnknownBackend = errors.New("unknown storage backend")
)
