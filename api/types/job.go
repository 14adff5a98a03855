package types

import "time"

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobRequest is the body of POST /job/add.
type JobRequest struct {
	Target     string       `json:"target"`
	Filter     FilterConfig `json:"filter"`
	Credential string       `json:"credential,omitempty"`
}

type JobResponse struct {
	UID string `json:"uid"`
}

type JobError struct {
	Error string `json:"error"`
	// UID is set when the job was recorded before the request failed.
	UID string `json:"uid,omitempty"`
}

// Stats is a snapshot of one acquisition run's counters.
type Stats struct {
	TotalAccepted   int `json:"total_accepted" bson:"total_accepted"`
	TotalSuppressed int `json:"total_suppressed" bson:"total_suppressed"`
	Duplicates      int `json:"duplicates" bson:"duplicates"`
	Filtered        int `json:"filtered" bson:"filtered"`
	PagesFetched    int `json:"pages_fetched" bson:"pages_fetched"`
}

// Job is the durable, queryable state of a background run.
type Job struct {
	ID           string       `json:"id" bson:"_id"`
	Target       string       `json:"target" bson:"target"`
	Filter       FilterConfig `json:"filter" bson:"filter"`
	Status       JobStatus    `json:"status" bson:"status"`
	Stats        Stats        `json:"stats" bson:"stats"`
	ErrorMessage string       `json:"error_message,omitempty" bson:"error_message,omitempty"`
	ArtifactRef  string       `json:"artifact_ref,omitempty" bson:"artifact_ref,omitempty"`
	CreatedAt    time.Time    `json:"created_at" bson:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// Artifact is the payload handed to the storage collaborator once a run completes.
type Artifact struct {
	Target    string    `json:"target" bson:"target"`
	Records   []Record  `json:"records" bson:"records"`
	Stats     Stats     `json:"stats" bson:"stats"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
