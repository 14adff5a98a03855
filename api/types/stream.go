package types

// EventType names the messages pushed on the realtime channel.
type EventType string

const (
	EventStarted  EventType = "started"
	EventProgress EventType = "progress"
	EventPaused   EventType = "paused"
	EventResumed  EventType = "resumed"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

type StreamEvent struct {
	Type        EventType `json:"type"`
	SessionID   string    `json:"session_id,omitempty"`
	Record      *Record   `json:"record,omitempty"`
	Stats       *Stats    `json:"stats,omitempty"`
	ArtifactRef string    `json:"artifact_ref,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// CommandType names the messages a realtime client may send.
type CommandType string

const (
	CommandStart  CommandType = "start"
	CommandPause  CommandType = "pause"
	CommandResume CommandType = "resume"
	CommandCancel CommandType = "cancel"
)

// StreamCommand is sent by the client. Only the first message, which must be a
// start command, carries the target and filter.
type StreamCommand struct {
	Action     CommandType   `json:"action"`
	Target     string        `json:"target,omitempty"`
	Filter     *FilterConfig `json:"filter,omitempty"`
	Credential string        `json:"credential,omitempty"`
}
