package models

import "time"

// SessionStatus represents the runtime state of a session
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusErrored   SessionStatus = "errored"
)

// IsTerminal reports whether the session reached an end state
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusErrored
}

// Session is the runtime state of one (contact, flow) dialogue.
// (contact_id, flow_id) is unique in the store.
type Session struct {
	ID            string                 `json:"id"`
	ContactID     string                 `json:"contactId"`
	FlowID        string                 `json:"flowId"`
	Status        SessionStatus          `json:"status"`
	CurrentNodeID *string                `json:"currentNodeId,omitempty"`
	Context       map[string]interface{} `json:"context"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// SessionLog is an append-only snapshot of a session after inbound processing
type SessionLog struct {
	ID        int64                  `json:"id"`
	SessionID string                 `json:"sessionId"`
	Status    SessionStatus          `json:"status"`
	Context   map[string]interface{} `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
}
