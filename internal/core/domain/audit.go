package domain

import "time"

// AuditEvent records the outcome of a confirmation-gated action.
type AuditEvent struct {
	ID        string     `json:"id"`
	ActorID   string     `json:"actor_id"`
	Action    ActionKind `json:"action"`
	Target    string     `json:"target,omitempty"`
	GroupID   string     `json:"group_id,omitempty"`
	ServerID  string     `json:"server_id,omitempty"`
	Success   bool       `json:"success"`
	Detail    string     `json:"detail,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
