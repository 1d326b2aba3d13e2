package models

import "time"

// EventSeverity classifies audit events.
type EventSeverity string

const (
	EventSeverityInfo    EventSeverity = "info"
	EventSeverityWarning EventSeverity = "warning"
	EventSeverityError   EventSeverity = "error"
)

// Event is an immutable audit record.
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Severity  EventSeverity `json:"severity"`
	Message   string        `json:"message"`

	// ClientID links the event to a client, when applicable.
	ClientID string `json:"client_id,omitempty"`
}
