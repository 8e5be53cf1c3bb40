package models

import "time"

// Severity classifies a notification for the client.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a human-readable status event. The core produces it; clients render it.
type Notification struct {
	SessionID string    `json:"sessionId"`
	Title     string    `json:"title"`
	Detail    string    `json:"detail"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"createdAt"`
}
