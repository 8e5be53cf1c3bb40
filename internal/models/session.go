package models

import "time"

// SessionStatus represents the processing status of a tool session.
type SessionStatus string

const (
	SessionStatusIdle       SessionStatus = "idle"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusComplete   SessionStatus = "complete"
	SessionStatusError      SessionStatus = "error"
)

// Terminal reports whether no further progress updates will arrive.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusComplete || s == SessionStatusError
}

// ToolSession is a point-in-time view of one tool selection, from pick to reset.
type ToolSession struct {
	ID           string        `json:"id"`
	Tool         Tool          `json:"tool"`
	Files        []StagedFile  `json:"files"`
	FileCount    int           `json:"fileCount"`
	TotalBytes   int64         `json:"totalBytes"`
	Status       SessionStatus `json:"status"`
	Progress     float64       `json:"progress"` // 0-100
	Error        string        `json:"error,omitempty"`
	Output       *Output       `json:"output,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastAccessed time.Time     `json:"lastAccessed"`
}

// Output describes the result of a finished processing run.
type Output struct {
	ToolID      string    `json:"toolId"`
	Format      string    `json:"format"`
	FileName    string    `json:"fileName"`
	FileCount   int       `json:"fileCount"`
	CompletedAt time.Time `json:"completedAt"`
}

// SaveReceipt acknowledges a "save output" request.
type SaveReceipt struct {
	SessionID string    `json:"sessionId"`
	FileName  string    `json:"fileName"`
	Location  string    `json:"location,omitempty"`
	SavedAt   time.Time `json:"savedAt"`
}
