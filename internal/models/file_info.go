package models

import "time"

// FileInfo represents metadata about content held by the content store.
type FileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
	Status     string    `json:"status"` // "uploaded"
}
