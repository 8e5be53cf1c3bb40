package models

import "time"

// RawFile is a file offered by the client before it is validated against a tool.
// Handle is an opaque content-store reference; the core never reads the content.
type RawFile struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Handle   string `json:"-"`
}

// FileKind is a coarse document family derived from the MIME type, used for display.
type FileKind string

const (
	KindPDF        FileKind = "pdf"
	KindWord       FileKind = "word"
	KindExcel      FileKind = "excel"
	KindPowerPoint FileKind = "powerpoint"
	KindImage      FileKind = "image"
	KindOther      FileKind = "other"
)

// StagedFile is a file accepted into a session and waiting to be processed.
type StagedFile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	DisplaySize string    `json:"displaySize"`
	MimeType    string    `json:"mimeType"`
	Kind        FileKind  `json:"kind"`
	Handle      string    `json:"-"`
	AddedAt     time.Time `json:"addedAt"`
}
