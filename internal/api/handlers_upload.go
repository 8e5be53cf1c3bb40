// handlers_upload.go - Chunked upload handlers
package api

import (
	"bytes"
	"encoding/base64"
	"net/http"

	"github.com/doctools/backend/internal/storage"
	"github.com/doctools/backend/internal/upload"
	"github.com/labstack/echo/v4"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	store         storage.Store
	sessions      SessionManager
	uploadManager *upload.Manager
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(store storage.Store, sessions SessionManager, uploadMgr *upload.Manager) UploadHandler {
	return &UploadHandlerImpl{
		store:         store,
		sessions:      sessions,
		uploadManager: uploadMgr,
	}
}

// HandleUploadChunk accepts a single chunk of a chunked upload
func (h *UploadHandlerImpl) HandleUploadChunk(c echo.Context) error {
	id := c.Param("id")
	if _, ok := h.sessions.GetSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	var req uploadChunkRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	// Decode base64 chunk data
	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	if err := h.store.SaveChunk(id, req.UploadID, req.ChunkIndex, bytes.NewReader(decoded)); err != nil {
		return NewInternalError("failed to save chunk", err)
	}
	h.sessions.TouchSession(id)

	return c.NoContent(http.StatusAccepted)
}

// HandleCompleteUpload completes a chunked upload and starts async staging
func (h *UploadHandlerImpl) HandleCompleteUpload(c echo.Context) error {
	id := c.Param("id")
	if _, ok := h.sessions.GetSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	var req completeUploadRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	job := h.uploadManager.StartJob(upload.Request{
		SessionID:      id,
		UploadID:       req.UploadID,
		FileName:       req.Name,
		MimeType:       req.MimeType,
		TotalChunks:    req.TotalChunks,
		OriginalSize:   req.OriginalSize,
		CompressedSize: req.CompressedSize,
		Encoding:       req.Encoding,
	})

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// HandleGetUploadJob returns the status of an upload job
func (h *UploadHandlerImpl) HandleGetUploadJob(c echo.Context) error {
	id := c.Param("jobId")
	job, ok := h.uploadManager.GetJob(id)
	if !ok {
		return NewNotFoundError("upload job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// Request/Response types

type uploadChunkRequest struct {
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       string `json:"data"` // Base64-encoded chunk
}

func (r *uploadChunkRequest) validate() error {
	if !storage.ValidUploadID(r.UploadID) {
		return NewValidationError("uploadId")
	}
	if r.ChunkIndex < 0 {
		return NewValidationError("chunkIndex")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type completeUploadRequest struct {
	UploadID       string `json:"uploadId"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	TotalChunks    int    `json:"totalChunks"`
	OriginalSize   int64  `json:"originalSize"`
	CompressedSize int64  `json:"compressedSize"`
	Encoding       string `json:"encoding"`
}

func (r *completeUploadRequest) validate() error {
	if !storage.ValidUploadID(r.UploadID) {
		return NewValidationError("uploadId")
	}
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.TotalChunks <= 0 {
		return NewBadRequestError("totalChunks must be positive", nil)
	}
	if upload.IsGzip(r.Encoding) && r.OriginalSize <= 0 {
		return NewValidationError("originalSize")
	}
	return nil
}
