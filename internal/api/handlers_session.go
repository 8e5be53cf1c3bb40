// handlers_session.go - Tool session handlers
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/doctools/backend/internal/models"
	"github.com/doctools/backend/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	progressPollInterval  = 100 * time.Millisecond
	progressStreamTimeout = 5 * time.Minute
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	store    storage.Store
	sessions SessionManager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(store storage.Store, sessions SessionManager) SessionHandler {
	return &SessionHandlerImpl{
		store:    store,
		sessions: sessions,
	}
}

// HandleOpenSession selects a tool and opens an idle session for it
func (h *SessionHandlerImpl) HandleOpenSession(c echo.Context) error {
	var req openSessionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.ToolID == "" {
		return NewValidationError("toolId")
	}

	sess, err := h.sessions.OpenSession(req.ToolID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sess)
}

// HandleGetSession returns the current session snapshot
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	id := c.Param("id")
	sess, ok := h.sessions.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	h.sessions.TouchSession(id)
	return c.JSON(http.StatusOK, sess)
}

// HandleCloseSession discards a session, stopping any run in progress
func (h *SessionHandlerImpl) HandleCloseSession(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.CloseSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleStageFiles saves multipart "files" to the content store and stages them
func (h *SessionHandlerImpl) HandleStageFiles(c echo.Context) error {
	id := c.Param("id")
	if _, ok := h.sessions.GetSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("expected multipart form", err)
	}
	headers := form.File["files"]

	candidates := make([]models.RawFile, 0, len(headers))
	for _, fh := range headers {
		src, err := fh.Open()
		if err != nil {
			h.discard(candidates)
			return NewInternalError("failed to open uploaded file", err)
		}
		info, err := h.store.Save(fh.Filename, src)
		src.Close()
		if err != nil {
			h.discard(candidates)
			return NewInternalError("failed to save file", err)
		}

		mimeType := fh.Header.Get("Content-Type")
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = info.MimeType
		}
		candidates = append(candidates, models.RawFile{
			Name:     fh.Filename,
			Size:     info.Size,
			MimeType: mimeType,
			Handle:   info.ID,
		})
	}

	// An empty selection still reaches the session so the client sees the same
	// outcome shape; nothing is staged.
	outcome, err := h.sessions.StageFiles(id, candidates)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, outcome)
}

func (h *SessionHandlerImpl) discard(files []models.RawFile) {
	for _, f := range files {
		h.store.Delete(f.Handle)
	}
}

// HandleRemoveFile removes one staged file
func (h *SessionHandlerImpl) HandleRemoveFile(c echo.Context) error {
	removed, err := h.sessions.RemoveFile(c.Param("id"), c.Param("fileId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"removed": removed})
}

// HandleReorderFiles applies a new staged-file order
func (h *SessionHandlerImpl) HandleReorderFiles(c echo.Context) error {
	var req reorderRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.FileIDs == nil {
		return NewValidationError("fileIds")
	}

	sess, err := h.sessions.ReorderFiles(c.Param("id"), req.FileIDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

// HandleStartProcessing begins a processing run
func (h *SessionHandlerImpl) HandleStartProcessing(c echo.Context) error {
	sess, err := h.sessions.StartProcessing(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, sess)
}

// HandleResetSession returns the session to idle with nothing staged
func (h *SessionHandlerImpl) HandleResetSession(c echo.Context) error {
	sess, err := h.sessions.ResetSession(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

// HandleProgressStream streams session snapshots via SSE until the run ends
func (h *SessionHandlerImpl) HandleProgressStream(c echo.Context) error {
	id := c.Param("id")

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	sess, ok := h.sessions.GetSession(id)
	if !ok {
		sendSSEError(c, "session not found")
		return nil
	}
	sendSSEData(c, sess)
	if sess.Status.Terminal() || sess.Status == models.SessionStatusIdle {
		return nil
	}

	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

	timeout := time.NewTimer(progressStreamTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil

		case <-ticker.C:
			sess, ok := h.sessions.GetSession(id)
			if !ok {
				sendSSEError(c, "session not found")
				return nil
			}
			h.sessions.TouchSession(id)
			sendSSEData(c, sess)

			// Stop streaming once the run has ended or was reset
			if sess.Status != models.SessionStatusProcessing {
				return nil
			}

		case <-timeout.C:
			sendSSEError(c, "stream timeout")
			return nil
		}
	}
}

// HandleSnapshotMsgpack returns the session snapshot msgpack-encoded
func (h *SessionHandlerImpl) HandleSnapshotMsgpack(c echo.Context) error {
	id := c.Param("id")
	sess, ok := h.sessions.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	data, err := encodeMsgpack(sess)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// encodeMsgpack encodes v using its json tags so both encodings share field names.
func encodeMsgpack(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HandleSaveOutput hands a completed output to the export sink
func (h *SessionHandlerImpl) HandleSaveOutput(c echo.Context) error {
	receipt, err := h.sessions.SaveOutput(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, receipt)
}

// Request/Response types

type openSessionRequest struct {
	ToolID string `json:"toolId"`
}

type reorderRequest struct {
	FileIDs []string `json:"fileIds"`
}

func sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func sendSSEError(c echo.Context, message string) {
	sendSSEData(c, map[string]string{"error": message})
}
