// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/doctools/backend/internal/models"
	"github.com/doctools/backend/internal/session"
	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// CatalogHandler serves the read-only tool catalog
type CatalogHandler interface {
	HandleListTools(c echo.Context) error
	HandleGetTool(c echo.Context) error
}

// SessionHandler handles tool session operations
type SessionHandler interface {
	HandleOpenSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleCloseSession(c echo.Context) error
	HandleStageFiles(c echo.Context) error
	HandleRemoveFile(c echo.Context) error
	HandleReorderFiles(c echo.Context) error
	HandleStartProcessing(c echo.Context) error
	HandleResetSession(c echo.Context) error
	HandleProgressStream(c echo.Context) error
	HandleSnapshotMsgpack(c echo.Context) error
	HandleSaveOutput(c echo.Context) error
}

// UploadHandler handles chunked upload operations
type UploadHandler interface {
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleGetUploadJob(c echo.Context) error
}

// NotificationHandler serves notification history and the live channel
type NotificationHandler interface {
	HandleListNotifications(c echo.Context) error
	HandleWebSocket(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	OpenSession(toolID string) (models.ToolSession, error)
	GetSession(id string) (models.ToolSession, bool)
	TouchSession(id string) bool
	StageFiles(id string, files []models.RawFile) (*session.StageOutcome, error)
	RemoveFile(id, fileID string) (bool, error)
	ReorderFiles(id string, fileIDs []string) (models.ToolSession, error)
	StartProcessing(id string) (models.ToolSession, error)
	ResetSession(id string) (models.ToolSession, error)
	CloseSession(id string) bool
	SaveOutput(ctx context.Context, id string) (*models.SaveReceipt, error)
	Len() int
}

// NotificationHistory is the queryable record of emitted notifications
type NotificationHistory interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]models.Notification, error)
}

// NotificationFeed delivers live notifications for one session
type NotificationFeed interface {
	Subscribe(sessionID string) (<-chan models.Notification, func())
}

var _ SessionManager = (*session.Manager)(nil)
