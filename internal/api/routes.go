// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/doctools/backend/internal/catalog"
	"github.com/doctools/backend/internal/logging"
	"github.com/doctools/backend/internal/storage"
	"github.com/doctools/backend/internal/upload"
	"github.com/labstack/echo/v4"
)

var logger = logging.New("api")

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store      storage.Store
	Catalog    *catalog.Catalog
	SessionMgr SessionManager
	UploadMgr  *upload.Manager
	Feed       NotificationFeed
	History    NotificationHistory
	Version    string
}

// Handlers holds all handler instances
type Handlers struct {
	Health        HealthHandler
	Catalog       CatalogHandler
	Session       SessionHandler
	Upload        UploadHandler
	Notifications NotificationHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:        NewHealthHandler(deps.Version, deps.Catalog, deps.SessionMgr, deps.Store),
		Catalog:       NewCatalogHandler(deps.Catalog),
		Session:       NewSessionHandler(deps.Store, deps.SessionMgr),
		Upload:        NewUploadHandler(deps.Store, deps.SessionMgr, deps.UploadMgr),
		Notifications: NewNotificationHandler(deps.SessionMgr, deps.Feed, deps.History),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	api := e.Group("/api")

	// Health check
	api.GET("/health", handlers.Health.HandleHealth)

	// Catalog routes
	api.GET("/tools", handlers.Catalog.HandleListTools)
	api.GET("/tools/:id", handlers.Catalog.HandleGetTool)

	// Session routes
	sessions := api.Group("/sessions")
	sessions.POST("", handlers.Session.HandleOpenSession)
	sessions.GET("/:id", handlers.Session.HandleGetSession)
	sessions.DELETE("/:id", handlers.Session.HandleCloseSession)
	sessions.POST("/:id/files", handlers.Session.HandleStageFiles)
	sessions.DELETE("/:id/files/:fileId", handlers.Session.HandleRemoveFile)
	sessions.PUT("/:id/files/order", handlers.Session.HandleReorderFiles)
	sessions.POST("/:id/start", handlers.Session.HandleStartProcessing)
	sessions.POST("/:id/reset", handlers.Session.HandleResetSession)
	sessions.GET("/:id/progress", handlers.Session.HandleProgressStream)
	sessions.GET("/:id/snapshot/msgpack", handlers.Session.HandleSnapshotMsgpack)
	sessions.POST("/:id/save", handlers.Session.HandleSaveOutput)

	// Chunked upload routes
	sessions.POST("/:id/uploads/chunk", handlers.Upload.HandleUploadChunk)
	sessions.POST("/:id/uploads/complete", handlers.Upload.HandleCompleteUpload)
	api.GET("/uploads/:jobId", handlers.Upload.HandleGetUploadJob)

	// Notification routes
	sessions.GET("/:id/notifications", handlers.Notifications.HandleListNotifications)
	sessions.GET("/:id/ws", handlers.Notifications.HandleWebSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, exposeDetails bool) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
	exposeErrorDetails = exposeDetails
}
