// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/doctools/backend/internal/catalog"
	"github.com/doctools/backend/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	catalog  *catalog.Catalog
	sessions SessionManager
	store    storage.Store
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, cat *catalog.Catalog, sessions SessionManager, store storage.Store) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		catalog:  cat,
		sessions: sessions,
		store:    store,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.catalog != nil {
		resp["tools"] = h.catalog.Len()
	}
	if h.sessions != nil {
		resp["sessions"] = h.sessions.Len()
	}
	if h.store != nil {
		files, bytes := h.store.Stats()
		resp["storedFiles"] = files
		resp["storedSize"] = humanize.IBytes(uint64(bytes))
	}
	return c.JSON(http.StatusOK, resp)
}
