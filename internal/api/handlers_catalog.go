// handlers_catalog.go - Tool catalog handlers
package api

import (
	"net/http"

	"github.com/doctools/backend/internal/catalog"
	"github.com/labstack/echo/v4"
)

// CatalogHandlerImpl implements the CatalogHandler interface
type CatalogHandlerImpl struct {
	catalog *catalog.Catalog
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(cat *catalog.Catalog) CatalogHandler {
	return &CatalogHandlerImpl{catalog: cat}
}

// HandleListTools returns every tool grouped by section, or a flat list with ?flat=true
func (h *CatalogHandlerImpl) HandleListTools(c echo.Context) error {
	if c.QueryParam("flat") == "true" {
		return c.JSON(http.StatusOK, h.catalog.Tools())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sections": h.catalog.Sections(),
		"total":    h.catalog.Len(),
	})
}

// HandleGetTool returns a single tool definition
func (h *CatalogHandlerImpl) HandleGetTool(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	tool, ok := h.catalog.Lookup(id)
	if !ok {
		return NewNotFoundError("tool", id)
	}
	return c.JSON(http.StatusOK, tool)
}
