package api

import (
	"net/http"
	"testing"

	"github.com/doctools/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogHandlers(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("sections", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/tools", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Sections []struct {
				Title string        `json:"title"`
				Tools []models.Tool `json:"tools"`
			} `json:"sections"`
			Total int `json:"total"`
		}
		decode(t, rec, &body)
		assert.Equal(t, 10, body.Total)
		require.Len(t, body.Sections, 3)
		assert.Equal(t, "PDF Tools", body.Sections[0].Title)
	})

	t.Run("flat", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/tools?flat=true", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var tools []models.Tool
		decode(t, rec, &tools)
		assert.Len(t, tools, 10)
	})

	t.Run("single tool", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/tools/image-to-pdf", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var tool models.Tool
		decode(t, rec, &tool)
		assert.Equal(t, "Image to PDF", tool.Name)
		assert.Contains(t, tool.InputFormats, ".jpg")
	})

	t.Run("unknown tool", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/tools/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "NOT_FOUND")
	})
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	env.openSession(t, "merge-pdf")

	rec := env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, float64(10), body["tools"])
	assert.Equal(t, float64(1), body["sessions"])
}
