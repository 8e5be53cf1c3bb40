package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/doctools/backend/internal/catalog"
	"github.com/doctools/backend/internal/notify"
	"github.com/doctools/backend/internal/processing"
	"github.com/doctools/backend/internal/session"
	"github.com/doctools/backend/internal/testutil"
	"github.com/doctools/backend/internal/upload"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

// testEnv wires the real managers over an in-memory store.
type testEnv struct {
	e        *echo.Echo
	store    *testutil.MockStorage
	sessions *session.Manager
	uploads  *upload.Manager
	hub      *notify.Hub
	history  *notify.History
}

func newTestEnv(t *testing.T, engine processing.Engine) *testEnv {
	t.Helper()
	if engine == nil {
		engine = processing.NewSimulator(time.Millisecond, 15, processing.WithRandom(func() float64 { return 0 }))
	}

	history, err := notify.NewHistory()
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	store := testutil.NewMockStorageWithTempDir(t.TempDir())
	hub := notify.NewHub()
	sessions := session.NewManager(catalog.Default(), engine,
		session.WithStore(store),
		session.WithNotifier(notify.Multi(history, hub)),
		session.WithCloseHook(hub.Drop),
	)
	t.Cleanup(sessions.Shutdown)
	uploads := upload.NewManager(store, sessions)

	e := echo.New()
	SetupMiddleware(e, true)
	RegisterRoutes(e, NewHandlers(&Dependencies{
		Store:      store,
		Catalog:    catalog.Default(),
		SessionMgr: sessions,
		UploadMgr:  uploads,
		Feed:       hub,
		History:    history,
		Version:    "test",
	}))

	return &testEnv{e: e, store: store, sessions: sessions, uploads: uploads, hub: hub, history: history}
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) upload(t *testing.T, path string, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) openSession(t *testing.T, toolID string) string {
	t.Helper()
	sess, err := env.sessions.OpenSession(toolID)
	require.NoError(t, err)
	return sess.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}
