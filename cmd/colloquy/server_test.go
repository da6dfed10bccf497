package main

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/colloquy"
	"github.com/poiesic/colloquy/ai/mock"
	"github.com/poiesic/colloquy/config"
	"github.com/poiesic/colloquy/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	reg := prometheus.NewRegistry()
	a, err := colloquy.New(cfg,
		colloquy.WithProvider(mock.NewMockProvider()),
		colloquy.WithMonitor(metrics.NewPrometheusMonitor(reg)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return newRouter(a, reg, cfg.Upload.MaxBytes)
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func doUpload(t *testing.T, r http.Handler, path, filename, content string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w, out
}

func TestServer_SessionLifecycle(t *testing.T) {
	r := newTestServer(t)

	w, out := doJSON(t, r, http.MethodPost, "/api/sessions", `{"id": "s1"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "s1", out["id"])
	assert.Equal(t, "plain", out["mode"])

	w, out = doJSON(t, r, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, out["id"])

	w, out = doJSON(t, r, http.MethodPost, "/api/sessions/s1/messages", `{"question": "hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mock reply to: hello", out["answer"])
	assert.Equal(t, "plain", out["mode"])

	w, _ = doJSON(t, r, http.MethodPost, "/api/sessions/s1/messages", `{"question": "  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/sessions/s1/messages", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out = doJSON(t, r, http.MethodGet, "/api/sessions/s1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	messages := out["messages"].([]any)
	require.Len(t, messages, 3)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "human", messages[1].(map[string]any)["role"])
	assert.Equal(t, "assistant", messages[2].(map[string]any)["role"])

	w, _ = doJSON(t, r, http.MethodDelete, "/api/sessions/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	_, out = doJSON(t, r, http.MethodGet, "/api/sessions/s1/history", "")
	assert.Len(t, out["messages"], 1)
}

func TestServer_Uploads(t *testing.T) {
	r := newTestServer(t)

	w, out := doUpload(t, r, "/api/sessions/s1/files", "notes.txt", "hello")
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Contains(t, out["error"], ".txt")

	w, _ = doUpload(t, r, "/api/sessions/s1/files", "broken.csv", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, out = doUpload(t, r, "/api/sessions/s1/files", "prices.csv", "item,price\na,2\nb,4\n")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dataset", out["kind"])
	assert.Equal(t, float64(2), out["rows"])
	assert.Equal(t, "tabular", out["mode"])

	w, out = doUpload(t, r, "/api/sessions/s1/files", "manual.pdf", "%PDF-1.4")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, out["error"], "tabular")

	w, out = doJSON(t, r, http.MethodGet, "/api/sessions/s1/sources", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, out["sources"])

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/s1/files", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	r := newTestServer(t)

	w, out := doJSON(t, r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["ok"])

	doJSON(t, r, http.MethodPost, "/api/sessions/s1/messages", `{"question": "hello"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `colloquy_turns_total{mode="plain",outcome="ok"} 1`)
}
