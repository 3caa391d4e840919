package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/models"
)

type staticStats models.Stats

func (s staticStats) Stats() models.Stats { return models.Stats(s) }

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(staticStats{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStats(t *testing.T) {
	src := staticStats{
		TotalReadings:     1200,
		TotalWindows:      12,
		ActiveConnections: 100,
		DroppedMessages:   3,
		BenchmarkComplete: true,
	}

	rec := httptest.NewRecorder()
	NewRouter(src).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got models.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.Stats(src), got)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(staticStats{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stats", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPServerLogsAccess(t *testing.T) {
	var accessLog bytes.Buffer
	srv := NewHTTPServer(":0", staticStats{}, &accessLog)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, accessLog.String(), "GET /health")
}
