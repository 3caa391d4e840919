// Package api serves the read-only status endpoints.
package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/models"
)

// StatsSource supplies the counters reported by /stats.
type StatsSource interface {
	Stats() models.Stats
}

// NewRouter registers the status routes backed by src.
func NewRouter(src StatsSource) *mux.Router {
	h := &handler{stats: src}
	r := mux.NewRouter()

	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/stats", h.getStats).Methods("GET")

	return r
}

// NewHTTPServer returns an http.Server for the status endpoints with
// access logging to accessLog.
func NewHTTPServer(addr string, src StatsSource, accessLog io.Writer) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handlers.LoggingHandler(accessLog, NewRouter(src)),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
