package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cybermonitor/monitor-stack/common/middleware"
	"github.com/cybermonitor/monitor-stack/monitor/internal/handlers"
)

// NewRouter constructs a ServeMux with the monitor API and the WebSocket
// endpoint registered.
func NewRouter(h *handlers.MonitorHandler, ws http.Handler) http.Handler {
	mux := http.NewServeMux()

	// REST API
	mux.HandleFunc("GET /api/v1/anomalies", h.ListAnomalies)
	mux.HandleFunc("GET /api/v1/anomalies/stats", h.AnomalyStats)
	mux.HandleFunc("GET /api/v1/session", h.Session)
	mux.HandleFunc("GET /api/v1/host", h.Host)
	mux.HandleFunc("POST /api/v1/processes/{pid}/kill", h.KillProcess)

	// Live telemetry
	if ws != nil {
		mux.Handle("GET /ws", ws)
	}

	// Health endpoints
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
