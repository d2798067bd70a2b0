// Package server wires HTTP handlers into a ServeMux for the demo chat
// server via routing helpers.
package server

import (
	"net/http"

	"github.com/Tyrowin/mentionchat/internal/metrics"
)

// SetupRoutes returns the application routes: the web client and JSON echo
// on "/", the bot WebSocket on "/ws", and the health check on "/healthz".
func SetupRoutes(hub *Hub, m *metrics.Metrics) http.Handler {
	cfg := CurrentConfig()

	mux := http.NewServeMux()
	mux.HandleFunc("/", RootHandler(cfg.StaticDir, m))
	mux.HandleFunc("/ws", WebSocketHandler(hub, cfg.OriginPolicy()))
	mux.HandleFunc("/healthz", HealthHandler)

	return Chain(
		RecoveryMiddleware(),
		RequestIDMiddleware(),
		LoggingMiddleware(),
		MetricsMiddleware(m),
	)(mux)
}

// MetricsRoutes serves the Prometheus registry on "/metrics".
func MetricsRoutes(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
