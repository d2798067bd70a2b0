// Package server exposes HTTP handlers: the bot WebSocket upgrade, the JSON
// echo endpoint, static assets, and health checks.
package server

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/mentionchat/internal/metrics"
	"github.com/Tyrowin/mentionchat/internal/observability"
)

const maxEchoBodySize = 1 << 20

//go:embed web/index.html
var indexPage []byte

// EchoResponse is the body returned for every accepted JSON document.
type EchoResponse struct {
	Message string `json:"message"`
}

// WebSocketHandler upgrades GET requests from origins admitted by policy and
// registers a bot session with hub.
func WebSocketHandler(hub *Hub, policy *OriginPolicy) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.Check,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			observability.LoggerFromContext(r.Context()).Warn("websocket upgrade failed", "error", err)
			return
		}

		session := NewSession(conn, hub, r.RemoteAddr)
		if !hub.Register(session) {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			_ = conn.Close()
		}
	}
}

// RootHandler accepts JSON documents on POST and serves the web client on GET.
func RootHandler(staticDir string, m *metrics.Metrics) http.HandlerFunc {
	echo := EchoHandler(m)
	static := StaticHandler(staticDir)

	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			echo(w, r)
		case http.MethodGet, http.MethodHead:
			static.ServeHTTP(w, r)
		default:
			w.Header().Set("Allow", "GET, HEAD, POST")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// EchoHandler logs a posted JSON document and acknowledges it. Bodies that
// are not valid JSON are rejected with 400.
func EchoHandler(m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := observability.LoggerFromContext(r.Context())

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEchoBodySize))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				m.RecordEchoRequest(strconv.Itoa(http.StatusRequestEntityTooLarge))
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			m.RecordEchoRequest(strconv.Itoa(http.StatusBadRequest))
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		body = bytes.TrimSpace(body)
		if !json.Valid(body) {
			m.RecordEchoRequest(strconv.Itoa(http.StatusBadRequest))
			log.Warn("rejected non-JSON body", "bytes", len(body))
			http.Error(w, "request body must be JSON", http.StatusBadRequest)
			return
		}

		log.Info("json received", "body", json.RawMessage(body))
		m.RecordEchoRequest(strconv.Itoa(http.StatusOK))

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(EchoResponse{Message: "JSON received successfully"}); err != nil {
			log.Warn("failed to write echo response", "error", err)
		}
	}
}

// StaticHandler serves files from dir, or the built-in web client when dir
// is empty.
func StaticHandler(dir string) http.Handler {
	if dir != "" {
		return http.FileServer(http.Dir(dir))
	}
	return http.HandlerFunc(IndexHandler)
}

// IndexHandler serves the built-in web client.
func IndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(indexPage); err != nil {
		observability.LoggerFromContext(r.Context()).Warn("failed to write index page", "error", err)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "mentionchat server is running!")
}
