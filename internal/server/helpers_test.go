package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/mentionchat/internal/chat"
	"github.com/Tyrowin/mentionchat/internal/metrics"
)

type testServer struct {
	*httptest.Server
	hub     *Hub
	metrics *metrics.Metrics
}

// startTestServer applies cfg on top of the defaults with the test server's
// own origin allowed, and runs a hub behind the application routes.
func startTestServer(t *testing.T, configure func(cfg *Config)) *testServer {
	t.Helper()

	m := metrics.New()
	hub := NewHub(m)
	go hub.Run()

	ts := httptest.NewUnstartedServer(nil)

	cfg := NewConfig()
	if configure != nil {
		configure(cfg)
	}
	cfg.AllowedOrigins = append(cfg.AllowedOrigins, "http://"+ts.Listener.Addr().String())
	SetConfig(cfg)

	ts.Config.Handler = SetupRoutes(hub, m)
	ts.Start()

	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
		SetConfig(nil)
	})
	return &testServer{Server: ts, hub: hub, metrics: m}
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, err := ts.dialWithOrigin(ts.URL)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (ts *testServer) dialWithOrigin(origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(ts.wsURL(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func readReply(t *testing.T, conn *websocket.Conn, timeout time.Duration) (chat.Envelope, error) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return chat.Envelope{}, err
	}
	var env chat.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Reply is not JSON: %v (%q)", err, data)
	}
	return env, nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
