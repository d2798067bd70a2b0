package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/mentionchat/internal/metrics"
	"github.com/Tyrowin/mentionchat/internal/observability"
)

// Conn is the part of a WebSocket connection the manager uses.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// DialFunc opens a connection to endpoint.
type DialFunc func(ctx context.Context, endpoint string) (Conn, error)

// Options configures a Manager. Zero values fall back to the defaults below.
type Options struct {
	Endpoint         string
	RetryDelay       time.Duration
	MaxRetries       int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int64
	// Origin is sent with the handshake. Derived from Endpoint when empty.
	Origin string

	Dial      DialFunc
	AfterFunc func(d time.Duration, f func())
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

const (
	DefaultEndpoint         = "ws://127.0.0.1:8080/ws"
	DefaultRetryDelay       = 5 * time.Second
	DefaultMaxRetries       = 10
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultMaxMessageSize   = 64 * 1024
)

func (o Options) withDefaults() Options {
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	if o.Origin == "" {
		o.Origin = OriginFor(o.Endpoint)
	}
	if o.Logger == nil {
		o.Logger = observability.Logger()
	}
	if o.AfterFunc == nil {
		o.AfterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	if o.Dial == nil {
		o.Dial = WebSocketDialer(o.HandshakeTimeout, o.Origin, o.MaxMessageSize)
	}
	return o
}

// OriginFor maps a ws:// or wss:// endpoint to the matching http(s) origin.
func OriginFor(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := "http"
	if u.Scheme == "wss" || u.Scheme == "https" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// WebSocketDialer returns a DialFunc backed by a gorilla/websocket Dialer.
func WebSocketDialer(handshakeTimeout time.Duration, origin string, readLimit int64) DialFunc {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}

	return func(ctx context.Context, endpoint string) (Conn, error) {
		header := http.Header{}
		if origin != "" {
			header.Set("Origin", origin)
		}

		conn, resp, err := dialer.DialContext(ctx, endpoint, header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", endpoint, err)
		}
		if readLimit > 0 {
			conn.SetReadLimit(readLimit)
		}
		return conn, nil
	}
}
