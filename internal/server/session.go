// Package server manages individual bot sessions, handling read/write pumps,
// rate limiting, and lifecycle control for each WebSocket connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/mentionchat/internal/chat"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Session is one client connected to the demo bot. Every text frame it sends
// is answered on the same connection; sessions never see each other's
// messages.
type Session struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	limiter        *rate.Limiter
	rateLimit      RateLimitConfig
	log            *slog.Logger
}

// NewSession creates a Session for conn using the active configuration. The
// send channel is buffered to absorb short bursts of replies.
func NewSession(conn *websocket.Conn, hub *Hub, addr string) *Session {
	cfg := CurrentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	id := uuid.NewString()

	return &Session{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		log:            hub.log.With("session", id, "remote_addr", addr),
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string {
	return s.id
}

// setupReadConnection configures read deadlines and the pong handler.
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.log.Warn("failed to set initial read deadline", "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			s.log.Warn("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError logs err at a level matching how ordinary it is and
// reports whether the read loop should stop.
func (s *Session) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn("message exceeded maximum size", "limit", s.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		s.log.Info("session disconnected", "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		s.log.Info("session connection closed", "reason", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		s.log.Warn("unexpected websocket close", "error", err)
	default:
		s.log.Warn("websocket read error", "error", err)
	}
	return true
}

// checkRateLimit reports whether the next message may be processed.
func (s *Session) checkRateLimit() bool {
	if s.limiter != nil && !s.limiter.Allow() {
		s.hub.metrics.RecordRateLimited()
		s.log.Warn("rate limit exceeded, discarding message",
			"burst", s.rateLimit.Burst, "interval", s.rateLimit.RefillInterval)
		return false
	}
	return true
}

// reply answers text with a bot message. It returns false if the reply could
// not be queued.
func (s *Session) reply(text string) bool {
	payload, err := chat.EncodeInbound(text)
	if err != nil {
		s.log.Error("failed to encode reply", "error", err)
		return false
	}

	s.log.Debug("message received", "msg", text)
	if !s.hub.deliver(s, payload) {
		return false
	}
	s.hub.metrics.RecordBotReply()
	return true
}

func (s *Session) readPump() {
	defer func() {
		s.hub.unregisterSession(s)
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Warn("error closing connection in readPump", "error", err)
		}
	}()

	s.setupReadConnection()

	for {
		messageType, raw, err := s.conn.ReadMessage()
		if s.handleReadError(err) {
			return
		}
		if messageType != websocket.TextMessage {
			s.log.Debug("ignoring non-text frame", "type", messageType)
			continue
		}

		if !s.checkRateLimit() {
			continue
		}

		s.reply(string(raw))
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.closeConnection()
	}()

	for s.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (s *Session) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-s.send:
		return s.handleMessage(message, ok)
	case <-ticker.C:
		return s.handlePing()
	}
}

func (s *Session) closeConnection() {
	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Warn("error closing connection in writePump", "error", err)
	}
}

// handleMessage writes one reply frame and returns false if the connection
// should be closed.
func (s *Session) handleMessage(message []byte, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.log.Warn("failed to set write deadline", "error", err)
		return false
	}

	if !ok {
		return s.writeCloseMessage()
	}

	// One frame per reply; the client decodes each frame as a single JSON
	// object.
	if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Warn("failed to write reply", "error", err)
		}
		return false
	}
	return true
}

func (s *Session) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Warn("failed to write close message", "error", err)
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive.
func (s *Session) handlePing() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.log.Warn("failed to set write deadline for ping", "error", err)
		return false
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Warn("failed to write ping", "error", err)
		}
		return false
	}
	return true
}
