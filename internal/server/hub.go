// Package server tracks live bot sessions for the sessions gauge and for
// graceful shutdown via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/mentionchat/internal/metrics"
	"github.com/Tyrowin/mentionchat/internal/observability"
)

// Hub is the registry of live sessions. Each session only ever talks to its
// own connection, so the hub does not route messages between them.
type Hub struct {
	sessions   map[*Session]bool
	register   chan *Session
	unregister chan *Session
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewHub creates a Hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   make(map[*Session]bool),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		metrics:    m,
		log:        observability.WithFields("component", "hub"),
	}
}

// Register hands s to the hub, which starts its pumps. It returns false if
// the hub is shutting down.
func (h *Hub) Register(s *Session) bool {
	select {
	case h.register <- s:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) unregisterSession(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.ctx.Done():
	}
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.sessions)
}

// deliver queues payload on s without blocking. A session whose buffer is
// full is dropped.
func (h *Hub) deliver(s *Session, payload []byte) bool {
	h.mutex.RLock()
	_, exists := h.sessions[s]
	if !exists || s.closed {
		h.mutex.RUnlock()
		return false
	}
	select {
	case s.send <- payload:
		h.mutex.RUnlock()
		return true
	default:
	}
	h.mutex.RUnlock()

	s.log.Warn("send buffer full, dropping session")
	h.remove(s)
	return false
}

// Run starts the hub's event loop. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownSessions()
			return

		case s := <-h.register:
			if s == nil {
				h.log.Warn("received nil session registration, skipping")
				continue
			}

			h.mutex.Lock()
			s.closed = false
			h.sessions[s] = true
			count := len(h.sessions)
			h.mutex.Unlock()

			h.metrics.SetSessions(count)
			h.log.Info("session registered", "session", s.ID(), "remote_addr", s.addr, "sessions", count)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				s.writePump()
			}()
			go func() {
				defer h.wg.Done()
				s.readPump()
			}()

		case s := <-h.unregister:
			h.remove(s)
		}
	}
}

// remove deletes s from the registry and closes its send channel so the
// write pump exits.
func (h *Hub) remove(s *Session) {
	h.mutex.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.sessions, s)
	s.closed = true
	count := len(h.sessions)
	h.mutex.Unlock()

	close(s.send)
	h.metrics.SetSessions(count)
	h.log.Info("session unregistered", "session", s.ID(), "sessions", count)
}

// shutdownSessions closes every live session.
func (h *Hub) shutdownSessions() {
	h.log.Info("shutting down all sessions")

	h.mutex.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
		delete(h.sessions, s)
		s.closed = true
	}
	h.mutex.Unlock()

	for _, s := range sessions {
		close(s.send)
		if s.conn != nil {
			if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
				s.log.Warn("error closing session connection", "error", err)
			}
		}
	}

	h.metrics.SetSessions(0)
	h.log.Info("closed sessions", "count", len(sessions))
}

// Shutdown stops the hub and waits for all session goroutines to finish, or
// until timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
