// Package server assembles the hub, the application listener, and the
// metrics listener into a Server that runs until its context ends.
package server

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/mentionchat/internal/metrics"
	"github.com/Tyrowin/mentionchat/internal/observability"
)

// ShutdownTimeout bounds how long Run waits for listeners and sessions to
// drain.
const ShutdownTimeout = 10 * time.Second

// Server is the demo chat server.
type Server struct {
	cfg     Config
	hub     *Hub
	metrics *metrics.Metrics
	http    *http.Server
	admin   *http.Server
}

// New applies cfg and builds a Server. m may be nil, in which case no
// metrics listener is started.
func New(cfg *Config, m *metrics.Metrics) *Server {
	SetConfig(cfg)
	active := CurrentConfig()

	hub := NewHub(m)
	s := &Server{
		cfg:     active,
		hub:     hub,
		metrics: m,
		http:    CreateServer(active.Port, SetupRoutes(hub, m)),
	}
	if m != nil && active.MetricsPort != "" {
		s.admin = CreateServer(active.MetricsPort, MetricsRoutes(m))
	}
	return s
}

// Hub returns the session registry.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the application handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled or a listener fails, then shuts
// everything down.
func (s *Server) Run(ctx context.Context) error {
	log := observability.WithFields("component", "server")

	go s.hub.Run()
	log.Info("hub started and ready to manage bot sessions")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return StartServer(s.http)
	})
	if s.admin != nil {
		g.Go(func() error {
			return StartServer(s.admin)
		})
	}
	g.Go(func() error {
		<-gctx.Done()

		var firstErr error
		if err := ShutdownServer(s.http, ShutdownTimeout); err != nil {
			firstErr = err
		}
		if s.admin != nil {
			if err := ShutdownServer(s.admin, ShutdownTimeout); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := s.hub.Shutdown(ShutdownTimeout); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	})

	return g.Wait()
}
