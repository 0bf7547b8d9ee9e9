package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heykaelo/heykaelo-backend/internal/calendar"
	"github.com/heykaelo/heykaelo-backend/internal/flow"
	"github.com/heykaelo/heykaelo-backend/internal/messaging"
	"github.com/heykaelo/heykaelo-backend/internal/store"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server hosts the HTTP endpoints over the flow dispatcher and datastore.
type Server struct {
	store      store.Store
	dispatcher *flow.Dispatcher
	msgService messaging.Service
	calendar   calendar.Service
	addr       string
	httpServer *http.Server
}

// NewServer creates the API server.
func NewServer(st store.Store, dispatcher *flow.Dispatcher, msgService messaging.Service, cal calendar.Service, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	slog.Debug("api.NewServer: server configured", "addr", cfg.Addr)
	return &Server{
		store:      st,
		dispatcher: dispatcher,
		msgService: msgService,
		calendar:   cal,
		addr:       cfg.Addr,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/whatsapp", s.webhookHandler)
	mux.HandleFunc("GET /bookings", s.listBookingsHandler)
	mux.HandleFunc("POST /bookings/{id}/approve", s.approveBookingHandler)
	mux.HandleFunc("POST /bookings/{id}/reject", s.rejectBookingHandler)
	mux.HandleFunc("POST /sessions/{phone}/reset", s.resetSessionHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api.Server.Run: listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
		slog.Info("api.Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
