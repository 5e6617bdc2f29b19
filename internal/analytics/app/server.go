// Package app composes the analytics pipeline into a runnable HTTP
// service: the SQLite event store, the broadcast hub, the aggregation
// service, and the API handler.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/meridianworks/kiosk-analytics/internal/analytics/api/httpapi"
	"github.com/meridianworks/kiosk-analytics/internal/analytics/hub"
	"github.com/meridianworks/kiosk-analytics/internal/analytics/service"
	"github.com/meridianworks/kiosk-analytics/internal/analytics/storage/sqlite"
	"github.com/meridianworks/kiosk-analytics/internal/platform/timeouts"
)

// Config defines startup inputs for the analytics service.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":4000".
	Addr string
	// DBPath is the SQLite database file. Ignored when InMemory is set.
	DBPath string
	// InMemory keeps the live database in memory with debounced snapshots
	// written to DBPath.
	InMemory bool
	// AdminKey gates the read endpoints. Empty leaves them open.
	AdminKey string
	// HeartbeatInterval overrides the live-stream keepalive cadence.
	HeartbeatInterval time.Duration
}

// Server hosts the analytics HTTP surface and lifecycle.
type Server struct {
	addr       string
	store      *sqlite.Store
	hub        *hub.Hub
	httpServer *http.Server
}

// NewServer validates config and wires the pipeline together.
func NewServer(_ context.Context, cfg Config) (*Server, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("listen address is required")
	}
	dbPath := strings.TrimSpace(cfg.DBPath)
	if dbPath == "" {
		return nil, errors.New("database path is required")
	}

	store, err := sqlite.Open(dbPath, sqlite.Options{InMemory: cfg.InMemory})
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}

	liveHub := hub.New(cfg.HeartbeatInterval)
	svc, err := service.New(store, liveHub)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("compose analytics service: %w", err)
	}

	handler, err := httpapi.New(svc, liveHub, cfg.AdminKey)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("compose api handler: %w", err)
	}

	return &Server{
		addr:  addr,
		store: store,
		hub:   liveHub,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler.Routes(),
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
	}, nil
}

// ListenAndServe serves HTTP traffic until context cancellation or server
// failure. The heartbeat loop runs for the same lifetime.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("analytics server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	log.Printf("analytics server listening on %s", s.addr)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown analytics http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve analytics http: %w", err)
	}
}

// Close releases server resources, flushing any pending snapshot.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close event store: %v", err)
		}
	}
}
