package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Run starts the hub and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	st := s.store
	defer func() { _ = st.Close() }()

	// Load queues from YAML config if provided
	if s.cfg.QueuesFile != "" {
		if err := LoadQueuesFromYAML(s.cfg.QueuesFile, st); err != nil {
			slog.Error("failed to load queues config", "err", err)
		}
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("hub: listen: %w", err)
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("hub HTTP error", "err", err)
		}
	}()

	slog.Info("rq hub running", "addr", ln.Addr().String(), "endpoint", "/hub")

	// Start Prometheus metrics HTTP endpoint
	s.StartMetricsHTTP()

	// Start periodic metrics logging (every 60s)
	s.metrics.StartPeriodicLog(60*time.Second, s.ctx.Done())

	select {
	case <-ctx.Done():
	case <-s.ctx.Done():
	}

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown gracefully stops the hub. Hijacked websocket connections are not
// tracked by http.Server, so they are closed through the registry.
func (s *Server) Shutdown() {
	s.cancel()
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
	}
	s.registry.CloseAll()
}
