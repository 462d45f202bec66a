package hub

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format and /healthz. It runs in the
// background and shuts down when the hub context is cancelled.
func (s *Server) StartMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return // metrics endpoint disabled
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

// MetricsHandler serves /metrics and /healthz.
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("rq_uptime_seconds", "Hub uptime in seconds.", "gauge", uptime)

	write("rq_connections_active", "Current live websocket connections.", "gauge",
		int64(s.registry.Count()))
	write("rq_connections_total", "Lifetime websocket connections accepted.", "counter",
		m.TotalConnections.Load())
	write("rq_handshakes_rejected_total", "Handshakes rejected for a missing or bad identity.", "counter",
		m.RejectedHandshakes.Load())
	write("rq_disconnects_total", "Total client disconnects.", "counter",
		m.TotalDisconnects.Load())

	write("rq_commands_applied_total", "Commands applied.", "counter",
		m.CommandsApplied.Load())
	write("rq_commands_invalid_total", "Commands ignored as malformed or illegal.", "counter",
		m.CommandsInvalid.Load())

	write("rq_queues_created_total", "Queues created.", "counter",
		m.QueuesCreated.Load())
	write("rq_queues_deleted_total", "Queues removed.", "counter",
		m.QueuesDeleted.Load())
	write("rq_chat_messages_total", "Queue chat messages accepted.", "counter",
		m.ChatMessagesSent.Load())
	write("rq_nags_total", "Nag notices broadcast.", "counter",
		m.NagsSent.Load())

	write("rq_snapshots_pushed_total", "Snapshot pushes produced, dropped ones included.", "counter",
		m.SnapshotsPushed.Load())
	write("rq_notices_pushed_total", "Notice pushes produced, dropped ones included.", "counter",
		m.NoticesPushed.Load())
	write("rq_pushes_dropped_total", "Pushes refused by a full or closed connection.", "counter",
		m.PushesDropped.Load())

	queues, err := s.store.ListQueues()
	if err != nil {
		slog.Warn("metrics: list queues", "err", err)
		return
	}
	write("rq_queues", "Queues currently stored.", "gauge", int64(len(queues)))
}
