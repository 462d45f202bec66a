package hub

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks hub runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections   atomic.Int64 // lifetime websocket connections accepted
	ActiveConnections  atomic.Int64 // current live connections
	RejectedHandshakes atomic.Int64 // handshakes without a usable identity
	TotalDisconnects   atomic.Int64

	// Command counters
	CommandsApplied atomic.Int64
	CommandsInvalid atomic.Int64 // malformed, unknown or illegal commands

	// Queue counters
	QueuesCreated    atomic.Int64
	QueuesDeleted    atomic.Int64
	ChatMessagesSent atomic.Int64
	NagsSent         atomic.Int64

	// Push counters, counted before delivery
	SnapshotsPushed atomic.Int64
	NoticesPushed   atomic.Int64
	PushesDropped   atomic.Int64 // pushes refused by a full or closed connection
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections  int64 `json:"active_connections"`
	TotalConnections   int64 `json:"total_connections"`
	RejectedHandshakes int64 `json:"rejected_handshakes"`
	TotalDisconnects   int64 `json:"total_disconnects"`

	CommandsApplied int64 `json:"commands_applied"`
	CommandsInvalid int64 `json:"commands_invalid"`

	QueuesCreated    int64 `json:"queues_created"`
	QueuesDeleted    int64 `json:"queues_deleted"`
	ChatMessagesSent int64 `json:"chat_messages_sent"`
	NagsSent         int64 `json:"nags_sent"`

	SnapshotsPushed int64 `json:"snapshots_pushed"`
	NoticesPushed   int64 `json:"notices_pushed"`
	PushesDropped   int64 `json:"pushes_dropped"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:             uptime.Truncate(time.Second).String(),
		UptimeSeconds:      int64(uptime.Seconds()),
		ActiveConnections:  m.ActiveConnections.Load(),
		TotalConnections:   m.TotalConnections.Load(),
		RejectedHandshakes: m.RejectedHandshakes.Load(),
		TotalDisconnects:   m.TotalDisconnects.Load(),
		CommandsApplied:    m.CommandsApplied.Load(),
		CommandsInvalid:    m.CommandsInvalid.Load(),
		QueuesCreated:      m.QueuesCreated.Load(),
		QueuesDeleted:      m.QueuesDeleted.Load(),
		ChatMessagesSent:   m.ChatMessagesSent.Load(),
		NagsSent:           m.NagsSent.Load(),
		SnapshotsPushed:    m.SnapshotsPushed.Load(),
		NoticesPushed:      m.NoticesPushed.Load(),
		PushesDropped:      m.PushesDropped.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"commands", s.CommandsApplied,
		"invalid", s.CommandsInvalid,
		"snapshots", s.SnapshotsPushed,
		"dropped", s.PushesDropped,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
