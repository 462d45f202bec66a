// Package hub implements the rq reference hub: a websocket endpoint that
// applies queue commands against a store and pushes snapshots to every
// connected client.
package hub

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/NicolasHaas/rq/pkg/store"
)

// Config holds hub configuration.
type Config struct {
	Addr         string        // HTTP bind address for the /hub websocket endpoint
	DBPath       string        // SQLite database path (empty = in-memory store)
	QueuesFile   string        // YAML file of queues to load on startup
	MetricsAddr  string        // HTTP bind address for /metrics (empty = disabled)
	SendBuffer   int           // pushes buffered per connection before it is dropped
	PingInterval time.Duration // websocket keep-alive
	PongWait     time.Duration // silence after which a client is dropped

	// CLI-only action (run and exit)
	ExportQueues bool // export all queues as YAML and exit
}

// Dependencies holds external dependencies for the hub.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store store.QueueStore
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":7600",
		MetricsAddr:  ":7602",
		SendBuffer:   32,
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
	}
}

// Server is the rq hub.
type Server struct {
	cfg      Config
	registry *Registry
	metrics  *Metrics
	store    store.QueueStore

	// mu serializes command application so every connection observes
	// mutations in the same order.
	mu sync.Mutex

	httpSrv *http.Server
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a new Server. A nil store is replaced by an in-memory one.
func New(cfg Config, deps Dependencies) *Server {
	st := deps.Store
	if st == nil {
		slog.Info("no queue store configured, using memory")
		st = store.NewMemory()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		registry: NewRegistry(),
		metrics:  NewMetrics(),
		store:    st,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handler returns the hub's websocket endpoint mounted at /hub.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/hub", s.handleHub)
	return mux
}

// Registry returns the connection registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Metrics returns the hub metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Store returns the queue store.
func (s *Server) Store() store.QueueStore {
	return s.store
}
