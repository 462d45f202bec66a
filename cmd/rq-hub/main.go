package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/NicolasHaas/rq/pkg/datastore"
	"github.com/NicolasHaas/rq/pkg/hub"
	"github.com/NicolasHaas/rq/pkg/logging"
	"github.com/NicolasHaas/rq/pkg/store"
)

func main() {
	cfg := hub.DefaultConfig()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP bind address for the /hub websocket endpoint")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file path (empty keeps queues in memory)")
	flag.StringVar(&cfg.QueuesFile, "queues-file", "", "YAML file defining queues to create on startup")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	flag.IntVar(&cfg.SendBuffer, "send-buffer", cfg.SendBuffer, "Pushes buffered per connection before it is dropped")
	flag.BoolVar(&cfg.ExportQueues, "export-queues", false, "Export all queues as YAML and exit")

	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	st, err := openStore(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	if cfg.ExportQueues {
		defer func() { _ = st.Close() }()
		data, err := hub.ExportQueuesYAML(st)
		if err != nil {
			slog.Error("export queues", "err", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := hub.New(cfg, hub.Dependencies{Store: st})
	if err := srv.Run(ctx); err != nil {
		slog.Error("hub error", "err", err)
		os.Exit(1)
	}
}

func openStore(path string) (store.QueueStore, error) {
	if path == "" {
		slog.Warn("no database configured, queues will not survive a restart")
		return store.NewMemory(), nil
	}
	return datastore.Open(path)
}
