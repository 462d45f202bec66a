package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/NicolasHaas/rq/pkg/client"
	"github.com/NicolasHaas/rq/pkg/logging"
	"github.com/NicolasHaas/rq/ui"
)

func main() {
	cfg := client.DefaultConfig()
	settingsPath := flag.String("settings", "", "Settings file (default: "+client.DefaultSettingsPath()+")")
	flag.StringVar(&cfg.HubURL, "hub", cfg.HubURL, "Hub websocket URL, overrides the settings file (env "+client.EnvHubURL+")")
	flag.Parse()

	// Default to "info"; override with RQ_LOG_LEVEL / RQ_LOG_FORMAT.
	_ = logging.Setup(logging.FromEnv(logging.Options{
		Level:  "info",
		Format: "text",
		Output: os.Stdout,
	}))

	engine := client.NewEngine(cfg, client.NewSettingsStore(*settingsPath))
	app := ui.NewApp(engine)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := engine.Run(ctx); err != nil {
			slog.Error("client engine", "err", err)
		}
	}()

	app.Run()
	cancel()
	<-done
}
