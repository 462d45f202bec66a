package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/NicolasHaas/rq/pkg/ctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctl.New().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
