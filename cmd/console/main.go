package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/opentrace-console/internal/buildinfo"
	"github.com/dmitrijs2005/opentrace-console/internal/client/cli"
	"github.com/dmitrijs2005/opentrace-console/internal/client/config"
	"github.com/dmitrijs2005/opentrace-console/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		// The REPL may still be blocked on stdin.
		err = app.Close()
	}
	if err != nil {
		logger.Error(context.Background(), "console stopped with error", "error", err)
		os.Exit(1)
	}
}
