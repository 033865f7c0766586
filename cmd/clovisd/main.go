// clovisd is the background daemon: it hosts the worker pool that executes
// vocal mix pipelines, the HTTP API, and the WebSocket progress feed.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"clovis/internal/config"
	"clovis/internal/daemon"
	"clovis/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to the standard location)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("clovisd shutting down")
}
