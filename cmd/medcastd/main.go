package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"medcast/internal/config"
	"medcast/internal/daemon"
	"medcast/internal/logging"
	"medcast/internal/renderqueue"
	"medcast/internal/runstore"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := runstore.Open(cfg)
	if err != nil {
		logger.Error("open run store", logging.Error(err))
		return
	}

	queue, err := renderqueue.New(
		store.Handle(),
		time.Duration(cfg.RenderQueue.BaselineWaitSeconds)*time.Second,
		time.Duration(cfg.RenderQueue.PerJobSeconds)*time.Second,
	)
	if err != nil {
		logger.Error("init render queue", logging.Error(err))
		_ = store.Close()
		return
	}

	d, err := daemon.New(cfg, store, queue, buildOrchestrator(cfg, store, queue, logger), buildLimiter(cfg), logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("medcastd shutting down")
}
