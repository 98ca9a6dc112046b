package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"liveclass/internal/app"
	"liveclass/internal/classes"
	"liveclass/internal/config"
	"liveclass/internal/logger"
)

// Worker runs the lifecycle sweep on its own so API replicas can set SWEEP_ENABLED=false.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg := logger.New(cfg).Named("worker")
	defer func() { _ = lg.Sync() }()

	if cfg.StoreBackend == "memory" {
		lg.Fatal("worker needs a shared store; STORE_BACKEND=memory only works inside the API process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	sweeper := classes.NewSweeper(a.Classes, cfg.SweepInterval, lg)
	sweeper.Start(context.Background())

	<-ctx.Done()
	lg.Info("shutdown signal received")
	sweeper.Stop()
}
