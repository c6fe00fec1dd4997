package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/felixgeelhaar/fracquest/internal/app"
)

// cmdWorker drains queued attempts into the attempt log until interrupted
func cmdWorker() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Daemon.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := signalContext()
	defer cancel()

	worker, err := app.NewWorker(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	if err := worker.Start(ctx); err != nil {
		_ = worker.Stop()
		return fmt.Errorf("start worker: %w", err)
	}
	slog.Info("attempt worker running", "workers", cfg.Queue.Workers)

	<-ctx.Done()
	slog.Info("attempt worker stopping")
	return worker.Stop()
}
