package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/fracquest/internal/app"
	"github.com/felixgeelhaar/fracquest/internal/config"
	mcpserver "github.com/felixgeelhaar/fracquest/internal/mcp"
)

// cmdMCP starts the MCP server on stdio
func cmdMCP() error {
	dir, err := config.EnsureFracquestDir()
	if err != nil {
		return fmt.Errorf("setup fracquest directory: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// stdout carries the protocol, keep logs on stderr
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx, cancel := signalContext()
	defer cancel()

	application, err := app.NewApp(ctx, app.AppConfig{Config: cfg, Dir: dir})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer application.Close()

	mcpSrv := mcpserver.NewServer(mcpserver.Config{
		Engine:  application.Engine,
		Version: Version,
	})

	return mcpSrv.ServeStdio(ctx)
}

// loadConfig reads config.yaml and secrets, then overlays the environment
func loadConfig() (*config.LocalConfig, error) {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	env, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	cfg.ApplyEnv(env)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
