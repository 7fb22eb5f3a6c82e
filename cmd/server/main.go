// Command server runs gatewayd: the authenticated, budget-aware,
// prompt-guarded LLM chat gateway that sits between an upstream identity
// gateway and a fleet of MCP tool servers.
//
// Responsibilities:
//   - Load and validate configuration from YAML, environment variables,
//     and their built-in defaults (internal/config).
//   - Build the composition root (internal/server): the MCP coordinator,
//     prompt-guard mediator, flow tracker/broadcaster, authorization
//     pipeline, and BYO-LLM adapter feeding a single internal/chat.Engine.
//   - Serve /ws/chat and /ask/stream for clients, plus the admin
//     observer socket and /monitoring/* control endpoints.
//   - Implement graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kubilitics/gatewayd/internal/config"
	"github.com/kubilitics/gatewayd/internal/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gatewayd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("GATEWAYD_CONFIG_PATH")
	var mgr config.ConfigManager
	var err error
	if configPath != "" {
		mgr, err = config.NewConfigManager(configPath)
	} else {
		mgr, err = config.NewConfigManagerWithDefaults()
	}
	if err != nil {
		return fmt.Errorf("failed to create config manager: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg := mgr.Get(ctx)

	logger, err := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	return srv.Stop()
}

func newLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if format == "text" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return zcfg.Build()
}
