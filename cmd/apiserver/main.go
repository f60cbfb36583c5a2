// Command apiserver serves the attribution HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/KeyIP-Attribution/internal/bootstrap"
	"github.com/turtacn/KeyIP-Attribution/internal/config"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: ATTRIB_* environment only)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadOrEnv(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	if err := bootstrap.WatchConfig(configPath, logger); err != nil {
		logger.Warn("Configuration watch disabled", logging.Err(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Startup failed", logging.Err(err))
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Shutdown incomplete", logging.Err(err))
		}
	}()

	logger.Info("Starting API server", logging.String("version", version))
	return app.Serve(ctx, version)
}
