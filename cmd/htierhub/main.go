// Package main implements the entry point for the HtierDemoApp hub.
// The hub acquires data over one protocol at a time (MQTT subscribe, HTTP
// relay polling, direct register polling, or video capture), buffers it in
// the message store, and serves it to readers over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/htier-pubsub/HtierDemoApp/config"
	"github.com/htier-pubsub/HtierDemoApp/metric"
	"github.com/htier-pubsub/HtierDemoApp/service"
	"github.com/htier-pubsub/HtierDemoApp/store"
	"github.com/htier-pubsub/HtierDemoApp/supervisor"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "htierhub"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsRegistry := metric.NewMetricsRegistry()

	messageStore, err := buildStore(cfg, metricsRegistry, logger)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	sup, err := supervisor.New(supervisor.Deps{
		Store:  messageStore,
		Logger: logger.With("component", "supervisor"),
	})
	if err != nil {
		return fmt.Errorf("create supervisor: %w", err)
	}

	readerServer, err := service.New(service.Deps{
		Config:     cfg.Server,
		Supervisor: sup,
		Metrics:    metricsRegistry,
		Logger:     logger.With("component", "reader-server"),
	})
	if err != nil {
		return fmt.Errorf("create reader server: %w", err)
	}

	if err := readerServer.Start(ctx); err != nil {
		return fmt.Errorf("start reader server: %w", err)
	}

	// The initial session comes from config; a failed start is not fatal
	// for the hub, the reader can switch protocols over HTTP.
	if err := sup.Start(ctx, cfg.Connection); err != nil {
		logger.Warn("initial session failed to start, hub continues",
			"protocol", string(cfg.Connection.Protocol), "error", err)
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received")
	return shutdown(sup, readerServer, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting hub",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

func buildStore(cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) (*store.Store, error) {
	opts := []store.Option{
		store.WithCapacity(cfg.Store.Capacity),
		store.WithLogger(logger.With("component", "store")),
		store.WithMetrics(registry),
	}
	if cfg.Store.PersistDir != "" {
		opts = append(opts, store.WithPersistence(cfg.Store.PersistDir))
	}
	return store.New(opts...)
}

func shutdown(sup *supervisor.Supervisor, readerServer *service.Server, timeout time.Duration) error {
	// Stop acquisition first so no appends race the reader drain.
	if err := sup.Stop(timeout); err != nil {
		slog.Error("session shutdown failed", "error", err)
	}
	if err := readerServer.Stop(timeout); err != nil {
		return fmt.Errorf("reader server shutdown: %w", err)
	}
	slog.Info("Shutdown complete")
	return nil
}
