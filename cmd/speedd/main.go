package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"speedprobe/internal/config"
	"speedprobe/internal/speedd"
)

func main() {
	// Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Setup structured logging
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// Ticket archive per ARCHIVE_MODE
	archive, stopArchive, err := buildArchive(cfg)
	if err != nil {
		log.Fatalf("Failed to set up ticket archive: %v", err)
	}
	defer stopArchive()

	logger.Info("starting_speedd",
		"listen_addr", cfg.ListenAddr,
		"archive_mode", cfg.ArchiveMode,
	)

	server := speedd.NewServer(cfg.ListenAddr, archive)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		logger.Info("received_shutdown_signal")
		server.Stop()
		logger.Info("server_stopped_gracefully")
	case err := <-errChan:
		logger.Error("server_error", "error", err.Error())
		os.Exit(1)
	}
}

// newLogger builds a slog logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// buildArchive wires the ticket archive selected by config. The returned
// stop function releases whatever the mode acquired.
func buildArchive(cfg *config.Config) (speedd.TicketArchive, func(), error) {
	switch cfg.ArchiveMode {
	case "none":
		return nil, func() {}, nil

	case "redis":
		archive, err := speedd.NewTicketRedisArchive(cfg.RedisAddr())
		if err != nil {
			return nil, nil, err
		}
		return archive, func() { archive.Close() }, nil

	case "postgres":
		db, err := speedd.OpenPostgres(cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		archive := speedd.NewTicketPostgresArchive(db)
		if err := archive.EnsureSchema(context.Background()); err != nil {
			archive.Close()
			return nil, nil, err
		}
		return archive, func() { archive.Close() }, nil

	case "hybrid":
		redisArchive, err := speedd.NewTicketRedisArchive(cfg.RedisAddr())
		if err != nil {
			return nil, nil, err
		}
		db, err := speedd.OpenPostgres(cfg.PostgresURL)
		if err != nil {
			redisArchive.Close()
			return nil, nil, err
		}
		pgArchive := speedd.NewTicketPostgresArchive(db)
		if err := pgArchive.EnsureSchema(context.Background()); err != nil {
			redisArchive.Close()
			pgArchive.Close()
			return nil, nil, err
		}
		archive := speedd.NewHybridTicketArchive(redisArchive, pgArchive)

		ctx, cancel := context.WithCancel(context.Background())
		go archive.StartBatchWriter(ctx)
		return archive, func() {
			cancel()
			archive.Close()
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown archive mode %q", cfg.ArchiveMode)
	}
}
