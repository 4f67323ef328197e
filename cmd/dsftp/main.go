package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dsftp/internal/logger"
	sftpAdapter "github.com/marmos91/dsftp/pkg/adapter/sftp"
	"github.com/marmos91/dsftp/pkg/config"
	"github.com/marmos91/dsftp/pkg/server"
)

func main() {
	// Server configuration flags. The config file carries everything;
	// flags exist for the common overrides.
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := flag.String("log-level", "", "Log level override (DEBUG, INFO, WARN, ERROR)")
	port := flag.Int("port", 0, "SFTP port override")
	flag.Parse()

	fmt.Println("dsftp - SFTP server over pluggable storage")

	// Load configuration (file, environment, defaults)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// CLI flags take precedence over file and environment
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *port != 0 {
		cfg.Adapters.SFTP.Port = *port
	}

	// Configure logger
	logger.SetLevel(cfg.Logging.Level)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure log output: %v", err)
	}
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create the storage backend from configuration
	store, err := config.CreateBackend(ctx, &cfg.Backend)
	if err != nil {
		log.Fatalf("Failed to create storage backend: %v", err)
	}
	defer func() {
		if closer, ok := store.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Error("Error closing backend: %v", err)
			}
		}
	}()
	logger.Info("Storage backend: %s", cfg.Backend.Type)

	// Create the SFTP adapter
	adapter, err := sftpAdapter.New(cfg.Adapters.SFTP)
	if err != nil {
		log.Fatalf("Failed to create SFTP adapter: %v", err)
	}

	// Wire everything together
	srv := server.New(store)
	if err := srv.AddAdapter(adapter); err != nil {
		log.Fatalf("Failed to register SFTP adapter: %v", err)
	}

	// Start server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running on port %d. Press Ctrl+C to stop.", adapter.Port())

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		cancel()

		if err := <-serverDone; err != nil && err != context.Canceled {
			logger.Error("Server shutdown error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		if err != nil && err != context.Canceled {
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped")
	}
}
