package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gear6io/slate/server"
	"github.com/gear6io/slate/server/config"
)

func main() {
	configPath := config.DEFAULT_CONFIG_FILE
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	// Load daemon configuration first
	cfg, err := config.LoadConfig(configPath)
	usingDefaults := err != nil
	if usingDefaults {
		// Fall back to defaults if the file is absent
		cfg = config.LoadDefaultConfig()
	}

	// Initialize logger with configuration
	logger, err := config.SetupLogger(cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to setup logger: %v", err))
	}

	if usingDefaults {
		logger.Info().Str("config", configPath).Msg("Using default configuration")
	}

	// Create daemon instance
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create daemon")
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info().Msg("Shutting down replication daemon...")
		cancel()
	}()

	// Start daemon
	logger.Info().Msg("Starting replication daemon...")
	if err := srv.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Daemon failed")
		os.Exit(1)
	}

	// Wait for a shutdown signal or a fatal background failure. A
	// failed replication pass exits nonzero so the supervisor restarts
	// the process.
	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-srv.Err():
		logger.Error().Err(err).Msg("Replication pipeline failed")
		exitCode = 1
	}

	// Graceful shutdown
	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}

	logger.Info().Msg("Daemon stopped gracefully")
	os.Exit(exitCode)
}
