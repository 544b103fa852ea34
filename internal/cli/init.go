// Package cli holds the commands and start-up helpers shared by cmd/tracker
// and cmd/tracker-worker.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tracker/internal/config"
	"tracker/internal/log"
)

// SetupLogger builds the application logger from cfg and installs it as the
// slog default.
func SetupLogger(cfg *config.Config, out io.Writer) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := log.New(log.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: log.ComponentApp,
		Output:    out,
	})
	log.SetDefault(logger)
	return logger, nil
}

// LoadEnvFile loads path into the environment for local development. A
// missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bootstrap runs the start-up sequence every binary shares: env file, config,
// logger.
func Bootstrap(envFile string, out io.Writer) (*config.Config, *log.Logger, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := SetupLogger(cfg, out)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. The
// returned stop function releases the signal handler.
func GracefulShutdown(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
