// Package cli provides common CLI initialization utilities shared by
// cmd/carteira, cmd/carteira-worker and cmd/carteira-cli.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"carteira/internal/advice"
	"carteira/internal/backend"
	"carteira/internal/cache"
	"carteira/internal/config"
	"carteira/internal/log"
)

// SetupLogger initializes structured logging at LOG_LEVEL and makes it the
// slog default.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	logger := log.New(cfg)
	slog.SetDefault(logger.Logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// OpenBackend builds the configured backend. The returned cleanup closes it.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (backend.Backend, backend.CleanupFunc, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("backend config: %w", err)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := res.Cleanup
	if cleanup == nil {
		cleanup = res.Backend.Close
	}
	return res.Backend, cleanup, nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ran.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

// NewAdviceService builds the advice service for ADVICE_PROVIDER.
func NewAdviceService(ctx context.Context, cfg *config.Config, logger *log.Logger) (*advice.Service, error) {
	var advisor advice.Advisor
	switch cfg.AdviceProvider {
	case "gemini":
		g, err := advice.NewGeminiAdvisor(ctx, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("gemini advisor: %w", err)
		}
		advisor = g
	default:
		advisor = advice.NewCannedAdvisor(uint64(time.Now().UnixNano()))
	}
	return advice.NewService(advisor,
		advice.WithTimeout(cfg.AdviceTimeout),
		advice.WithCache(cache.NewLRUCache[string](1024, cfg.AdviceCacheTTL)),
		advice.WithLogger(logger),
	), nil
}
