package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"carteira/internal/amqp"
	"carteira/internal/cache"
	"carteira/internal/cli"
	"carteira/internal/export"
	apphttp "carteira/internal/http"
	"carteira/internal/session"
	"carteira/internal/store"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()

	b, closeBackend, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	storeOpts := []store.Option{store.WithLogger(logger)}

	// Transaction events feed the spreadsheet mirror (optional)
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		storeOpts = append(storeOpts, store.WithPublisher(amqpClient))
		logger.Info("Publishing transaction events", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	adviceSvc, err := cli.NewAdviceService(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize advice service", "error", err, "provider", cfg.AdviceProvider)
		os.Exit(1)
	}
	caches := cache.NewManager(logger)
	caches.Register(adviceSvc.Cache())
	caches.StartCleanup(5 * time.Minute)

	var archiver apphttp.Archiver
	var uploader *export.GCSUploader
	if cfg.ExportGCSBucket != "" {
		uploader, err = export.NewGCSUploader(ctx, cfg.ExportGCSBucket, logger)
		if err != nil {
			logger.Error("Failed to initialize Cloud Storage export", "error", err, "bucket", cfg.ExportGCSBucket)
			os.Exit(1)
		}
		archiver = uploader
	}

	sessions := session.NewManager(b, session.Config{TTL: cfg.SessionTTL},
		session.WithLogger(logger),
		session.WithStoreOptions(storeOpts...))
	if err := sessions.Start(ctx); err != nil {
		logger.Error("Failed to start session manager", "error", err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Sessions:      sessions,
		Advice:        adviceSvc,
		Archiver:      archiver,
		Logger:        logger,
		Currency:      cfg.Currency,
		AuthRateLimit: cfg.AuthRateLimit,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := sessions.Stop(ctx); err != nil {
			logger.Warn("Session manager stop error", "error", err)
		}
		caches.Stop()
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
		if uploader != nil {
			_ = uploader.Close()
		}
		if err := closeBackend(); err != nil {
			logger.Error("Backend close error", "error", err)
		}
	})

	logger.Info("Starting carteira server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
