package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/extract"
	apphttp "fintrack/internal/http"
	"fintrack/internal/ingest"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		logger := cli.SetupLogger("info", log.ComponentApp)
		logger.Error("Configuration validation failed", log.FieldError, err)
		return err
	}
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentApp)
	logger.Info("Starting fintrack", "port", cfg.Port, "db_driver", cfg.DBDriver)

	ctx, stop := cli.SignalContext()
	defer stop()

	store, err := cli.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open store", log.FieldError, err)
		return err
	}
	defer store.Close()

	caches, err := cli.NewCaches(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize cache", log.FieldError, err, "backend", cfg.CacheBackend)
		return err
	}
	defer caches.Close()

	subscribers := &services.Subscribers{}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// Recording still works; the worker's periodic sweep repairs balances.
			logger.Warn("AMQP unavailable, transactions will not be published", log.FieldError, err)
		} else {
			defer client.Close()
			subscribers.Add("amqp", client)
		}
	}

	capture := newCaptureService(cfg, caches, logger)
	if caches.Backend() == "memory" {
		caches.Manager.StartCleanup(10 * time.Minute)
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:        store,
		Transactions: services.NewTransactionService(store, nil, subscribers),
		Analytics:    services.NewAnalyticsService(store, cfg.AnalyticsMonths, cfg.AnalyticsTopN),
		Capture:      capture,
		Logger:       logger,
	}, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		MaxUploadBytes:     cfg.MaxUploadBytes,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr, "capture", capture.Enabled(), "subscribers", subscribers.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// newCaptureService enables capture only when an API key is configured.
// Extraction results are cached by input hash; transcripts are not.
func newCaptureService(cfg *config.Config, caches *cli.Caches, logger *log.Logger) *services.CaptureService {
	if !cfg.ExtractionEnabled() {
		logger.Info("Capture disabled - no OPENAI_API_KEY provided")
		return services.NewCaptureService(nil, nil, nil, 0)
	}
	client := extract.NewClient(extract.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		VisionModel: cfg.OpenAIVisionModel,
		TextModel:   cfg.OpenAITextModel,
		MaxElapsed:  cfg.ExtractTimeout,
	})
	cached := extract.NewCachedExtractor(client, cli.NewCache[ingest.Raw](caches, "extract", 1000))
	logger.Info("Capture enabled", "cache", caches.Backend())
	return services.NewCaptureService(cached, client, ingest.NewNormalizer(), cfg.ExtractTimeout)
}
