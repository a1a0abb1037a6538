package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/worker"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		logger := cli.SetupLogger("info", log.ComponentWorker)
		logger.Error("Configuration validation failed", log.FieldError, err)
		return err
	}
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentWorker)
	logger.Info("Starting fintrack-worker", "reconcile_interval", cfg.ReconcileInterval)

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
	if caches.Backend() == "memory" {
		caches.Manager.StartCleanup(cfg.ReconcileInterval)
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets exporter", log.FieldError, err)
		return err
	}
	if exporter == nil {
		logger.Info("Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	w := worker.NewReconcileWorker(store, exporter, cli.NewCache[string](caches, "exported", 10000), 4)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx, cfg.ReconcileInterval)
	})

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			return err
		}
		defer client.Close()
		g.Go(func() error {
			return client.ConsumeTransactionRecorded(gctx, w.HandleMessage)
		})
	} else {
		logger.Info("AMQP disabled - only periodic reconciliation will run")
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		return err
	}
	logger.Info("Worker stopped gracefully", log.FieldOperation, log.OpShutdown)
	return nil
}

// newExporter returns nil when no spreadsheet is configured.
func newExporter(ctx context.Context, cfg *config.Config) (sheets.Exporter, error) {
	if cfg.GoogleSpreadsheetID == "" {
		return nil, nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
