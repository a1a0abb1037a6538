package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// Store is the subset of the ledger the worker needs.
type Store interface {
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	GetWallet(ctx context.Context, id string) (core.Wallet, error)
	ReconcileWallet(ctx context.Context, walletID string) (storage.Reconciliation, error)
	ListWalletIDs(ctx context.Context) ([]string, error)
}

// ReconcileWorker keeps wallet balances equal to their transaction history
// and optionally mirrors new transactions into a spreadsheet.
type ReconcileWorker struct {
	store       Store
	exporter    sheets.Exporter
	exported    cache.Cache[string]
	concurrency int
}

// NewReconcileWorker creates a worker. exporter may be nil; exported remembers
// which transactions already reached the sheet so redeliveries are skipped.
func NewReconcileWorker(store Store, exporter sheets.Exporter, exported cache.Cache[string], concurrency int) *ReconcileWorker {
	if concurrency <= 0 {
		concurrency = 4
	}
	if exported == nil {
		exported = cache.NewLRUCache[string](10000, 24*time.Hour)
	}
	return &ReconcileWorker{store: store, exporter: exporter, exported: exported, concurrency: concurrency}
}

// HandleMessage reconciles the message's wallet and exports its transaction.
// Records that no longer exist are acknowledged, not retried.
func (w *ReconcileWorker) HandleMessage(ctx context.Context, msg *amqp.TransactionRecordedMessage) error {
	slog.InfoContext(ctx, "Processing recorded transaction",
		log.FieldComponent, log.ComponentWorker,
		log.FieldTransactionID, msg.TransactionID,
		log.FieldWalletID, msg.WalletID)

	if _, err := w.store.ReconcileWallet(ctx, msg.WalletID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "Wallet from message no longer exists",
				log.FieldComponent, log.ComponentWorker,
				log.FieldWalletID, msg.WalletID)
			return nil
		}
		return fmt.Errorf("reconcile wallet %s: %w", msg.WalletID, err)
	}

	if w.exporter == nil {
		return nil
	}
	return w.export(ctx, msg.TransactionID)
}

func (w *ReconcileWorker) export(ctx context.Context, transactionID string) error {
	if ref, ok, err := w.exported.Get(ctx, transactionID); err == nil && ok {
		slog.DebugContext(ctx, "Transaction already exported",
			log.FieldComponent, log.ComponentWorker,
			log.FieldTransactionID, transactionID,
			"range", ref)
		return nil
	}

	t, err := w.store.GetTransaction(ctx, transactionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}
	wallet, err := w.store.GetWallet(ctx, t.WalletID)
	if err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}

	ref, err := w.exporter.AppendTransaction(ctx, t, wallet)
	if err != nil {
		return fmt.Errorf("export transaction: %w", err)
	}
	if err := w.exported.Set(ctx, transactionID, ref); err != nil {
		slog.WarnContext(ctx, "Failed to remember exported transaction",
			log.FieldComponent, log.ComponentWorker,
			log.FieldTransactionID, transactionID,
			log.FieldError, err)
	}
	return nil
}

// SweepResult summarizes one pass over every wallet.
type SweepResult struct {
	Wallets  int
	Repaired int
	Failed   int
}

// Sweep reconciles every wallet. One failing wallet does not stop the others.
func (w *ReconcileWorker) Sweep(ctx context.Context) (SweepResult, error) {
	ids, err := w.store.ListWalletIDs(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list wallets: %w", err)
	}

	var repaired, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			rec, err := w.store.ReconcileWallet(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				slog.ErrorContext(gctx, "Failed to reconcile wallet",
					log.FieldComponent, log.ComponentWorker,
					log.FieldWalletID, id,
					log.FieldError, err)
				return nil
			}
			if rec.Repaired {
				repaired.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()

	res := SweepResult{Wallets: len(ids), Repaired: int(repaired.Load()), Failed: int(failed.Load())}
	slog.InfoContext(ctx, "Reconciliation sweep completed",
		log.FieldComponent, log.ComponentWorker,
		log.FieldOperation, log.OpReconcile,
		"wallets", res.Wallets,
		"repaired", res.Repaired,
		"failed", res.Failed)
	return res, err
}

// Run sweeps once at startup and then every interval until ctx is done.
func (w *ReconcileWorker) Run(ctx context.Context, interval time.Duration) error {
	if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Startup reconciliation failed",
			log.FieldComponent, log.ComponentWorker,
			log.FieldError, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Periodic reconciliation failed",
					log.FieldComponent, log.ComponentWorker,
					log.FieldError, err)
			}
		}
	}
}
