package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ingest"
	"fintrack/internal/log"
	"fintrack/internal/session"
	"fintrack/internal/storage"
)

// Ledger is the part of the store the services read and write.
type Ledger interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, core.Wallet, error)
	ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error)
	ListWallets(ctx context.Context, userID string, accountType core.AccountType) ([]core.Wallet, error)
	OwnedWallet(ctx context.Context, userID string, accountType core.AccountType, id string) (core.Wallet, error)
}

// Recorded is a committed transaction together with its wallet's new state.
type Recorded struct {
	Transaction core.Transaction `json:"transaction"`
	Wallet      core.Wallet      `json:"wallet"`
}

// TransactionService records transactions for the session's user.
type TransactionService struct {
	ledger      Ledger
	normalizer  *ingest.Normalizer
	subscribers *Subscribers
}

func NewTransactionService(ledger Ledger, normalizer *ingest.Normalizer, subscribers *Subscribers) *TransactionService {
	if normalizer == nil {
		normalizer = ingest.NewNormalizer()
	}
	if subscribers == nil {
		subscribers = &Subscribers{}
	}
	return &TransactionService{ledger: ledger, normalizer: normalizer, subscribers: subscribers}
}

// Record persists a normalized draft. The insert and the wallet balance
// change are one atomic write; subscribers run only after it committed.
func (s *TransactionService) Record(ctx context.Context, sess session.Session, d ingest.Draft) (Recorded, error) {
	t := d.Transaction(sess.UserID, sess.AccountType, "")
	if err := t.Validate(); err != nil {
		return Recorded{}, err
	}

	saved, wallet, err := s.ledger.CreateTransaction(ctx, t)
	if err != nil {
		return Recorded{}, fmt.Errorf("record transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction recorded",
		append(log.NewFields().
			WithComponent(log.ComponentLedger).
			WithOperation(log.OpCreate).
			WithScope(sess.UserID, string(sess.AccountType), wallet.ID).
			WithTransaction(saved.ID, saved.Amount.Cents, saved.Category).ToSlice(),
			log.FieldSource, string(d.Source))...)

	s.subscribers.Notify(ctx, TransactionRecorded{
		Session:     sess,
		Source:      d.Source,
		Transaction: saved,
		Wallet:      wallet,
	})
	return Recorded{Transaction: saved, Wallet: wallet}, nil
}

// RecordManual validates and records a manually entered transaction.
func (s *TransactionService) RecordManual(ctx context.Context, sess session.Session, form ingest.ManualForm) (Recorded, error) {
	d, err := s.normalizer.NormalizeManual(ctx, form)
	if err != nil {
		return Recorded{}, err
	}
	return s.Record(ctx, sess, d)
}

type ListQuery struct {
	WalletID string
	From     time.Time
	To       time.Time
	Search   string
	Category string
	SortBy   storage.TransactionSort
	Desc     bool
	Limit    int
}

// List returns the session's transactions, checking wallet ownership first.
func (s *TransactionService) List(ctx context.Context, sess session.Session, q ListQuery) ([]core.Transaction, error) {
	if q.WalletID != "" {
		if _, err := s.ledger.OwnedWallet(ctx, sess.UserID, sess.AccountType, q.WalletID); err != nil {
			return nil, err
		}
	}
	return s.ledger.ListTransactions(ctx, storage.TransactionFilter{
		UserID:      sess.UserID,
		AccountType: sess.AccountType,
		WalletID:    q.WalletID,
		From:        q.From,
		To:          q.To,
		Search:      q.Search,
		Category:    ingest.CanonicalCategory(q.Category),
		SortBy:      q.SortBy,
		Desc:        q.Desc,
		Limit:       q.Limit,
	})
}
