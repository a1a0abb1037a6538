package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/session"
	"fintrack/internal/storage"
)

type SummaryQuery struct {
	WalletID string
	Months   int
	TopN     int
}

// Summary is the analytics view of one wallet over a trailing window.
type Summary struct {
	Wallet  *core.Wallet  `json:"wallet"`
	Wallets []core.Wallet `json:"wallets"`
	From    time.Time     `json:"from"`
	core.AnalyticsSummary
}

// AnalyticsService computes spending summaries on every request; nothing is
// stored or cached between calls.
type AnalyticsService struct {
	ledger        Ledger
	defaultMonths int
	defaultTopN   int
	now           func() time.Time
}

func NewAnalyticsService(ledger Ledger, defaultMonths, defaultTopN int) *AnalyticsService {
	if defaultMonths <= 0 {
		defaultMonths = 6
	}
	if defaultTopN <= 0 {
		defaultTopN = analytics.DefaultTopN
	}
	return &AnalyticsService{
		ledger:        ledger,
		defaultMonths: defaultMonths,
		defaultTopN:   defaultTopN,
		now:           time.Now,
	}
}

// Summary picks the wallet (requested, else active, else oldest), loads its
// expenses since months ago and aggregates them. A user without wallets gets
// an empty summary.
func (s *AnalyticsService) Summary(ctx context.Context, sess session.Session, q SummaryQuery) (Summary, error) {
	months := q.Months
	if months <= 0 {
		months = s.defaultMonths
	}
	topN := q.TopN
	if topN <= 0 {
		topN = s.defaultTopN
	}

	wallets, err := s.ledger.ListWallets(ctx, sess.UserID, sess.AccountType)
	if err != nil {
		return Summary{}, fmt.Errorf("load wallets: %w", err)
	}
	out := Summary{
		Wallets:          wallets,
		From:             s.now().UTC().AddDate(0, -months, 0),
		AnalyticsSummary: analytics.Summarize(nil, topN),
	}

	wallet, err := s.pickWallet(ctx, sess, q.WalletID, wallets)
	if err != nil {
		return Summary{}, err
	}
	if wallet == nil {
		return out, nil
	}
	out.Wallet = wallet

	txns, err := s.ledger.ListTransactions(ctx, storage.TransactionFilter{
		UserID:      sess.UserID,
		AccountType: sess.AccountType,
		WalletID:    wallet.ID,
		Kind:        core.Expense,
		From:        out.From,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("load transactions: %w", err)
	}

	out.AnalyticsSummary = analytics.Summarize(txns, topN)

	slog.DebugContext(ctx, "Analytics summary computed",
		log.FieldComponent, log.ComponentAnalytics,
		log.FieldOperation, log.OpSummarize,
		log.FieldUserID, sess.UserID,
		log.FieldWalletID, wallet.ID,
		"transactions", len(txns),
		"months", months)
	return out, nil
}

func (s *AnalyticsService) pickWallet(ctx context.Context, sess session.Session, requested string, wallets []core.Wallet) (*core.Wallet, error) {
	if requested != "" {
		w, err := s.ledger.OwnedWallet(ctx, sess.UserID, sess.AccountType, requested)
		if err != nil {
			return nil, err
		}
		return &w, nil
	}
	for i := range wallets {
		if wallets[i].IsActive {
			return &wallets[i], nil
		}
	}
	if len(wallets) > 0 {
		return &wallets[0], nil
	}
	return nil, nil
}
