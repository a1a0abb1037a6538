package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

const transactionColumns = `id, user_id, account_type, wallet_id, kind, amount_cents, category, place, description, transaction_date, created_at`

// TransactionSort names the column a listing is ordered by.
type TransactionSort string

const (
	SortByDate   TransactionSort = "date"
	SortByAmount TransactionSort = "amount"
)

// ParseTransactionSort accepts "date" or "amount"; empty means date.
func ParseTransactionSort(s string) (TransactionSort, error) {
	switch TransactionSort(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortByDate:
		return SortByDate, nil
	case SortByAmount:
		return SortByAmount, nil
	}
	return "", fmt.Errorf("%w: unknown sort %q", ErrInvalidFilter, s)
}

func (ts TransactionSort) column() string {
	if ts == SortByAmount {
		return "amount_cents"
	}
	return "transaction_date"
}

// TransactionFilter scopes a transaction listing. Zero fields do not filter,
// except UserID and AccountType which are required.
type TransactionFilter struct {
	UserID      string
	AccountType core.AccountType
	WalletID    string
	Kind        core.Kind
	From        time.Time // inclusive
	To          time.Time // exclusive
	Search      string    // substring of place, category or description, any case
	Category    string
	SortBy      TransactionSort
	Desc        bool
	Limit       int
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t                 core.Transaction
		accountType, kind string
		amount            int64
		date, createdAt   int64
	)
	if err := row.Scan(&t.ID, &t.UserID, &accountType, &t.WalletID, &kind, &amount,
		&t.Category, &t.Place, &t.Description, &date, &createdAt); err != nil {
		return core.Transaction{}, err
	}
	t.AccountType = core.AccountType(accountType)
	t.Kind = core.Kind(kind)
	t.Amount = core.Money{Cents: amount}
	t.TransactionDate = fromMillis(date)
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

// CreateTransaction stores t and applies its balance delta to the wallet in
// one database transaction: both happen or neither does.
//
// An empty WalletID means the owner's active wallet; when the owner has no
// wallet in that account context a default one is created and activated.
func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, core.Wallet, error) {
	var wallet core.Wallet
	err := s.inTx(ctx, func(q queryer) error {
		w, err := s.resolveWallet(ctx, q, t.UserID, t.AccountType, t.WalletID)
		if err != nil {
			return err
		}
		t.WalletID = w.ID
		if err := t.Validate(); err != nil {
			return err
		}
		t.ID = s.newID()
		t.CreatedAt = s.now().UTC()

		_, err = q.ExecContext(ctx, s.rebind(`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			t.ID, t.UserID, string(t.AccountType), t.WalletID, string(t.Kind), t.Amount.Cents,
			t.Category, t.Place, t.Description, toMillis(t.TransactionDate), toMillis(t.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		if s.afterInsert != nil {
			if err := s.afterInsert(); err != nil {
				return err
			}
		}

		delta := t.BalanceDelta()
		res, err := q.ExecContext(ctx, s.rebind(`UPDATE wallets SET balance_cents = balance_cents + ? WHERE id = ?`),
			delta.Cents, w.ID)
		if err != nil {
			return fmt.Errorf("update wallet balance: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n != 1 {
			return fmt.Errorf("update wallet balance: %w", ErrNotFound)
		}
		w.Balance = w.Balance.Add(delta)
		wallet = w
		return nil
	})
	if err != nil {
		return core.Transaction{}, core.Wallet{}, err
	}

	slog.InfoContext(ctx, "Transaction recorded",
		append(log.NewFields().
			WithComponent(log.ComponentStorage).
			WithOperation(log.OpCreate).
			WithScope(t.UserID, string(t.AccountType), t.WalletID).
			WithTransaction(t.ID, t.Amount.Cents, t.Category).ToSlice(),
			"kind", string(t.Kind))...)
	return t, wallet, nil
}

func (s *Store) resolveWallet(ctx context.Context, q queryer, userID string, accountType core.AccountType, walletID string) (core.Wallet, error) {
	if walletID != "" {
		w, err := s.getWallet(ctx, q, walletID)
		if err != nil {
			return core.Wallet{}, err
		}
		if w.UserID != userID || w.AccountType != accountType {
			return core.Wallet{}, ErrWalletMismatch
		}
		return w, nil
	}

	w, err := s.activeWallet(ctx, q, userID, accountType)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return core.Wallet{}, err
	}

	nw := core.Wallet{UserID: userID, AccountType: accountType, Name: defaultWalletName(accountType)}
	if err := nw.Validate(); err != nil {
		return core.Wallet{}, err
	}
	created, err := s.insertWallet(ctx, q, nw, true)
	if err != nil {
		return core.Wallet{}, err
	}
	slog.InfoContext(ctx, "Default wallet created on first transaction",
		log.FieldComponent, log.ComponentStorage,
		log.FieldUserID, userID,
		log.FieldAccountType, string(accountType),
		log.FieldWalletID, created.ID)
	return created, nil
}

// ListTransactions returns matching transactions ordered by date, oldest first.
func (s *Store) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	if f.UserID == "" {
		return nil, core.ErrEmptyUser
	}
	if !f.AccountType.Valid() {
		return nil, core.ErrInvalidAccountType
	}

	var (
		where = []string{"user_id = ?", "account_type = ?"}
		args  = []any{f.UserID, string(f.AccountType)}
	)
	if f.WalletID != "" {
		where = append(where, "wallet_id = ?")
		args = append(args, f.WalletID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if !f.From.IsZero() {
		where = append(where, "transaction_date >= ?")
		args = append(args, toMillis(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "transaction_date < ?")
		args = append(args, toMillis(f.To))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
		where = append(where, `(LOWER(place) LIKE ? ESCAPE '\' OR LOWER(category) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` +
		strings.Join(where, " AND ") +
		fmt.Sprintf(` ORDER BY %s %s, created_at %s, id %s`, f.SortBy.column(), dir, dir, dir)
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txns := make([]core.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`), id)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// Reconciliation is the outcome of recomputing one wallet balance.
type Reconciliation struct {
	WalletID string
	Stored   core.Money
	Computed core.Money
	Repaired bool
}

// ReconcileWallet recomputes the balance as opening balance plus every
// transaction delta and overwrites the stored value when they differ.
func (s *Store) ReconcileWallet(ctx context.Context, walletID string) (Reconciliation, error) {
	rec := Reconciliation{WalletID: walletID}
	err := s.inTx(ctx, func(q queryer) error {
		w, err := s.getWallet(ctx, q, walletID)
		if err != nil {
			return err
		}
		var sum int64
		err = q.QueryRowContext(ctx, s.rebind(`
			SELECT CAST(COALESCE(SUM(CASE WHEN kind = 'income' THEN amount_cents ELSE -amount_cents END), 0) AS BIGINT)
			FROM transactions WHERE wallet_id = ?`), walletID).Scan(&sum)
		if err != nil {
			return fmt.Errorf("sum wallet transactions: %w", err)
		}
		rec.Stored = w.Balance
		rec.Computed = w.OpeningBalance.Add(core.Money{Cents: sum})
		if rec.Stored == rec.Computed {
			return nil
		}
		if _, err := q.ExecContext(ctx, s.rebind(`UPDATE wallets SET balance_cents = ? WHERE id = ?`),
			rec.Computed.Cents, walletID); err != nil {
			return fmt.Errorf("repair wallet balance: %w", err)
		}
		rec.Repaired = true
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}

	if rec.Repaired {
		slog.WarnContext(ctx, "Wallet balance drift repaired",
			log.FieldComponent, log.ComponentStorage,
			log.FieldOperation, log.OpReconcile,
			log.FieldWalletID, walletID,
			"stored_cents", rec.Stored.Cents,
			"computed_cents", rec.Computed.Cents)
	}
	return rec, nil
}
