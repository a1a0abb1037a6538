package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

const walletColumns = `id, user_id, account_type, name, balance_cents, opening_balance_cents, is_active, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (core.Wallet, error) {
	var (
		w                core.Wallet
		accountType      string
		balance, opening int64
		isActive         int64
		createdAt        int64
	)
	if err := row.Scan(&w.ID, &w.UserID, &accountType, &w.Name, &balance, &opening, &isActive, &createdAt); err != nil {
		return core.Wallet{}, err
	}
	w.AccountType = core.AccountType(accountType)
	w.Balance = core.Money{Cents: balance}
	w.OpeningBalance = core.Money{Cents: opening}
	w.IsActive = isActive == 1
	w.CreatedAt = fromMillis(createdAt)
	return w, nil
}

// CreateWallet stores a new wallet. Balance starts at the opening balance.
// The first wallet of a user in an account context becomes the active one.
func (s *Store) CreateWallet(ctx context.Context, w core.Wallet) (core.Wallet, error) {
	w.Name = strings.TrimSpace(w.Name)
	if err := w.Validate(); err != nil {
		return core.Wallet{}, err
	}
	err := s.inTx(ctx, func(q queryer) error {
		created, err := s.insertWallet(ctx, q, w, false)
		if err != nil {
			return err
		}
		w = created
		return nil
	})
	if err != nil {
		return core.Wallet{}, err
	}

	slog.InfoContext(ctx, "Wallet created",
		log.FieldComponent, log.ComponentStorage,
		log.FieldOperation, log.OpCreate,
		log.FieldUserID, w.UserID,
		log.FieldAccountType, string(w.AccountType),
		log.FieldWalletID, w.ID,
		"active", w.IsActive)
	return w, nil
}

func (s *Store) insertWallet(ctx context.Context, q queryer, w core.Wallet, forceActive bool) (core.Wallet, error) {
	var others int
	err := q.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM wallets WHERE user_id = ? AND account_type = ?`),
		w.UserID, string(w.AccountType)).Scan(&others)
	if err != nil {
		return core.Wallet{}, fmt.Errorf("count wallets: %w", err)
	}

	w.ID = s.newID()
	w.CreatedAt = s.now().UTC()
	w.Balance = w.OpeningBalance
	w.IsActive = forceActive || others == 0

	active := 0
	if w.IsActive {
		active = 1
		if _, err := q.ExecContext(ctx,
			s.rebind(`UPDATE wallets SET is_active = 0 WHERE user_id = ? AND account_type = ? AND is_active = 1`),
			w.UserID, string(w.AccountType)); err != nil {
			return core.Wallet{}, fmt.Errorf("deactivate wallets: %w", err)
		}
	}

	_, err = q.ExecContext(ctx, s.rebind(`INSERT INTO wallets (`+walletColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		w.ID, w.UserID, string(w.AccountType), w.Name, w.Balance.Cents, w.OpeningBalance.Cents, active, toMillis(w.CreatedAt))
	if err != nil {
		return core.Wallet{}, fmt.Errorf("insert wallet: %w", err)
	}
	return w, nil
}

func (s *Store) GetWallet(ctx context.Context, id string) (core.Wallet, error) {
	return s.getWallet(ctx, s.db, id)
}

func (s *Store) getWallet(ctx context.Context, q queryer, id string) (core.Wallet, error) {
	row := q.QueryRowContext(ctx, s.rebind(`SELECT `+walletColumns+` FROM wallets WHERE id = ?`), id)
	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Wallet{}, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// OwnedWallet returns the wallet only when it belongs to the given owner.
func (s *Store) OwnedWallet(ctx context.Context, userID string, accountType core.AccountType, id string) (core.Wallet, error) {
	w, err := s.GetWallet(ctx, id)
	if err != nil {
		return core.Wallet{}, err
	}
	if w.UserID != userID || w.AccountType != accountType {
		return core.Wallet{}, ErrWalletMismatch
	}
	return w, nil
}

// ListWallets returns the wallets of a user in one account context, oldest first.
func (s *Store) ListWallets(ctx context.Context, userID string, accountType core.AccountType) ([]core.Wallet, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+walletColumns+` FROM wallets WHERE user_id = ? AND account_type = ? ORDER BY created_at, id`),
		userID, string(accountType))
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	wallets := make([]core.Wallet, 0)
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// ListWalletIDs returns every wallet id, for reconciliation sweeps.
func (s *Store) ListWalletIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM wallets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list wallet ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan wallet id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ActiveWallet returns the active wallet of a user in an account context.
func (s *Store) ActiveWallet(ctx context.Context, userID string, accountType core.AccountType) (core.Wallet, error) {
	return s.activeWallet(ctx, s.db, userID, accountType)
}

func (s *Store) activeWallet(ctx context.Context, q queryer, userID string, accountType core.AccountType) (core.Wallet, error) {
	row := q.QueryRowContext(ctx,
		s.rebind(`SELECT `+walletColumns+` FROM wallets WHERE user_id = ? AND account_type = ? AND is_active = 1`),
		userID, string(accountType))
	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Wallet{}, fmt.Errorf("active wallet: %w", ErrNotFound)
	}
	if err != nil {
		return core.Wallet{}, fmt.Errorf("get active wallet: %w", err)
	}
	return w, nil
}

// SetActiveWallet makes id the only active wallet of its owner's context.
func (s *Store) SetActiveWallet(ctx context.Context, userID string, accountType core.AccountType, id string) (core.Wallet, error) {
	var w core.Wallet
	err := s.inTx(ctx, func(q queryer) error {
		current, err := s.getWallet(ctx, q, id)
		if err != nil {
			return err
		}
		if current.UserID != userID || current.AccountType != accountType {
			return ErrWalletMismatch
		}
		if _, err := q.ExecContext(ctx,
			s.rebind(`UPDATE wallets SET is_active = 0 WHERE user_id = ? AND account_type = ? AND is_active = 1`),
			userID, string(accountType)); err != nil {
			return fmt.Errorf("deactivate wallets: %w", err)
		}
		if _, err := q.ExecContext(ctx, s.rebind(`UPDATE wallets SET is_active = 1 WHERE id = ?`), id); err != nil {
			return fmt.Errorf("activate wallet: %w", err)
		}
		current.IsActive = true
		w = current
		return nil
	})
	if err != nil {
		return core.Wallet{}, err
	}

	slog.InfoContext(ctx, "Active wallet changed",
		log.FieldComponent, log.ComponentStorage,
		log.FieldOperation, log.OpActivate,
		log.FieldUserID, userID,
		log.FieldAccountType, string(accountType),
		log.FieldWalletID, id)
	return w, nil
}

// defaultWalletName names the wallet created implicitly on first entry.
func defaultWalletName(accountType core.AccountType) string {
	name := string(accountType)
	if name == "" {
		return "Main wallet"
	}
	return strings.ToUpper(name[:1]) + name[1:] + " wallet"
}
