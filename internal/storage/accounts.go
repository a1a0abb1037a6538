package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fintrack/internal/core"
)

// GetAccountType returns the account context a user last selected.
func (s *Store) GetAccountType(ctx context.Context, userID string) (core.AccountType, error) {
	var at string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT account_type FROM user_accounts WHERE user_id = ?`), userID).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("account type for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get account type: %w", err)
	}
	return core.AccountType(at), nil
}

// SetAccountType records the user's account context selection.
func (s *Store) SetAccountType(ctx context.Context, userID string, accountType core.AccountType) error {
	if userID == "" {
		return core.ErrEmptyUser
	}
	if !accountType.Valid() {
		return core.ErrInvalidAccountType
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO user_accounts (user_id, account_type, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET account_type = excluded.account_type, updated_at = excluded.updated_at`),
		userID, string(accountType), toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("set account type: %w", err)
	}
	return nil
}
