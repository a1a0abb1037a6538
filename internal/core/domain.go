package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Personal AccountType = "personal"
	Family   AccountType = "family"
	Business AccountType = "business"
)

const (
	Expense Kind = "expense"
	Income  Kind = "income"
)

// DefaultCategory is assigned when a capture carries no usable category.
const DefaultCategory = "Other"

// MaxDescriptionLen bounds a transaction description, in characters.
const MaxDescriptionLen = 500

// DefaultCategories is the category list offered to clients.
var DefaultCategories = []string{
	"Food & Dining",
	"Transportation",
	"Shopping",
	"Bills & Utilities",
	"Entertainment",
	"Health",
	"Education",
	DefaultCategory,
}

type (
	// AccountType partitions a user's wallets, transactions and analytics.
	AccountType string

	// Kind tells whether a transaction takes money out of a wallet or puts it in.
	Kind string

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID              string      `json:"id"`
		UserID          string      `json:"userId"`
		AccountType     AccountType `json:"accountType"`
		WalletID        string      `json:"walletId"`
		Kind            Kind        `json:"kind"`
		Amount          Money       `json:"amount"` // magnitude as captured; see BalanceDelta
		Category        string      `json:"category"`
		Place           string      `json:"place"`
		Description     string      `json:"description"`
		TransactionDate time.Time   `json:"transactionDate"`
		CreatedAt       time.Time   `json:"createdAt"`
	}

	Wallet struct {
		ID             string      `json:"id"`
		UserID         string      `json:"userId"`
		AccountType    AccountType `json:"accountType"`
		Name           string      `json:"name"`
		Balance        Money       `json:"balance"`
		OpeningBalance Money       `json:"openingBalance"`
		IsActive       bool        `json:"isActive"`
		CreatedAt      time.Time   `json:"createdAt"`
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrInvalidKind        = errors.New("invalid transaction kind")
	ErrEmptyUser          = errors.New("empty user id")
	ErrEmptyCategory      = errors.New("empty category")
	ErrEmptyName          = errors.New("empty wallet name")
	ErrZeroDate           = errors.New("transaction date cannot be zero")
	ErrTooLong            = errors.New("value too long")
)

// ParseAccountType accepts the three known account contexts, case-insensitively.
func ParseAccountType(s string) (AccountType, error) {
	at := AccountType(strings.ToLower(strings.TrimSpace(s)))
	if !at.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccountType, s)
	}
	return at, nil
}

func (a AccountType) Valid() bool {
	switch a {
	case Personal, Family, Business:
		return true
	}
	return false
}

func (a AccountType) String() string { return string(a) }

func (k Kind) Valid() bool {
	return k == Expense || k == Income
}

// BalanceDelta is the signed change this transaction applies to its wallet.
// Expenses are captured as positive amounts and decrease the balance.
func (t Transaction) BalanceDelta() Money {
	if t.Kind == Income {
		return t.Amount
	}
	return Money{Cents: -t.Amount.Cents}
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if !t.AccountType.Valid() {
		return ErrInvalidAccountType
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if t.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if t.TransactionDate.IsZero() {
		return ErrZeroDate
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLen {
		return fmt.Errorf("%w: description is limited to %d characters", ErrTooLong, MaxDescriptionLen)
	}
	return nil
}

func (w Wallet) Validate() error {
	if strings.TrimSpace(w.UserID) == "" {
		return ErrEmptyUser
	}
	if !w.AccountType.Valid() {
		return ErrInvalidAccountType
	}
	if strings.TrimSpace(w.Name) == "" {
		return ErrEmptyName
	}
	if len(w.Name) > 100 {
		return fmt.Errorf("%w: wallet name is limited to 100 characters", ErrTooLong)
	}
	return nil
}
