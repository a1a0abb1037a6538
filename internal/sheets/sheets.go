// Package sheets exports recorded transactions to a spreadsheet.
package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Exporter appends one transaction as a row and returns a reference to it.
type Exporter interface {
	AppendTransaction(ctx context.Context, t core.Transaction, w core.Wallet) (rowRef string, err error)
}

// Header is the column layout written by Row.
var Header = []any{"Date", "Type", "Category", "Place", "Description", "Amount", "Wallet", "Account", "Transaction ID"}

// Row lays a transaction out in Header order. The amount is the signed
// balance change so a column sum equals the wallet's net movement.
func Row(t core.Transaction, w core.Wallet) []any {
	return []any{
		t.TransactionDate.UTC().Format("2006-01-02"),
		string(t.Kind),
		t.Category,
		t.Place,
		t.Description,
		t.BalanceDelta().String(),
		w.Name,
		string(t.AccountType),
		t.ID,
	}
}
