package sheets

import (
	"testing"
	"time"

	"fintrack/internal/core"
)

func TestRow(t *testing.T) {
	tx := core.Transaction{
		ID:              "tx-7",
		AccountType:     core.Family,
		Kind:            core.Income,
		Amount:          core.Money{Cents: 250000},
		Category:        "Salary",
		Description:     "March",
		TransactionDate: time.Date(2024, 3, 31, 23, 30, 0, 0, time.FixedZone("CET", 3600)),
	}
	row := Row(tx, core.Wallet{Name: "Joint"})

	if len(row) != len(Header) {
		t.Fatalf("row has %d columns, header %d", len(row), len(Header))
	}
	want := []any{"2024-03-31", "income", "Salary", "", "March", "2500.00", "Joint", "family", "tx-7"}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("column %v = %v, want %v", Header[i], row[i], want[i])
		}
	}

	tx.Kind = core.Expense
	if got := Row(tx, core.Wallet{})[5]; got != "-2500.00" {
		t.Errorf("expense amount = %v, want -2500.00", got)
	}
}
