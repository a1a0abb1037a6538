package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"fintrack/internal/core"
)

// ManualForm is a transaction typed in by the user.
type ManualForm struct {
	Amount      string `json:"amount"`
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	Place       string `json:"place"`
	Description string `json:"description"`
	Date        string `json:"date"`
	WalletID    string `json:"walletId"`
}

var ErrValidation = errors.New("validation failed")

// ValidationError lists every problem with a form so the user can fix them at once.
type ValidationError struct {
	Problems map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, f := range []string{FieldAmount, FieldCategory, FieldPlace, FieldDate, "kind", FieldDescription} {
		if msg, ok := e.Problems[f]; ok {
			parts = append(parts, f+": "+msg)
		}
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ValidateManual checks the fields a manual entry must carry: amount,
// category and place. Date and description are optional.
func ValidateManual(f ManualForm) error {
	problems := make(map[string]string)
	if strings.TrimSpace(f.Amount) == "" {
		problems[FieldAmount] = "required"
	} else if cents, err := core.ParseDecimalToCents(f.Amount); err != nil {
		problems[FieldAmount] = "must be a decimal number"
	} else if cents == 0 {
		problems[FieldAmount] = "must not be zero"
	}
	if strings.TrimSpace(f.Category) == "" {
		problems[FieldCategory] = "required"
	}
	if strings.TrimSpace(f.Place) == "" {
		problems[FieldPlace] = "required"
	}
	if k := strings.TrimSpace(f.Kind); k != "" && !core.Kind(strings.ToLower(k)).Valid() {
		problems["kind"] = "must be expense or income"
	}
	if d := strings.TrimSpace(f.Date); d != "" {
		if _, ok := ParseDate(d, nil); !ok {
			problems[FieldDate] = "unrecognized date"
		}
	}
	if utf8.RuneCountInString(f.Description) > core.MaxDescriptionLen {
		problems[FieldDescription] = fmt.Sprintf("too long (max %d characters)", core.MaxDescriptionLen)
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// NormalizeManual validates a form and converts it to a draft. The date
// defaults to now when left empty.
func (n *Normalizer) NormalizeManual(ctx context.Context, f ManualForm) (Draft, error) {
	if err := ValidateManual(f); err != nil {
		return Draft{}, err
	}
	cents, _ := core.ParseDecimalToCents(f.Amount)
	kind := core.Expense
	if cents < 0 {
		kind = core.Income
		cents = -cents
	}
	if k := core.Kind(strings.ToLower(strings.TrimSpace(f.Kind))); k.Valid() {
		kind = k
	}

	d := Draft{
		Source:      SourceManual,
		Kind:        kind,
		Amount:      core.Money{Cents: cents},
		Category:    CanonicalCategory(f.Category),
		Place:       strings.TrimSpace(f.Place),
		Description: strings.TrimSpace(f.Description),
		WalletID:    strings.TrimSpace(f.WalletID),
	}
	if t, ok := ParseDate(f.Date, n.location); ok {
		d.TransactionDate = t
	} else {
		d.TransactionDate = n.now().In(n.location)
		d.Defaulted = append(d.Defaulted, FieldDate)
	}
	if d.Description == "" {
		d.Defaulted = append(d.Defaulted, FieldDescription)
	}
	return d, nil
}
