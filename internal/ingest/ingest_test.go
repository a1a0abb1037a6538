package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

var fixedNow = time.Date(2024, time.May, 17, 9, 30, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(WithClock(func() time.Time { return fixedNow }))
}

func TestNormalize_MalformedExtraction(t *testing.T) {
	raw, err := DecodeRaw([]byte(`{"amount": null, "place": "Cafe", "date": "not-a-date", "items": ["espresso", {"name": "croissant"}]}`))
	require.NoError(t, err)

	d := newTestNormalizer().Normalize(context.Background(), SourceReceipt, raw)

	assert.Equal(t, int64(0), d.Amount.Cents)
	assert.Equal(t, core.DefaultCategory, d.Category)
	assert.Equal(t, "Cafe", d.Place)
	assert.Equal(t, fixedNow, d.TransactionDate)
	assert.Equal(t, "espresso, croissant", d.Description)
	assert.Equal(t, core.Expense, d.Kind)
	assert.ElementsMatch(t, []string{FieldAmount, FieldCategory, FieldDescription, FieldDate}, d.Defaulted)
	assert.False(t, d.WasDefaulted(FieldPlace))
}

func TestNormalize_EmptyObject(t *testing.T) {
	raw, err := DecodeRaw([]byte(`{}`))
	require.NoError(t, err)

	d := newTestNormalizer().Normalize(context.Background(), SourceVoice, raw)

	assert.Equal(t, int64(0), d.Amount.Cents)
	assert.Equal(t, "Other", d.Category)
	assert.Equal(t, "", d.Place)
	assert.Equal(t, "", d.Description)
	assert.False(t, d.TransactionDate.IsZero())
	assert.Len(t, d.Defaulted, 5)

	tx := d.Transaction("user-1", core.Personal, "w1")
	assert.NoError(t, tx.Validate())
}

func TestNormalize_Amounts(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCents int64
		wantKind  core.Kind
		defaulted bool
	}{
		{name: "number", body: `{"amount": 12.5}`, wantCents: 1250, wantKind: core.Expense},
		{name: "integer", body: `{"amount": 40}`, wantCents: 4000, wantKind: core.Expense},
		{name: "numeric string", body: `{"amount": "7.99"}`, wantCents: 799, wantKind: core.Expense},
		{name: "currency symbol and comma", body: `{"amount": "€ 12,50"}`, wantCents: 1250, wantKind: core.Expense},
		{name: "thousands separator", body: `{"amount": "1,234.56"}`, wantCents: 123456, wantKind: core.Expense},
		{name: "european thousands", body: `{"amount": "1.234,56"}`, wantCents: 123456, wantKind: core.Expense},
		{name: "lone comma groups thousands", body: `{"amount": "1,234"}`, wantCents: 123400, wantKind: core.Expense},
		{name: "currency and lone comma", body: `{"amount": "$1,234"}`, wantCents: 123400, wantKind: core.Expense},
		{name: "repeated commas", body: `{"amount": "1,234,567"}`, wantCents: 123456700, wantKind: core.Expense},
		{name: "repeated dots", body: `{"amount": "1.234.567"}`, wantCents: 123456700, wantKind: core.Expense},
		{name: "decimal number keeps its dot", body: `{"amount": 1.234}`, wantCents: 123, wantKind: core.Expense},
		{name: "exponent number", body: `{"amount": 1.5e2}`, wantCents: 15000, wantKind: core.Expense},
		{name: "overflowing number", body: `{"amount": 1e30}`, wantCents: 0, wantKind: core.Expense, defaulted: true},
		{name: "overflowing negative number", body: `{"amount": -1e30}`, wantCents: 0, wantKind: core.Expense, defaulted: true},
		{name: "overflowing string", body: `{"amount": "1e30"}`, wantCents: 0, wantKind: core.Expense, defaulted: true},
		{name: "negative becomes income", body: `{"amount": -20}`, wantCents: 2000, wantKind: core.Income},
		{name: "explicit income type", body: `{"amount": 20, "type": "Income"}`, wantCents: 2000, wantKind: core.Income},
		{name: "total alias", body: `{"total": "3.10"}`, wantCents: 310, wantKind: core.Expense},
		{name: "garbage string", body: `{"amount": "lots"}`, wantCents: 0, wantKind: core.Expense, defaulted: true},
		{name: "object", body: `{"amount": {"value": 3}}`, wantCents: 0, wantKind: core.Expense, defaulted: true},
		{name: "boolean", body: `{"amount": true}`, wantCents: 0, wantKind: core.Expense, defaulted: true},
	}
	n := newTestNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := DecodeRaw([]byte(tt.body))
			require.NoError(t, err)
			d := n.Normalize(context.Background(), SourceVoice, raw)
			assert.Equal(t, tt.wantCents, d.Amount.Cents)
			assert.Equal(t, tt.wantKind, d.Kind)
			assert.Equal(t, tt.defaulted, d.WasDefaulted(FieldAmount))
		})
	}
}

func TestNormalize_LooseTypes(t *testing.T) {
	raw, err := DecodeRaw([]byte(`{"amount": 5, "category": "  food & DINING ", "place": 42, "description": ["x"], "merchant": "ignored", "items": "not a list"}`))
	require.NoError(t, err)

	d := newTestNormalizer().Normalize(context.Background(), SourceVoice, raw)
	assert.Equal(t, "Food & Dining", d.Category)
	assert.Equal(t, "42", d.Place)
	assert.Equal(t, "", d.Description)
	assert.Empty(t, d.Items)
}

func TestNormalize_LongDescriptionIsCapped(t *testing.T) {
	items := make([]string, 80)
	for i := range items {
		items[i] = fmt.Sprintf("receipt line item %02d", i)
	}
	body, err := json.Marshal(map[string]any{"amount": 9.5, "place": "Market", "items": items})
	require.NoError(t, err)
	raw, err := DecodeRaw(body)
	require.NoError(t, err)

	d := newTestNormalizer().Normalize(context.Background(), SourceReceipt, raw)
	assert.Equal(t, core.MaxDescriptionLen, utf8.RuneCountInString(d.Description))
	assert.True(t, strings.HasPrefix(d.Description, "receipt line item 00, receipt line item 01"))
	assert.True(t, d.WasDefaulted(FieldDescription))
	assert.Len(t, d.Items, 80)
	assert.NoError(t, d.Transaction("user-1", core.Personal, "w1").Validate())

	extracted := strings.Repeat("è", core.MaxDescriptionLen+20)
	body, err = json.Marshal(map[string]any{"amount": 1, "description": extracted})
	require.NoError(t, err)
	raw, err = DecodeRaw(body)
	require.NoError(t, err)

	d = newTestNormalizer().Normalize(context.Background(), SourceVoice, raw)
	assert.Equal(t, strings.Repeat("è", core.MaxDescriptionLen), d.Description)
	assert.True(t, utf8.ValidString(d.Description))
	assert.True(t, d.WasDefaulted(FieldDescription))
	assert.NoError(t, d.Transaction("user-1", core.Personal, "w1").Validate())
}

func TestNormalize_MerchantFallback(t *testing.T) {
	raw, err := DecodeRaw([]byte(`{"amount": 5, "merchant": "Corner Shop"}`))
	require.NoError(t, err)
	assert.Equal(t, LooseString("Corner Shop"), raw.Place)
}

func TestDecodeRaw_NotObject(t *testing.T) {
	for _, body := range []string{``, `[]`, `"text"`, `{broken`, `null`} {
		_, err := DecodeRaw([]byte(body))
		assert.ErrorIs(t, err, ErrNotObject, "body %q", body)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-05T14:20:00Z", time.Date(2024, 3, 5, 14, 20, 0, 0, time.UTC), true},
		{"2024-03-05T14:20:00", time.Date(2024, 3, 5, 14, 20, 0, 0, time.UTC), true},
		{"05/03/2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"12/31/2024", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), true},
		{"Mar 5, 2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"5 March 2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"not-a-date", time.Time{}, false},
		{"", time.Time{}, false},
		{"0001-01-01", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in, time.UTC)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %v", got)
			}
		})
	}
}

func TestValidateManual(t *testing.T) {
	tests := []struct {
		name    string
		form    ManualForm
		invalid []string
	}{
		{name: "complete", form: ManualForm{Amount: "12.30", Category: "Food", Place: "Bakery"}},
		{name: "all required missing", form: ManualForm{}, invalid: []string{FieldAmount, FieldCategory, FieldPlace}},
		{name: "non numeric amount", form: ManualForm{Amount: "abc", Category: "Food", Place: "x"}, invalid: []string{FieldAmount}},
		{name: "zero amount", form: ManualForm{Amount: "0", Category: "Food", Place: "x"}, invalid: []string{FieldAmount}},
		{name: "bad date", form: ManualForm{Amount: "1", Category: "Food", Place: "x", Date: "someday"}, invalid: []string{FieldDate}},
		{name: "bad kind", form: ManualForm{Amount: "1", Category: "Food", Place: "x", Kind: "transfer"}, invalid: []string{"kind"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateManual(tt.form)
			if len(tt.invalid) == 0 {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Len(t, verr.Problems, len(tt.invalid))
			for _, f := range tt.invalid {
				assert.Contains(t, verr.Problems, f)
			}
		})
	}
}

func TestNormalizeManual(t *testing.T) {
	n := newTestNormalizer()

	d, err := n.NormalizeManual(context.Background(), ManualForm{
		Amount:   "12,345",
		Category: "transportation",
		Place:    " Station ",
		Date:     "2024-02-29",
		WalletID: "w-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1235), d.Amount.Cents)
	assert.Equal(t, core.Expense, d.Kind)
	assert.Equal(t, "Transportation", d.Category)
	assert.Equal(t, "Station", d.Place)
	assert.Equal(t, "w-1", d.WalletID)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d.TransactionDate)
	assert.Equal(t, SourceManual, d.Source)

	d, err = n.NormalizeManual(context.Background(), ManualForm{Amount: "100", Kind: "income", Category: "Salary", Place: "Employer"})
	require.NoError(t, err)
	assert.Equal(t, core.Income, d.Kind)
	assert.Equal(t, fixedNow, d.TransactionDate)
	assert.True(t, d.WasDefaulted(FieldDate))

	_, err = n.NormalizeManual(context.Background(), ManualForm{Amount: "5"})
	assert.ErrorIs(t, err, ErrValidation)
}
