// Package ingest turns raw captures into well-formed transaction drafts.
//
// It is the only place that defaults missing or malformed capture fields.
// Whatever the capture path (manual form, receipt analysis, voice
// transcription), a Draft always carries a numeric amount, a non-empty
// category, a non-nil place and description, and a real date.
package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

type Source string

const (
	SourceManual  Source = "manual"
	SourceReceipt Source = "receipt"
	SourceVoice   Source = "voice"
)

func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceReceipt, SourceVoice:
		return true
	}
	return false
}

// Field names reported in Draft.Defaulted.
const (
	FieldAmount      = "amount"
	FieldCategory    = "category"
	FieldPlace       = "place"
	FieldDescription = "description"
	FieldDate        = "date"
)

// Draft is a normalized capture awaiting confirmation and persistence.
type Draft struct {
	Source          Source     `json:"source"`
	Kind            core.Kind  `json:"kind"`
	Amount          core.Money `json:"amount"`
	Category        string     `json:"category"`
	Place           string     `json:"place"`
	Description     string     `json:"description"`
	TransactionDate time.Time  `json:"transactionDate"`
	Items           []string   `json:"items,omitempty"`
	Defaulted       []string   `json:"defaulted,omitempty"`
	Transcript      string     `json:"transcript,omitempty"`
	WalletID        string     `json:"walletId,omitempty"`
}

// Transaction builds the record to persist for the given owner.
func (d Draft) Transaction(userID string, accountType core.AccountType, walletID string) core.Transaction {
	if walletID == "" {
		walletID = d.WalletID
	}
	return core.Transaction{
		UserID:          userID,
		AccountType:     accountType,
		WalletID:        walletID,
		Kind:            d.Kind,
		Amount:          d.Amount,
		Category:        d.Category,
		Place:           d.Place,
		Description:     d.Description,
		TransactionDate: d.TransactionDate,
	}
}

// WasDefaulted reports whether field was filled in by the normalizer.
func (d Draft) WasDefaulted(field string) bool {
	for _, f := range d.Defaulted {
		if f == field {
			return true
		}
	}
	return false
}

type Normalizer struct {
	now      func() time.Time
	location *time.Location
}

type Option func(*Normalizer)

// WithClock replaces time.Now, which dates captures that carry no usable date.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithLocation sets the zone used for dates given without one. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) { n.location = loc }
}

func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now, location: time.UTC}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize applies the defaulting policy to raw. It never fails.
func (n *Normalizer) Normalize(ctx context.Context, source Source, raw Raw) Draft {
	d := Draft{Source: source, Kind: core.Expense}

	cents, ok := parseAmount(raw.Amount)
	if !ok {
		d.Defaulted = append(d.Defaulted, FieldAmount)
	}
	if cents < 0 {
		d.Kind = core.Income
		cents = -cents
	}
	d.Amount = core.Money{Cents: cents}
	if k := core.Kind(strings.ToLower(string(raw.Kind))); k.Valid() {
		d.Kind = k
	}

	d.Category = CanonicalCategory(string(raw.Category))
	if d.Category == "" {
		d.Category = core.DefaultCategory
		d.Defaulted = append(d.Defaulted, FieldCategory)
	}

	d.Place = string(raw.Place)
	if d.Place == "" {
		d.Defaulted = append(d.Defaulted, FieldPlace)
	}

	for _, it := range raw.Items {
		if it.Name != "" {
			d.Items = append(d.Items, it.Name)
		}
	}
	d.Description = string(raw.Description)
	if d.Description == "" {
		d.Description = strings.Join(d.Items, ", ")
		d.Defaulted = append(d.Defaulted, FieldDescription)
	}
	if desc, cut := truncateRunes(d.Description, core.MaxDescriptionLen); cut {
		d.Description = desc
		if !d.WasDefaulted(FieldDescription) {
			d.Defaulted = append(d.Defaulted, FieldDescription)
		}
	}

	if t, ok := ParseDate(string(raw.Date), n.location); ok {
		d.TransactionDate = t
	} else {
		d.TransactionDate = n.now().In(n.location)
		d.Defaulted = append(d.Defaulted, FieldDate)
	}

	if len(d.Defaulted) > 0 {
		slog.WarnContext(ctx, "Capture fields defaulted during normalization",
			log.FieldComponent, log.ComponentIngest,
			log.FieldSource, string(source),
			"defaulted", strings.Join(d.Defaulted, ","))
	}
	return d
}

// truncateRunes cuts s to at most n runes. The second result reports a cut.
func truncateRunes(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}

// CanonicalCategory trims s and maps a case-insensitive match of a default
// category onto its canonical spelling. Unknown categories are kept as given.
func CanonicalCategory(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for _, c := range core.DefaultCategories {
		if strings.EqualFold(c, s) {
			return c
		}
	}
	return s
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// ParseDate tries the layouts the extraction service and clients produce.
// Slash dates are read day-first; month-first is tried only when day-first
// is impossible (e.g. 12/31/2024).
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil && t.Year() >= 1900 {
			return t, true
		}
	}
	return time.Time{}, false
}
