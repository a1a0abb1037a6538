// Package analytics derives spending summaries from transaction lists.
//
// Every function is pure: the caller scopes the input (user, account type,
// wallet, date range) and the result is recomputed on each call.
//
// Amounts are integer cents, so a non-numeric amount cannot reach these
// functions and is rejected earlier by the ingest package. Dates are checked
// here: a transaction with a zero date is left out of the month buckets and
// a warning is logged.
package analytics

import (
	"log/slog"
	"sort"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// DefaultTopN is used when TopCategories is asked for a non-positive count.
const DefaultTopN = 5

// MonthLayout is the label format of a month bucket, e.g. "Mar 2024".
const MonthLayout = "Jan 2006"

// GroupByCategory sums amounts per exact category string, largest first.
// Categories with equal totals keep the order in which they were first seen.
func GroupByCategory(txns []core.Transaction) []core.CategoryBreakdown {
	out := make([]core.CategoryBreakdown, 0)
	index := make(map[string]int)
	for _, t := range txns {
		i, ok := index[t.Category]
		if !ok {
			i = len(out)
			index[t.Category] = i
			out = append(out, core.CategoryBreakdown{Category: t.Category})
		}
		out[i].Amount = out[i].Amount.Add(t.Amount)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Amount.Cents > out[b].Amount.Cents
	})
	return out
}

// GroupByMonth sums amounts per calendar month in chronological order.
// Labels compare lexically in the wrong order ("Dec 2024" > "Jan 2025"), so
// buckets are ordered by their first-of-month date instead.
func GroupByMonth(txns []core.Transaction) []core.MonthlySpending {
	type bucket struct {
		start  time.Time
		amount core.Money
	}
	buckets := make(map[string]*bucket)
	skipped := 0
	for _, t := range txns {
		if t.TransactionDate.IsZero() {
			skipped++
			slog.Warn("Transaction without a date excluded from monthly spending",
				log.FieldComponent, log.ComponentAnalytics,
				log.FieldTransactionID, t.ID,
				log.FieldAmountCents, t.Amount.Cents)
			continue
		}
		d := t.TransactionDate
		key := d.Format(MonthLayout)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{start: time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())}
			buckets[key] = b
		}
		b.amount = b.amount.Add(t.Amount)
	}

	out := make([]core.MonthlySpending, 0, len(buckets))
	for key, b := range buckets {
		out = append(out, core.MonthlySpending{Month: key, Amount: b.amount})
	}
	sort.Slice(out, func(i, j int) bool {
		return buckets[out[i].Month].start.Before(buckets[out[j].Month].start)
	})
	if skipped > 0 {
		slog.Debug("Monthly grouping finished with exclusions",
			log.FieldComponent, log.ComponentAnalytics,
			"excluded", skipped,
			"buckets", len(out))
	}
	return out
}

// TotalSpent is the sum of every amount; zero for no transactions.
func TotalSpent(txns []core.Transaction) core.Money {
	var total core.Money
	for _, t := range txns {
		total = total.Add(t.Amount)
	}
	return total
}

// AverageSpent is the mean amount in currency units; zero for no transactions.
func AverageSpent(txns []core.Transaction) float64 {
	if len(txns) == 0 {
		return 0
	}
	return TotalSpent(txns).Units() / float64(len(txns))
}

// TopCategories returns at most n entries of GroupByCategory.
func TopCategories(txns []core.Transaction, n int) []core.CategoryBreakdown {
	if n <= 0 {
		n = DefaultTopN
	}
	all := GroupByCategory(txns)
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Summarize computes every summary over the same input.
func Summarize(txns []core.Transaction, topN int) core.AnalyticsSummary {
	byCategory := GroupByCategory(txns)
	if topN <= 0 {
		topN = DefaultTopN
	}
	top := byCategory
	if len(top) > topN {
		top = top[:topN]
	}
	return core.AnalyticsSummary{
		CategoryBreakdown: byCategory,
		MonthlySpending:   GroupByMonth(txns),
		TotalSpent:        TotalSpent(txns),
		AverageSpent:      AverageSpent(txns),
		TopCategories:     append([]core.CategoryBreakdown(nil), top...),
		Count:             len(txns),
	}
}
