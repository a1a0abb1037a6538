package services

import (
	"context"
	"log/slog"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/ingest"
	"fintrack/internal/log"
	"fintrack/internal/session"
)

// TransactionRecorded describes a transaction that has just been committed.
type TransactionRecorded struct {
	Session     session.Session
	Source      ingest.Source
	Transaction core.Transaction
	Wallet      core.Wallet
}

// Subscriber is told about every recorded transaction. Returning an error
// never undoes the write; it is only logged.
type Subscriber interface {
	TransactionRecorded(ctx context.Context, ev TransactionRecorded) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, ev TransactionRecorded) error

func (f SubscriberFunc) TransactionRecorded(ctx context.Context, ev TransactionRecorded) error {
	return f(ctx, ev)
}

// Subscribers is an explicit list of observers, owned by whoever wires the
// services together.
type Subscribers struct {
	mu   sync.RWMutex
	subs []namedSubscriber
}

type namedSubscriber struct {
	name string
	sub  Subscriber
}

func (s *Subscribers) Add(name string, sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, namedSubscriber{name: name, sub: sub})
}

func (s *Subscribers) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Notify calls every subscriber in registration order and returns how many failed.
func (s *Subscribers) Notify(ctx context.Context, ev TransactionRecorded) int {
	s.mu.RLock()
	subs := append([]namedSubscriber(nil), s.subs...)
	s.mu.RUnlock()

	failed := 0
	for _, ns := range subs {
		if err := ns.sub.TransactionRecorded(ctx, ev); err != nil {
			failed++
			slog.ErrorContext(ctx, "Transaction subscriber failed",
				log.FieldComponent, log.ComponentLedger,
				"subscriber", ns.name,
				log.FieldTransactionID, ev.Transaction.ID,
				log.FieldError, err)
		}
	}
	return failed
}
