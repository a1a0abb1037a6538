// Package session carries the authenticated user and the selected account
// context through a request. A Session is resolved once by middleware and
// passed explicitly to services; nothing reads identity from globals.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

const (
	// HeaderUserID is set by the upstream authentication proxy.
	HeaderUserID = "X-User-ID"
	// HeaderAccountType lets a client override the stored selection per request.
	HeaderAccountType = "X-Account-Type"
)

var ErrNoSession = errors.New("no authenticated user")

type Session struct {
	UserID      string
	AccountType core.AccountType
}

// Preferences reads the account context a user last selected. A user with no
// stored selection yields an empty AccountType and a nil error.
type Preferences interface {
	GetAccountType(ctx context.Context, userID string) (core.AccountType, error)
}

type contextKey struct{}

func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}

// Resolve builds the session of r. The account type comes from the header
// when valid, else from the stored preference, else personal.
func Resolve(r *http.Request, prefs Preferences) (Session, error) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		return Session{}, ErrNoSession
	}
	s := Session{UserID: userID, AccountType: core.Personal}

	if h := r.Header.Get(HeaderAccountType); h != "" {
		at, err := core.ParseAccountType(h)
		if err != nil {
			return Session{}, err
		}
		s.AccountType = at
		return s, nil
	}

	if prefs != nil {
		at, err := prefs.GetAccountType(r.Context(), userID)
		switch {
		case err == nil && at.Valid():
			s.AccountType = at
		case err != nil:
			slog.WarnContext(r.Context(), "Account preference lookup failed, using personal",
				log.FieldComponent, log.ComponentHTTP,
				log.FieldUserID, userID,
				log.FieldError, err)
		}
	}
	return s, nil
}

// Middleware resolves the session of every request and stores it in the
// request context. Requests without a user are rejected with 401 unless
// public reports true for them.
func Middleware(prefs Preferences, public func(*http.Request) bool, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public != nil && public(r) {
				next.ServeHTTP(w, r)
				return
			}
			s, err := Resolve(r, prefs)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), s)))
		})
	}
}
