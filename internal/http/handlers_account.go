package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

type accountResponse struct {
	UserID       string             `json:"userId"`
	AccountType  core.AccountType   `json:"accountType"`
	AccountTypes []core.AccountType `json:"accountTypes"`
}

var accountTypes = []core.AccountType{core.Personal, core.Family, core.Business}

func handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": core.DefaultCategories})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		UserID:       sess.UserID,
		AccountType:  sess.AccountType,
		AccountTypes: accountTypes,
	})
}

// handleSetAccount stores the account context used when a request carries
// no account-type header.
func (s *Server) handleSetAccount(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, err)
		return
	}
	raw := p.Get("accountType")
	if raw == "" {
		raw = p.Get("account_type")
	}
	at, err := core.ParseAccountType(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.SetAccountType(r.Context(), sess.UserID, at); err != nil {
		writeError(w, r, fmt.Errorf("save account type: %w", err))
		return
	}

	slog.InfoContext(r.Context(), "Account type selected",
		log.FieldComponent, log.ComponentHTTP,
		log.FieldUserID, sess.UserID,
		log.FieldAccountType, string(at))

	writeJSON(w, http.StatusOK, accountResponse{
		UserID:       sess.UserID,
		AccountType:  at,
		AccountTypes: accountTypes,
	})
}
