package http

import (
	"net/http"

	"fintrack/internal/core"
)

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	wallets, err := s.store.ListWallets(r.Context(), sess.UserID, sess.AccountType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallets": wallets})
}

// handleCreateWallet creates a wallet in the session's account context. The
// first wallet of a context becomes the active one.
func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
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

	wallet := core.Wallet{
		UserID:      sess.UserID,
		AccountType: sess.AccountType,
		Name:        p.Get("name"),
	}
	if v := p.Get("openingBalance"); v != "" {
		cents, err := core.ParseDecimalToCents(v)
		if err != nil {
			writeError(w, r, err)
			return
		}
		wallet.OpeningBalance = core.Money{Cents: cents}
	}

	created, err := s.store.CreateWallet(r.Context(), wallet)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleActivateWallet(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	wallet, err := s.store.SetActiveWallet(r.Context(), sess.UserID, sess.AccountType, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}
