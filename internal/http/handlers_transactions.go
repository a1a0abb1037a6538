package http

import (
	"fmt"
	"net/http"

	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// handleListTransactions serves ?wallet=&from=&to=&q=&category=&sort=&order=&limit=
// where from is inclusive and to exclusive. q searches place, category and
// description; sort is date or amount, order asc or desc.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	query := services.ListQuery{
		WalletID: q.Get("wallet"),
		Search:   sanitizeInput(q.Get("q")),
		Category: sanitizeInput(q.Get("category")),
	}
	if query.From, err = queryDate(q, "from"); err != nil {
		writeError(w, r, err)
		return
	}
	if query.To, err = queryDate(q, "to"); err != nil {
		writeError(w, r, err)
		return
	}
	if query.Limit, err = queryInt(q, "limit"); err != nil {
		writeError(w, r, err)
		return
	}
	if query.SortBy, err = storage.ParseTransactionSort(q.Get("sort")); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if query.Desc, err = queryOrder(q, "order"); err != nil {
		writeError(w, r, err)
		return
	}

	txns, err := s.transactions.List(r.Context(), sess, query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

// handleCreateTransaction records a manual entry or a confirmed capture
// draft. Both arrive as the same form and are validated the same way.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
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

	rec, err := s.transactions.RecordManual(r.Context(), sess, p.ManualForm())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}
