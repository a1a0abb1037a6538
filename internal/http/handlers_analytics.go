package http

import (
	"fmt"
	"net/http"

	"fintrack/internal/services"
)

const maxAnalyticsMonths = 120

// handleAnalytics serves ?wallet=&months=&top= for the session's account context.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	query := services.SummaryQuery{WalletID: q.Get("wallet")}
	if query.Months, err = queryInt(q, "months"); err != nil {
		writeError(w, r, err)
		return
	}
	if query.Months > maxAnalyticsMonths {
		writeError(w, r, fmt.Errorf("%w: months must be at most %d", errBadRequest, maxAnalyticsMonths))
		return
	}
	if query.TopN, err = queryInt(q, "top"); err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := s.analytics.Summary(r.Context(), sess, query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
