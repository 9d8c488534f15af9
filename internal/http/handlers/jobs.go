package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"onecam/internal/domain"
)

const maxJobsLimit = 100

// Jobs lists the most recent ledger records.
func (a *App) Jobs(w http.ResponseWriter, r *http.Request) {
	if a.Ledger == nil {
		a.error(w, http.StatusServiceUnavailable, domain.ErrLedgerDisabled.Error())
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxJobsLimit)
	}

	items, err := a.Ledger.ListRecent(r.Context(), limit)
	if errors.Is(err, domain.ErrLedgerDisabled) {
		a.error(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Msg("list jobs failed")
		a.error(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if items == nil {
		items = []domain.JobRecord{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
