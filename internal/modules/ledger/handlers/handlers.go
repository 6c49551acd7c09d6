// Package handlers provides HTTP handlers for ledger inspection.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/ballast/internal/modules/ledger"
)

// Handler handles ledger HTTP requests
type Handler struct {
	ledger *ledger.Ledger
	log    zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(ledg *ledger.Ledger, log zerolog.Logger) *Handler {
	return &Handler{
		ledger: ledg,
		log:    log.With().Str("handler", "ledger").Logger(),
	}
}

// HandleGetState returns the derived state for one (portfolio, symbol) key
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	symbol := chi.URLParam(r, "symbol")

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id": portfolioID,
		"symbol":       symbol,
		"position":     h.ledger.CurrentPosition(portfolioID, symbol),
		"reserved":     h.ledger.Reserved(portfolioID, symbol),
		"free_float":   h.ledger.FreeFloat(portfolioID, symbol),
		"projected":    h.ledger.ProjectedPosition(portfolioID, symbol),
	})
}

// HandleGetEntries returns recent ledger entries for one key, in append order
func (h *Handler) HandleGetEntries(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	symbol := chi.URLParam(r, "symbol")

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	entries := h.ledger.Entries(portfolioID, symbol, limit)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id": portfolioID,
		"symbol":       symbol,
		"entries":      entries,
		"count":        len(entries),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
