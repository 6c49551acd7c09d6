// Package handlers provides HTTP handlers for risk controls.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/ballast/internal/modules/risk"
)

// Handler handles risk HTTP requests
type Handler struct {
	breaker *risk.CircuitBreaker
	log     zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(breaker *risk.CircuitBreaker, log zerolog.Logger) *Handler {
	return &Handler{
		breaker: breaker,
		log:     log.With().Str("handler", "risk").Logger(),
	}
}

// HandleGetBreakerStatus returns the breaker state for one portfolio
func (h *Handler) HandleGetBreakerStatus(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	h.writeJSON(w, http.StatusOK, h.breaker.StatusFor(portfolioID))
}

// HandleResetBreaker clears the breaker for one portfolio ahead of its cooldown.
// Operator action: the breaker trips automatically, it only resets by hand or
// by timeout.
func (h *Handler) HandleResetBreaker(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	h.breaker.Reset(portfolioID)
	h.log.Info().Str("portfolio", portfolioID).Msg("Circuit breaker reset via API")

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":       "ok",
		"portfolio_id": portfolioID,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
