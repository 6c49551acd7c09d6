// Package handlers provides HTTP handlers for order execution.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/ballast/internal/domain"
	"github.com/aristath/ballast/internal/modules/trading"
)

// Handler handles trading HTTP requests
type Handler struct {
	tradingService *trading.Service
	log            zerolog.Logger
}

// NewHandler creates a new trading handler
func NewHandler(tradingService *trading.Service, log zerolog.Logger) *Handler {
	return &Handler{
		tradingService: tradingService,
		log:            log.With().Str("handler", "trading").Logger(),
	}
}

type orderToPctRequest struct {
	PortfolioID    string  `json:"portfolio_id"`
	Symbol         string  `json:"symbol"`
	TargetFraction float64 `json:"target_fraction"`
}

// HandleOrderToPct executes one rebalance order toward a target fraction
func (h *Handler) HandleOrderToPct(w http.ResponseWriter, r *http.Request) {
	var req orderToPctRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PortfolioID == "" || req.Symbol == "" {
		h.writeError(w, http.StatusBadRequest, "portfolio_id and symbol are required")
		return
	}
	if req.TargetFraction < 0 || req.TargetFraction > 1 {
		h.writeError(w, http.StatusBadRequest, "target_fraction out of range [0, 1]")
		return
	}

	outcome, err := h.tradingService.OrderToPct(r.Context(), req.PortfolioID, req.Symbol, req.TargetFraction)
	if err != nil {
		h.writeError(w, guardStatus(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, outcome)
}

// guardStatus maps the orchestrator's error taxonomy onto HTTP statuses.
// Guard rejections are the caller's problem; broker and ledger failures are
// ours.
func guardStatus(err error) int {
	var (
		circuitErr  *domain.CircuitOpenError
		riskErr     *domain.RiskViolationError
		notionalErr *domain.NotionalGuardError
		priceErr    *domain.PriceGuardError
	)
	switch {
	case errors.As(err, &circuitErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &riskErr), errors.As(err, &notionalErr), errors.As(err, &priceErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBrokerThrottled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
