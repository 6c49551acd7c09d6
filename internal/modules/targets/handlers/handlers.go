// Package handlers provides HTTP handlers for allocation target management.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/ballast/internal/modules/targets"
)

// Handler handles allocation target HTTP requests
type Handler struct {
	repo *targets.Repository
	log  zerolog.Logger
}

// NewHandler creates a new targets handler
func NewHandler(repo *targets.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "targets").Logger(),
	}
}

// HandleGetAll returns every allocation target
func (h *Handler) HandleGetAll(w http.ResponseWriter, r *http.Request) {
	all, err := h.repo.GetAll()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"targets": all,
		"count":   len(all),
	})
}

// HandleGetPortfolio returns the allocation targets for one portfolio
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	portfolioTargets, err := h.repo.GetByPortfolio(portfolioID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id": portfolioID,
		"targets":      portfolioTargets,
	})
}

type setTargetRequest struct {
	Symbol   string  `json:"symbol"`
	Fraction float64 `json:"fraction"`
}

// HandleSetTarget creates or updates one allocation target
func (h *Handler) HandleSetTarget(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	var req setTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Symbol == "" {
		h.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	if err := h.repo.Set(portfolioID, req.Symbol, req.Fraction); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"portfolio_id": portfolioID,
		"symbol":       req.Symbol,
		"fraction":     req.Fraction,
	})
}

// HandleDeleteTarget removes one allocation target
func (h *Handler) HandleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	symbol := chi.URLParam(r, "symbol")

	if err := h.repo.Delete(portfolioID, symbol); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
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
