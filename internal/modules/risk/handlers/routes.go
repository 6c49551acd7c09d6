package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Get("/breaker/{portfolioID}", h.HandleGetBreakerStatus)
		r.Post("/breaker/{portfolioID}/reset", h.HandleResetBreaker)
	})
}
