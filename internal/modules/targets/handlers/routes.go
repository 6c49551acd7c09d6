package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all allocation target routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/targets", func(r chi.Router) {
		r.Get("/", h.HandleGetAll)
		r.Get("/{portfolioID}", h.HandleGetPortfolio)
		r.Post("/{portfolioID}", h.HandleSetTarget)
		r.Delete("/{portfolioID}/{symbol}", h.HandleDeleteTarget)
	})
}
