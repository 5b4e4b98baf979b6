package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimize", func(r chi.Router) {
		r.Post("/min-variance", h.HandleMinVariance)
		r.Post("/frontier", h.HandleFrontier)
		r.Post("/risk-parity", h.HandleRiskParity)
		r.Post("/black-litterman", h.HandleBlackLitterman)
		r.Post("/summary", h.HandleSummary)
	})
}
