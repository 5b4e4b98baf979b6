// Package handlers provides HTTP handlers for rebalancing backtests.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/modules/backtest"
	"github.com/quantfolio/quantfolio/internal/modules/returns"
	"github.com/quantfolio/quantfolio/internal/modules/runs"
	"github.com/quantfolio/quantfolio/internal/services"
)

// Handler handles backtest HTTP requests
type Handler struct {
	datasets  *services.DatasetService
	simulator *backtest.Simulator
	runs      *runs.Repository
	log       zerolog.Logger
}

// NewHandler creates a new backtest handler
func NewHandler(
	datasets *services.DatasetService,
	simulator *backtest.Simulator,
	runsRepo *runs.Repository,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		datasets:  datasets,
		simulator: simulator,
		runs:      runsRepo,
		log:       log.With().Str("handler", "backtest").Logger(),
	}
}

// RegisterRoutes registers all backtest routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/backtest", func(r chi.Router) {
		r.Post("/rebalance", h.HandleRebalance)
	})
}

type rebalanceRequest struct {
	services.DatasetRequest
	backtest.Params
}

// HandleRebalance handles POST /api/backtest/rebalance
func (h *Handler) HandleRebalance(w http.ResponseWriter, r *http.Request) {
	var req rebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rm, err := h.datasets.Resolve(req.DatasetRequest)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.simulator.Run(rm, req.Params)
	if err != nil {
		h.writeError(w, err)
		return
	}

	metadata := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if runID, err := h.runs.Save("backtest", req, result); err != nil {
		h.log.Warn().Err(err).Msg("Failed to persist run")
	} else {
		metadata["run_id"] = runID
	}

	response := map[string]interface{}{
		"data":     result,
		"metadata": metadata,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, returns.ErrInsufficientData) {
		status = http.StatusUnprocessableEntity
	}
	h.log.Warn().Err(err).Msg("Rejected backtest request")
	http.Error(w, err.Error(), status)
}
