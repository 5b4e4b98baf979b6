// Package handlers provides HTTP handlers for walk-forward validation.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/modules/optimization"
	"github.com/quantfolio/quantfolio/internal/modules/returns"
	"github.com/quantfolio/quantfolio/internal/modules/risk"
	"github.com/quantfolio/quantfolio/internal/modules/runs"
	"github.com/quantfolio/quantfolio/internal/modules/walkforward"
	"github.com/quantfolio/quantfolio/internal/services"
)

// Handler handles walk-forward validation HTTP requests
type Handler struct {
	datasets   *services.DatasetService
	validator  *walkforward.Validator
	estimator  *risk.Estimator
	optimizer  *optimization.Optimizer
	runs       *runs.Repository
	thresholds walkforward.Thresholds
	log        zerolog.Logger
}

// NewHandler creates a new walk-forward handler. thresholds are the
// service-wide degradation buckets applied when a request omits its own.
func NewHandler(
	datasets *services.DatasetService,
	validator *walkforward.Validator,
	estimator *risk.Estimator,
	optimizer *optimization.Optimizer,
	runsRepo *runs.Repository,
	thresholds walkforward.Thresholds,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		datasets:   datasets,
		validator:  validator,
		estimator:  estimator,
		optimizer:  optimizer,
		runs:       runsRepo,
		thresholds: thresholds,
		log:        log.With().Str("handler", "walkforward").Logger(),
	}
}

// RegisterRoutes registers all walk-forward routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/validate", func(r chi.Router) {
		r.Post("/walk-forward", h.HandleWalkForward)
	})
}

type walkForwardRequest struct {
	services.DatasetRequest
	walkforward.Params
	Method risk.Method `json:"method,omitempty"`
}

// HandleWalkForward handles POST /api/validate/walk-forward
func (h *Handler) HandleWalkForward(w http.ResponseWriter, r *http.Request) {
	var req walkForwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rm, err := h.datasets.Resolve(req.DatasetRequest)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if req.Thresholds == (walkforward.Thresholds{}) {
		req.Thresholds = h.thresholds
	}

	var weightFn walkforward.WeightFunc
	if req.Refit {
		weightFn = h.minVarianceRefit(req.Method)
	}

	report, err := h.validator.Run(rm, req.Params, weightFn)
	if err != nil {
		h.writeError(w, err)
		return
	}

	metadata := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if runID, err := h.runs.Save("walkforward", req, report); err != nil {
		h.log.Warn().Err(err).Msg("Failed to persist run")
	} else {
		metadata["run_id"] = runID
	}

	response := map[string]interface{}{
		"data":     report,
		"metadata": metadata,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// minVarianceRefit re-optimizes a minimum variance allocation on each
// training window.
func (h *Handler) minVarianceRefit(method risk.Method) walkforward.WeightFunc {
	return func(train *returns.Matrix) ([]float64, error) {
		cov, err := h.estimator.Estimate(train, risk.Options{Method: method, Annualize: true})
		if err != nil {
			return nil, err
		}
		portfolio, err := h.optimizer.MinVariance(cov, nil, optimization.DefaultConstraints(), nil)
		if err != nil {
			return nil, err
		}
		return portfolio.Weights, nil
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, returns.ErrInsufficientData) {
		status = http.StatusUnprocessableEntity
	}
	h.log.Warn().Err(err).Msg("Rejected walk-forward request")
	http.Error(w, err.Error(), status)
}
