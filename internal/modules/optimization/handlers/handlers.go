// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/modules/optimization"
	"github.com/quantfolio/quantfolio/internal/modules/returns"
	"github.com/quantfolio/quantfolio/internal/modules/risk"
	"github.com/quantfolio/quantfolio/internal/modules/runs"
	"github.com/quantfolio/quantfolio/internal/services"
)

// Handler handles optimization HTTP requests
type Handler struct {
	datasets  *services.DatasetService
	estimator *risk.Estimator
	optimizer *optimization.Optimizer
	runs      *runs.Repository
	log       zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(
	datasets *services.DatasetService,
	estimator *risk.Estimator,
	optimizer *optimization.Optimizer,
	runsRepo *runs.Repository,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		datasets:  datasets,
		estimator: estimator,
		optimizer: optimizer,
		runs:      runsRepo,
		log:       log.With().Str("handler", "optimization").Logger(),
	}
}

type optimizeRequest struct {
	services.DatasetRequest
	Method      risk.Method              `json:"method,omitempty"`
	Halflife    int                      `json:"halflife,omitempty"`
	ReturnModel string                   `json:"return_model,omitempty"` // historical or momentum
	Constraints optimization.Constraints `json:"constraints"`
	PrevWeights []float64                `json:"prev_weights,omitempty"`
	Points      int                      `json:"points,omitempty"`
	CostBps     float64                  `json:"cost_bps,omitempty"`
	Target      *float64                 `json:"target_return,omitempty"`
	Budgets     []float64                `json:"budgets,omitempty"`
	Views       []optimization.View      `json:"views,omitempty"`
	Tau         float64                  `json:"tau,omitempty"`
}

// prepare resolves the dataset and estimates the annualized covariance and
// expected returns shared by every optimization endpoint.
func (h *Handler) prepare(req *optimizeRequest) (*risk.Covariance, []float64, error) {
	rm, err := h.datasets.Resolve(req.DatasetRequest)
	if err != nil {
		return nil, nil, err
	}

	cov, err := h.estimator.Estimate(rm, risk.Options{
		Method:    req.Method,
		Annualize: true,
		Halflife:  req.Halflife,
	})
	if err != nil {
		return nil, nil, err
	}

	var mu []float64
	if req.ReturnModel == "momentum" {
		mu, err = optimization.MomentumReturns(rm, 0, 0)
		if err != nil {
			return nil, nil, err
		}
	} else {
		mu = optimization.HistoricalMeanReturns(rm, 0)
	}

	if req.Constraints.MinWeight == 0 && req.Constraints.MaxWeight == 0 {
		req.Constraints = optimization.DefaultConstraints()
	}
	return cov, mu, nil
}

// HandleMinVariance handles POST /api/optimize/min-variance
func (h *Handler) HandleMinVariance(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cov, mu, err := h.prepare(&req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var portfolio *optimization.Portfolio
	if req.Target != nil {
		portfolio, err = h.optimizer.TargetReturn(cov, mu, *req.Target, req.Constraints, req.PrevWeights, req.CostBps/10000.0)
	} else {
		portfolio, err = h.optimizer.MinVariance(cov, mu, req.Constraints, req.PrevWeights)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.respondWithRun(w, "min-variance", req, portfolio)
}

// HandleFrontier handles POST /api/optimize/frontier
func (h *Handler) HandleFrontier(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cov, mu, err := h.prepare(&req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	frontier, err := h.optimizer.EfficientFrontier(cov, mu, req.Constraints, optimization.FrontierOptions{
		Points:      req.Points,
		CostBps:     req.CostBps,
		PrevWeights: req.PrevWeights,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.respondWithRun(w, "frontier", req, frontier)
}

// HandleRiskParity handles POST /api/optimize/risk-parity
func (h *Handler) HandleRiskParity(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cov, mu, err := h.prepare(&req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.optimizer.RiskParity(cov, mu, req.Budgets)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.respondWithRun(w, "risk-parity", req, result)
}

// HandleBlackLitterman handles POST /api/optimize/black-litterman
func (h *Handler) HandleBlackLitterman(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cov, mu, err := h.prepare(&req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	blended, err := h.optimizer.BlackLitterman(cov, mu, req.Views, req.Tau)
	if err != nil {
		h.writeError(w, err)
		return
	}

	portfolio, err := h.optimizer.MinVariance(cov, blended.PosteriorReturns, req.Constraints, req.PrevWeights)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result := map[string]interface{}{
		"blend":     blended,
		"portfolio": portfolio,
	}
	h.respondWithRun(w, "black-litterman", req, result)
}

// HandleSummary handles POST /api/optimize/summary
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cov, mu, err := h.prepare(&req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	summary, err := h.optimizer.Summarize(cov, mu, req.Constraints, optimization.FrontierOptions{
		Points:      req.Points,
		CostBps:     req.CostBps,
		PrevWeights: req.PrevWeights,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.respondWithRun(w, "summary", req, summary)
}

// respondWithRun persists the result and writes it with the run ID attached.
func (h *Handler) respondWithRun(w http.ResponseWriter, kind string, req optimizeRequest, result interface{}) {
	metadata := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if runID, err := h.runs.Save(kind, req, result); err != nil {
		h.log.Warn().Err(err).Str("kind", kind).Msg("Failed to persist run")
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
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, optimization.ErrInvalidConstraint):
		status = http.StatusBadRequest
	case errors.Is(err, returns.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Optimization request failed")
	} else {
		h.log.Warn().Err(err).Msg("Rejected optimization request")
	}
	http.Error(w, err.Error(), status)
}
