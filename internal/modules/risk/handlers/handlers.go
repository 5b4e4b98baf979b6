// Package handlers provides HTTP handlers for covariance estimation.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/modules/calculations"
	"github.com/quantfolio/quantfolio/internal/modules/returns"
	"github.com/quantfolio/quantfolio/internal/modules/risk"
	"github.com/quantfolio/quantfolio/internal/services"
)

// Handler handles risk estimation HTTP requests
type Handler struct {
	datasets  *services.DatasetService
	estimator *risk.Estimator
	cache     *calculations.Cache
	log       zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(
	datasets *services.DatasetService,
	estimator *risk.Estimator,
	cache *calculations.Cache,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		datasets:  datasets,
		estimator: estimator,
		cache:     cache,
		log:       log.With().Str("handler", "risk").Logger(),
	}
}

type covarianceRequest struct {
	services.DatasetRequest
	Method    risk.Method `json:"method"`
	Annualize bool        `json:"annualize"`
	Halflife  int         `json:"halflife,omitempty"`
}

type covarianceResponse struct {
	Assets      []string         `json:"assets" msgpack:"assets"`
	Matrix      [][]float64      `json:"matrix" msgpack:"matrix"`
	Method      risk.Method      `json:"method" msgpack:"method"`
	Shrinkage   float64          `json:"shrinkage,omitempty" msgpack:"shrinkage"`
	Ridged      bool             `json:"ridged" msgpack:"ridged"`
	Diagnostics risk.Diagnostics `json:"diagnostics" msgpack:"diagnostics"`
}

// HandleCovariance handles POST /api/risk/covariance
func (h *Handler) HandleCovariance(w http.ResponseWriter, r *http.Request) {
	var req covarianceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cacheKey := cacheKeyFor("covariance", req)
	var cached covarianceResponse
	if hit, err := h.cache.Get(cacheKey, &cached); err == nil && hit {
		h.writeData(w, cached, map[string]interface{}{"cached": true})
		return
	}

	rm, err := h.datasets.Resolve(req.DatasetRequest)
	if err != nil {
		h.writeDatasetError(w, err)
		return
	}

	cov, err := h.estimator.Estimate(rm, risk.Options{
		Method:    req.Method,
		Annualize: req.Annualize,
		Halflife:  req.Halflife,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Covariance estimation failed")
		status := http.StatusInternalServerError
		if errors.Is(err, returns.ErrInsufficientData) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}

	resp := covarianceResponse{
		Assets:      cov.Assets,
		Matrix:      cov.Rows(),
		Method:      cov.Method,
		Shrinkage:   cov.Shrinkage,
		Ridged:      cov.Ridged,
		Diagnostics: risk.Diagnose(cov),
	}
	if err := h.cache.Set(cacheKey, resp); err != nil {
		h.log.Warn().Err(err).Msg("Failed to cache covariance result")
	}

	h.writeData(w, resp, nil)
}

// HandleCompare handles POST /api/risk/compare
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	var req covarianceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rm, err := h.datasets.Resolve(req.DatasetRequest)
	if err != nil {
		h.writeDatasetError(w, err)
		return
	}

	cmp, err := h.estimator.Compare(rm, risk.Options{
		Annualize: req.Annualize,
		Halflife:  req.Halflife,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Estimator comparison failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeData(w, cmp, nil)
}

func cacheKeyFor(operation string, req interface{}) string {
	blob, err := json.Marshal(req)
	if err != nil {
		return calculations.Key(operation, "unkeyed")
	}
	return calculations.Key(operation, string(blob))
}

func (h *Handler) writeDatasetError(w http.ResponseWriter, err error) {
	h.log.Warn().Err(err).Msg("Failed to resolve dataset")
	status := http.StatusBadRequest
	if errors.Is(err, returns.ErrInsufficientData) {
		status = http.StatusUnprocessableEntity
	}
	http.Error(w, err.Error(), status)
}

func (h *Handler) writeData(w http.ResponseWriter, data interface{}, extraMeta map[string]interface{}) {
	metadata := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
	for k, v := range extraMeta {
		metadata[k] = v
	}
	response := map[string]interface{}{
		"data":     data,
		"metadata": metadata,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
