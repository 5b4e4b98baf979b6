package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/modules/history"
	"github.com/quantfolio/quantfolio/internal/modules/optimization"
	"github.com/quantfolio/quantfolio/internal/modules/returns"
	"github.com/quantfolio/quantfolio/internal/modules/risk"
	"github.com/quantfolio/quantfolio/internal/modules/runs"
	"github.com/quantfolio/quantfolio/internal/modules/walkforward"
)

// Revalidation window defaults, in trading days.
const (
	revalidateTrainWindow = 252
	revalidateTestWindow  = 63
)

// RevalidateJob re-runs walk-forward validation over all stored tickers so
// the latest degradation score reflects new price history. Results are
// persisted as runs under the "walkforward" kind.
type RevalidateJob struct {
	history    *history.Repository
	estimator  *risk.Estimator
	optimizer  *optimization.Optimizer
	validator  *walkforward.Validator
	runs       *runs.Repository
	lookback   int
	thresholds walkforward.Thresholds
	log        zerolog.Logger
}

// NewRevalidateJob creates a nightly revalidation job.
func NewRevalidateJob(
	historyRepo *history.Repository,
	estimator *risk.Estimator,
	optimizer *optimization.Optimizer,
	validator *walkforward.Validator,
	runsRepo *runs.Repository,
	lookback int,
	thresholds walkforward.Thresholds,
	log zerolog.Logger,
) *RevalidateJob {
	return &RevalidateJob{
		history:    historyRepo,
		estimator:  estimator,
		optimizer:  optimizer,
		validator:  validator,
		runs:       runsRepo,
		lookback:   lookback,
		thresholds: thresholds,
		log:        log.With().Str("job", "revalidate").Logger(),
	}
}

// Name returns the job name.
func (j *RevalidateJob) Name() string {
	return "revalidate"
}

// Run executes the revalidation pass.
func (j *RevalidateJob) Run() error {
	tickers, err := j.history.Tickers()
	if err != nil {
		return fmt.Errorf("failed to list tickers: %w", err)
	}
	if len(tickers) < 2 {
		j.log.Info().Int("tickers", len(tickers)).Msg("Not enough tickers to revalidate")
		return nil
	}

	rm, err := j.history.ReturnMatrix(tickers, j.lookback)
	if err != nil {
		return fmt.Errorf("failed to build return matrix: %w", err)
	}

	params := walkforward.Params{
		TrainWindow: revalidateTrainWindow,
		TestWindow:  revalidateTestWindow,
		Stride:      walkforward.StrideMonthly,
		Refit:       true,
		Thresholds:  j.thresholds,
	}

	report, err := j.validator.Run(rm, params, j.refitWeights)
	if err != nil {
		return fmt.Errorf("walk-forward revalidation failed: %w", err)
	}

	request := map[string]interface{}{
		"tickers":  tickers,
		"lookback": j.lookback,
		"params":   params,
		"source":   "scheduler",
	}
	runID, err := j.runs.Save("walkforward", request, report)
	if err != nil {
		return fmt.Errorf("failed to persist revalidation run: %w", err)
	}

	j.log.Info().
		Str("run_id", runID).
		Int("tickers", len(tickers)).
		Int("windows", len(report.Windows)).
		Float64("degradation", report.Degradation).
		Str("level", report.DegradationLevel).
		Msg("Revalidation completed")

	return nil
}

func (j *RevalidateJob) refitWeights(train *returns.Matrix) ([]float64, error) {
	cov, err := j.estimator.Estimate(train, risk.Options{Method: risk.MethodShrinkage, Annualize: true})
	if err != nil {
		return nil, err
	}
	portfolio, err := j.optimizer.MinVariance(cov, nil, optimization.DefaultConstraints(), nil)
	if err != nil {
		return nil, err
	}
	return portfolio.Weights, nil
}
