// Package walkforward measures how an allocation holds up out of sample by
// rolling a train/test split through return history and comparing in-sample
// statistics against the test windows that follow them.
package walkforward

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantfolio/quantfolio/internal/modules/metrics"
	"github.com/quantfolio/quantfolio/internal/modules/returns"
	"github.com/quantfolio/quantfolio/pkg/formulas"
)

// Stride is the spacing between consecutive window starts, in periods.
type Stride string

const (
	StrideDaily     Stride = "daily"
	StrideWeekly    Stride = "weekly"
	StrideMonthly   Stride = "monthly"
	StrideQuarterly Stride = "quarterly"
)

// strideLengths maps strides to trading-period counts.
var strideLengths = map[Stride]int{
	StrideDaily:     1,
	StrideWeekly:    5,
	StrideMonthly:   21,
	StrideQuarterly: 63,
}

// Thresholds bucket the degradation score. Defaults follow
// DefaultThresholds when zero.
type Thresholds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// DefaultThresholds classifies degradation below 0.10 as low and at or
// above 0.30 as high.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.10, High: 0.30}
}

// Params configures a walk-forward run.
type Params struct {
	TrainWindow int        `json:"train_window"`
	TestWindow  int        `json:"test_window"`
	Stride      Stride     `json:"stride"`
	Weights     []float64  `json:"weights"`
	Refit       bool       `json:"refit"`
	Thresholds  Thresholds `json:"thresholds"`
}

// WeightFunc produces the allocation to hold over a test window, given the
// training slice that precedes it. Used for refitting; a nil WeightFunc
// holds Params.Weights throughout.
type WeightFunc func(train *returns.Matrix) ([]float64, error)

// Stats summarizes one window side.
type Stats struct {
	AnnualizedReturn float64 `json:"annualized_return"`
	AnnualizedVol    float64 `json:"annualized_volatility"`
	Sharpe           float64 `json:"sharpe"`
}

// Window is one train/test evaluation.
type Window struct {
	Index      int       `json:"index"`
	TrainStart int       `json:"train_start"`
	TrainEnd   int       `json:"train_end"`
	TestStart  int       `json:"test_start"`
	TestEnd    int       `json:"test_end"`
	Weights    []float64 `json:"weights"`
	Train      Stats     `json:"train"`
	Test       Stats     `json:"test"`
}

// Report is the full validation result. Degradation is the relative drop
// from average annualized train return to average annualized test return;
// OutOfSample pools every test window's returns into one series.
type Report struct {
	Windows          []Window        `json:"windows"`
	AvgTrainReturn   float64         `json:"avg_train_return"`
	AvgTestReturn    float64         `json:"avg_test_return"`
	AvgTrainSharpe   float64         `json:"avg_train_sharpe"`
	AvgTestSharpe    float64         `json:"avg_test_sharpe"`
	Degradation      float64         `json:"degradation"`
	DegradationLevel string          `json:"degradation_level"`
	Interpretation   string          `json:"interpretation"`
	OutOfSample      metrics.Summary `json:"out_of_sample"`
}

// Validator runs walk-forward analyses.
type Validator struct {
	log zerolog.Logger
}

// NewValidator creates a walk-forward validator.
func NewValidator(log zerolog.Logger) *Validator {
	return &Validator{
		log: log.With().Str("component", "walkforward_validator").Logger(),
	}
}

// Run rolls the train/test split through the matrix. Windows are evaluated
// in parallel; inputs are immutable across workers. Too little history for
// a single window fails fast with ErrInsufficientData.
func (v *Validator) Run(rm *returns.Matrix, params Params, weightFn WeightFunc) (*Report, error) {
	if params.TrainWindow <= 1 || params.TestWindow <= 0 {
		return nil, fmt.Errorf("train window %d and test window %d must be positive", params.TrainWindow, params.TestWindow)
	}
	stride, ok := strideLengths[params.Stride]
	if !ok {
		return nil, fmt.Errorf("unknown stride: %s", params.Stride)
	}
	if weightFn == nil {
		if len(params.Weights) != rm.N() {
			return nil, fmt.Errorf("weights have length %d, want %d", len(params.Weights), rm.N())
		}
		fixed := append([]float64(nil), params.Weights...)
		weightFn = func(*returns.Matrix) ([]float64, error) { return fixed, nil }
	}
	if params.Thresholds.Low <= 0 && params.Thresholds.High <= 0 {
		params.Thresholds = DefaultThresholds()
	}

	n := rm.T()
	if params.TrainWindow+params.TestWindow > n {
		return nil, fmt.Errorf("%w: need %d periods for one window, have %d",
			returns.ErrInsufficientData, params.TrainWindow+params.TestWindow, n)
	}

	var starts []int
	for i := params.TrainWindow; i+params.TestWindow <= n; i += stride {
		starts = append(starts, i)
	}
	if len(starts) == 0 {
		return nil, fmt.Errorf("%w: no complete walk-forward windows", returns.ErrInsufficientData)
	}

	windows := make([]Window, len(starts))
	var g errgroup.Group
	for wi, start := range starts {
		wi, start := wi, start
		g.Go(func() error {
			train, err := rm.Slice(start-params.TrainWindow, start)
			if err != nil {
				return err
			}
			test, err := rm.Slice(start, start+params.TestWindow)
			if err != nil {
				return err
			}

			weights, err := weightFn(train)
			if err != nil {
				return fmt.Errorf("refitting window %d: %w", wi, err)
			}

			trainSeries, err := train.PortfolioSeries(weights)
			if err != nil {
				return err
			}
			testSeries, err := test.PortfolioSeries(weights)
			if err != nil {
				return err
			}

			windows[wi] = Window{
				Index:      wi,
				TrainStart: start - params.TrainWindow,
				TrainEnd:   start,
				TestStart:  start,
				TestEnd:    start + params.TestWindow,
				Weights:    weights,
				Train:      seriesStats(trainSeries),
				Test:       seriesStats(testSeries),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Windows: windows}
	var pooled []float64
	for _, w := range windows {
		report.AvgTrainReturn += w.Train.AnnualizedReturn
		report.AvgTestReturn += w.Test.AnnualizedReturn
		report.AvgTrainSharpe += w.Train.Sharpe
		report.AvgTestSharpe += w.Test.Sharpe
	}
	count := float64(len(windows))
	report.AvgTrainReturn /= count
	report.AvgTestReturn /= count
	report.AvgTrainSharpe /= count
	report.AvgTestSharpe /= count

	for _, w := range windows {
		test, _ := rm.Slice(w.TestStart, w.TestEnd)
		series, err := test.PortfolioSeries(w.Weights)
		if err != nil {
			return nil, err
		}
		pooled = append(pooled, series...)
	}
	report.OutOfSample = metrics.Compute(pooled, metrics.Options{})

	report.Degradation = degradation(report.AvgTrainReturn, report.AvgTestReturn)
	report.DegradationLevel = classify(report.Degradation, params.Thresholds)
	report.Interpretation = interpret(report)

	v.log.Info().
		Int("windows", len(windows)).
		Float64("degradation", report.Degradation).
		Str("level", report.DegradationLevel).
		Msg("Completed walk-forward validation")

	return report, nil
}

// seriesStats annualizes a periodic return series.
func seriesStats(series []float64) Stats {
	s := Stats{
		AnnualizedReturn: formulas.Mean(series) * formulas.TradingDaysPerYear,
		AnnualizedVol:    formulas.AnnualizedVolatility(series, formulas.TradingDaysPerYear),
	}
	if s.AnnualizedVol > 1e-10 {
		s.Sharpe = s.AnnualizedReturn / s.AnnualizedVol
	}
	return s
}

// degradation measures the relative drop from in-sample to out-of-sample
// performance. Zero train performance yields zero rather than a blowup.
func degradation(train, test float64) float64 {
	if train == 0 {
		return 0
	}
	return (train - test) / math.Abs(train)
}

func classify(d float64, t Thresholds) string {
	switch {
	case d < t.Low:
		return "low"
	case d < t.High:
		return "medium"
	default:
		return "high"
	}
}

func interpret(r *Report) string {
	switch r.DegradationLevel {
	case "low":
		return fmt.Sprintf("Out-of-sample performance holds up well: average test Sharpe %.2f vs train %.2f across %d windows.",
			r.AvgTestSharpe, r.AvgTrainSharpe, len(r.Windows))
	case "medium":
		return fmt.Sprintf("Moderate overfitting: performance degrades %.0f%% out of sample across %d windows. Consider simpler parameters.",
			r.Degradation*100, len(r.Windows))
	default:
		return fmt.Sprintf("Severe overfitting: performance degrades %.0f%% out of sample across %d windows. In-sample results are not trustworthy.",
			r.Degradation*100, len(r.Windows))
	}
}
