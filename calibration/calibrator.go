package calibration

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/sarchlab/npusim/benchmarks"
	"github.com/sarchlab/npusim/emu"
	"github.com/sarchlab/npusim/internal/logger"
	"github.com/sarchlab/npusim/internal/metrics"
	"github.com/sarchlab/npusim/loader"
	"github.com/sarchlab/npusim/timing/latency"
)

// DefaultKTiles is the tiling sweep used when none is given.
var DefaultKTiles = []int{2, 4, 8, 16}

// Config holds the session shape used for both prediction and observation.
type Config struct {
	Dim       int
	MaxSeq    int
	PromptLen int
	GenLen    int
	Seed      int64

	// Perf supplies the non-calibration knobs of the cycle model. Its
	// calibration pair is ignored during prediction.
	Perf *latency.PerfConfig
}

// DefaultConfig returns the default calibration setup.
func DefaultConfig() Config {
	return Config{
		Dim:       emu.DefaultDim,
		MaxSeq:    emu.DefaultMaxSeq,
		PromptLen: 4,
		GenLen:    6,
		Seed:      loader.DefaultSeed,
		Perf:      latency.DefaultPerfConfig(),
	}
}

// Row is one tiling width of a calibration run.
type Row struct {
	KTile               int      `json:"cfg_k_tile"`
	Observed            Counters `json:"observed"`
	ObservedCPT         float64  `json:"observed_cycles_per_token"`
	PredictedRaw        float64  `json:"predicted_cycles_per_token_raw"`
	PredictedCalibrated float64  `json:"predicted_cycles_per_token_calibrated"`
	AbsErrRaw           float64  `json:"abs_err_raw"`
	AbsErrCalibrated    float64  `json:"abs_err_calibrated"`
}

// Result is the outcome of a calibration run.
type Result struct {
	Rows           []Row   `json:"rows"`
	Scale          float64 `json:"scale"`
	Bias           float64 `json:"bias"`
	MAERaw         float64 `json:"mae_raw"`
	MAECalibrated  float64 `json:"mae_calibrated"`
	ImprovementPct float64 `json:"improvement_pct"`

	// Fallback is set when the least-squares line had a larger absolute
	// error than the identity and the identity was kept.
	Fallback bool `json:"fallback"`
}

// Apply returns a copy of c carrying the fitted calibration pair.
func (r *Result) Apply(c *latency.PerfConfig) *latency.PerfConfig {
	if c == nil {
		c = latency.DefaultPerfConfig()
	}
	return c.WithCalibration(r.Scale, r.Bias)
}

// PrintCSV writes one line per tiling width.
func (r *Result) PrintCSV(w io.Writer) {
	_, _ = fmt.Fprintln(w,
		"cfg_k_tile,observed_cycles_per_token,predicted_cycles_per_token_raw,"+
			"predicted_cycles_per_token_calibrated,abs_err_raw,abs_err_calibrated")
	for _, row := range r.Rows {
		_, _ = fmt.Fprintf(w, "%d,%.6f,%.6f,%.6f,%.6f,%.6f\n",
			row.KTile,
			row.ObservedCPT,
			row.PredictedRaw,
			row.PredictedCalibrated,
			row.AbsErrRaw,
			row.AbsErrCalibrated,
		)
	}
}

// PrintSummary writes the fitted pair and the error improvement.
func (r *Result) PrintSummary(w io.Writer) {
	_, _ = fmt.Fprintln(w, "=== Cycle Model Calibration ===")
	_, _ = fmt.Fprintf(w, "  Scale:          %.6f\n", r.Scale)
	_, _ = fmt.Fprintf(w, "  Bias:           %.6f\n", r.Bias)
	_, _ = fmt.Fprintf(w, "  MAE (raw):      %.6f\n", r.MAERaw)
	_, _ = fmt.Fprintf(w, "  MAE (fitted):   %.6f\n", r.MAECalibrated)
	_, _ = fmt.Fprintf(w, "  Improvement:    %.2f%%\n", r.ImprovementPct)
	if r.Fallback {
		_, _ = fmt.Fprintln(w, "  Fit rejected, identity kept")
	}
}

// Calibrator pairs cycle-model predictions with ground-truth observations.
type Calibrator struct {
	config  Config
	truth   GroundTruth
	weights *loader.WeightSet
	log     *logger.Logger
}

// CalibratorOption configures a Calibrator.
type CalibratorOption func(*Calibrator)

// WithWeights replaces the synthetic weights used for prediction.
func WithWeights(ws *loader.WeightSet) CalibratorOption {
	return func(c *Calibrator) { c.weights = ws }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) CalibratorOption {
	return func(c *Calibrator) { c.log = l }
}

// NewCalibrator creates a calibrator that observes through truth.
func NewCalibrator(truth GroundTruth, config Config, opts ...CalibratorOption) *Calibrator {
	if config.Dim <= 0 {
		config.Dim = emu.DefaultDim
	}
	if config.Perf == nil {
		config.Perf = latency.DefaultPerfConfig()
	}

	c := &Calibrator{
		config: config,
		truth:  truth,
		log:    logger.Log,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.weights == nil {
		c.weights = loader.Synthetic(config.Dim, config.Seed)
	}
	return c
}

// Predict runs the hardware-proxy backend at kTile with the identity
// calibration and returns its cycles/token.
func (c *Calibrator) Predict(kTile int) (float64, error) {
	perf := c.config.Perf.WithCalibration(1, 0)
	perf.KTile = kTile

	m, err := benchmarks.Measure(c.weights, benchmarks.MeasureConfig{
		MaxSeq:    c.config.MaxSeq,
		PromptLen: c.config.PromptLen,
		GenLen:    c.config.GenLen,
		Perf:      perf,
	})
	if err != nil {
		return 0, fmt.Errorf("predict k_tile=%d: %w", kTile, err)
	}
	return m.CyclesPerToken, nil
}

// Run observes and predicts every tiling width in kTiles, then fits the
// correction. An empty kTiles uses DefaultKTiles.
func (c *Calibrator) Run(ctx context.Context, kTiles []int) (*Result, error) {
	if len(kTiles) == 0 {
		kTiles = DefaultKTiles
	}

	rows := make([]Row, 0, len(kTiles))
	predicted := make([]float64, 0, len(kTiles))
	observed := make([]float64, 0, len(kTiles))

	for _, k := range kTiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		obs, err := c.truth.Observe(ctx, Request{
			KTile:     k,
			PromptLen: c.config.PromptLen,
			GenLen:    c.config.GenLen,
		})
		if err != nil {
			return nil, err
		}
		if obs.PerfTokens == 0 {
			return nil, fmt.Errorf("ground truth k_tile=%d: %w", k, ErrMissingCounters)
		}

		pred, err := c.Predict(k)
		if err != nil {
			return nil, err
		}

		c.log.Info("calibration point",
			"k_tile", k, "observed_cpt", obs.CyclesPerToken(), "predicted_cpt", pred)

		rows = append(rows, Row{
			KTile:        k,
			Observed:     obs,
			ObservedCPT:  obs.CyclesPerToken(),
			PredictedRaw: pred,
		})
		predicted = append(predicted, pred)
		observed = append(observed, obs.CyclesPerToken())
	}

	res := &Result{Rows: rows}
	res.Scale, res.Bias = Fit(predicted, observed)
	res.MAERaw = MAE(predicted, observed, 1, 0)
	res.MAECalibrated = MAE(predicted, observed, res.Scale, res.Bias)

	if res.MAECalibrated > res.MAERaw {
		c.log.Warn("least-squares fit increases absolute error, keeping identity",
			"scale", res.Scale, "bias", res.Bias,
			"mae_raw", res.MAERaw, "mae_fitted", res.MAECalibrated)
		res.Scale, res.Bias = 1, 0
		res.MAECalibrated = res.MAERaw
		res.Fallback = true
	}

	for i := range res.Rows {
		row := &res.Rows[i]
		row.PredictedCalibrated = row.PredictedRaw*res.Scale + res.Bias
		row.AbsErrRaw = math.Abs(row.ObservedCPT - row.PredictedRaw)
		row.AbsErrCalibrated = math.Abs(row.ObservedCPT - row.PredictedCalibrated)
	}

	if res.MAERaw > 0 {
		res.ImprovementPct = (res.MAERaw - res.MAECalibrated) / res.MAERaw * 100
	}

	metrics.RecordCalibration(res.Scale, res.Bias, res.MAERaw, res.MAECalibrated)
	c.log.Info("calibration finished",
		"points", len(rows), "scale", res.Scale, "bias", res.Bias,
		"mae_raw", res.MAERaw, "mae_fitted", res.MAECalibrated)

	return res, nil
}
