// Package metrics holds the Prometheus collectors of the simulator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokensGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npusim_tokens_generated_total",
		Help: "Tokens produced by decode sessions",
	}, []string{"backend"})

	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npusim_decode_errors_total",
		Help: "Failed decode sessions by error kind",
	}, []string{"backend", "kind"})

	SessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "npusim_session_duration_seconds",
		Help:    "Wall time of decode sessions",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend"})

	EstimatedCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "npusim_estimated_cycles_total",
		Help: "Cycles accumulated by the hardware-proxy estimator",
	})

	StallCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npusim_stall_cycles_total",
		Help: "Estimated stall cycles by direction",
	}, []string{"direction"})

	CyclesPerToken = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "npusim_cycles_per_token",
		Help:    "Estimated cycles of individual decode tokens",
		Buckets: prometheus.ExponentialBuckets(16, 2, 14),
	})

	KVCacheOccupancy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "npusim_kv_cache_positions",
		Help: "Positions held in the most recently written KV cache",
	})

	DSETrials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "npusim_dse_trials_total",
		Help: "Design-space trials by outcome",
	}, []string{"status"})

	CalibrationScale = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "npusim_calibration_scale",
		Help: "Fitted calibration scale",
	})

	CalibrationBias = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "npusim_calibration_bias",
		Help: "Fitted calibration bias",
	})

	CalibrationMAE = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "npusim_calibration_mae_cycles",
		Help: "Mean absolute cycles-per-token error before and after calibration",
	}, []string{"stage"})
)

func RecordSession(backend string, tokens int, duration time.Duration) {
	TokensGenerated.WithLabelValues(backend).Add(float64(tokens))
	SessionDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

func RecordDecodeError(backend, kind string) {
	DecodeErrors.WithLabelValues(backend, kind).Inc()
}

// RecordTokenCost accounts one estimated token.
func RecordTokenCost(total, stallIn, stallOut int) {
	EstimatedCycles.Add(float64(total))
	CyclesPerToken.Observe(float64(total))
	if stallIn > 0 {
		StallCycles.WithLabelValues("in").Add(float64(stallIn))
	}
	if stallOut > 0 {
		StallCycles.WithLabelValues("out").Add(float64(stallOut))
	}
}

func RecordKVCache(used int) {
	KVCacheOccupancy.Set(float64(used))
}

func RecordTrial(status string) {
	DSETrials.WithLabelValues(status).Inc()
}

func RecordCalibration(scale, bias, maeRaw, maeCalibrated float64) {
	CalibrationScale.Set(scale)
	CalibrationBias.Set(bias)
	CalibrationMAE.WithLabelValues("raw").Set(maeRaw)
	CalibrationMAE.WithLabelValues("calibrated").Set(maeCalibrated)
}

// WriteTextfile writes every registered collector to path in the text
// exposition format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
