package calibration_test

import (
	"bytes"
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/npusim/calibration"
	"github.com/sarchlab/npusim/timing/latency"
)

// With the default model at dim 16 every token of a short session costs the
// same: 43, 29, 19 and 16 cycles at k_tile 2, 4, 8 and 16.
var rawCPT = map[int]float64{2: 43, 4: 29, 8: 19, 16: 16}

func observedAs(f func(pred float64) float64) calibration.StaticGroundTruth {
	s := calibration.StaticGroundTruth{}
	for k, p := range rawCPT {
		s[k] = calibration.Counters{PerfCycles: uint64(f(p) * 6), PerfTokens: 6}
	}
	return s
}

var _ = Describe("Calibrator", func() {
	It("should predict with the identity calibration", func() {
		cfg := calibration.DefaultConfig()
		cfg.Perf = cfg.Perf.WithCalibration(3, 100)
		c := calibration.NewCalibrator(calibration.StaticGroundTruth{}, cfg)

		for k, want := range rawCPT {
			got, err := c.Predict(k)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want), "k_tile %d", k)
		}
	})

	It("should fit an affine ground truth", func() {
		truth := observedAs(func(p float64) float64 { return 2*p + 3 })
		c := calibration.NewCalibrator(truth, calibration.DefaultConfig())

		res, err := c.Run(context.Background(), nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Rows).To(HaveLen(4))
		Expect(res.Scale).To(BeNumerically("~", 2, 1e-9))
		Expect(res.Bias).To(BeNumerically("~", 3, 1e-9))
		Expect(res.MAERaw).To(BeNumerically("~", 29.75, 1e-9))
		Expect(res.MAECalibrated).To(BeNumerically("~", 0, 1e-9))
		Expect(res.ImprovementPct).To(BeNumerically("~", 100, 1e-6))
		Expect(res.Fallback).To(BeFalse())

		for _, row := range res.Rows {
			Expect(row.AbsErrCalibrated).To(BeNumerically("<=", row.AbsErrRaw))
		}
	})

	It("should degenerate to identity for a single tiling width", func() {
		truth := observedAs(func(p float64) float64 { return p + 4 })
		c := calibration.NewCalibrator(truth, calibration.DefaultConfig())

		res, err := c.Run(context.Background(), []int{16})

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Scale).To(Equal(1.0))
		Expect(res.Bias).To(Equal(0.0))
		Expect(res.MAERaw).To(Equal(4.0))
		Expect(res.MAECalibrated).To(Equal(4.0))
		Expect(res.ImprovementPct).To(Equal(0.0))
	})

	It("should degenerate to identity when predictions coincide", func() {
		truth := calibration.StaticGroundTruth{
			32: {PerfCycles: 120, PerfTokens: 6},
			16: {PerfCycles: 150, PerfTokens: 6},
		}
		c := calibration.NewCalibrator(truth, calibration.DefaultConfig())

		res, err := c.Run(context.Background(), []int{16, 32})

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Rows[0].PredictedRaw).To(Equal(res.Rows[1].PredictedRaw))
		Expect(res.Scale).To(Equal(1.0))
		Expect(res.Bias).To(Equal(0.0))
	})

	It("should keep identity when the fit increases absolute error", func() {
		truth := observedAs(func(p float64) float64 {
			if p == 16 {
				return 100
			}
			return p
		})
		c := calibration.NewCalibrator(truth, calibration.DefaultConfig())

		res, err := c.Run(context.Background(), nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Fallback).To(BeTrue())
		Expect(res.Scale).To(Equal(1.0))
		Expect(res.Bias).To(Equal(0.0))
		Expect(res.MAECalibrated).To(Equal(res.MAERaw))
		Expect(res.MAERaw).To(Equal(21.0))
	})

	It("should never report a fitted error above the raw error", func() {
		truth := observedAs(func(p float64) float64 { return p*p/10 + 7 })
		c := calibration.NewCalibrator(truth, calibration.DefaultConfig())

		res, err := c.Run(context.Background(), nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.MAECalibrated).To(BeNumerically("<=", res.MAERaw))
	})

	It("should stop on ground-truth failure", func() {
		c := calibration.NewCalibrator(calibration.StaticGroundTruth{}, calibration.DefaultConfig())

		_, err := c.Run(context.Background(), []int{4})

		Expect(err).To(HaveOccurred())
	})

	It("should stop on a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c := calibration.NewCalibrator(observedAs(func(p float64) float64 { return p }),
			calibration.DefaultConfig())

		_, err := c.Run(ctx, nil)

		Expect(err).To(MatchError(context.Canceled))
	})

	It("should apply the fitted pair to a config", func() {
		res := &calibration.Result{Scale: 1.5, Bias: 0.5}
		base := latency.DefaultPerfConfig()

		applied := res.Apply(base)

		Expect(applied.CalibScale).To(Equal(1.5))
		Expect(applied.CalibBias).To(Equal(0.5))
		Expect(applied.KTile).To(Equal(base.KTile))
		Expect(base.CalibScale).To(Equal(1.0))
	})

	It("should print rows and summary", func() {
		truth := observedAs(func(p float64) float64 { return p + 1 })
		c := calibration.NewCalibrator(truth, calibration.DefaultConfig())
		res, err := c.Run(context.Background(), []int{2, 16})
		Expect(err).NotTo(HaveOccurred())

		var buf bytes.Buffer
		res.PrintCSV(&buf)
		Expect(buf.String()).To(ContainSubstring("2,44.000000,43.000000,44.000000,1.000000,0.000000"))

		buf.Reset()
		res.PrintSummary(&buf)
		Expect(buf.String()).To(ContainSubstring("Cycle Model Calibration"))
	})
})
