package calibration_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/npusim/calibration"
)

var _ = Describe("Ground truth", func() {
	Context("ParseCounters", func() {
		It("should parse counter lines among other output", func() {
			c, err := calibration.ParseCounters([]byte(
				"VCD info: dumping\n  PERF_CYCLES=96\nPERF_TOKENS=6\n"))

			Expect(err).NotTo(HaveOccurred())
			Expect(c.PerfCycles).To(Equal(uint64(96)))
			Expect(c.PerfTokens).To(Equal(uint64(6)))
			Expect(c.CyclesPerToken()).To(Equal(16.0))
		})

		It("should report error status", func() {
			_, err := calibration.ParseCounters([]byte("ERROR_STATUS=1\n"))
			Expect(err).To(MatchError(calibration.ErrReportedError))
		})

		It("should report timeout", func() {
			_, err := calibration.ParseCounters([]byte("TIMEOUT=1\n"))
			Expect(err).To(MatchError(calibration.ErrReportedTimeout))
		})

		It("should reject missing counters", func() {
			_, err := calibration.ParseCounters([]byte("PERF_CYCLES=96\n"))
			Expect(err).To(MatchError(calibration.ErrMissingCounters))
		})

		It("should reject zero tokens", func() {
			_, err := calibration.ParseCounters([]byte("PERF_CYCLES=0\nPERF_TOKENS=0\n"))
			Expect(err).To(MatchError(calibration.ErrMissingCounters))
		})

		It("should reject malformed values", func() {
			_, err := calibration.ParseCounters([]byte("PERF_CYCLES=abc\nPERF_TOKENS=6\n"))
			Expect(err).To(MatchError(calibration.ErrMissingCounters))
		})
	})

	Context("ProcessGroundTruth", func() {
		It("should substitute placeholders", func() {
			p := &calibration.ProcessGroundTruth{
				Path: "sim",
				Args: []string{"--k={k_tile}", "{prompt_len}x{gen_len}"},
			}

			args := p.Expand(calibration.Request{KTile: 8, PromptLen: 4, GenLen: 6})

			Expect(args).To(Equal([]string{"--k=8", "4x6"}))
		})

		It("should run the command and parse its output", func() {
			p := &calibration.ProcessGroundTruth{
				Path:    "sh",
				Args:    []string{"-c", "echo PERF_CYCLES=$(( {k_tile} * 10 )); echo PERF_TOKENS={gen_len}"},
				Timeout: 10 * time.Second,
			}

			c, err := p.Observe(context.Background(),
				calibration.Request{KTile: 4, PromptLen: 2, GenLen: 5})

			Expect(err).NotTo(HaveOccurred())
			Expect(c.PerfCycles).To(Equal(uint64(40)))
			Expect(c.PerfTokens).To(Equal(uint64(5)))
		})

		It("should surface a failing command", func() {
			p := &calibration.ProcessGroundTruth{Path: "sh", Args: []string{"-c", "exit 3"}}

			_, err := p.Observe(context.Background(), calibration.Request{KTile: 4})

			Expect(err).To(HaveOccurred())
		})

		It("should surface a reported error status", func() {
			p := &calibration.ProcessGroundTruth{Path: "sh", Args: []string{"-c", "echo ERROR_STATUS=1"}}

			_, err := p.Observe(context.Background(), calibration.Request{KTile: 4})

			Expect(err).To(MatchError(calibration.ErrReportedError))
		})
	})

	Context("StaticGroundTruth", func() {
		It("should look up recorded counters", func() {
			s := calibration.StaticGroundTruth{8: {PerfCycles: 120, PerfTokens: 6}}

			c, err := s.Observe(context.Background(), calibration.Request{KTile: 8})
			Expect(err).NotTo(HaveOccurred())
			Expect(c.CyclesPerToken()).To(Equal(20.0))

			_, err = s.Observe(context.Background(), calibration.Request{KTile: 2})
			Expect(err).To(HaveOccurred())
		})
	})
})
