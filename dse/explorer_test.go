package dse_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/npusim/dse"
)

func dominated(t dse.Trial, by []dse.Trial) bool {
	for _, o := range by {
		if o.RunID == t.RunID {
			continue
		}
		if o.TokensPerSec >= t.TokensPerSec && o.AreaProxy <= t.AreaProxy {
			return true
		}
	}
	return false
}

var _ = Describe("Explorer", func() {
	var report *dse.Report

	BeforeEach(func() {
		var err error
		report, err = dse.NewExplorer(dse.DefaultSpace(), dse.DefaultOptions()).
			Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
	})

	It("should run the full cross product", func() {
		Expect(report.Trials).To(HaveLen(27))
		seen := map[int]bool{}
		for _, t := range report.Trials {
			Expect(t.Status).To(Equal(dse.StatusPass))
			Expect(t.PerfTokens).To(Equal(uint32(8)))
			seen[t.RunID] = true
		}
		Expect(seen).To(HaveLen(27))
	})

	It("should rank by score descending", func() {
		for i, t := range report.Trials {
			Expect(t.Rank).To(Equal(i + 1))
			if i > 0 {
				Expect(t.Score).To(BeNumerically("<=", report.Trials[i-1].Score))
			}
		}
		Expect(report.Best).NotTo(BeNil())
		Expect(*report.Best).To(Equal(report.Trials[0]))
	})

	It("should compute the per-trial metrics", func() {
		var t dse.Trial
		for _, c := range report.Trials {
			if c.KTile == 16 && c.PEMacPerCycle == 256 && c.TokenOverheadCycles == 8 {
				t = c
			}
		}

		Expect(t.PerfCycles).To(Equal(uint32(96)))
		Expect(t.CyclesPerToken).To(Equal(12.0))
		Expect(t.TokensPerSec).To(BeNumerically("~", 200e6/12, 1e-6))
		Expect(t.AreaProxy).To(Equal(400.0))
		Expect(t.Score).To(BeNumerically("~", 200e6/12/400, 1e-9))
		Expect(t.EDPProxy).To(Equal(4800.0))
	})

	It("should keep no dominated point on the frontier", func() {
		Expect(report.Pareto).NotTo(BeEmpty())
		for _, p := range report.Pareto {
			Expect(dominated(p, report.Pareto)).To(BeFalse(), "run %d", p.RunID)
		}
		for i := 1; i < len(report.Pareto); i++ {
			Expect(report.Pareto[i].TokensPerSec).
				To(BeNumerically("<=", report.Pareto[i-1].TokensPerSec))
			Expect(report.Pareto[i].AreaProxy).
				To(BeNumerically("<", report.Pareto[i-1].AreaProxy))
		}
	})

	It("should not depend on parallelism", func() {
		opts := dse.DefaultOptions()
		opts.Parallelism = 1

		serial, err := dse.NewExplorer(dse.DefaultSpace(), opts).Run(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(serial.Trials).To(Equal(report.Trials))
		Expect(serial.Pareto).To(Equal(report.Pareto))
	})

	It("should apply calibration to every trial", func() {
		opts := dse.DefaultOptions()
		opts.CalibScale = 2
		space := dse.Space{KTiles: []int{16}, PEMacs: []int{256}, Overheads: []int{8}}

		r, err := dse.NewExplorer(space, opts).Run(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(r.Trials[0].CyclesPerToken).To(Equal(24.0))
	})

	It("should record failed sessions as FAIL trials", func() {
		opts := dse.DefaultOptions()
		opts.MaxSeq = 4
		space := dse.Space{KTiles: []int{8, 16}, PEMacs: []int{128}, Overheads: []int{12}}

		r, err := dse.NewExplorer(space, opts).Run(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(r.Trials).To(HaveLen(2))
		for _, t := range r.Trials {
			Expect(t.Status).To(Equal(dse.StatusFail))
			Expect(t.Rank).To(Equal(0))
			Expect(t.Error).To(ContainSubstring("kv overflow"))
		}
		Expect(r.Best).To(BeNil())
		Expect(r.Pareto).To(BeEmpty())
	})

	It("should reject an empty axis", func() {
		_, err := dse.NewExplorer(dse.Space{KTiles: []int{4}}, dse.DefaultOptions()).
			Run(context.Background())
		Expect(err).To(HaveOccurred())
	})

	It("should stop on a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := dse.NewExplorer(dse.DefaultSpace(), dse.DefaultOptions()).Run(ctx)

		Expect(err).To(MatchError(context.Canceled))
	})
})

var _ = Describe("ParetoFrontier", func() {
	trial := func(id int, tps, area float64) dse.Trial {
		return dse.Trial{RunID: id, Status: dse.StatusPass, TokensPerSec: tps, AreaProxy: area}
	}

	It("should scan throughput descending and keep shrinking area", func() {
		frontier := dse.ParetoFrontier([]dse.Trial{
			trial(1, 100, 50),
			trial(2, 200, 80),
			trial(3, 150, 90),
			trial(4, 50, 20),
			trial(5, 300, 100),
		})

		ids := []int{}
		for _, t := range frontier {
			ids = append(ids, t.RunID)
		}
		Expect(ids).To(Equal([]int{5, 2, 1, 4}))
	})

	It("should keep the smaller area on equal throughput", func() {
		frontier := dse.ParetoFrontier([]dse.Trial{
			trial(1, 100, 60),
			trial(2, 100, 40),
			trial(3, 100, 40),
		})

		Expect(frontier).To(HaveLen(1))
		Expect(frontier[0].RunID).To(Equal(2))
	})

	It("should skip failed trials", func() {
		failed := trial(1, 500, 1)
		failed.Status = dse.StatusFail

		frontier := dse.ParetoFrontier([]dse.Trial{failed, trial(2, 100, 50)})

		Expect(frontier).To(HaveLen(1))
		Expect(frontier[0].RunID).To(Equal(2))
	})

	It("should return an empty frontier for no trials", func() {
		Expect(dse.ParetoFrontier(nil)).To(BeEmpty())
	})
})

var _ = Describe("Space", func() {
	It("should enumerate k_tile outermost", func() {
		s := dse.Space{KTiles: []int{4, 8}, PEMacs: []int{64}, Overheads: []int{8, 12}}

		points := s.Points()

		Expect(s.Size()).To(Equal(4))
		Expect(points).To(HaveLen(4))
		Expect(points[0].KTile).To(Equal(4))
		Expect(points[1].TokenOverheadCycles).To(Equal(12))
		Expect(points[2].KTile).To(Equal(8))
		Expect(points[3].CalibScale).To(Equal(1.0))
	})

	It("should compute the area proxy", func() {
		Expect(dse.AreaProxy(16, 256, 8)).To(Equal(400.0))
		Expect(dse.AreaProxy(4, 64, 12)).To(Equal(120.0))
	})
})
