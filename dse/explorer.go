package dse

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/npusim/benchmarks"
	"github.com/sarchlab/npusim/internal/logger"
	"github.com/sarchlab/npusim/internal/metrics"
	"github.com/sarchlab/npusim/loader"
	"github.com/sarchlab/npusim/timing/latency"
)

// Trial status values.
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// Trial is the outcome of one configuration.
type Trial struct {
	RunID               int     `json:"run_id"`
	Status              string  `json:"status"`
	KTile               int     `json:"cfg_k_tile"`
	PEMacPerCycle       int     `json:"pe_mac_per_cycle"`
	TokenOverheadCycles int     `json:"token_overhead_cycles"`
	PromptLen           int     `json:"prompt_len"`
	GenLen              int     `json:"gen_len"`
	PerfCycles          uint32  `json:"perf_cycles"`
	PerfTokens          uint32  `json:"perf_tokens"`
	PerfStallIn         uint32  `json:"perf_stall_in"`
	PerfStallOut        uint32  `json:"perf_stall_out"`
	CyclesPerToken      float64 `json:"cycles_per_token"`
	TokensPerSec        float64 `json:"tps_est_at_clock"`
	AreaProxy           float64 `json:"area_proxy"`
	Score               float64 `json:"score_tps_per_area"`
	EDPProxy            float64 `json:"edp_proxy"`

	// Rank is the 1-based position among passing trials, 0 for failures.
	Rank  int    `json:"rank"`
	Error string `json:"error,omitempty"`
}

// Passed reports whether the trial finished in DONE.
func (t *Trial) Passed() bool {
	return t.Status == StatusPass
}

// AreaProxy is the linear cost heuristic of a configuration.
func AreaProxy(kTile, peMacs, overhead int) float64 {
	return float64(peMacs) + 8*float64(kTile) + 2*float64(overhead)
}

// Report holds every trial, ranked.
type Report struct {
	Options Options `json:"options"`
	Space   Space   `json:"space"`

	// Trials are sorted by score descending, passing trials first.
	Trials []Trial `json:"trials"`

	// Best is the rank-1 trial, nil when nothing passed.
	Best *Trial `json:"best,omitempty"`

	// Pareto is the throughput/area frontier of the passing trials.
	Pareto []Trial `json:"pareto"`
}

// Explorer runs a design-space sweep.
type Explorer struct {
	space   Space
	options Options
	weights *loader.WeightSet
	log     *logger.Logger
}

// ExplorerOption configures an Explorer.
type ExplorerOption func(*Explorer)

// WithWeights replaces the synthetic weights.
func WithWeights(ws *loader.WeightSet) ExplorerOption {
	return func(e *Explorer) { e.weights = ws }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) ExplorerOption {
	return func(e *Explorer) { e.log = l }
}

// NewExplorer creates an explorer over space.
func NewExplorer(space Space, options Options, opts ...ExplorerOption) *Explorer {
	if options.Parallelism <= 0 {
		options.Parallelism = runtime.GOMAXPROCS(0)
	}
	e := &Explorer{
		space:   space,
		options: options,
		log:     logger.Log,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.weights == nil {
		e.weights = loader.Synthetic(options.Dim, options.Seed)
	}
	return e
}

// Run executes every trial, each on its own backend, and ranks the results.
// Trials that fail to decode are kept as FAIL rows. Only cancellation of ctx
// aborts the sweep.
func (e *Explorer) Run(ctx context.Context) (*Report, error) {
	if err := e.space.Validate(); err != nil {
		return nil, err
	}

	points := e.space.Points()
	trials := make([]Trial, len(points))

	e.log.Info("dse sweep started",
		"trials", len(points), "parallelism", e.options.Parallelism)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.options.Parallelism)
	for i := range points {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			trials[i] = e.runTrial(i+1, &points[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Options: e.options, Space: e.space, Trials: trials}
	rankTrials(report.Trials)
	if len(report.Trials) > 0 && report.Trials[0].Passed() {
		best := report.Trials[0]
		report.Best = &best
	}
	report.Pareto = ParetoFrontier(report.Trials)

	e.log.Info("dse sweep finished",
		"trials", len(trials), "pareto", len(report.Pareto))
	return report, nil
}

func (e *Explorer) runTrial(runID int, point *latency.PerfConfig) Trial {
	perf := point.WithCalibration(e.options.CalibScale, e.options.CalibBias)

	m, err := benchmarks.Measure(e.weights, benchmarks.MeasureConfig{
		MaxSeq:    e.options.MaxSeq,
		PromptLen: e.options.PromptLen,
		GenLen:    e.options.GenLen,
		Perf:      perf,
		Clock:     e.options.Clock,
	})

	t := Trial{
		RunID:               runID,
		Status:              StatusPass,
		KTile:               point.KTile,
		PEMacPerCycle:       point.PEMacPerCycle,
		TokenOverheadCycles: point.TokenOverheadCycles,
		PromptLen:           e.options.PromptLen,
		GenLen:              e.options.GenLen,
		PerfCycles:          m.PerfCycles,
		PerfTokens:          m.PerfTokens,
		PerfStallIn:         m.PerfStallIn,
		PerfStallOut:        m.PerfStallOut,
		CyclesPerToken:      m.CyclesPerToken,
		AreaProxy:           AreaProxy(point.KTile, point.PEMacPerCycle, point.TokenOverheadCycles),
	}
	if t.CyclesPerToken > 0 {
		t.TokensPerSec = float64(e.options.Clock) / t.CyclesPerToken
	}
	if t.AreaProxy > 0 {
		t.Score = t.TokensPerSec / t.AreaProxy
	}
	t.EDPProxy = t.CyclesPerToken * t.AreaProxy

	if err != nil {
		t.Status = StatusFail
		t.Error = err.Error()
		e.log.Warn("dse trial failed", "run_id", runID, "k_tile", point.KTile,
			"pe_mac_per_cycle", point.PEMacPerCycle, "err", err)
	}

	metrics.RecordTrial(t.Status)
	e.log.Debug("dse trial finished", "run_id", runID, "status", t.Status,
		"cycles_per_token", t.CyclesPerToken, "score", t.Score)
	return t
}

// rankTrials sorts passing trials by score descending ahead of failures and
// numbers the passing ones. Ties keep run order.
func rankTrials(trials []Trial) {
	sort.SliceStable(trials, func(i, j int) bool {
		a, b := &trials[i], &trials[j]
		if a.Passed() != b.Passed() {
			return a.Passed()
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.RunID < b.RunID
	})

	rank := 0
	for i := range trials {
		if trials[i].Passed() {
			rank++
			trials[i].Rank = rank
		}
	}
}

// ParetoFrontier returns the passing trials that maximize throughput and
// minimize area. Candidates are scanned by throughput descending, area
// ascending on ties, and kept only when their area is strictly below every
// area kept so far.
func ParetoFrontier(trials []Trial) []Trial {
	pass := make([]Trial, 0, len(trials))
	for _, t := range trials {
		if t.Passed() {
			pass = append(pass, t)
		}
	}

	sort.SliceStable(pass, func(i, j int) bool {
		if pass[i].TokensPerSec != pass[j].TokensPerSec {
			return pass[i].TokensPerSec > pass[j].TokensPerSec
		}
		return pass[i].AreaProxy < pass[j].AreaProxy
	})

	frontier := []Trial{}
	bestArea := 0.0
	for _, t := range pass {
		if len(frontier) == 0 || t.AreaProxy < bestArea {
			frontier = append(frontier, t)
			bestArea = t.AreaProxy
		}
	}
	return frontier
}
