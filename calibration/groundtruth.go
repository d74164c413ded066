// Package calibration fits the affine (scale, bias) correction that maps the
// cycle model's cycles/token onto measurements from an external ground-truth
// hardware simulation.
package calibration

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Argument placeholders substituted by ProcessGroundTruth.
const (
	PlaceholderKTile     = "{k_tile}"
	PlaceholderPromptLen = "{prompt_len}"
	PlaceholderGenLen    = "{gen_len}"
)

// Counter lines printed by the ground-truth simulator.
const (
	cyclesPrefix = "PERF_CYCLES="
	tokensPrefix = "PERF_TOKENS="
	errorLine    = "ERROR_STATUS=1"
	timeoutLine  = "TIMEOUT=1"
)

var (
	// ErrReportedError is returned when the simulator reports ERROR status.
	ErrReportedError = errors.New("ground truth reported error status")

	// ErrReportedTimeout is returned when the simulator polled without
	// reaching DONE.
	ErrReportedTimeout = errors.New("ground truth timed out")

	// ErrMissingCounters is returned when the output lacks usable counters.
	ErrMissingCounters = errors.New("failed to parse perf counters")
)

// Request is one measurement point.
type Request struct {
	KTile     int
	PromptLen int
	GenLen    int
}

// Counters are the PERF_CYCLES and PERF_TOKENS values observed for a request.
type Counters struct {
	PerfCycles uint64 `json:"perf_cycles"`
	PerfTokens uint64 `json:"perf_tokens"`
}

// CyclesPerToken returns PerfCycles/PerfTokens, or 0 without tokens.
func (c Counters) CyclesPerToken() float64 {
	if c.PerfTokens == 0 {
		return 0
	}
	return float64(c.PerfCycles) / float64(c.PerfTokens)
}

// GroundTruth produces observed counters for a request.
type GroundTruth interface {
	Observe(ctx context.Context, req Request) (Counters, error)
}

// ProcessGroundTruth runs an external simulator once per request. Each
// argument has its placeholders replaced before the command starts.
type ProcessGroundTruth struct {
	// Path is the executable.
	Path string

	// Args may contain {k_tile}, {prompt_len} and {gen_len}.
	Args []string

	// Dir is the working directory. Empty means the current one.
	Dir string

	// Timeout bounds a single run. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// Observe runs the simulator for req and parses its combined output.
func (p *ProcessGroundTruth) Observe(ctx context.Context, req Request) (Counters, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.Path, p.Expand(req)...)
	cmd.Dir = p.Dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		return Counters{}, fmt.Errorf("ground truth k_tile=%d: %w\n%s", req.KTile, err, out)
	}

	c, err := ParseCounters(out)
	if err != nil {
		return Counters{}, fmt.Errorf("ground truth k_tile=%d: %w", req.KTile, err)
	}
	return c, nil
}

// Expand returns Args with the placeholders of req substituted.
func (p *ProcessGroundTruth) Expand(req Request) []string {
	r := strings.NewReplacer(
		PlaceholderKTile, strconv.Itoa(req.KTile),
		PlaceholderPromptLen, strconv.Itoa(req.PromptLen),
		PlaceholderGenLen, strconv.Itoa(req.GenLen),
	)
	args := make([]string, len(p.Args))
	for i, a := range p.Args {
		args[i] = r.Replace(a)
	}
	return args
}

// ParseCounters extracts the counters from simulator output. The last
// occurrence of each counter wins.
func ParseCounters(out []byte) (Counters, error) {
	var c Counters
	var haveCycles, haveTokens bool

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == errorLine:
			return Counters{}, ErrReportedError
		case line == timeoutLine:
			return Counters{}, ErrReportedTimeout
		case strings.HasPrefix(line, cyclesPrefix):
			v, err := strconv.ParseUint(strings.TrimPrefix(line, cyclesPrefix), 10, 64)
			if err != nil {
				return Counters{}, fmt.Errorf("%w: %q", ErrMissingCounters, line)
			}
			c.PerfCycles, haveCycles = v, true
		case strings.HasPrefix(line, tokensPrefix):
			v, err := strconv.ParseUint(strings.TrimPrefix(line, tokensPrefix), 10, 64)
			if err != nil {
				return Counters{}, fmt.Errorf("%w: %q", ErrMissingCounters, line)
			}
			c.PerfTokens, haveTokens = v, true
		}
	}
	if err := sc.Err(); err != nil {
		return Counters{}, err
	}

	if !haveCycles || !haveTokens || c.PerfTokens == 0 {
		return Counters{}, ErrMissingCounters
	}
	return c, nil
}

// StaticGroundTruth serves previously recorded counters keyed by k_tile.
type StaticGroundTruth map[int]Counters

// Observe looks up req.KTile.
func (s StaticGroundTruth) Observe(_ context.Context, req Request) (Counters, error) {
	c, ok := s[req.KTile]
	if !ok {
		return Counters{}, fmt.Errorf("no observation for k_tile=%d", req.KTile)
	}
	return c, nil
}
