// Command calibrate fits the cycle model to an external ground-truth
// hardware simulator.
//
// The simulator is any command that prints PERF_CYCLES=<n> and
// PERF_TOKENS=<n> lines for one decode session. Its arguments may use the
// {k_tile}, {prompt_len} and {gen_len} placeholders:
//
//	go run ./cmd/calibrate -sim ./run_rtl.sh -- --k {k_tile} --gen {gen_len}
//
// Recorded measurements can be replayed with -observed, a JSON object of
// k_tile to counters:
//
//	{"2": {"perf_cycles": 270, "perf_tokens": 6}, ...}
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/sarchlab/npusim/calibration"
	"github.com/sarchlab/npusim/internal/logger"
	"github.com/sarchlab/npusim/internal/metrics"
	"github.com/sarchlab/npusim/timing/latency"
)

func main() {
	defaults := calibration.DefaultConfig()

	simPath := flag.String("sim", "", "Ground-truth simulator executable")
	observed := flag.String("observed", "", "JSON file of recorded counters keyed by k_tile")
	timeout := flag.Duration("timeout", 5*time.Minute, "Per-run simulator timeout")
	kTiles := flag.String("k-tiles", "2,4,8,16", "Comma-separated cfg_k_tile values")
	dim := flag.Int("dim", defaults.Dim, "Model dimension")
	promptLen := flag.Int("prompt-len", defaults.PromptLen, "Prompt rows")
	genLen := flag.Int("gen-len", defaults.GenLen, "Tokens per run")
	seed := flag.Int64("seed", defaults.Seed, "Seed for synthetic weights")
	perfPath := flag.String("perf", "", "Cycle-model configuration JSON file")
	perfOut := flag.String("perf-out", "", "Write the calibrated cycle-model configuration here")
	resultOut := flag.String("result-out", "", "Write the calibration result as JSON")
	csvOutput := flag.Bool("csv", false, "Print per-k_tile rows as CSV")
	metricsOut := flag.String("metrics-out", "", "Write Prometheus metrics to this file")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logger.Setup(*logLevel, "console")

	truth, err := groundTruth(*simPath, *observed, *timeout, flag.Args())
	if err != nil {
		fatal("ground truth", err)
	}

	tiles, err := parseInts(*kTiles)
	if err != nil {
		fatal("k-tiles", err)
	}

	cfg := defaults
	cfg.Dim = *dim
	cfg.PromptLen = *promptLen
	cfg.GenLen = *genLen
	cfg.Seed = *seed
	if *perfPath != "" {
		if cfg.Perf, err = latency.LoadConfig(*perfPath); err != nil {
			fatal("perf", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := calibration.NewCalibrator(truth, cfg).Run(ctx, tiles)
	if err != nil {
		fatal("calibration", err)
	}

	if *csvOutput {
		res.PrintCSV(os.Stdout)
	} else {
		res.PrintSummary(os.Stdout)
	}

	if *perfOut != "" {
		if err := res.Apply(cfg.Perf).SaveConfig(*perfOut); err != nil {
			fatal("perf-out", err)
		}
	}

	if *resultOut != "" {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			fatal("result-out", err)
		}
		if err := os.WriteFile(*resultOut, data, 0644); err != nil {
			fatal("result-out", err)
		}
	}

	if *metricsOut != "" {
		if err := metrics.WriteTextfile(*metricsOut); err != nil {
			fatal("metrics-out", err)
		}
	}
}

// groundTruth selects the process or the recorded source.
func groundTruth(simPath, observed string, timeout time.Duration, args []string) (calibration.GroundTruth, error) {
	switch {
	case simPath != "" && observed != "":
		return nil, fmt.Errorf("-sim and -observed are exclusive")
	case simPath != "":
		return &calibration.ProcessGroundTruth{Path: simPath, Args: args, Timeout: timeout}, nil
	case observed != "":
		return loadObserved(observed)
	default:
		return nil, fmt.Errorf("one of -sim or -observed is required")
	}
}

func loadObserved(path string) (calibration.StaticGroundTruth, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read observations: %w", err)
	}

	var raw map[string]calibration.Counters
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse observations: %w", err)
	}

	truth := calibration.StaticGroundTruth{}
	for key, c := range raw {
		k, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("bad k_tile key %q: %w", key, err)
		}
		truth[k] = c
	}
	return truth, nil
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "Error (%s): %v\n", what, err)
	os.Exit(1)
}

func parseInts(text string) ([]int, error) {
	var out []int
	for _, tok := range strings.Split(text, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty list")
	}
	return out, nil
}
