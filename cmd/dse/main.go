// Command dse sweeps the hardware-proxy cycle model over tiling width,
// PE throughput and per-token overhead and ranks the configurations by
// estimated tokens/second per area.
//
// Usage:
//
//	go run ./cmd/dse [flags]
//
// Example:
//
//	go run ./cmd/dse -k-tiles 4,8,16 -pe-macs 64,128,256 -overheads 8,12,16
//	go run ./cmd/dse -csv > dse.csv
//	go run ./cmd/dse -arrow-out trials.arrow -pareto-arrow-out pareto.arrow
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

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/npusim/dse"
	"github.com/sarchlab/npusim/internal/logger"
	"github.com/sarchlab/npusim/internal/metrics"
	"github.com/sarchlab/npusim/loader"
)

func main() {
	defaults := dse.DefaultOptions()
	space := dse.DefaultSpace()

	dim := flag.Int("dim", defaults.Dim, "Model dimension")
	promptLen := flag.Int("prompt-len", defaults.PromptLen, "Prompt rows")
	genLen := flag.Int("gen-len", defaults.GenLen, "Tokens per trial")
	maxSeq := flag.Int("max-seq", defaults.MaxSeq, "KV cache capacity")
	clockMHz := flag.Float64("clock-mhz", 200, "Target clock in MHz")
	seed := flag.Int64("seed", defaults.Seed, "Seed for synthetic weights")
	packDir := flag.String("pack", "", "Weight pack directory (default: synthetic weights)")
	kTiles := flag.String("k-tiles", joinInts(space.KTiles), "Comma-separated cfg_k_tile candidates")
	peMacs := flag.String("pe-macs", joinInts(space.PEMacs), "Comma-separated pe_mac_per_cycle candidates")
	overheads := flag.String("overheads", joinInts(space.Overheads), "Comma-separated token_overhead_cycles candidates")
	calibScale := flag.Float64("calib-scale", 1, "Calibration scale applied to every trial")
	calibBias := flag.Float64("calib-bias", 0, "Calibration bias applied to every trial")
	parallel := flag.Int("parallel", 0, "Concurrent trials (0 = GOMAXPROCS)")
	top := flag.Int("top", 5, "Trials to print")
	csvOutput := flag.Bool("csv", false, "Output every trial in CSV format")
	bestOut := flag.String("best-out", "", "Write the best trial and frontier as JSON")
	arrowOut := flag.String("arrow-out", "", "Write every trial as an Arrow IPC file")
	paretoArrowOut := flag.String("pareto-arrow-out", "", "Write the Pareto frontier as an Arrow IPC file")
	metricsOut := flag.String("metrics-out", "", "Write Prometheus metrics to this file")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logger.Setup(*logLevel, "console")

	var err error
	if space.KTiles, err = parseInts(*kTiles); err != nil {
		fatal("k-tiles", err)
	}
	if space.PEMacs, err = parseInts(*peMacs); err != nil {
		fatal("pe-macs", err)
	}
	if space.Overheads, err = parseInts(*overheads); err != nil {
		fatal("overheads", err)
	}

	opts := defaults
	opts.Dim = *dim
	opts.PromptLen = *promptLen
	opts.GenLen = *genLen
	opts.MaxSeq = *maxSeq
	opts.Clock = sim.Freq(*clockMHz) * sim.MHz
	opts.Seed = *seed
	opts.CalibScale = *calibScale
	opts.CalibBias = *calibBias
	opts.Parallelism = *parallel

	var explorerOpts []dse.ExplorerOption
	if *packDir != "" {
		ws, err := loader.Load(*packDir)
		if err != nil {
			fatal("pack", err)
		}
		opts.Dim = ws.Dim
		explorerOpts = append(explorerOpts, dse.WithWeights(ws))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := dse.NewExplorer(space, opts, explorerOpts...).Run(ctx)
	if err != nil {
		fatal("sweep", err)
	}

	if *csvOutput {
		report.PrintCSV(os.Stdout)
	} else {
		report.PrintResults(os.Stdout, *top)
	}

	if *bestOut != "" {
		data, err := json.MarshalIndent(struct {
			Best   *dse.Trial  `json:"best"`
			Pareto []dse.Trial `json:"pareto"`
		}{report.Best, report.Pareto}, "", "  ")
		if err != nil {
			fatal("best-out", err)
		}
		if err := os.WriteFile(*bestOut, data, 0644); err != nil {
			fatal("best-out", err)
		}
	}

	if *arrowOut != "" {
		if err := report.WriteArrowFile(*arrowOut, false); err != nil {
			fatal("arrow-out", err)
		}
	}
	if *paretoArrowOut != "" {
		if err := report.WriteArrowFile(*paretoArrowOut, true); err != nil {
			fatal("pareto-arrow-out", err)
		}
	}

	if *metricsOut != "" {
		if err := metrics.WriteTextfile(*metricsOut); err != nil {
			fatal("metrics-out", err)
		}
	}

	if report.Best == nil {
		fmt.Fprintln(os.Stderr, "no trial passed")
		os.Exit(2)
	}
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

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
