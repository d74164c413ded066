// Command benchmark runs the npusim decode benchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv        Output results in CSV format (default: human-readable)
//	-perf       Cycle-model configuration JSON file
//	-accuracy   Also evaluate kernel accuracy against the float reference
//	-scaleup    Print the analytic throughput of a full-size decoder and exit
//
// Example:
//
//	# Run all workloads with human-readable output
//	go run ./cmd/benchmark
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
//
//	# First-order throughput of a 12-layer, 1024-wide decoder
//	go run ./cmd/benchmark -scaleup -layers 12 -hidden 1024
//
// The cycles/token figures can be compared against ground-truth hardware
// simulation with ./cmd/calibrate.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/npusim/benchmarks"
	"github.com/sarchlab/npusim/internal/logger"
	"github.com/sarchlab/npusim/loader"
	"github.com/sarchlab/npusim/timing/latency"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	perfPath := flag.String("perf", "", "Path to cycle-model configuration JSON file")
	packDir := flag.String("pack", "", "Weight pack directory (default: synthetic weights)")
	dim := flag.Int("dim", 16, "Model dimension of synthetic weights")
	seed := flag.Int64("seed", loader.DefaultSeed, "Seed for synthetic weights")
	accuracy := flag.Bool("accuracy", false, "Evaluate kernel accuracy")
	cases := flag.Int("cases", benchmarks.DefaultCases, "Accuracy cases per kernel")
	scaleup := flag.Bool("scaleup", false, "Print the analytic full-size decoder model and exit")
	analytic := latency.DefaultAnalyticInput()
	layers := flag.Int("layers", analytic.Layers, "Scale-up decoder layers")
	hidden := flag.Int("hidden", analytic.Hidden, "Scale-up hidden width")
	seqLen := flag.Int("seq", analytic.Seq, "Scale-up context length")
	peMacs := flag.Int("pe-macs", analytic.PEMacPerCycle, "Scale-up MACs per cycle")
	clockMHz := flag.Float64("clock-mhz", float64(analytic.Clock)/1e6, "Scale-up clock in MHz")
	efficiency := flag.Float64("efficiency", analytic.Efficiency, "Scale-up array efficiency")
	verbose := flag.Bool("v", false, "Verbose output")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	logger.Setup(*logLevel, "console")

	if *scaleup {
		analytic.Layers = *layers
		analytic.Hidden = *hidden
		analytic.Seq = *seqLen
		analytic.PEMacPerCycle = *peMacs
		analytic.Clock = sim.Freq(*clockMHz) * sim.MHz
		analytic.Efficiency = *efficiency
		if _, err := benchmarks.PrintScaleup(os.Stdout, analytic); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	config := benchmarks.DefaultConfig()
	config.Dim = *dim
	config.Seed = *seed
	config.Verbose = *verbose
	config.Output = os.Stdout
	if *perfPath != "" {
		perf, err := latency.LoadConfig(*perfPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading perf config: %v\n", err)
			os.Exit(1)
		}
		config.Perf = perf
	}

	harness := benchmarks.NewHarness(config)
	if *packDir != "" {
		ws, err := loader.Load(*packDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading pack: %v\n", err)
			os.Exit(1)
		}
		harness.SetWeights(ws)
	}
	harness.AddWorkloads(benchmarks.StandardWorkloads())

	if !*csvOutput {
		fmt.Println("npusim Decode Benchmark Harness")
		fmt.Println("===============================")
		fmt.Printf("k_tile: %d\n", config.Perf.KTile)
		fmt.Printf("pe_mac_per_cycle: %d\n", config.Perf.PEMacPerCycle)
		fmt.Printf("token_overhead_cycles: %d\n", config.Perf.TokenOverheadCycles)
		fmt.Println("")
	}

	results := harness.RunAll()

	if *csvOutput {
		harness.PrintCSV(results)
	} else {
		harness.PrintResults(results)
	}

	failed := false
	for _, r := range results {
		if r.Error != "" {
			failed = true
		}
	}

	if *accuracy {
		m, err := benchmarks.EvalAccuracy(benchmarks.AccuracySeed, *cases)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error evaluating accuracy: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("")
		m.Print(os.Stdout)
		if !m.Within(benchmarks.AccuracyBudget) {
			fmt.Fprintln(os.Stderr, "accuracy budget exceeded")
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}
