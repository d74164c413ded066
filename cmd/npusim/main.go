// Package main provides the entry point for npusim.
// npusim runs one decode session on the functional or hardware-proxy
// backend and reports the register state.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/npusim/emu"
	"github.com/sarchlab/npusim/internal/logger"
	"github.com/sarchlab/npusim/internal/metrics"
	"github.com/sarchlab/npusim/kernels"
	"github.com/sarchlab/npusim/loader"
	"github.com/sarchlab/npusim/npu"
	"github.com/sarchlab/npusim/timing/latency"
)

var (
	backend     = flag.String("backend", "", "Backend: functional or hw_proxy (overrides config)")
	configPath  = flag.String("config", "", "Path to runtime configuration JSON file")
	perfPath    = flag.String("perf", "", "Path to cycle-model configuration JSON file")
	packDir     = flag.String("pack", "", "Weight pack directory (default: synthetic weights)")
	seed        = flag.Int64("seed", loader.DefaultSeed, "Seed for synthetic weights")
	promptLen   = flag.Int("prompt-len", 4, "Prompt rows (all ones)")
	genLen      = flag.Int("gen-len", 8, "Tokens to generate")
	kTile       = flag.Int("k-tile", 0, "CFG_K_TILE override for hw_proxy (0 = configured)")
	jsonOut     = flag.Bool("json", false, "Print the poll result as JSON")
	dumpTokens  = flag.Bool("tokens", false, "Print the generated token vectors")
	metricsOut  = flag.String("metrics-out", "", "Write Prometheus metrics to this file")
	logLevel    = flag.String("log-level", "info", "Log level")
	logFormat   = flag.String("log-format", "console", "Log format: console or json")
	verboseFlag = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()
	logger.Setup(*logLevel, *logFormat)

	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	b, err := npu.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating backend: %v\n", err)
		os.Exit(1)
	}

	if *packDir != "" {
		err = b.Load(*packDir)
	} else {
		err = b.LoadWeights(loader.Synthetic(cfg.Dim, *seed))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading weights: %v\n", err)
		os.Exit(1)
	}

	if *verboseFlag {
		fmt.Printf("Backend: %s\n", b.Kind())
		fmt.Printf("Dim: %d, MaxSeq: %d\n", cfg.Dim, cfg.MaxSeq)
		if *packDir != "" {
			fmt.Printf("Pack: %s\n", *packDir)
		} else {
			fmt.Printf("Synthetic weights, seed %d\n", *seed)
		}
	}

	out, runErr := b.Run(npu.OnesPrompt(*promptLen, cfg.Dim), *genLen)

	if *jsonOut {
		if err := printJSON(os.Stdout, b.Poll()); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
		}
	} else {
		printReport(os.Stdout, b)
	}
	if *dumpTokens && out != nil {
		printTokens(os.Stdout, out)
	}

	if *metricsOut != "" {
		if err := metrics.WriteTextfile(*metricsOut); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing metrics: %v\n", err)
		}
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", runErr)
		os.Exit(2)
	}
}

// buildConfig layers the config file, the perf file and the flags.
func buildConfig() (*npu.Config, error) {
	cfg := npu.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = npu.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
	}

	if *perfPath != "" {
		perf, err := latency.LoadConfig(*perfPath)
		if err != nil {
			return nil, err
		}
		cfg.Perf = perf
	}

	if *backend != "" {
		kind, err := npu.ParseBackend(*backend)
		if err != nil {
			return nil, err
		}
		cfg.Backend = kind
	}

	if *kTile > 0 {
		cfg.Perf = cfg.Perf.Clone()
		cfg.Perf.KTile = *kTile
	}

	return cfg, cfg.Validate()
}

// printReport writes the register state after a session.
func printReport(w io.Writer, b npu.Backend) {
	p := b.Poll()

	_, _ = fmt.Fprintf(w, "\n")
	_, _ = fmt.Fprintf(w, "Backend: %s\n", p.Backend)
	_, _ = fmt.Fprintf(w, "Status: %s\n", p.Status)
	_, _ = fmt.Fprintf(w, "Prompt/Gen: %d/%d\n", p.PromptLen, p.GenLen)
	_, _ = fmt.Fprintf(w, "Done tokens: %d\n", p.DoneTokens)
	if p.LastError != 0 {
		_, _ = fmt.Fprintf(w, "Last error: 0x%08X (%s)\n", p.LastError, b.LastError())
	}

	if p.Backend != emu.KindHardwareProxy {
		return
	}

	cpt := 0.0
	if p.PerfTokens > 0 {
		cpt = float64(p.PerfCycles) / float64(p.PerfTokens)
	}
	_, _ = fmt.Fprintf(w, "\n")
	_, _ = fmt.Fprintf(w, "Performance:\n")
	_, _ = fmt.Fprintf(w, "  Cycles:         %d\n", p.PerfCycles)
	_, _ = fmt.Fprintf(w, "  Tokens:         %d\n", p.PerfTokens)
	_, _ = fmt.Fprintf(w, "  Cycles/token:   %.3f\n", cpt)
	_, _ = fmt.Fprintf(w, "  Stall in:       %d\n", p.PerfStallIn)
	_, _ = fmt.Fprintf(w, "  Stall out:      %d\n", p.PerfStallOut)
	_, _ = fmt.Fprintf(w, "  CFG_K_TILE:     %d\n", b.MMIORead(emu.AddrCfgKTile))
}

func printJSON(w io.Writer, p emu.PollResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func printTokens(w io.Writer, out *kernels.Tensor[int16]) {
	for i := 0; i < out.Shape[0]; i++ {
		_, _ = fmt.Fprintf(w, "token %d: %v\n", i, out.Row(i))
	}
}
