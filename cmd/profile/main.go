// Package main provides a profiling wrapper for npusim to identify
// performance bottlenecks of the decode loop and the cycle model.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/sarchlab/npusim/benchmarks"
	"github.com/sarchlab/npusim/dse"
	"github.com/sarchlab/npusim/internal/logger"
	"github.com/sarchlab/npusim/loader"
)

var (
	mode       = flag.String("mode", "decode", "What to profile: decode or dse")
	cpuProfile = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile = flag.String("memprofile", "", "write memory profile to file")
	duration   = flag.Duration("duration", 30*time.Second, "max duration to run (for profiling)")
	sessions   = flag.Int("sessions", 100, "decode sessions to run in decode mode")
	dim        = flag.Int("dim", 64, "model dimension")
	genLen     = flag.Int("gen-len", 128, "tokens per session")
	maxSeq     = flag.Int("max-seq", 256, "KV cache capacity")
)

func main() {
	flag.Parse()
	logger.Setup("warn", "console")

	// Start CPU profiling if requested
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()

	var tokens uint64
	var err error
	switch *mode {
	case "decode":
		tokens, err = profileDecode(ctx)
	case "dse":
		tokens, err = profileDSE(ctx)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}

	elapsed := time.Since(start)

	// Write memory profile if requested
	if *memProfile != "" {
		f, ferr := os.Create(*memProfile)
		if ferr != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", ferr)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if werr := pprof.WriteHeapProfile(f); werr != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", werr)
		}
	}

	fmt.Printf("\nProfiling Results:\n")
	fmt.Printf("Mode: %s\n", *mode)
	fmt.Printf("Tokens decoded: %d\n", tokens)
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if tokens > 0 {
		fmt.Printf("Tokens/second (host): %.0f\n", float64(tokens)/elapsed.Seconds())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stopped: %v\n", err)
		os.Exit(2)
	}
}

// profileDecode runs back-to-back hardware-proxy sessions until the
// session count or the deadline is reached.
func profileDecode(ctx context.Context) (uint64, error) {
	ws := loader.Synthetic(*dim, loader.DefaultSeed)

	var tokens uint64
	for i := 0; i < *sessions; i++ {
		if err := ctx.Err(); err != nil {
			return tokens, err
		}
		m, err := benchmarks.Measure(ws, benchmarks.MeasureConfig{
			MaxSeq:    *maxSeq,
			PromptLen: 1,
			GenLen:    *genLen,
		})
		tokens += uint64(m.PerfTokens)
		if err != nil {
			return tokens, err
		}
	}
	return tokens, nil
}

// profileDSE runs the default sweep at the requested dimension.
func profileDSE(ctx context.Context) (uint64, error) {
	opts := dse.DefaultOptions()
	opts.Dim = *dim
	opts.GenLen = *genLen
	opts.MaxSeq = *maxSeq

	report, err := dse.NewExplorer(dse.DefaultSpace(), opts).Run(ctx)
	if err != nil {
		return 0, err
	}

	var tokens uint64
	for _, t := range report.Trials {
		tokens += uint64(t.PerfTokens)
	}
	return tokens, nil
}
