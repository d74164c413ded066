// Package main provides the entry point for npusim.
// npusim is a boardless simulator of an integer-quantized transformer
// decode accelerator.
//
// For the full CLI, use: go run ./cmd/npusim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("npusim - NPU Decode Accelerator Simulator")
	fmt.Println("")
	fmt.Println("Usage: npusim [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -backend   functional or hw_proxy")
	fmt.Println("  -config    Path to runtime configuration JSON file")
	fmt.Println("  -perf      Path to cycle-model configuration JSON file")
	fmt.Println("  -pack      Weight pack directory")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  go run ./cmd/npusim     one decode session")
	fmt.Println("  go run ./cmd/benchmark  decode workloads and kernel accuracy")
	fmt.Println("  go run ./cmd/dse        design-space sweep")
	fmt.Println("  go run ./cmd/calibrate  fit the cycle model to ground truth")
	fmt.Println("  go run ./cmd/profile    pprof the decode loop")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/npusim' instead.")
	}
}
