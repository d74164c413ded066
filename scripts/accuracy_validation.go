// Package main provides accuracy validation for the decode backends.
// Ensures that the hardware-proxy backend preserves functional results and
// that the approximated kernels stay inside their error budgets.
package main

import (
	"fmt"
	"os"

	"github.com/sarchlab/npusim/benchmarks"
	"github.com/sarchlab/npusim/emu"
	"github.com/sarchlab/npusim/kernels"
	"github.com/sarchlab/npusim/loader"
	"github.com/sarchlab/npusim/npu"
	"github.com/sarchlab/npusim/timing/core"
)

const validationDim = 16

// testBackendEquivalence validates that the functional and hardware-proxy
// backends generate identical tokens.
func testBackendEquivalence() bool {
	ws := loader.Synthetic(validationDim, loader.DefaultSeed)

	fmt.Println("Testing backend equivalence...")

	for genLen := 1; genLen <= 32; genLen++ {
		functional := emu.NewEmulator(emu.WithDim(validationDim))
		proxy := core.NewCore(core.WithDim(validationDim))
		if err := functional.LoadWeights(ws); err != nil {
			fmt.Printf("❌ Functional load failed: %v\n", err)
			return false
		}
		if err := proxy.LoadWeights(ws); err != nil {
			fmt.Printf("❌ Proxy load failed: %v\n", err)
			return false
		}

		prompt := npu.OnesPrompt(4, validationDim)
		a, errA := functional.Run(prompt, genLen)
		b, errB := proxy.Run(prompt, genLen)
		if errA != nil || errB != nil {
			fmt.Printf("❌ gen_len %d failed: functional=%v proxy=%v\n", genLen, errA, errB)
			return false
		}

		for i := range a.Data {
			if a.Data[i] != b.Data[i] {
				fmt.Printf("❌ gen_len %d: token mismatch at element %d (%d vs %d)\n",
					genLen, i, a.Data[i], b.Data[i])
				return false
			}
		}

		if proxy.Poll().PerfTokens != uint32(genLen) {
			fmt.Printf("❌ gen_len %d: PERF_TOKENS=%d\n", genLen, proxy.Poll().PerfTokens)
			return false
		}
	}

	fmt.Println("✅ Backends agree for gen_len 1..32")
	return true
}

// testDecodeStepGolden validates single-token attention against the last
// row of batched causal attention.
func testDecodeStepGolden() bool {
	fmt.Println("Testing decode-step attention against batched attention...")

	const seq = 12
	q := kernels.New[float32](seq, validationDim)
	k := kernels.New[float32](seq, validationDim)
	v := kernels.New[float32](seq, validationDim)
	for i := range q.Data {
		q.Data[i] = float32((i*7)%11) / 5
		k.Data[i] = float32((i*5)%13) / 6
		v.Data[i] = float32((i*3)%7) / 3
	}

	batched, _, err := kernels.ScaledDotProductAttention(q, k, v, true, true)
	if err != nil {
		fmt.Printf("❌ Batched attention failed: %v\n", err)
		return false
	}

	last, _ := kernels.FromSlice(q.Row(seq-1), validationDim)
	step, err := kernels.AttentionDecodeStep(last, k, v)
	if err != nil {
		fmt.Printf("❌ Decode step failed: %v\n", err)
		return false
	}

	want := batched.Row(seq - 1)
	for i, got := range step.Data {
		d := float64(got - want[i])
		if d > 1e-4 || d < -1e-4 {
			fmt.Printf("❌ Element %d: %f vs %f\n", i, got, want[i])
			return false
		}
	}

	fmt.Println("✅ Decode step matches batched attention")
	return true
}

// testKernelAccuracy validates the approximated kernels against their
// budgets.
func testKernelAccuracy() bool {
	fmt.Println("Testing kernel accuracy budgets...")

	m, err := benchmarks.EvalAccuracy(benchmarks.AccuracySeed, benchmarks.DefaultCases)
	if err != nil {
		fmt.Printf("❌ Evaluation failed: %v\n", err)
		return false
	}

	m.Print(os.Stdout)
	if !m.Within(benchmarks.AccuracyBudget) {
		fmt.Println("❌ Accuracy budget exceeded")
		return false
	}

	fmt.Println("✅ Kernel accuracy within budget")
	return true
}

// testResetBehavior validates that RESET restores a clean register file.
func testResetBehavior() bool {
	fmt.Println("Testing RESET behavior...")

	c := core.NewCore(core.WithDim(validationDim))
	if err := c.LoadWeights(loader.Synthetic(validationDim, loader.DefaultSeed)); err != nil {
		fmt.Printf("❌ Load failed: %v\n", err)
		return false
	}
	c.SetKTile(2)
	if _, err := c.Run(npu.OnesPrompt(2, validationDim), 4); err != nil {
		fmt.Printf("❌ Run failed: %v\n", err)
		return false
	}

	c.MMIOWrite(emu.AddrControl, emu.CtrlReset)

	p := c.Poll()
	if p.Status != emu.StatusIdle || p.PerfCycles != 0 || c.KTile() != 16 || c.Cache().Len() != 0 {
		fmt.Printf("❌ Post-reset state: %+v k_tile=%d cache=%d\n", p, c.KTile(), c.Cache().Len())
		return false
	}

	fmt.Println("✅ RESET restores defaults")
	return true
}

func main() {
	fmt.Println("npusim Accuracy Validation")
	fmt.Println("==========================")

	allPassed := true

	if !testBackendEquivalence() {
		allPassed = false
	}

	if !testDecodeStepGolden() {
		allPassed = false
	}

	if !testKernelAccuracy() {
		allPassed = false
	}

	if !testResetBehavior() {
		allPassed = false
	}

	fmt.Println("\n==========================")
	if allPassed {
		fmt.Println("🎉 ALL ACCURACY TESTS PASSED")
		os.Exit(0)
	} else {
		fmt.Println("❌ ACCURACY TESTS FAILED")
		os.Exit(1)
	}
}
