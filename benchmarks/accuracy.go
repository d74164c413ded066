package benchmarks

import (
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/sarchlab/npusim/kernels"
)

// Accuracy evaluation shapes.
const (
	SoftmaxDim    = 16
	AttentionSeq  = 16
	AttentionDim  = 16
	GEMMRows      = 8
	GEMMInner     = 16
	GEMMCols      = 8
	ActivationQ   = 128.0
	WeightQ       = 64.0
	DefaultCases  = 20
	AccuracySeed  = 2026
	relL2Epsilon  = 1e-9
	operandStdDev = 0.5
)

// AccuracyBudget holds the upper bounds each metric must stay under.
var AccuracyBudget = AccuracyMetrics{
	SoftmaxMAE:      0.06,
	SoftmaxMaxAbs:   0.25,
	AttentionMAE:    0.20,
	AttentionMaxAbs: 1.00,
	QuantGEMMRelL2:  0.20,
}

// AccuracyMetrics summarizes kernel error against the float reference.
type AccuracyMetrics struct {
	// SoftmaxMAE is the mean over cases of the per-case mean absolute error
	// of the LUT softmax.
	SoftmaxMAE float64 `json:"softmax_mae"`

	// SoftmaxMaxAbs is the largest absolute error over all cases.
	SoftmaxMaxAbs float64 `json:"softmax_max_abs"`

	// AttentionMAE and AttentionMaxAbs compare causal attention with the
	// LUT softmax against the exact one.
	AttentionMAE    float64 `json:"attention_mae"`
	AttentionMaxAbs float64 `json:"attention_max_abs"`

	// QuantGEMMRelL2 is the mean relative L2 error of int16 x int8 GEMM
	// after dequantization.
	QuantGEMMRelL2 float64 `json:"quant_gemm_rel_l2"`
}

// Within reports whether every metric is strictly below its bound in budget.
func (m AccuracyMetrics) Within(budget AccuracyMetrics) bool {
	return m.SoftmaxMAE < budget.SoftmaxMAE &&
		m.SoftmaxMaxAbs < budget.SoftmaxMaxAbs &&
		m.AttentionMAE < budget.AttentionMAE &&
		m.AttentionMaxAbs < budget.AttentionMaxAbs &&
		m.QuantGEMMRelL2 < budget.QuantGEMMRelL2
}

// Print writes the metrics as a metric,value table.
func (m AccuracyMetrics) Print(w io.Writer) {
	_, _ = fmt.Fprintln(w, "metric,value")
	_, _ = fmt.Fprintf(w, "softmax_mae,%.8f\n", m.SoftmaxMAE)
	_, _ = fmt.Fprintf(w, "softmax_max_abs,%.8f\n", m.SoftmaxMaxAbs)
	_, _ = fmt.Fprintf(w, "attention_mae,%.8f\n", m.AttentionMAE)
	_, _ = fmt.Fprintf(w, "attention_max_abs,%.8f\n", m.AttentionMaxAbs)
	_, _ = fmt.Fprintf(w, "quant_gemm_rel_l2,%.8f\n", m.QuantGEMMRelL2)
}

// EvalAccuracy draws cases random inputs per kernel from one seeded stream
// and measures the approximated kernels against their exact counterparts.
func EvalAccuracy(seed int64, cases int) (AccuracyMetrics, error) {
	if cases <= 0 {
		return AccuracyMetrics{}, fmt.Errorf("cases must be > 0, got %d", cases)
	}
	rng := rand.New(rand.NewSource(seed))

	var m AccuracyMetrics
	var err error
	m.SoftmaxMAE, m.SoftmaxMaxAbs, err = softmaxError(rng, cases)
	if err != nil {
		return m, err
	}
	m.AttentionMAE, m.AttentionMaxAbs, err = attentionError(rng, cases)
	if err != nil {
		return m, err
	}
	m.QuantGEMMRelL2, err = quantGEMMError(rng, cases)
	return m, err
}

func softmaxError(rng *rand.Rand, cases int) (mae, maxAbs float64, err error) {
	var maeSum float64
	for c := 0; c < cases; c++ {
		x := normalTensor(rng, 1, SoftmaxDim, SoftmaxDim)
		exact, err := kernels.SoftmaxExact(x, -1)
		if err != nil {
			return 0, 0, err
		}
		approx, err := kernels.SoftmaxApprox(x, -1)
		if err != nil {
			return 0, 0, err
		}
		caseMAE, caseMax := absError(exact.Data, approx.Data)
		maeSum += caseMAE
		maxAbs = math.Max(maxAbs, caseMax)
	}
	return maeSum / float64(cases), maxAbs, nil
}

func attentionError(rng *rand.Rand, cases int) (mae, maxAbs float64, err error) {
	var maeSum float64
	for c := 0; c < cases; c++ {
		q := normalTensor(rng, 1, AttentionSeq, AttentionDim)
		k := normalTensor(rng, 1, AttentionSeq, AttentionDim)
		v := normalTensor(rng, 1, AttentionSeq, AttentionDim)
		exact, _, err := kernels.ScaledDotProductAttention(q, k, v, true, false)
		if err != nil {
			return 0, 0, err
		}
		approx, _, err := kernels.ScaledDotProductAttention(q, k, v, true, true)
		if err != nil {
			return 0, 0, err
		}
		caseMAE, caseMax := absError(exact.Data, approx.Data)
		maeSum += caseMAE
		maxAbs = math.Max(maxAbs, caseMax)
	}
	return maeSum / float64(cases), maxAbs, nil
}

func quantGEMMError(rng *rand.Rand, cases int) (float64, error) {
	var sum float64
	for c := 0; c < cases; c++ {
		af := normalTensor(rng, operandStdDev, GEMMRows, GEMMInner)
		bf := normalTensor(rng, operandStdDev, GEMMInner, GEMMCols)

		aq := kernels.New[int16](GEMMRows, GEMMInner)
		for i, v := range af.Data {
			aq.Data[i] = kernels.ClampInt16(math.RoundToEven(float64(v) * ActivationQ))
		}
		bq := kernels.New[int8](GEMMInner, GEMMCols)
		for i, v := range bf.Data {
			bq.Data[i] = kernels.ClampInt8(math.RoundToEven(float64(v) * WeightQ))
		}

		yq, err := kernels.GEMM(aq, bq)
		if err != nil {
			return 0, err
		}

		var num, den float64
		for i := 0; i < GEMMRows; i++ {
			for j := 0; j < GEMMCols; j++ {
				var ref float64
				for p := 0; p < GEMMInner; p++ {
					ref += float64(af.At(i, p)) * float64(bf.At(p, j))
				}
				dq := float64(yq.At(i, j)) / (ActivationQ * WeightQ)
				num += (ref - dq) * (ref - dq)
				den += ref * ref
			}
		}
		sum += math.Sqrt(num) / (math.Sqrt(den) + relL2Epsilon)
	}
	return sum / float64(cases), nil
}

func normalTensor(rng *rand.Rand, stdDev float64, rows, cols int) *kernels.Tensor[float32] {
	t := kernels.New[float32](rows, cols)
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64() * stdDev)
	}
	return t
}

func absError(want, got []float32) (mean, maxAbs float64) {
	if len(want) == 0 {
		return 0, 0
	}
	var sum float64
	for i := range want {
		d := math.Abs(float64(want[i]) - float64(got[i]))
		sum += d
		maxAbs = math.Max(maxAbs, d)
	}
	return sum / float64(len(want)), maxAbs
}
