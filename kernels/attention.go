package kernels

import (
	"math"

	"github.com/sarchlab/npusim/simerr"
)

// MaskValue is the score written into masked (future) positions before
// softmax in the batched causal attention.
const MaskValue = -1e9

// AttentionDecodeStep attends one query q [D] over the T cached positions
// kAll/vAll [T,D]:
//
//	scores = (kAll · q) / sqrt(D)
//	probs  = SoftmaxApprox(scores)
//	out    = probs · vAll
//
// No mask is applied. At decode step t the cache holds exactly the first t
// positions, so causality is implicit.
func AttentionDecodeStep(q, kAll, vAll *Tensor[float32]) (*Tensor[float32], error) {
	if q.Rank() != 1 || kAll.Rank() != 2 || vAll.Rank() != 2 {
		return nil, simerr.ShapeMismatch("attention",
			"expected q [D], k/v [T,D], got ranks %d, %d, %d", q.Rank(), kAll.Rank(), vAll.Rank())
	}
	d := q.Shape[0]
	t := kAll.Shape[0]
	if kAll.Shape[1] != d || vAll.Shape[1] != d || vAll.Shape[0] != t {
		return nil, simerr.ShapeMismatch("attention",
			"attention shape mismatch: q %v, k %v, v %v", q.Shape, kAll.Shape, vAll.Shape)
	}
	if t == 0 {
		return nil, simerr.ShapeMismatch("attention", "attention over an empty cache")
	}

	scale := 1.0 / math.Sqrt(float64(d))
	scores := make([]float64, t)
	for i := 0; i < t; i++ {
		scores[i] = dot(kAll.Row(i), q.Data) * scale
	}
	probs := softmaxRow(scores)

	acc := make([]float64, d)
	for i, p := range probs {
		for j, v := range vAll.Row(i) {
			acc[j] += p * float64(v)
		}
	}
	out := New[float32](d)
	for j, v := range acc {
		out.Data[j] = float32(v)
	}
	return out, nil
}

// ScaledDotProductAttention is the batched reference attention used for
// golden-vector validation. q is [Tq,D], k and v are [Tk,D]. With causal
// set, position j > i is masked for query i. It returns the output [Tq,D]
// and the probabilities [Tq,Tk].
func ScaledDotProductAttention(
	q, k, v *Tensor[float32],
	causal, approx bool,
) (out, probs *Tensor[float32], err error) {
	if q.Rank() != 2 || k.Rank() != 2 || v.Rank() != 2 {
		return nil, nil, simerr.ShapeMismatch("attention", "q, k, v must be 2D")
	}
	tq, d := q.Shape[0], q.Shape[1]
	tk := k.Shape[0]
	if v.Shape[0] != tk || k.Shape[1] != d || v.Shape[1] != d {
		return nil, nil, simerr.ShapeMismatch("attention",
			"attention shape mismatch: q %v, k %v, v %v", q.Shape, k.Shape, v.Shape)
	}

	scale := 1.0 / math.Sqrt(float64(d))
	scores := New[float32](tq, tk)
	for i := 0; i < tq; i++ {
		row := scores.Row(i)
		for j := 0; j < tk; j++ {
			if causal && j > i {
				row[j] = MaskValue
				continue
			}
			row[j] = float32(dot(k.Row(j), q.Row(i)) * scale)
		}
	}

	if approx {
		probs, err = SoftmaxApprox(scores, -1)
	} else {
		probs, err = SoftmaxExact(scores, -1)
	}
	if err != nil {
		return nil, nil, err
	}

	out = New[float32](tq, d)
	for i := 0; i < tq; i++ {
		oRow := out.Row(i)
		acc := make([]float64, d)
		for j, p := range probs.Row(i) {
			for c, val := range v.Row(j) {
				acc[c] += float64(p) * float64(val)
			}
		}
		for c, a := range acc {
			oRow[c] = float32(a)
		}
	}
	return out, probs, nil
}

func dot(a, b []float32) float64 {
	s := 0.0
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
