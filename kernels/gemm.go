package kernels

import (
	"github.com/sarchlab/npusim/simerr"
)

// GEMM computes the exact integer product of int16 activations a [M,K] and
// int8 weights b [K,N] with 32-bit accumulation.
func GEMM(a *Tensor[int16], b *Tensor[int8]) (*Tensor[int32], error) {
	if a.Rank() != 2 || b.Rank() != 2 {
		return nil, simerr.ShapeMismatch("gemm",
			"a and b must be 2D tensors, got rank %d and %d", a.Rank(), b.Rank())
	}
	m, ka := a.Shape[0], a.Shape[1]
	kb, n := b.Shape[0], b.Shape[1]
	if ka != kb {
		return nil, simerr.ShapeMismatch("gemm",
			"GEMM shape mismatch: A K=%d, B K=%d", ka, kb)
	}

	out := New[int32](m, n)
	for i := 0; i < m; i++ {
		aRow := a.Data[i*ka : (i+1)*ka]
		oRow := out.Data[i*n : (i+1)*n]
		for k, av := range aRow {
			if av == 0 {
				continue
			}
			a32 := int32(av)
			bRow := b.Data[k*n : (k+1)*n]
			for j, bv := range bRow {
				oRow[j] += a32 * int32(bv)
			}
		}
	}
	return out, nil
}

// GEMMBias computes GEMM(a, b) and adds a per-column bias of shape [N].
func GEMMBias(a *Tensor[int16], b *Tensor[int8], bias *Tensor[int32]) (*Tensor[int32], error) {
	out, err := GEMM(a, b)
	if err != nil {
		return nil, err
	}
	n := out.Shape[1]
	if bias.Rank() != 1 || bias.Shape[0] != n {
		return nil, simerr.ShapeMismatch("gemm_bias", "bias shape must be (%d,), got %v", n, bias.Shape)
	}
	for i := 0; i < out.Shape[0]; i++ {
		row := out.Row(i)
		for j := range row {
			row[j] += bias.Data[j]
		}
	}
	return out, nil
}

// MatVec multiplies a single int16 activation vector x [K] by weights w
// [K,N]. It is GEMM with M=1 and returns a flat [N] result.
func MatVec(x []int16, w *Tensor[int8]) ([]int32, error) {
	a := &Tensor[int16]{Shape: []int{1, len(x)}, Data: x}
	out, err := GEMM(a, w)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}
