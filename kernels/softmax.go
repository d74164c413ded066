package kernels

import (
	"math"

	"github.com/sarchlab/npusim/simerr"
)

const (
	// ExpLUTSize is the number of lookup points of the approximate
	// exponential unit.
	ExpLUTSize = 257
	// ExpLUTMin is the lower edge of the LUT domain. The upper edge is 0.
	ExpLUTMin = -8.0
	// ExpFloor is the smallest value the approximate exponential returns
	// inside softmax, keeping the normalizer away from zero.
	ExpFloor = 1e-8
)

var expLUT = buildExpLUT()

func buildExpLUT() [ExpLUTSize]float64 {
	var lut [ExpLUTSize]float64
	step := -ExpLUTMin / float64(ExpLUTSize-1)
	for i := range lut {
		lut[i] = math.Exp(ExpLUTMin + float64(i)*step)
	}
	return lut
}

// ExpApprox evaluates exp(x) by linear interpolation over a 257-point table
// spanning [-8, 0]. Inputs outside the domain are clamped to it.
func ExpApprox(x float64) float64 {
	if x > 0 || math.IsNaN(x) {
		x = 0
	}
	if x < ExpLUTMin {
		x = ExpLUTMin
	}
	pos := (x - ExpLUTMin) / -ExpLUTMin * float64(ExpLUTSize-1)
	i0 := int(math.Floor(pos))
	i1 := i0 + 1
	if i1 > ExpLUTSize-1 {
		i1 = ExpLUTSize - 1
	}
	frac := pos - float64(i0)
	return expLUT[i0]*(1-frac) + expLUT[i1]*frac
}

// SoftmaxExact computes a numerically stable softmax along axis. Negative
// axis counts from the end.
func SoftmaxExact(x *Tensor[float32], axis int) (*Tensor[float32], error) {
	return softmax(x, axis, math.Exp, 0)
}

// SoftmaxApprox computes softmax along axis using the LUT exponential.
// Shifted inputs are clamped to [-8, 0] and exponentials floored at 1e-8
// before normalization.
func SoftmaxApprox(x *Tensor[float32], axis int) (*Tensor[float32], error) {
	return softmax(x, axis, ExpApprox, ExpFloor)
}

func softmax(
	x *Tensor[float32],
	axis int,
	exp func(float64) float64,
	floor float64,
) (*Tensor[float32], error) {
	rank := x.Rank()
	if axis < 0 {
		axis += rank
	}
	if rank == 0 || axis < 0 || axis >= rank {
		return nil, simerr.ShapeMismatch("softmax", "axis %d out of range for rank %d", axis, rank)
	}

	outer, inner := 1, 1
	for i := 0; i < axis; i++ {
		outer *= x.Shape[i]
	}
	for i := axis + 1; i < rank; i++ {
		inner *= x.Shape[i]
	}
	n := x.Shape[axis]

	out := New[float32](x.Shape...)
	if n == 0 {
		return out, nil
	}

	lane := make([]float64, n)
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*n*inner + in
			maxV := math.Inf(-1)
			for j := 0; j < n; j++ {
				if v := float64(x.Data[base+j*inner]); v > maxV {
					maxV = v
				}
			}
			sum := 0.0
			for j := 0; j < n; j++ {
				e := exp(float64(x.Data[base+j*inner]) - maxV)
				if e < floor {
					e = floor
				}
				lane[j] = e
				sum += e
			}
			for j := 0; j < n; j++ {
				out.Data[base+j*inner] = float32(lane[j] / sum)
			}
		}
	}
	return out, nil
}

// softmaxRow is the single-row approximate softmax used on the decode path.
func softmaxRow(scores []float64) []float64 {
	maxV := math.Inf(-1)
	for _, v := range scores {
		if v > maxV {
			maxV = v
		}
	}
	probs := make([]float64, len(scores))
	sum := 0.0
	for i, v := range scores {
		e := ExpApprox(v - maxV)
		if e < ExpFloor {
			e = ExpFloor
		}
		probs[i] = e
		sum += e
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
