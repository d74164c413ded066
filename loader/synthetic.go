package loader

import (
	"math/rand"

	"github.com/sarchlab/npusim/kernels"
)

// DefaultSeed is the seed used for synthetic packs when none is given.
const DefaultSeed = 123

// Synthetic builds a deterministic pack of the given dimension. Each
// projection is drawn from N(0, 0.5²), quantized to int8 with its own
// max-abs scale, and the pack carries the mean of the three dequantization
// scales.
func Synthetic(dim int, seed int64) *WeightSet {
	rng := rand.New(rand.NewSource(seed))

	mats := make([]*kernels.Tensor[int8], 3)
	var scaleSum float64
	for m := range mats {
		w := make([]float32, dim*dim)
		for i := range w {
			w[i] = float32(rng.NormFloat64() * 0.5)
		}
		q, s := kernels.QuantizeInt8(w)
		mats[m] = &kernels.Tensor[int8]{Shape: []int{dim, dim}, Data: q}
		scaleSum += float64(s)
	}

	return &WeightSet{
		Dim:          dim,
		WQ:           mats[0],
		WK:           mats[1],
		WV:           mats[2],
		DequantScale: float32(scaleSum / 3),
	}
}
