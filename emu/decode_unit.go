package emu

import (
	"github.com/sarchlab/npusim/kernels"
	"github.com/sarchlab/npusim/loader"
)

// DecodeUnit performs one autoregressive decode step:
//
//	q, k, v = x·W_q, x·W_k, x·W_v   (int32 accumulators, then float32)
//	cache  <- (k, v)
//	y      = attention(q, cache)
//	out    = requantize(round(y), dequant_scale)
//
// The output has the same width as the input and becomes the next step's
// input. This treats the projected space as the embedding space, which holds
// for this single-block pipeline but not for a real multi-layer model.
type DecodeUnit struct {
	weights *loader.WeightSet
	scale   float64
}

// NewDecodeUnit creates a decode unit over ws.
func NewDecodeUnit(ws *loader.WeightSet) *DecodeUnit {
	return &DecodeUnit{weights: ws, scale: float64(ws.DequantScale)}
}

// Weights returns the weight set the unit computes with.
func (u *DecodeUnit) Weights() *loader.WeightSet {
	return u.weights
}

// Step consumes x, appends this position's key and value to cache before
// attending over it, and returns the quantized output.
func (u *DecodeUnit) Step(x []int16, cache *KVCache) ([]int16, error) {
	q, err := u.project(x, u.weights.WQ)
	if err != nil {
		return nil, err
	}
	k, err := u.project(x, u.weights.WK)
	if err != nil {
		return nil, err
	}
	v, err := u.project(x, u.weights.WV)
	if err != nil {
		return nil, err
	}

	if err := cache.Append(k.Data, v.Data); err != nil {
		return nil, err
	}

	y, err := kernels.AttentionDecodeStep(q, cache.Keys(), cache.Values())
	if err != nil {
		return nil, err
	}

	acc := kernels.New[int32](y.Len())
	for i, f := range y.Data {
		acc.Data[i] = kernels.RoundToInt32(float64(f))
	}
	return kernels.Requantize(acc, u.scale).Data, nil
}

func (u *DecodeUnit) project(x []int16, w *kernels.Tensor[int8]) (*kernels.Tensor[float32], error) {
	acc, err := kernels.MatVec(x, w)
	if err != nil {
		return nil, err
	}
	out := kernels.New[float32](len(acc))
	for i, a := range acc {
		out.Data[i] = float32(a)
	}
	return out, nil
}
