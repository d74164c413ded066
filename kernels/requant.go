package kernels

import (
	"math"

	"github.com/sarchlab/npusim/simerr"
)

const (
	int16Min = math.MinInt16
	int16Max = math.MaxInt16
	int8Min  = math.MinInt8
	int8Max  = math.MaxInt8
)

// Requantize maps int32 accumulators back to int16 activations:
// round(x*scale), half to even, clamped to [-32768, 32767].
func Requantize(x *Tensor[int32], scale float64) *Tensor[int16] {
	out := New[int16](x.Shape...)
	for i, v := range x.Data {
		out.Data[i] = ClampInt16(math.RoundToEven(float64(v) * scale))
	}
	return out
}

// RequantizeRational is the integer-friendly requantization used by the
// golden vectors: round(x*num/den) + zeroPoint, clamped to int16.
func RequantizeRational(x *Tensor[int32], num, den, zeroPoint int) (*Tensor[int16], error) {
	if den <= 0 {
		return nil, simerr.InvalidRequest("requantize", "scale_den must be positive")
	}
	out := New[int16](x.Shape...)
	for i, v := range x.Data {
		scaled := math.RoundToEven(float64(v) * float64(num) / float64(den))
		out.Data[i] = ClampInt16(scaled + float64(zeroPoint))
	}
	return out, nil
}

// ClampInt16 saturates v into the int16 range. NaN maps to 0.
func ClampInt16(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= int16Min:
		return int16Min
	case v >= int16Max:
		return int16Max
	}
	return int16(v)
}

// ClampInt8 saturates v into the int8 range. NaN maps to 0.
func ClampInt8(v float64) int8 {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= int8Min:
		return int8Min
	case v >= int8Max:
		return int8Max
	}
	return int8(v)
}

// RoundToInt32 rounds half to even and saturates into the int32 range.
func RoundToInt32(v float64) int32 {
	r := math.RoundToEven(v)
	switch {
	case math.IsNaN(r):
		return 0
	case r <= math.MinInt32:
		return math.MinInt32
	case r >= math.MaxInt32:
		return math.MaxInt32
	}
	return int32(r)
}

// QuantizeInt8 performs symmetric max-abs quantization of w to int8 and
// returns the dequantization scale (1/quant scale). An all-zero input
// quantizes with scale 1.
func QuantizeInt8(w []float32) ([]int8, float32) {
	maxAbs := 0.0
	for _, v := range w {
		if a := math.Abs(float64(v)); a > maxAbs {
			maxAbs = a
		}
	}
	scale := 1.0
	if maxAbs > 0 {
		scale = 127.0 / maxAbs
	}
	q := make([]int8, len(w))
	for i, v := range w {
		q[i] = ClampInt8(math.RoundToEven(float64(v) * scale))
	}
	return q, float32(1.0 / scale)
}
