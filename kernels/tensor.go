// Package kernels provides the quantized compute kernels of the decode
// accelerator: integer GEMM with 32-bit accumulation, requantization,
// exact and LUT-approximated softmax, and single-token causal attention.
//
// All kernels are pure functions over row-major Tensors. They never mutate
// their inputs and hold no state.
package kernels

import (
	"fmt"
	"math"

	"github.com/sarchlab/npusim/simerr"
)

// Element is the set of element types a Tensor can hold.
type Element interface {
	~int8 | ~int16 | ~int32 | ~float32 | ~float64
}

// Tensor is a dense row-major array.
type Tensor[T Element] struct {
	// Shape holds the extent of each dimension. len(Shape) is the rank.
	Shape []int
	// Data holds the elements in row-major order.
	Data []T
}

// New allocates a zero-filled tensor of the given shape. It panics on a
// negative dimension or an element count that overflows int.
func New[T Element](shape ...int) *Tensor[T] {
	s := make([]int, len(shape))
	copy(s, shape)
	n, ok := NumElements(s)
	if !ok {
		panic(fmt.Sprintf("kernels: invalid tensor shape %v", s))
	}
	return &Tensor[T]{Shape: s, Data: make([]T, n)}
}

// FromSlice wraps data in a tensor of the given shape without copying.
// It fails with a shape mismatch if the element count disagrees.
func FromSlice[T Element](data []T, shape ...int) (*Tensor[T], error) {
	n := numElements(shape)
	if n != len(data) {
		return nil, simerr.ShapeMismatch("tensor",
			"shape %v needs %d elements, got %d", shape, n, len(data))
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Tensor[T]{Shape: s, Data: data}, nil
}

// FromRows builds a rank-2 tensor from equal-length rows.
func FromRows[T Element](rows [][]T) (*Tensor[T], error) {
	if len(rows) == 0 {
		return New[T](0, 0), nil
	}
	cols := len(rows[0])
	data := make([]T, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, simerr.ShapeMismatch("tensor",
				"row %d has %d elements, expected %d", i, len(r), cols)
		}
		data = append(data, r...)
	}
	return &Tensor[T]{Shape: []int{len(rows), cols}, Data: data}, nil
}

// Rank returns the number of dimensions.
func (t *Tensor[T]) Rank() int {
	return len(t.Shape)
}

// Len returns the total number of elements.
func (t *Tensor[T]) Len() int {
	return len(t.Data)
}

// Dim returns the extent of dimension i. Negative i counts from the end.
func (t *Tensor[T]) Dim(i int) int {
	if i < 0 {
		i += len(t.Shape)
	}
	return t.Shape[i]
}

// Row returns row i of a rank-2 tensor as a slice aliasing the tensor data.
func (t *Tensor[T]) Row(i int) []T {
	cols := t.Shape[1]
	return t.Data[i*cols : (i+1)*cols]
}

// At returns the element at the given multi-index.
func (t *Tensor[T]) At(idx ...int) T {
	off := 0
	for i, v := range idx {
		off = off*t.Shape[i] + v
	}
	return t.Data[off]
}

// Clone returns a deep copy.
func (t *Tensor[T]) Clone() *Tensor[T] {
	c := New[T](t.Shape...)
	copy(c.Data, t.Data)
	return c
}

// Reshape returns a view with a new shape over the same data.
func (t *Tensor[T]) Reshape(shape ...int) (*Tensor[T], error) {
	return FromSlice(t.Data, shape...)
}

// SameShape reports whether two shapes are identical.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Convert copies a tensor into another element type with a plain Go
// conversion per element.
func Convert[D, S Element](src *Tensor[S]) *Tensor[D] {
	dst := New[D](src.Shape...)
	for i, v := range src.Data {
		dst.Data[i] = D(v)
	}
	return dst
}

// NumElements returns the element count of shape. ok is false when a
// dimension is negative or the product overflows int.
func NumElements(shape []int) (n int, ok bool) {
	n = 1
	for _, d := range shape {
		if d < 0 {
			return 0, false
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}

func numElements(shape []int) int {
	n, ok := NumElements(shape)
	if !ok {
		return -1
	}
	return n
}
