package emu

import (
	"github.com/sarchlab/npusim/kernels"
	"github.com/sarchlab/npusim/simerr"
)

// KVCache stores the key and value vectors of every decoded position of one
// session. Storage for maxSeq positions is allocated up front.
type KVCache struct {
	maxSeq int
	dim    int
	keys   []float32
	values []float32
	length int
}

// NewKVCache creates an empty cache for maxSeq positions of width dim.
func NewKVCache(maxSeq, dim int) *KVCache {
	return &KVCache{
		maxSeq: maxSeq,
		dim:    dim,
		keys:   make([]float32, maxSeq*dim),
		values: make([]float32, maxSeq*dim),
	}
}

// Append stores one position. It fails with a cache overflow when the
// cache is full and with a shape mismatch when k or v is not dim wide.
func (c *KVCache) Append(k, v []float32) error {
	if c.length >= c.maxSeq {
		return simerr.New(simerr.KindCacheOverflow, "kv_append", "kv overflow")
	}
	if len(k) != c.dim || len(v) != c.dim {
		return simerr.ShapeMismatch("kv_append", "kv shape mismatch")
	}
	off := c.length * c.dim
	copy(c.keys[off:off+c.dim], k)
	copy(c.values[off:off+c.dim], v)
	c.length++
	return nil
}

// Keys returns a [Len, Dim] view of the stored keys.
func (c *KVCache) Keys() *kernels.Tensor[float32] {
	return c.view(c.keys)
}

// Values returns a [Len, Dim] view of the stored values.
func (c *KVCache) Values() *kernels.Tensor[float32] {
	return c.view(c.values)
}

func (c *KVCache) view(buf []float32) *kernels.Tensor[float32] {
	return &kernels.Tensor[float32]{
		Shape: []int{c.length, c.dim},
		Data:  buf[:c.length*c.dim],
	}
}

// Len returns the number of stored positions.
func (c *KVCache) Len() int { return c.length }

// Cap returns the capacity in positions.
func (c *KVCache) Cap() int { return c.maxSeq }

// Dim returns the vector width.
func (c *KVCache) Dim() int { return c.dim }

// Reset empties the cache. Storage is kept.
func (c *KVCache) Reset() {
	c.length = 0
}
