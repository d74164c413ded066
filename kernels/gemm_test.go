package kernels_test

import (
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/npusim/kernels"
	"github.com/sarchlab/npusim/simerr"
)

var _ = Describe("GEMM", func() {
	It("should compute an exact integer product", func() {
		a, err := kernels.FromRows([][]int16{{1, 2, 3}, {-4, 5, -6}})
		Expect(err).NotTo(HaveOccurred())
		b, err := kernels.FromRows([][]int8{{1, 0}, {0, 1}, {2, -1}})
		Expect(err).NotTo(HaveOccurred())

		out, err := kernels.GEMM(a, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Shape).To(Equal([]int{2, 2}))
		Expect(out.Data).To(Equal([]int32{7, -1, -16, 11}))
	})

	It("should accumulate beyond the int16 range in 32 bits", func() {
		a, _ := kernels.FromRows([][]int16{{math.MaxInt16, math.MaxInt16}})
		b, _ := kernels.FromRows([][]int8{{math.MinInt8}, {math.MinInt8}})

		out, err := kernels.GEMM(a, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Data[0]).To(Equal(int32(2 * math.MaxInt16 * math.MinInt8)))
	})

	It("should reject mismatched inner dimensions", func() {
		a := kernels.New[int16](2, 3)
		b := kernels.New[int8](4, 2)

		_, err := kernels.GEMM(a, b)
		Expect(errors.Is(err, simerr.ErrShapeMismatch)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("A K=3, B K=4"))
	})

	It("should reject operands that are not rank-2", func() {
		a := kernels.New[int16](6)
		b := kernels.New[int8](6, 2)

		_, err := kernels.GEMM(a, b)
		Expect(errors.Is(err, simerr.ErrShapeMismatch)).To(BeTrue())
	})

	It("should add a per-column bias", func() {
		a, _ := kernels.FromRows([][]int16{{1, 1}})
		b, _ := kernels.FromRows([][]int8{{1, 2}, {3, 4}})
		bias, _ := kernels.FromSlice([]int32{10, -10}, 2)

		out, err := kernels.GEMMBias(a, b, bias)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Data).To(Equal([]int32{14, -4}))
	})

	It("should reject a bias of the wrong width", func() {
		a, _ := kernels.FromRows([][]int16{{1, 1}})
		b, _ := kernels.FromRows([][]int8{{1, 2}, {3, 4}})
		bias, _ := kernels.FromSlice([]int32{1, 2, 3}, 3)

		_, err := kernels.GEMMBias(a, b, bias)
		Expect(errors.Is(err, simerr.ErrShapeMismatch)).To(BeTrue())
	})

	It("should multiply a vector through MatVec", func() {
		w, _ := kernels.FromRows([][]int8{{1, 2}, {3, 4}})
		out, err := kernels.MatVec([]int16{2, -1}, w)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]int32{-1, 0}))
	})
})

var _ = Describe("Tensor", func() {
	It("should reject ragged rows", func() {
		_, err := kernels.FromRows([][]int16{{1, 2}, {3}})
		Expect(errors.Is(err, simerr.ErrShapeMismatch)).To(BeTrue())
	})

	It("should reject a shape that disagrees with the data length", func() {
		_, err := kernels.FromSlice([]float32{1, 2, 3}, 2, 2)
		Expect(errors.Is(err, simerr.ErrShapeMismatch)).To(BeTrue())
	})

	It("should refuse shapes whose element count overflows", func() {
		_, ok := kernels.NumElements([]int{1 << 32, 1 << 32})
		Expect(ok).To(BeFalse())
		_, ok = kernels.NumElements([]int{3, -1})
		Expect(ok).To(BeFalse())
		n, ok := kernels.NumElements([]int{math.MaxInt, 0})
		Expect(ok).To(BeTrue())
		Expect(n).To(Equal(0))

		_, err := kernels.FromSlice([]int8{}, 1<<32, 1<<32)
		Expect(errors.Is(err, simerr.ErrShapeMismatch)).To(BeTrue())
		Expect(func() { kernels.New[int8](1<<32, 1<<32) }).To(Panic())
	})

	It("should index, reshape and clone", func() {
		t, err := kernels.FromSlice([]int32{1, 2, 3, 4, 5, 6}, 2, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(t.At(1, 2)).To(Equal(int32(6)))
		Expect(t.Dim(-1)).To(Equal(3))

		r, err := t.Reshape(3, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Row(2)).To(Equal([]int32{5, 6}))

		c := t.Clone()
		c.Data[0] = 100
		Expect(t.Data[0]).To(Equal(int32(1)))
	})

	It("should convert element types", func() {
		t, _ := kernels.FromSlice([]int16{-3, 7}, 2)
		f := kernels.Convert[float32](t)
		Expect(f.Data).To(Equal([]float32{-3, 7}))
	})
})
