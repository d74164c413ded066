package kernels_test

import (
	"errors"
	"math"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/npusim/kernels"
	"github.com/sarchlab/npusim/simerr"
)

func randomScores(rng *rand.Rand, rows, cols int, spread float64) *kernels.Tensor[float32] {
	t := kernels.New[float32](rows, cols)
	for i := range t.Data {
		t.Data[i] = float32((rng.Float64()*2 - 1) * spread)
	}
	return t
}

func rowSums(t *kernels.Tensor[float32]) []float64 {
	sums := make([]float64, t.Shape[0])
	for i := range sums {
		for _, v := range t.Row(i) {
			sums[i] += float64(v)
		}
	}
	return sums
}

var _ = Describe("Softmax", func() {
	var rng *rand.Rand

	BeforeEach(func() {
		rng = rand.New(rand.NewSource(42))
	})

	It("should produce exact rows summing to one", func() {
		x := randomScores(rng, 8, 33, 6)
		p, err := kernels.SoftmaxExact(x, -1)
		Expect(err).NotTo(HaveOccurred())
		for _, s := range rowSums(p) {
			Expect(s).To(BeNumerically("~", 1.0, 1e-6))
		}
	})

	It("should produce approximate rows summing to one", func() {
		x := randomScores(rng, 8, 33, 20)
		p, err := kernels.SoftmaxApprox(x, -1)
		Expect(err).NotTo(HaveOccurred())
		for _, s := range rowSums(p) {
			Expect(s).To(BeNumerically("~", 1.0, 1e-4))
		}
	})

	It("should track the exact softmax closely", func() {
		x := randomScores(rng, 4, 16, 3)
		exact, _ := kernels.SoftmaxExact(x, -1)
		approx, _ := kernels.SoftmaxApprox(x, -1)
		for i := range exact.Data {
			Expect(float64(approx.Data[i])).To(BeNumerically("~", float64(exact.Data[i]), 1e-3))
		}
	})

	It("should normalize along a leading axis", func() {
		x := randomScores(rng, 5, 3, 2)
		p, err := kernels.SoftmaxExact(x, 0)
		Expect(err).NotTo(HaveOccurred())
		for c := 0; c < 3; c++ {
			sum := 0.0
			for r := 0; r < 5; r++ {
				sum += float64(p.At(r, c))
			}
			Expect(sum).To(BeNumerically("~", 1.0, 1e-6))
		}
	})

	It("should be invariant to a constant shift", func() {
		x, _ := kernels.FromSlice([]float32{1, 2, 3}, 3)
		y, _ := kernels.FromSlice([]float32{101, 102, 103}, 3)
		px, _ := kernels.SoftmaxExact(x, 0)
		py, _ := kernels.SoftmaxExact(y, 0)
		for i := range px.Data {
			Expect(py.Data[i]).To(BeNumerically("~", px.Data[i], 1e-6))
		}
	})

	It("should reject an out-of-range axis", func() {
		x := kernels.New[float32](2, 2)
		_, err := kernels.SoftmaxApprox(x, 2)
		Expect(errors.Is(err, simerr.ErrShapeMismatch)).To(BeTrue())
	})

	Describe("ExpApprox", func() {
		It("should hit the table endpoints", func() {
			Expect(kernels.ExpApprox(0)).To(BeNumerically("~", 1.0, 1e-12))
			Expect(kernels.ExpApprox(-8)).To(BeNumerically("~", math.Exp(-8), 1e-12))
		})

		It("should clamp outside the domain", func() {
			Expect(kernels.ExpApprox(3)).To(BeNumerically("~", 1.0, 1e-12))
			Expect(kernels.ExpApprox(-50)).To(BeNumerically("~", math.Exp(-8), 1e-12))
		})

		It("should stay within interpolation error inside the domain", func() {
			// Linear interpolation of exp errs by at most h²/8 times the
			// largest value on the segment.
			h := -kernels.ExpLUTMin / float64(kernels.ExpLUTSize-1)
			for x := -8.0; x <= 0; x += 0.013 {
				bound := h*h/8*math.Exp(math.Min(x+h, 0)) + 1e-12
				Expect(kernels.ExpApprox(x)).To(BeNumerically("~", math.Exp(x), bound))
			}
			Expect(kernels.ExpApprox(-h/2)).To(BeNumerically("~", math.Exp(-h/2), 1.3e-4))
		})
	})
})
