package calibration_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/npusim/calibration"
)

var _ = Describe("Fit", func() {
	It("should recover an exact affine relation", func() {
		pred := []float64{10, 20, 30, 40}
		obs := []float64{23, 43, 63, 83}

		scale, bias := calibration.Fit(pred, obs)

		Expect(scale).To(BeNumerically("~", 2, 1e-9))
		Expect(bias).To(BeNumerically("~", 3, 1e-9))
		Expect(calibration.MAE(pred, obs, scale, bias)).To(BeNumerically("~", 0, 1e-9))
	})

	It("should fall back to identity when predictions have no spread", func() {
		scale, bias := calibration.Fit([]float64{16, 16, 16}, []float64{20, 30, 40})

		Expect(scale).To(Equal(1.0))
		Expect(bias).To(Equal(0.0))
	})

	It("should fall back to identity for a single point", func() {
		scale, bias := calibration.Fit([]float64{16}, []float64{32})

		Expect(scale).To(Equal(1.0))
		Expect(bias).To(Equal(0.0))
	})

	It("should fall back to identity for mismatched lengths", func() {
		scale, bias := calibration.Fit([]float64{1, 2}, []float64{1})

		Expect(scale).To(Equal(1.0))
		Expect(bias).To(Equal(0.0))
	})

	It("should compute mean absolute error", func() {
		Expect(calibration.MAE([]float64{1, 2}, []float64{2, 4}, 1, 0)).To(Equal(1.5))
		Expect(calibration.MAE(nil, nil, 1, 0)).To(Equal(0.0))
	})
})
