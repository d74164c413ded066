package loader_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/npusim/kernels"
	"github.com/sarchlab/npusim/loader"
)

var _ = Describe("NPY codec", func() {
	It("should align the data to 64 bytes", func() {
		t, _ := kernels.FromSlice([]int8{-1, 2, -3, 4, 5, -128}, 2, 3)
		img := loader.EncodeNpy(t)
		Expect((len(img) - t.Len()) % 64).To(Equal(0))
		Expect(img[len(img)-t.Len()-1]).To(Equal(byte('\n')))
	})

	It("should decode what it encodes", func() {
		t, _ := kernels.FromSlice([]int8{-1, 2, -3, 4, 5, -128}, 2, 3)
		got, err := loader.ParseNpy(loader.EncodeNpy(t))
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Shape).To(Equal([]int{2, 3}))
		Expect(got.Data).To(Equal(t.Data))
	})

	It("should decode a one-dimensional array", func() {
		t, _ := kernels.FromSlice([]int8{9, 8, 7}, 3)
		got, err := loader.ParseNpy(loader.EncodeNpy(t))
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Shape).To(Equal([]int{3}))
	})

	It("should reject other dtypes", func() {
		header := "{'descr': '<f4', 'fortran_order': False, 'shape': (1,), }\n"
		img := append([]byte("\x93NUMPY\x01\x00"), byte(len(header)), 0)
		img = append(img, header...)
		img = append(img, 0, 0, 0, 0)

		_, err := loader.ParseNpy(img)
		Expect(err).To(MatchError(ContainSubstring("unsupported dtype")))
	})

	It("should reject fortran order", func() {
		header := "{'descr': '|i1', 'fortran_order': True, 'shape': (2,), }\n"
		img := append([]byte("\x93NUMPY\x01\x00"), byte(len(header)), 0)
		img = append(img, header...)
		img = append(img, 1, 2)

		_, err := loader.ParseNpy(img)
		Expect(err).To(HaveOccurred())
	})

	It("should reject a body that does not match the shape", func() {
		header := "{'descr': '|i1', 'fortran_order': False, 'shape': (2, 2), }\n"
		img := append([]byte("\x93NUMPY\x01\x00"), byte(len(header)), 0)
		img = append(img, header...)
		img = append(img, 1, 2, 3)

		_, err := loader.ParseNpy(img)
		Expect(err).To(HaveOccurred())
	})

	It("should reject a shape larger than the body without allocating", func() {
		header := "{'descr': '|i1', 'fortran_order': False, 'shape': (4611686018427387904,), }\n"
		img := append([]byte("\x93NUMPY\x01\x00"), byte(len(header)), 0)
		img = append(img, header...)
		img = append(img, 1, 2, 3)

		var err error
		Expect(func() { _, err = loader.ParseNpy(img) }).NotTo(Panic())
		Expect(err).To(HaveOccurred())
	})

	It("should reject a shape whose element count overflows", func() {
		header := "{'descr': '|i1', 'fortran_order': False, 'shape': (4294967296, 4294967296), }\n"
		img := append([]byte("\x93NUMPY\x01\x00"), byte(len(header)), 0)
		img = append(img, header...)

		var err error
		Expect(func() { _, err = loader.ParseNpy(img) }).NotTo(Panic())
		Expect(err).To(MatchError(ContainSubstring("overflows")))
	})

	It("should reject garbage", func() {
		_, err := loader.ParseNpy([]byte("not numpy at all"))
		Expect(err).To(MatchError("not an npy file"))
	})
})
