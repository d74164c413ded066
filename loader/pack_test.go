package loader_test

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/npusim/kernels"
	"github.com/sarchlab/npusim/loader"
	"github.com/sarchlab/npusim/simerr"
)

var _ = Describe("Weight packs", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "pack-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	Describe("Synthetic", func() {
		It("should be deterministic for a seed", func() {
			a := loader.Synthetic(16, 123)
			b := loader.Synthetic(16, 123)
			Expect(a.WQ.Data).To(Equal(b.WQ.Data))
			Expect(a.WV.Data).To(Equal(b.WV.Data))
			Expect(a.DequantScale).To(Equal(b.DequantScale))
		})

		It("should differ across seeds", func() {
			a := loader.Synthetic(16, 1)
			b := loader.Synthetic(16, 2)
			Expect(a.WQ.Data).NotTo(Equal(b.WQ.Data))
		})

		It("should use the full int8 range per matrix", func() {
			ws := loader.Synthetic(16, 7)
			Expect(ws.Validate()).To(Succeed())
			for _, w := range []*kernels.Tensor[int8]{ws.WQ, ws.WK, ws.WV} {
				maxAbs := 0
				for _, v := range w.Data {
					a := int(v)
					if a < 0 {
						a = -a
					}
					if a > maxAbs {
						maxAbs = a
					}
				}
				Expect(maxAbs).To(Equal(127))
			}
			Expect(ws.DequantScale).To(BeNumerically(">", 0))
		})
	})

	Describe("Save and Load", func() {
		It("should read back a flat pack", func() {
			ws := loader.Synthetic(8, 5)
			Expect(loader.Save(tempDir, ws)).To(Succeed())
			Expect(filepath.Join(tempDir, loader.FlatFile)).To(BeAnExistingFile())

			got, err := loader.Load(tempDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Dim).To(Equal(8))
			Expect(got.WQ.Data).To(Equal(ws.WQ.Data))
			Expect(got.WK.Data).To(Equal(ws.WK.Data))
			Expect(got.WV.Data).To(Equal(ws.WV.Data))
			Expect(got.DequantScale).To(BeNumerically("~", ws.DequantScale, 1e-7))
		})

		It("should read back an npy pack", func() {
			ws := loader.Synthetic(4, 9)
			Expect(loader.SaveNpy(tempDir, ws)).To(Succeed())

			meta, err := loader.LoadMeta(tempDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(meta.Format).To(Equal(loader.FormatNpy))

			got, err := loader.Load(tempDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.WK.Shape).To(Equal([]int{4, 4}))
			Expect(got.WK.Data).To(Equal(ws.WK.Data))
		})

		It("should fail without a descriptor", func() {
			_, err := loader.Load(tempDir)
			Expect(err).To(HaveOccurred())
		})

		It("should reject a truncated flat file", func() {
			Expect(loader.Save(tempDir, loader.Synthetic(4, 1))).To(Succeed())
			Expect(os.WriteFile(filepath.Join(tempDir, loader.FlatFile), make([]byte, 10), 0o644)).To(Succeed())

			_, err := loader.Load(tempDir)
			Expect(errors.Is(err, simerr.ErrShapeMismatch)).To(BeTrue())
		})

		It("should reject npy matrices that disagree with the declared dim", func() {
			ws := loader.Synthetic(4, 1)
			Expect(loader.SaveNpy(tempDir, ws)).To(Succeed())
			Expect(loader.WriteNpyFile(filepath.Join(tempDir, loader.KeyFile), kernels.New[int8](3, 3))).To(Succeed())

			_, err := loader.Load(tempDir)
			Expect(errors.Is(err, simerr.ErrShapeMismatch)).To(BeTrue())
		})
	})

	Describe("CheckDim", func() {
		It("should report a configuration mismatch", func() {
			ws := loader.Synthetic(8, 1)
			Expect(ws.CheckDim(8)).To(Succeed())

			err := ws.CheckDim(16)
			Expect(errors.Is(err, simerr.ErrConfigMismatch)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("pack dim mismatch"))
		})
	})

	Describe("Validate", func() {
		It("should reject a missing matrix", func() {
			ws := loader.Synthetic(4, 1)
			ws.WV = nil
			Expect(ws.Validate()).NotTo(Succeed())
		})

		It("should reject a negative scale", func() {
			ws := loader.Synthetic(4, 1)
			ws.DequantScale = -1
			Expect(ws.Validate()).NotTo(Succeed())
		})
	})
})
