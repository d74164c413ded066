package simerr_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/npusim/simerr"
)

var _ = Describe("Error taxonomy", func() {
	It("should format op and message", func() {
		err := simerr.ShapeMismatch("gemm", "A K=%d, B K=%d", 4, 8)
		Expect(err.Error()).To(Equal("gemm: A K=4, B K=8"))
	})

	It("should omit the op prefix when op is empty", func() {
		err := simerr.New(simerr.KindInvalidRequest, "", "prompt shape must be [T, D]")
		Expect(err.Error()).To(Equal("prompt shape must be [T, D]"))
	})

	It("should match sentinels by kind through wrapping", func() {
		err := fmt.Errorf("run failed: %w", simerr.New(simerr.KindCacheOverflow, "kv_append", "kv overflow"))
		Expect(errors.Is(err, simerr.ErrCacheOverflow)).To(BeTrue())
		Expect(errors.Is(err, simerr.ErrShapeMismatch)).To(BeFalse())
		Expect(simerr.KindOf(err)).To(Equal(simerr.KindCacheOverflow))
	})

	It("should report unknown kind for foreign errors", func() {
		Expect(simerr.KindOf(errors.New("boom"))).To(Equal(simerr.KindUnknown))
		Expect(simerr.KindOf(nil)).To(Equal(simerr.KindUnknown))
	})

	It("should name every kind", func() {
		Expect(simerr.KindConfigMismatch.String()).To(Equal("config_mismatch"))
		Expect(simerr.KindShapeMismatch.String()).To(Equal("shape_mismatch"))
		Expect(simerr.KindCacheOverflow.String()).To(Equal("cache_overflow"))
		Expect(simerr.KindInvalidRequest.String()).To(Equal("invalid_request"))
		Expect(simerr.KindUnknown.String()).To(Equal("unknown"))
	})

	Describe("Signature", func() {
		It("should sum the message bytes", func() {
			// 'a'=97, 'b'=98
			Expect(simerr.SignatureOf("ab")).To(Equal(uint32(195)))
		})

		It("should be zero for nil", func() {
			Expect(simerr.Signature(nil)).To(Equal(uint32(0)))
		})

		It("should be stable and non-zero for a real error", func() {
			err := simerr.InvalidRequest("run", "prompt shape must be [T, D]")
			Expect(simerr.Signature(err)).To(Equal(simerr.SignatureOf(err.Error())))
			Expect(simerr.Signature(err)).NotTo(BeZero())
		})
	})
})
