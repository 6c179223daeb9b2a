package capture

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Policy", func() {
	var policy Policy

	BeforeEach(func() {
		policy = DefaultPolicy()
	})

	DescribeTable("Validate",
		func(mediaType string, size int, expected ValidationResult) {
			a := NewArtifact("receipt", bytes.Repeat([]byte{0}, size), mediaType)
			Expect(policy.Validate(a)).To(Equal(expected))
		},
		Entry("accepts a 2 MiB JPEG", MediaTypeJPEG, 2<<20, ValidationResult{OK: true}),
		Entry("accepts a PDF at exactly the limit", MediaTypePDF, 10<<20, ValidationResult{OK: true}),
		Entry("accepts image/jpg as JPEG", "image/jpg", 1024, ValidationResult{OK: true}),
		Entry("accepts a type with parameters", "image/png; charset=binary", 1024, ValidationResult{OK: true}),
		Entry("rejects a 12 MiB PNG as too large", MediaTypePNG, 12<<20, ValidationResult{Reason: ReasonSizeExceeded}),
		Entry("rejects one byte over the limit", MediaTypePNG, 10<<20+1, ValidationResult{Reason: ReasonSizeExceeded}),
		Entry("rejects GIF", "image/gif", 1024, ValidationResult{Reason: ReasonUnsupportedType}),
		Entry("checks the type before the size", "image/gif", 12<<20, ValidationResult{Reason: ReasonUnsupportedType}),
		Entry("accepts an empty file of an allowed type", MediaTypeJPEG, 0, ValidationResult{OK: true}),
	)

	When("the limit is lowered", func() {
		BeforeEach(func() {
			policy.MaxBytes = 100
		})

		It("applies the new limit", func() {
			a := NewArtifact("r.png", bytes.Repeat([]byte{0}, 101), MediaTypePNG)
			Expect(policy.Validate(a).Reason).To(Equal(ReasonSizeExceeded))
		})
	})
})

var _ = Describe("ValidationError", func() {
	It("unwraps to ErrValidation", func() {
		err := &ValidationError{Result: ValidationResult{Reason: ReasonSizeExceeded}}
		Expect(err).To(MatchError(ErrValidation))
		Expect(err.Error()).To(ContainSubstring("size-exceeded"))
	})

	It("carries a user-facing message", func() {
		msg, ok := UserMessage(&ValidationError{Result: ValidationResult{Reason: ReasonUnsupportedType}})
		Expect(ok).To(BeTrue())
		Expect(msg).To(ContainSubstring("Unsupported file type"))
	})
})
