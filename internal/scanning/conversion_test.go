package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func encodedImage(encode func(*bytes.Buffer, image.Image) error) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for x := 0; x < 8; x++ {
		img.Set(x, 1, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	Expect(encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("toPNG", func() {
	When("the input is already PNG", func() {
		It("returns it unchanged", func() {
			data := encodedImage(func(b *bytes.Buffer, i image.Image) error { return png.Encode(b, i) })
			out, err := toPNG(data, "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(data))
		})
	})

	When("the input is JPEG", func() {
		It("re-encodes it as PNG of the same size", func() {
			data := encodedImage(func(b *bytes.Buffer, i image.Image) error { return jpeg.Encode(b, i, nil) })
			out, err := toPNG(data, " IMAGE/JPEG ")
			Expect(err).NotTo(HaveOccurred())

			cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
			Expect(err).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
			Expect(cfg.Width).To(Equal(8))
			Expect(cfg.Height).To(Equal(4))
		})
	})

	When("the input is not an image", func() {
		It("returns an error", func() {
			_, err := toPNG([]byte("hello"), "image/jpeg")
			Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
		})
	})
})

var _ = Describe("isHEIC", func() {
	It("detects the ftyp brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEIC(data, "")).To(BeTrue())
	})

	It("detects the media type", func() {
		Expect(isHEIC(nil, "image/heif")).To(BeTrue())
	})

	It("rejects other files", func() {
		Expect(isHEIC([]byte("%PDF-1.4 not heic"), "application/pdf")).To(BeFalse())
	})
})
