package capture

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ImageFileDevice", func() {
	var (
		path   string
		device *ImageFileDevice
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "receipt.png")
		Expect(os.WriteFile(path, pngBytes(32, 48), 0644)).To(Succeed())
		device = &ImageFileDevice{Path: path, Facing: FacingEnvironment}
	})

	It("should serve the image as a single video track", func() {
		stream, err := device.Open(context.Background(), DefaultConstraints())
		Expect(err).NotTo(HaveOccurred())

		tracks := stream.Tracks()
		Expect(tracks).To(HaveLen(1))
		Expect(tracks[0].Kind()).To(Equal("video"))

		frame, err := tracks[0].Frame()
		Expect(err).NotTo(HaveOccurred())
		Expect(frame.Bounds().Dx()).To(Equal(32))
		Expect(frame.Bounds().Dy()).To(Equal(48))
	})

	It("is busy until the track stops", func() {
		stream, err := device.Open(context.Background(), DefaultConstraints())
		Expect(err).NotTo(HaveOccurred())

		_, err = device.Open(context.Background(), DefaultConstraints())
		Expect(err).To(MatchError(ErrDeviceBusy))

		stream.Tracks()[0].Stop()
		Expect(stream.Tracks()[0].Live()).To(BeFalse())
		_, err = device.Open(context.Background(), DefaultConstraints())
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects the wrong facing", func() {
		_, err := device.Open(context.Background(), Constraints{Facing: FacingUser})
		Expect(err).To(MatchError(ErrOverconstrained))
	})

	It("reports a missing file as no device", func() {
		device.Path = filepath.Join(filepath.Dir(path), "missing.png")
		_, err := device.Open(context.Background(), DefaultConstraints())
		Expect(err).To(MatchError(ErrNoDevice))
	})

	When("driven by a controller", func() {
		It("should fall back from the front camera and capture a frame", func() {
			controller := NewController(device)
			ds, err := controller.Acquire(context.Background(), FacingUser)
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.Constraints.Facing).To(Equal(FacingAny))

			a, err := controller.CaptureFrame(context.Background(), ds)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.MediaType).To(Equal(MediaTypeJPEG))

			controller.Release(ds)
			Expect(controller.Live()).To(BeZero())
		})
	})
})
