package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

// DefaultJPEGQuality is the encoding quality of captured frames
const DefaultJPEGQuality = 95

// DeviceStream is an acquired camera stream. It must be handed back to
// Controller.Release on every exit path.
type DeviceStream struct {
	ID          string
	Constraints Constraints

	stream   Stream
	mu       sync.Mutex
	released bool
}

// Released reports whether every track of the stream has been stopped
func (s *DeviceStream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *DeviceStream) videoTrack() (Track, bool) {
	for _, t := range s.stream.Tracks() {
		if t.Kind() == "video" && t.Live() {
			return t, true
		}
	}
	return nil, false
}

// Controller owns camera acquisition and keeps a ledger of live streams
type Controller struct {
	device      Device
	constraints Constraints
	quality     int
	now         func() time.Time

	mu       sync.Mutex
	live     map[string]*DeviceStream
	opened   int
	released int
}

// NewController creates a Controller with the default constraints and JPEG quality
func NewController(device Device) *Controller {
	return NewControllerWithConstraints(device, DefaultConstraints(), DefaultJPEGQuality)
}

// NewControllerWithConstraints creates a Controller with custom constraints and quality
func NewControllerWithConstraints(device Device, c Constraints, quality int) *Controller {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Controller{
		device:      device,
		constraints: c,
		quality:     quality,
		now:         time.Now,
		live:        make(map[string]*DeviceStream),
	}
}

// Acquire requests a camera stream facing the given direction. When no
// camera satisfies the preferred constraints it falls back to any camera.
// Failures are never retried.
func (c *Controller) Acquire(ctx context.Context, facing Facing) (*DeviceStream, error) {
	preferred := c.constraints
	preferred.Facing = facing

	used := preferred
	stream, err := c.device.Open(ctx, preferred)
	if err != nil && ctx.Err() == nil && (errors.Is(err, ErrOverconstrained) || errors.Is(err, ErrNoDevice)) {
		slog.Warn("Preferred camera unavailable, falling back to any camera", "facing", facing, "error", err)
		used = Constraints{}
		stream, err = c.device.Open(ctx, used)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("acquiring camera: %w", ctxErr)
		}
		de := classifyDeviceError(err)
		slog.Error("Failed to acquire camera", "reason", de.Reason, "error", err)
		return nil, de
	}

	ds := &DeviceStream{
		ID:          uuid.NewString(),
		Constraints: used,
		stream:      stream,
	}

	c.mu.Lock()
	c.live[ds.ID] = ds
	c.opened++
	c.mu.Unlock()

	// The caller gave up while the device was starting.
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.Release(ds)
		return nil, fmt.Errorf("acquiring camera: %w", ctxErr)
	}

	slog.Info("Camera acquired", "stream_id", ds.ID, "facing", used.Facing)
	return ds, nil
}

// CaptureFrame freezes the current video frame into a JPEG artifact
func (c *Controller) CaptureFrame(ctx context.Context, ds *DeviceStream) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("capturing frame: %w", err)
	}
	if ds == nil || ds.Released() {
		return nil, fmt.Errorf("%w: stream is not active", ErrCaptureFailed)
	}

	track, ok := ds.videoTrack()
	if !ok {
		return nil, fmt.Errorf("%w: no active video track", ErrCaptureFailed)
	}

	frame, err := track.Frame()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	frame = scaleToFit(frame, c.constraints.Width, c.constraints.Height)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, fmt.Errorf("%w: encoding JPEG: %v", ErrCaptureFailed, err)
	}

	name := fmt.Sprintf("capture-%s.jpg", c.now().Format("20060102-150405"))
	return NewArtifact(name, buf.Bytes(), MediaTypeJPEG), nil
}

// Release stops every track of the stream. Safe to call more than once.
func (c *Controller) Release(ds *DeviceStream) {
	if ds == nil {
		return
	}

	ds.mu.Lock()
	if ds.released {
		ds.mu.Unlock()
		return
	}
	ds.released = true
	ds.mu.Unlock()

	for _, t := range ds.stream.Tracks() {
		t.Stop()
	}

	c.mu.Lock()
	delete(c.live, ds.ID)
	c.released++
	c.mu.Unlock()

	slog.Info("Camera released", "stream_id", ds.ID)
}

// Live returns the number of acquired streams not yet released
func (c *Controller) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// Counts returns how many streams were opened and released over the controller's life
func (c *Controller) Counts() (opened, released int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened, c.released
}

// scaleToFit shrinks img so it fits the ideal resolution in either orientation
func scaleToFit(img image.Image, width, height int) image.Image {
	if width <= 0 || height <= 0 {
		return img
	}
	long, short := max(width, height), min(width, height)

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	limW, limH := long, short
	if h > w {
		limW, limH = short, long
	}
	if w <= limW && h <= limH {
		return img
	}

	ratio := min(float64(limW)/float64(w), float64(limH)/float64(h))
	dw, dh := max(1, int(float64(w)*ratio)), max(1, int(float64(h)*ratio))
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
