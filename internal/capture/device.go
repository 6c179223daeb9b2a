package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/gen2brain/heic"
)

// Facing selects which camera to request
type Facing string

const (
	FacingAny         Facing = ""
	FacingEnvironment Facing = "environment" // rear camera
	FacingUser        Facing = "user"        // front camera
)

// Constraints describe the stream a caller would like. Width and Height are
// ideal values, not hard requirements.
type Constraints struct {
	Facing Facing
	Width  int
	Height int
}

// DefaultConstraints asks for the rear camera at 1920x1080
func DefaultConstraints() Constraints {
	return Constraints{
		Facing: FacingEnvironment,
		Width:  1920,
		Height: 1080,
	}
}

// Device opens camera streams
type Device interface {
	// Open requests a stream. Implementations return ErrPermissionDenied,
	// ErrNoDevice, ErrDeviceBusy or ErrOverconstrained on failure.
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live camera stream made of one or more tracks
type Stream interface {
	Tracks() []Track
}

// Track is a single media track of a stream
type Track interface {
	Kind() string
	Live() bool
	// Frame returns the current video frame
	Frame() (image.Image, error)
	Stop()
}

// ImageFileDevice is a camera backed by a still image on disk. Every frame
// is the decoded image. It lets the pipeline run where no camera hardware
// is attached, e.g. when importing photos taken on a phone (HEIC included).
type ImageFileDevice struct {
	Path   string
	Facing Facing

	mu   sync.Mutex
	open bool
}

// Open decodes the backing image and returns a single-track stream
func (d *ImageFileDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Facing != FacingAny && d.Facing != FacingAny && c.Facing != d.Facing {
		return nil, ErrOverconstrained
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil, ErrDeviceBusy
	}

	data, err := os.ReadFile(d.Path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrNoDevice, d.Path)
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, d.Path)
		}
		return nil, fmt.Errorf("reading %s: %w", d.Path, err)
	}

	img, err := decodeFrame(d.Path, data)
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	d.open = true
	track := &imageTrack{img: img, onStop: d.closed}
	return &imageStream{tracks: []Track{track}}, nil
}

func (d *ImageFileDevice) closed() {
	d.mu.Lock()
	d.open = false
	d.mu.Unlock()
}

func decodeFrame(path string, data []byte) (image.Image, error) {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".heic") || strings.HasSuffix(lower, ".heif") {
		return heic.Decode(bytes.NewReader(data))
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

type imageStream struct {
	tracks []Track
}

func (s *imageStream) Tracks() []Track {
	return s.tracks
}

type imageTrack struct {
	mu      sync.Mutex
	img     image.Image
	stopped bool
	onStop  func()
}

func (t *imageTrack) Kind() string {
	return "video"
}

func (t *imageTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

func (t *imageTrack) Frame() (image.Image, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil, errors.New("track stopped")
	}
	return t.img, nil
}

func (t *imageTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()
	if t.onStop != nil {
		t.onStop()
	}
}
