package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/zombor/receipt-capture/internal/tracking"
)

// mockDevice returns the queued errors from Open in order, then a stream of
// one video track showing frame
type mockDevice struct {
	mu        sync.Mutex
	errs      []error
	frame     image.Image
	frameErr  error
	noTracks  bool
	requested []Constraints
	tracks    []*mockTrack
}

func newMockDevice(w, h int) *mockDevice {
	return &mockDevice{frame: solidImage(w, h)}
}

func (m *mockDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requested = append(m.requested, c)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if m.noTracks {
		return &mockStream{}, nil
	}
	t := &mockTrack{kind: "video", frame: m.frame, frameErr: m.frameErr}
	m.tracks = append(m.tracks, t)
	return &mockStream{tracks: []Track{t, &mockTrack{kind: "audio"}}}, nil
}

func (m *mockDevice) allStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tracks {
		if t.Live() {
			return false
		}
	}
	return true
}

type mockStream struct {
	tracks []Track
}

func (s *mockStream) Tracks() []Track {
	return s.tracks
}

type mockTrack struct {
	mu       sync.Mutex
	kind     string
	frame    image.Image
	frameErr error
	stops    int
}

func (t *mockTrack) Kind() string {
	return t.kind
}

func (t *mockTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops == 0
}

func (t *mockTrack) Frame() (image.Image, error) {
	if t.frameErr != nil {
		return nil, t.frameErr
	}
	return t.frame, nil
}

func (t *mockTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
}

// mockUploader records submitted artifacts and fails while err is set
type mockUploader struct {
	mu        sync.Mutex
	err       error
	handle    tracking.TrackingHandle
	submitted []string
	onSubmit  func()
}

func (m *mockUploader) Submit(ctx context.Context, a *Artifact) (tracking.TrackingHandle, error) {
	if m.onSubmit != nil {
		m.onSubmit()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, a.Filename)
	if m.err != nil {
		return "", m.err
	}
	return m.handle, nil
}

var errUploadRefused = errors.New("connection refused")

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	return img
}

func pngBytes(w, h int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(w, h)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// minimalPDF builds a one-page PDF with a correct cross-reference table
func minimalPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 300] >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}
