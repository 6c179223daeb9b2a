package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/tracking"
)

// mockGateway issues job-1, job-2, ... and answers polls from res. A
// resolution set before the upload is kept.
type mockGateway struct {
	mu          sync.Mutex
	submitErr   error
	reprocErr   error
	submitted   []string
	reprocessed []tracking.TrackingHandle
	res         map[tracking.TrackingHandle]tracking.Resolution
	n           int
}

func newMockGateway() *mockGateway {
	return &mockGateway{res: make(map[tracking.TrackingHandle]tracking.Resolution)}
}

func (m *mockGateway) Submit(ctx context.Context, a *capture.Artifact) (tracking.TrackingHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return "", m.submitErr
	}
	m.n++
	h := tracking.TrackingHandle(fmt.Sprintf("job-%d", m.n))
	m.submitted = append(m.submitted, a.MediaType)
	if _, ok := m.res[h]; !ok {
		m.res[h] = tracking.Pending(h)
	}
	return h, nil
}

func (m *mockGateway) Resolve(ctx context.Context, h tracking.TrackingHandle) (tracking.Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.res[h]; ok {
		return r, nil
	}
	return tracking.Resolution{}, fmt.Errorf("job %s not found", h)
}

func (m *mockGateway) Reprocess(ctx context.Context, h tracking.TrackingHandle) (tracking.TrackingHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reprocErr != nil {
		return "", m.reprocErr
	}
	m.reprocessed = append(m.reprocessed, h)
	m.res[h] = tracking.Pending(h)
	return h, nil
}

func (m *mockGateway) set(r tracking.Resolution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.res[r.Handle] = r
}

func (m *mockGateway) setSubmitErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitErr = err
}

func (m *mockGateway) submitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submitted)
}

// deniedDevice refuses every camera request
type deniedDevice struct{}

func (deniedDevice) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	return nil, capture.ErrPermissionDenied
}

// events records the callbacks of a run
type events struct {
	mu        sync.Mutex
	successes []string
	errs      []error
	timeouts  int
}

func (e *events) callbacks() Callbacks {
	return Callbacks{
		OnSuccess: func(id string) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.successes = append(e.successes, id)
		},
		OnError: func(err error) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.errs = append(e.errs, err)
		},
		OnTimeout: func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.timeouts++
		},
	}
}

func (e *events) successList() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.successes...)
}

func (e *events) errorCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

func (e *events) timeoutCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeouts
}

func pngBytes(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 240, G: 240, B: 230, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
