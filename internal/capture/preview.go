package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
)

// PreviewHandle is a revocable reference to a staged artifact used to show it
// to the user before upload
type PreviewHandle struct {
	ID string

	registry *PreviewRegistry
	artifact *Artifact
	revoked  bool
}

// URL returns the handle's address for display layers
func (h *PreviewHandle) URL() string {
	return "preview://" + h.ID
}

// Revoked reports whether the handle has been released
func (h *PreviewHandle) Revoked() bool {
	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()
	return h.revoked
}

// Thumbnail renders a PNG no larger than maxDim on either side.
// PDFs render their first page.
func (h *PreviewHandle) Thumbnail(maxDim int) ([]byte, error) {
	// Sessions revoke the handle before releasing the artifact, so fields
	// copied under the registry lock stay valid after it is dropped.
	h.registry.mu.Lock()
	if h.revoked {
		h.registry.mu.Unlock()
		return nil, ErrPreviewRevoked
	}
	a := Artifact{
		ID:        h.artifact.ID,
		Filename:  h.artifact.Filename,
		MediaType: h.artifact.MediaType,
		Data:      h.artifact.Data,
	}
	h.registry.mu.Unlock()

	img, err := decodePreview(&a)
	if err != nil {
		return nil, fmt.Errorf("rendering preview: %w", err)
	}
	img = scaleToFit(img, maxDim, maxDim)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding preview: %w", err)
	}
	return buf.Bytes(), nil
}

func decodePreview(a *Artifact) (image.Image, error) {
	if a.MediaType == MediaTypePDF {
		doc, err := fitz.NewFromMemory(a.Data)
		if err != nil {
			return nil, fmt.Errorf("opening PDF: %w", err)
		}
		defer doc.Close()
		return doc.Image(0)
	}
	return decodeFrame(a.Filename, a.Data)
}

// PreviewRegistry tracks every outstanding preview handle so leaks can be detected
type PreviewRegistry struct {
	mu        sync.Mutex
	handles   map[string]*PreviewHandle
	created   int
	revoked   int
	highWater int
}

// NewPreviewRegistry creates an empty registry
func NewPreviewRegistry() *PreviewRegistry {
	return &PreviewRegistry{
		handles: make(map[string]*PreviewHandle),
	}
}

// Create registers a new handle for the artifact
func (r *PreviewRegistry) Create(a *Artifact) *PreviewHandle {
	h := &PreviewHandle{
		ID:       uuid.NewString(),
		registry: r,
		artifact: a,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.ID] = h
	r.created++
	r.highWater = max(r.highWater, len(r.handles))
	return h
}

// Revoke releases a handle. It returns false when the handle was already revoked.
func (r *PreviewRegistry) Revoke(h *PreviewHandle) bool {
	if h == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h.revoked {
		return false
	}
	h.revoked = true
	h.artifact = nil
	delete(r.handles, h.ID)
	r.revoked++
	return true
}

// Outstanding returns the number of handles created and not yet revoked
func (r *PreviewRegistry) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// HighWater returns the largest number of handles ever outstanding at once
func (r *PreviewRegistry) HighWater() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.highWater
}
