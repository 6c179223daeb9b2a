package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zombor/receipt-capture/internal/tracking"
)

// State is a CaptureSession state
type State string

const (
	StateIdle         State = "idle"
	StateCameraActive State = "camera-active"
	StateFileStaging  State = "file-staging"
	StateStaged       State = "staged"
	StateCommitting   State = "committing"
	StateDone         State = "done"
)

// Uploader accepts a validated artifact and returns the handle of the remote job
type Uploader interface {
	Submit(ctx context.Context, a *Artifact) (tracking.TrackingHandle, error)
}

// Session orchestrates acquiring one receipt artifact and handing it to an Uploader.
// A session is single use: after a successful commit a new one is needed.
type Session struct {
	controller *Controller
	previews   *PreviewRegistry
	policy     Policy

	mu        sync.Mutex
	state     State
	acquiring bool
	closed    bool
	stream    *DeviceStream
	artifact  *Artifact
	preview   *PreviewHandle
}

// NewSession creates an idle session
func NewSession(controller *Controller, previews *PreviewRegistry, policy Policy) *Session {
	return &Session{
		controller: controller,
		previews:   previews,
		policy:     policy,
		state:      StateIdle,
	}
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Artifact returns the staged artifact, or nil
func (s *Session) Artifact() *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// Preview returns the preview handle of the staged artifact, or nil
func (s *Session) Preview() *PreviewHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview
}

// StartCamera acquires a camera stream. Valid from Idle, or from Staged in
// which case the staged artifact is discarded first. On failure the session
// is Idle and the DeviceError is returned unchanged.
func (s *Session) StartCamera(ctx context.Context, facing Facing) error {
	s.mu.Lock()
	if s.closed || s.acquiring || (s.state != StateIdle && s.state != StateStaged) {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: start camera from %s", ErrInvalidTransition, state)
	}
	s.discardLocked()
	s.state = StateIdle
	s.acquiring = true
	s.mu.Unlock()

	ds, err := s.controller.Acquire(ctx, facing)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquiring = false
	if err != nil {
		return err
	}
	// Closed while the camera was starting.
	if s.closed {
		s.controller.Release(ds)
		return fmt.Errorf("%w: session closed", ErrInvalidTransition)
	}
	s.stream = ds
	s.state = StateCameraActive
	return nil
}

// Capture freezes a frame, releases the camera and stages the result. Any
// failure also releases the camera and returns the session to Idle.
func (s *Session) Capture(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCameraActive {
		return fmt.Errorf("%w: capture from %s", ErrInvalidTransition, s.state)
	}

	a, err := s.controller.CaptureFrame(ctx, s.stream)
	s.releaseStreamLocked()
	if err != nil {
		s.state = StateIdle
		return err
	}

	if result := s.policy.Validate(a); !result.OK {
		s.state = StateIdle
		return &ValidationError{Result: result}
	}

	s.stageLocked(a)
	return nil
}

// CancelCamera stops the stream before returning to Idle. No artifact is produced.
func (s *Session) CancelCamera() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCameraActive {
		return fmt.Errorf("%w: cancel camera from %s", ErrInvalidTransition, s.state)
	}
	s.releaseStreamLocked()
	s.state = StateIdle
	return nil
}

// StageFile validates a picked or dropped file and stages it. A rejected file
// is never staged and leaves any previously staged artifact in place.
func (s *Session) StageFile(filename string, data []byte, mediaType string) (ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (s.state != StateIdle && s.state != StateStaged) {
		return ValidationResult{}, fmt.Errorf("%w: stage file from %s", ErrInvalidTransition, s.state)
	}

	previous := s.state
	s.state = StateFileStaging

	a := NewArtifact(filename, data, DetectMediaType(filename, data, mediaType))
	result := s.policy.Validate(a)
	if !result.OK {
		s.state = previous
		slog.Warn("Rejected receipt file", "filename", filename, "media_type", a.MediaType, "size", a.SizeBytes(), "reason", result.Reason)
		return result, &ValidationError{Result: result}
	}

	s.stageLocked(a)
	return result, nil
}

// Reset discards the staged artifact and revokes its preview. From
// CameraActive it behaves like CancelCamera.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateIdle:
		return nil
	case StateCameraActive:
		s.releaseStreamLocked()
	case StateStaged:
		s.discardLocked()
	default:
		return fmt.Errorf("%w: reset from %s", ErrInvalidTransition, s.state)
	}
	s.state = StateIdle
	return nil
}

// Commit hands the staged artifact to the uploader. The preview is revoked
// once the request is in flight. If the upload fails the session goes back to
// Staged with a new preview so commit can be retried without recapturing.
func (s *Session) Commit(ctx context.Context, up Uploader) (tracking.TrackingHandle, error) {
	s.mu.Lock()
	if s.state != StateStaged {
		state := s.state
		s.mu.Unlock()
		return "", fmt.Errorf("%w: commit from %s", ErrInvalidTransition, state)
	}
	a := s.artifact
	s.state = StateCommitting
	s.previews.Revoke(s.preview)
	s.preview = nil
	s.mu.Unlock()

	handle, err := up.Submit(ctx, a)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		slog.Error("Failed to upload receipt", "artifact_id", a.ID, "error", err)
		if s.closed {
			s.artifact = nil
			a.release()
			s.state = StateDone
		} else {
			s.preview = s.previews.Create(a)
			s.state = StateStaged
		}
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}

	s.artifact = nil
	a.release()
	s.state = StateDone
	slog.Info("Receipt uploaded", "artifact_id", a.ID, "tracking_id", handle)
	return handle, nil
}

// Close tears the session down, releasing the camera and any preview.
// Safe to call in every state and more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.releaseStreamLocked()
	if s.state == StateCommitting {
		// Commit finishes the teardown when the upload returns.
		return
	}
	s.discardLocked()
	s.state = StateDone
}

// stageLocked replaces any staged artifact; the old preview is revoked before the new one exists
func (s *Session) stageLocked(a *Artifact) {
	s.discardLocked()
	s.artifact = a
	s.preview = s.previews.Create(a)
	s.state = StateStaged
	slog.Info("Receipt staged", "artifact_id", a.ID, "media_type", a.MediaType, "size", a.SizeBytes())
}

func (s *Session) discardLocked() {
	if s.preview != nil {
		s.previews.Revoke(s.preview)
		s.preview = nil
	}
	if s.artifact != nil {
		s.artifact.release()
		s.artifact = nil
	}
}

func (s *Session) releaseStreamLocked() {
	if s.stream != nil {
		s.controller.Release(s.stream)
		s.stream = nil
	}
}

// UserMessage returns the user-facing text carried by a device or validation error
func UserMessage(err error) (string, bool) {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Message(), true
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message(), true
	}
	return "", false
}
