package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/processing"
	"github.com/zombor/receipt-capture/internal/tracking"
)

var (
	// ErrCancelled is returned when a run is cancelled before it resolves
	ErrCancelled = errors.New("pipeline cancelled")

	// ErrNotCommitted is returned when waiting on or retrying a run whose upload has not succeeded
	ErrNotCommitted = errors.New("receipt not uploaded")

	// ErrAlreadyCommitted is returned when committing a run that already has a tracking handle
	ErrAlreadyCommitted = errors.New("receipt already uploaded")
)

// Gateway is the remote side of the pipeline: it accepts uploads, reports
// the status of each job and re-issues processing on retry.
type Gateway interface {
	Submit(ctx context.Context, a *capture.Artifact) (tracking.TrackingHandle, error)
	Resolve(ctx context.Context, h tracking.TrackingHandle) (tracking.Resolution, error)
	Reprocess(ctx context.Context, h tracking.TrackingHandle) (tracking.TrackingHandle, error)
}

// Source selects where the receipt comes from
type Source string

const (
	SourceCamera Source = "camera"
	SourceFile   Source = "file"
)

// Acquisition describes how a run obtains its artifact
type Acquisition struct {
	Source Source

	// Camera
	Facing capture.Facing
	// Shutter, when set, is waited on before the frame is captured
	Shutter <-chan struct{}

	// File picker or drag-and-drop
	Filename  string
	Data      []byte
	MediaType string
}

// Camera acquires from the camera facing the given direction
func Camera(facing capture.Facing, shutter <-chan struct{}) Acquisition {
	return Acquisition{Source: SourceCamera, Facing: facing, Shutter: shutter}
}

// File acquires from picked or dropped file bytes
func File(filename string, data []byte, mediaType string) Acquisition {
	return Acquisition{Source: SourceFile, Filename: filename, Data: data, MediaType: mediaType}
}

// Callbacks receive the terminal signals of a run. Any of them may be nil.
// OnError receives acquisition, validation, upload and processing failures;
// Reason turns any of them into text for the user.
type Callbacks struct {
	OnSuccess  func(resultID string)
	OnError    func(err error)
	OnTimeout  func()
	OnProgress func(processing.Snapshot)
}

// Coordinator sequences capture, upload and processing for each run
type Coordinator struct {
	controller *capture.Controller
	previews   *capture.PreviewRegistry
	policy     capture.Policy
	gateway    Gateway
	cfg        processing.Config
	clock      clock.Clock
	logger     *slog.Logger
}

// NewCoordinator creates a Coordinator on the wall clock
func NewCoordinator(controller *capture.Controller, previews *capture.PreviewRegistry, policy capture.Policy, gateway Gateway, cfg processing.Config) *Coordinator {
	return NewCoordinatorWithClock(controller, previews, policy, gateway, cfg, clock.New())
}

// NewCoordinatorWithClock creates a Coordinator with a custom clock for testing
func NewCoordinatorWithClock(controller *capture.Controller, previews *capture.PreviewRegistry, policy capture.Policy, gateway Gateway, cfg processing.Config, clk clock.Clock) *Coordinator {
	return &Coordinator{
		controller: controller,
		previews:   previews,
		policy:     policy,
		gateway:    gateway,
		cfg:        cfg,
		clock:      clk,
		logger:     slog.Default(),
	}
}

// SetLogger replaces the coordinator logger
func (c *Coordinator) SetLogger(l *slog.Logger) {
	c.logger = l
}

// Start acquires an artifact, uploads it and begins tracking the remote job.
// It returns once tracking has started; the outcome arrives on the callbacks
// or from Run.Wait.
//
// Acquisition and validation failures end the run: the camera is released,
// the preview revoked and a nil Run is returned. An upload failure returns
// the Run with its artifact still staged so Run.Commit can try again.
func (c *Coordinator) Start(ctx context.Context, acq Acquisition, cb Callbacks) (*Run, error) {
	run := &Run{
		coordinator: c,
		session:     capture.NewSession(c.controller, c.previews, c.policy),
		callbacks:   cb,
		ctx:         ctx,
	}

	if err := c.acquire(ctx, run.session, acq); err != nil {
		run.session.Close()
		c.logger.Warn("Receipt acquisition failed", "source", acq.Source, "error", err)
		run.fireError(err)
		return nil, err
	}

	if err := run.Commit(ctx); err != nil {
		return run, err
	}
	return run, nil
}

// Run starts a pipeline run and waits for it to resolve. Cancelling ctx
// tears the run down before returning.
func (c *Coordinator) Run(ctx context.Context, acq Acquisition, cb Callbacks) (string, error) {
	run, err := c.Start(ctx, acq, cb)
	if err != nil {
		if run != nil {
			run.Cancel()
		}
		return "", err
	}
	defer run.Cancel()
	return run.Wait(ctx)
}

func (c *Coordinator) acquire(ctx context.Context, session *capture.Session, acq Acquisition) error {
	switch acq.Source {
	case SourceFile:
		_, err := session.StageFile(acq.Filename, acq.Data, acq.MediaType)
		return err

	case SourceCamera:
		if err := session.StartCamera(ctx, acq.Facing); err != nil {
			return err
		}
		if acq.Shutter != nil {
			select {
			case <-acq.Shutter:
			case <-ctx.Done():
				return fmt.Errorf("waiting for shutter: %w", ctx.Err())
			}
		}
		return session.Capture(ctx)
	}
	return fmt.Errorf("unknown acquisition source %q", acq.Source)
}

// Reason returns the text to show the user for a pipeline error
func Reason(err error) string {
	if msg, ok := capture.UserMessage(err); ok {
		return msg
	}
	var fe *processing.FailureError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	switch {
	case errors.Is(err, capture.ErrUpload):
		return "The receipt could not be uploaded. Check your connection and try again."
	case errors.Is(err, capture.ErrCaptureFailed):
		return "The photo could not be taken. Please try again."
	case errors.Is(err, processing.ErrRetryFailed):
		return "The retry could not be sent. Check your connection and try again."
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCancelled):
		return "Cancelled."
	}
	return err.Error()
}
