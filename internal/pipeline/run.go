package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/processing"
	"github.com/zombor/receipt-capture/internal/tracking"
)

// Run is one pass through the pipeline for a single receipt
type Run struct {
	coordinator *Coordinator
	session     *capture.Session
	callbacks   Callbacks
	ctx         context.Context

	mu        sync.Mutex
	monitor   *processing.Monitor
	handle    tracking.TrackingHandle
	cancelled bool
}

// Session returns the capture session of the run
func (r *Run) Session() *capture.Session {
	return r.session
}

// Handle returns the tracking handle, empty until the upload succeeded
func (r *Run) Handle() tracking.TrackingHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.monitor != nil {
		return r.monitor.Snapshot().Handle
	}
	return r.handle
}

// Snapshot returns the processing state, zero until the upload succeeded
func (r *Run) Snapshot() processing.Snapshot {
	r.mu.Lock()
	m := r.monitor
	r.mu.Unlock()
	if m == nil {
		return processing.Snapshot{}
	}
	return m.Snapshot()
}

// Commit uploads the staged artifact and starts tracking it. After an upload
// failure the artifact stays staged and Commit may be called again. Tracking
// lives as long as the context the run was started with.
func (r *Run) Commit(ctx context.Context) error {
	r.mu.Lock()
	switch {
	case r.cancelled:
		r.mu.Unlock()
		return ErrCancelled
	case r.monitor != nil:
		r.mu.Unlock()
		return ErrAlreadyCommitted
	}
	r.mu.Unlock()

	c := r.coordinator
	h, err := r.session.Commit(ctx, c.gateway)
	if err != nil {
		c.logger.Error("Failed to upload receipt", "error", err)
		r.fireError(err)
		return err
	}

	m := processing.NewMonitorWithClock(c.cfg, c.clock, c.gateway, c.gateway, processing.Callbacks{
		OnSuccess:  r.callbacks.OnSuccess,
		OnError:    r.callbacks.OnError,
		OnTimeout:  r.callbacks.OnTimeout,
		OnProgress: r.callbacks.OnProgress,
	})
	m.SetLogger(c.logger)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handle = h
	if r.cancelled {
		return ErrCancelled
	}
	if err := m.Start(r.ctx, h); err != nil {
		return fmt.Errorf("starting processing monitor: %w", err)
	}
	r.monitor = m
	c.logger.Info("Tracking receipt processing", "tracking_id", h)
	return nil
}

// Wait blocks until the current processing episode succeeds or fails. A
// timeout does not end the wait. After a failure, Retry and Wait again.
func (r *Run) Wait(ctx context.Context) (string, error) {
	for {
		r.mu.Lock()
		m, cancelled := r.monitor, r.cancelled
		r.mu.Unlock()
		if cancelled {
			return "", ErrCancelled
		}
		if m == nil {
			return "", ErrNotCommitted
		}

		select {
		case <-m.Done():
		case <-ctx.Done():
			return "", ctx.Err()
		}

		snap := m.Snapshot()
		switch snap.State {
		case processing.StateSucceeded:
			return snap.ResultID, nil
		case processing.StateFailed:
			return "", &processing.FailureError{Handle: snap.Handle, Reason: snap.Reason}
		}
		if err := r.ctx.Err(); err != nil {
			return "", err
		}
		// A retry replaced the episode; wait on the new one.
	}
}

// Retry re-issues processing after a failure or a timeout
func (r *Run) Retry(ctx context.Context) error {
	r.mu.Lock()
	m, cancelled := r.monitor, r.cancelled
	r.mu.Unlock()
	switch {
	case cancelled:
		return ErrCancelled
	case m == nil:
		return ErrNotCommitted
	}
	return m.Retry(ctx)
}

// Cancel stops tracking, releases the camera and revokes any preview before
// it returns. The remote job is left alone. Safe to call more than once.
func (r *Run) Cancel() {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return
	}
	r.cancelled = true
	m := r.monitor
	r.mu.Unlock()

	if m != nil {
		m.Stop()
	}
	r.session.Close()
}

func (r *Run) fireError(err error) {
	if r.callbacks.OnError != nil {
		r.callbacks.OnError(err)
	}
}
