package processing

import (
	"errors"
	"fmt"

	"github.com/zombor/receipt-capture/internal/tracking"
)

var (
	// ErrProcessingFailed is the base of every remote processing failure
	ErrProcessingFailed = errors.New("processing failed")

	// ErrRetryFailed is returned when re-issuing the processing request fails
	ErrRetryFailed = errors.New("retry failed")

	// ErrRetryNotAllowed is returned when retry is called outside Failed or TimedOut
	ErrRetryNotAllowed = errors.New("retry not allowed")

	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("monitor already started")
)

// FailureError carries the reason reported by the remote service
type FailureError struct {
	Handle tracking.TrackingHandle
	Reason string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("%s: %s", ErrProcessingFailed, e.Reason)
}

func (e *FailureError) Unwrap() error {
	return ErrProcessingFailed
}
