package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceUnavailable is returned when no camera stream could be acquired
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrCaptureFailed is returned when a frame could not be taken from a stream
	ErrCaptureFailed = errors.New("capture failed")

	// ErrValidation is returned when an artifact is rejected by the policy
	ErrValidation = errors.New("artifact rejected")

	// ErrUpload is returned when committing a staged artifact fails
	ErrUpload = errors.New("upload failed")

	// ErrInvalidTransition is returned when a session operation is not valid in its current state
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrPreviewRevoked is returned when a revoked preview handle is used
	ErrPreviewRevoked = errors.New("preview handle revoked")
)

// Errors a Device reports from Open. The controller maps them onto DeviceError reasons.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera found")
	ErrDeviceBusy       = errors.New("camera is in use")
	ErrOverconstrained  = errors.New("no camera satisfies the constraints")
)

// DeviceReason classifies an acquisition failure
type DeviceReason string

const (
	ReasonPermissionDenied DeviceReason = "permission-denied"
	ReasonNotFound         DeviceReason = "not-found"
	ReasonBusy             DeviceReason = "busy"
	ReasonUnknown          DeviceReason = "unknown"
)

// DeviceError describes why a camera could not be acquired
type DeviceError struct {
	Reason DeviceReason
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrDeviceUnavailable, e.Reason, e.Err)
}

// Unwrap exposes both ErrDeviceUnavailable and the device error to errors.Is
func (e *DeviceError) Unwrap() []error {
	return []error{ErrDeviceUnavailable, e.Err}
}

// Message returns the text shown to the user
func (e *DeviceError) Message() string {
	switch e.Reason {
	case ReasonPermissionDenied:
		return "Camera access was denied. Allow camera access and try again."
	case ReasonNotFound:
		return "No camera was found on this device."
	case ReasonBusy:
		return "The camera is being used by another application."
	default:
		return "The camera could not be started. Please try again."
	}
}

func classifyDeviceError(err error) *DeviceError {
	var de *DeviceError
	if errors.As(err, &de) {
		return de
	}
	reason := ReasonUnknown
	switch {
	case errors.Is(err, ErrPermissionDenied):
		reason = ReasonPermissionDenied
	case errors.Is(err, ErrNoDevice), errors.Is(err, ErrOverconstrained):
		reason = ReasonNotFound
	case errors.Is(err, ErrDeviceBusy):
		reason = ReasonBusy
	}
	return &DeviceError{Reason: reason, Err: err}
}

// ValidationError wraps a failed validation result
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Result.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Message returns the text shown to the user
func (e *ValidationError) Message() string {
	switch e.Result.Reason {
	case ReasonUnsupportedType:
		return "Unsupported file type. Please choose a JPEG, PNG or PDF file."
	case ReasonSizeExceeded:
		return "File is too large. Please compress or resize your image."
	default:
		return "The file could not be used."
	}
}
