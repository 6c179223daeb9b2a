package tracking

// TrackingHandle identifies one in-flight remote extraction job
type TrackingHandle string

// Status is the authoritative state of a remote job
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status ends a tracking episode
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Resolution is one observation of a remote job
type Resolution struct {
	Handle   TrackingHandle `json:"tracking_id"`
	Status   Status         `json:"status"`
	ResultID string         `json:"result_id,omitempty"` // receipt ID on success
	Reason   string         `json:"reason,omitempty"`    // failure reason on failure
}

// Pending builds a pending resolution for a handle
func Pending(h TrackingHandle) Resolution {
	return Resolution{Handle: h, Status: StatusPending}
}

// Succeeded builds a successful resolution
func Succeeded(h TrackingHandle, resultID string) Resolution {
	return Resolution{Handle: h, Status: StatusSucceeded, ResultID: resultID}
}

// Failed builds a failed resolution
func Failed(h TrackingHandle, reason string) Resolution {
	return Resolution{Handle: h, Status: StatusFailed, Reason: reason}
}
