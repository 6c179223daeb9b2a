package gateway

import (
	"context"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/receipt"
	"github.com/zombor/receipt-capture/internal/tracking"
)

// Local runs the pipeline against an in-process receipt service
type Local struct {
	service *receipt.Service
}

// NewLocal creates a gateway over service
func NewLocal(service *receipt.Service) *Local {
	return &Local{service: service}
}

// Submit hands the artifact to the service and returns the job ID
func (l *Local) Submit(ctx context.Context, a *capture.Artifact) (tracking.TrackingHandle, error) {
	job, err := l.service.Submit(ctx, a.Filename, a.Data, a.MediaType)
	if err != nil {
		return "", err
	}
	return tracking.TrackingHandle(job.ID), nil
}

// Resolve reports the job status
func (l *Local) Resolve(ctx context.Context, h tracking.TrackingHandle) (tracking.Resolution, error) {
	if err := ctx.Err(); err != nil {
		return tracking.Resolution{}, err
	}
	job, err := l.service.Job(string(h))
	if err != nil {
		return tracking.Resolution{}, err
	}
	return job.Resolution(), nil
}

// Reprocess re-runs extraction for the job under the same ID
func (l *Local) Reprocess(ctx context.Context, h tracking.TrackingHandle) (tracking.TrackingHandle, error) {
	job, err := l.service.Retry(ctx, string(h))
	if err != nil {
		return "", err
	}
	return tracking.TrackingHandle(job.ID), nil
}
