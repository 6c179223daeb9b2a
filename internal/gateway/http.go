package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/tracking"
)

// ErrRejected is returned when the archive server answers with an error status
var ErrRejected = errors.New("request rejected by server")

// DefaultTimeout bounds each request to the archive server
const DefaultTimeout = 30 * time.Second

// APIError is the error body the archive server returns
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", ErrRejected, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", ErrRejected, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return ErrRejected
}

// HTTPGateway talks to the archive server's receipt API
type HTTPGateway struct {
	client *resty.Client
}

// NewHTTPGateway creates a gateway for the server at baseURL. Empty
// credentials disable basic auth.
func NewHTTPGateway(baseURL, username, password string) *HTTPGateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(DefaultTimeout).
		SetHeader("Accept", "application/json")
	if username != "" || password != "" {
		client.SetBasicAuth(username, password)
	}
	return &HTTPGateway{client: client}
}

// Submit uploads the artifact as multipart field "file" and returns the tracking ID
func (g *HTTPGateway) Submit(ctx context.Context, a *capture.Artifact) (tracking.TrackingHandle, error) {
	var res tracking.Resolution
	resp, err := g.client.R().
		SetContext(ctx).
		SetMultipartField("file", a.Filename, a.MediaType, bytes.NewReader(a.Data)).
		SetResult(&res).
		SetError(&APIError{}).
		Post("/api/receipts")
	if err := check(resp, err, http.StatusAccepted); err != nil {
		return "", fmt.Errorf("uploading receipt: %w", err)
	}
	if res.Handle == "" {
		return "", fmt.Errorf("uploading receipt: %w: no tracking id in response", ErrRejected)
	}
	return res.Handle, nil
}

// Resolve reports the current status of a job
func (g *HTTPGateway) Resolve(ctx context.Context, h tracking.TrackingHandle) (tracking.Resolution, error) {
	var res tracking.Resolution
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("id", string(h)).
		SetResult(&res).
		SetError(&APIError{}).
		Get("/api/jobs/{id}")
	if err := check(resp, err, http.StatusOK); err != nil {
		return tracking.Resolution{}, fmt.Errorf("getting job %s: %w", h, err)
	}
	if res.Handle == "" {
		res.Handle = h
	}
	return res, nil
}

// Reprocess asks the server to run extraction again. The server keeps the
// tracking ID, so the returned handle is the one given.
func (g *HTTPGateway) Reprocess(ctx context.Context, h tracking.TrackingHandle) (tracking.TrackingHandle, error) {
	var res tracking.Resolution
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("id", string(h)).
		SetResult(&res).
		SetError(&APIError{}).
		Post("/api/jobs/{id}/retry")
	if err := check(resp, err, http.StatusAccepted); err != nil {
		return "", fmt.Errorf("retrying job %s: %w", h, err)
	}
	if res.Handle != "" {
		return res.Handle, nil
	}
	return h, nil
}

func check(resp *resty.Response, err error, want int) error {
	if err != nil {
		return err
	}
	if resp.IsError() || resp.StatusCode() != want {
		apiErr, _ := resp.Error().(*APIError)
		if apiErr == nil {
			apiErr = &APIError{}
		}
		apiErr.Status = resp.StatusCode()
		return apiErr
	}
	return nil
}
