package receipt

import (
	"time"

	"github.com/zombor/receipt-capture/internal/tracking"
)

// Receipt is an archived receipt with its extracted metadata
type Receipt struct {
	ID          string    `json:"id"`
	TrackingID  string    `json:"tracking_id"`
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Amount      int       `json:"amount"` // Amount in cents
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Job is one uploaded file waiting for, or done with, extraction.
// Its ID is the tracking handle handed back to the uploader.
type Job struct {
	ID           string          `json:"id"`
	OriginalName string          `json:"original_name"`
	Filename     string          `json:"filename"`
	ContentType  string          `json:"content_type"`
	Status       tracking.Status `json:"status"`
	ReceiptID    string          `json:"receipt_id,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Attempts     int             `json:"attempts"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Resolution reports the job as a tracking resolution
func (j *Job) Resolution() tracking.Resolution {
	return tracking.Resolution{
		Handle:   tracking.TrackingHandle(j.ID),
		Status:   j.Status,
		ResultID: j.ReceiptID,
		Reason:   j.Reason,
	}
}
