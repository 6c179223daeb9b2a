package scanning

import "context"

// ReceiptData contains the fields extracted from a receipt
type ReceiptData struct {
	Title  string  `json:"title"`
	Date   string  `json:"date"` // YYYY-MM-DD
	Amount float64 `json:"amount"`
}

// Scanner extracts receipt fields from an image or PDF
type Scanner interface {
	// ScanReceipt analyzes a receipt and extracts its metadata
	ScanReceipt(ctx context.Context, data []byte, contentType string) (*ReceiptData, error)

	// Close releases the scanner's resources
	Close() error
}
