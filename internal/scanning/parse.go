package scanning

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// dateLayouts are tried in order when the model ignores the requested format
var dateLayouts = []string{
	isoDate,
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ErrNoJSON is returned when the model answer holds no JSON object
var ErrNoJSON = errors.New("no JSON object found in response")

// stripCodeFence drops the markdown fence models like to wrap JSON in
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseReceiptJSON extracts ReceiptData from a model answer. Missing or
// unreadable dates fall back to today.
func parseReceiptJSON(text string, now time.Time) (*ReceiptData, error) {
	text = stripCodeFence(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return nil, ErrNoJSON
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	var data ReceiptData
	if err := json.Unmarshal([]byte(text[start:end+1]), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Date = normalizeDate(strings.TrimSpace(data.Date), now)

	data.Title = strings.TrimSpace(data.Title)
	if data.Title == "" {
		data.Title = "Unknown Expense"
	}
	if data.Amount < 0 {
		return nil, fmt.Errorf("negative amount %.2f", data.Amount)
	}

	return &data, nil
}

func normalizeDate(raw string, now time.Time) string {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.Format(isoDate)
		}
	}
	return now.Format(isoDate)
}
