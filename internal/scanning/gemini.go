package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model name is configured
const DefaultGeminiModel = "gemini-2.5-pro"

// Gemini scans receipts with Google Gemini
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
	now     func() time.Time
}

// NewGemini creates a Gemini scanner
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	return &Gemini{
		client:  client,
		model:   model,
		timeout: 30 * time.Second,
		now:     time.Now,
	}, nil
}

// ScanReceipt sends the receipt to Gemini and parses the JSON answer
func (g *Gemini) ScanReceipt(ctx context.Context, data []byte, contentType string) (*ReceiptData, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	img, err := toPNG(data, contentType)
	if err != nil {
		return nil, err
	}

	// genai.ImageData takes the format suffix, not the full MIME type
	resp, err := g.model.GenerateContent(ctx, genai.ImageData("png", img), genai.Text(receiptScanPrompt))
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	receipt, err := parseReceiptJSON(text.String(), g.now())
	if err != nil {
		return nil, fmt.Errorf("parsing receipt data: %w", err)
	}
	return receipt, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
