package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama scans receipts with a local Ollama vision model.
// llava, llava:1.6, qwen2-vl:7b and bakllava all work; llava-phi3 is faster but less accurate.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	now     func() time.Time
}

// NewOllama creates an Ollama scanner
func NewOllama(baseURL, modelName string) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		// vision models on local hardware are slow
		client: &http.Client{Timeout: 120 * time.Second},
		now:    time.Now,
	}
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// ScanReceipt sends the receipt to Ollama's chat API and parses the answer
func (o *Ollama) ScanReceipt(ctx context.Context, data []byte, contentType string) (*ReceiptData, error) {
	img, err := toPNG(data, contentType)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:  o.model,
		Format: "json",
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading receipts and invoices and extracting accurate information from them.",
			},
			{
				Role:    "user",
				Content: receiptScanPrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(img)},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var chat ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	receipt, err := parseReceiptJSON(chat.Message.Content, o.now())
	if err != nil {
		return nil, fmt.Errorf("parsing receipt data: %w", err)
	}
	return receipt, nil
}

// Close is a no-op; the HTTP client holds nothing to release
func (o *Ollama) Close() error {
	return nil
}
