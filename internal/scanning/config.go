package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Scanner types accepted by New
const (
	TypeGemini = "gemini"
	TypeOllama = "ollama"
)

// Config selects and configures a scanner
type Config struct {
	Type        string
	GeminiKey   string // falls back to GEMINI_API_KEY
	GeminiModel string
	OllamaURL   string
	OllamaModel string
}

// New creates the scanner named by cfg.Type
func New(ctx context.Context, cfg Config) (Scanner, error) {
	switch cfg.Type {
	case TypeGemini:
		apiKey := cfg.GeminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.GeminiModel)
		return NewGemini(ctx, apiKey, cfg.GeminiModel)
	case TypeOllama:
		slog.Info("Initializing Ollama scanner...", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return NewOllama(cfg.OllamaURL, cfg.OllamaModel), nil
	}
	return nil, fmt.Errorf("invalid scanner type %q: want gemini or ollama", cfg.Type)
}
