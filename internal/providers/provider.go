package providers

import (
	"context"
	"time"
)

// GenerateRequest is a single text-generation call.
type GenerateRequest struct {
	Model           string // provider model identifier
	Prompt          string // full instruction text
	JSON            bool   // request a JSON-shaped reply where the provider supports it
	MaxOutputTokens int    // 0 = provider default
}

// GenerateResponse is a normalized provider response.
type GenerateResponse struct {
	Text            string
	Model           string
	ProviderLatency time.Duration
	InputTokens     int
	OutputTokens    int
}

// ModelInfo describes one model returned by a provider listing.
type ModelInfo struct {
	ID                 string
	DisplayName        string
	SupportsGeneration bool
	Experimental       bool
}

// ModelCatalog holds the static model knowledge for a provider type.
type ModelCatalog struct {
	// Default is used when discovery cannot list models.
	Default string
	// Preferred holds name substrings in descending priority (fast tier first).
	Preferred []string
	// Fallbacks is the fixed list tried on the same credential after model-not-found.
	Fallbacks []string
}

// Provider is implemented by each upstream generation API (Gemini, OpenAI, ...).
// The credential is passed per call because the dispatcher rotates keys.
type Provider interface {
	// Type returns the provider type (gemini, openai)
	Type() string

	// Generate performs one generation call authenticated with apiKey.
	// Failures are returned as *Error so callers can branch on Kind.
	Generate(ctx context.Context, apiKey string, req GenerateRequest) (*GenerateResponse, error)

	// ListModels returns the models visible to apiKey.
	ListModels(ctx context.Context, apiKey string) ([]ModelInfo, error)

	// Catalog returns default, preferred and fallback model names.
	Catalog() ModelCatalog

	// Close performs cleanup when the provider is no longer needed
	Close() error
}

// Config holds configuration for creating a provider instance
type Config struct {
	Type         string
	BaseURL      string        // empty = provider default
	DefaultModel string        // overrides the catalog default
	Timeout      time.Duration // per-request timeout
}

// Factory creates provider instances based on type and configuration
type Factory interface {
	// CreateProvider creates a new provider instance
	CreateProvider(config Config) (Provider, error)

	// SupportedTypes returns the list of supported provider types
	SupportedTypes() []string
}
