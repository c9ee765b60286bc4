package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/minutes/config"
)

// Sentinel errors for model access failures. EmbeddingUnavailable is
// recoverable: callers degrade to keyword paths instead of failing the job.
var (
	ErrModelUnavailable     = errors.New("model unavailable")
	ErrRateLimited          = errors.New("rate limited")
	ErrInputTooLong         = errors.New("input too long for model")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
)

// RateLimitedError carries the provider's retry-after hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
	}
	return "rate limited"
}

func (e RateLimitedError) Unwrap() error { return ErrRateLimited }

// ModelInfo contains information about an LLM model
type ModelInfo struct {
	Name            string   `json:"name"`
	Provider        string   `json:"provider"`
	MaxTokens       int      `json:"max_tokens"`
	CostPer1KInput  float64  `json:"cost_per_1k_input"`
	CostPer1KOutput float64  `json:"cost_per_1k_output"`
	Capabilities    []string `json:"capabilities"`
}

// Provider is the contract every LLM implementation must satisfy.
type Provider interface {
	// Generate generates text using the given model
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns prompt/completion token usage
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// Embed generates vector embeddings for the provided inputs
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)

	// GetAvailableModels returns configured model names
	GetAvailableModels() []string

	// GetModelInfo returns information about a specific model
	GetModelInfo(model string) (ModelInfo, error)

	// CalculateCost calculates the cost for a given number of tokens
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// New creates an LLM provider based on configuration.
func New(cfg config.LLMConfig) (Provider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	for _, pc := range cfg.Providers {
		switch pc.Type {
		case "openai":
			return NewOpenAI(pc), nil
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", pc.Type)
		}
	}
	return nil, fmt.Errorf("no valid LLM providers found")
}
