// Package ai runs LLM analysis over normalized emails: it builds the prompt,
// calls a completion provider, and parses the structured result.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider defines the interface for LLM completion backends.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai-gpt-4o-mini").
	Name() string

	// Complete sends a completion request and returns the raw response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is currently reachable.
	IsAvailable(ctx context.Context) bool

	// Close releases provider resources.
	Close() error
}

// CompletionRequest represents a request to the LLM.
type CompletionRequest struct {
	// Prompt is the full prompt text to send to the LLM.
	Prompt string `json:"prompt"`

	// SystemPrompt is an optional system-level instruction.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens limits response length (0 = provider default).
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-1.0, 0 = provider default).
	Temperature float32 `json:"temperature,omitempty"`
}

// CompletionResponse represents a response from the LLM.
type CompletionResponse struct {
	// Content is the raw text response from the LLM.
	Content string `json:"content"`

	// TokensUsed tracks token consumption.
	TokensUsed TokenUsage `json:"tokens_used"`

	// LatencyMs is the response time in milliseconds.
	LatencyMs int `json:"latency_ms"`

	// Model is the actual model used (may differ from requested).
	Model string `json:"model"`

	// FinishReason indicates why the model stopped generating.
	// "stop" = natural end, "length" = hit max_tokens limit.
	FinishReason string `json:"finish_reason,omitempty"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// LLMError represents an error from an LLM provider.
type LLMError struct {
	Code    LLMErrorCode
	Message string
	Details string
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm error [%s]: %s", e.Code, e.Message)
}

// LLMErrorCode identifies the type of LLM error.
type LLMErrorCode string

const (
	ErrTimeout      LLMErrorCode = "timeout"
	ErrUnavailable  LLMErrorCode = "unavailable"
	ErrRateLimit    LLMErrorCode = "rate_limit"
	ErrParseFailure LLMErrorCode = "parse_failure"
	ErrTokenLimit   LLMErrorCode = "token_limit"
)

// IsTransient reports whether err is an LLM failure worth retrying.
func IsTransient(err error) bool {
	var llmErr *LLMError
	if !errors.As(err, &llmErr) {
		return false
	}
	switch llmErr.Code {
	case ErrTimeout, ErrUnavailable, ErrRateLimit:
		return true
	}
	return false
}

// Config holds provider connection settings.
type Config struct {
	// BaseURL overrides the provider's default API endpoint.
	BaseURL string

	// APIKey authenticates requests.
	APIKey string

	// Model names the model to use.
	Model string

	// Timeout bounds each HTTP request.
	Timeout time.Duration
}
