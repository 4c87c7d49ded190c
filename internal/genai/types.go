// Package genai answers free-text questions with hosted LLMs.
//
// Providers:
//   - GigaChat: OpenAI-compatible chat API behind an OAuth token exchange
//   - OpenAI-compatible: any base URL speaking the chat completions API
//   - Gemini: google.golang.org/genai
//
// Each provider is retried with Full Jitter backoff; failures that warrant it
// move on to the next provider in the configured order.
package genai

import (
	"context"
	"time"
)

// Provider represents an LLM provider.
type Provider string

const (
	// ProviderGigaChat is Sber's GigaChat API.
	ProviderGigaChat Provider = "gigachat"
	// ProviderOpenAI is any OpenAI-compatible endpoint.
	ProviderOpenAI Provider = "openai"
	// ProviderGemini is Google's Gemini API.
	ProviderGemini Provider = "gemini"
)

// String returns the string representation of the provider.
func (p Provider) String() string {
	return string(p)
}

// Answerer produces a single-turn answer to a user question.
type Answerer interface {
	// Answer returns the model's reply. A blank reply is returned as an error.
	Answer(ctx context.Context, question string) (string, error)
	// Provider returns the provider type for metrics.
	Provider() Provider
	// Close releases any resources held by the answerer.
	Close() error
}

// RetryConfig defines retry behavior for LLM API calls.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per provider (including initial).
	MaxAttempts int
	// InitialDelay is the base delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration
}

// GigaChatConfig configures the GigaChat provider.
type GigaChatConfig struct {
	// Credentials is the base64 authorization key issued in the developer console.
	Credentials string
	Scope       string
	Model       string
	BaseURL     string
	AuthURL     string
}

// OpenAIConfig configures a generic OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // empty means api.openai.com
	Model   string
}

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Config holds configuration for all providers.
type Config struct {
	// Enabled is the operator switch for the AI helper.
	Enabled bool
	// Providers is the fallback order. Providers without credentials are skipped.
	Providers []Provider
	// Timeout bounds a whole Ask call, fallbacks included.
	Timeout time.Duration

	GigaChat GigaChatConfig
	OpenAI   OpenAIConfig
	Gemini   GeminiConfig

	Retry RetryConfig
}

// Defaults.
const (
	DefaultGigaChatModel    = "GigaChat"
	DefaultGigaChatScope    = "GIGACHAT_API_PERS"
	DefaultGigaChatBaseURL  = "https://gigachat.devices.sberbank.ru/api/v1/"
	DefaultGigaChatAuthURL  = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultGeminiModel      = "gemini-2.5-flash"
	DefaultTimeout          = 8 * time.Second
	DefaultMaxRetryAttempts = 2

	DefaultInitialRetryDelay = 300 * time.Millisecond
	DefaultMaxRetryDelay     = 2 * time.Second
)

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  DefaultMaxRetryAttempts,
		InitialDelay: DefaultInitialRetryDelay,
		MaxDelay:     DefaultMaxRetryDelay,
	}
}

// HasProvider reports whether p has credentials configured.
func (c *Config) HasProvider(p Provider) bool {
	switch p {
	case ProviderGigaChat:
		return c.GigaChat.Credentials != ""
	case ProviderOpenAI:
		return c.OpenAI.APIKey != ""
	case ProviderGemini:
		return c.Gemini.APIKey != ""
	default:
		return false
	}
}

// ConfiguredProviders returns the providers with credentials, in configured
// order, without duplicates.
func (c *Config) ConfiguredProviders() []Provider {
	seen := make(map[Provider]bool, len(c.Providers))
	result := make([]Provider, 0, len(c.Providers))
	for _, p := range c.Providers {
		if seen[p] || !c.HasProvider(p) {
			continue
		}
		seen[p] = true
		result = append(result, p)
	}
	return result
}
