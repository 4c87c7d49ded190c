package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openaiAnswerer talks to any OpenAI-compatible chat completions endpoint.
// GigaChat reuses it with an OAuth middleware.
type openaiAnswerer struct {
	client   openai.Client
	model    string
	provider Provider
}

func newOpenAIAnswerer(provider Provider, model string, opts ...option.RequestOption) *openaiAnswerer {
	return &openaiAnswerer{
		client:   openai.NewClient(opts...),
		model:    model,
		provider: provider,
	}
}

// newOpenAICompatibleAnswerer builds the generic provider. Returns nil when
// apiKey is empty.
func newOpenAICompatibleAnswerer(cfg OpenAIConfig) *openaiAnswerer {
	if cfg.APIKey == "" {
		return nil
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(withTrailingSlash(cfg.BaseURL)))
	}
	return newOpenAIAnswerer(ProviderOpenAI, model, opts...)
}

func (a *openaiAnswerer) Answer(ctx context.Context, question string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(question),
		},
		Temperature: openai.Float(answerTemperature),
		MaxTokens:   openai.Int(answerMaxTokens),
	}

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		return "", WrapError(fmt.Errorf("chat completion failed: %w", err), a.provider)
	}

	if len(resp.Choices) == 0 {
		return "", WrapError(ErrEmptyAnswer, a.provider)
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", WrapError(ErrEmptyAnswer, a.provider)
	}

	slog.DebugContext(ctx, "chat completion finished",
		"provider", a.provider,
		"model", a.model,
		"input_tokens", resp.Usage.PromptTokens,
		"output_tokens", resp.Usage.CompletionTokens,
		"duration_ms", duration.Milliseconds())

	return answer, nil
}

func (a *openaiAnswerer) Provider() Provider {
	return a.provider
}

// Close is a no-op; the openai-go client holds no resources.
func (a *openaiAnswerer) Close() error {
	return nil
}

func withTrailingSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
