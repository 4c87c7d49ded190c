package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// geminiAnswerer answers with Google's Gemini API.
type geminiAnswerer struct {
	client *genai.Client
	model  string
}

// newGeminiAnswerer returns nil when no API key is configured.
func newGeminiAnswerer(ctx context.Context, cfg GeminiConfig) (*geminiAnswerer, error) {
	if cfg.APIKey == "" {
		return nil, nil //nolint:nilnil // provider disabled without a key
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &geminiAnswerer{client: client, model: model}, nil
}

func (a *geminiAnswerer) Answer(ctx context.Context, question string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](answerTemperature),
		MaxOutputTokens:   answerMaxTokens,
	}

	start := time.Now()
	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(question), config)
	duration := time.Since(start)
	if err != nil {
		return "", WrapError(fmt.Errorf("generate content failed: %w", err), ProviderGemini)
	}

	var text strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	answer := strings.TrimSpace(text.String())
	if answer == "" {
		return "", WrapError(ErrEmptyAnswer, ProviderGemini)
	}

	if resp.UsageMetadata != nil {
		slog.DebugContext(ctx, "generate content finished",
			"provider", ProviderGemini,
			"model", a.model,
			"input_tokens", resp.UsageMetadata.PromptTokenCount,
			"output_tokens", resp.UsageMetadata.CandidatesTokenCount,
			"duration_ms", duration.Milliseconds())
	}
	return answer, nil
}

func (a *geminiAnswerer) Provider() Provider {
	return ProviderGemini
}

// Close is a no-op; genai.Client needs no explicit cleanup.
func (a *geminiAnswerer) Close() error {
	return nil
}
