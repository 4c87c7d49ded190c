package genai

import (
	"context"
	"log/slog"

	"github.com/snospb/vk-sno-bot/internal/metrics"
)

// NewAnswerer builds the provider chain from cfg. Providers without
// credentials are skipped; a provider that fails to initialize is logged and
// skipped. The returned chain may be empty.
func NewAnswerer(ctx context.Context, cfg Config, m *metrics.Metrics) *FallbackAnswerer {
	var chain []Answerer

	for _, p := range cfg.ConfiguredProviders() {
		switch p {
		case ProviderGigaChat:
			chain = append(chain, newGigaChatAnswerer(cfg.GigaChat, nil))
		case ProviderOpenAI:
			chain = append(chain, newOpenAICompatibleAnswerer(cfg.OpenAI))
		case ProviderGemini:
			a, err := newGeminiAnswerer(ctx, cfg.Gemini)
			if err != nil {
				slog.WarnContext(ctx, "failed to create gemini answerer", "error", err)
				continue
			}
			chain = append(chain, a)
		}
	}

	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}
	f := NewFallbackAnswerer(retry, m, chain...)

	if f.Len() == 0 {
		slog.InfoContext(ctx, "no AI provider configured")
	} else {
		slog.InfoContext(ctx, "AI answerer configured", "primary", f.Provider(), "chainSize", f.Len())
	}
	return f
}
