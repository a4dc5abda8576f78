package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// NewProvider builds the configured Provider wrapped as
// caller → retry → logging → base.
func NewProvider(ctx context.Context, cfg Config, recorder EventRecorder, log *zap.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Provider
	var err error
	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "mock":
		base = NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	return WithRetry(WithLogging(base, recorder, log), cfg.Retry), nil
}

// NewEmbedder builds the embedder for the knowledge index.
func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	provider := cfg.Embedding.Provider
	if provider == "" {
		switch cfg.Provider {
		case "openai", "gemini":
			provider = cfg.Provider
		default:
			provider = "hash"
		}
	}

	switch provider {
	case "openai":
		return NewOpenAIEmbedder(cfg.OpenAI, cfg.Embedding.Model)
	case "gemini":
		return NewGeminiEmbedder(ctx, cfg.Gemini, cfg.Embedding.Model)
	case "hash":
		return NewHashEmbedder(cfg.Embedding.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", provider)
	}
}
