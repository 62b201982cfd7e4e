package bootstrap

import (
	"context"
	"fmt"

	"github.com/kirillkom/dermafusion/internal/config"
	"github.com/kirillkom/dermafusion/internal/core/ports"
	"github.com/kirillkom/dermafusion/internal/infrastructure/llm/anthropic"
	"github.com/kirillkom/dermafusion/internal/infrastructure/llm/fallback"
	"github.com/kirillkom/dermafusion/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/dermafusion/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/dermafusion/internal/infrastructure/llm/openai"
)

// buildBackends creates one client per catalog entry, keeping catalog order.
func buildBackends(ctx context.Context, cfg config.Config, specs []config.BackendSpec) ([]fallback.Backend, error) {
	out := make([]fallback.Backend, 0, len(specs))
	for i, spec := range specs {
		var client ports.Generator
		switch spec.Provider {
		case config.ProviderGemini:
			c, err := gemini.New(ctx, spec.APIKey, spec.Model)
			if err != nil {
				closeBackends(out)
				return nil, fmt.Errorf("backend %d (%s/%s): %w", i, spec.Provider, spec.Model, err)
			}
			client = c
		case config.ProviderOpenAI:
			client = openai.New(spec.APIKey, spec.Model, spec.BaseURL)
		case config.ProviderAnthropic:
			client = anthropic.New(spec.APIKey, spec.Model, spec.BaseURL)
		case config.ProviderOllama:
			baseURL := spec.BaseURL
			if baseURL == "" {
				baseURL = cfg.OllamaURL
			}
			client = ollama.NewGenerator(ollama.New(baseURL, spec.Model, cfg.OllamaEmbedModel))
		default:
			closeBackends(out)
			return nil, fmt.Errorf("backend %d: unknown provider %q", i, spec.Provider)
		}
		out = append(out, fallback.Backend{
			Provider:   spec.Provider,
			Credential: spec.APIKey,
			Model:      spec.Model,
			Generator:  client,
		})
	}
	return out, nil
}

func closeBackends(backends []fallback.Backend) {
	for _, b := range backends {
		if c, ok := b.Generator.(*gemini.Client); ok {
			_ = c.Close()
		}
	}
}
