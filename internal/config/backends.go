package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// BackendSpec is one (provider, credential, model) entry of the ordered fallback catalog.
type BackendSpec struct {
	Provider string `toml:"provider"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
	BaseURL  string `toml:"base_url"`
}

type backendFile struct {
	Backends []BackendSpec `toml:"backend"`
}

// Backends returns the generative backend catalog in attempt order. Gemini
// entries come first, ordered by key then model, followed by the other providers.
func (c Config) Backends() ([]BackendSpec, error) {
	if strings.TrimSpace(c.LLMBackendsFile) != "" {
		return LoadBackendCatalog(c.LLMBackendsFile)
	}

	specs := make([]BackendSpec, 0)
	for _, key := range c.GeminiAPIKeys {
		for _, model := range c.GeminiModels {
			specs = append(specs, BackendSpec{Provider: ProviderGemini, APIKey: key, Model: model})
		}
	}
	if c.OpenAIAPIKey != "" {
		for _, model := range c.OpenAIModels {
			specs = append(specs, BackendSpec{Provider: ProviderOpenAI, APIKey: c.OpenAIAPIKey, Model: model, BaseURL: c.OpenAIBaseURL})
		}
	}
	if c.AnthropicAPIKey != "" {
		for _, model := range c.AnthropicModels {
			specs = append(specs, BackendSpec{Provider: ProviderAnthropic, APIKey: c.AnthropicAPIKey, Model: model, BaseURL: c.AnthropicBaseURL})
		}
	}
	for _, model := range c.OllamaChatModels {
		specs = append(specs, BackendSpec{Provider: ProviderOllama, Model: model, BaseURL: c.OllamaURL})
	}

	if len(specs) == 0 {
		return nil, errors.New("no generative backends configured: set GEMINI_API_KEYS, OPENAI_API_KEY, ANTHROPIC_API_KEY, OLLAMA_CHAT_MODELS or LLM_BACKENDS_FILE")
	}
	return specs, nil
}

// LoadBackendCatalog reads [[backend]] tables from a TOML file.
func LoadBackendCatalog(path string) ([]BackendSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backend catalog %s: %w", path, err)
	}
	return ParseBackendCatalog(raw)
}

func ParseBackendCatalog(raw []byte) ([]BackendSpec, error) {
	var file backendFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse backend catalog: %w", err)
	}
	if len(file.Backends) == 0 {
		return nil, errors.New("backend catalog has no [[backend]] entries")
	}

	out := make([]BackendSpec, 0, len(file.Backends))
	for i, spec := range file.Backends {
		spec.Provider = strings.ToLower(strings.TrimSpace(spec.Provider))
		spec.Model = strings.TrimSpace(spec.Model)
		spec.APIKey = strings.TrimSpace(os.ExpandEnv(spec.APIKey))
		spec.BaseURL = strings.TrimSpace(spec.BaseURL)

		switch spec.Provider {
		case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
			if spec.APIKey == "" {
				return nil, fmt.Errorf("backend %d (%s): api_key is required", i, spec.Provider)
			}
		case ProviderOllama:
		default:
			return nil, fmt.Errorf("backend %d: unknown provider %q", i, spec.Provider)
		}
		if spec.Model == "" {
			return nil, fmt.Errorf("backend %d (%s): model is required", i, spec.Provider)
		}
		out = append(out, spec)
	}
	return out, nil
}
