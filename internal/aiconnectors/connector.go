package aiconnectors

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Provider identifies an LLM provider by its registry id.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderCohere    Provider = "cohere"
	ProviderOllama    Provider = "ollama"
	ProviderDeepSeek  Provider = "deepseek"
)

// Default API endpoints per provider.
const (
	defaultGeminiBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
	defaultOllamaBaseURL   = "http://localhost:11434"
)

// ModelConfig contains the per-call generation configuration.
type ModelConfig struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	UseInternet bool    `json:"use_internet,omitempty"`
}

// ConnectorOptions contains options for creating a connector
type ConnectorOptions struct {
	Provider   Provider     `json:"provider"`
	APIKey     string       `json:"api_key"`
	BaseURL    string       `json:"base_url,omitempty"`
	HTTPClient *http.Client `json:"-"`
}

// Connector performs exactly one completion request against a provider.
type Connector interface {
	Provider() Provider
	Generate(ctx context.Context, prompt string, cfg ModelConfig) (string, error)
}

// NewConnector creates a new connector for the specified provider
func NewConnector(ctx context.Context, options ConnectorOptions) (Connector, error) {
	log.Debug().
		Str("provider", string(options.Provider)).
		Str("base_url", options.BaseURL).
		Msg("Creating new connector")

	if options.HTTPClient == nil {
		options.HTTPClient = &http.Client{}
	}

	switch options.Provider {
	case ProviderGoogle:
		return newGeminiConnector(options), nil
	case ProviderOpenAI:
		return newOpenAIConnector(options), nil
	case ProviderAnthropic:
		return newLangchainConnector(options, createAnthropicModel(options)), nil
	case ProviderCohere:
		return newLangchainConnector(options, createCohereModel(options)), nil
	case ProviderOllama:
		return newLangchainConnector(options, createOllamaModel(options)), nil
	case ProviderDeepSeek:
		if options.BaseURL == "" {
			options.BaseURL = defaultDeepSeekBaseURL
		}
		return newLangchainConnector(options, createOpenAICompatibleModel(options)), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", options.Provider)
	}
}

// providerLabel is the human-readable provider name used in error messages.
func providerLabel(p Provider) string {
	switch p {
	case ProviderGoogle:
		return "Gemini"
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderAnthropic:
		return "Anthropic"
	case ProviderCohere:
		return "Cohere"
	case ProviderOllama:
		return "Ollama"
	case ProviderDeepSeek:
		return "DeepSeek"
	default:
		return string(p)
	}
}
