package aiconnectors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/cohere"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// modelFactory builds a langchaingo model bound to one model id.
type modelFactory func(model string) (llms.Model, error)

// langchainConnector adapts langchaingo clients to the Connector interface.
// Some clients ignore the per-call model option, so one client is kept per model id.
type langchainConnector struct {
	provider Provider
	factory  modelFactory
	mapper   *llms.ErrorMapper

	mu     sync.Mutex
	models map[string]llms.Model
}

func newLangchainConnector(options ConnectorOptions, factory modelFactory) *langchainConnector {
	var mapper *llms.ErrorMapper
	switch options.Provider {
	case ProviderAnthropic:
		mapper = llms.AnthropicErrorMapper()
	case ProviderDeepSeek:
		mapper = llms.OpenAIErrorMapper()
	default:
		mapper = llms.NewErrorMapper(string(options.Provider))
	}
	return &langchainConnector{
		provider: options.Provider,
		factory:  factory,
		mapper:   mapper,
		models:   make(map[string]llms.Model),
	}
}

func (l *langchainConnector) Provider() Provider { return l.provider }

func (l *langchainConnector) model(name string) (llms.Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.models[name]; ok {
		return m, nil
	}
	m, err := l.factory(name)
	if err != nil {
		return nil, err
	}
	l.models[name] = m
	return m, nil
}

func (l *langchainConnector) Generate(ctx context.Context, prompt string, cfg ModelConfig) (string, error) {
	m, err := l.model(cfg.Model)
	if err != nil {
		log.Error().Err(err).
			Str("provider", string(l.provider)).
			Str("model", cfg.Model).
			Msg("Failed to create langchain model")
		return "", UnsupportedProviderError(string(l.provider))
	}

	callOptions := []llms.CallOption{
		llms.WithModel(cfg.Model),
		llms.WithTemperature(cfg.Temperature),
	}
	if cfg.MaxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(cfg.MaxTokens))
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, m, prompt, callOptions...)
	if err != nil {
		return "", l.classify(err)
	}
	if strings.TrimSpace(text) == "" {
		return "", MalformedResponseError(string(l.provider), providerLabel(l.provider))
	}
	return text, nil
}

// classify maps a langchaingo error onto the gateway taxonomy.
func (l *langchainConnector) classify(err error) error {
	provider := string(l.provider)

	if err.Error() == "empty response from model" {
		return MalformedResponseError(provider, providerLabel(l.provider))
	}

	var netErr net.Error
	if errors.As(err, &netErr) && !netErr.Timeout() {
		return TransportError(provider, "", err)
	}

	var stdErr *llms.Error
	if !errors.As(l.mapper.WrapError(err), &stdErr) {
		return TransportError(provider, "", err)
	}

	switch stdErr.Code {
	case llms.ErrCodeTimeout, llms.ErrCodeCanceled:
		return TransportError(provider, "Network error - request timed out", err)
	case llms.ErrCodeAuthentication:
		return UpstreamError(provider, http.StatusUnauthorized, err.Error())
	case llms.ErrCodeRateLimit, llms.ErrCodeQuotaExceeded:
		return UpstreamError(provider, http.StatusTooManyRequests, err.Error())
	case llms.ErrCodeInvalidRequest, llms.ErrCodeContentFilter, llms.ErrCodeTokenLimit:
		return UpstreamError(provider, http.StatusBadRequest, err.Error())
	case llms.ErrCodeResourceNotFound:
		return UpstreamError(provider, http.StatusNotFound, err.Error())
	case llms.ErrCodeProviderUnavailable:
		return UpstreamError(provider, http.StatusServiceUnavailable, err.Error())
	case llms.ErrCodeNotImplemented:
		return UpstreamError(provider, http.StatusNotImplemented, err.Error())
	default:
		return UpstreamError(provider, http.StatusBadGateway, err.Error())
	}
}

// Helper functions to create models for specific providers

func createAnthropicModel(options ConnectorOptions) modelFactory {
	return func(model string) (llms.Model, error) {
		opts := []anthropic.Option{
			anthropic.WithToken(options.APIKey),
			anthropic.WithModel(model),
			anthropic.WithHTTPClient(options.HTTPClient),
		}
		if options.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(options.BaseURL))
		}
		return anthropic.New(opts...)
	}
}

func createCohereModel(options ConnectorOptions) modelFactory {
	return func(model string) (llms.Model, error) {
		opts := []cohere.Option{
			cohere.WithToken(options.APIKey),
			cohere.WithModel(model),
		}
		if options.BaseURL != "" {
			opts = append(opts, cohere.WithBaseURL(options.BaseURL))
		}
		return cohere.New(opts...)
	}
}

func createOllamaModel(options ConnectorOptions) modelFactory {
	serverURL := options.BaseURL
	if serverURL == "" {
		serverURL = defaultOllamaBaseURL
	}
	return func(model string) (llms.Model, error) {
		return ollama.New(
			ollama.WithServerURL(serverURL),
			ollama.WithModel(model),
			ollama.WithHTTPClient(options.HTTPClient),
		)
	}
}

// createOpenAICompatibleModel serves providers exposing the OpenAI wire format.
func createOpenAICompatibleModel(options ConnectorOptions) modelFactory {
	return func(model string) (llms.Model, error) {
		if options.APIKey == "" {
			return nil, fmt.Errorf("api key is required for %s", options.Provider)
		}
		return openai.New(
			openai.WithToken(options.APIKey),
			openai.WithModel(model),
			openai.WithBaseURL(options.BaseURL),
			openai.WithHTTPClient(options.HTTPClient),
		)
	}
}
