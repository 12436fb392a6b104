package aiconnectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/consensus/pkg/models"
)

// ErrListingUnsupported is returned for providers without a model listing endpoint.
var ErrListingUnsupported = errors.New("live model listing is not supported for this provider")

// ModelLister fetches live model lists from provider APIs.
type ModelLister struct {
	client  *http.Client
	options map[Provider]ConnectorOptions
}

// NewModelLister creates a lister for the configured providers.
func NewModelLister(options ...ConnectorOptions) *ModelLister {
	l := &ModelLister{
		client:  &http.Client{Timeout: 10 * time.Second},
		options: make(map[Provider]ConnectorOptions, len(options)),
	}
	for _, o := range options {
		if o.HTTPClient != nil {
			l.client = o.HTTPClient
		}
		l.options[o.Provider] = o
	}
	return l
}

// ListModels returns the live model list for providerID.
func (l *ModelLister) ListModels(ctx context.Context, providerID string) ([]models.Model, error) {
	provider := Provider(providerID)
	opts, ok := l.options[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrListingUnsupported, providerID)
	}

	switch provider {
	case ProviderGoogle:
		return l.fetchGeminiModels(ctx, opts)
	case ProviderOpenAI:
		return l.fetchOpenAIModels(ctx, opts)
	case ProviderOllama:
		return l.fetchOllamaModels(ctx, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrListingUnsupported, providerID)
	}
}

func (l *ModelLister) getJSON(ctx context.Context, apiURL string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model listing returned status %d: %s", resp.StatusCode, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse model listing: %w", err)
	}
	return nil
}

type geminiModelsResponse struct {
	Models []struct {
		Name                       string   `json:"name"`
		DisplayName                string   `json:"displayName"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

func (l *ModelLister) fetchGeminiModels(ctx context.Context, opts ConnectorOptions) ([]models.Model, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	apiURL := fmt.Sprintf("%s/models?key=%s", strings.TrimSuffix(baseURL, "/"), url.QueryEscape(opts.APIKey))

	var resp geminiModelsResponse
	if err := l.getJSON(ctx, apiURL, nil, &resp); err != nil {
		return nil, err
	}

	result := make([]models.Model, 0, len(resp.Models))
	for _, m := range resp.Models {
		if len(m.SupportedGenerationMethods) > 0 && !containsString(m.SupportedGenerationMethods, "generateContent") {
			continue
		}
		id := strings.TrimPrefix(m.Name, "models/")
		name := m.DisplayName
		if name == "" {
			name = id
		}
		result = append(result, models.Model{ID: id, DisplayName: name, ProviderID: string(ProviderGoogle), Available: true})
	}
	return result, nil
}

type openAIModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (l *ModelLister) fetchOpenAIModels(ctx context.Context, opts ConnectorOptions) ([]models.Model, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	var resp openAIModelsResponse
	headers := map[string]string{"Authorization": "Bearer " + opts.APIKey}
	if err := l.getJSON(ctx, strings.TrimSuffix(baseURL, "/")+"/models", headers, &resp); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)

	result := make([]models.Model, 0, len(ids))
	for _, id := range ids {
		result = append(result, models.Model{ID: id, DisplayName: id, ProviderID: string(ProviderOpenAI), Available: true})
	}
	return result, nil
}

// OllamaModel represents a model from Ollama API
type OllamaModel struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
	Details    struct {
		Family        string `json:"family"`
		ParameterSize string `json:"parameter_size"`
	} `json:"details"`
}

// OllamaModelsResponse represents the response from Ollama /api/tags endpoint
type OllamaModelsResponse struct {
	Models []OllamaModel `json:"models"`
}

func (l *ModelLister) fetchOllamaModels(ctx context.Context, opts ConnectorOptions) ([]models.Model, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}

	var resp OllamaModelsResponse
	if err := l.getJSON(ctx, strings.TrimSuffix(baseURL, "/")+"/api/tags", nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Models) == 0 {
		log.Warn().Str("base_url", baseURL).Msg("No models found in Ollama instance")
	}

	result := make([]models.Model, 0, len(resp.Models))
	for _, m := range resp.Models {
		result = append(result, models.Model{ID: m.Name, DisplayName: m.Name, ProviderID: string(ProviderOllama), Available: true})
	}
	return result, nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
