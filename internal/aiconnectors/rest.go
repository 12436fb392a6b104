package aiconnectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// restClient issues JSON requests and maps failures onto the gateway taxonomy.
type restClient struct {
	provider Provider
	http     *http.Client
}

// postJSON sends payload and decodes a 2xx body into out.
func (r *restClient) postJSON(ctx context.Context, endpoint string, headers map[string]string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return transportFromError(string(r.provider), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Debug().
			Str("provider", string(r.provider)).
			Int("status", resp.StatusCode).
			Msg("Provider returned error status")
		return UpstreamError(string(r.provider), resp.StatusCode, extractErrorMessage(resp.StatusCode, raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return transportFromError(string(r.provider), err)
		}
		return MalformedResponseError(string(r.provider), providerLabel(r.provider))
	}
	return nil
}

// transportFromError converts a client-side failure into a TransportError.
func transportFromError(provider string, err error) *GatewayError {
	if errors.Is(err, context.DeadlineExceeded) {
		return TransportError(provider, "Network error - request timed out", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return TransportError(provider, "Network error - request timed out", err)
	}
	return TransportError(provider, "", err)
}

// extractErrorMessage pulls error.message out of a provider error envelope,
// falling back to the raw body.
func extractErrorMessage(status int, raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return http.StatusText(status)
	}

	if msg, ok := envelopeMessage([]byte(text)); ok {
		return msg
	}
	if repaired, err := jsonrepair.JSONRepair(text); err == nil {
		if msg, ok := envelopeMessage([]byte(repaired)); ok {
			return msg
		}
	}
	return text
}

func envelopeMessage(raw []byte) (string, bool) {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Error) == 0 {
		return "", false
	}

	var detail struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil && detail.Message != "" {
		return detail.Message, true
	}

	var plain string
	if err := json.Unmarshal(envelope.Error, &plain); err == nil && plain != "" {
		return plain, true
	}
	return "", false
}

// geminiConnector calls the Generative Language generateContent endpoint.
type geminiConnector struct {
	rest    restClient
	apiKey  string
	baseURL string
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent          `json:"contents"`
	GenerationConfig geminiGenerationConfig   `json:"generationConfig"`
	Tools            []map[string]interface{} `json:"tools,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content *geminiContent `json:"content"`
	} `json:"candidates"`
}

func newGeminiConnector(options ConnectorOptions) *geminiConnector {
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &geminiConnector{
		rest:    restClient{provider: ProviderGoogle, http: options.HTTPClient},
		apiKey:  options.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (g *geminiConnector) Provider() Provider { return ProviderGoogle }

func (g *geminiConnector) Generate(ctx context.Context, prompt string, cfg ModelConfig) (string, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxTokens,
		},
	}
	if cfg.UseInternet {
		payload.Tools = []map[string]interface{}{{"google_search": map[string]interface{}{}}}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.baseURL, url.PathEscape(cfg.Model), url.QueryEscape(g.apiKey))

	var resp geminiResponse
	if err := g.rest.postJSON(ctx, endpoint, nil, payload, &resp); err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 || resp.Candidates[0].Content.Parts[0].Text == "" {
		return "", MalformedResponseError(string(ProviderGoogle), providerLabel(ProviderGoogle))
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

// openAIConnector calls the chat completions endpoint.
type openAIConnector struct {
	rest    restClient
	apiKey  string
	baseURL string
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message *openAIMessage `json:"message"`
	} `json:"choices"`
}

func newOpenAIConnector(options ConnectorOptions) *openAIConnector {
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &openAIConnector{
		rest:    restClient{provider: ProviderOpenAI, http: options.HTTPClient},
		apiKey:  options.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (o *openAIConnector) Provider() Provider { return ProviderOpenAI }

func (o *openAIConnector) Generate(ctx context.Context, prompt string, cfg ModelConfig) (string, error) {
	payload := openAIRequest{
		Model:       cfg.Model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}

	var resp openAIResponse
	if err := o.rest.postJSON(ctx, o.baseURL+"/chat/completions", headers, payload, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == "" {
		return "", MalformedResponseError(string(ProviderOpenAI), providerLabel(ProviderOpenAI))
	}
	return resp.Choices[0].Message.Content, nil
}
