package aiconnectors

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/consensus/pkg/models"
)

// DefaultTimeout bounds a single provider call when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// Request is a single prompt addressed to one model.
type Request struct {
	Prompt     string               `json:"prompt"`
	ModelID    string               `json:"model"`
	ProviderID string               `json:"provider"`
	Settings   models.ModelSettings `json:"settings"`
}

// Sender sends one prompt to one model and returns its completion text.
type Sender interface {
	Send(ctx context.Context, req Request) (string, error)
}

// ProviderCatalog reports whether a provider may be dispatched to.
type ProviderCatalog interface {
	ProviderAvailable(providerID string) bool
}

// GatewayConfig configures timeouts and rate limiting for all providers.
type GatewayConfig struct {
	Timeout time.Duration
	// RequestsPerSecond of zero disables rate limiting.
	RequestsPerSecond float64
	Burst             int
}

// Gateway routes requests to provider connectors.
// It never retries; each Send makes at most one outbound call.
type Gateway struct {
	catalog    ProviderCatalog
	connectors map[Provider]Connector
	limiters   map[Provider]*rate.Limiter
	timeout    time.Duration
}

// NewGateway creates a gateway over the given connectors.
func NewGateway(catalog ProviderCatalog, cfg GatewayConfig, connectors ...Connector) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	g := &Gateway{
		catalog:    catalog,
		connectors: make(map[Provider]Connector, len(connectors)),
		limiters:   make(map[Provider]*rate.Limiter, len(connectors)),
		timeout:    timeout,
	}
	for _, c := range connectors {
		g.connectors[c.Provider()] = c
		if cfg.RequestsPerSecond > 0 {
			burst := cfg.Burst
			if burst < 1 {
				burst = 1
			}
			g.limiters[c.Provider()] = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
		}
	}
	return g
}

// HasConnector reports whether a connector is configured for the provider.
func (g *Gateway) HasConnector(providerID string) bool {
	_, ok := g.connectors[Provider(providerID)]
	return ok
}

// Send dispatches req to its provider.
func (g *Gateway) Send(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ErrEmptyPrompt
	}

	provider := Provider(req.ProviderID)
	connector, ok := g.connectors[provider]
	if !ok || g.catalog == nil || !g.catalog.ProviderAvailable(req.ProviderID) {
		log.Warn().
			Str("provider", req.ProviderID).
			Str("model", req.ModelID).
			Msg("Rejected request for unsupported provider")
		return "", UnsupportedProviderError(req.ProviderID)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if limiter, ok := g.limiters[provider]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return "", TransportError(req.ProviderID, "Network error - rate limit wait exceeded deadline", err)
		}
	}

	start := time.Now()
	text, err := connector.Generate(ctx, req.Prompt, ModelConfig{
		Model:       req.ModelID,
		Temperature: req.Settings.Temperature,
		MaxTokens:   req.Settings.MaxTokens,
		UseInternet: req.Settings.UseInternet,
	})
	if err != nil {
		if ctx.Err() != nil && !IsKind(err, KindTransport) {
			err = transportFromError(req.ProviderID, ctx.Err())
		}
		log.Error().Err(err).
			Str("provider", req.ProviderID).
			Str("model", req.ModelID).
			Str("kind", string(KindOf(err))).
			Dur("duration", time.Since(start)).
			Msg("Provider call failed")
		return "", err
	}

	log.Debug().
		Str("provider", req.ProviderID).
		Str("model", req.ModelID).
		Int("response_length", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Provider call succeeded")
	return text, nil
}
