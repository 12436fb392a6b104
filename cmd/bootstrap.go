package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/consensus/internal/aiconnectors"
	"github.com/consensus/internal/api/auth"
	"github.com/consensus/internal/chat"
	"github.com/consensus/internal/config"
	"github.com/consensus/internal/consensus"
	"github.com/consensus/internal/database"
	"github.com/consensus/internal/fanout"
	"github.com/consensus/internal/llm"
	"github.com/consensus/internal/logging"
	"github.com/consensus/internal/registry"
	"github.com/consensus/internal/retry"
	"github.com/consensus/internal/store"
	"github.com/consensus/pkg/models"
)

// app is the wired service graph shared by the commands.
type app struct {
	registry *registry.Registry
	gateway  *aiconnectors.Gateway
	chat     *chat.Service
	tokens   *auth.TokenService
	retrier  *llm.ResilientSender
	guests   *store.Memory
	db       *sql.DB
}

func (a *app) Close() {
	if a.retrier != nil {
		log.Info().Int64("retries", a.retrier.Retries()).Msg("Model call retries since startup")
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}

// loadConfig reads, validates and applies the logging section.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Logging.Level
	if c.Bool("verbose") {
		level = "debug"
	}
	logging.Setup(level, cfg.Logging.Pretty)
	return cfg, nil
}

// connectorOptions lists every provider with credentials in a stable order.
func connectorOptions(cfg *config.Config) []aiconnectors.ConnectorOptions {
	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]aiconnectors.ConnectorOptions, 0, len(ids))
	for _, id := range ids {
		pc := cfg.Providers[id]
		provider := aiconnectors.Provider(id)
		switch {
		case pc.APIKey != "":
		// Ollama runs locally without a key.
		case provider == aiconnectors.ProviderOllama && (pc.BaseURL != "" || pc.Available != nil):
		default:
			continue
		}
		out = append(out, aiconnectors.ConnectorOptions{
			Provider: provider,
			APIKey:   pc.APIKey,
			BaseURL:  pc.BaseURL,
		})
	}
	return out
}

// janitorInterval is how often idle guest sessions are swept for a given ttl.
func janitorInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	return interval
}

// bootstrap builds the service graph from the configuration.
func bootstrap(ctx context.Context, cfg *config.Config) (*app, error) {
	opts := connectorOptions(cfg)

	reg, err := registry.New(registry.DefaultCatalog(),
		registry.WithAvailability(cfg.ProviderAvailability()),
		registry.WithLister(aiconnectors.NewModelLister(opts...)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load model catalog: %w", err)
	}

	connectors := make([]aiconnectors.Connector, 0, len(opts))
	for _, o := range opts {
		conn, err := aiconnectors.NewConnector(ctx, o)
		if err != nil {
			log.Warn().Err(err).Str("provider", string(o.Provider)).Msg("Skipping provider")
			continue
		}
		connectors = append(connectors, conn)
	}

	gateway := aiconnectors.NewGateway(reg, aiconnectors.GatewayConfig{
		Timeout:           cfg.Gateway.Timeout,
		RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
		Burst:             cfg.Gateway.Burst,
	}, connectors...)

	var fanSender aiconnectors.Sender = gateway
	var retrier *llm.ResilientSender
	if cfg.Fanout.MaxRetries > 0 {
		rc := retry.DispatchRetryConfig()
		rc.MaxRetries = cfg.Fanout.MaxRetries
		if cfg.Fanout.BaseDelay > 0 {
			rc.BaseDelay = cfg.Fanout.BaseDelay
		}
		retrier = llm.NewResilientSender(gateway, rc)
		fanSender = retrier
	}

	orchestrator := fanout.New(reg, fanSender, fanout.Config{MaxConcurrency: cfg.Fanout.MaxConcurrency})
	synthesizer := consensus.NewSynthesizer(gateway, consensus.Config{
		ModelID:    cfg.Consensus.Model,
		ProviderID: cfg.Consensus.Provider,
		Settings: &models.ModelSettings{
			Temperature: cfg.Consensus.Temperature,
			MaxTokens:   cfg.Consensus.MaxTokens,
			Visible:     true,
		},
	})

	a := &app{
		registry: reg,
		gateway:  gateway,
		tokens:   auth.NewTokenService(cfg.Server.JWTSecret),
		retrier:  retrier,
	}

	a.guests = store.NewMemory()
	var durable store.Store = store.NewMemory()
	if cfg.Storage.Backend == config.BackendPostgres {
		db, err := database.NewDB(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		durable = store.NewPostgres(db)
	}

	a.chat = chat.NewService(reg, orchestrator, synthesizer, durable, a.guests)

	log.Info().
		Int("connectors", len(connectors)).
		Str("storage", cfg.Storage.Backend).
		Str("consensus_model", synthesizer.ModelID()).
		Msg("Services initialized")
	return a, nil
}
