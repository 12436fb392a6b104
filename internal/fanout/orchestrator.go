// Package fanout dispatches one prompt to many models concurrently.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/consensus/internal/aiconnectors"
	"github.com/consensus/pkg/models"
)

// ErrNoModels is returned when Dispatch is called without any model ids.
var ErrNoModels = errors.New("no active models to dispatch to")

// DefaultMaxConcurrency bounds in-flight provider calls per dispatch.
const DefaultMaxConcurrency = 8

// Resolver maps a model id to its provider.
type Resolver interface {
	ResolveModel(id string) (models.Provider, models.Model, error)
}

// Config configures an Orchestrator.
type Config struct {
	MaxConcurrency int
}

// Orchestrator issues one gateway call per distinct model and streams outcomes as they settle.
// It never reads or writes conversation state.
type Orchestrator struct {
	resolver Resolver
	sender   aiconnectors.Sender
	limit    int
}

// New creates an Orchestrator.
func New(resolver Resolver, sender aiconnectors.Sender, cfg Config) *Orchestrator {
	limit := cfg.MaxConcurrency
	if limit <= 0 {
		limit = DefaultMaxConcurrency
	}
	return &Orchestrator{resolver: resolver, sender: sender, limit: limit}
}

// Dispatch sends prompt to every distinct model in modelIDs. The returned channel yields
// exactly one outcome per distinct id in completion order and is closed once all calls
// have settled. A failed call never cancels its siblings.
func (o *Orchestrator) Dispatch(ctx context.Context, prompt string, modelIDs []string, settings map[string]models.ModelSettings) (<-chan models.Outcome, error) {
	ids := distinct(modelIDs)
	if len(ids) == 0 {
		return nil, ErrNoModels
	}

	results := make(chan models.Outcome, len(ids))

	go func() {
		defer close(results)

		var g errgroup.Group
		g.SetLimit(o.limit)
		for _, id := range ids {
			id := id
			s, ok := settings[id]
			if !ok {
				s = models.DefaultModelSettings()
			}
			g.Go(func() error {
				results <- o.call(ctx, prompt, id, s)
				return nil
			})
		}
		_ = g.Wait()

		log.Debug().Int("models", len(ids)).Msg("Fan-out settled")
	}()

	return results, nil
}

func (o *Orchestrator) call(ctx context.Context, prompt, modelID string, settings models.ModelSettings) (outcome models.Outcome) {
	outcome.ModelID = modelID
	outcome.ModelName = modelID

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("model", modelID).
				Interface("panic", r).
				Msg("Recovered panic during model call")
			outcome.Text = ""
			outcome.Err = fmt.Errorf("internal error while calling %s: %v", modelID, r)
		}
	}()

	provider, model, err := o.resolver.ResolveModel(modelID)
	if err != nil {
		outcome.Err = aiconnectors.UnknownModelError(modelID)
		return outcome
	}
	outcome.ModelName = model.DisplayName

	start := time.Now()
	text, err := o.sender.Send(ctx, aiconnectors.Request{
		Prompt:     prompt,
		ModelID:    model.ID,
		ProviderID: provider.ID,
		Settings:   settings,
	})
	if err != nil {
		outcome.Err = err
	} else {
		outcome.Text = text
	}

	log.Info().
		Str("model", modelID).
		Str("provider", provider.ID).
		Bool("success", err == nil).
		Dur("duration", time.Since(start)).
		Msg("Model call settled")
	return outcome
}

// Collect drains an outcome channel into a slice, preserving completion order.
func Collect(ch <-chan models.Outcome) []models.Outcome {
	var out []models.Outcome
	for o := range ch {
		out = append(out, o)
	}
	return out
}

// Successful filters outcomes down to those that produced text.
func Successful(outcomes []models.Outcome) []models.Outcome {
	out := make([]models.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}

func distinct(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
