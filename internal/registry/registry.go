// Package registry holds the provider and model catalog used for dispatch and display.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/consensus/pkg/models"
)

var (
	// ErrModelNotFound is returned when a model id is not in the registry.
	ErrModelNotFound = errors.New("model not found")
	// ErrModelUnavailable is returned when a model is listed but disabled.
	ErrModelUnavailable = errors.New("model not available")
	// ErrProviderNotFound is returned when a provider id is not in the registry.
	ErrProviderNotFound = errors.New("provider not found")
	// ErrDuplicateModel is returned at load time when two catalog entries share an id.
	ErrDuplicateModel = errors.New("duplicate model id")
	// ErrNoLister is returned by Refresh when no live listing source is configured.
	ErrNoLister = errors.New("live model listing is not configured")
)

// Display fallbacks for ids the registry does not know.
const (
	UnknownProviderName = "Unknown"
	UnknownProviderIcon = "❓"
)

// Lister fetches the live model list for a provider.
type Lister interface {
	ListModels(ctx context.Context, providerID string) ([]models.Model, error)
}

type entry struct {
	provider int
	model    models.Model
}

// Registry is a static catalog with a per-provider live overlay.
type Registry struct {
	mu        sync.RWMutex
	providers []models.Provider
	overlay   map[string][]models.Model
	index     map[string]entry
	lister    Lister
}

// Option configures a Registry.
type Option func(*Registry)

// WithLister enables Refresh against a live listing source.
func WithLister(l Lister) Option {
	return func(r *Registry) { r.lister = l }
}

// WithAvailability overrides provider availability from configuration. The
// provider's static models follow the provider flag.
func WithAvailability(overrides map[string]bool) Option {
	return func(r *Registry) {
		for i := range r.providers {
			v, ok := overrides[r.providers[i].ID]
			if !ok {
				continue
			}
			r.providers[i].Available = v
			for j := range r.providers[i].Models {
				r.providers[i].Models[j].Available = v
			}
		}
	}
}

// New loads catalog into a registry. Duplicate model or provider ids fail the load.
func New(catalog []models.Provider, opts ...Option) (*Registry, error) {
	r := &Registry{
		providers: make([]models.Provider, 0, len(catalog)),
		overlay:   make(map[string][]models.Model),
	}

	seenProviders := make(map[string]bool, len(catalog))
	for _, p := range catalog {
		if seenProviders[p.ID] {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID)
		}
		seenProviders[p.ID] = true

		cp := p
		cp.Models = make([]models.Model, len(p.Models))
		for i, m := range p.Models {
			m.ProviderID = p.ID
			cp.Models[i] = m
		}
		r.providers = append(r.providers, cp)
	}

	for _, opt := range opts {
		opt(r)
	}

	if err := r.rebuildIndex(); err != nil {
		return nil, err
	}
	return r, nil
}

// rebuildIndex must be called with the write lock held (or before publication).
func (r *Registry) rebuildIndex() error {
	index := make(map[string]entry)
	for i := range r.providers {
		for _, m := range r.modelsFor(i) {
			if prev, ok := index[m.ID]; ok {
				return fmt.Errorf("%w: %q in providers %q and %q",
					ErrDuplicateModel, m.ID, r.providers[prev.provider].ID, r.providers[i].ID)
			}
			index[m.ID] = entry{provider: i, model: m}
		}
	}
	r.index = index
	return nil
}

// modelsFor returns the effective list for provider i: the live list followed by
// any static entries the live list does not mention.
func (r *Registry) modelsFor(i int) []models.Model {
	p := r.providers[i]
	live, ok := r.overlay[p.ID]
	if !ok {
		return p.Models
	}

	out := make([]models.Model, 0, len(live)+len(p.Models))
	seen := make(map[string]bool, len(live))
	for _, m := range live {
		seen[m.ID] = true
		out = append(out, m)
	}
	for _, m := range p.Models {
		if !seen[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

// ListProviders returns every provider with its effective model list.
func (r *Registry) ListProviders() []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Provider, 0, len(r.providers))
	for i, p := range r.providers {
		cp := p
		cp.Models = append([]models.Model(nil), r.modelsFor(i)...)
		out = append(out, cp)
	}
	return out
}

// Provider returns a single provider by id.
func (r *Registry) Provider(id string) (models.Provider, error) {
	for _, p := range r.ListProviders() {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Provider{}, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
}

// ResolveModel finds the provider and model descriptors for a dispatchable model id.
// Models marked unavailable resolve to ErrModelUnavailable.
func (r *Registry) ResolveModel(id string) (models.Provider, models.Model, error) {
	p, m, err := r.lookup(id)
	if err != nil {
		return p, m, err
	}
	if !m.Available {
		return models.Provider{}, models.Model{}, fmt.Errorf("%w: %s", ErrModelUnavailable, id)
	}
	return p, m, nil
}

func (r *Registry) lookup(id string) (models.Provider, models.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.index[id]
	if !ok {
		return models.Provider{}, models.Model{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	p := r.providers[e.provider]
	p.Models = nil
	return p, e.model, nil
}

// ProviderAvailable reports whether requests may be dispatched to the provider.
func (r *Registry) ProviderAvailable(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.providers {
		if p.ID == id {
			return p.Available
		}
	}
	return false
}

// Describe returns the display label for a model id. Unknown ids get a placeholder label.
func (r *Registry) Describe(id string) models.ModelLabel {
	p, m, err := r.lookup(id)
	if err != nil {
		return models.ModelLabel{
			ModelID:      id,
			ModelName:    id,
			ProviderName: UnknownProviderName,
			ProviderIcon: UnknownProviderIcon,
		}
	}
	return models.ModelLabel{
		ModelID:      m.ID,
		ModelName:    m.DisplayName,
		ProviderName: p.DisplayName,
		ProviderIcon: p.Icon,
	}
}

// Refresh overlays the live model list for a provider. On failure the last known
// list is kept and returned together with the error.
func (r *Registry) Refresh(ctx context.Context, providerID string) ([]models.Model, error) {
	provider, err := r.Provider(providerID)
	if err != nil {
		return nil, err
	}
	if r.lister == nil {
		return provider.Models, ErrNoLister
	}

	live, err := r.lister.ListModels(ctx, providerID)
	if err != nil {
		log.Warn().Err(err).
			Str("provider", providerID).
			Msg("Live model listing failed, keeping last known list")
		return provider.Models, fmt.Errorf("failed to refresh %s models: %w", providerID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	owned := make(map[string]bool)
	for i, p := range r.providers {
		if p.ID == providerID {
			continue
		}
		for _, m := range r.modelsFor(i) {
			owned[m.ID] = true
		}
	}

	filtered := make([]models.Model, 0, len(live))
	seen := make(map[string]bool, len(live))
	for _, m := range live {
		if owned[m.ID] || seen[m.ID] {
			log.Warn().
				Str("provider", providerID).
				Str("model", m.ID).
				Msg("Skipping live model with an id already registered")
			continue
		}
		seen[m.ID] = true
		m.ProviderID = providerID
		filtered = append(filtered, m)
	}

	previous, hadPrevious := r.overlay[providerID]
	r.overlay[providerID] = filtered
	if err := r.rebuildIndex(); err != nil {
		if hadPrevious {
			r.overlay[providerID] = previous
		} else {
			delete(r.overlay, providerID)
		}
		_ = r.rebuildIndex()
		return provider.Models, err
	}

	log.Info().
		Str("provider", providerID).
		Int("models", len(filtered)).
		Msg("Refreshed live model list")

	for i, p := range r.providers {
		if p.ID == providerID {
			return append([]models.Model(nil), r.modelsFor(i)...), nil
		}
	}
	return filtered, nil
}
