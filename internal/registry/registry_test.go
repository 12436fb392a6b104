package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consensus/pkg/models"
)

type stubLister struct {
	models []models.Model
	err    error
}

func (s stubLister) ListModels(ctx context.Context, providerID string) ([]models.Model, error) {
	return s.models, s.err
}

func TestDefaultCatalogLoads(t *testing.T) {
	r, err := New(DefaultCatalog())
	require.NoError(t, err)

	p, m, err := r.ResolveModel("gemini-2.0-flash")
	require.NoError(t, err)
	assert.Equal(t, "google", p.ID)
	assert.Equal(t, "google", m.ProviderID)
	assert.Equal(t, "Gemini 2.0 Flash", m.DisplayName)

	assert.True(t, r.ProviderAvailable("google"))
	assert.True(t, r.ProviderAvailable("openai"))
	assert.False(t, r.ProviderAvailable("deepseek"))
	assert.False(t, r.ProviderAvailable("nope"))
}

func TestResolveModelIsIdempotent(t *testing.T) {
	r, err := New(DefaultCatalog())
	require.NoError(t, err)

	p1, m1, err1 := r.ResolveModel("gpt-4o")
	p2, m2, err2 := r.ResolveModel("gpt-4o")
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, p1, p2)
	assert.Equal(t, m1, m2)
}

func TestResolveUnknownModel(t *testing.T) {
	r, err := New(DefaultCatalog())
	require.NoError(t, err)

	_, _, err = r.ResolveModel("does-not-exist")
	assert.True(t, errors.Is(err, ErrModelNotFound))
}

func TestDuplicateModelFailsFast(t *testing.T) {
	catalog := []models.Provider{
		{ID: "a", Available: true, Models: []models.Model{{ID: "shared"}}},
		{ID: "b", Available: true, Models: []models.Model{{ID: "shared"}}},
	}

	_, err := New(catalog)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateModel))
}

func TestDuplicateProviderFailsFast(t *testing.T) {
	catalog := []models.Provider{{ID: "a"}, {ID: "a"}}
	_, err := New(catalog)
	assert.Error(t, err)
}

func TestWithAvailabilityOverrides(t *testing.T) {
	r, err := New(DefaultCatalog(), WithAvailability(map[string]bool{"deepseek": true, "openai": false}))
	require.NoError(t, err)

	assert.True(t, r.ProviderAvailable("deepseek"))
	assert.False(t, r.ProviderAvailable("openai"))

	p, m, err := r.ResolveModel("deepseek-chat")
	require.NoError(t, err)
	assert.Equal(t, "deepseek", p.ID)
	assert.True(t, m.Available)

	_, _, err = r.ResolveModel("gpt-4o")
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestResolveRejectsUnavailableModel(t *testing.T) {
	r, err := New([]models.Provider{
		{ID: "p", DisplayName: "P", Available: true, Models: []models.Model{
			{ID: "on", DisplayName: "On", Available: true},
			{ID: "off", DisplayName: "Off", Available: false},
		}},
	})
	require.NoError(t, err)

	_, _, err = r.ResolveModel("on")
	assert.NoError(t, err)

	_, _, err = r.ResolveModel("off")
	assert.ErrorIs(t, err, ErrModelUnavailable)

	// Display still works for disabled models.
	assert.Equal(t, "Off", r.Describe("off").ModelName)
	assert.Equal(t, "P", r.Describe("off").ProviderName)
}

func TestDescribe(t *testing.T) {
	r, err := New(DefaultCatalog())
	require.NoError(t, err)

	assert.Equal(t, models.ModelLabel{
		ModelID:      "gpt-4o",
		ModelName:    "GPT-4o",
		ProviderName: "OpenAI",
		ProviderIcon: "🤖",
	}, r.Describe("gpt-4o"))

	assert.Equal(t, models.ModelLabel{
		ModelID:      "mystery",
		ModelName:    "mystery",
		ProviderName: "Unknown",
		ProviderIcon: "❓",
	}, r.Describe("mystery"))
}

func TestRefreshOverlaysLiveList(t *testing.T) {
	lister := stubLister{models: []models.Model{
		{ID: "gpt-4o", DisplayName: "GPT-4o"},
		{ID: "gpt-4.1", DisplayName: "gpt-4.1"},
		{ID: "gemini-2.0-flash", DisplayName: "stolen id"},
	}}
	r, err := New(DefaultCatalog(), WithLister(lister))
	require.NoError(t, err)

	got, err := r.Refresh(context.Background(), "openai")
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"gpt-4o", "gpt-4.1", "gpt-4"}, ids)

	p, _, err := r.ResolveModel("gpt-4.1")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.ID)

	p, _, err = r.ResolveModel("gemini-2.0-flash")
	require.NoError(t, err)
	assert.Equal(t, "google", p.ID, "live entries never steal ids owned by other providers")
}

func TestRefreshFailureKeepsLastKnownList(t *testing.T) {
	r, err := New(DefaultCatalog(), WithLister(stubLister{err: errors.New("boom")}))
	require.NoError(t, err)

	got, err := r.Refresh(context.Background(), "openai")
	require.Error(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "gpt-4o", got[0].ID)

	_, _, err = r.ResolveModel("gpt-4")
	assert.NoError(t, err)
}

func TestRefreshWithoutLister(t *testing.T) {
	r, err := New(DefaultCatalog())
	require.NoError(t, err)

	got, err := r.Refresh(context.Background(), "google")
	assert.True(t, errors.Is(err, ErrNoLister))
	assert.Len(t, got, 8)

	_, err = r.Refresh(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrProviderNotFound))
}
