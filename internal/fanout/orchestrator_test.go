package fanout

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consensus/internal/aiconnectors"
	"github.com/consensus/internal/registry"
	"github.com/consensus/pkg/models"
)

type stubResolver map[string]string

func (s stubResolver) ResolveModel(id string) (models.Provider, models.Model, error) {
	provider, ok := s[id]
	if !ok {
		return models.Provider{}, models.Model{}, errors.New("model not found")
	}
	return models.Provider{ID: provider}, models.Model{ID: id, DisplayName: "name-" + id, ProviderID: provider}, nil
}

var resolver = stubResolver{"m1": "google", "m2": "openai", "m3": "openai"}

type reply struct {
	text  string
	err   error
	delay time.Duration
}

type fakeSender struct {
	mu       sync.Mutex
	replies  map[string]reply
	calls    map[string]int
	settings map[string]models.ModelSettings
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newFakeSender(replies map[string]reply) *fakeSender {
	return &fakeSender{replies: replies, calls: map[string]int{}, settings: map[string]models.ModelSettings{}}
}

func (f *fakeSender) Send(ctx context.Context, req aiconnectors.Request) (string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[req.ModelID]++
	f.settings[req.ModelID] = req.Settings
	r := f.replies[req.ModelID]
	f.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.text, r.err
}

func ids(outcomes []models.Outcome) []string {
	out := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, o.ModelID)
	}
	return out
}

func TestDispatchProducesOneOutcomePerDistinctModel(t *testing.T) {
	sender := newFakeSender(map[string]reply{
		"m1": {text: "4"},
		"m2": {text: "four"},
	})
	o := New(resolver, sender, Config{})

	ch, err := o.Dispatch(context.Background(), "2+2?", []string{"m1", "m2", "m1", "m2"}, nil)
	require.NoError(t, err)
	outcomes := Collect(ch)

	got := ids(outcomes)
	sort.Strings(got)
	assert.Equal(t, []string{"m1", "m2"}, got)
	assert.Equal(t, map[string]int{"m1": 1, "m2": 1}, sender.calls)
}

func TestDispatchStreamsInCompletionOrder(t *testing.T) {
	sender := newFakeSender(map[string]reply{
		"m1": {text: "slow", delay: 80 * time.Millisecond},
		"m2": {text: "fast"},
	})
	o := New(resolver, sender, Config{})

	ch, err := o.Dispatch(context.Background(), "q", []string{"m1", "m2"}, nil)
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "m2", first.ModelID)
	second := <-ch
	assert.Equal(t, "m1", second.ModelID)

	_, open := <-ch
	assert.False(t, open, "channel closes after the join")
}

func TestDispatchFailureDoesNotCancelSiblings(t *testing.T) {
	sender := newFakeSender(map[string]reply{
		"m1": {text: "4", delay: 30 * time.Millisecond},
		"m2": {err: aiconnectors.TransportError("openai", "no response", nil)},
	})
	o := New(resolver, sender, Config{})

	ch, err := o.Dispatch(context.Background(), "2+2?", []string{"m1", "m2"}, nil)
	require.NoError(t, err)

	byID := map[string]models.Outcome{}
	for _, out := range Collect(ch) {
		byID[out.ModelID] = out
	}

	assert.True(t, byID["m1"].Succeeded())
	assert.Equal(t, "4", byID["m1"].Text)
	assert.Equal(t, "name-m1", byID["m1"].ModelName)
	assert.False(t, byID["m2"].Succeeded())
	assert.EqualError(t, byID["m2"].Err, "no response")
	assert.Len(t, Successful(Collect(mustDispatch(t, o, []string{"m1", "m2"}))), 1)
}

func mustDispatch(t *testing.T, o *Orchestrator, modelIDs []string) <-chan models.Outcome {
	t.Helper()
	ch, err := o.Dispatch(context.Background(), "q", modelIDs, nil)
	require.NoError(t, err)
	return ch
}

func TestDispatchUnknownModelSettlesWithoutCall(t *testing.T) {
	sender := newFakeSender(map[string]reply{"m1": {text: "ok"}})
	o := New(resolver, sender, Config{})

	outcomes := Collect(mustDispatch(t, o, []string{"m1", "ghost"}))
	require.Len(t, outcomes, 2)

	for _, out := range outcomes {
		if out.ModelID == "ghost" {
			assert.True(t, aiconnectors.IsKind(out.Err, aiconnectors.KindUnsupportedProvider))
		}
	}
	assert.Equal(t, 0, sender.calls["ghost"])
}

func TestDispatchDisabledModelSettlesWithoutCall(t *testing.T) {
	reg, err := registry.New([]models.Provider{
		{ID: "deepseek", Available: true, Models: []models.Model{
			{ID: "deepseek-chat", DisplayName: "DeepSeek Chat", Available: true},
			{ID: "deepseek-coder", DisplayName: "DeepSeek Coder", Available: false},
		}},
	})
	require.NoError(t, err)
	sender := newFakeSender(map[string]reply{"deepseek-chat": {text: "ok"}, "deepseek-coder": {text: "ok"}})
	o := New(reg, sender, Config{})

	outcomes := Collect(mustDispatch(t, o, []string{"deepseek-chat", "deepseek-coder"}))
	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		if out.ModelID == "deepseek-coder" {
			assert.True(t, aiconnectors.IsKind(out.Err, aiconnectors.KindUnsupportedProvider))
		} else {
			assert.NoError(t, out.Err)
		}
	}
	assert.Equal(t, 0, sender.calls["deepseek-coder"])
	assert.Equal(t, 1, sender.calls["deepseek-chat"])
}

func TestDispatchForwardsPerModelSettings(t *testing.T) {
	sender := newFakeSender(map[string]reply{"m1": {text: "a"}, "m2": {text: "b"}})
	o := New(resolver, sender, Config{})

	custom := models.ModelSettings{Temperature: 0.1, MaxTokens: 50}
	ch, err := o.Dispatch(context.Background(), "q", []string{"m1", "m2"}, map[string]models.ModelSettings{"m1": custom})
	require.NoError(t, err)
	Collect(ch)

	assert.Equal(t, custom, sender.settings["m1"])
	assert.Equal(t, models.DefaultModelSettings(), sender.settings["m2"])
}

func TestDispatchRunsConcurrentlyWithinLimit(t *testing.T) {
	replies := map[string]reply{}
	for id := range resolver {
		replies[id] = reply{text: "x", delay: 40 * time.Millisecond}
	}

	sender := newFakeSender(replies)
	Collect(mustDispatch(t, New(resolver, sender, Config{}), []string{"m1", "m2", "m3"}))
	assert.EqualValues(t, 3, sender.peak.Load())

	limited := newFakeSender(replies)
	Collect(mustDispatch(t, New(resolver, limited, Config{MaxConcurrency: 1}), []string{"m1", "m2", "m3"}))
	assert.EqualValues(t, 1, limited.peak.Load())
}

func TestDispatchRequiresModels(t *testing.T) {
	o := New(resolver, newFakeSender(nil), Config{})
	_, err := o.Dispatch(context.Background(), "q", []string{"", ""}, nil)
	assert.True(t, errors.Is(err, ErrNoModels))
}

type panickingSender struct{}

func (panickingSender) Send(ctx context.Context, req aiconnectors.Request) (string, error) {
	panic("boom")
}

func TestDispatchRecoversPanics(t *testing.T) {
	o := New(resolver, panickingSender{}, Config{})
	outcomes := Collect(mustDispatch(t, o, []string{"m1"}))
	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
	assert.Empty(t, outcomes[0].Text)
}
