package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consensus/internal/conversation"
	"github.com/consensus/pkg/models"
)

func record(id, owner string, updated time.Time) conversation.Record {
	return conversation.Record{
		ID:           id,
		OwnerID:      owner,
		Title:        "t-" + id,
		Messages:     []conversation.Message{{ID: "u1", Role: conversation.RoleUser, Content: "hi"}},
		ActiveModels: []string{"gpt-4o"},
		CreatedAt:    updated,
		UpdatedAt:    updated,
	}
}

func TestMemoryConversationsAreOwnerScoped(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()

	require.NoError(t, m.SaveConversation(ctx, record("a", "alice", now)))
	require.NoError(t, m.SaveConversation(ctx, record("b", "alice", now.Add(time.Minute))))
	require.NoError(t, m.SaveConversation(ctx, record("c", "bob", now)))

	list, err := m.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID, "most recently updated first")
	assert.Equal(t, 1, list[0].MessageCount)

	_, err = m.GetConversation(ctx, "bob", "a")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = m.SaveConversation(ctx, record("a", "bob", now))
	assert.True(t, errors.Is(err, ErrNotFound), "another owner cannot overwrite")

	require.NoError(t, m.DeleteConversation(ctx, "alice", "a"))
	assert.ErrorIs(t, m.DeleteConversation(ctx, "alice", "a"), ErrNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveConversation(ctx, record("a", "alice", time.Now())))

	got, err := m.GetConversation(ctx, "alice", "a")
	require.NoError(t, err)
	got.Messages[0].Content = "mutated"

	again, err := m.GetConversation(ctx, "alice", "a")
	require.NoError(t, err)
	assert.Equal(t, "hi", again.Messages[0].Content)
}

func TestEnsureModelSettingsFillsDefaults(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	custom := models.ModelSettings{Temperature: 0.2, MaxTokens: 50, Visible: true}
	require.NoError(t, m.SaveSettings(ctx, "alice", models.UserSettings{
		ModelSettings: map[string]models.ModelSettings{"gpt-4o": custom},
	}))

	got, err := EnsureModelSettings(ctx, m, "alice", []string{"gpt-4o", "gemini-2.0-flash"})
	require.NoError(t, err)
	assert.Equal(t, custom, got.ModelSettings["gpt-4o"])
	assert.Equal(t, models.DefaultModelSettings(), got.ModelSettings["gemini-2.0-flash"])

	stored, err := m.GetSettings(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, stored.ModelSettings, 2)
}

func TestGetSettingsUnknownOwner(t *testing.T) {
	s, err := NewMemory().GetSettings(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, s.ModelSettings)
	assert.Empty(t, s.ActiveModels)
}

func TestMemoryEvictIdleOwners(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	require.NoError(t, m.SaveConversation(ctx, record("old", "guest-old", clock)))
	require.NoError(t, m.SaveSettings(ctx, "guest-old", models.UserSettings{ActiveModels: []string{"gpt-4o"}}))

	clock = clock.Add(2 * time.Hour)
	require.NoError(t, m.SaveConversation(ctx, record("new", "guest-new", clock)))

	clock = clock.Add(30 * time.Minute)
	assert.Equal(t, 1, m.EvictIdle(time.Hour))

	_, err := m.GetConversation(ctx, "guest-old", "old")
	assert.True(t, IsNotFound(err))
	settings, err := m.GetSettings(ctx, "guest-old")
	require.NoError(t, err)
	assert.Empty(t, settings.ActiveModels)

	_, err = m.GetConversation(ctx, "guest-new", "new")
	assert.NoError(t, err)
	assert.Equal(t, 0, m.EvictIdle(time.Hour))
}

func TestMemoryJanitorStopsWithContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunJanitor(ctx, time.Hour, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
