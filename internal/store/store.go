// Package store persists conversations and per-user model settings.
package store

import (
	"context"
	"errors"

	"github.com/consensus/internal/conversation"
	"github.com/consensus/pkg/models"
)

// ErrNotFound is returned when a conversation does not exist for the owner.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ConversationStore persists conversation records scoped to an owner.
type ConversationStore interface {
	ListConversations(ctx context.Context, ownerID string) ([]conversation.Summary, error)
	GetConversation(ctx context.Context, ownerID, id string) (conversation.Record, error)
	// SaveConversation inserts or replaces the record.
	SaveConversation(ctx context.Context, rec conversation.Record) error
	DeleteConversation(ctx context.Context, ownerID, id string) error
}

// SettingsStore persists model settings and the active model selection per owner.
// GetSettings returns empty settings, not an error, for an unknown owner.
type SettingsStore interface {
	GetSettings(ctx context.Context, ownerID string) (models.UserSettings, error)
	SaveSettings(ctx context.Context, ownerID string, settings models.UserSettings) error
}

// Store is the full persistence surface.
type Store interface {
	ConversationStore
	SettingsStore
}

// EnsureModelSettings fills in default settings for any model in ids that has none,
// saving only when something was added.
func EnsureModelSettings(ctx context.Context, s SettingsStore, ownerID string, ids []string) (models.UserSettings, error) {
	current, err := s.GetSettings(ctx, ownerID)
	if err != nil {
		return models.UserSettings{}, err
	}
	if current.ModelSettings == nil {
		current.ModelSettings = make(map[string]models.ModelSettings)
	}

	changed := false
	for _, id := range ids {
		if _, ok := current.ModelSettings[id]; !ok {
			current.ModelSettings[id] = models.DefaultModelSettings()
			changed = true
		}
	}
	if !changed {
		return current, nil
	}
	if err := s.SaveSettings(ctx, ownerID, current); err != nil {
		return models.UserSettings{}, err
	}
	return current, nil
}

func cloneSettings(s models.UserSettings) models.UserSettings {
	cp := models.UserSettings{
		ActiveModels:  append([]string(nil), s.ActiveModels...),
		ModelSettings: make(map[string]models.ModelSettings, len(s.ModelSettings)),
	}
	for k, v := range s.ModelSettings {
		cp.ModelSettings[k] = v
	}
	return cp
}
