package chat

import (
	"context"
	"fmt"

	"github.com/consensus/internal/conversation"
	"github.com/consensus/internal/store"
	"github.com/consensus/pkg/models"
)

// ConversationUpdate changes the title and/or active models. Nil fields are left alone.
type ConversationUpdate struct {
	Title        *string  `json:"title,omitempty"`
	ActiveModels []string `json:"activeModels,omitempty"`
}

func (s *Service) ListConversations(ctx context.Context, owner Owner) ([]conversation.Summary, error) {
	return s.storeFor(owner).ListConversations(ctx, owner.ID)
}

func (s *Service) GetConversation(ctx context.Context, owner Owner, id string) (conversation.Record, error) {
	return s.storeFor(owner).GetConversation(ctx, owner.ID, id)
}

// CreateConversation starts an empty conversation. Without explicit models it takes
// the owner's saved active selection.
func (s *Service) CreateConversation(ctx context.Context, owner Owner, title string, activeModels []string) (conversation.Record, error) {
	st := s.storeFor(owner)

	if len(activeModels) == 0 {
		saved, err := st.GetSettings(ctx, owner.ID)
		if err != nil {
			return conversation.Record{}, fmt.Errorf("failed to load settings: %w", err)
		}
		activeModels = saved.ActiveModels
	}

	conv := conversation.New(owner.ID, title)
	conv.SetActiveModels(activeModels)
	rec := conv.Snapshot()
	if err := st.SaveConversation(ctx, rec); err != nil {
		return conversation.Record{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return rec, nil
}

func (s *Service) UpdateConversation(ctx context.Context, owner Owner, id string, update ConversationUpdate) (conversation.Record, error) {
	unlock := s.lockConversation(id)
	defer unlock()

	st := s.storeFor(owner)
	rec, err := st.GetConversation(ctx, owner.ID, id)
	if err != nil {
		return conversation.Record{}, err
	}

	conv := conversation.FromRecord(rec)
	if update.Title != nil {
		conv.Rename(*update.Title)
	}
	if update.ActiveModels != nil {
		conv.SetActiveModels(update.ActiveModels)
	}

	out := conv.Snapshot()
	if err := st.SaveConversation(ctx, out); err != nil {
		return conversation.Record{}, fmt.Errorf("failed to update conversation: %w", err)
	}
	return out, nil
}

func (s *Service) DeleteConversation(ctx context.Context, owner Owner, id string) error {
	unlock := s.lockConversation(id)
	defer unlock()

	return s.storeFor(owner).DeleteConversation(ctx, owner.ID, id)
}

// Settings returns the owner's settings with defaults filled in for the active models.
func (s *Service) Settings(ctx context.Context, owner Owner) (models.UserSettings, error) {
	st := s.storeFor(owner)
	current, err := st.GetSettings(ctx, owner.ID)
	if err != nil {
		return models.UserSettings{}, err
	}
	return store.EnsureModelSettings(ctx, st, owner.ID, current.ActiveModels)
}

// UpdateSettings validates and replaces the owner's settings.
func (s *Service) UpdateSettings(ctx context.Context, owner Owner, settings models.UserSettings) (models.UserSettings, error) {
	for id, ms := range settings.ModelSettings {
		if ms.Temperature < 0 || ms.Temperature > 2 {
			return models.UserSettings{}, fmt.Errorf("%w: temperature for %s must be between 0 and 2", ErrInvalidSettings, id)
		}
		if ms.MaxTokens <= 0 {
			return models.UserSettings{}, fmt.Errorf("%w: maxTokens for %s must be positive", ErrInvalidSettings, id)
		}
	}

	st := s.storeFor(owner)
	if err := st.SaveSettings(ctx, owner.ID, settings); err != nil {
		return models.UserSettings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	return store.EnsureModelSettings(ctx, st, owner.ID, settings.ActiveModels)
}

// IsNotFound reports whether err means the conversation does not exist for the caller.
func IsNotFound(err error) bool {
	return store.IsNotFound(err)
}
