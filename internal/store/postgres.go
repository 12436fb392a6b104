package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/consensus/internal/conversation"
	"github.com/consensus/pkg/models"
)

// Postgres stores conversations and settings in PostgreSQL. Message lists and settings
// are kept as JSONB documents.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a store over an open connection.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) ListConversations(ctx context.Context, ownerID string) ([]conversation.Summary, error) {
	query := `
	SELECT id, title, jsonb_array_length(messages), created_at, updated_at
	FROM conversations
	WHERE owner_id = $1
	ORDER BY updated_at DESC
	`

	rows, err := p.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	out := make([]conversation.Summary, 0)
	for rows.Next() {
		var s conversation.Summary
		if err := rows.Scan(&s.ID, &s.Title, &s.MessageCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return out, nil
}

func (p *Postgres) GetConversation(ctx context.Context, ownerID, id string) (conversation.Record, error) {
	query := `
	SELECT id, owner_id, title, messages, active_models, created_at, updated_at
	FROM conversations
	WHERE id = $1 AND owner_id = $2
	`

	var rec conversation.Record
	var messages, active []byte
	err := p.db.QueryRowContext(ctx, query, id, ownerID).Scan(
		&rec.ID, &rec.OwnerID, &rec.Title, &messages, &active, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return conversation.Record{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
		}
		return conversation.Record{}, fmt.Errorf("failed to get conversation: %w", err)
	}

	if err := json.Unmarshal(messages, &rec.Messages); err != nil {
		return conversation.Record{}, fmt.Errorf("failed to decode messages: %w", err)
	}
	if err := json.Unmarshal(active, &rec.ActiveModels); err != nil {
		return conversation.Record{}, fmt.Errorf("failed to decode active models: %w", err)
	}
	return rec, nil
}

func (p *Postgres) SaveConversation(ctx context.Context, rec conversation.Record) error {
	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}
	active, err := json.Marshal(rec.ActiveModels)
	if err != nil {
		return fmt.Errorf("failed to encode active models: %w", err)
	}

	query := `
	INSERT INTO conversations (id, owner_id, title, messages, active_models, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		messages = EXCLUDED.messages,
		active_models = EXCLUDED.active_models,
		updated_at = EXCLUDED.updated_at
	WHERE conversations.owner_id = EXCLUDED.owner_id
	`

	res, err := p.db.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, rec.Title, messages, active, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("conversation %s: %w", rec.ID, ErrNotFound)
	}

	log.Debug().
		Str("conversation_id", rec.ID).
		Int("messages", len(rec.Messages)).
		Msg("Saved conversation")
	return nil
}

func (p *Postgres) DeleteConversation(ctx context.Context, ownerID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

func (p *Postgres) GetSettings(ctx context.Context, ownerID string) (models.UserSettings, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT settings FROM user_settings WHERE owner_id = $1`, ownerID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UserSettings{ModelSettings: map[string]models.ModelSettings{}}, nil
		}
		return models.UserSettings{}, fmt.Errorf("failed to get settings: %w", err)
	}

	var s models.UserSettings
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.UserSettings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	if s.ModelSettings == nil {
		s.ModelSettings = map[string]models.ModelSettings{}
	}
	return s, nil
}

func (p *Postgres) SaveSettings(ctx context.Context, ownerID string, settings models.UserSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	query := `
	INSERT INTO user_settings (owner_id, settings, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (owner_id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = NOW()
	`
	if _, err := p.db.ExecContext(ctx, query, ownerID, raw); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
