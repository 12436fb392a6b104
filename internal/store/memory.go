package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/consensus/internal/conversation"
	"github.com/consensus/pkg/models"
)

// Memory is an in-process Store. It backs guest sessions and runs without a database.
type Memory struct {
	mu            sync.RWMutex
	conversations map[string]conversation.Record
	settings      map[string]models.UserSettings
	lastWrite     map[string]time.Time

	now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]conversation.Record),
		settings:      make(map[string]models.UserSettings),
		lastWrite:     make(map[string]time.Time),
		now:           time.Now,
	}
}

// touch records activity for an owner. Callers hold the write lock.
func (m *Memory) touch(ownerID string) {
	m.lastWrite[ownerID] = m.now()
}

// EvictIdle drops every conversation and the settings of owners that have not
// written anything for longer than ttl. It returns the number of owners evicted.
func (m *Memory) EvictIdle(ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-ttl)
	idle := make(map[string]bool)
	for owner, at := range m.lastWrite {
		if at.Before(cutoff) {
			idle[owner] = true
			delete(m.lastWrite, owner)
			delete(m.settings, owner)
		}
	}
	if len(idle) == 0 {
		return 0
	}
	for id, rec := range m.conversations {
		if idle[rec.OwnerID] {
			delete(m.conversations, id)
		}
	}
	return len(idle)
}

// RunJanitor evicts idle owners every interval until ctx is done.
func (m *Memory) RunJanitor(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.EvictIdle(ttl); n > 0 {
				log.Info().Int("owners", n).Dur("ttl", ttl).Msg("Evicted idle sessions")
			}
		}
	}
}

func (m *Memory) ListConversations(ctx context.Context, ownerID string) ([]conversation.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]conversation.Summary, 0)
	for _, rec := range m.conversations {
		if rec.OwnerID == ownerID {
			out = append(out, rec.Summarize())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *Memory) GetConversation(ctx context.Context, ownerID, id string) (conversation.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.conversations[id]
	if !ok || rec.OwnerID != ownerID {
		return conversation.Record{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return rec.Clone(), nil
}

func (m *Memory) SaveConversation(ctx context.Context, rec conversation.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.conversations[rec.ID]; ok && existing.OwnerID != rec.OwnerID {
		return fmt.Errorf("conversation %s: %w", rec.ID, ErrNotFound)
	}
	m.conversations[rec.ID] = rec.Clone()
	m.touch(rec.OwnerID)
	return nil
}

func (m *Memory) DeleteConversation(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.conversations[id]
	if !ok || rec.OwnerID != ownerID {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	delete(m.conversations, id)
	m.touch(ownerID)
	return nil
}

func (m *Memory) GetSettings(ctx context.Context, ownerID string) (models.UserSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSettings(m.settings[ownerID]), nil
}

func (m *Memory) SaveSettings(ctx context.Context, ownerID string, settings models.UserSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[ownerID] = cloneSettings(settings)
	m.touch(ownerID)
	return nil
}
