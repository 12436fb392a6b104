package conversation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/consensus/pkg/models"
)

var (
	ErrMessageNotFound    = errors.New("assistant message not found")
	ErrSlotNotFound       = errors.New("model response slot not found")
	ErrConflictingOutcome = errors.New("model response slot already settled with a different outcome")
	ErrSlotsPending       = errors.New("model responses are still pending")
	ErrMessageSealed      = errors.New("assistant message is complete")
	ErrNoActiveModels     = errors.New("at least one active model is required")
)

// Describer supplies the display label for a model id.
type Describer interface {
	Describe(modelID string) models.ModelLabel
}

// Conversation is the single mutator of a conversation's messages.
// All methods are safe for concurrent use.
type Conversation struct {
	mu     sync.RWMutex
	record Record
	now    func() time.Time
}

// New starts an empty conversation owned by ownerID.
func New(ownerID, title string) *Conversation {
	if title == "" {
		title = DefaultTitle
	}
	now := time.Now().UTC()
	return &Conversation{
		record: Record{
			ID:           uuid.NewString(),
			OwnerID:      ownerID,
			Title:        title,
			Messages:     []Message{},
			ActiveModels: []string{},
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// FromRecord resumes a stored conversation.
func FromRecord(r Record) *Conversation {
	cp := r.Clone()
	if cp.Messages == nil {
		cp.Messages = []Message{}
	}
	return &Conversation{
		record: cp,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ID returns the conversation id.
func (c *Conversation) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.record.ID
}

// Snapshot returns a deep copy safe to serialize or hand to another goroutine.
func (c *Conversation) Snapshot() Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.record.Clone()
}

// Message returns a copy of the message with the given id.
func (c *Conversation) Message(id string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.record.Messages {
		if m.ID == id {
			return m.clone(), true
		}
	}
	return Message{}, false
}

// AppendTurn appends the user message and an assistant placeholder with one pending
// slot per distinct active model. Labels are resolved now and never re-resolved.
func (c *Conversation) AppendTurn(userContent string, activeModelIDs []string, describe Describer) (Message, Message, error) {
	order := dedupe(activeModelIDs)
	if len(order) == 0 {
		return Message{}, Message{}, ErrNoActiveModels
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	user := Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   userContent,
		Timestamp: now,
	}

	slots := make(map[string]ModelResponse, len(order))
	for _, id := range order {
		label := describe.Describe(id)
		slots[id] = ModelResponse{
			ModelID:      id,
			ModelName:    label.ModelName,
			ProviderName: label.ProviderName,
			ProviderIcon: label.ProviderIcon,
			Content:      PendingResponseContent,
			IsLoading:    true,
		}
	}
	assistant := Message{
		ID:             uuid.NewString(),
		Role:           RoleAssistant,
		ModelOrder:     order,
		ModelResponses: slots,
		Timestamp:      now,
	}

	c.record.Messages = append(c.record.Messages, user, assistant)
	c.record.ActiveModels = append([]string(nil), order...)
	c.record.UpdatedAt = now

	return user.clone(), assistant.clone(), nil
}

// settle converts an outcome into the slot's settled state.
func settle(slot ModelResponse, o models.Outcome) ModelResponse {
	slot.IsLoading = false
	if o.Err != nil {
		slot.Content = ErrorContentPrefix + o.Err.Error()
		slot.Error = o.Err.Error()
		return slot
	}
	slot.Content = o.Text
	slot.Error = ""
	return slot
}

// ApplyOutcome settles one slot. Re-applying an identical outcome is a no-op;
// a different outcome for an already settled slot is rejected.
func (c *Conversation) ApplyOutcome(assistantID string, o models.Outcome) (ModelResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, err := c.assistant(assistantID)
	if err != nil {
		return ModelResponse{}, err
	}
	if msg.Complete {
		return ModelResponse{}, ErrMessageSealed
	}

	slot, ok := msg.ModelResponses[o.ModelID]
	if !ok {
		return ModelResponse{}, fmt.Errorf("%w: %s", ErrSlotNotFound, o.ModelID)
	}

	next := settle(slot, o)
	if !slot.IsLoading {
		if slot == next {
			return slot, nil
		}
		return slot, fmt.Errorf("%w: %s", ErrConflictingOutcome, o.ModelID)
	}

	msg.ModelResponses[o.ModelID] = next
	c.record.UpdatedAt = c.now()
	return next, nil
}

// ApplyConsensus replaces the consensus slot wholesale. It is rejected while any
// model slot is still pending.
func (c *Conversation) ApplyConsensus(assistantID string, state Consensus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, err := c.assistant(assistantID)
	if err != nil {
		return err
	}
	if msg.Complete {
		return ErrMessageSealed
	}
	for _, slot := range msg.ModelResponses {
		if slot.IsLoading {
			return ErrSlotsPending
		}
	}

	cs := state
	msg.Consensus = &cs
	c.record.UpdatedAt = c.now()
	return nil
}

// Complete seals an assistant message; later outcomes and consensus updates are rejected.
func (c *Conversation) Complete(assistantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, err := c.assistant(assistantID)
	if err != nil {
		return err
	}
	msg.Complete = true
	c.record.UpdatedAt = c.now()
	return nil
}

// AppendSystemMessage records a pipeline-level error visible in the transcript.
func (c *Conversation) AppendSystemMessage(content string) Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	msg := Message{
		ID:        uuid.NewString(),
		Role:      RoleSystem,
		Content:   content,
		Timestamp: now,
	}
	c.record.Messages = append(c.record.Messages, msg)
	c.record.UpdatedAt = now
	return msg.clone()
}

// Rename sets the conversation title.
func (c *Conversation) Rename(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if title == "" {
		title = DefaultTitle
	}
	c.record.Title = title
	c.record.UpdatedAt = c.now()
}

// SetActiveModels replaces the active model selection.
func (c *Conversation) SetActiveModels(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record.ActiveModels = dedupe(ids)
	c.record.UpdatedAt = c.now()
}

// assistant must be called with the lock held.
func (c *Conversation) assistant(id string) (*Message, error) {
	for i := range c.record.Messages {
		m := &c.record.Messages[i]
		if m.ID == id {
			if m.Role != RoleAssistant {
				return nil, fmt.Errorf("%w: %s is a %s message", ErrMessageNotFound, id, m.Role)
			}
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
}

func dedupe(ids []string) []string {
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
