// Package chat runs a conversation turn end to end: fan-out, per-model updates,
// consensus and persistence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/consensus/internal/consensus"
	"github.com/consensus/internal/conversation"
	"github.com/consensus/internal/store"
	"github.com/consensus/pkg/models"
)

// PromptSuffix is appended to the prompt sent to each model. The consensus prompt
// quotes the prompt as the user typed it.
const PromptSuffix = "\n\nPlease box your final answer in LaTeX if possible."

var (
	ErrEmptyPrompt     = errors.New("prompt must not be empty")
	ErrNoActiveModels  = errors.New("select at least one model")
	ErrInvalidSettings = errors.New("invalid model settings")
)

// Owner identifies who a conversation belongs to. Guest data lives only in the
// ephemeral store.
type Owner struct {
	ID    string
	Guest bool
}

// Dispatcher fans a prompt out to models.
type Dispatcher interface {
	Dispatch(ctx context.Context, prompt string, modelIDs []string, settings map[string]models.ModelSettings) (<-chan models.Outcome, error)
}

// Synthesizer reconciles model outcomes into a consensus.
type Synthesizer interface {
	Synthesize(ctx context.Context, originalPrompt string, outcomes []models.Outcome) consensus.Result
}

// TurnRequest is one user prompt against a conversation. ActiveModels falls back to
// the conversation's selection, then to the owner's saved selection.
type TurnRequest struct {
	Owner          Owner
	ConversationID string
	Prompt         string
	ActiveModels   []string
}

// TurnResult holds the messages a turn appended. System is set when the pipeline failed.
type TurnResult struct {
	ConversationID string                `json:"conversationId"`
	User           conversation.Message  `json:"user"`
	Assistant      conversation.Message  `json:"assistant"`
	System         *conversation.Message `json:"system,omitempty"`
}

// Service wires the orchestrator, synthesizer and state machine together.
type Service struct {
	describer   conversation.Describer
	dispatcher  Dispatcher
	synthesizer Synthesizer
	durable     store.Store
	guests      store.Store

	turnMu sync.Mutex
	turns  map[string]*turnLock
}

// turnLock is dropped from the map once nobody holds or waits on it.
type turnLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates a Service. durable backs signed-in users and guests backs
// guest sessions; they may be the same store.
func NewService(describer conversation.Describer, dispatcher Dispatcher, synthesizer Synthesizer, durable, guests store.Store) *Service {
	return &Service{
		describer:   describer,
		dispatcher:  dispatcher,
		synthesizer: synthesizer,
		durable:     durable,
		guests:      guests,
		turns:       make(map[string]*turnLock),
	}
}

func (s *Service) storeFor(owner Owner) store.Store {
	if owner.Guest {
		return s.guests
	}
	return s.durable
}

// lockConversation serializes turns on one conversation.
func (s *Service) lockConversation(id string) func() {
	s.turnMu.Lock()
	l, ok := s.turns[id]
	if !ok {
		l = &turnLock{}
		s.turns[id] = l
	}
	l.refs++
	s.turnMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.turnMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.turns, id)
		}
		s.turnMu.Unlock()
	}
}

// heldLocks reports how many conversations currently have a lock entry.
func (s *Service) heldLocks() int {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	return len(s.turns)
}

// SubmitTurn appends a turn and drives it to completion. Validation and lookup errors
// are returned before anything changes. Failures after the turn started are recorded
// as a system message and returned in TurnResult.System with a nil error.
func (s *Service) SubmitTurn(ctx context.Context, req TurnRequest, observe Observer) (*TurnResult, error) {
	if observe == nil {
		observe = func(Event) {}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	unlock := s.lockConversation(req.ConversationID)
	defer unlock()

	st := s.storeFor(req.Owner)
	rec, err := st.GetConversation(ctx, req.Owner.ID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	ids := req.ActiveModels
	if len(ids) == 0 {
		ids = rec.ActiveModels
	}
	if len(ids) == 0 {
		saved, err := st.GetSettings(ctx, req.Owner.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		ids = saved.ActiveModels
	}
	if len(ids) == 0 {
		return nil, ErrNoActiveModels
	}

	settings, err := store.EnsureModelSettings(ctx, st, req.Owner.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare model settings: %w", err)
	}

	conv := conversation.FromRecord(rec)
	user, assistant, err := conv.AppendTurn(req.Prompt, ids, s.describer)
	if err != nil {
		if errors.Is(err, conversation.ErrNoActiveModels) {
			return nil, ErrNoActiveModels
		}
		return nil, err
	}
	if err := st.SaveConversation(ctx, conv.Snapshot()); err != nil {
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}

	result := &TurnResult{ConversationID: conv.ID(), User: user}
	observe(Event{Type: EventTurnStarted, ConversationID: conv.ID(), User: &user, Assistant: &assistant})

	logger := log.With().
		Str("conversation_id", conv.ID()).
		Str("assistant_id", assistant.ID).
		Int("models", len(assistant.ModelOrder)).
		Logger()
	logger.Info().Msg("Turn started")

	if err := s.runTurn(ctx, conv, req.Prompt, assistant, settings.ModelSettings, observe); err != nil {
		logger.Error().Err(err).Msg("Turn failed")
		abandon(conv, assistant, err)
		sys := conv.AppendSystemMessage(conversation.ErrorContentPrefix + err.Error())
		result.System = &sys
		observe(Event{Type: EventSystemMessage, ConversationID: conv.ID(), System: &sys})
	}

	if final, ok := conv.Message(assistant.ID); ok {
		result.Assistant = final
	}

	// The turn is recorded even if the caller went away mid-flight.
	if err := st.SaveConversation(context.WithoutCancel(ctx), conv.Snapshot()); err != nil {
		return result, fmt.Errorf("failed to save conversation: %w", err)
	}

	observe(Event{Type: EventTurnCompleted, ConversationID: conv.ID(), Assistant: &result.Assistant, System: result.System})
	logger.Info().Bool("failed", result.System != nil).Msg("Turn completed")
	return result, nil
}

// runTurn recovers panics into errors so the caller can record them.
func (s *Service) runTurn(ctx context.Context, conv *conversation.Conversation, prompt string, assistant conversation.Message, settings map[string]models.ModelSettings, observe Observer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	ch, err := s.dispatcher.Dispatch(ctx, prompt+PromptSuffix, assistant.ModelOrder, settings)
	if err != nil {
		return err
	}

	settled := make(map[string]models.Outcome, len(assistant.ModelOrder))
	var applyErr error
	for o := range ch {
		settled[o.ModelID] = o
		slot, err := conv.ApplyOutcome(assistant.ID, o)
		if err != nil {
			if applyErr == nil {
				applyErr = err
			}
			continue
		}
		observe(Event{Type: EventModelSettled, ConversationID: conv.ID(), AssistantID: assistant.ID, Response: &slot})
	}
	if applyErr != nil {
		return applyErr
	}

	// Responses reach the synthesizer in the order the models were selected.
	outcomes := make([]models.Outcome, 0, len(settled))
	successes := 0
	for _, id := range assistant.ModelOrder {
		if o, ok := settled[id]; ok {
			outcomes = append(outcomes, o)
			if o.Succeeded() {
				successes++
			}
		}
	}

	if consensus.Eligible(successes) {
		pending := conversation.PendingConsensus()
		if err := conv.ApplyConsensus(assistant.ID, pending); err != nil {
			return err
		}
		observe(Event{Type: EventConsensusPending, ConversationID: conv.ID(), AssistantID: assistant.ID, Consensus: &pending})
	}

	res := s.synthesizer.Synthesize(ctx, prompt, outcomes)
	state := res.State()
	if err := conv.ApplyConsensus(assistant.ID, state); err != nil {
		return err
	}
	observe(Event{Type: EventConsensusSettled, ConversationID: conv.ID(), AssistantID: assistant.ID, Consensus: &state})

	return conv.Complete(assistant.ID)
}

// abandon settles whatever a failed turn left pending and seals the message.
func abandon(conv *conversation.Conversation, assistant conversation.Message, cause error) {
	for _, id := range assistant.ModelOrder {
		_, _ = conv.ApplyOutcome(assistant.ID, models.Outcome{ModelID: id, Err: cause})
	}
	if msg, ok := conv.Message(assistant.ID); ok && (msg.Consensus == nil || msg.Consensus.IsLoading) {
		_ = conv.ApplyConsensus(assistant.ID, conversation.FailedConsensus(cause.Error()))
	}
	_ = conv.Complete(assistant.ID)
}
