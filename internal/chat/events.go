package chat

import "github.com/consensus/internal/conversation"

// EventType names a step of a turn.
type EventType string

const (
	EventTurnStarted      EventType = "turn_started"
	EventModelSettled     EventType = "model_settled"
	EventConsensusPending EventType = "consensus_pending"
	EventConsensusSettled EventType = "consensus_settled"
	EventSystemMessage    EventType = "system_message"
	EventTurnCompleted    EventType = "turn_completed"
)

// Event is published to an Observer as a turn progresses. Only the fields relevant
// to Type are set.
type Event struct {
	Type           EventType                   `json:"type"`
	ConversationID string                      `json:"conversationId"`
	AssistantID    string                      `json:"assistantId,omitempty"`
	User           *conversation.Message       `json:"user,omitempty"`
	Assistant      *conversation.Message       `json:"assistant,omitempty"`
	System         *conversation.Message       `json:"system,omitempty"`
	Response       *conversation.ModelResponse `json:"response,omitempty"`
	Consensus      *conversation.Consensus     `json:"consensus,omitempty"`
}

// Observer receives turn events in order from the goroutine running the turn.
type Observer func(Event)
