package conversation

import (
	"time"
)

// Domain models for a multi-model chat conversation.

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Placeholder content shown while a call is in flight.
const (
	PendingResponseContent  = "Generating response..."
	PendingConsensusContent = "Generating consensus..."
	ErrorContentPrefix      = "Error: "
	DefaultTitle            = "New Conversation"
)

// ModelResponse is one model's slot on an assistant message.
// Exactly one holds: IsLoading, Error set, or Content set without Error.
type ModelResponse struct {
	ModelID      string `json:"modelId"`
	ModelName    string `json:"modelName"`
	ProviderName string `json:"providerName"`
	ProviderIcon string `json:"providerIcon"`
	Content      string `json:"content"`
	IsLoading    bool   `json:"isLoading"`
	Error        string `json:"error,omitempty"`
}

// Consensus is the synthesized answer slot on an assistant message.
// Skipped marks the soft "not enough responses" state, which is neither a failure
// nor an absent consensus.
type Consensus struct {
	IsLoading bool   `json:"isLoading"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
}

// PendingConsensus is published right before the synthesis call.
func PendingConsensus() Consensus {
	return Consensus{IsLoading: true, Content: PendingConsensusContent}
}

// SettledConsensus carries the synthesized answer.
func SettledConsensus(content string) Consensus {
	return Consensus{Content: content}
}

// FailedConsensus records a synthesis call failure.
func FailedConsensus(message string) Consensus {
	return Consensus{Error: message}
}

// SkippedConsensus records that synthesis was not attempted.
func SkippedConsensus(reason string) Consensus {
	return Consensus{Content: reason, Skipped: true}
}

// Message is a tagged union keyed by Role. User and system messages use Content;
// assistant messages use ModelOrder, ModelResponses and Consensus.
type Message struct {
	ID             string                   `json:"id"`
	Role           Role                     `json:"role"`
	Content        string                   `json:"content,omitempty"`
	ModelOrder     []string                 `json:"modelOrder,omitempty"`
	ModelResponses map[string]ModelResponse `json:"modelResponses,omitempty"`
	Consensus      *Consensus               `json:"consensus,omitempty"`
	Complete       bool                     `json:"complete,omitempty"`
	Timestamp      time.Time                `json:"timestamp"`
}

// Record is a serializable snapshot of a conversation.
type Record struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Title        string    `json:"title"`
	Messages     []Message `json:"messages"`
	ActiveModels []string  `json:"activeModels"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Summary is the list view of a conversation.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Summarize returns the list view of r.
func (r Record) Summarize() Summary {
	return Summary{
		ID:           r.ID,
		Title:        r.Title,
		MessageCount: len(r.Messages),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (m Message) clone() Message {
	cp := m
	if m.ModelOrder != nil {
		cp.ModelOrder = append([]string(nil), m.ModelOrder...)
	}
	if m.ModelResponses != nil {
		cp.ModelResponses = make(map[string]ModelResponse, len(m.ModelResponses))
		for k, v := range m.ModelResponses {
			cp.ModelResponses[k] = v
		}
	}
	if m.Consensus != nil {
		c := *m.Consensus
		cp.Consensus = &c
	}
	return cp
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	cp := r
	cp.ActiveModels = append([]string(nil), r.ActiveModels...)
	cp.Messages = make([]Message, len(r.Messages))
	for i, m := range r.Messages {
		cp.Messages[i] = m.clone()
	}
	return cp
}
