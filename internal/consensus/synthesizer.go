// Package consensus reconciles several model answers into one synthesized answer.
package consensus

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/consensus/internal/aiconnectors"
	"github.com/consensus/internal/conversation"
	"github.com/consensus/pkg/models"
)

// MinSuccessfulResponses is the number of successful model answers required before
// a synthesis call is made.
const MinSuccessfulResponses = 2

// Default synthesis model.
const (
	DefaultModelID    = "gemini-2.0-flash"
	DefaultProviderID = "google"
)

// Skip reasons.
const (
	ReasonNoResponses           = "no successful responses"
	ReasonInsufficientResponses = "insufficient responses"
)

const synthesisInstructions = "Based on the following responses from different AI models, please synthesize a single, " +
	"comprehensive consensus answer. Analyze the responses for agreement and disagreement, and provide a final " +
	"answer that reflects the most likely correct or comprehensive information. Please box your final consensus " +
	"answer in LaTeX if possible."

// DefaultSettings are used for the synthesis call unless Config.Settings is set.
func DefaultSettings() models.ModelSettings {
	return models.ModelSettings{
		Temperature: 0.5,
		MaxTokens:   1000,
		Visible:     true,
	}
}

// Status is the result of one synthesis attempt.
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Result is what Synthesize produced. Content holds the answer on success and the
// user-facing explanation when skipped.
type Result struct {
	Status       Status
	Reason       string
	Content      string
	Err          error
	SuccessCount int
}

// State converts the result into the consensus slot of an assistant message.
func (r Result) State() conversation.Consensus {
	switch r.Status {
	case StatusSucceeded:
		return conversation.SettledConsensus(r.Content)
	case StatusFailed:
		return conversation.FailedConsensus(r.Err.Error())
	default:
		return conversation.SkippedConsensus(r.Content)
	}
}

// Config selects the synthesis model.
type Config struct {
	ModelID    string
	ProviderID string
	Settings   *models.ModelSettings
}

// Synthesizer decides consensus eligibility and issues the synthesis call.
type Synthesizer struct {
	sender     aiconnectors.Sender
	modelID    string
	providerID string
	settings   models.ModelSettings
}

// NewSynthesizer creates a Synthesizer; zero Config fields fall back to the defaults.
func NewSynthesizer(sender aiconnectors.Sender, cfg Config) *Synthesizer {
	s := &Synthesizer{
		sender:     sender,
		modelID:    cfg.ModelID,
		providerID: cfg.ProviderID,
		settings:   DefaultSettings(),
	}
	if s.modelID == "" {
		s.modelID = DefaultModelID
	}
	if s.providerID == "" {
		s.providerID = DefaultProviderID
	}
	if cfg.Settings != nil {
		s.settings = *cfg.Settings
	}
	return s
}

// ModelID returns the synthesis model id.
func (s *Synthesizer) ModelID() string { return s.modelID }

// Eligible reports whether n successful responses are enough for a synthesis call.
func Eligible(n int) bool {
	return n >= MinSuccessfulResponses
}

// Skip builds the skipped result for n successful responses.
func Skip(n int) Result {
	if n == 0 {
		return Result{
			Status:  StatusSkipped,
			Reason:  ReasonNoResponses,
			Content: "No successful responses to generate a consensus.",
		}
	}
	plural := ""
	if n != 1 {
		plural = "s"
	}
	return Result{
		Status:       StatusSkipped,
		Reason:       fmt.Sprintf("%s (n=%d)", ReasonInsufficientResponses, n),
		Content:      fmt.Sprintf("Not enough responses to generate a consensus (only %d successful response%s).", n, plural),
		SuccessCount: n,
	}
}

// BuildPrompt restates the original prompt and lists every response in the order given.
func BuildPrompt(originalPrompt string, outcomes []models.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The user's original prompt was: \"%s\"\n\n", originalPrompt)
	b.WriteString(synthesisInstructions)
	b.WriteString("\n\n")
	for _, o := range outcomes {
		name := o.ModelName
		if name == "" {
			name = o.ModelID
		}
		fmt.Fprintf(&b, "Response from %s:\n%s\n\n", name, o.Text)
	}
	return b.String()
}

// Synthesize makes at most one gateway call. Failed outcomes in the input are ignored.
// The call always uses the configured synthesis settings, never a user's chat settings
// for the same model.
func (s *Synthesizer) Synthesize(ctx context.Context, originalPrompt string, outcomes []models.Outcome) Result {
	successful := make([]models.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Succeeded() {
			successful = append(successful, o)
		}
	}

	n := len(successful)
	if !Eligible(n) {
		log.Info().Int("successful", n).Msg("Skipping consensus")
		return Skip(n)
	}

	text, err := s.sender.Send(ctx, aiconnectors.Request{
		Prompt:     BuildPrompt(originalPrompt, successful),
		ModelID:    s.modelID,
		ProviderID: s.providerID,
		Settings:   s.settings,
	})
	if err != nil {
		log.Error().Err(err).
			Str("model", s.modelID).
			Int("successful", n).
			Msg("Consensus synthesis failed")
		return Result{Status: StatusFailed, Err: err, SuccessCount: n}
	}

	return Result{Status: StatusSucceeded, Content: text, SuccessCount: n}
}
