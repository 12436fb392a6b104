package conversation

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consensus/pkg/models"
)

type labels map[string]models.ModelLabel

func (l labels) Describe(id string) models.ModelLabel {
	if label, ok := l[id]; ok {
		return label
	}
	return models.ModelLabel{ModelID: id, ModelName: id, ProviderName: "Unknown", ProviderIcon: "❓"}
}

var testLabels = labels{
	"m1": {ModelID: "m1", ModelName: "Model One", ProviderName: "Google", ProviderIcon: "🔍"},
	"m2": {ModelID: "m2", ModelName: "Model Two", ProviderName: "OpenAI", ProviderIcon: "🤖"},
	"m3": {ModelID: "m3", ModelName: "Model Three", ProviderName: "OpenAI", ProviderIcon: "🤖"},
}

func TestAppendTurnCreatesPendingSlots(t *testing.T) {
	c := New("user-1", "")
	user, assistant, err := c.AppendTurn("2+2?", []string{"m1", "m2", "m1"}, testLabels)
	require.NoError(t, err)

	assert.Equal(t, RoleUser, user.Role)
	assert.Equal(t, "2+2?", user.Content)
	assert.Equal(t, RoleAssistant, assistant.Role)
	assert.Equal(t, []string{"m1", "m2"}, assistant.ModelOrder)
	assert.Nil(t, assistant.Consensus)

	slot := assistant.ModelResponses["m1"]
	assert.True(t, slot.IsLoading)
	assert.Equal(t, PendingResponseContent, slot.Content)
	assert.Equal(t, "Model One", slot.ModelName)
	assert.Equal(t, "Google", slot.ProviderName)
	assert.Empty(t, slot.Error)

	snap := c.Snapshot()
	assert.Equal(t, DefaultTitle, snap.Title)
	assert.Len(t, snap.Messages, 2)
	assert.Equal(t, []string{"m1", "m2"}, snap.ActiveModels)
}

func TestAppendTurnRequiresModels(t *testing.T) {
	c := New("user-1", "t")
	_, _, err := c.AppendTurn("hi", nil, testLabels)
	assert.True(t, errors.Is(err, ErrNoActiveModels))
	assert.Empty(t, c.Snapshot().Messages)
}

func TestApplyOutcomeRoundTrip(t *testing.T) {
	c := New("user-1", "")
	_, assistant, err := c.AppendTurn("2+2?", []string{"m1", "m2"}, testLabels)
	require.NoError(t, err)

	ok, err := c.ApplyOutcome(assistant.ID, models.Outcome{ModelID: "m1", Text: "4"})
	require.NoError(t, err)
	assert.Equal(t, ModelResponse{
		ModelID: "m1", ModelName: "Model One", ProviderName: "Google", ProviderIcon: "🔍",
		Content: "4",
	}, ok)

	failed, err := c.ApplyOutcome(assistant.ID, models.Outcome{ModelID: "m2", Err: errors.New("no response")})
	require.NoError(t, err)
	assert.False(t, failed.IsLoading)
	assert.Equal(t, "Error: no response", failed.Content)
	assert.Equal(t, "no response", failed.Error)
}

func TestApplyOutcomeIsIdempotentButRejectsConflicts(t *testing.T) {
	c := New("user-1", "")
	_, assistant, err := c.AppendTurn("q", []string{"m1"}, testLabels)
	require.NoError(t, err)

	_, err = c.ApplyOutcome(assistant.ID, models.Outcome{ModelID: "m1", Text: "a"})
	require.NoError(t, err)

	_, err = c.ApplyOutcome(assistant.ID, models.Outcome{ModelID: "m1", Text: "a"})
	assert.NoError(t, err)

	_, err = c.ApplyOutcome(assistant.ID, models.Outcome{ModelID: "m1", Text: "b"})
	assert.True(t, errors.Is(err, ErrConflictingOutcome))

	msg, ok := c.Message(assistant.ID)
	require.True(t, ok)
	assert.Equal(t, "a", msg.ModelResponses["m1"].Content)
}

func TestApplyOutcomeUnknownTargets(t *testing.T) {
	c := New("user-1", "")
	user, assistant, err := c.AppendTurn("q", []string{"m1"}, testLabels)
	require.NoError(t, err)

	_, err = c.ApplyOutcome(assistant.ID, models.Outcome{ModelID: "zz", Text: "x"})
	assert.True(t, errors.Is(err, ErrSlotNotFound))

	_, err = c.ApplyOutcome("missing", models.Outcome{ModelID: "m1", Text: "x"})
	assert.True(t, errors.Is(err, ErrMessageNotFound))

	_, err = c.ApplyOutcome(user.ID, models.Outcome{ModelID: "m1", Text: "x"})
	assert.True(t, errors.Is(err, ErrMessageNotFound))
}

func TestApplyOutcomeCommutes(t *testing.T) {
	outcomes := []models.Outcome{
		{ModelID: "m1", Text: "4"},
		{ModelID: "m2", Err: errors.New("no response")},
		{ModelID: "m3", Text: "four"},
	}
	permutations := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	var want map[string]ModelResponse
	for _, perm := range permutations {
		c := New("user-1", "")
		_, assistant, err := c.AppendTurn("2+2?", []string{"m1", "m2", "m3"}, testLabels)
		require.NoError(t, err)

		for _, i := range perm {
			_, err := c.ApplyOutcome(assistant.ID, outcomes[i])
			require.NoError(t, err)
		}

		msg, ok := c.Message(assistant.ID)
		require.True(t, ok)
		if want == nil {
			want = msg.ModelResponses
			continue
		}
		if diff := cmp.Diff(want, msg.ModelResponses); diff != "" {
			t.Fatalf("permutation %v produced different responses (-want +got):\n%s", perm, diff)
		}
	}
}

func TestApplyConsensusOrdering(t *testing.T) {
	c := New("user-1", "")
	_, assistant, err := c.AppendTurn("q", []string{"m1", "m2"}, testLabels)
	require.NoError(t, err)

	err = c.ApplyConsensus(assistant.ID, PendingConsensus())
	assert.True(t, errors.Is(err, ErrSlotsPending))

	_, err = c.ApplyOutcome(assistant.ID, models.Outcome{ModelID: "m1", Text: "a"})
	require.NoError(t, err)
	_, err = c.ApplyOutcome(assistant.ID, models.Outcome{ModelID: "m2", Text: "b"})
	require.NoError(t, err)

	require.NoError(t, c.ApplyConsensus(assistant.ID, PendingConsensus()))
	msg, _ := c.Message(assistant.ID)
	require.NotNil(t, msg.Consensus)
	assert.True(t, msg.Consensus.IsLoading)
	assert.Equal(t, PendingConsensusContent, msg.Consensus.Content)

	require.NoError(t, c.ApplyConsensus(assistant.ID, SettledConsensus("a and b")))
	msg, _ = c.Message(assistant.ID)
	assert.Equal(t, Consensus{Content: "a and b"}, *msg.Consensus)
}

func TestCompleteSealsMessage(t *testing.T) {
	c := New("user-1", "")
	_, assistant, err := c.AppendTurn("q", []string{"m1"}, testLabels)
	require.NoError(t, err)
	_, err = c.ApplyOutcome(assistant.ID, models.Outcome{ModelID: "m1", Text: "a"})
	require.NoError(t, err)
	require.NoError(t, c.ApplyConsensus(assistant.ID, SkippedConsensus("only one")))
	require.NoError(t, c.Complete(assistant.ID))

	assert.True(t, errors.Is(c.ApplyConsensus(assistant.ID, SettledConsensus("late")), ErrMessageSealed))
	_, err = c.ApplyOutcome(assistant.ID, models.Outcome{ModelID: "m1", Text: "a"})
	assert.True(t, errors.Is(err, ErrMessageSealed))
}

func TestConsensusStatesAreDistinguishable(t *testing.T) {
	failed := FailedConsensus("boom")
	skipped := SkippedConsensus("not enough")
	settled := SettledConsensus("answer")

	assert.NotEmpty(t, failed.Error)
	assert.False(t, failed.Skipped)
	assert.True(t, skipped.Skipped)
	assert.Empty(t, skipped.Error)
	assert.False(t, settled.Skipped)
	assert.Empty(t, settled.Error)
}

func TestAppendSystemMessage(t *testing.T) {
	c := New("user-1", "")
	msg := c.AppendSystemMessage("Error: pipeline exploded")
	assert.Equal(t, RoleSystem, msg.Role)

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "Error: pipeline exploded", snap.Messages[0].Content)
}

func TestSnapshotIsIsolated(t *testing.T) {
	c := New("user-1", "")
	_, assistant, err := c.AppendTurn("q", []string{"m1"}, testLabels)
	require.NoError(t, err)

	snap := c.Snapshot()
	slot := snap.Messages[1].ModelResponses["m1"]
	slot.Content = "mutated"
	snap.Messages[1].ModelResponses["m1"] = slot

	msg, _ := c.Message(assistant.ID)
	assert.Equal(t, PendingResponseContent, msg.ModelResponses["m1"].Content)

	resumed := FromRecord(snap)
	assert.Equal(t, c.ID(), resumed.ID())
}
