package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor/internal/domain"
)

// scriptedGenerator yields fragments in order, optionally failing after a
// given number of them, and honors context cancellation between fragments.
type scriptedGenerator struct {
	fragments []string
	failAfter int // -1 disables
	err       error
}

func (g *scriptedGenerator) Stream(ctx context.Context, messages []domain.Message, fn func(string) error) error {
	for i, f := range g.fragments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if g.failAfter >= 0 && i == g.failAfter {
			return g.err
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func sources() []domain.RetrievedResult {
	return []domain.RetrievedResult{
		{Chunk: domain.Chunk{ID: "c1", Lesson: 3, Sublesson: 2, Topic: "te-form"}, Score: 0.9, Rank: 1},
	}
}

func TestGenerateAccumulatesAndCommits(t *testing.T) {
	history := NewHistory()
	gen := &scriptedGenerator{fragments: []string{"The ", "te-form ", "connects verbs."}, failAfter: -1}
	o := NewOrchestrator(gen, history)

	var streamed []string
	text, err := o.Generate(context.Background(), nil, sources(), func(f string) {
		streamed = append(streamed, f)
	})
	require.NoError(t, err)
	assert.Equal(t, "The te-form connects verbs.", text)
	assert.Equal(t, []string{"The ", "te-form ", "connects verbs."}, streamed)

	turns := history.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, domain.RoleAssistant, turns[0].Role)
	assert.Equal(t, text, turns[0].Content)
	assert.False(t, turns[0].Incomplete)
	assert.Equal(t, sources(), turns[0].Sources)
}

func TestGenerateBackendErrorPreservesPartial(t *testing.T) {
	history := NewHistory()
	gen := &scriptedGenerator{
		fragments: []string{"partial ", "answer ", "never seen"},
		failAfter: 2,
		err:       errors.New("backend gone"),
	}
	o := NewOrchestrator(gen, history)

	text, err := o.Generate(context.Background(), nil, sources(), nil)
	var gerr *domain.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.False(t, gerr.Canceled)
	assert.Equal(t, "partial answer ", text)

	turns := history.Turns()
	require.Len(t, turns, 1)
	assert.True(t, turns[0].Incomplete)
	assert.Equal(t, "partial answer ", turns[0].Content)
}

func TestGenerateBackendErrorWithoutOutput(t *testing.T) {
	history := NewHistory()
	gen := &scriptedGenerator{fragments: []string{"x"}, failAfter: 0, err: errors.New("unreachable")}
	o := NewOrchestrator(gen, history)

	text, err := o.Generate(context.Background(), nil, nil, nil)
	var gerr *domain.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Empty(t, text)
	assert.Zero(t, history.Len())
}

func TestGenerateCancellationDoesNotCommit(t *testing.T) {
	history := NewHistory()
	ctx, cancel := context.WithCancel(context.Background())
	gen := &scriptedGenerator{fragments: []string{"first ", "second"}, failAfter: -1}
	o := NewOrchestrator(gen, history)

	text, err := o.Generate(ctx, nil, sources(), func(f string) {
		if f == "first " {
			cancel()
		}
	})
	var gerr *domain.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.True(t, gerr.Canceled)
	assert.Equal(t, "first ", text)
	assert.Zero(t, history.Len(), "canceled output must not be committed implicitly")

	o.Finalize(text, sources())
	turns := history.Turns()
	require.Len(t, turns, 1)
	assert.True(t, turns[0].Incomplete)
	assert.Equal(t, "first ", turns[0].Content)
}

func TestFinalizeIgnoresEmptyText(t *testing.T) {
	history := NewHistory()
	o := NewOrchestrator(&scriptedGenerator{failAfter: -1}, history)
	o.Finalize("", nil)
	assert.Zero(t, history.Len())
}

func TestHistoryAppendAndClear(t *testing.T) {
	h := NewHistory()
	h.Append(domain.ConversationTurn{Role: domain.RoleUser, Content: "q1"})
	h.Append(domain.ConversationTurn{Role: domain.RoleAssistant, Content: "a1"})
	assert.Equal(t, 2, h.Len())

	turns := h.Turns()
	turns[0].Content = "mutated"
	assert.Equal(t, "q1", h.Turns()[0].Content, "Turns must return a copy")

	h.Clear()
	assert.Zero(t, h.Len())
}
