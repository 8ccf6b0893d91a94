package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor/internal/domain"
)

func result(id string, lesson, sublesson int, topic, text string, rank int) domain.RetrievedResult {
	return domain.RetrievedResult{
		Chunk: domain.Chunk{ID: id, Lesson: lesson, Sublesson: sublesson, Topic: topic, Text: text},
		Rank:  rank,
	}
}

func totalChars(messages []domain.Message) int {
	n := 0
	for _, m := range messages {
		n += len(m.Content)
	}
	return n
}

func TestAssembleShape(t *testing.T) {
	a := New(6, 6000)
	results := []domain.RetrievedResult{
		result("c1", 3, 2, "te-form", "te-form conjugation rules", 1),
	}
	history := []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "hello"},
		{Role: domain.RoleAssistant, Content: "hi, what shall we study?"},
	}

	messages := a.Assemble(results, history, "explain the te-form", domain.Filter{})
	require.Len(t, messages, 4)
	assert.Equal(t, domain.RoleSystem, messages[0].Role)
	assert.Equal(t, Preamble, messages[0].Content)
	assert.Equal(t, domain.RoleUser, messages[1].Role)
	assert.Equal(t, domain.RoleAssistant, messages[2].Role)

	last := messages[3]
	assert.Equal(t, domain.RoleUser, last.Role)
	assert.Contains(t, last.Content, "[Lesson 3 / Sublesson 2: te-form]")
	assert.Contains(t, last.Content, "te-form conjugation rules")
	assert.Contains(t, last.Content, "Question: explain the te-form")
}

func TestAssembleFilterHint(t *testing.T) {
	a := New(6, 6000)
	messages := a.Assemble(nil, nil, "explain the te-form", domain.Filter{Lesson: 5})
	last := messages[len(messages)-1]
	assert.Contains(t, last.Content, "Question (lesson 5): explain the te-form")
}

func TestAssembleHistoryWindow(t *testing.T) {
	a := New(2, 6000)
	var history []domain.ConversationTurn
	for _, content := range []string{"one", "two", "three", "four"} {
		history = append(history, domain.ConversationTurn{Role: domain.RoleUser, Content: content})
	}

	messages := a.Assemble(nil, history, "q", domain.Filter{})
	// preamble + 2 most recent turns + question
	require.Len(t, messages, 4)
	assert.Equal(t, "three", messages[1].Content)
	assert.Equal(t, "four", messages[2].Content)
}

func TestAssembleDropsLowestRankedFirst(t *testing.T) {
	big := strings.Repeat("x", 300)
	results := []domain.RetrievedResult{
		result("c1", 1, 1, "a", big, 1),
		result("c2", 1, 2, "b", big, 2),
		result("c3", 1, 3, "c", big, 3),
	}
	budget := len(Preamble) + len("Question: q") + len("Context:\n") + 400
	a := New(6, budget)

	messages := a.Assemble(results, nil, "q", domain.Filter{})
	last := messages[len(messages)-1]
	assert.Contains(t, last.Content, "[Lesson 1 / Sublesson 1: a]")
	// second chunk only partially fits, third is dropped entirely
	assert.NotContains(t, last.Content, "[Lesson 1 / Sublesson 3: c]")
	assert.LessOrEqual(t, totalChars(messages), budget)
}

func TestAssembleBudgetKeepsQuestionVerbatim(t *testing.T) {
	// every chunk alone exceeds the whole budget
	huge := strings.Repeat("y", 10000)
	results := []domain.RetrievedResult{
		result("c1", 1, 1, "a", huge, 1),
		result("c2", 1, 2, "b", huge, 2),
	}
	a := New(6, 1000)

	messages := a.Assemble(results, nil, "what is the te-form?", domain.Filter{})
	last := messages[len(messages)-1]
	assert.Contains(t, last.Content, "Question: what is the te-form?")
	assert.LessOrEqual(t, totalChars(messages), 1000)
}

func TestAssembleTruncatesOnRuneBoundary(t *testing.T) {
	jp := strings.Repeat("て形", 3000)
	results := []domain.RetrievedResult{result("c1", 1, 1, "te-form", jp, 1)}
	a := New(6, 1000)

	messages := a.Assemble(results, nil, "q", domain.Filter{})
	last := messages[len(messages)-1]
	assert.True(t, strings.Contains(last.Content, "て"))
	for _, m := range messages {
		assert.True(t, strings.ToValidUTF8(m.Content, "") == m.Content)
	}
}

func TestAssembleDeterministic(t *testing.T) {
	a := New(6, 6000)
	results := []domain.RetrievedResult{result("c1", 3, 2, "te-form", "some text", 1)}
	history := []domain.ConversationTurn{{Role: domain.RoleUser, Content: "hi"}}

	first := a.Assemble(results, history, "q", domain.Filter{Lesson: 3})
	second := a.Assemble(results, history, "q", domain.Filter{Lesson: 3})
	assert.Equal(t, first, second)
}

func TestAssembleNoResultsOmitsContext(t *testing.T) {
	a := New(6, 6000)
	messages := a.Assemble(nil, nil, "q", domain.Filter{})
	last := messages[len(messages)-1]
	assert.Equal(t, "Question: q", last.Content)
}
