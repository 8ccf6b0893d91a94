package domain

import (
	"context"
	"fmt"
	"strings"
)

// Chunk is a minimal retrievable unit of textbook content tagged with
// lesson/sublesson/topic metadata. The embedding is computed at ingestion
// time and never stored in the corpus file itself.
type Chunk struct {
	ID        string
	Text      string
	Lesson    int
	Sublesson int
	Topic     string
	Embedding []float64
}

// Filter restricts a similarity search to an exact lesson and/or sublesson.
// A zero value on either field means that dimension is unrestricted
// (lessons and sublessons are numbered from 1).
type Filter struct {
	Lesson    int
	Sublesson int
}

func (f Filter) HasLesson() bool    { return f.Lesson > 0 }
func (f Filter) HasSublesson() bool { return f.Sublesson > 0 }
func (f Filter) IsEmpty() bool      { return !f.HasLesson() && !f.HasSublesson() }

// Matches reports whether the chunk falls inside the filtered partition.
func (f Filter) Matches(c Chunk) bool {
	if f.HasLesson() && c.Lesson != f.Lesson {
		return false
	}
	if f.HasSublesson() && c.Sublesson != f.Sublesson {
		return false
	}
	return true
}

func (f Filter) String() string {
	var parts []string
	if f.HasLesson() {
		parts = append(parts, fmt.Sprintf("lesson %d", f.Lesson))
	}
	if f.HasSublesson() {
		parts = append(parts, fmt.Sprintf("sublesson %d", f.Sublesson))
	}
	return strings.Join(parts, ", ")
}

// MergeFilters combines a filter parsed from question text with an explicit
// user-supplied one. The explicit filter wins field-by-field: explicit user
// intent overrides heuristic text parsing. A sublesson without an effective
// lesson is meaningless and is dropped.
func MergeFilters(parsed, explicit Filter) Filter {
	merged := parsed
	if explicit.HasLesson() {
		merged.Lesson = explicit.Lesson
	}
	if explicit.HasSublesson() {
		merged.Sublesson = explicit.Sublesson
	}
	if !merged.HasLesson() {
		merged.Sublesson = 0
	}
	return merged
}

// RetrievedResult is one ranked hit from a filtered similarity search.
// Rank is 1-based and follows descending score order.
type RetrievedResult struct {
	Chunk Chunk
	Score float64
	Rank  int
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one committed entry of the session transcript.
// Assistant turns carry the sources their answer was grounded on.
// Incomplete marks a turn whose generation stream was cut short.
type ConversationTurn struct {
	Role       Role
	Content    string
	Sources    []RetrievedResult
	Incomplete bool
}

// Message is one element of a structured generation prompt.
type Message struct {
	Role    Role
	Content string
}

// CollectionState tracks whether the named physical collection is known to
// hold vectors. It is owned by the lifecycle controller and updated together
// with the backing store, never independently.
type CollectionState struct {
	Collection string
	Populated  bool
}

// Embedder converts free text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Generator streams completion fragments for a structured prompt. The
// callback is invoked once per fragment in arrival order; returning an error
// from it aborts the stream. Cancellation goes through the context.
type Generator interface {
	Stream(ctx context.Context, messages []Message, fn func(fragment string) error) error
}
