package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"tutor/internal/domain"
)

// History is the append-only session transcript. Turns are never mutated
// after being appended; Clear resets the session without touching the
// collection.
type History struct {
	mu    sync.Mutex
	turns []domain.ConversationTurn
}

func NewHistory() *History { return &History{} }

func (h *History) Append(turn domain.ConversationTurn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
}

// Turns returns a snapshot of the transcript.
func (h *History) Turns() []domain.ConversationTurn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.ConversationTurn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

// Orchestrator drives one generation stream: it forwards fragments for
// incremental display, accumulates the full answer, and commits the
// assistant turn to history.
//
// On a backend error the partial text is preserved and committed as an
// incomplete turn. On context cancellation nothing is committed; the caller
// gets the partial text back and may commit it explicitly via Finalize.
type Orchestrator struct {
	generator domain.Generator
	history   *History
}

func NewOrchestrator(generator domain.Generator, history *History) *Orchestrator {
	return &Orchestrator{generator: generator, history: history}
}

// Generate streams an answer for the assembled prompt. onFragment, if
// non-nil, is called once per fragment in order. The accumulated text is
// always returned, even on failure.
func (o *Orchestrator) Generate(ctx context.Context, messages []domain.Message, sources []domain.RetrievedResult, onFragment func(string)) (string, error) {
	var b strings.Builder
	err := o.generator.Stream(ctx, messages, func(fragment string) error {
		b.WriteString(fragment)
		if onFragment != nil {
			onFragment(fragment)
		}
		return nil
	})
	text := b.String()

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return text, &domain.GenerationError{Err: err, Canceled: true}
		}
		if text != "" {
			o.history.Append(domain.ConversationTurn{
				Role:       domain.RoleAssistant,
				Content:    text,
				Sources:    sources,
				Incomplete: true,
			})
		}
		return text, &domain.GenerationError{Err: err}
	}

	o.history.Append(domain.ConversationTurn{
		Role:    domain.RoleAssistant,
		Content: text,
		Sources: sources,
	})
	return text, nil
}

// Finalize commits partial text from a canceled stream as an incomplete
// assistant turn.
func (o *Orchestrator) Finalize(text string, sources []domain.RetrievedResult) {
	if text == "" {
		return
	}
	o.history.Append(domain.ConversationTurn{
		Role:       domain.RoleAssistant,
		Content:    text,
		Sources:    sources,
		Incomplete: true,
	})
}
