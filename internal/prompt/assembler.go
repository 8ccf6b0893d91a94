package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"tutor/internal/domain"
)

// Preamble is the fixed tutor persona prepended to every generation prompt.
const Preamble = "You are a helpful tutor assisting with Japanese grammar based on Genki textbook material. " +
	"Be clear, structured, and educational. Use bullet points and short examples with kana/kanji + romaji. " +
	"Ground your answer in the provided context and mention the lesson a point comes from. " +
	"If the context does not cover the question, say so instead of guessing."

// Assembler formats retrieved chunks, a bounded window of conversation
// history and the current question into a structured generation prompt.
// Output is deterministic for identical inputs.
type Assembler struct {
	historyWindow int
	budget        int
}

func New(historyWindow, budgetChars int) *Assembler {
	if historyWindow <= 0 {
		historyWindow = 6
	}
	if budgetChars <= 0 {
		budgetChars = 6000
	}
	return &Assembler{historyWindow: historyWindow, budget: budgetChars}
}

// Assemble builds the message sequence: preamble, the most recent history
// turns (older turns are dropped, not summarized), then one user message
// holding the labeled context blocks and the question. Context is trimmed to
// the character budget by dropping lowest-ranked chunks first and truncating
// the last chunk that partially fits; the question is always kept verbatim.
func (a *Assembler) Assemble(results []domain.RetrievedResult, history []domain.ConversationTurn, question string, hint domain.Filter) []domain.Message {
	messages := []domain.Message{{Role: domain.RoleSystem, Content: Preamble}}

	recent := history
	if len(recent) > a.historyWindow {
		recent = recent[len(recent)-a.historyWindow:]
	}
	for _, turn := range recent {
		messages = append(messages, domain.Message{Role: turn.Role, Content: turn.Content})
	}

	questionLine := "Question: " + question
	if !hint.IsEmpty() {
		questionLine = fmt.Sprintf("Question (%s): %s", hint, question)
	}

	// +2 for the blank line joining context and question
	used := len(Preamble) + len(questionLine) + 2
	for _, m := range messages[1:] {
		used += len(m.Content)
	}

	context := a.buildContext(results, a.budget-used)
	content := questionLine
	if context != "" {
		content = context + "\n\n" + questionLine
	}
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: content})
	return messages
}

func (a *Assembler) buildContext(results []domain.RetrievedResult, remaining int) string {
	if len(results) == 0 || remaining <= 0 {
		return ""
	}
	var b strings.Builder
	const header = "Context:\n"
	remaining -= len(header)
	for _, r := range results {
		label := fmt.Sprintf("[Lesson %d / Sublesson %d: %s]\n", r.Chunk.Lesson, r.Chunk.Sublesson, r.Chunk.Topic)
		sep := 0
		if b.Len() > 0 {
			sep = 2 // "\n\n"
		}
		block := label + r.Chunk.Text
		if sep+len(block) <= remaining {
			if sep > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(block)
			remaining -= sep + len(block)
			continue
		}
		// Partial fit: truncate this chunk's text, then stop. Lower-ranked
		// chunks are dropped entirely.
		room := remaining - sep - len(label)
		if room > 0 {
			if sep > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(label)
			b.WriteString(truncate(r.Chunk.Text, room))
		}
		break
	}
	if b.Len() == 0 {
		return ""
	}
	return header + b.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
