package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"tutor/internal/domain"
	"tutor/internal/lifecycle"
	"tutor/internal/planner"
	"tutor/internal/prompt"
	"tutor/internal/session"
	"tutor/internal/vectorstore"
)

// snippetCap bounds the chunk text attached to a committed turn's sources.
const snippetCap = 750

// Answer is the outcome of one question, streamed or not.
type Answer struct {
	Text    string
	Sources []domain.RetrievedResult
	// Filter is the effective search filter (parsed + explicit override).
	Filter domain.Filter
	// Degraded is set when retrieval was skipped because the vector backend
	// was unavailable and graceful degradation is enabled.
	Degraded bool
	// Incomplete is set when the generation stream was cut short; Text holds
	// whatever was produced before the cut.
	Incomplete bool
}

// TutorService wires the lifecycle gate, the hybrid query planner, the
// context assembler and the generation orchestrator into the two user-facing
// operations: Ask and Reset.
type TutorService struct {
	lifecycle *lifecycle.Controller
	planner   *planner.Planner
	assembler *prompt.Assembler
	orch      *session.Orchestrator
	history   *session.History
	store     vectorstore.Storage
	degrade   bool
	log       *zap.Logger
}

func NewTutorService(
	lc *lifecycle.Controller,
	pl *planner.Planner,
	as *prompt.Assembler,
	orch *session.Orchestrator,
	history *session.History,
	store vectorstore.Storage,
	degradeOnStoreError bool,
	log *zap.Logger,
) *TutorService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TutorService{
		lifecycle: lc,
		planner:   pl,
		assembler: as,
		orch:      orch,
		history:   history,
		store:     store,
		degrade:   degradeOnStoreError,
		log:       log,
	}
}

// Ask answers one question: ensure the collection is populated, retrieve
// filtered context, assemble the prompt and stream the answer. onFragment,
// if non-nil, receives each fragment for incremental display.
//
// Zero retrieved sources is a valid outcome (the filter excluded
// everything); it is reported, never silently widened.
func (s *TutorService) Ask(ctx context.Context, question string, explicit domain.Filter, onFragment func(string)) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("empty question")
	}

	var (
		results  []domain.RetrievedResult
		filter   domain.Filter
		degraded bool
	)

	started := time.Now()
	err := s.lifecycle.Ensure(ctx)
	if err == nil {
		err = s.lifecycle.Guard(ctx, func(ctx context.Context) error {
			var rerr error
			results, filter, rerr = s.planner.Retrieve(ctx, question, explicit)
			return rerr
		})
	}
	if err != nil {
		var se *domain.StoreError
		if !errors.As(err, &se) || !s.degrade {
			return nil, err
		}
		// Search unavailable: answer without retrieved context.
		degraded = true
		results = nil
		filter, _ = s.planner.Plan(question, explicit)
		s.log.Warn("retrieval degraded, answering without context", zap.Error(err))
	}

	s.log.Debug("planned query",
		zap.String("filter", filter.String()),
		zap.Int("sources", len(results)),
		zap.Bool("degraded", degraded),
		zap.Duration("retrieval", time.Since(started)))

	messages := s.assembler.Assemble(results, s.history.Turns(), question, explicit)
	s.history.Append(domain.ConversationTurn{Role: domain.RoleUser, Content: question})

	text, genErr := s.orch.Generate(ctx, messages, capSnippets(results), onFragment)
	answer := &Answer{Text: text, Sources: results, Filter: filter, Degraded: degraded}
	if genErr != nil {
		answer.Incomplete = true
		return answer, genErr
	}
	return answer, nil
}

// FinalizePartial commits partial text from a canceled generation as an
// incomplete assistant turn.
func (s *TutorService) FinalizePartial(text string, sources []domain.RetrievedResult) {
	s.orch.Finalize(text, capSnippets(sources))
}

// Reset wipes the collection and invalidates the populated state; the next
// question triggers re-ingestion. Session history is untouched, that is a
// separate concern (ClearHistory).
func (s *TutorService) Reset(ctx context.Context) error {
	return s.lifecycle.Reset(ctx)
}

// Ensure eagerly populates the collection, for startup checks.
func (s *TutorService) Ensure(ctx context.Context) error {
	return s.lifecycle.Ensure(ctx)
}

func (s *TutorService) ClearHistory() { s.history.Clear() }

func (s *TutorService) History() []domain.ConversationTurn { return s.history.Turns() }

// Status reports the lifecycle state and current chunk count.
func (s *TutorService) Status(ctx context.Context) (lifecycle.State, int, error) {
	n, err := s.store.Count(ctx)
	return s.lifecycle.State(), n, err
}

// capSnippets bounds the source texts kept on a committed turn so the
// transcript does not hold full chunk bodies.
func capSnippets(results []domain.RetrievedResult) []domain.RetrievedResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]domain.RetrievedResult, len(results))
	copy(out, results)
	for i := range out {
		text := strings.TrimSpace(out[i].Chunk.Text)
		text = strings.ReplaceAll(text, "\n", " ")
		if len(text) > snippetCap {
			n := snippetCap
			for n > 0 && !utf8.RuneStart(text[n]) {
				n--
			}
			text = text[:n] + "..."
		}
		out[i].Chunk.Text = text
	}
	return out
}
