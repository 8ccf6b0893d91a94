package planner

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"tutor/internal/domain"
	"tutor/internal/vectorstore"
)

// Planner turns a free-text question into a filtered similarity search.
// Lesson/sublesson cues parsed from the question are merged with an explicit
// override filter, explicit values winning field-by-field. The parsed phrase
// stays part of the semantic query text: "lesson 3 te-form" still carries
// topical signal.
type Planner struct {
	store    vectorstore.Storage
	embedder domain.Embedder
	topK     int
}

func New(store vectorstore.Storage, embedder domain.Embedder, topK int) *Planner {
	if topK <= 0 {
		topK = 4
	}
	return &Planner{store: store, embedder: embedder, topK: topK}
}

const numberAlternatives = `\d{1,3}|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty`

// "sublesson" contains no word boundary before "lesson", so the two patterns
// cannot shadow each other and extraction is order-independent.
var (
	lessonRe    = regexp.MustCompile(`(?i)\blesson\s+(` + numberAlternatives + `)\b`)
	sublessonRe = regexp.MustCompile(`(?i)\bsublesson\s+(` + numberAlternatives + `)\b`)
)

var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
}

// ExtractFilter scans a question for lesson/sublesson cues.
func ExtractFilter(question string) domain.Filter {
	var f domain.Filter
	if m := lessonRe.FindStringSubmatch(question); m != nil {
		if n, ok := parseNumber(m[1]); ok {
			f.Lesson = n
		}
	}
	if m := sublessonRe.FindStringSubmatch(question); m != nil {
		if n, ok := parseNumber(m[1]); ok {
			f.Sublesson = n
		}
	}
	return f
}

func parseNumber(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, n > 0
	}
	n, ok := wordNumbers[strings.ToLower(s)]
	return n, ok
}

// Plan computes the effective search filter for a question. The cleaned
// query is the question unchanged.
func (p *Planner) Plan(question string, explicit domain.Filter) (domain.Filter, string) {
	return domain.MergeFilters(ExtractFilter(question), explicit), question
}

// Retrieve embeds the question and runs the filtered similarity search.
// A filtered search that matches nothing returns an empty result set; it is
// never retried without the filter, so wrong-lesson content cannot leak in
// silently.
func (p *Planner) Retrieve(ctx context.Context, question string, explicit domain.Filter) ([]domain.RetrievedResult, domain.Filter, error) {
	filter, query := p.Plan(question, explicit)
	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, filter, err
	}
	results, err := p.store.Query(ctx, vec, filter, p.topK)
	if err != nil {
		return nil, filter, err
	}
	return results, filter, nil
}
