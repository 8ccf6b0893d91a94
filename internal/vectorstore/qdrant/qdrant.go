package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"tutor/internal/domain"
)

// Storage is a minimal REST client to Qdrant. It assumes cosine distance and
// creates the collection on first upsert, sized to the embedding dimension.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu      sync.Mutex
	created bool
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Qdrant point ids must be integers or UUIDs, so chunk ids are mapped to
// deterministic UUIDs; the original chunk_id lives in the payload.
var pointNamespace = uuid.MustParse("9f2d1f66-5c1b-4f3e-9a33-7d1c0b5e8a42")

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, len(chunks[0].Embedding)); err != nil {
		return &domain.StoreError{Op: "upsert", Err: err}
	}
	points := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		points[i] = map[string]any{
			"id":     uuid.NewSHA1(pointNamespace, []byte(c.ID)).String(),
			"vector": c.Embedding,
			"payload": map[string]any{
				"chunk_id":  c.ID,
				"text":      c.Text,
				"lesson":    c.Lesson,
				"sublesson": c.Sublesson,
				"topic":     c.Topic,
			},
		}
	}
	body := map[string]any{"points": points}
	// wait=true commits the write before the request returns
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection)
	if err := s.do(ctx, http.MethodPut, url, body, nil); err != nil {
		return &domain.StoreError{Op: "upsert", Err: err}
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, vector []float64, filter domain.Filter, topK int) ([]domain.RetrievedResult, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if qf := buildFilter(filter); qf != nil {
		req["filter"] = qf
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection)
	if err := s.do(ctx, http.MethodPost, url, req, &resp); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			// collection not created yet: a valid, empty state
			return nil, nil
		}
		return nil, &domain.StoreError{Op: "query", Err: err}
	}
	results := make([]domain.RetrievedResult, 0, len(resp.Result))
	for i, r := range resp.Result {
		c := domain.Chunk{}
		if v, ok := r.Payload["chunk_id"].(string); ok {
			c.ID = v
		}
		if v, ok := r.Payload["text"].(string); ok {
			c.Text = v
		}
		if v, ok := r.Payload["lesson"].(float64); ok {
			c.Lesson = int(v)
		}
		if v, ok := r.Payload["sublesson"].(float64); ok {
			c.Sublesson = int(v)
		}
		if v, ok := r.Payload["topic"].(string); ok {
			c.Topic = v
		}
		results = append(results, domain.RetrievedResult{Chunk: c, Score: r.Score, Rank: i + 1})
	}
	return results, nil
}

func (s *Storage) Wipe(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", s.url, s.collection)
	if err := s.do(ctx, http.MethodDelete, url, nil, nil); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil // already absent
		}
		return &domain.StoreError{Op: "wipe", Err: err}
	}
	s.mu.Lock()
	s.created = false
	s.mu.Unlock()
	return nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/count", s.url, s.collection)
	if err := s.do(ctx, http.MethodPost, url, map[string]any{"exact": true}, &resp); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return 0, nil
		}
		return 0, &domain.StoreError{Op: "count", Err: err}
	}
	return resp.Result.Count, nil
}

func (s *Storage) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return nil
	}
	if dimension <= 0 {
		return errors.New("invalid embedding dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", s.url, s.collection)
	if err := s.do(ctx, http.MethodPut, url, body, nil); err != nil {
		// Qdrant answers 409 when the collection already exists
		var se *statusError
		if !errors.As(err, &se) || se.code != http.StatusConflict {
			return err
		}
	}
	s.created = true
	return nil
}

func buildFilter(f domain.Filter) map[string]any {
	if f.IsEmpty() {
		return nil
	}
	var must []map[string]any
	if f.HasLesson() {
		must = append(must, map[string]any{"key": "lesson", "match": map[string]any{"value": f.Lesson}})
	}
	if f.HasSublesson() {
		must = append(must, map[string]any{"key": "sublesson", "match": map[string]any{"value": f.Sublesson}})
	}
	return map[string]any{"must": must}
}

type statusError struct {
	method string
	url    string
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %s", e.method, e.url, e.status)
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &statusError{method: method, url: url, code: resp.StatusCode, status: resp.Status}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
