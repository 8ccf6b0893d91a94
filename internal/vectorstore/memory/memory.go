package memory

import (
	"context"
	"sort"
	"sync"

	"tutor/internal/domain"
)

// Storage is an in-memory vector store using brute-force cosine similarity
// over the filtered subset. It is the default backend for local runs and the
// store double used in tests.
type Storage struct {
	mu     sync.RWMutex
	chunks map[string]domain.Chunk
}

func NewStorage() *Storage {
	return &Storage{chunks: make(map[string]domain.Chunk)}
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, vector []float64, filter domain.Filter, topK int) ([]domain.RetrievedResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	// vectors are assumed L2-normalized, so dot product is cosine similarity
	results := make([]domain.RetrievedResult, 0, topK)
	for _, c := range s.chunks {
		if !filter.Matches(c) {
			continue
		}
		results = append(results, domain.RetrievedResult{Chunk: c, Score: dot(c.Embedding, vector)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if topK > len(results) {
		topK = len(results)
	}
	results = results[:topK]
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

func (s *Storage) Wipe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = make(map[string]domain.Chunk)
	return nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
