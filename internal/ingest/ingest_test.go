package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor/internal/domain"
	"tutor/internal/vectorstore/memory"
)

type sliceSource struct {
	chunks []domain.Chunk
	err    error
}

func (s sliceSource) Load() ([]domain.Chunk, error) { return s.chunks, s.err }

// countingEmbedder records batch sizes and fills a fixed vector.
type countingEmbedder struct {
	batches []int
	err     error
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, chunks []domain.Chunk) error {
	if e.err != nil {
		return e.err
	}
	e.batches = append(e.batches, len(chunks))
	for i := range chunks {
		chunks[i].Embedding = []float64{1}
	}
	return nil
}

func makeChunks(n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:        string(rune('a' + i)),
			Text:      "chunk text",
			Lesson:    1,
			Sublesson: 1,
			Topic:     "topic",
		}
	}
	return chunks
}

func TestRunBatches(t *testing.T) {
	store := memory.NewStorage()
	emb := &countingEmbedder{}
	p := NewPipeline(sliceSource{chunks: makeChunks(7)}, emb, store, 3, nil)

	n, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, []int{3, 3, 1}, emb.batches)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestRunEmbedsBeforeUpsert(t *testing.T) {
	store := memory.NewStorage()
	p := NewPipeline(sliceSource{chunks: makeChunks(2)}, &countingEmbedder{}, store, 10, nil)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	res, err := store.Query(context.Background(), []float64{1}, domain.Filter{}, 5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.NotEmpty(t, r.Chunk.Embedding)
	}
}

func TestRunPropagatesSourceError(t *testing.T) {
	verr := &domain.ValidationError{Index: 2, Field: "text", Reason: "empty"}
	p := NewPipeline(sliceSource{err: verr}, &countingEmbedder{}, memory.NewStorage(), 3, nil)

	_, err := p.Run(context.Background())
	var got *domain.ValidationError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, 2, got.Index)
}

func TestRunPropagatesEmbedError(t *testing.T) {
	store := memory.NewStorage()
	emb := &countingEmbedder{err: errors.New("model missing")}
	p := NewPipeline(sliceSource{chunks: makeChunks(4)}, emb, store, 2, nil)

	_, err := p.Run(context.Background())
	require.Error(t, err)

	count, cerr := store.Count(context.Background())
	require.NoError(t, cerr)
	assert.Zero(t, count, "nothing upserted when the first batch fails to embed")
}

func TestRunEmptyCorpus(t *testing.T) {
	p := NewPipeline(sliceSource{}, &countingEmbedder{}, memory.NewStorage(), 3, nil)
	n, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
