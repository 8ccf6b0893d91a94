package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor/internal/domain"
)

func seed(t *testing.T) *Storage {
	t.Helper()
	s := NewStorage()
	err := s.Upsert(context.Background(), []domain.Chunk{
		{ID: "c1", Text: "te-form basics", Lesson: 3, Sublesson: 2, Topic: "te-form", Embedding: []float64{1, 0}},
		{ID: "c2", Text: "te-form requests", Lesson: 4, Sublesson: 1, Topic: "te-form", Embedding: []float64{0.8, 0.6}},
		{ID: "c3", Text: "particles", Lesson: 3, Sublesson: 1, Topic: "particles", Embedding: []float64{0, 1}},
	})
	require.NoError(t, err)
	return s
}

func TestUpsertAndCount(t *testing.T) {
	s := seed(t)
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUpsertReplacesByID(t *testing.T) {
	s := seed(t)
	err := s.Upsert(context.Background(), []domain.Chunk{
		{ID: "c1", Text: "updated", Lesson: 3, Sublesson: 2, Topic: "te-form", Embedding: []float64{1, 0}},
	})
	require.NoError(t, err)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := s.Query(context.Background(), []float64{1, 0}, domain.Filter{Lesson: 3, Sublesson: 2}, 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "updated", res[0].Chunk.Text)
}

func TestQueryOrdersByScoreWithRanks(t *testing.T) {
	s := seed(t)
	res, err := s.Query(context.Background(), []float64{1, 0}, domain.Filter{}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "c1", res[0].Chunk.ID)
	assert.Equal(t, "c2", res[1].Chunk.ID)
	assert.Equal(t, 1, res[0].Rank)
	assert.Equal(t, 2, res[1].Rank)
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
}

func TestQueryAppliesFilter(t *testing.T) {
	s := seed(t)

	res, err := s.Query(context.Background(), []float64{1, 0}, domain.Filter{Lesson: 3}, 5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.Equal(t, 3, r.Chunk.Lesson)
	}

	res, err = s.Query(context.Background(), []float64{1, 0}, domain.Filter{Lesson: 3, Sublesson: 2}, 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "c1", res[0].Chunk.ID)
}

func TestQueryNoMatchReturnsEmpty(t *testing.T) {
	s := seed(t)
	res, err := s.Query(context.Background(), []float64{1, 0}, domain.Filter{Lesson: 99}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestQueryEmptyStore(t *testing.T) {
	s := NewStorage()
	res, err := s.Query(context.Background(), []float64{1, 0}, domain.Filter{}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestWipeIsIdempotent(t *testing.T) {
	s := seed(t)
	require.NoError(t, s.Wipe(context.Background()))
	require.NoError(t, s.Wipe(context.Background()))
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
