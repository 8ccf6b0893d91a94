package vectorstore

import (
	"context"

	"tutor/internal/domain"
)

// Storage owns the physical collection inside a vector backend.
//
// Upsert inserts or replaces chunks by id; mutations are durable before it
// returns. Query returns up to topK results in descending similarity order
// within the filtered subset; a filter that matches nothing yields an empty
// slice, not an error. Wipe deletes the whole collection and is idempotent.
// Backend failures surface as *domain.StoreError.
type Storage interface {
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	Query(ctx context.Context, vector []float64, filter domain.Filter, topK int) ([]domain.RetrievedResult, error)
	Wipe(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}
