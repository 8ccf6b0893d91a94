package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tutor/internal/domain"
	"tutor/internal/vectorstore"
)

// Source loads validated chunk records from a corpus.
type Source interface {
	Load() ([]domain.Chunk, error)
}

// BatchEmbedder fills chunk embeddings in place.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, chunks []domain.Chunk) error
}

// Pipeline drives Source -> embedder -> store in batches. It does not track
// populated state itself; the lifecycle controller flips CollectionState only
// after a fully successful run, so a failed batch never leaves the process
// claiming a populated collection.
type Pipeline struct {
	source    Source
	embedder  BatchEmbedder
	store     vectorstore.Storage
	batchSize int
	log       *zap.Logger
}

func NewPipeline(source Source, embedder BatchEmbedder, store vectorstore.Storage, batchSize int, log *zap.Logger) *Pipeline {
	if batchSize <= 0 {
		batchSize = 32
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{source: source, embedder: embedder, store: store, batchSize: batchSize, log: log}
}

// Run loads the corpus, embeds it and upserts it batch by batch. It returns
// the number of chunks ingested; on any failure it returns the error of the
// failing stage and the collection must not be considered populated.
func (p *Pipeline) Run(ctx context.Context) (int, error) {
	chunks, err := p.source.Load()
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		if err := p.embedder.EmbedBatch(ctx, batch); err != nil {
			return 0, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if err := p.store.Upsert(ctx, batch); err != nil {
			return 0, fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
		}
		p.log.Debug("ingested batch", zap.Int("from", start), zap.Int("to", end))
	}

	p.log.Info("corpus ingested", zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}
