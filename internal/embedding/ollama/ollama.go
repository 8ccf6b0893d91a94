package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"

	"tutor/internal/domain"
)

// Embedder generates embeddings through the Ollama API.
type Embedder struct {
	client        *api.Client
	model         string
	maxRetries    int
	timeout       time.Duration
	maxConcurrent int
}

// NewEmbedder creates an Ollama embedder. An empty host falls back to the
// OLLAMA_HOST environment default.
func NewEmbedder(host, model string, timeout time.Duration) (*Embedder, error) {
	hostURL := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = u
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Embedder{
		client:        api.NewClient(hostURL, http.DefaultClient),
		model:         model,
		maxRetries:    3,
		timeout:       timeout,
		maxConcurrent: 3,
	}, nil
}

// Embed generates an embedding for a single text, retrying transient failures.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	var lastErr error
	for retries := 0; retries <= e.maxRetries; retries++ {
		if retries > 0 {
			select {
			case <-ctx.Done():
				return nil, &domain.StoreError{Op: "embed", Err: ctx.Err()}
			case <-time.After(time.Duration(retries) * time.Second):
			}
		}
		vec, err := e.createEmbedding(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
	}
	return nil, &domain.StoreError{
		Op:  "embed",
		Err: fmt.Errorf("after %d retries: %w", e.maxRetries, lastErr),
	}
}

func (e *Embedder) createEmbedding(ctx context.Context, text string) ([]float64, error) {
	req := api.EmbeddingRequest{
		Model:  e.model,
		Prompt: text,
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Embeddings(ctxWithTimeout, &req)
	if err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

// EmbedBatch fills in the embeddings of the given chunks in place, running
// up to maxConcurrent requests in parallel.
func (e *Embedder) EmbedBatch(ctx context.Context, chunks []domain.Chunk) error {
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, e.maxConcurrent)
	errChan := make(chan error, len(chunks))

	for i := range chunks {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			vec, err := e.Embed(ctx, chunks[i].Text)
			if err != nil {
				errChan <- fmt.Errorf("embed chunk %s: %w", chunks[i].ID, err)
				return
			}
			chunks[i].Embedding = vec
		}(i)
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return err
	}
	return nil
}
