package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"

	"tutor/internal/domain"
)

// Client streams chat completions from the Ollama API.
type Client struct {
	client *api.Client
	model  string
}

// NewClient creates an Ollama chat client. An empty host falls back to the
// OLLAMA_HOST environment default.
func NewClient(host, model string) (*Client, error) {
	hostURL := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = u
	}
	return &Client{
		client: api.NewClient(hostURL, http.DefaultClient),
		model:  model,
	}, nil
}

// Stream sends the structured prompt as a chat request and forwards each
// response fragment to fn as it arrives.
func (c *Client) Stream(ctx context.Context, messages []domain.Message, fn func(string) error) error {
	msgs := make([]api.Message, len(messages))
	for i, m := range messages {
		msgs[i] = api.Message{Role: string(m.Role), Content: m.Content}
	}
	stream := true
	req := api.ChatRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": 0.2,
		},
	}
	return c.client.Chat(ctx, &req, func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		return fn(resp.Message.Content)
	})
}
