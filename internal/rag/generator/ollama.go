package generator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	ollama "github.com/ollama/ollama/api"

	"ragserver/internal/rag/interfaces"
	"ragserver/internal/rag/schema"
)

// Ollama streams completions from a local Ollama server. The client API is
// callback-based; the callback is bridged onto the event channel.
type Ollama struct {
	client  *ollama.Client
	model   string
	timeout time.Duration
}

// NewOllama creates a generator for the named model. baseURL defaults to the
// local Ollama address when empty.
func NewOllama(model, baseURL string, timeout time.Duration) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &Ollama{
		client:  ollama.NewClient(parsed, http.DefaultClient),
		model:   model,
		timeout: timeout,
	}, nil
}

func (o *Ollama) Stream(ctx context.Context, prompt string, temperature float32) (<-chan schema.Event, error) {
	streamCtx, cancel := streamContext(ctx, o.timeout)

	req := &ollama.GenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Options: map[string]any{"temperature": temperature},
	}

	ch := make(chan schema.Event)
	go func() {
		defer close(ch)
		defer cancel()
		err := o.client.Generate(streamCtx, req, func(resp ollama.GenerateResponse) error {
			if resp.Response == "" {
				return nil
			}
			if !emit(streamCtx, ch, schema.Event{Delta: resp.Response}) {
				return context.Canceled
			}
			return nil
		})
		if err != nil {
			emitTerminal(ctx, streamCtx, ch, err)
		}
	}()
	return ch, nil
}

var _ interfaces.Generator = (*Ollama)(nil)
