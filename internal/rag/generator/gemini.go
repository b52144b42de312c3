package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"ragserver/internal/rag/interfaces"
	"ragserver/internal/rag/schema"
)

// Gemini streams completions from the Google GenAI API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a generator for the named Gemini model.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model, timeout: timeout}, nil
}

func (g *Gemini) Stream(ctx context.Context, prompt string, temperature float32) (<-chan schema.Event, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(temperature)

	streamCtx, cancel := streamContext(ctx, g.timeout)
	iter := model.GenerateContentStream(streamCtx, genai.Text(prompt))

	ch := make(chan schema.Event)
	go func() {
		defer close(ch)
		defer cancel()
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				emitTerminal(ctx, streamCtx, ch, err)
				return
			}
			delta := geminiText(resp)
			if delta == "" {
				continue
			}
			if !emit(streamCtx, ch, schema.Event{Delta: delta}) {
				return
			}
		}
	}()
	return ch, nil
}

// geminiText concatenates the text parts of one streamed response.
func geminiText(resp *genai.GenerateContentResponse) string {
	var out string
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out += string(text)
			}
		}
	}
	return out
}

// Close releases the underlying API client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

var _ interfaces.Generator = (*Gemini)(nil)
