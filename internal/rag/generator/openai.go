package generator

import (
	"context"
	"errors"
	"io"
	"time"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"ragserver/internal/rag/interfaces"
	"ragserver/internal/rag/schema"
)

// OpenAI streams completions from an OpenAI-compatible chat API.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAI creates a generator for the named model. baseURL overrides the
// API endpoint when non-empty.
func NewOpenAI(apiKey, baseURL, model string, timeout time.Duration) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		timeout: timeout,
	}
}

func (o *OpenAI) Stream(ctx context.Context, prompt string, temperature float32) (<-chan schema.Event, error) {
	streamCtx, cancel := streamContext(ctx, o.timeout)

	stream, err := o.client.CreateChatCompletionStream(streamCtx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: &temperature,
		Stream:      true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		cancel()
		return nil, &schema.GenerationError{Err: err}
	}

	ch := make(chan schema.Event)
	go func() {
		defer close(ch)
		defer cancel()
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				emitTerminal(ctx, streamCtx, ch, err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
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

var _ interfaces.Generator = (*OpenAI)(nil)
