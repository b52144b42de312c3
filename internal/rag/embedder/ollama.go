package embedder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	ollama "github.com/ollama/ollama/api"

	"ragserver/internal/rag/schema"
)

// OllamaProvider embeds text through a local Ollama server. Ollama has no
// asymmetric task hint, so both embed modes share one representation.
type OllamaProvider struct {
	client *ollama.Client
	model  string
}

// NewOllamaProvider creates a provider for the named model. baseURL defaults
// to the local Ollama address when empty.
func NewOllamaProvider(model, baseURL string) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	hc := &http.Client{Timeout: 120 * time.Second}
	return &OllamaProvider{
		client: ollama.NewClient(parsed, hc),
		model:  model,
	}, nil
}

func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string, _ schema.EmbedMode) ([][]float32, error) {
	resp, err := p.client.Embed(ctx, &ollama.EmbedRequest{
		Model: p.model,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

var _ Provider = (*OllamaProvider)(nil)
