package embedder

import (
	"context"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"ragserver/internal/rag/schema"
)

// OpenAIProvider embeds text through an OpenAI-compatible embeddings API.
// The API has no asymmetric task hint, so both embed modes share one
// representation.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider for the named embedding model.
// baseURL overrides the API endpoint when non-empty, which is how
// OpenAI-compatible local servers are reached.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string, _ schema.EmbedMode) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

var _ Provider = (*OpenAIProvider)(nil)
