package embedder

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"ragserver/internal/rag/schema"
)

// GeminiProvider embeds text through the Google GenAI embedding API. It maps
// the embed mode to the API's retrieval task types, so passages and queries
// get asymmetric representations.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a provider for the named embedding model.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) EmbedBatch(ctx context.Context, texts []string, mode schema.EmbedMode) ([][]float32, error) {
	em := p.client.EmbeddingModel(p.model)
	if mode == schema.EmbedQuery {
		em.TaskType = genai.TaskTypeRetrievalQuery
	} else {
		em.TaskType = genai.TaskTypeRetrievalDocument
	}

	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}

	embeddings := make([][]float32, 0, len(res.Embeddings))
	for _, emb := range res.Embeddings {
		embeddings = append(embeddings, emb.Values)
	}
	return embeddings, nil
}

// Close releases the underlying API client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

var _ Provider = (*GeminiProvider)(nil)
