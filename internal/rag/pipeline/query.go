package pipeline

import (
	"context"

	"ragserver/internal/rag/interfaces"
	"ragserver/internal/rag/schema"
	"ragserver/pkg/logger"
)

// QueryService answers questions against the knowledge base: embed the
// query, retrieve the nearest chunks, assemble the prompt and stream the
// generated answer.
type QueryService struct {
	embedder    interfaces.Embedder
	index       interfaces.VectorIndex
	prompts     *PromptBuilder
	generator   interfaces.Generator
	defaultTopK int
	temperature float32
	log         *logger.Logger
}

// NewQueryService wires the query pipeline together. defaultTopK applies
// when a query does not set its own.
func NewQueryService(embedder interfaces.Embedder, index interfaces.VectorIndex, prompts *PromptBuilder, generator interfaces.Generator, defaultTopK int, temperature float32, log *logger.Logger) *QueryService {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &QueryService{
		embedder:    embedder,
		index:       index,
		prompts:     prompts,
		generator:   generator,
		defaultTopK: defaultTopK,
		temperature: temperature,
		log:         log,
	}
}

// Answer runs the query pipeline. It returns the answer stream together with
// the retrieved chunks the prompt was grounded on, so callers can attach
// provenance to the response. An empty knowledge base is not an error: the
// prompt says so and the model answers accordingly. Cancelling ctx stops the
// stream.
func (s *QueryService) Answer(ctx context.Context, q schema.Query) (<-chan schema.Event, []schema.RetrievalResult, error) {
	if q.Text == "" {
		return nil, nil, &schema.ValidationError{Reason: "query text is required"}
	}
	topK := q.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}

	vectors, err := s.embedder.Embed(ctx, []string{q.Text}, schema.EmbedQuery)
	if err != nil {
		return nil, nil, err
	}

	results, err := s.index.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, nil, err
	}

	prompt, err := s.prompts.Build(q.Text, results)
	if err != nil {
		return nil, nil, err
	}

	stream, err := s.generator.Stream(ctx, prompt, s.temperature)
	if err != nil {
		return nil, nil, err
	}

	if s.log != nil {
		s.log.WithFields(map[string]interface{}{
			"top_k":   topK,
			"results": len(results),
		}).Debug("query pipeline started streaming")
	}
	return stream, results, nil
}
