package interfaces

import (
	"context"

	"ragserver/internal/rag/schema"
)

// Extractor converts raw document bytes of one media type into plain UTF-8
// text. Extraction is deterministic: the same bytes always produce the same
// text or the same error.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Chunker splits extracted text into overlapping chunks under a size policy.
// Identical text and configuration always yield an identical chunk sequence.
type Chunker interface {
	Split(documentID, text string) []schema.Chunk
}

// Embedder converts an ordered sequence of texts into vectors of a fixed
// dimension, one per text, order preserved. Implementations batch provider
// calls and retry transient failures internally.
type Embedder interface {
	Embed(ctx context.Context, texts []string, mode schema.EmbedMode) ([][]float32, error)
}

// VectorIndex persists chunk text, vector and metadata, and answers
// nearest-neighbor queries. It is the only state shared between concurrent
// requests and must be safe for concurrent use.
type VectorIndex interface {
	// Upsert stores chunks idempotently by id. Re-inserting an id replaces
	// its text, vector and metadata together.
	Upsert(ctx context.Context, chunks []schema.Chunk) error

	// Search returns at most k results sorted descending by similarity,
	// ties broken by earliest insertion, never containing duplicate ids.
	Search(ctx context.Context, vector []float32, k int) ([]schema.RetrievalResult, error)

	// DeleteAll removes every chunk from the collection.
	DeleteAll(ctx context.Context) error

	// Stats reports chunk count and collection metadata.
	Stats(ctx context.Context) (schema.IndexStats, error)
}

// Generator streams text deltas from a language model given an assembled
// prompt. The returned channel is a lazy, finite, non-restartable sequence;
// cancelling ctx stops token production and releases the provider connection.
type Generator interface {
	Stream(ctx context.Context, prompt string, temperature float32) (<-chan schema.Event, error)
}
