package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"ragserver/internal/rag/interfaces"
	"ragserver/internal/rag/schema"
)

// Memory is an in-process VectorIndex backed by a brute-force cosine scan.
// It backs tests and single-node deployments that do not run Milvus. Safe
// for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	byID      map[string]int // chunk id -> position in entries
	entries   []memoryEntry
	nextOrder int
	dimension int
}

type memoryEntry struct {
	chunk schema.Chunk
	order int // insertion order, kept across replacement
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{byID: make(map[string]int)}
}

func (m *Memory) Upsert(ctx context.Context, chunks []schema.Chunk) error {
	if err := ctx.Err(); err != nil {
		return &schema.VectorStoreError{Op: "upsert", Err: err}
	}
	if len(chunks) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate the whole batch before touching state, so a bad chunk cannot
	// leave a partial write behind.
	dimension := m.dimension
	for _, ch := range chunks {
		if ch.ID == "" {
			return &schema.VectorStoreError{Op: "upsert", Err: fmt.Errorf("chunk with empty id")}
		}
		if len(ch.Embedding) == 0 {
			return &schema.VectorStoreError{Op: "upsert", Err: fmt.Errorf("chunk %s has no embedding", ch.ID)}
		}
		if dimension == 0 {
			dimension = len(ch.Embedding)
		}
		if len(ch.Embedding) != dimension {
			return &schema.VectorStoreError{
				Op:  "upsert",
				Err: fmt.Errorf("chunk %s has dimension %d, collection uses %d", ch.ID, len(ch.Embedding), dimension),
			}
		}
	}
	m.dimension = dimension

	for _, ch := range chunks {
		stored := copyChunk(ch)
		if i, ok := m.byID[ch.ID]; ok {
			// Replacement keeps the original insertion order so search
			// tie-breaking stays stable across re-ingestion.
			stored.order = m.entries[i].order
			m.entries[i] = stored
			continue
		}
		stored.order = m.nextOrder
		m.nextOrder++
		m.byID[ch.ID] = len(m.entries)
		m.entries = append(m.entries, stored)
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, vector []float32, k int) ([]schema.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &schema.VectorStoreError{Op: "search", Err: err}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 || k <= 0 {
		return nil, nil
	}
	if len(vector) != m.dimension {
		return nil, &schema.VectorStoreError{
			Op:  "search",
			Err: fmt.Errorf("query vector has dimension %d, collection uses %d", len(vector), m.dimension),
		}
	}

	type scored struct {
		entry memoryEntry
		score float32
	}
	candidates := make([]scored, 0, len(m.entries))
	for _, e := range m.entries {
		candidates = append(candidates, scored{entry: e, score: cosine(vector, e.chunk.Embedding)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].entry.order < candidates[j].entry.order
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	results := make([]schema.RetrievalResult, 0, k)
	for _, c := range candidates[:k] {
		results = append(results, schema.RetrievalResult{
			ChunkID:  c.entry.chunk.ID,
			Text:     c.entry.chunk.Text,
			Metadata: copyMetadata(c.entry.chunk.Metadata),
			Score:    c.score,
		})
	}
	return results, nil
}

func (m *Memory) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &schema.VectorStoreError{Op: "delete_all", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID = make(map[string]int)
	m.entries = nil
	m.nextOrder = 0
	m.dimension = 0 // the next upsert may use a new dimension
	return nil
}

func (m *Memory) Stats(ctx context.Context) (schema.IndexStats, error) {
	if err := ctx.Err(); err != nil {
		return schema.IndexStats{}, &schema.VectorStoreError{Op: "stats", Err: err}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return schema.IndexStats{
		Chunks:     int64(len(m.entries)),
		Dimension:  m.dimension,
		Collection: "memory",
	}, nil
}

// cosine computes cosine similarity; zero vectors score 0.
func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func copyChunk(ch schema.Chunk) memoryEntry {
	embedding := make([]float32, len(ch.Embedding))
	copy(embedding, ch.Embedding)
	ch.Embedding = embedding
	ch.Metadata = copyMetadata(ch.Metadata)
	return memoryEntry{chunk: ch}
}

func copyMetadata(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

var _ interfaces.VectorIndex = (*Memory)(nil)
