package vectorindex

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"ragserver/internal/rag/interfaces"
	"ragserver/internal/rag/schema"
	"ragserver/pkg/logger"
)

// Collection schema fields.
const (
	fieldID         = "id"
	fieldDocumentID = "document_id"
	fieldSeq        = "seq"
	fieldSource     = "source"
	fieldText       = "text"
	fieldEmbedding  = "embedding"
)

const (
	maxIDLength     = 64
	maxDocIDLength  = 256
	maxSourceLength = 512
	maxTextLength   = 65535

	hnswM              = 16
	hnswEfConstruction = 200
	hnswEfSearch       = 64
)

// Milvus is a VectorIndex backed by a Milvus collection with an HNSW index
// over cosine similarity. Chunk ids are the primary key, so Upsert replaces
// rows in place.
type Milvus struct {
	client     client.Client
	collection string
	dimension  int
	log        *logger.Logger
}

// NewMilvus connects to a Milvus deployment and ensures the collection
// exists with the expected schema, index and load state.
func NewMilvus(ctx context.Context, address, collection string, dimension int, log *logger.Logger) (*Milvus, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}

	c, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("connect to milvus at %s: %w", address, err)
	}

	m := &Milvus{client: c, collection: collection, dimension: dimension, log: log}
	if err := m.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return m, nil
}

// Close releases the Milvus connection.
func (m *Milvus) Close() error {
	return m.client.Close()
}

// ensureCollection creates, indexes and loads the collection if needed.
func (m *Milvus) ensureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collection)
	if err != nil {
		return &schema.VectorStoreError{Op: "ensure_collection", Err: err}
	}

	if !has {
		collSchema := entity.NewSchema().
			WithName(m.collection).
			WithDescription("document chunks with embeddings").
			WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxIDLength).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(fieldDocumentID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxDocIDLength)).
			WithField(entity.NewField().WithName(fieldSeq).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldSource).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxSourceLength)).
			WithField(entity.NewField().WithName(fieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxTextLength)).
			WithField(entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(m.dimension)))

		if err := m.client.CreateCollection(ctx, collSchema, entity.DefaultShardNumber); err != nil {
			return &schema.VectorStoreError{Op: "create_collection", Err: err}
		}

		index, err := entity.NewIndexHNSW(entity.COSINE, hnswM, hnswEfConstruction)
		if err != nil {
			return &schema.VectorStoreError{Op: "create_index", Err: err}
		}
		if err := m.client.CreateIndex(ctx, m.collection, fieldEmbedding, index, false); err != nil {
			return &schema.VectorStoreError{Op: "create_index", Err: err}
		}
		if m.log != nil {
			m.log.WithField("collection", m.collection).Info("created milvus collection")
		}
	}

	if err := m.client.LoadCollection(ctx, m.collection, false); err != nil {
		return &schema.VectorStoreError{Op: "load_collection", Err: err}
	}
	return nil
}

func (m *Milvus) Upsert(ctx context.Context, chunks []schema.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	documentIDs := make([]string, len(chunks))
	seqs := make([]int64, len(chunks))
	sources := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	for i, ch := range chunks {
		if len(ch.Embedding) != m.dimension {
			return &schema.VectorStoreError{
				Op:  "upsert",
				Err: fmt.Errorf("chunk %s has dimension %d, collection uses %d", ch.ID, len(ch.Embedding), m.dimension),
			}
		}
		ids[i] = ch.ID
		documentIDs[i] = ch.DocumentID
		seqs[i] = int64(ch.Seq)
		sources[i] = ch.Metadata[schema.MetadataKeySource]
		texts[i] = ch.Text
		embeddings[i] = ch.Embedding
	}

	_, err := m.client.Upsert(ctx, m.collection, "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldDocumentID, documentIDs),
		entity.NewColumnInt64(fieldSeq, seqs),
		entity.NewColumnVarChar(fieldSource, sources),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnFloatVector(fieldEmbedding, m.dimension, embeddings),
	)
	if err != nil {
		return &schema.VectorStoreError{Op: "upsert", Err: err}
	}

	if err := m.client.Flush(ctx, m.collection, false); err != nil {
		return &schema.VectorStoreError{Op: "flush", Err: err}
	}
	return nil
}

func (m *Milvus) Search(ctx context.Context, vector []float32, k int) ([]schema.RetrievalResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) != m.dimension {
		return nil, &schema.VectorStoreError{
			Op:  "search",
			Err: fmt.Errorf("query vector has dimension %d, collection uses %d", len(vector), m.dimension),
		}
	}

	searchParams, err := entity.NewIndexHNSWSearchParam(hnswEfSearch)
	if err != nil {
		return nil, &schema.VectorStoreError{Op: "search", Err: err}
	}

	searchResults, err := m.client.Search(
		ctx, m.collection, nil, "",
		[]string{fieldID, fieldDocumentID, fieldSeq, fieldSource, fieldText},
		[]entity.Vector{entity.FloatVector(vector)},
		fieldEmbedding, entity.COSINE, k, searchParams,
	)
	if err != nil {
		return nil, &schema.VectorStoreError{Op: "search", Err: err}
	}

	var results []schema.RetrievalResult
	for _, res := range searchResults {
		idCol, _ := findColumn(res.Fields, fieldID).(*entity.ColumnVarChar)
		if idCol == nil {
			continue
		}
		docIDCol, _ := findColumn(res.Fields, fieldDocumentID).(*entity.ColumnVarChar)
		seqCol, _ := findColumn(res.Fields, fieldSeq).(*entity.ColumnInt64)
		sourceCol, _ := findColumn(res.Fields, fieldSource).(*entity.ColumnVarChar)
		textCol, _ := findColumn(res.Fields, fieldText).(*entity.ColumnVarChar)

		for i := 0; i < res.ResultCount; i++ {
			result := schema.RetrievalResult{
				ChunkID:  idCol.Data()[i],
				Score:    res.Scores[i],
				Metadata: make(map[string]string),
			}
			if textCol != nil {
				result.Text = textCol.Data()[i]
			}
			if docIDCol != nil {
				result.Metadata[schema.MetadataKeyDocumentID] = docIDCol.Data()[i]
			}
			if sourceCol != nil {
				result.Metadata[schema.MetadataKeySource] = sourceCol.Data()[i]
			}
			if seqCol != nil {
				result.Metadata[schema.MetadataKeySeq] = strconv.FormatInt(seqCol.Data()[i], 10)
			}
			results = append(results, result)
		}
	}
	return results, nil
}

// DeleteAll drops and recreates the collection. Dropping is the one bulk
// wipe Milvus performs atomically; deleting by expression leaves tombstones.
func (m *Milvus) DeleteAll(ctx context.Context) error {
	if err := m.client.DropCollection(ctx, m.collection); err != nil {
		return &schema.VectorStoreError{Op: "delete_all", Err: err}
	}
	return m.ensureCollection(ctx)
}

func (m *Milvus) Stats(ctx context.Context) (schema.IndexStats, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, m.collection)
	if err != nil {
		return schema.IndexStats{}, &schema.VectorStoreError{Op: "stats", Err: err}
	}

	var rows int64
	if raw, ok := stats["row_count"]; ok {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			rows = parsed
		}
	}
	return schema.IndexStats{
		Chunks:     rows,
		Dimension:  m.dimension,
		Collection: m.collection,
	}, nil
}

func findColumn(fields []entity.Column, name string) entity.Column {
	for _, field := range fields {
		if field.Name() == name {
			return field
		}
	}
	return nil
}

var _ interfaces.VectorIndex = (*Milvus)(nil)
