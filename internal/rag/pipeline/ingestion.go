package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ragserver/internal/rag/extractor"
	"ragserver/internal/rag/interfaces"
	"ragserver/internal/rag/schema"
	"ragserver/pkg/logger"
)

// Ingestor runs the document ingestion pipeline: validate, extract, chunk,
// embed, store. Chunks reach the index only after the whole document has
// embedded, so a failure at any stage leaves the knowledge base unchanged.
type Ingestor struct {
	registry *extractor.Registry
	chunker  interfaces.Chunker
	embedder interfaces.Embedder
	index    interfaces.VectorIndex
	maxBytes int64
	log      *logger.Logger
}

// NewIngestor wires the ingestion stages together. maxBytes bounds document
// size; zero or negative disables the bound.
func NewIngestor(registry *extractor.Registry, chunker interfaces.Chunker, embedder interfaces.Embedder, index interfaces.VectorIndex, maxBytes int64, log *logger.Logger) *Ingestor {
	return &Ingestor{
		registry: registry,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		maxBytes: maxBytes,
		log:      log,
	}
}

// Ingest processes one document end to end. Re-ingesting the same document
// is idempotent: chunk ids derive from the document id and position, so
// unchanged content is replaced in place rather than duplicated. A document
// whose text yields no chunks succeeds as a no-op.
func (p *Ingestor) Ingest(ctx context.Context, doc schema.Document) (schema.IngestionSummary, error) {
	started := time.Now()

	if err := p.validate(doc); err != nil {
		return schema.IngestionSummary{}, &schema.IngestionError{Stage: schema.StageValidate, Err: err}
	}
	if doc.ID == "" {
		// Derived from the source name, so re-uploads hit the same chunks.
		doc.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(doc.SourceName)).String()
	}

	ext, mediaType, err := p.registry.Resolve(doc.MediaType, doc.Data)
	if err != nil {
		return schema.IngestionSummary{}, &schema.IngestionError{Stage: schema.StageExtract, Err: err}
	}
	text, err := ext.Extract(ctx, doc.Data)
	if err != nil {
		return schema.IngestionSummary{}, &schema.IngestionError{Stage: schema.StageExtract, Err: err}
	}

	chunks := p.chunker.Split(doc.ID, text)
	if len(chunks) == 0 {
		if p.log != nil {
			p.log.WithField("source", doc.SourceName).Info("document produced no chunks, nothing to ingest")
		}
		return schema.IngestionSummary{
			DocumentID: doc.ID,
			SourceName: doc.SourceName,
			Duration:   time.Since(started),
		}, nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
		chunks[i].Metadata = map[string]string{
			schema.MetadataKeySource:     doc.SourceName,
			schema.MetadataKeyDocumentID: doc.ID,
			schema.MetadataKeySeq:        strconv.Itoa(chunks[i].Seq),
		}
	}

	vectors, err := p.embedder.Embed(ctx, texts, schema.EmbedDocument)
	if err != nil {
		return schema.IngestionSummary{}, &schema.IngestionError{Stage: schema.StageEmbed, Err: err}
	}
	if len(vectors) != len(chunks) {
		return schema.IngestionSummary{}, &schema.IngestionError{
			Stage: schema.StageEmbed,
			Err:   fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)),
		}
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	// One upsert for the whole document: either every chunk lands or none do.
	if err := p.index.Upsert(ctx, chunks); err != nil {
		return schema.IngestionSummary{}, &schema.IngestionError{Stage: schema.StageStore, Err: err}
	}

	summary := schema.IngestionSummary{
		DocumentID: doc.ID,
		SourceName: doc.SourceName,
		Chunks:     len(chunks),
		Duration:   time.Since(started),
	}
	if p.log != nil {
		p.log.WithFields(map[string]interface{}{
			"source":     doc.SourceName,
			"media_type": mediaType,
			"chunks":     summary.Chunks,
			"duration":   summary.Duration.String(),
		}).Info("document ingested")
	}
	return summary, nil
}

func (p *Ingestor) validate(doc schema.Document) error {
	if doc.SourceName == "" {
		return &schema.ValidationError{Reason: "source name is required"}
	}
	size := doc.Size
	if size == 0 {
		size = int64(len(doc.Data))
	}
	if p.maxBytes > 0 && size > p.maxBytes {
		return &schema.ValidationError{
			Reason: fmt.Sprintf("document is %d bytes, limit is %d", size, p.maxBytes),
		}
	}
	return nil
}
