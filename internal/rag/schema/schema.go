package schema

import "time"

// Metadata keys attached to chunks during ingestion.
const (
	// MetadataKeySource is the key for the originating document's source name.
	MetadataKeySource = "source"
	// MetadataKeyDocumentID is the key for the originating document's id.
	MetadataKeyDocumentID = "document_id"
	// MetadataKeySeq is the key for the chunk's position within its document.
	MetadataKeySeq = "seq"
)

// EmbedMode selects how texts are embedded. Passages and queries are embedded
// asymmetrically so they cross-match well; providers without a task hint treat
// both modes the same.
type EmbedMode string

const (
	// EmbedDocument embeds passages for indexing.
	EmbedDocument EmbedMode = "document"
	// EmbedQuery embeds a search query.
	EmbedQuery EmbedMode = "query"
)

// Document is an uploaded source document. It exists only for the duration of
// ingestion; once its chunks are stored the raw bytes are discarded.
type Document struct {
	// ID is the unique identifier for the document. When empty it is derived
	// deterministically from SourceName so re-uploads hit the same chunks.
	ID string

	// SourceName is the caller-supplied name, typically a file name.
	SourceName string

	// MediaType is the declared media type of Data (e.g. "application/pdf",
	// "text/plain"). May be empty, in which case the content is sniffed.
	MediaType string

	// Data holds the raw document bytes.
	Data []byte

	// Size is the declared size in bytes, used for validation before the
	// bytes are processed.
	Size int64
}

// Chunk is a bounded, overlap-aware segment of a document's extracted text.
// Its ID is a pure function of DocumentID and Seq, so re-ingesting unchanged
// content produces identical ids.
type Chunk struct {
	ID         string
	DocumentID string

	// Seq is the zero-based position of the chunk within its document.
	Seq int

	// Text is the chunk content, a substring of the extracted document text.
	Text string

	// Start and End are rune offsets of Text within the extracted document
	// text. Consecutive chunks overlap by the configured overlap length.
	Start int
	End   int

	// Embedding is the vector representation of Text. All embeddings within
	// a collection share one dimension.
	Embedding []float32

	Metadata map[string]string
}

// Query is a single retrieval request. Ephemeral, constructed per request.
type Query struct {
	Text string
	TopK int
}

// RetrievalResult is one chunk returned by a vector search, scored by cosine
// similarity in [-1, 1]. Results are ordered descending by score.
type RetrievalResult struct {
	ChunkID  string
	Text     string
	Metadata map[string]string
	Score    float32
}

// IndexStats describes the state of a chunk collection.
type IndexStats struct {
	Chunks     int64
	Dimension  int
	Collection string
}

// IngestionSummary reports the outcome of a successful ingestion.
type IngestionSummary struct {
	DocumentID string
	SourceName string
	Chunks     int
	Duration   time.Duration
}

// Event is one element of a generated answer stream. A non-nil Err is
// terminal: no further events follow and the channel is closed. A channel
// that closes without an error event completed normally.
type Event struct {
	Delta string
	Err   error
}
