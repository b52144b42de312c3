package schema

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline.
var (
	// ErrUnsupportedFormat is returned when no extractor is registered for a
	// document's media type.
	ErrUnsupportedFormat = errors.New("unsupported media type")

	// ErrPromptTooLong is returned when the assembled prompt exceeds the
	// configured character limit.
	ErrPromptTooLong = errors.New("assembled prompt exceeds configured limit")
)

// Stage identifies the ingestion pipeline stage that failed.
type Stage string

const (
	StageValidate Stage = "validate"
	StageExtract  Stage = "extract"
	StageChunk    Stage = "chunk"
	StageEmbed    Stage = "embed"
	StageStore    Stage = "store"
)

// ValidationError reports input rejected before processing begins, such as an
// oversized upload or a missing source name.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// ExtractionError reports malformed content that could not be converted to
// plain text. Extraction is deterministic, so it is never retried.
type ExtractionError struct {
	MediaType string
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.MediaType, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingError reports a failed embedding call. Retryable indicates whether
// the underlying cause was transient; once the retry ceiling is exhausted the
// error surfaces with Retryable=false and the whole batch counts as failed.
type EmbeddingError struct {
	Retryable bool
	Err       error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed (retryable=%t): %v", e.Retryable, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// VectorStoreError reports a failed vector index operation, including
// embedding dimension mismatches detected at the storage boundary.
type VectorStoreError struct {
	Op  string
	Err error
}

func (e *VectorStoreError) Error() string {
	return fmt.Sprintf("vector store %s failed: %v", e.Op, e.Err)
}

func (e *VectorStoreError) Unwrap() error { return e.Err }

// GenerationError reports a failed generation call or a provider failure
// mid-stream. Streams are never retried; the caller may retry the query.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// TimeoutError reports a provider call that exceeded its configured per-call
// timeout. It is distinct from EmbeddingError and GenerationError so callers
// can tell expiry from provider rejection; embedding timeouts are retried
// under the backoff policy, generation timeouts terminate the stream.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// IngestionError wraps a failure from any ingestion stage. The knowledge base
// is left unchanged: chunks are only stored after the whole document embeds.
type IngestionError struct {
	Stage Stage
	Err   error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed at stage %s: %v", e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }
