package api

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ragserver/internal/rag/interfaces"
	"ragserver/internal/rag/pipeline"
	"ragserver/internal/rag/schema"
	"ragserver/pkg/circuitbreaker"
	"ragserver/pkg/logger"
)

// Handler exposes the ingestion and query pipelines over HTTP.
type Handler struct {
	ingestor *pipeline.Ingestor
	queries  *pipeline.QueryService
	index    interfaces.VectorIndex
	maxBytes int64
	log      *logger.Logger
}

// NewHandler creates the API handler. maxBytes bounds upload request bodies.
func NewHandler(ingestor *pipeline.Ingestor, queries *pipeline.QueryService, index interfaces.VectorIndex, maxBytes int64, log *logger.Logger) *Handler {
	return &Handler{
		ingestor: ingestor,
		queries:  queries,
		index:    index,
		maxBytes: maxBytes,
		log:      log,
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// uploadDocument ingests one multipart file upload into the knowledge base.
func (h *Handler) uploadDocument(c *gin.Context) {
	if h.maxBytes > 0 {
		// Hard bound on the request body; multipart framing gets some slack.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.abortWithError(c, &schema.ValidationError{Reason: "multipart field \"file\" is required: " + err.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	mediaType := c.PostForm("media_type")
	if mediaType == "" {
		mediaType = header.Header.Get("Content-Type")
	}

	summary, err := h.ingestor.Ingest(c.Request.Context(), schema.Document{
		SourceName: header.Filename,
		MediaType:  mediaType,
		Data:       data,
		Size:       header.Size,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"document_id": summary.DocumentID,
		"source":      summary.SourceName,
		"chunks":      summary.Chunks,
		"duration_ms": summary.Duration.Milliseconds(),
	})
}

// uploadDocumentBatch ingests every file of a multipart batch, reporting
// each outcome separately so one bad file does not fail the rest.
func (h *Handler) uploadDocumentBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.abortWithError(c, &schema.ValidationError{Reason: "invalid multipart form: " + err.Error()})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		h.abortWithError(c, &schema.ValidationError{Reason: "multipart field \"files\" is required"})
		return
	}

	results := make([]gin.H, 0, len(files))
	succeeded := 0
	for _, header := range files {
		summary, err := h.ingestUpload(c.Request.Context(), header)
		if err != nil {
			if h.log != nil {
				h.log.WithError(err).WithField("source", header.Filename).Warn("batch file rejected")
			}
			results = append(results, gin.H{
				"source": header.Filename,
				"status": "failed",
				"error":  err.Error(),
			})
			continue
		}
		succeeded++
		results = append(results, gin.H{
			"source":      summary.SourceName,
			"status":      "ok",
			"document_id": summary.DocumentID,
			"chunks":      summary.Chunks,
		})
	}

	status := http.StatusCreated
	if succeeded < len(files) {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"succeeded": succeeded,
		"failed":    len(files) - succeeded,
		"results":   results,
	})
}

// ingestUpload runs one uploaded file through the ingestion pipeline.
func (h *Handler) ingestUpload(ctx context.Context, header *multipart.FileHeader) (schema.IngestionSummary, error) {
	file, err := header.Open()
	if err != nil {
		return schema.IngestionSummary{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return schema.IngestionSummary{}, err
	}
	return h.ingestor.Ingest(ctx, schema.Document{
		SourceName: header.Filename,
		MediaType:  header.Header.Get("Content-Type"),
		Data:       data,
		Size:       header.Size,
	})
}

// clearDocuments wipes the knowledge base.
func (h *Handler) clearDocuments(c *gin.Context) {
	if err := h.index.DeleteAll(c.Request.Context()); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// stats reports the state of the knowledge base.
func (h *Handler) stats(c *gin.Context) {
	stats, err := h.index.Stats(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chunks":     stats.Chunks,
		"dimension":  stats.Dimension,
		"collection": stats.Collection,
	})
}

type chatRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
	Stream   *bool  `json:"stream"` // defaults to true
}

type sourceRef struct {
	ChunkID string  `json:"chunk_id"`
	Source  string  `json:"source"`
	Score   float32 `json:"score"`
}

// chat answers a question against the knowledge base, either as a
// server-sent event stream (the default) or a single JSON response.
func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, &schema.ValidationError{Reason: "invalid request body: " + err.Error()})
		return
	}

	stream, results, err := h.queries.Answer(c.Request.Context(), schema.Query{
		Text: req.Question,
		TopK: req.TopK,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	sources := make([]sourceRef, 0, len(results))
	for _, res := range results {
		sources = append(sources, sourceRef{
			ChunkID: res.ChunkID,
			Source:  res.Metadata[schema.MetadataKeySource],
			Score:   res.Score,
		})
	}

	if req.Stream != nil && !*req.Stream {
		h.respondBuffered(c, stream, sources)
		return
	}
	h.respondSSE(c, stream, sources)
}

// respondBuffered drains the stream and answers with one JSON document.
func (h *Handler) respondBuffered(c *gin.Context, stream <-chan schema.Event, sources []sourceRef) {
	var answer strings.Builder
	for ev := range stream {
		if ev.Err != nil {
			h.abortWithError(c, ev.Err)
			return
		}
		answer.WriteString(ev.Delta)
	}
	c.JSON(http.StatusOK, gin.H{
		"answer":  answer.String(),
		"sources": sources,
	})
}

// respondSSE relays the stream as server-sent events: a sources event, then
// delta events, then either a done or an error event.
func (h *Handler) respondSSE(c *gin.Context, stream <-chan schema.Event, sources []sourceRef) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.SSEvent("sources", sources)
	c.Writer.Flush()

	for ev := range stream {
		if ev.Err != nil {
			c.SSEvent("error", gin.H{"error": ev.Err.Error()})
			c.Writer.Flush()
			return
		}
		c.SSEvent("delta", ev.Delta)
		c.Writer.Flush()
	}
	c.SSEvent("done", "")
	c.Writer.Flush()
}

// abortWithError maps a pipeline error to an HTTP status and JSON body.
func (h *Handler) abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if h.log != nil && status >= 500 {
		h.log.WithError(err).Error("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var (
		valErr     *schema.ValidationError
		timeoutErr *schema.TimeoutError
		embErr     *schema.EmbeddingError
		storeErr   *schema.VectorStoreError
		genErr     *schema.GenerationError
		extErr     *schema.ExtractionError
		tooBig     *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &valErr), errors.Is(err, schema.ErrPromptTooLong):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &extErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, circuitbreaker.ErrOpen):
		return http.StatusServiceUnavailable
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout
	case errors.As(err, &embErr), errors.As(err, &storeErr), errors.As(err, &genErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
