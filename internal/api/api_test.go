package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"ragserver/internal/rag/chunker"
	"ragserver/internal/rag/extractor"
	"ragserver/internal/rag/pipeline"
	"ragserver/internal/rag/schema"
	"ragserver/internal/rag/vectorindex"
	"ragserver/pkg/ratelimiter"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string, _ schema.EmbedMode) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 4)
		for j, r := range text {
			v[j%4] += float32(r%13) + 1
		}
		out[i] = v
	}
	return out, nil
}

type fakeGenerator struct {
	deltas []string
}

func (g *fakeGenerator) Stream(ctx context.Context, _ string, _ float32) (<-chan schema.Event, error) {
	ch := make(chan schema.Event)
	go func() {
		defer close(ch)
		for _, delta := range g.deltas {
			select {
			case ch <- schema.Event{Delta: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func newTestRouter(t *testing.T, maxBytes int64, limiter ratelimiter.RateLimiter) *gin.Engine {
	t.Helper()
	c, err := chunker.NewRecursiveChunker(40, 8)
	if err != nil {
		t.Fatalf("NewRecursiveChunker() error = %v", err)
	}

	index := vectorindex.NewMemory()
	ingestor := pipeline.NewIngestor(extractor.NewRegistry(), c, fakeEmbedder{}, index, maxBytes, nil)
	queries := pipeline.NewQueryService(fakeEmbedder{}, index, pipeline.NewPromptBuilder(0),
		&fakeGenerator{deltas: []string{"answer ", "text"}}, 5, 0.1, nil)

	handler := NewHandler(ingestor, queries, index, maxBytes, nil)
	return NewRouter(handler, limiter, nil)
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

const uploadText = "The scheduler assigns pods to nodes. It scores candidate nodes and picks the best fit."

func TestUploadAndStats(t *testing.T) {
	router := newTestRouter(t, 1<<20, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "scheduler.txt", uploadText))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created struct {
		DocumentID string `json:"document_id"`
		Chunks     int    `json:"chunks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if created.DocumentID == "" || created.Chunks == 0 {
		t.Errorf("upload response incomplete: %+v", created)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats struct {
		Chunks int64 `json:"chunks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Chunks != int64(created.Chunks) {
		t.Errorf("stats.chunks = %d, upload reported %d", stats.Chunks, created.Chunks)
	}
}

func batchUploadRequest(t *testing.T, files [][2]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, file := range files {
		fw, err := w.CreateFormFile("files", file[0])
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write([]byte(file[1])); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/batch", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadBatch_ReportsPerFileOutcomes(t *testing.T) {
	router := newTestRouter(t, 64, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, batchUploadRequest(t, [][2]string{
		{"good.txt", "short note that fits the cap"},
		{"big.txt", strings.Repeat("x", 200)},
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("batch status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
		Results   []struct {
			Source     string `json:"source"`
			Status     string `json:"status"`
			DocumentID string `json:"document_id"`
			Chunks     int    `json:"chunks"`
			Error      string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode batch response: %v", err)
	}
	if resp.Succeeded != 1 || resp.Failed != 1 || len(resp.Results) != 2 {
		t.Fatalf("batch summary = %+v", resp)
	}
	for _, res := range resp.Results {
		switch res.Source {
		case "good.txt":
			if res.Status != "ok" || res.DocumentID == "" || res.Chunks == 0 {
				t.Errorf("good file result incomplete: %+v", res)
			}
		case "big.txt":
			if res.Status != "failed" || res.Error == "" {
				t.Errorf("oversized file not rejected: %+v", res)
			}
		default:
			t.Errorf("unexpected source %q", res.Source)
		}
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	var stats struct {
		Chunks int64 `json:"chunks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Chunks == 0 {
		t.Error("accepted file left no chunks in the index")
	}
}

func TestUploadBatch_AllSucceed(t *testing.T) {
	router := newTestRouter(t, 1<<20, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, batchUploadRequest(t, [][2]string{
		{"one.txt", "first document body"},
		{"two.txt", "second document body"},
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("batch status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestUploadBatch_NoFiles(t *testing.T) {
	router := newTestRouter(t, 1<<20, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, batchUploadRequest(t, nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpload_MissingFile(t *testing.T) {
	router := newTestRouter(t, 1<<20, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpload_Oversized(t *testing.T) {
	router := newTestRouter(t, 16, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "big.txt", strings.Repeat("x", 200)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChat_Buffered(t *testing.T) {
	router := newTestRouter(t, 1<<20, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "scheduler.txt", uploadText))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d", rec.Code)
	}

	body := `{"question": "How are pods scheduled?", "stream": false}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Answer  string `json:"answer"`
		Sources []struct {
			ChunkID string `json:"chunk_id"`
			Source  string `json:"source"`
		} `json:"sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	if resp.Answer != "answer text" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) == 0 {
		t.Fatal("no sources in response")
	}
	if resp.Sources[0].Source != "scheduler.txt" {
		t.Errorf("source = %q, want scheduler.txt", resp.Sources[0].Source)
	}
}

func TestChat_SSE(t *testing.T) {
	router := newTestRouter(t, 1<<20, nil)

	body := `{"question": "anything?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("content type = %q", ct)
	}

	events := rec.Body.String()
	for _, want := range []string{"event:sources", "event:delta", "event:done"} {
		if !strings.Contains(events, want) {
			t.Errorf("response is missing %q:\n%s", want, events)
		}
	}
}

func TestChat_EmptyQuestion(t *testing.T) {
	router := newTestRouter(t, 1<<20, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"question": ""}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestClearDocuments(t *testing.T) {
	router := newTestRouter(t, 1<<20, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "scheduler.txt", uploadText))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/documents", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	var stats struct {
		Chunks int64 `json:"chunks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Chunks != 0 {
		t.Errorf("stats.chunks = %d after clear, want 0", stats.Chunks)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimiter.NewTokenBucket(0.001, 1)
	router := newTestRouter(t, 1<<20, limiter)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}
}
