package embedder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	openai "github.com/meguminnnnnnnnn/go-openai"
	"google.golang.org/api/googleapi"

	"ragserver/internal/rag/schema"
	"ragserver/pkg/circuitbreaker"
)

// fakeProvider records calls and can fail the first N of them.
type fakeProvider struct {
	mu      sync.Mutex
	calls   [][]string
	fail    int
	failErr error
}

func (f *fakeProvider) EmbedBatch(_ context.Context, texts []string, _ schema.EmbedMode) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, texts)
	if f.fail > 0 {
		f.fail--
		return nil, f.failErr
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), float32(i), 1}
	}
	return out, nil
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestEmbed_BatchesInOrder(t *testing.T) {
	p := &fakeProvider{}
	e := New(p, Options{BatchSize: 2, Retry: fastRetry(1)})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := e.Embed(context.Background(), texts, schema.EmbedDocument)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vectors), len(texts))
	}
	for i, text := range texts {
		if vectors[i][0] != float32(len(text)) {
			t.Errorf("vector %d does not correspond to input %q", i, text)
		}
	}

	wantCalls := [][]string{{"a", "bb"}, {"ccc", "dddd"}, {"eeeee"}}
	if len(p.calls) != len(wantCalls) {
		t.Fatalf("provider called %d times, want %d", len(p.calls), len(wantCalls))
	}
	for i, call := range p.calls {
		if len(call) != len(wantCalls[i]) {
			t.Errorf("call %d had %d texts, want %d", i, len(call), len(wantCalls[i]))
		}
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	p := &fakeProvider{}
	e := New(p, Options{})

	vectors, err := e.Embed(context.Background(), nil, schema.EmbedDocument)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if vectors != nil {
		t.Errorf("got %d vectors for empty input", len(vectors))
	}
	if len(p.calls) != 0 {
		t.Errorf("provider called %d times for empty input", len(p.calls))
	}
}

func TestEmbed_RetriesTransientFailure(t *testing.T) {
	p := &fakeProvider{
		fail:    2,
		failErr: &schema.TimeoutError{Op: "embed", Err: context.DeadlineExceeded},
	}
	e := New(p, Options{Retry: fastRetry(3)})

	vectors, err := e.Embed(context.Background(), []string{"hello"}, schema.EmbedQuery)
	if err != nil {
		t.Fatalf("Embed() error = %v after transient failures", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("got %d vectors, want 1", len(vectors))
	}
	if len(p.calls) != 3 {
		t.Errorf("provider called %d times, want 3", len(p.calls))
	}

	// Retries are invisible to the caller: the result matches a first-try success.
	direct, err := New(&fakeProvider{}, Options{}).Embed(context.Background(), []string{"hello"}, schema.EmbedQuery)
	if err != nil {
		t.Fatalf("Embed() error = %v without failures", err)
	}
	if len(direct) != 1 || len(direct[0]) != len(vectors[0]) {
		t.Fatalf("vector shapes differ: %v vs %v", direct, vectors)
	}
	for i := range direct[0] {
		if direct[0][i] != vectors[0][i] {
			t.Errorf("vectors[0][%d] = %v, want %v", i, vectors[0][i], direct[0][i])
		}
	}
}

func TestEmbed_ExhaustedRetriesSurfaceEmbeddingError(t *testing.T) {
	p := &fakeProvider{
		fail:    5,
		failErr: &schema.TimeoutError{Op: "embed", Err: context.DeadlineExceeded},
	}
	e := New(p, Options{Retry: fastRetry(3)})

	_, err := e.Embed(context.Background(), []string{"hello"}, schema.EmbedDocument)
	var embErr *schema.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("Embed() error = %T, want *schema.EmbeddingError", err)
	}
	if embErr.Retryable {
		t.Error("exhausted error still marked retryable")
	}
	if len(p.calls) != 3 {
		t.Errorf("provider called %d times, want 3", len(p.calls))
	}
}

func TestEmbed_PermanentFailureNotRetried(t *testing.T) {
	p := &fakeProvider{fail: 5, failErr: errors.New("invalid api key")}
	e := New(p, Options{Retry: fastRetry(3)})

	_, err := e.Embed(context.Background(), []string{"hello"}, schema.EmbedDocument)
	if err == nil {
		t.Fatal("Embed() succeeded despite permanent failure")
	}
	if len(p.calls) != 1 {
		t.Errorf("provider called %d times, want 1 (no retries)", len(p.calls))
	}
}

// mismatchProvider returns vectors of drifting dimension.
type mismatchProvider struct{}

func (mismatchProvider) EmbedBatch(_ context.Context, texts []string, _ schema.EmbedMode) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, 3+i)
	}
	return out, nil
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	e := New(mismatchProvider{}, Options{Retry: fastRetry(1)})

	_, err := e.Embed(context.Background(), []string{"a", "b"}, schema.EmbedDocument)
	var embErr *schema.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("Embed() error = %T, want *schema.EmbeddingError", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancel", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"timeout error", &schema.TimeoutError{Op: "embed", Err: context.DeadlineExceeded}, true},
		{"breaker open", circuitbreaker.ErrOpen, false},
		{"google throttled", &googleapi.Error{Code: 429}, true},
		{"google server error", &googleapi.Error{Code: 503}, true},
		{"google bad request", &googleapi.Error{Code: 400}, false},
		{"openai server error", &openai.APIError{HTTPStatusCode: 500}, true},
		{"openai bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retryable(tc.err); got != tc.want {
				t.Errorf("Retryable(%v) = %t, want %t", tc.err, got, tc.want)
			}
		})
	}
}

func TestEmbed_OpenBreakerShortCircuits(t *testing.T) {
	breaker := circuitbreaker.New(1, 1, time.Hour)
	_ = breaker.Execute(func() error { return errors.New("trip it") })

	p := &fakeProvider{}
	e := New(p, Options{Retry: fastRetry(3), Breaker: breaker})

	_, err := e.Embed(context.Background(), []string{"hello"}, schema.EmbedDocument)
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("Embed() error = %v, want wrapped ErrOpen", err)
	}
	if len(p.calls) != 0 {
		t.Errorf("provider called %d times behind an open breaker", len(p.calls))
	}
}
