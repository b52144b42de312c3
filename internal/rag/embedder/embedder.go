package embedder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ragserver/internal/rag/interfaces"
	"ragserver/internal/rag/schema"
	"ragserver/pkg/circuitbreaker"
	"ragserver/pkg/logger"
)

// Provider is one embedding backend. It turns a batch of texts into one
// vector per text, order preserved. Providers that support asymmetric
// embedding apply the mode as a task hint; the rest ignore it.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string, mode schema.EmbedMode) ([][]float32, error)
}

// Options configures the Embedder wrapper. Zero values get sensible defaults.
type Options struct {
	// BatchSize is the maximum number of texts per provider call.
	BatchSize int
	// Timeout bounds each individual provider call.
	Timeout time.Duration
	// Retry governs transient-failure retries per batch.
	Retry RetryPolicy
	// Breaker, when non-nil, short-circuits calls while the provider is
	// failing consistently.
	Breaker *circuitbreaker.Breaker
	// Log, when non-nil, records retries and failures.
	Log *logger.Logger
}

const (
	defaultBatchSize = 16
	defaultTimeout   = 30 * time.Second
)

// Embedder wraps a Provider with batching, per-call timeouts, retry with
// backoff and an optional circuit breaker, and validates the shape of what
// the provider returns. It implements interfaces.Embedder.
type Embedder struct {
	provider Provider
	opts     Options
}

// New creates an Embedder around the given provider.
func New(provider Provider, opts Options) *Embedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Embedder{provider: provider, opts: opts}
}

// Embed converts texts to vectors, splitting the input into provider-sized
// batches. The result has exactly one vector per input text, in input order,
// and all vectors share one dimension. Any batch failing after retries fails
// the whole call; nothing partial is returned.
func (e *Embedder) Embed(ctx context.Context, texts []string, mode schema.EmbedMode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	dimension := 0
	for start := 0; start < len(texts); start += e.opts.BatchSize {
		end := start + e.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, err := e.embedBatch(ctx, batch, mode)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, &schema.EmbeddingError{
				Err: fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(batch)),
			}
		}
		for _, v := range vectors {
			if dimension == 0 {
				dimension = len(v)
			}
			if len(v) == 0 || len(v) != dimension {
				return nil, &schema.EmbeddingError{
					Err: fmt.Errorf("provider returned vector of dimension %d, want %d", len(v), dimension),
				}
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// embedBatch runs one provider call under the timeout, breaker and retry
// policy.
func (e *Embedder) embedBatch(ctx context.Context, batch []string, mode schema.EmbedMode) ([][]float32, error) {
	var vectors [][]float32

	attempt := 0
	err := e.opts.Retry.Do(ctx, func() error {
		attempt++
		callErr := e.execute(func() error {
			callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
			defer cancel()

			v, err := e.provider.EmbedBatch(callCtx, batch, mode)
			if err != nil {
				// Distinguish our per-call deadline from a caller cancel.
				if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
					return &schema.TimeoutError{Op: "embed", Err: err}
				}
				return err
			}
			vectors = v
			return nil
		})
		if callErr != nil && e.opts.Log != nil {
			e.opts.Log.WithError(callErr).WithField("attempt", attempt).Warn("embedding call failed")
		}
		return callErr
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &schema.EmbeddingError{Retryable: false, Err: err}
	}
	return vectors, nil
}

func (e *Embedder) execute(fn func() error) error {
	if e.opts.Breaker == nil {
		return fn()
	}
	return e.opts.Breaker.Execute(fn)
}

var _ interfaces.Embedder = (*Embedder)(nil)
