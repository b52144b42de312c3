package embedder

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"

	openai "github.com/meguminnnnnnnnn/go-openai"
	ollama "github.com/ollama/ollama/api"
	"google.golang.org/api/googleapi"

	"ragserver/internal/rag/schema"
	"ragserver/pkg/circuitbreaker"
)

// RetryPolicy retries transient failures with exponential backoff and jitter.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first. Values
	// below 1 mean a single attempt.
	MaxAttempts int
	// BaseDelay is the backoff before the first retry; it doubles per retry.
	BaseDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
}

const (
	defaultBaseDelay = 500 * time.Millisecond
	defaultMaxDelay  = 8 * time.Second
)

// Do runs fn until it succeeds, fails permanently, or attempts run out.
// Backoff sleeps are cut short when ctx is done, in which case the last
// error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if !sleep(ctx, p.delay(attempt-1)) {
				return err
			}
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
	}
	return err
}

// delay computes the jittered backoff before the given retry (1-based).
func (p RetryPolicy) delay(retry int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	max := p.MaxDelay
	if max <= 0 {
		max = defaultMaxDelay
	}

	d := base << (retry - 1)
	if d <= 0 || d > max {
		d = max
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// sleep waits for d or until ctx is done, reporting whether the full wait
// completed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Retryable classifies an embedding call failure. Timeouts, network errors
// and provider throttling or server errors are transient; cancellation, an
// open breaker and client errors are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}

	var timeoutErr *schema.TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var googleErr *googleapi.Error
	if errors.As(err, &googleErr) {
		return googleErr.Code == http.StatusTooManyRequests || googleErr.Code >= 500
	}
	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return openaiErr.HTTPStatusCode == http.StatusTooManyRequests || openaiErr.HTTPStatusCode >= 500
	}
	var ollamaErr ollama.StatusError
	if errors.As(err, &ollamaErr) {
		return ollamaErr.StatusCode == http.StatusTooManyRequests || ollamaErr.StatusCode >= 500
	}

	return false
}
