// Package generator adapts language model providers to a cancellable stream
// of answer deltas. Every adapter follows the same contract: the returned
// channel is closed when the stream ends, a terminal failure is delivered as
// a single error event before close, and cancelling the context stops token
// production and releases the provider connection. A stream is consumed at
// most once and never retried.
package generator

import (
	"context"
	"errors"
	"time"

	"ragserver/internal/rag/schema"
)

const defaultStreamTimeout = 2 * time.Minute

// streamContext derives the context that bounds one generation stream.
func streamContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultStreamTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// emit sends an event unless ctx ends first, reporting whether the event
// was delivered.
func emit(ctx context.Context, ch chan<- schema.Event, ev schema.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitTerminal reports a mid-stream failure as the final event before close.
// The stream context may already be past its deadline at this point, so
// delivery is bounded by the caller's context instead; when the caller has
// cancelled, nothing is sent and the channel just closes.
func emitTerminal(parent, stream context.Context, ch chan<- schema.Event, err error) {
	if terminal := streamErr(stream, err); terminal != nil {
		emit(parent, ch, schema.Event{Err: terminal})
	}
}

// streamErr classifies a mid-stream provider failure. The stream deadline is
// checked before cancellation: a timeout that interrupts an in-flight send
// can surface from the provider as context.Canceled but must still be
// reported. Caller cancellation yields nil: the consumer is gone, so the
// channel just closes.
func streamErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &schema.TimeoutError{Op: "generate", Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return &schema.GenerationError{Err: err}
}
