package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New(3, 1, time.Hour)

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d error = %v, want errBoom", i, err)
		}
	}
	if got := b.State(); got != Open {
		t.Fatalf("state = %v after threshold failures, want Open", got)
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("error = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn ran while the breaker was open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(2, 1, time.Hour)

	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errBoom })

	if got := b.State(); got != Closed {
		t.Errorf("state = %v, want Closed (failures were not consecutive)", got)
	}
}

func TestBreaker_RecoversThroughHalfOpen(t *testing.T) {
	b := New(1, 2, 10*time.Millisecond)

	_ = b.Execute(func() error { return errBoom })
	if got := b.State(); got != Open {
		t.Fatalf("state = %v, want Open", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := b.State(); got != HalfOpen {
		t.Fatalf("state = %v after cooldown, want HalfOpen", got)
	}

	_ = b.Execute(func() error { return nil })
	if got := b.State(); got != HalfOpen {
		t.Fatalf("state = %v after one trial success, want HalfOpen", got)
	}
	_ = b.Execute(func() error { return nil })
	if got := b.State(); got != Closed {
		t.Errorf("state = %v after success threshold, want Closed", got)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(1, 1, 10*time.Millisecond)

	_ = b.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	_ = b.Execute(func() error { return errBoom })
	if got := b.State(); got != Open {
		t.Errorf("state = %v after half-open failure, want Open", got)
	}
}
