package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	fail := func(_ context.Context) (int, error) { return 0, errors.New("boom") }

	for i := 0; i < 3; i++ {
		if _, err := ExecuteVal(context.Background(), cb, fail); err == nil {
			t.Fatal("expected error")
		}
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	// Next call is rejected without executing fn.
	var called bool
	_, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) {
		called = true
		return 0, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn should not be called while open")
	}
}

func TestCircuitBreaker_HalfOpenProbeRecovers(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	if _, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) {
		return 0, errors.New("boom")
	}); err == nil {
		t.Fatal("expected error")
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	// Advance past the reset timeout; the probe should run and close the circuit.
	now = now.Add(2 * time.Minute)
	got, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})

	fail := func(_ context.Context) (int, error) { return 0, errors.New("boom") }
	ok := func(_ context.Context) (int, error) { return 1, nil }

	_, _ = ExecuteVal(context.Background(), cb, fail)
	_, _ = ExecuteVal(context.Background(), cb, ok)
	_, _ = ExecuteVal(context.Background(), cb, fail)

	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after interleaved success, got %s", cb.State())
	}
}

func TestHostBreakers_IsolatesHosts(t *testing.T) {
	hb := NewHostBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	bad := hb.Get("bad.example.com")
	_, _ = ExecuteVal(context.Background(), bad, func(_ context.Context) (int, error) {
		return 0, errors.New("blocked")
	})

	if bad.State() != CircuitOpen {
		t.Fatalf("expected bad host open, got %s", bad.State())
	}
	if hb.Get("good.example.com").State() != CircuitClosed {
		t.Fatal("unrelated host must stay closed")
	}

	states := hb.States()
	if states["bad.example.com"] != CircuitOpen {
		t.Errorf("snapshot missing open state: %v", states)
	}
}
