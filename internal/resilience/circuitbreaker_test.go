package resilience

import (
	"errors"
	"testing"
	"time"
)

// errSlowBackend stands in for a collaborator that times out or refuses
// connections; the breaker only looks at success vs failure.
var errSlowBackend = errors.New("stt request timed out")

func failTimes(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(func() error { return errSlowBackend })
	}
}

func TestCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "stt"})
	if cb.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", cb.maxFailures)
	}
	if cb.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", cb.resetTimeout)
	}
	if cb.halfOpenMax != 3 {
		t.Errorf("halfOpenMax = %d, want 3", cb.halfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreakerClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "stt", MaxFailures: 3})

	dialled := false
	err := cb.Execute(func() error {
		dialled = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dialled {
		t.Fatal("backend was not called through a closed breaker")
	}
}

func TestCircuitBreakerOpensAfterConsecutiveTimeouts(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  3,
		ResetTimeout: time.Hour, // keep it open for the whole test
	})

	failTimes(cb, 3)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 timeouts", cb.State())
	}

	// An open breaker rejects before dialling, saving the caller the timeout.
	err := cb.Execute(func() error {
		t.Fatal("backend called through an open breaker")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "stt", MaxFailures: 3})

	// Two timeouts, then a good transcription: the streak is broken.
	failTimes(cb, 2)
	_ = cb.Execute(func() error { return nil })
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after a success", cb.State())
	}

	// A fresh streak has to reach maxFailures again.
	failTimes(cb, 2)
	if cb.State() != StateClosed {
		t.Fatal("opened after only 2 failures of a new streak")
	}
}

func TestCircuitBreakerHalfOpensAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})

	failTimes(cb, 2)
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	time.Sleep(15 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after the reset timeout", cb.State())
	}
}

func TestCircuitBreakerClosesAfterSuccessfulProbes(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})

	failTimes(cb, 2)
	time.Sleep(15 * time.Millisecond)

	// The backend recovered; trial calls succeed and the breaker closes.
	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("trial call %d: unexpected error: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after recovery", cb.State())
	}
}

func TestCircuitBreakerReopensOnFailedProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  3,
	})

	failTimes(cb, 2)
	time.Sleep(15 * time.Millisecond)

	// The backend is still down; the trial call fails and the breaker
	// snaps back open.
	if err := cb.Execute(func() error { return errSlowBackend }); err == nil {
		t.Fatal("expected error from failing trial call")
	}

	// Read the raw state: State() would report half-open once lastFailure
	// ages past the reset timeout again.
	cb.mu.Lock()
	s := cb.state
	cb.mu.Unlock()
	if s != StateOpen {
		t.Fatalf("state = %v, want open after a failed trial call", s)
	}
}

func TestCircuitBreakerManualReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})

	failTimes(cb, 2)
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after manual reset", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
