package ai

import (
	"testing"
	"time"
)

func TestCircuitBreakerTransitions(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var transitions []string
	cb := NewCircuitBreaker(3, 2, time.Minute, func(from, to CircuitState, _ int) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})
	cb.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("state = %s after 2 failures, want closed", cb.State())
	}
	cb.RecordSuccess()
	if _, failures, _ := cb.Metrics(); failures != 0 {
		t.Errorf("success should reset failures, got %d", failures)
	}

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %s after 3 failures, want open", cb.State())
	}
	if err := cb.Allow(); err != ErrCircuitOpen {
		t.Errorf("Allow() = %v while open, want ErrCircuitOpen", err)
	}

	now = now.Add(2 * time.Minute)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() after open timeout = %v", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %s, want half_open", cb.State())
	}

	// a failure while probing reopens immediately
	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %s after half-open failure, want open", cb.State())
	}

	now = now.Add(2 * time.Minute)
	cb.Allow()
	cb.RecordSuccess()
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("one success should not close, state = %s", cb.State())
	}
	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Fatalf("state = %s after 2 successes, want closed", cb.State())
	}

	want := []string{"closed->open", "open->half_open", "half_open->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreakerObserverMayQueryBreaker(t *testing.T) {
	var cb *CircuitBreaker
	var observed []CircuitState
	cb = NewCircuitBreaker(1, 1, time.Minute, func(_, to CircuitState, failures int) {
		state, got, _ := cb.Metrics()
		if state != to {
			t.Errorf("Metrics() state = %s inside observer, want %s", state, to)
		}
		if got != failures {
			t.Errorf("Metrics() failures = %d, observer got %d", got, failures)
		}
		observed = append(observed, cb.State())
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		cb.RecordFailure()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RecordFailure deadlocked while notifying the observer")
	}
	if len(observed) != 1 || observed[0] != CircuitOpen {
		t.Errorf("observed = %v, want [open]", observed)
	}
}
