package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")

	var called string
	err := fg.Execute(func(v string) error {
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "primary" {
		t.Fatalf("called = %q, want primary", called)
	}
}

func TestFallbackGroup_PrimaryFailFallbackSuccess(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")

	var called string
	err := fg.Execute(func(v string) error {
		if v == "primary" {
			return errTest
		}
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "secondary" {
		t.Fatalf("called = %q, want secondary", called)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")

	err := fg.Execute(func(v string) error {
		return errTest
	})
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_CircuitBreakerSkipsOpenProvider(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
		},
	})
	fg.AddFallback("secondary", "secondary")

	// Fail the primary enough to open its breaker.
	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}

	// Now the primary's breaker should be open, so calls go to secondary.
	var called string
	err := fg.Execute(func(v string) error {
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "secondary" {
		t.Fatalf("called = %q, want secondary (primary circuit should be open)", called)
	}
}

func TestExecuteWithResult_Success(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(fg, func(v int) (string, error) {
		if v == 10 {
			return "from-ten", nil
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "from-ten" {
		t.Fatalf("result = %q, want from-ten", result)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(fg, func(v int) (string, error) {
		if v == 10 {
			return "", errTest
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "from-twenty" {
		t.Fatalf("result = %q, want from-twenty", result)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	_, err := ExecuteWithResult(fg, func(v int) (string, error) {
		return "", errTest
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_Passthrough(t *testing.T) {
	errAnswer := errors.New("no answer")
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
		Passthrough:    func(err error) bool { return errors.Is(err, errAnswer) },
	})
	fg.AddFallback("secondary", "secondary")

	var calls []string
	for range 3 {
		err := fg.Execute(func(v string) error {
			calls = append(calls, v)
			return errAnswer
		})
		if !errors.Is(err, errAnswer) {
			t.Fatalf("err = %v, want errAnswer", err)
		}
		if errors.Is(err, ErrAllFailed) {
			t.Fatal("passthrough error must not be wrapped in ErrAllFailed")
		}
	}
	if len(calls) != 3 || calls[0] != "primary" || calls[2] != "primary" {
		t.Errorf("calls = %v, want primary only", calls)
	}
	if s := fg.States()[0].State; s != StateClosed {
		t.Errorf("primary breaker = %v, want closed", s)
	}
}

func TestFallbackGroup_CanceledIsNotRetried(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{})
	fg.AddFallback("secondary", "secondary")

	var calls int
	err := fg.Execute(func(string) error {
		calls++
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestFallbackGroup_OnResult(t *testing.T) {
	type result struct {
		provider string
		failed   bool
	}
	var got []result
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
		OnResult: func(provider string, err error) {
			got = append(got, result{provider, err != nil})
		},
	})
	fg.AddFallback("secondary", "secondary")

	fail := func(v string) error {
		if v == "primary" {
			return errTest
		}
		return nil
	}
	_ = fg.Execute(fail)
	_ = fg.Execute(fail)

	want := []result{
		{"primary", true},
		{"secondary", false},
		{"primary", true}, // breaker open
		{"secondary", false},
	}
	if len(got) != len(want) {
		t.Fatalf("results = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFallbackGroup_States(t *testing.T) {
	fg := NewFallbackGroup(1, "one", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	fg.AddFallback("two", 2)
	_ = fg.Execute(func(v int) error {
		if v == 1 {
			return errTest
		}
		return nil
	})

	states := fg.States()
	if fg.Len() != 2 || len(states) != 2 {
		t.Fatalf("Len = %d, states = %v", fg.Len(), states)
	}
	if states[0] != (ProviderState{Name: "one", State: StateOpen}) {
		t.Errorf("states[0] = %+v", states[0])
	}
	if states[1] != (ProviderState{Name: "two", State: StateClosed}) {
		t.Errorf("states[1] = %+v", states[1])
	}
	if fg.Primary() != 1 {
		t.Errorf("Primary = %d, want 1", fg.Primary())
	}
}

func TestFallbackGroup_RecordFailure(t *testing.T) {
	var reported []string
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
		OnResult: func(provider string, err error) {
			reported = append(reported, provider)
		},
	})
	fg.AddFallback("secondary", "secondary")

	fg.RecordFailure("unknown", errTest)
	fg.RecordFailure("primary", errTest)
	if got := fg.States()[0].State; got != StateClosed {
		t.Fatalf("primary = %v after one late failure, want closed", got)
	}
	fg.RecordFailure("primary", errTest)
	if got := fg.States()[0].State; got != StateOpen {
		t.Fatalf("primary = %v after two late failures, want open", got)
	}

	var used string
	if err := fg.Execute(func(v string) error { used = v; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "secondary" {
		t.Errorf("used %q, want secondary while primary is open", used)
	}
	// Two late failures, then the open-breaker skip.
	want := []string{"primary", "primary", "primary", "secondary"}
	if len(reported) != len(want) {
		t.Fatalf("reported = %v, want %v", reported, want)
	}
	for i := range want {
		if reported[i] != want[i] {
			t.Errorf("reported[%d] = %q, want %q", i, reported[i], want[i])
		}
	}
}
