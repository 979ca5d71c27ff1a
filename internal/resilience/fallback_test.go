package resilience

import (
	"errors"
	"testing"
	"time"
)

func newGroup(maxFailures int) *FallbackGroup[string] {
	g := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: maxFailures, ResetTimeout: time.Hour},
	})
	g.Add("secondary", "secondary")
	return g
}

func TestDo_PrimarySuccess(t *testing.T) {
	g := newGroup(3)
	got, name, err := Do(g, func(v string) (string, error) { return v + "!", nil })
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "primary!" || name != "primary" {
		t.Fatalf("Do = (%q, %q), want primary", got, name)
	}
}

func TestDo_Failover(t *testing.T) {
	g := newGroup(3)
	got, name, err := Do(g, func(v string) (int, error) {
		if v == "primary" {
			return 0, errTest
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != 42 || name != "secondary" {
		t.Fatalf("Do = (%d, %q), want (42, secondary)", got, name)
	}
}

func TestDo_AllFail(t *testing.T) {
	g := newGroup(3)
	_, _, err := Do(g, func(string) (int, error) { return 0, errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want it to wrap the provider error", err)
	}
}

func TestDo_SkipsOpenCircuit(t *testing.T) {
	g := newGroup(2)
	for range 2 {
		_, _, _ = Do(g, func(v string) (string, error) {
			if v == "primary" {
				return "", errTest
			}
			return v, nil
		})
	}
	if s := g.States()["primary"]; s != StateOpen {
		t.Fatalf("primary state = %v, want open", s)
	}

	var called []string
	_, name, err := Do(g, func(v string) (string, error) {
		called = append(called, v)
		return v, nil
	})
	if err != nil || name != "secondary" {
		t.Fatalf("Do = (%q, %v), want secondary", name, err)
	}
	if len(called) != 1 {
		t.Fatalf("called = %v, want only secondary", called)
	}
	if !g.Available() {
		t.Fatal("Available() = false with a closed fallback")
	}
}

func TestAvailable_AllOpen(t *testing.T) {
	g := NewFallbackGroup("only", "only", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	_, _, _ = Do(g, func(string) (int, error) { return 0, errTest })
	if g.Available() {
		t.Fatal("Available() = true with every breaker open")
	}
	if g.Len() != 1 {
		t.Fatalf("Len = %d", g.Len())
	}
}
