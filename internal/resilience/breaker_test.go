package resilience

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

var errUnavailable = &StatusError{Service: "tba_inquiry", Code: 503, Body: "unavailable"}

func fail(b *Breaker, err error, n int) {
	for i := 0; i < n; i++ {
		_, _ = Call(context.Background(), b, func(context.Context) (int, error) { return 0, err })
	}
}

func succeed(b *Breaker) error {
	_, err := Call(context.Background(), b, func(context.Context) (int, error) { return 1, nil })
	return err
}

// clocked returns a breaker whose time can be advanced by the test.
func clocked(cfg BreakerConfig) (*Breaker, *time.Time) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	b := NewBreaker("tba_inquiry", cfg)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_Defaults(t *testing.T) {
	b := NewBreaker("cache", BreakerConfig{})
	if b.cfg.Threshold != 5 || b.cfg.Cooldown != 30*time.Second || b.cfg.Probes != 1 {
		t.Errorf("unexpected defaults: %+v", b.cfg)
	}
	if b.Service() != "cache" {
		t.Errorf("expected service cache, got %q", b.Service())
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("tba_inquiry", BreakerConfig{Threshold: 3, Cooldown: time.Hour})

	fail(b, errUnavailable, 2)
	if b.State() != StateClosed {
		t.Fatalf("expected closed below threshold, got %v", b.State())
	}
	fail(b, errUnavailable, 1)
	if b.State() != StateOpen {
		t.Fatalf("expected open at threshold, got %v", b.State())
	}

	ran := false
	_, err := Call(context.Background(), b, func(context.Context) (int, error) {
		ran = true
		return 0, nil
	})
	if ran {
		t.Error("open breaker must not run the call")
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if !IsConnect(err) {
		t.Error("a rejected call is a connect failure")
	}
}

func TestBreaker_SuccessClearsFailures(t *testing.T) {
	b := NewBreaker("rule_engine", BreakerConfig{Threshold: 2, Cooldown: time.Hour})

	fail(b, errUnavailable, 1)
	if err := succeed(b); err != nil {
		t.Fatal(err)
	}
	fail(b, errUnavailable, 1)
	if b.State() != StateClosed {
		t.Errorf("expected closed, failures must be consecutive; got %v", b.State())
	}
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker("tba_update", BreakerConfig{Threshold: 1, Cooldown: time.Hour})

	fail(b, &StatusError{Service: "tba_update", Code: 400, Body: "bad"}, 5)
	if b.State() != StateClosed {
		t.Errorf("4xx must not trip, got %v", b.State())
	}

	fail(b, &StatusError{Service: "tba_update", Code: 429, Body: "slow down"}, 1)
	if b.State() != StateOpen {
		t.Errorf("429 must trip, got %v", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name  string
		probe error
		want  State
	}{
		{"success closes", nil, StateClosed},
		{"failure reopens", errUnavailable, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, now := clocked(BreakerConfig{Threshold: 1, Cooldown: time.Minute})
			fail(b, errUnavailable, 1)

			*now = now.Add(30 * time.Second)
			if b.State() != StateOpen {
				t.Fatalf("expected open before cooldown, got %v", b.State())
			}
			*now = now.Add(31 * time.Second)
			if b.State() != StateHalfOpen {
				t.Fatalf("expected half-open after cooldown, got %v", b.State())
			}

			_, _ = Call(context.Background(), b, func(context.Context) (int, error) { return 0, tt.probe })
			if b.State() != tt.want {
				t.Errorf("expected %v, got %v", tt.want, b.State())
			}
		})
	}
}

func TestBreaker_ProbesNeeded(t *testing.T) {
	b, now := clocked(BreakerConfig{Threshold: 1, Cooldown: time.Minute, Probes: 2})
	fail(b, errUnavailable, 1)
	*now = now.Add(time.Minute)

	_ = succeed(b)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after one probe, got %v", b.State())
	}
	_ = succeed(b)
	if b.State() != StateClosed {
		t.Errorf("expected closed after two probes, got %v", b.State())
	}
}

func TestBreaker_OnTransition(t *testing.T) {
	type change struct {
		service  string
		from, to State
	}
	var got []change
	b, now := clocked(BreakerConfig{
		Threshold: 2,
		Cooldown:  time.Minute,
		OnTransition: func(service string, from, to State) {
			got = append(got, change{service, from, to})
		},
	})

	fail(b, errUnavailable, 2)
	*now = now.Add(time.Minute)
	_ = succeed(b)

	want := []change{
		{"tba_inquiry", StateClosed, StateOpen},
		{"tba_inquiry", StateOpen, StateHalfOpen},
		{"tba_inquiry", StateHalfOpen, StateClosed},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("transitions = %+v, want %+v", got, want)
	}
}

func TestBreaker_CustomTrips(t *testing.T) {
	sentinel := errors.New("malformed")
	b := NewBreaker("excel_formatter", BreakerConfig{
		Threshold: 1,
		Trips:     func(err error) bool { return errors.Is(err, sentinel) },
	})

	fail(b, errUnavailable, 3)
	if b.State() != StateClosed {
		t.Fatalf("custom policy ignores 503, got %v", b.State())
	}
	fail(b, sentinel, 1)
	if b.State() != StateOpen {
		t.Errorf("expected open, got %v", b.State())
	}
}

func TestCall_NilBreaker(t *testing.T) {
	v, err := Call(context.Background(), nil, func(context.Context) (string, error) { return "key", nil })
	if err != nil || v != "key" {
		t.Errorf("expected key, nil; got %q, %v", v, err)
	}
}

func TestCall_ReturnsValue(t *testing.T) {
	b := NewBreaker("cache", BreakerConfig{})
	v, err := Call(context.Background(), b, func(context.Context) ([]byte, error) { return []byte("blob"), nil })
	if err != nil || string(v) != "blob" {
		t.Errorf("expected blob, nil; got %q, %v", v, err)
	}
}

func TestBreaker_ConcurrentCalls(t *testing.T) {
	b := NewBreaker("cache", BreakerConfig{Threshold: 1000, Cooldown: time.Hour})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				fail(b, errUnavailable, 1)
				return
			}
			_ = succeed(b)
		}(i)
	}
	wg.Wait()

	if b.State() != StateClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
}

func TestBreakers_For(t *testing.T) {
	bs := NewBreakers(BreakerConfig{Threshold: 1}, "cache", "tba_inquiry")

	if bs.For("cache") != bs.For("cache") {
		t.Error("expected the same breaker for one service")
	}
	if bs.For("cache") == bs.For("tba_inquiry") {
		t.Error("expected distinct breakers per service")
	}
	if got := bs.For("rule_engine").cfg.Threshold; got != 1 {
		t.Errorf("lazily created breaker should share the config, threshold = %d", got)
	}

	want := []string{"cache", "rule_engine", "tba_inquiry"}
	if got := bs.Services(); !reflect.DeepEqual(got, want) {
		t.Errorf("Services() = %v, want %v", got, want)
	}
}

func TestBreakers_Snapshot(t *testing.T) {
	bs := NewBreakers(BreakerConfig{Threshold: 1, Cooldown: time.Hour}, "cache", "tba_update")
	fail(bs.For("tba_update"), errUnavailable, 1)

	want := map[string]string{"cache": "closed", "tba_update": "open"}
	if got := bs.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(9):      "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
}

func TestBreakerConfigFrom(t *testing.T) {
	cfg := BreakerConfigFrom(3, 10)
	if cfg.Threshold != 3 || cfg.Cooldown != 10*time.Second {
		t.Errorf("unexpected config: %+v", cfg)
	}

	cfg = BreakerConfigFrom(0, -1)
	if cfg.Threshold != 5 || cfg.Cooldown != 30*time.Second {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}
