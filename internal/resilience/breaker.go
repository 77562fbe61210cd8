// Package resilience guards calls to the engine's downstream services with
// per-service circuit breakers and classifies their failures. Calls are
// never retried: a failed call fails the request that made it.
package resilience

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// State is the position of a breaker.
type State int

const (
	// StateClosed lets calls through.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets probe calls through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
// Callers treat it as a connect failure.
var ErrCircuitOpen = eris.New("circuit breaker is open")

const (
	defaultThreshold = 5
	defaultCooldown  = 30 * time.Second
)

// BreakerConfig controls how a breaker trips and recovers.
type BreakerConfig struct {
	// Threshold is the number of consecutive tripping failures that opens
	// the circuit.
	Threshold int
	// Cooldown is how long an open circuit rejects calls.
	Cooldown time.Duration
	// Probes is the number of half-open successes that close the circuit.
	Probes int
	// Trips decides whether a failure counts. Defaults to Trips.
	Trips func(err error) bool
	// OnTransition is called on every state change, under the breaker lock.
	OnTransition func(service string, from, to State)
}

// BreakerConfigFrom builds a config from the breaker settings. Non-positive
// values keep the defaults.
func BreakerConfigFrom(threshold, cooldownSecs int) BreakerConfig {
	cfg := BreakerConfig{Threshold: threshold}
	if cooldownSecs > 0 {
		cfg.Cooldown = time.Duration(cooldownSecs) * time.Second
	}
	return cfg.withDefaults()
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Threshold <= 0 {
		c.Threshold = defaultThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
	if c.Probes <= 0 {
		c.Probes = 1
	}
	if c.Trips == nil {
		c.Trips = Trips
	}
	return c
}

// Breaker guards one downstream service.
type Breaker struct {
	service string
	cfg     BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	probes   int
	openedAt time.Time

	now func() time.Time
}

// NewBreaker creates a closed breaker for service.
func NewBreaker(service string, cfg BreakerConfig) *Breaker {
	return &Breaker{service: service, cfg: cfg.withDefaults(), now: time.Now}
}

// Service returns the guarded service name.
func (b *Breaker) Service() string { return b.service }

// State reports the current state. An open circuit whose cooldown has
// elapsed reports half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cooled() {
		return StateHalfOpen
	}
	return b.state
}

// Call runs fn through b. A rejected call returns a ConnectError wrapping
// ErrCircuitOpen without running fn. A nil breaker runs fn unguarded.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if b == nil {
		return fn(ctx)
	}
	if !b.admit() {
		var zero T
		return zero, &ConnectError{Service: b.service, Err: ErrCircuitOpen}
	}
	v, err := fn(ctx)
	b.record(err)
	return v, err
}

func (b *Breaker) cooled() bool {
	return b.now().Sub(b.openedAt) >= b.cfg.Cooldown
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return true
	}
	if !b.cooled() {
		return false
	}
	b.moveTo(StateHalfOpen)
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && b.cfg.Trips(err) {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.cfg.Threshold {
			b.openedAt = b.now()
			b.moveTo(StateOpen)
		}
		return
	}

	b.failures = 0
	if b.state == StateHalfOpen {
		b.probes++
		if b.probes >= b.cfg.Probes {
			b.moveTo(StateClosed)
		}
	}
}

func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.probes = 0
	if to == StateClosed {
		b.failures = 0
	}
	if b.cfg.OnTransition != nil {
		b.cfg.OnTransition(b.service, from, to)
	}
}

// Breakers holds one breaker per downstream service. It is process-wide;
// breakers are the only state shared between requests.
type Breakers struct {
	cfg BreakerConfig

	mu     sync.RWMutex
	byName map[string]*Breaker
}

// NewBreakers creates a registry with a closed breaker for each of services.
// Other services get a breaker on first use.
func NewBreakers(cfg BreakerConfig, services ...string) *Breakers {
	bs := &Breakers{cfg: cfg, byName: make(map[string]*Breaker, len(services))}
	for _, s := range services {
		bs.byName[s] = NewBreaker(s, cfg)
	}
	return bs
}

// For returns the breaker guarding service.
func (bs *Breakers) For(service string) *Breaker {
	bs.mu.RLock()
	b, ok := bs.byName[service]
	bs.mu.RUnlock()
	if ok {
		return b
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if b, ok = bs.byName[service]; ok {
		return b
	}
	b = NewBreaker(service, bs.cfg)
	bs.byName[service] = b
	return b
}

// Services returns the registered service names in order.
func (bs *Breakers) Services() []string {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	names := make([]string, 0, len(bs.byName))
	for n := range bs.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Snapshot maps each service to the name of its current state.
func (bs *Breakers) Snapshot() map[string]string {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	out := make(map[string]string, len(bs.byName))
	for n, b := range bs.byName {
		out[n] = b.State().String()
	}
	return out
}
