// Package circuitbreaker suspends calls to failing external feed
// providers with closed → open → half-open state transitions.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/LegionofMany/blockpages-risk/internal/metrics"
)

// State is the circuit state for one provider.
type State int

const (
	StateClosed   State = iota // lookups flow through
	StateOpen                  // tripped: lookups are skipped
	StateHalfOpen              // one probe lookup allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Defaults used when New is given non-positive values.
const (
	DefaultThreshold    = 5
	DefaultOpenDuration = 30 * time.Second
)

type entry struct {
	state       State
	failures    int
	lastFailure time.Time
}

// Breaker tracks consecutive lookup failures per provider and trips
// open when they reach the threshold. An open circuit moves to
// half-open after openDuration and allows a single probe; the probe's
// outcome closes the circuit or re-opens it.
//
// A skipped lookup degrades that provider's signal to zero, the same
// way a timeout does, so scoring stays available while the provider
// recovers.
type Breaker struct {
	mu           sync.Mutex
	entries      map[string]*entry
	threshold    int
	openDuration time.Duration
}

// New creates a breaker that opens after threshold consecutive
// failures and probes again after openDuration.
func New(threshold int, openDuration time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if openDuration <= 0 {
		openDuration = DefaultOpenDuration
	}
	return &Breaker{
		entries:      make(map[string]*entry),
		threshold:    threshold,
		openDuration: openDuration,
	}
}

// Allow reports whether a lookup against the provider should proceed.
// An open circuit past its open duration transitions to half-open and
// admits one probe.
func (b *Breaker) Allow(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[provider]
	if !ok {
		return true
	}

	switch e.state {
	case StateOpen:
		if time.Since(e.lastFailure) >= b.openDuration {
			b.transition(e, provider, StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		// A probe is already in flight.
		return false
	default:
		return true
	}
}

// RecordSuccess resets the failure count and closes a half-open circuit.
func (b *Breaker) RecordSuccess(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[provider]
	if !ok {
		return
	}
	if e.state == StateHalfOpen {
		b.transition(e, provider, StateClosed)
	}
	e.failures = 0
}

// RecordFailure counts one failed lookup, tripping the circuit open at
// the threshold. A failed half-open probe re-opens immediately.
func (b *Breaker) RecordFailure(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[provider]
	if !ok {
		e = &entry{state: StateClosed}
		b.entries[provider] = e
	}

	e.failures++
	e.lastFailure = time.Now()

	if e.state == StateHalfOpen {
		b.transition(e, provider, StateOpen)
		return
	}
	if e.state == StateClosed && e.failures >= b.threshold {
		b.transition(e, provider, StateOpen)
	}
}

// State returns the circuit state for a provider. Unknown providers are
// closed.
func (b *Breaker) State(provider string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[provider]
	if !ok {
		return StateClosed
	}
	return e.state
}

// transition changes state. Caller holds b.mu.
func (b *Breaker) transition(e *entry, provider string, to State) {
	if e.state == to {
		return
	}
	e.state = to
	metrics.FeedBreakerTransitions.WithLabelValues(provider, to.String()).Inc()
}
