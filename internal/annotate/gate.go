package annotate

import (
	"sync"
	"time"
)

// Policy is a rate threshold: a gate fires only once at least MinWords new
// words have arrived AND at least MinInterval has passed since it last fired.
type Policy struct {
	MinWords    int
	MinInterval time.Duration
}

// Default policies for the two annotation kinds.
var (
	DefaultContextPolicy = Policy{MinWords: 200, MinInterval: 2 * time.Minute}
	DefaultNotesPolicy   = Policy{MinWords: 30, MinInterval: 45 * time.Second}
)

// RateGate decides whether an annotation request is due. It only evaluates
// and counts; resetting after a request is the caller's job (see [RateGate.Fire]).
//
// All methods are safe for concurrent use.
type RateGate struct {
	mu     sync.Mutex
	policy Policy
	now    func() time.Time
	words  int
	last   time.Time
}

// NewRateGate creates a gate for policy. A nil now uses [time.Now].
func NewRateGate(policy Policy, now func() time.Time) *RateGate {
	if now == nil {
		now = time.Now
	}
	return &RateGate{policy: policy, now: now}
}

// ShouldTrigger adds newWords to the running count and reports whether both
// the word and the time thresholds are met. A gate that has never fired
// satisfies the time threshold.
func (g *RateGate) ShouldTrigger(newWords int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if newWords > 0 {
		g.words += newWords
	}
	enoughTime := g.last.IsZero() || g.now().Sub(g.last) >= g.policy.MinInterval
	return enoughTime && g.words >= g.policy.MinWords
}

// Fire zeroes the word count and restarts the interval.
func (g *RateGate) Fire() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.words = 0
	g.last = g.now()
}

// Reset zeroes the word count and forgets the last firing.
func (g *RateGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.words = 0
	g.last = time.Time{}
}

// Words returns the count accumulated since the last Fire or Reset.
func (g *RateGate) Words() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.words
}

// SetPolicy replaces the thresholds without touching the counters.
func (g *RateGate) SetPolicy(p Policy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policy = p
}
