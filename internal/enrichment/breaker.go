package enrichment

import (
	"sync"
	"time"

	"DocketWatch/internal/metrics"
)

// BreakerState is a point-in-time copy of the breaker fields.
type BreakerState struct {
	Failures    int
	LastFailure time.Time
	Open        bool
}

// Breaker is the shared gate in front of one summarization provider. Every
// summarization goroutine must go through the same instance.
type Breaker struct {
	mu          sync.Mutex
	provider    string
	threshold   int
	cooldown    time.Duration
	failures    int
	lastFailure time.Time
	open        bool
	now         func() time.Time
}

// NewBreaker builds a closed breaker; now may be nil to use the wall clock.
func NewBreaker(provider string, threshold int, cooldown time.Duration, now func() time.Time) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{provider: provider, threshold: threshold, cooldown: cooldown, now: now}
}

// Allow reports whether a call may proceed. An open breaker closes once the
// cool-down has elapsed since the last failure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	if b.now().Sub(b.lastFailure) < b.cooldown {
		return false
	}
	b.open = false
	b.failures = 0
	metrics.BreakerOpen.WithLabelValues(b.provider).Set(0)
	return true
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open {
		metrics.BreakerOpen.WithLabelValues(b.provider).Set(0)
	}
	b.failures = 0
	b.open = false
}

// RecordFailure counts one failed call and reports whether it opened the breaker.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	if b.open || b.failures < b.threshold {
		return false
	}
	b.open = true
	metrics.BreakerOpen.WithLabelValues(b.provider).Set(1)
	metrics.BreakerTripsTotal.WithLabelValues(b.provider).Inc()
	return true
}

// Snapshot returns a copy of the current state.
func (b *Breaker) Snapshot() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerState{Failures: b.failures, LastFailure: b.lastFailure, Open: b.open}
}
