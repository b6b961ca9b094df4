// Package circuit provides a small consecutive-failure circuit breaker.
// The attachment GC uses it to stop hammering the file-storage collaborator
// during an outage; callers skip the call while the circuit is open.
package circuit

import (
	"sync"
	"time"
)

// Breaker opens after a number of consecutive failures and stays open for a
// cooldown period, after which the next Allow lets one probe through.
type Breaker struct {
	mu sync.RWMutex

	threshold int
	cooldown  time.Duration

	failures  int
	openUntil time.Time
	isOpen    bool
}

// New creates a breaker. Non-positive arguments fall back to 5 failures and
// a one-minute cooldown.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Breaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a call may proceed. When the cooldown has expired the
// breaker closes and lets traffic through again (half-open probing).
func (b *Breaker) Allow() bool {
	b.mu.RLock()
	if !b.isOpen {
		b.mu.RUnlock()
		return true
	}
	expired := time.Now().After(b.openUntil)
	b.mu.RUnlock()

	if !expired {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	// Re-check after acquiring the write lock.
	if b.isOpen && time.Now().After(b.openUntil) {
		b.isOpen = false
		b.failures = 0
	}
	return !b.isOpen
}

// RecordSuccess closes the circuit and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.isOpen = false
}

// RecordFailure counts a failure, opening the circuit at the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.isOpen = true
		b.openUntil = time.Now().Add(b.cooldown)
	}
}

// IsOpen reports whether the circuit is currently open.
func (b *Breaker) IsOpen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.isOpen
}
