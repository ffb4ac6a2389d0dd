// Package telemetry implements a periodic in-process aggregator (spec §9
// supplement): success/failure counts and cumulative prompt duration,
// reset whenever a snapshot is posted out (e.g. to a metrics sink),
// kept independent of webhook delivery so a disabled/misconfigured
// webhook never starves observability.
package telemetry

import (
	"sync"
	"time"
)

// Snapshot is one reporting window's accumulated counters.
type Snapshot struct {
	Succeeded       int64
	Failed          int64
	CumulativeMs    int64
	WindowStart     time.Time
	WindowEnd       time.Time
}

// Aggregator accumulates prompt outcomes between resets.
type Aggregator struct {
	mu          sync.Mutex
	succeeded   int64
	failed      int64
	cumulative  int64
	windowStart time.Time
}

// New creates an Aggregator with its window starting now.
func New() *Aggregator {
	return &Aggregator{windowStart: time.Now()}
}

// RecordSuccess accounts for one successfully completed prompt.
func (a *Aggregator) RecordSuccess(durationMs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.succeeded++
	a.cumulative += durationMs
}

// RecordFailure accounts for one failed prompt.
func (a *Aggregator) RecordFailure(durationMs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed++
	a.cumulative += durationMs
}

// Snapshot returns the counters accumulated since the last reset, without
// resetting them.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Succeeded:    a.succeeded,
		Failed:       a.failed,
		CumulativeMs: a.cumulative,
		WindowStart:  a.windowStart,
		WindowEnd:    time.Now(),
	}
}

// Reset returns the current Snapshot and zeroes the counters, starting a
// new window. Intended to be called once per reporting period (e.g. by a
// periodic /metrics-adjacent poster).
func (a *Aggregator) Reset() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := Snapshot{
		Succeeded:    a.succeeded,
		Failed:       a.failed,
		CumulativeMs: a.cumulative,
		WindowStart:  a.windowStart,
		WindowEnd:    time.Now(),
	}
	a.succeeded, a.failed, a.cumulative = 0, 0, 0
	a.windowStart = time.Now()
	return snap
}
