// Package correlation maps between the Engine's internal prompt ids and
// the caller-assigned ids exposed on every external surface. It is one of
// the few pieces of genuinely process-wide shared state the design
// tolerates (see spec §9); it is still an explicit type passed by pointer
// rather than a package-level global.
package correlation

import (
	"sync"
	"time"
)

// Table is a bijective engineId<->callerId map, mutex-guarded for
// concurrent readers (the WebSocket demux) and writers (dispatch).
type Table struct {
	mu        sync.RWMutex
	toCaller  map[string]string
	toEngine  map[string]string
	evictAfter time.Duration
}

// New creates an empty correlation table. evictAfter bounds how long a
// terminal completion's entries remain resolvable (spec: "~1s").
func New(evictAfter time.Duration) *Table {
	if evictAfter <= 0 {
		evictAfter = time.Second
	}
	return &Table{
		toCaller:   make(map[string]string),
		toEngine:   make(map[string]string),
		evictAfter: evictAfter,
	}
}

// Put records engineId<->callerId, overwriting any prior mapping for
// either key.
func (t *Table) Put(engineID, callerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toCaller[engineID] = callerID
	t.toEngine[callerID] = engineID
}

// CallerID resolves an engineId to its caller id, ok=false if unmapped.
func (t *Table) CallerID(engineID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.toCaller[engineID]
	return v, ok
}

// EngineID resolves a callerId to its engine id, ok=false if unmapped.
func (t *Table) EngineID(callerID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.toEngine[callerID]
	return v, ok
}

// EvictAfterDelay schedules removal of both directions of a mapping after
// the table's configured delay, bounding memory growth across many
// completed prompts. Safe to call multiple times for the same ids.
func (t *Table) EvictAfterDelay(engineID, callerID string) {
	time.AfterFunc(t.evictAfter, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.toCaller, engineID)
		delete(t.toEngine, callerID)
	})
}

// Len reports the number of in-flight engineId mappings, for tests/metrics.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.toCaller)
}
