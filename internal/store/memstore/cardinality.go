package memstore

import "sync"

// cardinalityGuard admits a new metric name only while the distinct-name
// count stays under the configured limit (spec §4.2). Once the limit is
// reached, new names are rejected and counted; already-admitted names are
// unaffected.
type cardinalityGuard struct {
	mu    sync.Mutex
	names map[string]struct{}
	limit int
}

func newCardinalityGuard(limit int) *cardinalityGuard {
	if limit <= 0 {
		limit = 1000
	}
	return &cardinalityGuard{names: make(map[string]struct{}), limit: limit}
}

// admit reports whether name is (now, or already) an admitted metric name.
// A false return means the caller must drop the data point and increment
// its own metrics_dropped counter.
func (c *cardinalityGuard) admit(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.names[name]; ok {
		return true
	}
	if len(c.names) >= c.limit {
		return false
	}
	c.names[name] = struct{}{}
	return true
}

func (c *cardinalityGuard) used() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.names)
}
