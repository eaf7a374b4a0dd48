package memstore

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// maxInternedEntries bounds each of the Resource and Scope intern tables.
// Distinct resource/scope attribute sets are normally small and slow to
// grow relative to span and metric volume, but a misconfigured or
// multi-tenant source can still mint new combinations without bound over a
// long uptime. golang-lru/v2 caps the table at a fixed size and evicts the
// least-recently-resolved entry instead of letting the process heap grow
// unboundedly; InternResource/InternScope remain idempotent on content
// hash, but ResolveResource/ResolveScope can return NotFound for a ref
// that aged out of the cache under eviction pressure.
const maxInternedEntries = 50_000

// internTable is the content-addressed dedup table behind InternResource and
// InternScope: the ref *is* the normalizer's content hash, so interning is
// just "store if absent" against a bounded LRU cache.
type internTable[K comparable, V any] struct {
	cache *lru.Cache[K, V]
}

func newInternTable[K comparable, V any]() *internTable[K, V] {
	c, err := lru.New[K, V](maxInternedEntries)
	if err != nil {
		// lru.New only errors on a non-positive size, which
		// maxInternedEntries never is.
		panic(err)
	}
	return &internTable[K, V]{cache: c}
}

func (t *internTable[K, V]) intern(key K, value V) K {
	t.cache.ContainsOrAdd(key, value)
	return key
}

func (t *internTable[K, V]) resolve(key K) (V, bool) {
	return t.cache.Get(key)
}

func (t *internTable[K, V]) len() int {
	return t.cache.Len()
}
