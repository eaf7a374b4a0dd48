package memstore

import (
	"container/list"
	"sync"
)

// timeEntry is a minimal, denormalized record kept in a timeIndex: enough
// to filter and order without touching the full record in its shardedMap.
type timeEntry struct {
	key            string
	service        string
	ingestTimeNano int64
}

// timeIndex orders keys by insertion (== ingest) time, oldest at the front.
// It backs the "recent N, optionally filtered" query paths and the
// background TTL sweep's O(expired) reclamation, instead of scanning every
// shard on every sweep tick.
type timeIndex struct {
	mu sync.Mutex
	l  *list.List
}

func newTimeIndex() *timeIndex {
	return &timeIndex{l: list.New()}
}

func (t *timeIndex) Append(e timeEntry) {
	t.mu.Lock()
	t.l.PushBack(e)
	t.mu.Unlock()
}

// Sweep evicts entries older than ttlNano from the front, returning the
// keys evicted so the caller can remove them from its shardedMap too.
func (t *timeIndex) Sweep(nowNano, ttlNano int64) []string {
	var evicted []string
	t.mu.Lock()
	for {
		front := t.l.Front()
		if front == nil {
			break
		}
		e := front.Value.(timeEntry)
		if nowNano-e.ingestTimeNano <= ttlNano {
			break
		}
		t.l.Remove(front)
		evicted = append(evicted, e.key)
	}
	t.mu.Unlock()
	return evicted
}

// Recent walks from newest to oldest, collecting up to limit keys
// satisfying match (nil matches everything).
func (t *timeIndex) Recent(limit int, match func(timeEntry) bool) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for el := t.l.Back(); el != nil && len(out) < limit; el = el.Prev() {
		e := el.Value.(timeEntry)
		if match == nil || match(e) {
			out = append(out, e.key)
		}
	}
	return out
}

func (t *timeIndex) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.l.Len()
}
