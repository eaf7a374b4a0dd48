package memstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternTable_InternIsIdempotentAndResolves(t *testing.T) {
	tbl := newInternTable[uint64, string]()

	tbl.intern(1, "a")
	tbl.intern(1, "b") // same key again: first value wins, per "store if absent"

	v, ok := tbl.resolve(1)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1, tbl.len())
}

func TestInternTable_UnknownKeyMisses(t *testing.T) {
	tbl := newInternTable[uint64, string]()
	_, ok := tbl.resolve(99)
	assert.False(t, ok)
}

func TestInternTable_EvictsOldestBeyondCapacity(t *testing.T) {
	tbl := newInternTable[uint64, string]()

	for i := uint64(0); i < maxInternedEntries+1; i++ {
		tbl.intern(i, "v")
	}

	assert.Equal(t, maxInternedEntries, tbl.len())

	// Key 0 was the least-recently-used entry once the table filled past
	// capacity, so it was evicted to make room for the new key.
	_, ok := tbl.resolve(0)
	assert.False(t, ok)

	_, ok = tbl.resolve(maxInternedEntries)
	assert.True(t, ok)
}
