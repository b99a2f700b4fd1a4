package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireSameCoordReturnsSameSlot(t *testing.T) {
	a := New(4)
	c := ChunkCoord{1, 0, 1}
	s1, err := a.Acquire(c)
	require.NoError(t, err)
	s2, err := a.Acquire(c)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestAcquireFillsAllSlotsThenBackpressures(t *testing.T) {
	a := New(2)
	_, err := a.Acquire(ChunkCoord{0, 0, 0})
	require.NoError(t, err)
	s2, err := a.Acquire(ChunkCoord{1, 0, 0})
	require.NoError(t, err)
	a.MarkInFlight(s2, true)

	s0, _ := a.Lookup(ChunkCoord{0, 0, 0})
	a.MarkInFlight(s0, true)

	_, err = a.Acquire(ChunkCoord{2, 0, 0})
	assert.ErrorIs(t, err, ErrBackpressure)
}

func TestEvictionPrefersFarthestColdest(t *testing.T) {
	a := New(2)
	a.SetViewer(ChunkCoord{0, 0, 0})

	near, err := a.Acquire(ChunkCoord{1, 0, 0})
	require.NoError(t, err)
	_, err = a.Acquire(ChunkCoord{10, 0, 0})
	require.NoError(t, err)

	// neither slot is in-flight, so acquiring a third coordinate should
	// evict the farther one (10,0,0), keeping the near slot resident.
	_, err = a.Acquire(ChunkCoord{2, 0, 0})
	require.NoError(t, err)

	_, ok := a.Lookup(ChunkCoord{10, 0, 0})
	assert.False(t, ok, "farthest slot should have been evicted")

	_, ok = a.Lookup(ChunkCoord{1, 0, 0})
	assert.True(t, ok, "nearest slot should survive")
	assert.Equal(t, near, mustLookup(t, a, ChunkCoord{1, 0, 0}))
}

func mustLookup(t *testing.T, a *Allocator, c ChunkCoord) int {
	t.Helper()
	s, ok := a.Lookup(c)
	require.True(t, ok)
	return s
}

func TestInFlightSlotIsNeverEvicted(t *testing.T) {
	a := New(1)
	slot, err := a.Acquire(ChunkCoord{5, 5, 5})
	require.NoError(t, err)
	a.MarkInFlight(slot, true)

	_, err = a.Acquire(ChunkCoord{0, 0, 0})
	assert.ErrorIs(t, err, ErrBackpressure)
}

func TestReleaseDefersWhileInFlight(t *testing.T) {
	a := New(1)
	c := ChunkCoord{0, 0, 0}
	slot, err := a.Acquire(c)
	require.NoError(t, err)
	a.MarkInFlight(slot, true)

	a.Release(c)
	assert.True(t, a.Allocated(slot), "slot must stay resident until in-flight work retires")

	a.MarkInFlight(slot, false)
	assert.False(t, a.Allocated(slot))
	assert.Equal(t, 0, a.PendingEvictions())
}

func TestCoordOnFreeSlotPanics(t *testing.T) {
	a := New(1)
	assert.Panics(t, func() { a.Coord(0) })
}
