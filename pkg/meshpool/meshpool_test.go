package meshpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveBumpsHighWater(t *testing.T) {
	p := New(1000)
	r, err := p.Reserve(0, 100)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), r.Offset)
	assert.Equal(t, uint32(100), r.Count)

	r2, err := p.Reserve(1, 50)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), r2.Offset)
}

func TestReserveOverflow(t *testing.T) {
	p := New(100)
	_, err := p.Reserve(0, 50)
	require.NoError(t, err)
	_, err = p.Reserve(1, 60)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestReReserveReleasesOldRange(t *testing.T) {
	p := New(1000)
	_, err := p.Reserve(0, 100)
	require.NoError(t, err)
	_, err = p.Reserve(0, 50)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), p.highWater, "re-reserving should not grow the arena a second time")
	// the released 100-vertex range is reused first-fit for the new 50, so
	// a 50-vertex remainder stays on the free list.
	assert.Equal(t, uint32(50), p.free[0].Count)
}

func TestFreedRangeIsReusedFirstFit(t *testing.T) {
	p := New(1000)
	_, err := p.Reserve(0, 100)
	require.NoError(t, err)
	p.Release(0)

	r, err := p.Reserve(1, 80)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), r.Offset, "reused range should come from the freed gap, not grow high water")
	assert.Equal(t, uint32(100), p.highWater)
}

func TestUsedVerticesExcludesFreedRanges(t *testing.T) {
	p := New(1000)
	_, err := p.Reserve(0, 100)
	require.NoError(t, err)
	_, err = p.Reserve(1, 50)
	require.NoError(t, err)
	p.Release(0)
	assert.Equal(t, uint32(50), p.UsedVertices())
}

func TestFragmentationReflectsFreedGaps(t *testing.T) {
	p := New(1000)
	_, _ = p.Reserve(0, 200)
	p.Release(0)
	assert.InDelta(t, 1.0, p.Fragmentation(), 1e-9)
}
