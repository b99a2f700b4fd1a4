package dirty

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSlotIsClean(t *testing.T) {
	tr := New(4, 8)
	assert.False(t, tr.Dirty(0))
	assert.Equal(t, 0, tr.Count(0))
}

func TestMarkVoxelMarksSingleRegion(t *testing.T) {
	tr := New(4, 8)
	tr.MarkVoxel(0, 10, 10, 10, 32)
	assert.True(t, tr.Dirty(0))
	assert.Equal(t, 1, tr.Count(0))
	assert.False(t, tr.Dirty(1))
}

func TestMarkVoxelSameRegionTwiceStaysOne(t *testing.T) {
	tr := New(4, 8)
	tr.MarkVoxel(0, 8, 8, 8, 32)
	tr.MarkVoxel(0, 9, 9, 9, 32)
	assert.Equal(t, 1, tr.Count(0))
}

func TestMarkVoxelOnBoundarySetsNeighborFlag(t *testing.T) {
	tr := New(4, 8)
	tr.MarkVoxel(0, 0, 5, 5, 32)
	assert.True(t, tr.NeighborFace(0, FaceWest))
	assert.False(t, tr.NeighborFace(0, FaceEast))
}

func TestMarkAllThenClear(t *testing.T) {
	tr := New(2, 8)
	tr.MarkAll(0)
	assert.True(t, tr.Dirty(0))
	assert.Equal(t, 8*8*8, tr.Count(0))
	tr.Clear(0)
	assert.False(t, tr.Dirty(0))
	assert.Equal(t, 0, tr.Count(0))
}

func TestClearAlsoClearsNeighborFlags(t *testing.T) {
	tr := New(2, 8)
	tr.SetNeighborFace(0, FaceUp, true)
	tr.Clear(0)
	assert.False(t, tr.NeighborFace(0, FaceUp))
}

func TestOutOfRangeSlotPanics(t *testing.T) {
	tr := New(2, 8)
	assert.Panics(t, func() { tr.Dirty(5) })
}
