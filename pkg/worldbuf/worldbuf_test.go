package worldbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noahsabaj/voxelcore/pkg/dirty"
	"github.com/noahsabaj/voxelcore/pkg/morton"
	"github.com/noahsabaj/voxelcore/pkg/registry"
)

func newTestBuffer(t *testing.T, slots, chunkSize int) (*Buffer, *dirty.Tracker) {
	t.Helper()
	tr := dirty.New(slots, 8)
	backing := make([]VoxelWord, slots*chunkSize*chunkSize*chunkSize)
	return New(slots, chunkSize, backing, tr), tr
}

func TestPackVoxelRoundTrip(t *testing.T) {
	v := PackVoxel(registry.BlockID(42), 7)
	assert.Equal(t, registry.BlockID(42), v.BlockID())
	assert.Equal(t, uint8(7), v.Light())
}

func TestWithLightPreservesBlockID(t *testing.T) {
	v := PackVoxel(registry.BlockID(9), 3)
	v2 := v.WithLight(15)
	assert.Equal(t, registry.BlockID(9), v2.BlockID())
	assert.Equal(t, uint8(15), v2.Light())
}

func TestSetGetRoundTrip(t *testing.T) {
	buf, _ := newTestBuffer(t, 2, 16)
	want := PackVoxel(registry.BlockID(3), 0)
	buf.Set(0, 4, 5, 6, want)
	got := buf.Get(0, 4, 5, 6)
	assert.Equal(t, want, got)
}

func TestUploadWrongLengthReturnsError(t *testing.T) {
	buf, _ := newTestBuffer(t, 1, 8)
	err := buf.Upload(0, make([]VoxelWord, 4))
	assert.ErrorIs(t, err, ErrCorruptUpload)
}

func TestUploadMarksSlotFullyDirty(t *testing.T) {
	buf, tr := newTestBuffer(t, 1, 8)
	voxels := make([]VoxelWord, 8*8*8)
	buf.Upload(0, voxels)
	assert.True(t, tr.Dirty(0))
}

func TestSlotOutOfRangePanics(t *testing.T) {
	buf, _ := newTestBuffer(t, 1, 8)
	assert.Panics(t, func() {
		buf.Get(5, 0, 0, 0)
	})
}

func TestReadbackIsIndependentCopy(t *testing.T) {
	buf, _ := newTestBuffer(t, 1, 8)
	buf.Set(0, 1, 1, 1, PackVoxel(5, 0))
	snapshot := buf.Readback(0)
	buf.Set(0, 1, 1, 1, PackVoxel(9, 0))
	require.NotEqual(t, buf.Get(0, 1, 1, 1), snapshot[int(morton.Encode(1, 1, 1))])
}
