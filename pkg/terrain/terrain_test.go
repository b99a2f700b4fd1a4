package terrain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noahsabaj/voxelcore/pkg/alloc"
	"github.com/noahsabaj/voxelcore/pkg/morton"
	"github.com/noahsabaj/voxelcore/pkg/registry"
)

func testParams() Params {
	return Params{
		Seed:      42,
		ChunkSize: 16,
		SeaLevel:  5,
		WaterID:   registry.BlockID(4),
		Bands: Bands{
			BlockIDs:        []registry.BlockID{1, 2, 3},
			MinDepth:        []int32{0, 1, 4},
			MaxDepth:        []int32{0, 3, 1000},
			Probability:     []float32{0, 0, 0},
			NoiseThresholds: []float32{0, 0, 0},
		},
	}
}

func TestGenerateProducesExactlySizeCubedWords(t *testing.T) {
	k := New(testParams())
	out := k.Generate(alloc.ChunkCoord{X: 0, Y: 0, Z: 0})
	require.Len(t, out, 16*16*16)
}

func TestGenerateIsDeterministic(t *testing.T) {
	k := New(testParams())
	coord := alloc.ChunkCoord{X: 3, Y: 0, Z: -2}
	a := k.Generate(coord)
	b := k.Generate(coord)
	assert.Equal(t, a, b)
}

func TestGenerateDiffersAcrossChunks(t *testing.T) {
	k := New(testParams())
	a := k.Generate(alloc.ChunkCoord{X: 0, Y: 0, Z: 0})
	b := k.Generate(alloc.ChunkCoord{X: 50, Y: 0, Z: 50})
	assert.NotEqual(t, a, b)
}

func TestSurfaceLayerIsTopBand(t *testing.T) {
	k := New(testParams())
	out := k.Generate(alloc.ChunkCoord{X: 0, Y: 0, Z: 0})
	height := k.heightAt(0, 0)
	if height == 0 {
		t.Skip("degenerate height at origin for this seed")
	}
	surface := out[indexOf(t, 0, int(height)-1, 0)]
	assert.Equal(t, registry.BlockID(1), surface.BlockID())
}

func indexOf(t *testing.T, x, y, z int) int {
	t.Helper()
	return int(morton.Encode(uint32(x), uint32(y), uint32(z)))
}
