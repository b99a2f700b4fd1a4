package mesher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noahsabaj/voxelcore/pkg/registry"
	"github.com/noahsabaj/voxelcore/pkg/worldbuf"
)

func newReg(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	_, err := r.Register(registry.Properties{Name: "stone", Solid: true})
	require.NoError(t, err)
	_, err = r.Register(registry.Properties{Name: "glass", Solid: true, Transparent: true})
	require.NoError(t, err)
	r.Freeze()
	return r
}

// gridAccessor builds an Accessor over a size^3 dense grid, treating any
// out-of-bounds coordinate as Air (no neighbor resident).
func gridAccessor(size int, grid []registry.BlockID) Accessor {
	return func(x, y, z int) worldbuf.VoxelWord {
		if x < 0 || x >= size || y < 0 || y >= size || z < 0 || z >= size {
			return worldbuf.PackVoxel(registry.Air, 0)
		}
		return worldbuf.PackVoxel(grid[x+size*(y+size*z)], 0)
	}
}

func TestEmptyChunkProducesNoVertices(t *testing.T) {
	size := 4
	grid := make([]registry.BlockID, size*size*size)
	k := New(newReg(t))
	out := k.Mesh(size, gridAccessor(size, grid))
	assert.Empty(t, out)
}

func TestSingleSolidVoxelProducesSixQuads(t *testing.T) {
	size := 2
	grid := make([]registry.BlockID, size*size*size)
	grid[0] = registry.BlockID(1) // stone at (0,0,0)
	k := New(newReg(t))
	out := k.Mesh(size, gridAccessor(size, grid))
	// 6 faces * 4 vertices each
	assert.Len(t, out, 24)
}

func TestSolidBlockInteriorProducesNoFacesAgainstSameType(t *testing.T) {
	size := 2
	grid := make([]registry.BlockID, size*size*size)
	for i := range grid {
		grid[i] = registry.BlockID(1)
	}
	k := New(newReg(t))
	out := k.Mesh(size, gridAccessor(size, grid))
	// A fully solid 2x2x2 block of the same type has no exposed internal
	// faces; only the six outer faces of the cube remain, each a single
	// merged 2x2 quad.
	assert.Len(t, out, 24)
}

func TestMeshingIsDeterministic(t *testing.T) {
	size := 6
	grid := make([]registry.BlockID, size*size*size)
	for i := range grid {
		if i%3 == 0 {
			grid[i] = registry.BlockID(1)
		}
	}
	k := New(newReg(t))
	a := k.Mesh(size, gridAccessor(size, grid))
	b := k.Mesh(size, gridAccessor(size, grid))
	require.Equal(t, len(a), len(b))
	assert.Equal(t, a, b)
}

func TestTransparentNeighborExposesFace(t *testing.T) {
	size := 2
	grid := make([]registry.BlockID, size*size*size)
	grid[0] = registry.BlockID(1) // stone
	grid[1] = registry.BlockID(2) // glass, adjacent along x
	k := New(newReg(t))
	out := k.Mesh(size, gridAccessor(size, grid))
	assert.NotEmpty(t, out)
}

func TestPackVertexBitLayout(t *testing.T) {
	packed := PackVertex(3, 7, 1, 1, 0, 5, 200, 6)
	assert.Equal(t, uint32(3), packed&31)
	assert.Equal(t, uint32(7), (packed>>5)&31)
	assert.Equal(t, uint32(1), (packed>>10)&31)
	assert.Equal(t, uint32(1), (packed>>15)&1)
	assert.Equal(t, uint32(0), (packed>>16)&1)
	assert.Equal(t, uint32(5), (packed>>17)&7)
	assert.Equal(t, uint32(200), (packed>>20)&255)
	assert.Equal(t, uint32(6), (packed>>28)&7)
}
