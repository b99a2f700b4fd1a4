// Package terrain implements the terrain kernel: it fills one chunk slot's
// worth of voxel words from a deterministic height field plus a
// structure-of-arrays table of block bands, generalizing the reference
// renderer's hardcoded sine-heightmap fillChunk (cmd/voxels/main.go) into a
// data-driven generator. Height-field math is done in float32 via
// chewxy/math32 rather than the standard library's float64 math package,
// matching the precision the GPU-resident kernels operate at elsewhere in
// the pipeline.
package terrain

import (
	"github.com/chewxy/math32"

	"github.com/noahsabaj/voxelcore/pkg/alloc"
	"github.com/noahsabaj/voxelcore/pkg/morton"
	"github.com/noahsabaj/voxelcore/pkg/registry"
	"github.com/noahsabaj/voxelcore/pkg/worldbuf"
)

// Bands is the structure-of-arrays table describing which block occupies
// which depth range below the surface, with an optional probabilistic
// override (e.g. ore veins) layered on top of the base fill. Every slice
// must have the same length; entry i describes one band.
type Bands struct {
	BlockIDs        []registry.BlockID
	MinDepth        []int32 // inclusive, 0 = surface voxel
	MaxDepth        []int32 // inclusive
	Probability     []float32
	NoiseThresholds []float32
}

// Params configures one terrain kernel instance.
type Params struct {
	Seed      int64
	ChunkSize int
	Bands     Bands
	SeaLevel  int32
	WaterID   registry.BlockID
}

// Kernel generates chunk contents on demand. It holds no per-chunk state
// and is safe for concurrent use by multiple worker-pool goroutines.
type Kernel struct {
	p Params
}

// New builds a Kernel from the given parameters.
func New(p Params) *Kernel {
	return &Kernel{p: p}
}

// Generate produces exactly ChunkSize^3 voxel words for the chunk at coord,
// in Morton order, ready for worldbuf.Buffer.Upload.
func (k *Kernel) Generate(coord alloc.ChunkCoord) []worldbuf.VoxelWord {
	size := k.p.ChunkSize
	out := make([]worldbuf.VoxelWord, size*size*size)
	idx := func(x, y, z int) int {
		return int(morton.Encode(uint32(x), uint32(y), uint32(z)))
	}

	for x := 0; x < size; x++ {
		worldX := coord.X*int32(size) + int32(x)
		for z := 0; z < size; z++ {
			worldZ := coord.Z*int32(size) + int32(z)
			height := k.heightAt(worldX, worldZ)

			for y := 0; y < size; y++ {
				worldY := coord.Y*int32(size) + int32(y)

				var id registry.BlockID
				switch {
				case worldY < height:
					depth := height - 1 - worldY
					id = k.bandAt(worldX, worldY, worldZ, depth)
				case worldY < k.p.SeaLevel:
					id = k.p.WaterID
				default:
					id = registry.Air
				}

				out[idx(x, y, z)] = worldbuf.PackVoxel(id, 0)
			}
		}
	}

	return out
}

// heightAt evaluates the deterministic surface height field at a world
// column, directly generalizing the reference renderer's sine/cosine
// heightmap to float32 math.
func (k *Kernel) heightAt(worldX, worldZ int32) int32 {
	fx := float32(worldX) / 5.0
	fz := float32(worldZ) / 5.0
	h := math32.Sin(fx)*3 + math32.Cos(fz)*3 + 8
	height := int32(h)
	if height < 0 {
		height = 0
	}
	if height >= int32(k.p.ChunkSize) {
		height = int32(k.p.ChunkSize) - 1
	}
	return height
}

// bandAt resolves the base block for a depth below the surface, then
// layers in any probabilistic band (e.g. ore) whose depth range also
// matches at this position.
func (k *Kernel) bandAt(worldX, worldY, worldZ, depth int32) registry.BlockID {
	base := registry.Air
	for i := range k.p.Bands.BlockIDs {
		if depth < k.p.Bands.MinDepth[i] || depth > k.p.Bands.MaxDepth[i] {
			continue
		}
		prob := k.p.Bands.Probability[i]
		if prob <= 0 {
			base = k.p.Bands.BlockIDs[i]
			continue
		}
		// Probabilistic bands (ore veins, surface decorations) only
		// override the base block at this position when two independent
		// deterministic noise draws both clear their thresholds.
		roll := noiseUnit(k.p.Seed, worldX, worldY, worldZ, int64(i))
		texture := noiseUnit(k.p.Seed, worldX, worldY, worldZ, int64(i)+1000)
		if roll < prob && texture >= k.p.Bands.NoiseThresholds[i] {
			return k.p.Bands.BlockIDs[i]
		}
	}
	return base
}

// noiseUnit is a deterministic hash-based noise source in [0,1), standing
// in for a real gradient-noise function: it gives reproducible-but-varied
// results per coordinate without depending on global PRNG state, which
// would make terrain generation order-dependent.
func noiseUnit(seed int64, x, y, z, salt int64) float32 {
	h := uint64(seed) ^ uint64(salt)*0x9E3779B97F4A7C15
	h ^= uint64(uint32(x)) * 0xBF58476D1CE4E5B9
	h ^= uint64(uint32(y)) * 0x94D049BB133111EB
	h ^= uint64(uint32(z)) * 0xD6E8FEB86659FD93
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return float32(h%1_000_000) / 1_000_000.0
}
