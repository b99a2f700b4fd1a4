// Package mesher implements the mesh kernel: greedy per-face-direction
// quad merging over a chunk's voxel words, emitting the same packed vertex
// encoding the reference renderer used (pkg/voxel/mesh.go's PackVertex and
// GreedyMeshChunk), generalized from a self-contained [][][]BlockType array
// to an accessor function so faces on a chunk boundary can consult the
// already-resident neighbor slot instead of always treating the edge as
// exposed.
package mesher

import (
	"github.com/noahsabaj/voxelcore/pkg/registry"
	"github.com/noahsabaj/voxelcore/pkg/worldbuf"
)

// Direction names the six face orientations, packed into a vertex's 3-bit
// orientation field in the same order the reference renderer used.
type Direction int

const (
	North Direction = iota // -Z
	South                  // +Z
	East                   // +X
	West                   // -X
	Up                     // +Y
	Down                   // -Y
)

// Accessor reads the voxel at a chunk-local coordinate. Coordinates one
// step outside [0,size) refer to the adjacent chunk across that face; the
// caller resolves those from the neighbor's resident slot (or reports Air
// if no neighbor is loaded, so the boundary face renders rather than being
// incorrectly culled against an unknown chunk).
type Accessor func(x, y, z int) worldbuf.VoxelWord

// PackVertex encodes a single quad corner: x, y, z are 5-bit local
// coordinates (0-31), u, v select the texture-coordinate corner, o is the
// 3-bit face orientation, t is an 8-bit material index, and ao is a 3-bit
// ambient-occlusion level. The bit layout is fixed: low-to-high,
// x(5) y(5) z(5) u(1) v(1) o(3) t(8) ao(3).
func PackVertex(x, y, z, u, v, o, t, ao int) uint32 {
	return uint32(
		((x & 31) << 0) |
			((y & 31) << 5) |
			((z & 31) << 10) |
			((u & 1) << 15) |
			((v & 1) << 16) |
			((o & 7) << 17) |
			((t & 255) << 20) |
			((ao & 7) << 28))
}

// Kernel runs greedy meshing for one chunk slot at a time. It holds no
// per-slot state, so a single Kernel is safe to invoke concurrently from a
// bounded worker pool as long as each call's Accessor is independent.
type Kernel struct {
	reg *registry.Registry
}

// New builds a Kernel resolving block opacity/solidity from reg.
func New(reg *registry.Registry) *Kernel {
	return &Kernel{reg: reg}
}

// Mesh runs greedy meshing over a size^3 chunk and returns packed vertices
// in groups of four (one quad per group, CCW winding, consistent with a
// triangle-strip-free indexed-quad renderer). Output order is a
// deterministic function of the input voxels: the same voxel contents
// always produce the same vertex sequence.
func (k *Kernel) Mesh(size int, access Accessor) []uint32 {
	out := make([]uint32, 0, size*size*6)
	visited := make([]bool, size*size*size)
	idx := func(x, y, z int) int { return x + size*(y+size*z) }

	for dim := 0; dim < 6; dim++ {
		dir := Direction(dim)
		for i := range visited {
			visited[i] = false
		}

		// Chunks are cubic, so every axis has the same extent; only the
		// direction determines which world axis u, v and w address.
		maskU, maskV, maskW := size, size, size

		wStart, wEnd, wStep := 0, maskW, 1
		if dir == South || dir == East || dir == Up {
			wStart, wEnd, wStep = maskW-1, -1, -1
		}

		for w0 := wStart; w0 != wEnd; w0 += wStep {
			mask := make([]worldbuf.VoxelWord, maskU*maskV)

			for v0 := 0; v0 < maskV; v0++ {
				for u0 := 0; u0 < maskU; u0++ {
					x, y, z := axesToXYZ(dir, u0, v0, w0)
					if visited[idx(x, y, z)] {
						continue
					}
					cur := access(x, y, z)
					blockID := cur.BlockID()
					if blockID == registry.Air {
						continue
					}
					// An id the registry never saw is treated as air: it
					// contributes no geometry rather than failing the chunk.
					if _, ok := k.reg.TryProperties(blockID); !ok {
						continue
					}

					nx, ny, nz := x, y, z
					switch dir {
					case North:
						nz--
					case South:
						nz++
					case East:
						nx++
					case West:
						nx--
					case Up:
						ny++
					case Down:
						ny--
					}

					// access() resolves out-of-bounds coordinates against the
					// neighboring chunk (or Air if none is resident) itself,
					// so no separate bounds check is needed here.
					neighborID := access(nx, ny, nz).BlockID()

					if k.faceVisible(blockID, neighborID) {
						mask[u0*maskV+v0] = cur
					}
				}
			}

			for v0 := 0; v0 < maskV; v0++ {
				for u0 := 0; u0 < maskU; u0++ {
					cell := mask[u0*maskV+v0]
					blockID := cell.BlockID()
					if blockID == registry.Air {
						continue
					}
					x, y, z := axesToXYZ(dir, u0, v0, w0)
					if visited[idx(x, y, z)] {
						continue
					}

					width := 1
					for u1 := u0 + 1; u1 < maskU; u1++ {
						nx, ny, nz := axesToXYZ(dir, u1, v0, w0)
						if mask[u1*maskV+v0].BlockID() != blockID || visited[idx(nx, ny, nz)] {
							break
						}
						width++
					}

					height := 1
					canExtend := true
					for v1 := v0 + 1; v1 < maskV && canExtend; v1++ {
						for u1 := u0; u1 < u0+width; u1++ {
							nx, ny, nz := axesToXYZ(dir, u1, v1, w0)
							if mask[u1*maskV+v1].BlockID() != blockID || visited[idx(nx, ny, nz)] {
								canExtend = false
								break
							}
						}
						if canExtend {
							height++
						}
					}

					for v1 := v0; v1 < v0+height; v1++ {
						for u1 := u0; u1 < u0+width; u1++ {
							x1, y1, z1 := axesToXYZ(dir, u1, v1, w0)
							visited[idx(x1, y1, z1)] = true
						}
					}

					out = append(out, k.emitQuad(dir, u0, v0, w0, width, height, blockID, cell.Light())...)
				}
			}
		}
	}

	return out
}

func (k *Kernel) faceVisible(blockID, neighborID registry.BlockID) bool {
	if neighborID == registry.Air {
		return true
	}
	if neighborID == blockID {
		return false
	}
	// An id the registry never saw (stale palette, corrupt upload) is
	// treated as non-opaque rather than failing the whole chunk.
	props, ok := k.reg.TryProperties(neighborID)
	if !ok {
		return true
	}
	return props.Transparent
}

func axesToXYZ(dir Direction, u0, v0, w0 int) (x, y, z int) {
	switch dir {
	case North, South:
		return u0, v0, w0
	case East, West:
		return w0, v0, u0
	default: // Up, Down
		return u0, w0, v0
	}
}

// emitQuad produces the four packed corner vertices of one merged quad,
// matching the reference renderer's per-direction corner formulas exactly
// so the winding order and UV assignment are unchanged.
func (k *Kernel) emitQuad(dir Direction, u0, v0, w0, width, height int, blockID registry.BlockID, light uint8) []uint32 {
	orientation := int(dir)
	textureID := int(blockID)
	if textureID > 255 {
		textureID = 255
	}
	ao := int(light) // reuses the voxel's light level as the AO slot's seed value

	var x0, y0, z0, x1, y1, z1, x2, y2, z2, x3, y3, z3 int
	switch dir {
	case North:
		x0, y0, z0 = u0, v0, w0
		x1, y1, z1 = u0+width, v0, w0
		x2, y2, z2 = u0+width, v0+height, w0
		x3, y3, z3 = u0, v0+height, w0
	case South:
		x0, y0, z0 = u0+width, v0, w0+1
		x1, y1, z1 = u0, v0, w0+1
		x2, y2, z2 = u0, v0+height, w0+1
		x3, y3, z3 = u0+width, v0+height, w0+1
	case East:
		x0, y0, z0 = w0+1, v0, u0+width
		x1, y1, z1 = w0+1, v0, u0
		x2, y2, z2 = w0+1, v0+height, u0
		x3, y3, z3 = w0+1, v0+height, u0+width
	case West:
		x0, y0, z0 = w0, v0, u0
		x1, y1, z1 = w0, v0, u0+width
		x2, y2, z2 = w0, v0+height, u0+width
		x3, y3, z3 = w0, v0+height, u0
	case Up:
		x0, y0, z0 = u0, w0+1, v0+height
		x1, y1, z1 = u0+width, w0+1, v0+height
		x2, y2, z2 = u0+width, w0+1, v0
		x3, y3, z3 = u0, w0+1, v0
	case Down:
		x0, y0, z0 = u0, w0, v0
		x1, y1, z1 = u0+width, w0, v0
		x2, y2, z2 = u0+width, w0, v0+height
		x3, y3, z3 = u0, w0, v0+height
	}

	mod := func(n int) int { return n % 32 }
	return []uint32{
		PackVertex(mod(x0), mod(y0), mod(z0), 0, 0, orientation, textureID, ao),
		PackVertex(mod(x1), mod(y1), mod(z1), 1, 0, orientation, textureID, ao),
		PackVertex(mod(x2), mod(y2), mod(z2), 1, 1, orientation, textureID, ao),
		PackVertex(mod(x3), mod(y3), mod(z3), 0, 1, orientation, textureID, ao),
	}
}
