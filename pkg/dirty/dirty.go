// Package dirty implements the dirty-region tracker: a packed bitmap per
// chunk slot recording which K^3 sub-regions changed since the slot's mesh
// was last rebuilt, so the mesh kernel remeshes work proportional to edits
// rather than to world size. The packed-word/popcount bitmap idiom is
// grounded on the sparse brick-map representation used elsewhere in the
// reference stack for per-cell occupancy tracking.
package dirty

import (
	"fmt"
	"math/bits"
)

// Face names the six chunk-boundary directions, used to flag a neighboring
// chunk's mesh as stale when an edit touches a boundary voxel.
type Face int

const (
	FaceNorth Face = iota
	FaceSouth
	FaceEast
	FaceWest
	FaceUp
	FaceDown
	faceCount
)

// Tracker holds one K^3-bit region bitmap and one 6-bit neighbor-face flag
// set per slot.
type Tracker struct {
	k            int
	wordsPerSlot int
	regionBits   []uint64 // slotCount * wordsPerSlot, packed region bits
	neighborBits []uint8  // slotCount, low 6 bits = faceCount flags
	slotCount    int
}

// New builds a Tracker for slotCount slots, each subdivided into a k*k*k
// grid of sub-regions. Neither New nor engine.New checks that k divides
// the chunk size; MarkVoxel clamps region indices into [0,k).
func New(slotCount, k int) *Tracker {
	regions := k * k * k
	wordsPerSlot := (regions + 63) / 64
	return &Tracker{
		k:            k,
		wordsPerSlot: wordsPerSlot,
		regionBits:   make([]uint64, slotCount*wordsPerSlot),
		neighborBits: make([]uint8, slotCount),
		slotCount:    slotCount,
	}
}

// K returns the sub-region grid edge length.
func (t *Tracker) K() int { return t.k }

func (t *Tracker) checkSlot(slot int) {
	if slot < 0 || slot >= t.slotCount {
		panic(fmt.Sprintf("dirty: slot %d out of range [0,%d)", slot, t.slotCount))
	}
}

func (t *Tracker) regionIndex(rx, ry, rz int) int {
	return rx + t.k*(ry+t.k*rz)
}

// markRegion sets a single sub-region's bit.
func (t *Tracker) markRegion(slot, regionIdx int) {
	base := slot * t.wordsPerSlot
	word, bit := regionIdx/64, uint(regionIdx%64)
	t.regionBits[base+word] |= 1 << bit
}

// MarkVoxel marks the sub-region containing local voxel (x,y,z) within a
// chunk of the given edge length as dirty, and flags any chunk-boundary
// faces the voxel touches.
func (t *Tracker) MarkVoxel(slot, x, y, z, chunkSize int) {
	t.checkSlot(slot)
	regionSize := chunkSize / t.k
	if regionSize < 1 {
		regionSize = 1
	}
	rx, ry, rz := x/regionSize, y/regionSize, z/regionSize
	if rx >= t.k {
		rx = t.k - 1
	}
	if ry >= t.k {
		ry = t.k - 1
	}
	if rz >= t.k {
		rz = t.k - 1
	}
	t.markRegion(slot, t.regionIndex(rx, ry, rz))

	if x == 0 {
		t.SetNeighborFace(slot, FaceWest, true)
	}
	if x == chunkSize-1 {
		t.SetNeighborFace(slot, FaceEast, true)
	}
	if y == 0 {
		t.SetNeighborFace(slot, FaceDown, true)
	}
	if y == chunkSize-1 {
		t.SetNeighborFace(slot, FaceUp, true)
	}
	if z == 0 {
		t.SetNeighborFace(slot, FaceSouth, true)
	}
	if z == chunkSize-1 {
		t.SetNeighborFace(slot, FaceNorth, true)
	}
}

// MarkAll marks every sub-region of slot dirty, e.g. after a fresh terrain
// upload or a full-chunk edit.
func (t *Tracker) MarkAll(slot int) {
	t.checkSlot(slot)
	base := slot * t.wordsPerSlot
	for i := 0; i < t.wordsPerSlot; i++ {
		t.regionBits[base+i] = ^uint64(0)
	}
	if rem := (t.k * t.k * t.k) % 64; rem != 0 {
		t.regionBits[base+t.wordsPerSlot-1] = (1 << uint(rem)) - 1
	}
}

// Clear resets slot's bitmap and neighbor flags, called once its mesh has
// been rebuilt to reflect the current voxel state.
func (t *Tracker) Clear(slot int) {
	t.checkSlot(slot)
	base := slot * t.wordsPerSlot
	for i := 0; i < t.wordsPerSlot; i++ {
		t.regionBits[base+i] = 0
	}
	t.neighborBits[slot] = 0
}

// Dirty reports whether slot has any dirty sub-region or neighbor flag.
func (t *Tracker) Dirty(slot int) bool {
	t.checkSlot(slot)
	base := slot * t.wordsPerSlot
	for i := 0; i < t.wordsPerSlot; i++ {
		if t.regionBits[base+i] != 0 {
			return true
		}
	}
	return t.neighborBits[slot] != 0
}

// Count returns the number of dirty sub-regions in slot (excludes neighbor
// face flags), useful for prioritizing partial-rebuild candidates.
func (t *Tracker) Count(slot int) int {
	t.checkSlot(slot)
	base := slot * t.wordsPerSlot
	n := 0
	for i := 0; i < t.wordsPerSlot; i++ {
		n += bits.OnesCount64(t.regionBits[base+i])
	}
	return n
}

// SetNeighborFace sets or clears the flag recording that the chunk adjacent
// to slot across the given face needs remeshing because a boundary voxel
// changed on this side.
func (t *Tracker) SetNeighborFace(slot int, f Face, v bool) {
	t.checkSlot(slot)
	if v {
		t.neighborBits[slot] |= 1 << uint(f)
	} else {
		t.neighborBits[slot] &^= 1 << uint(f)
	}
}

// NeighborFace reports whether f is flagged dirty for slot.
func (t *Tracker) NeighborFace(slot int, f Face) bool {
	t.checkSlot(slot)
	return t.neighborBits[slot]&(1<<uint(f)) != 0
}
