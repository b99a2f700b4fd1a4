// Package worldbuf implements the GPU-resident world buffer: a single large
// storage buffer holding N fixed-size chunk slots, each a dense array of
// packed voxel words in Morton order. It generalizes the reference
// renderer's persistent-mapped vertex buffer (internal/openglhelper's
// BufferObject/TripleBuffer) from vertex storage to voxel storage: the
// buffer is exposed to callers as a plain Go slice supplied by the caller.
// engine.New supplies an ordinary heap slice; the world buffer is not
// mapped to GPU memory.
package worldbuf

import (
	"errors"
	"fmt"

	"github.com/noahsabaj/voxelcore/pkg/dirty"
	"github.com/noahsabaj/voxelcore/pkg/morton"
	"github.com/noahsabaj/voxelcore/pkg/registry"
)

// ErrCorruptUpload is returned by Upload when the supplied voxel slice
// does not have exactly S^3 elements — a data-integrity condition, not a
// programmer error, since it can be triggered by a malformed save file or
// a mismatched chunk size, not only by a caller bug.
var ErrCorruptUpload = errors.New("worldbuf: upload length does not match chunk volume")

// VoxelWord is the 32-bit cell stored per voxel: low 16 bits are the block
// id, high 16 bits are auxiliary state. The bit layout is fixed across any
// CPU and GPU consumer of the buffer.
type VoxelWord uint32

// PackVoxel builds a VoxelWord from a block id and a 4-bit light level
// (0-15). Remaining aux bits are reserved and left zero.
func PackVoxel(id registry.BlockID, light uint8) VoxelWord {
	return VoxelWord(uint32(id) | uint32(light&0xF)<<16)
}

// BlockID extracts the low 16 bits.
func (v VoxelWord) BlockID() registry.BlockID { return registry.BlockID(v & 0xFFFF) }

// Light extracts the 4-bit light-level field from the aux bits.
func (v VoxelWord) Light() uint8 { return uint8((v >> 16) & 0xF) }

// WithLight returns v with its light field replaced.
func (v VoxelWord) WithLight(light uint8) VoxelWord {
	return VoxelWord(uint32(v)&^(0xF<<16) | uint32(light&0xF)<<16)
}

// Buffer is the GPU-resident world buffer: N slots of S^3 voxel words each,
// addressed by slot index and Morton-encoded local coordinate.
type Buffer struct {
	slotCount  int
	chunkSize  int
	wordsPerSlot int
	words      []VoxelWord
	tracker    *dirty.Tracker
}

// New constructs a Buffer over backing, a caller-supplied slice of exactly
// slotCount*chunkSize^3 words. Both engine.New and the tests pass a plain
// make([]VoxelWord, ...); no caller passes a view over mapped GPU memory.
func New(slotCount, chunkSize int, backing []VoxelWord, tracker *dirty.Tracker) *Buffer {
	wordsPerSlot := chunkSize * chunkSize * chunkSize
	if len(backing) != slotCount*wordsPerSlot {
		panic(fmt.Sprintf("worldbuf: backing length %d does not match slotCount*chunkSize^3 = %d", len(backing), slotCount*wordsPerSlot))
	}
	return &Buffer{
		slotCount:    slotCount,
		chunkSize:    chunkSize,
		wordsPerSlot: wordsPerSlot,
		words:        backing,
		tracker:      tracker,
	}
}

// ChunkSize returns S.
func (b *Buffer) ChunkSize() int { return b.chunkSize }

// SlotCount returns N.
func (b *Buffer) SlotCount() int { return b.slotCount }

func (b *Buffer) slotRange(slot int) []VoxelWord {
	if slot < 0 || slot >= b.slotCount {
		panic(fmt.Sprintf("worldbuf: slot %d out of range [0,%d)", slot, b.slotCount))
	}
	start := slot * b.wordsPerSlot
	return b.words[start : start+b.wordsPerSlot]
}

// Upload replaces the full contents of slot with voxels, which must have
// exactly S^3 elements in Morton order, and marks the entire slot dirty.
// A length mismatch is a data-integrity condition (a malformed save file,
// a chunk-size mismatch) rather than a bug to crash on, so it is reported
// as ErrCorruptUpload and the buffer is left unchanged.
func (b *Buffer) Upload(slot int, voxels []VoxelWord) error {
	dst := b.slotRange(slot)
	if len(voxels) != len(dst) {
		return fmt.Errorf("%w: got %d words, want %d", ErrCorruptUpload, len(voxels), len(dst))
	}
	copy(dst, voxels)
	if b.tracker != nil {
		b.tracker.MarkAll(slot)
	}
	return nil
}

// Get reads a single voxel at local coordinate (x,y,z) within slot.
func (b *Buffer) Get(slot int, x, y, z int) VoxelWord {
	s := b.slotRange(slot)
	idx := morton.Encode(uint32(x), uint32(y), uint32(z))
	return s[idx]
}

// Set writes a single voxel at local coordinate (x,y,z) within slot and
// marks its dirty sub-region (and, if it lies on a face, this slot's
// neighbor-face flag for that face). Set does not mark the neighboring
// chunk's slot; the orchestrator does that when it applies an edit.
func (b *Buffer) Set(slot int, x, y, z int, v VoxelWord) {
	s := b.slotRange(slot)
	idx := morton.Encode(uint32(x), uint32(y), uint32(z))
	s[idx] = v
	if b.tracker != nil {
		b.tracker.MarkVoxel(slot, x, y, z, b.chunkSize)
	}
}

// Readback copies out the full S^3 voxel words of slot, e.g. for collision
// queries or save/inspection tooling.
func (b *Buffer) Readback(slot int) []VoxelWord {
	s := b.slotRange(slot)
	out := make([]VoxelWord, len(s))
	copy(out, s)
	return out
}
