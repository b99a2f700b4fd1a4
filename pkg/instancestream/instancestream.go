// Package instancestream implements the triple-buffered per-chunk instance
// stream: the orchestrator writes only the instance records whose slot
// metadata changed since the last write into that frame's buffer, so no
// CPU/GPU synchronization stall is needed to reuse a buffer still being
// read by the GPU. This generalizes the reference renderer's
// internal/openglhelper.TripleBuffer from raw vertex bytes to typed
// instance records.
package instancestream

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/noahsabaj/voxelcore/pkg/meshpool"
)

// Record is one chunk's worth of per-instance data: its world transform,
// mesh range, material/palette index, and bounding sphere.
type Record struct {
	Transform      mgl32.Mat4
	Mesh           meshpool.Range
	Material       uint32
	BoundingCenter mgl32.Vec3
	BoundingRadius float32
}

// Stream owns NumBuffers backing slices (one per frame-in-flight) and
// tracks, per buffer, which slot indices still need their record copied in
// before that buffer can be bound for a draw.
type Stream struct {
	numBuffers int
	current    int
	capacity   int
	buffers    [][]Record
	pending    []map[int]bool // per buffer, slots awaiting a refreshed copy
	latest     map[int]Record // authoritative latest value per slot
}

// New builds a Stream with the given per-buffer slot capacity and number
// of frames-in-flight (typically 2 or 3). backings supplies the storage
// for each buffer; engine.New and the tests both pass plain
// make([]Record, capacity) slices, not views over mapped GPU memory.
func New(capacity int, backings [][]Record) *Stream {
	numBuffers := len(backings)
	for i, b := range backings {
		if len(b) != capacity {
			panic(fmt.Sprintf("instancestream: backing %d has length %d, want %d", i, len(b), capacity))
		}
	}
	pending := make([]map[int]bool, numBuffers)
	for i := range pending {
		pending[i] = make(map[int]bool)
	}
	return &Stream{
		numBuffers: numBuffers,
		capacity:   capacity,
		buffers:    backings,
		pending:    pending,
		latest:     make(map[int]Record),
	}
}

// NumBuffers returns the frame-in-flight count.
func (s *Stream) NumBuffers() int { return s.numBuffers }

// MarkChanged records that slot's metadata changed and must be recopied
// into every buffer before that buffer is next bound.
func (s *Stream) MarkChanged(slot int, rec Record) {
	s.latest[slot] = rec
	for i := range s.pending {
		s.pending[i][slot] = true
	}
}

// Refresh copies every slot pending for the current buffer from the
// latest-known record, then clears that buffer's pending set. It returns
// the number of records copied, for stats reporting.
func (s *Stream) Refresh() int {
	pending := s.pending[s.current]
	buf := s.buffers[s.current]
	n := 0
	for slot := range pending {
		if slot < 0 || slot >= s.capacity {
			panic(fmt.Sprintf("instancestream: slot %d out of range [0,%d)", slot, s.capacity))
		}
		buf[slot] = s.latest[slot]
		n++
	}
	s.pending[s.current] = make(map[int]bool)
	return n
}

// Current returns the backing slice for the buffer currently bound for
// rendering.
func (s *Stream) Current() []Record {
	return s.buffers[s.current]
}

// CurrentIndex returns which of the NumBuffers backing slices is active.
func (s *Stream) CurrentIndex() int { return s.current }

// Advance moves to the next buffer in round-robin order. The caller is
// responsible for having waited on that buffer's retirement fence (or
// equivalent) before Advance makes it current again.
func (s *Stream) Advance() {
	s.current = (s.current + 1) % s.numBuffers
}
