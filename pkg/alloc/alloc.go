// Package alloc implements the slot allocator and page table: the mapping
// from sparse chunk coordinates onto a bounded set of N world-buffer slots,
// with distance-and-recency eviction. It generalizes the reference
// renderer's distance-threshold chunk eviction (pkg/game/chunk_manager.go's
// RemoveDistantChunks) from an unbounded Go map into a fixed-capacity
// slot table, and its free-slot bookkeeping follows the tail/free-list
// allocator shape used elsewhere in the example stack for GPU resource
// slabs.
package alloc

import (
	"errors"
	"fmt"
)

// ErrBackpressure is returned by Acquire when every slot is occupied by
// in-flight GPU work and none can be evicted this frame.
var ErrBackpressure = errors.New("alloc: no free slot, all occupied slots are in-flight")

// ChunkCoord identifies a chunk's position in the (unbounded) chunk grid.
type ChunkCoord struct {
	X, Y, Z int32
}

func sq(v int64) int64 { return v * v }

func distSq(a, b ChunkCoord) int64 {
	return sq(int64(a.X-b.X)) + sq(int64(a.Y-b.Y)) + sq(int64(a.Z-b.Z))
}

type slotState int

const (
	stateFree slotState = iota
	stateAllocated
)

type slotInfo struct {
	state            slotState
	coord            ChunkCoord
	lastTouchedFrame uint64
	inFlight         bool
}

// Allocator owns the slot table and the coordinate->slot page table. It is
// not safe for concurrent use without external synchronization, matching
// the orchestrator's single-owner-per-frame-stage discipline.
type Allocator struct {
	slots        []slotInfo
	pageTable    map[ChunkCoord]int
	freeList     []int
	pendingEvict []int
	viewer       ChunkCoord
	frame        uint64
}

// New builds an Allocator with N empty slots.
func New(slotCount int) *Allocator {
	a := &Allocator{
		slots:     make([]slotInfo, slotCount),
		pageTable: make(map[ChunkCoord]int, slotCount),
		freeList:  make([]int, slotCount),
	}
	for i := range a.freeList {
		a.freeList[i] = slotCount - 1 - i
	}
	return a
}

// SlotCount returns N.
func (a *Allocator) SlotCount() int { return len(a.slots) }

// SetViewer updates the reference point eviction priority is computed
// against.
func (a *Allocator) SetViewer(c ChunkCoord) { a.viewer = c }

// SetFrame advances the allocator's notion of "now" for recency tracking.
func (a *Allocator) SetFrame(frame uint64) { a.frame = frame }

// Lookup resolves an already-allocated coordinate to its slot.
func (a *Allocator) Lookup(c ChunkCoord) (int, bool) {
	slot, ok := a.pageTable[c]
	return slot, ok
}

// Acquire returns the slot for c, allocating (and if necessary evicting)
// one if c is not already resident. Touch is implied.
func (a *Allocator) Acquire(c ChunkCoord) (int, error) {
	if slot, ok := a.pageTable[c]; ok {
		a.Touch(slot)
		return slot, nil
	}

	slot, err := a.obtainFreeSlot()
	if err != nil {
		return 0, err
	}

	a.slots[slot] = slotInfo{state: stateAllocated, coord: c, lastTouchedFrame: a.frame}
	a.pageTable[c] = slot
	return slot, nil
}

func (a *Allocator) obtainFreeSlot() (int, error) {
	if n := len(a.freeList); n > 0 {
		slot := a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		return slot, nil
	}
	return a.evictOne()
}

// evictOne picks the allocated, not-in-flight slot with lowest priority
// (farthest from the viewer, then least recently touched) and frees it.
// Slots with in-flight GPU work are never picked directly; Acquire fails
// with ErrBackpressure if every slot is in-flight.
func (a *Allocator) evictOne() (int, error) {
	best := -1
	var bestDist int64 = -1
	var bestTouched uint64

	for i, s := range a.slots {
		if s.state != stateAllocated || s.inFlight {
			continue
		}
		d := distSq(s.coord, a.viewer)
		if best == -1 || d > bestDist || (d == bestDist && s.lastTouchedFrame < bestTouched) {
			best = i
			bestDist = d
			bestTouched = s.lastTouchedFrame
		}
	}

	if best == -1 {
		return 0, ErrBackpressure
	}

	delete(a.pageTable, a.slots[best].coord)
	a.slots[best] = slotInfo{}
	return best, nil
}

// Touch refreshes a slot's recency stamp to the current frame.
func (a *Allocator) Touch(slot int) {
	a.checkSlot(slot)
	a.slots[slot].lastTouchedFrame = a.frame
}

// MarkInFlight flags whether slot is referenced by an outstanding GPU
// command; eviction skips in-flight slots.
func (a *Allocator) MarkInFlight(slot int, v bool) {
	a.checkSlot(slot)
	a.slots[slot].inFlight = v
	if !v {
		a.drainPendingFor(slot)
	}
}

// drainPendingFor finalizes a deferred eviction once its in-flight work
// has retired.
func (a *Allocator) drainPendingFor(slot int) {
	for i, s := range a.pendingEvict {
		if s == slot {
			a.pendingEvict = append(a.pendingEvict[:i], a.pendingEvict[i+1:]...)
			a.freeSlotNow(slot)
			return
		}
	}
}

func (a *Allocator) freeSlotNow(slot int) {
	if a.slots[slot].state == stateAllocated {
		delete(a.pageTable, a.slots[slot].coord)
	}
	a.slots[slot] = slotInfo{}
	a.freeList = append(a.freeList, slot)
}

// Release voluntarily frees slot's coordinate, e.g. when a chunk leaves
// the load radius outright rather than being evicted for reuse. If the
// slot has in-flight GPU work, the free is deferred until MarkInFlight(slot,
// false) is called.
func (a *Allocator) Release(c ChunkCoord) {
	slot, ok := a.pageTable[c]
	if !ok {
		return
	}
	if a.slots[slot].inFlight {
		a.pendingEvict = append(a.pendingEvict, slot)
		return
	}
	a.freeSlotNow(slot)
}

// Allocated reports whether slot currently holds a resident chunk.
func (a *Allocator) Allocated(slot int) bool {
	a.checkSlot(slot)
	return a.slots[slot].state == stateAllocated
}

// Coord returns the chunk coordinate resident in slot. Panics if the slot
// is free, since callers must check Allocated first.
func (a *Allocator) Coord(slot int) ChunkCoord {
	a.checkSlot(slot)
	if a.slots[slot].state != stateAllocated {
		panic(fmt.Sprintf("alloc: slot %d is free", slot))
	}
	return a.slots[slot].coord
}

// PendingEvictions returns the number of slots whose eviction is deferred
// behind in-flight GPU work, for stats reporting.
func (a *Allocator) PendingEvictions() int { return len(a.pendingEvict) }

// ResidentCount returns the number of occupied slots.
func (a *Allocator) ResidentCount() int {
	n := 0
	for _, s := range a.slots {
		if s.state == stateAllocated {
			n++
		}
	}
	return n
}

func (a *Allocator) checkSlot(slot int) {
	if slot < 0 || slot >= len(a.slots) {
		panic(fmt.Sprintf("alloc: slot %d out of range [0,%d)", slot, len(a.slots)))
	}
}
