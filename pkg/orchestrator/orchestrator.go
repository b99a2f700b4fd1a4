// Package orchestrator implements the frame orchestrator: the single
// control-flow loop that drains edit/chunk-request queues, dispatches the
// terrain and mesh kernels, refreshes the instance stream, runs the
// culling kernel, and submits one multi-draw-indirect call per frame. It
// generalizes the reference renderer's single chunk-worker goroutine
// (pkg/game/chunk_manager.go's chunkWorker) into a bounded worker pool
// built on golang.org/x/sync/errgroup, fanning out terrain and mesh work
// within each frame's step while keeping the seven-step sequence itself
// strictly ordered.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"

	"github.com/noahsabaj/voxelcore/pkg/alloc"
	"github.com/noahsabaj/voxelcore/pkg/cull"
	"github.com/noahsabaj/voxelcore/pkg/dirty"
	"github.com/noahsabaj/voxelcore/pkg/instancestream"
	"github.com/noahsabaj/voxelcore/pkg/logx"
	"github.com/noahsabaj/voxelcore/pkg/mesher"
	"github.com/noahsabaj/voxelcore/pkg/meshpool"
	"github.com/noahsabaj/voxelcore/pkg/registry"
	"github.com/noahsabaj/voxelcore/pkg/terrain"
	"github.com/noahsabaj/voxelcore/pkg/worldbuf"
)

// ErrTimeout marks a chunk request dropped because its deadline passed
// before the allocator could service it.
var ErrTimeout = errors.New("orchestrator: request deadline exceeded")

// ChunkRequest is one pending allocation request from an external
// collaborator.
type ChunkRequest struct {
	Coord    alloc.ChunkCoord
	Priority int
	Deadline time.Time
}

// Edit is a pending world-edit event.
type Edit struct {
	Coord alloc.ChunkCoord
	Local [3]int
	Block registry.BlockID
	Light uint8
}

// RenderBackend is the one GPU-facing seam the orchestrator calls through;
// a real implementation copies mesh vertices into its persistently-mapped
// buffer and issues MultiDrawElementsIndirect (see pkg/render), while
// tests supply a stub that just records calls.
type RenderBackend interface {
	// UploadMesh copies a chunk's freshly built vertices into the GPU
	// buffer at the vertex range the mesh pool reserved for slot.
	UploadMesh(slot int, vertices []uint32, rng meshpool.Range) error
	// Submit issues the frame's single indirect multi-draw over calls, the
	// culling kernel's output, resolving each call's position data from
	// instances by the slot the culler identified (instances is indexed by
	// slot, not by position in calls).
	Submit(frame uint64, instances []instancestream.Record, calls []cull.DrawCall) error
}

// Config bundles an Orchestrator's fixed parameters.
type Config struct {
	ChunkSize     int
	MeshBudgetMin int
	MeshBudgetMax int
	WorkerLimit   int
	TargetFrame   time.Duration
}

// FrameStats mirrors the spec's stats() operation.
type FrameStats struct {
	FrameTimeMS      float64
	ChunksActive     int
	ChunksDirty      int
	DrawCommands     int
	MeshPoolUsed     uint32
	RetentionInFlight int
	Errors           []error
}

// Orchestrator wires every per-frame component together and runs the
// seven-step sequence in Frame.
type Orchestrator struct {
	cfg Config
	log logx.Logger

	reg     *registry.Registry
	alloc   *alloc.Allocator
	world   *worldbuf.Buffer
	tracker *dirty.Tracker
	pool    *meshpool.Pool
	terrain *terrain.Kernel
	mesher  *mesher.Kernel
	cull    *cull.Kernel
	stream  *instancestream.Stream
	backend RenderBackend

	mu            sync.Mutex
	pendingEdits  []Edit
	pendingReqs   []ChunkRequest
	deferredReqs  []ChunkRequest

	frame      uint64
	budget     int
	avgFrameMS float64
	viewProj   mgl32.Mat4
	viewPos    mgl32.Vec3
	slotCenter map[int]mgl32.Vec3 // per-slot world-space bounding sphere center
	meshFailed map[int]bool

	lastStats FrameStats
}

// New builds an Orchestrator. Every kernel/struct dependency is
// constructed by the caller (typically pkg/engine) so each can be unit
// tested or swapped independently.
func New(
	cfg Config,
	log logx.Logger,
	reg *registry.Registry,
	allocator *alloc.Allocator,
	world *worldbuf.Buffer,
	tracker *dirty.Tracker,
	pool *meshpool.Pool,
	terrainKernel *terrain.Kernel,
	meshKernel *mesher.Kernel,
	cullKernel *cull.Kernel,
	stream *instancestream.Stream,
	backend RenderBackend,
) *Orchestrator {
	if log == nil {
		log = logx.Nop()
	}
	return &Orchestrator{
		cfg:        cfg,
		log:        log,
		reg:        reg,
		alloc:      allocator,
		world:      world,
		tracker:    tracker,
		pool:       pool,
		terrain:    terrainKernel,
		mesher:     meshKernel,
		cull:       cullKernel,
		stream:     stream,
		backend:    backend,
		budget:     cfg.MeshBudgetMin,
		slotCenter: make(map[int]mgl32.Vec3),
		meshFailed: make(map[int]bool),
	}
}

// SubmitEdit queues a world edit; it becomes observable no earlier than
// the frame after the one currently draining its queue (spec §5's ordering
// guarantee).
func (o *Orchestrator) SubmitEdit(e Edit) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pendingEdits = append(o.pendingEdits, e)
}

// SubmitRequest queues a chunk-load request.
func (o *Orchestrator) SubmitRequest(r ChunkRequest) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pendingReqs = append(o.pendingReqs, r)
}

// SetView updates the camera state the culling kernel will use starting
// with the next frame.
func (o *Orchestrator) SetView(viewProj mgl32.Mat4, position mgl32.Vec3) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.viewProj = viewProj
	o.viewPos = position
	o.alloc.SetViewer(alloc.ChunkCoord{
		X: int32(position.X()) / int32(maxInt(o.cfg.ChunkSize, 1)),
		Y: int32(position.Y()) / int32(maxInt(o.cfg.ChunkSize, 1)),
		Z: int32(position.Z()) / int32(maxInt(o.cfg.ChunkSize, 1)),
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Frame runs the seven-step sequence once. It never blocks on chunk
// generation, mesh build, or readback; the only suspension point is the
// bounded wait inside the worker-pool fan-out for this frame's own
// dispatches.
func (o *Orchestrator) Frame(ctx context.Context) error {
	start := time.Now()
	o.frame++
	var frameErrors []error

	// Step 1: drain edits and chunk requests, calling the slot allocator.
	newlyAllocated, err := o.drainQueues()
	if err != nil {
		frameErrors = append(frameErrors, err)
	}

	// Step 2: terrain-kernel dispatch over newly allocated slots.
	if err := o.dispatchTerrain(ctx, newlyAllocated); err != nil {
		frameErrors = append(frameErrors, err)
	}

	// Step 3: mesh-kernel dispatch over dirty slots, bounded by budget.
	meshed, err := o.dispatchMeshing(ctx)
	if err != nil {
		frameErrors = append(frameErrors, err)
	}

	// Step 4: refresh the current instance buffer.
	o.refreshInstances(meshed)

	// Step 5+6: cull and submit a single indirect multi-draw.
	drawCount, err := o.cullAndSubmit()
	if err != nil {
		frameErrors = append(frameErrors, err)
	}

	// Step 7: advance frame index for the instance stream's next buffer.
	o.stream.Advance()

	elapsed := time.Since(start)
	o.updateBudget(elapsed)

	o.lastStats = FrameStats{
		FrameTimeMS:       float64(elapsed.Microseconds()) / 1000.0,
		ChunksActive:      o.alloc.ResidentCount(),
		ChunksDirty:       o.countDirty(),
		DrawCommands:      drawCount,
		MeshPoolUsed:      o.pool.UsedVertices(),
		RetentionInFlight: o.alloc.PendingEvictions(),
		Errors:            frameErrors,
	}

	for _, e := range frameErrors {
		o.log.Warnf("frame %d: %v", o.frame, e)
	}
	return nil
}

// Stats returns the most recently completed frame's statistics.
func (o *Orchestrator) Stats() FrameStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastStats
}

func (o *Orchestrator) drainQueues() ([]int, error) {
	o.mu.Lock()
	edits := o.pendingEdits
	reqs := append(o.deferredReqs, o.pendingReqs...)
	o.pendingEdits = nil
	o.pendingReqs = nil
	o.deferredReqs = nil
	o.mu.Unlock()

	for _, e := range edits {
		slot, ok := o.alloc.Lookup(e.Coord)
		if !ok {
			continue // chunk not resident; edit is silently dropped (it was never loaded)
		}
		o.world.Set(slot, e.Local[0], e.Local[1], e.Local[2], worldbuf.PackVoxel(e.Block, e.Light))
		// A voxel on the chunk boundary also invalidates the resident chunk
		// across each face it touches.
		size := o.cfg.ChunkSize
		for _, d := range [6][3]int{{-1, 0, 0}, {1, 0, 0}, {0, -1, 0}, {0, 1, 0}, {0, 0, -1}, {0, 0, 1}} {
			x, y, z := e.Local[0]+d[0], e.Local[1]+d[1], e.Local[2]+d[2]
			if x >= 0 && x < size && y >= 0 && y < size && z >= 0 && z < size {
				continue
			}
			nc, nx, ny, nz := neighborCoord(e.Coord, size, x, y, z)
			if nslot, ok := o.alloc.Lookup(nc); ok {
				o.tracker.MarkVoxel(nslot, nx, ny, nz, size)
			}
		}
	}

	var newlyAllocated []int
	var firstErr error
	now := time.Now()
	for _, r := range reqs {
		if !r.Deadline.IsZero() && now.After(r.Deadline) {
			o.log.Warnf("dropping chunk request %v: %v", r.Coord, ErrTimeout)
			continue
		}
		if _, ok := o.alloc.Lookup(r.Coord); ok {
			continue
		}
		slot, err := o.alloc.Acquire(r.Coord)
		if err != nil {
			// Resource exhaustion: retry next frame rather than fail.
			o.mu.Lock()
			o.deferredReqs = append(o.deferredReqs, r)
			o.mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		o.alloc.MarkInFlight(slot, true)
		newlyAllocated = append(newlyAllocated, slot)
	}
	return newlyAllocated, firstErr
}

func (o *Orchestrator) dispatchTerrain(ctx context.Context, slots []int) error {
	if len(slots) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	if o.cfg.WorkerLimit > 0 {
		g.SetLimit(o.cfg.WorkerLimit)
	}
	var mu sync.Mutex
	centers := make(map[int]mgl32.Vec3, len(slots))
	for _, slot := range slots {
		slot := slot
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			coord := o.alloc.Coord(slot)
			voxels := o.terrain.Generate(coord)
			if err := o.world.Upload(slot, voxels); err != nil {
				o.log.Warnf("terrain upload for slot %d: %v", slot, err)
				return err
			}
			mu.Lock()
			centers[slot] = chunkCenter(coord, o.cfg.ChunkSize)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	// slotCenter and the allocator are not safe for concurrent mutation, so
	// apply every goroutine's result here, serially, after the fan-out.
	for slot, center := range centers {
		o.slotCenter[slot] = center
		o.alloc.MarkInFlight(slot, false)
	}
	return err
}

func chunkCenter(c alloc.ChunkCoord, size int) mgl32.Vec3 {
	half := float32(size) / 2
	return mgl32.Vec3{
		float32(c.X)*float32(size) + half,
		float32(c.Y)*float32(size) + half,
		float32(c.Z)*float32(size) + half,
	}
}

// dirtySlots returns every resident slot with a non-empty dirty bitmap, in
// a deterministic (ascending) order so mesh budgeting is reproducible.
func (o *Orchestrator) dirtySlots() []int {
	var out []int
	for slot := 0; slot < o.alloc.SlotCount(); slot++ {
		if o.alloc.Allocated(slot) && o.tracker.Dirty(slot) {
			out = append(out, slot)
		}
	}
	return out
}

func (o *Orchestrator) countDirty() int {
	n := 0
	for slot := 0; slot < o.alloc.SlotCount(); slot++ {
		if o.alloc.Allocated(slot) && o.tracker.Dirty(slot) {
			n++
		}
	}
	return n
}

func (o *Orchestrator) dispatchMeshing(ctx context.Context) ([]int, error) {
	candidates := o.dirtySlots()
	if len(candidates) > o.budget {
		candidates = candidates[:o.budget]
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if o.cfg.WorkerLimit > 0 {
		g.SetLimit(o.cfg.WorkerLimit)
	}
	var mu sync.Mutex
	var meshed []int
	failed := make(map[int]bool, len(candidates))

	for _, slot := range candidates {
		slot := slot
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			size := o.cfg.ChunkSize
			access := o.neighborAccessor(slot, size)
			vertices := o.mesher.Mesh(size, access)

			rng, err := o.pool.Reserve(slot, uint32(len(vertices)))
			if err != nil {
				o.log.Warnf("mesh pool overflow for slot %d: %v", slot, err)
				mu.Lock()
				failed[slot] = true
				mu.Unlock()
				return nil // recoverable: chunk is skipped by the culler, not fatal
			}

			if o.backend != nil {
				if err := o.backend.UploadMesh(slot, vertices, rng); err != nil {
					o.log.Warnf("mesh upload for slot %d: %v", slot, err)
					mu.Lock()
					failed[slot] = true
					mu.Unlock()
					return nil
				}
			}

			o.tracker.Clear(slot)

			mu.Lock()
			meshed = append(meshed, slot)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	// o.meshFailed is a plain map; apply every goroutine's verdict here,
	// serially, after the fan-out rather than writing it concurrently.
	for _, slot := range candidates {
		o.meshFailed[slot] = failed[slot]
	}
	return meshed, err
}

// neighborAccessor builds a mesher.Accessor that reads within slot and
// falls back to the six neighbor slots (via the page table) at the
// chunk boundary, treating an absent neighbor as Air per spec §4.6.
func (o *Orchestrator) neighborAccessor(slot, size int) mesher.Accessor {
	coord := o.alloc.Coord(slot)
	return func(x, y, z int) worldbuf.VoxelWord {
		if x >= 0 && x < size && y >= 0 && y < size && z >= 0 && z < size {
			return o.world.Get(slot, x, y, z)
		}
		nc, nx, ny, nz := neighborCoord(coord, size, x, y, z)
		nslot, ok := o.alloc.Lookup(nc)
		if !ok {
			return worldbuf.PackVoxel(registry.Air, 0)
		}
		return o.world.Get(nslot, nx, ny, nz)
	}
}

func neighborCoord(base alloc.ChunkCoord, size, x, y, z int) (alloc.ChunkCoord, int, int, int) {
	nc := base
	nx, ny, nz := x, y, z
	if x < 0 {
		nc.X--
		nx = size - 1
	} else if x >= size {
		nc.X++
		nx = 0
	}
	if y < 0 {
		nc.Y--
		ny = size - 1
	} else if y >= size {
		nc.Y++
		ny = 0
	}
	if z < 0 {
		nc.Z--
		nz = size - 1
	} else if z >= size {
		nc.Z++
		nz = 0
	}
	return nc, nx, ny, nz
}

func (o *Orchestrator) refreshInstances(meshed []int) {
	for _, slot := range meshed {
		rng, ok := o.pool.Lookup(slot)
		if !ok {
			continue
		}
		center := o.slotCenter[slot]
		o.stream.MarkChanged(slot, instancestream.Record{
			Transform:      mgl32.Translate3D(center.X(), center.Y(), center.Z()),
			Mesh:           rng,
			BoundingCenter: center,
			BoundingRadius: cull.SphereRadiusForChunk(o.cfg.ChunkSize),
		})
	}
	o.stream.Refresh()
}

func (o *Orchestrator) cullAndSubmit() (int, error) {
	frustum := cull.ExtractFrustum(o.viewProj)

	var views []cull.SlotView
	for slot := 0; slot < o.alloc.SlotCount(); slot++ {
		if !o.alloc.Allocated(slot) {
			continue
		}
		rng, hasMesh := o.pool.Lookup(slot)
		views = append(views, cull.SlotView{
			Slot:       slot,
			Center:     o.slotCenter[slot],
			Radius:     cull.SphereRadiusForChunk(o.cfg.ChunkSize),
			Mesh:       rng,
			Empty:      !hasMesh,
			MeshFailed: o.meshFailed[slot],
		})
	}

	calls := o.cull.Cull(views, frustum)
	if o.backend == nil {
		return len(calls), nil
	}
	if err := o.backend.Submit(o.frame, o.stream.Current(), calls); err != nil {
		return len(calls), fmt.Errorf("orchestrator: render submit: %w", err)
	}
	return len(calls), nil
}

func (o *Orchestrator) updateBudget(elapsed time.Duration) {
	target := o.cfg.TargetFrame
	if target <= 0 {
		target = time.Second / 60
	}
	if o.avgFrameMS == 0 {
		o.avgFrameMS = float64(elapsed.Microseconds()) / 1000.0
	} else {
		o.avgFrameMS = 0.9*o.avgFrameMS + 0.1*(float64(elapsed.Microseconds())/1000.0)
	}

	targetMS := float64(target.Microseconds()) / 1000.0
	if o.avgFrameMS < targetMS && o.budget < o.cfg.MeshBudgetMax {
		o.budget++
	} else if o.avgFrameMS >= targetMS && o.budget > o.cfg.MeshBudgetMin {
		o.budget--
	}
}

// Budget returns the current adaptive mesh-per-frame budget M.
func (o *Orchestrator) Budget() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.budget
}
