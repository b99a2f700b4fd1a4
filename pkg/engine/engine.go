// Package engine is the public facade over the voxel world core: it wires
// together the block registry, world buffer, slot allocator, dirty
// tracker, mesh pool, instance stream, and the frame orchestrator behind
// the six operations external collaborators are expected to call
// (SetBlock, GetBlock, RequestChunk, SetView, Stats, and the registry
// setup operations), mirroring the way the reference renderer's
// cmd/voxels/main.go wired a Game/Renderer/Camera trio behind a single
// run loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/noahsabaj/voxelcore/pkg/alloc"
	"github.com/noahsabaj/voxelcore/pkg/config"
	"github.com/noahsabaj/voxelcore/pkg/cull"
	"github.com/noahsabaj/voxelcore/pkg/dirty"
	"github.com/noahsabaj/voxelcore/pkg/instancestream"
	"github.com/noahsabaj/voxelcore/pkg/logx"
	"github.com/noahsabaj/voxelcore/pkg/mesher"
	"github.com/noahsabaj/voxelcore/pkg/meshpool"
	"github.com/noahsabaj/voxelcore/pkg/orchestrator"
	"github.com/noahsabaj/voxelcore/pkg/registry"
	"github.com/noahsabaj/voxelcore/pkg/terrain"
	"github.com/noahsabaj/voxelcore/pkg/worldbuf"
)

// ErrNotLoaded is returned by GetBlock when the addressed chunk is not
// currently resident.
var ErrNotLoaded = errors.New("engine: chunk not resident")

// ErrOutOfRange is returned by GetBlock when a local coordinate falls
// outside [0, ChunkSize) on any axis.
var ErrOutOfRange = errors.New("engine: coordinate out of range")

// Re-exported so callers only need to import this package for the
// externally observable error taxonomy named by the external interfaces.
var (
	ErrFrozen          = registry.ErrFrozen
	ErrAlreadyRegistered = registry.ErrAlreadyRegistered
	ErrBackpressure    = alloc.ErrBackpressure
	ErrRequestTimeout  = orchestrator.ErrTimeout
)

// StatsSnapshot is the stats() operation's return shape.
type StatsSnapshot struct {
	FrameTimeMS       float64
	ChunksActive      int
	ChunksDirty       int
	DrawCommands      int
	MeshPoolUsed      uint32
	RetentionInFlight int
	MeshBudget        int
	FrameErrors       []error
}

// RenderBackend is re-exported from orchestrator so callers assembling an
// Engine don't need to import both packages.
type RenderBackend = orchestrator.RenderBackend

// TerrainConfig configures the built-in terrain kernel. New always builds
// that kernel from it; there is no way to supply a different generator.
type TerrainConfig = terrain.Params

// Engine is the facade over one voxel world instance.
type Engine struct {
	cfg  config.Config
	log  logx.Logger
	reg  *registry.Registry
	orc  *orchestrator.Orchestrator

	world *worldbuf.Buffer
	alloc *alloc.Allocator
}

// New builds an Engine from cfg, a registry the caller has already
// populated with its block types, terrain parameters, and a render
// backend (nil is valid for headless use, e.g. tests or server-side
// simulation). The registry does not need to be frozen yet: callers may
// still RegisterBlock after New, but must call FreezeRegistry before the
// first Advance — the mesh kernel treats an unfrozen id space the same as
// a frozen one, but forgetting to freeze means block ids could still
// shift out from under an in-flight mesh dispatch.
func New(cfg config.Config, log logx.Logger, reg *registry.Registry, terrainParams TerrainConfig, backend RenderBackend) *Engine {
	if log == nil {
		log = logx.Nop()
	}

	tracker := dirty.New(cfg.SlotCount, cfg.DirtyK)
	wordsPerSlot := cfg.ChunkSize * cfg.ChunkSize * cfg.ChunkSize
	backing := make([]worldbuf.VoxelWord, cfg.SlotCount*wordsPerSlot)
	world := worldbuf.New(cfg.SlotCount, cfg.ChunkSize, backing, tracker)

	allocator := alloc.New(cfg.SlotCount)
	pool := meshpool.New(uint32(cfg.SlotCount * wordsPerSlot))

	terrainParams.ChunkSize = cfg.ChunkSize
	terrainKernel := terrain.New(terrainParams)
	meshKernel := mesher.New(reg)
	cullKernel := cull.New()

	const numBuffers = 3
	backings := make([][]instancestream.Record, numBuffers)
	for i := range backings {
		backings[i] = make([]instancestream.Record, cfg.SlotCount)
	}
	stream := instancestream.New(cfg.SlotCount, backings)

	orcCfg := orchestrator.Config{
		ChunkSize:     cfg.ChunkSize,
		MeshBudgetMin: cfg.MeshBudgetMin,
		MeshBudgetMax: cfg.MeshBudgetMax,
		WorkerLimit:   4,
		TargetFrame:   time.Second / 60,
	}
	orc := orchestrator.New(orcCfg, log, reg, allocator, world, tracker, pool, terrainKernel, meshKernel, cullKernel, stream, backend)

	return &Engine{cfg: cfg, log: log, reg: reg, orc: orc, world: world, alloc: allocator}
}

// Advance runs exactly one frame of the orchestrator's seven-step
// sequence.
func (e *Engine) Advance(ctx context.Context) error {
	return e.orc.Frame(ctx)
}

// SetBlock applies a world edit. It is queued and becomes visible no
// earlier than the next Advance; if the containing chunk is not resident
// the edit is silently dropped, matching the orchestrator's drain policy
// (an edit to an unloaded chunk has nothing to mark dirty).
func (e *Engine) SetBlock(chunk alloc.ChunkCoord, local [3]int, id registry.BlockID, light uint8) {
	e.orc.SubmitEdit(orchestrator.Edit{Coord: chunk, Local: local, Block: id, Light: light})
}

// GetBlock reads the current value of a voxel. It returns ErrNotLoaded if
// the containing chunk is not resident.
func (e *Engine) GetBlock(chunk alloc.ChunkCoord, local [3]int) (registry.BlockID, error) {
	slot, ok := e.alloc.Lookup(chunk)
	if !ok {
		return 0, ErrNotLoaded
	}
	size := e.cfg.ChunkSize
	if local[0] < 0 || local[0] >= size || local[1] < 0 || local[1] >= size || local[2] < 0 || local[2] >= size {
		return 0, fmt.Errorf("%w: local coordinate %v outside chunk of size %d", ErrOutOfRange, local, size)
	}
	return e.world.Get(slot, local[0], local[1], local[2]).BlockID(), nil
}

// RequestChunk asks for a chunk to be loaded (allocated + generated +
// meshed) by a future Advance. priority is currently advisory; deadline,
// if non-zero, causes the request to be dropped with ErrRequestTimeout
// (logged, not returned — the request API is fire-and-forget) if it
// cannot be serviced in time.
func (e *Engine) RequestChunk(chunk alloc.ChunkCoord, priority int, deadline time.Time) {
	e.orc.SubmitRequest(orchestrator.ChunkRequest{Coord: chunk, Priority: priority, Deadline: deadline})
}

// SetView updates the camera used by the culling kernel starting with the
// next Advance.
func (e *Engine) SetView(viewProjection mgl32.Mat4, position mgl32.Vec3) {
	e.orc.SetView(viewProjection, position)
}

// Stats returns the most recently completed frame's statistics.
func (e *Engine) Stats() StatsSnapshot {
	s := e.orc.Stats()
	return StatsSnapshot{
		FrameTimeMS:       s.FrameTimeMS,
		ChunksActive:      s.ChunksActive,
		ChunksDirty:       s.ChunksDirty,
		DrawCommands:      s.DrawCommands,
		MeshPoolUsed:      s.MeshPoolUsed,
		RetentionInFlight: s.RetentionInFlight,
		MeshBudget:        e.orc.Budget(),
		FrameErrors:       s.Errors,
	}
}

// RegisterBlock adds a new block type to the engine's registry. It
// returns ErrFrozen if called after FreezeRegistry.
func (e *Engine) RegisterBlock(props registry.Properties) (registry.BlockID, error) {
	return e.reg.Register(props)
}

// FreezeRegistry closes the block palette to further registration. Call
// this once, after any RegisterBlock calls and before the first Advance.
func (e *Engine) FreezeRegistry() {
	e.reg.Freeze()
}

// PaletteBytes serializes the engine's current block palette.
func (e *Engine) PaletteBytes() []byte {
	return e.reg.PaletteBytes()
}
