package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noahsabaj/voxelcore/pkg/alloc"
	"github.com/noahsabaj/voxelcore/pkg/cull"
	"github.com/noahsabaj/voxelcore/pkg/dirty"
	"github.com/noahsabaj/voxelcore/pkg/instancestream"
	"github.com/noahsabaj/voxelcore/pkg/mesher"
	"github.com/noahsabaj/voxelcore/pkg/meshpool"
	"github.com/noahsabaj/voxelcore/pkg/registry"
	"github.com/noahsabaj/voxelcore/pkg/terrain"
	"github.com/noahsabaj/voxelcore/pkg/worldbuf"
)

type stubBackend struct {
	calls       int
	uploadCalls int
}

func (s *stubBackend) UploadMesh(slot int, vertices []uint32, rng meshpool.Range) error {
	s.uploadCalls++
	return nil
}

func (s *stubBackend) Submit(frame uint64, instances []instancestream.Record, calls []cull.DrawCall) error {
	s.calls++
	return nil
}

const testChunkSize = 8
const testSlots = 4

func newTestOrchestrator(t *testing.T) (*Orchestrator, *stubBackend) {
	t.Helper()
	reg := registry.New()
	_, err := reg.Register(registry.Properties{Name: "stone", Solid: true})
	require.NoError(t, err)
	reg.Freeze()

	tracker := dirty.New(testSlots, 4)
	backing := make([]worldbuf.VoxelWord, testSlots*testChunkSize*testChunkSize*testChunkSize)
	world := worldbuf.New(testSlots, testChunkSize, backing, tracker)

	allocator := alloc.New(testSlots)
	pool := meshpool.New(1 << 20)

	bands := terrain.Bands{
		BlockIDs:        []registry.BlockID{1},
		MinDepth:        []int32{0},
		MaxDepth:        []int32{1000},
		Probability:     []float32{1},
		NoiseThresholds: []float32{0},
	}
	terrainKernel := terrain.New(terrain.Params{Seed: 1, ChunkSize: testChunkSize, Bands: bands, SeaLevel: -1})
	meshKernel := mesher.New(reg)
	cullKernel := cull.New()

	backings := make([][]instancestream.Record, 3)
	for i := range backings {
		backings[i] = make([]instancestream.Record, testSlots)
	}
	stream := instancestream.New(testSlots, backings)

	backend := &stubBackend{}
	cfg := Config{
		ChunkSize:     testChunkSize,
		MeshBudgetMin: 1,
		MeshBudgetMax: 8,
		WorkerLimit:   4,
		TargetFrame:   16 * time.Millisecond,
	}
	o := New(cfg, nil, reg, allocator, world, tracker, pool, terrainKernel, meshKernel, cullKernel, stream, backend)
	return o, backend
}

func TestFrameAllocatesTerrainsAndMeshesNewRequest(t *testing.T) {
	o, backend := newTestOrchestrator(t)
	o.SetView(mgl32.Perspective(1.2, 1, 0.1, 1000), mgl32.Vec3{0, 0, 0})
	o.SubmitRequest(ChunkRequest{Coord: alloc.ChunkCoord{X: 0, Y: 0, Z: 0}})

	require.NoError(t, o.Frame(context.Background()))

	slot, ok := o.alloc.Lookup(alloc.ChunkCoord{X: 0, Y: 0, Z: 0})
	require.True(t, ok)
	assert.True(t, o.alloc.Allocated(slot))
	assert.Equal(t, 1, backend.uploadCalls)
	assert.Equal(t, 1, backend.calls)
}

func TestSetBlockEditIsAppliedNextFrame(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.SubmitRequest(ChunkRequest{Coord: alloc.ChunkCoord{X: 0, Y: 0, Z: 0}})
	require.NoError(t, o.Frame(context.Background()))

	o.SubmitEdit(Edit{Coord: alloc.ChunkCoord{X: 0, Y: 0, Z: 0}, Local: [3]int{1, 1, 1}, Block: 1, Light: 5})
	require.NoError(t, o.Frame(context.Background()))

	slot, ok := o.alloc.Lookup(alloc.ChunkCoord{X: 0, Y: 0, Z: 0})
	require.True(t, ok)
	got := o.world.Get(slot, 1, 1, 1)
	assert.Equal(t, registry.BlockID(1), got.BlockID())
	assert.Equal(t, uint8(5), got.Light())
}

func TestBackpressureDefersRequestToNextFrame(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	for i := 0; i < testSlots; i++ {
		o.SubmitRequest(ChunkRequest{Coord: alloc.ChunkCoord{X: int32(i), Y: 0, Z: 0}})
	}
	require.NoError(t, o.Frame(context.Background()))
	for i := 0; i < testSlots; i++ {
		_, ok := o.alloc.Lookup(alloc.ChunkCoord{X: int32(i), Y: 0, Z: 0})
		assert.True(t, ok)
	}
	// Terrain dispatch clears the in-flight flag once it completes, so hold
	// every slot in flight to leave nothing evictable.
	for slot := 0; slot < testSlots; slot++ {
		o.alloc.MarkInFlight(slot, true)
	}

	o.SubmitRequest(ChunkRequest{Coord: alloc.ChunkCoord{X: 99, Y: 0, Z: 0}})
	require.NoError(t, o.Frame(context.Background()))
	_, ok := o.alloc.Lookup(alloc.ChunkCoord{X: 99, Y: 0, Z: 0})
	assert.False(t, ok, "no free slot and nothing evictable (all in-flight) should defer, not fail the frame")
}

func TestAdaptiveBudgetIncreasesWhenFastAndDecreasesWhenSlow(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.cfg.TargetFrame = time.Hour // frame always looks "fast" relative to this target
	start := o.Budget()
	for i := 0; i < 5; i++ {
		require.NoError(t, o.Frame(context.Background()))
	}
	assert.GreaterOrEqual(t, o.Budget(), start)

	o2, _ := newTestOrchestrator(t)
	o2.cfg.TargetFrame = time.Nanosecond // frame always looks "slow"
	for i := 0; i < 5; i++ {
		require.NoError(t, o2.Frame(context.Background()))
	}
	assert.Equal(t, o2.cfg.MeshBudgetMin, o2.Budget())
}

func TestStatsReflectResidentAndDirtyCounts(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.SubmitRequest(ChunkRequest{Coord: alloc.ChunkCoord{X: 0, Y: 0, Z: 0}})
	require.NoError(t, o.Frame(context.Background()))
	stats := o.Stats()
	assert.Equal(t, 1, stats.ChunksActive)
	assert.Equal(t, 0, stats.ChunksDirty, "mesh dispatch should have cleared the dirty bit it just consumed")
}
