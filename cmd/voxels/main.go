package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/noahsabaj/voxelcore/pkg/alloc"
	"github.com/noahsabaj/voxelcore/pkg/config"
	"github.com/noahsabaj/voxelcore/pkg/engine"
	"github.com/noahsabaj/voxelcore/pkg/logx"
	"github.com/noahsabaj/voxelcore/pkg/registry"
	"github.com/noahsabaj/voxelcore/pkg/render"
	"github.com/noahsabaj/voxelcore/pkg/terrain"
)

func init() {
	// OpenGL calls must all come from the thread that created the context.
	runtime.LockOSThread()
}

func main() {
	cfg := config.Load()
	log := logx.Default("voxelcore", cfg.LogDebug)

	reg := registry.New()
	stone, _ := reg.Register(registry.Properties{Name: "stone", Solid: true})
	dirt, _ := reg.Register(registry.Properties{Name: "dirt", Solid: true})
	grass, _ := reg.Register(registry.Properties{Name: "grass", Solid: true})
	water, _ := reg.Register(registry.Properties{Name: "water", Solid: false, Transparent: true})
	reg.Freeze()

	// Same vertex capacity engine.New gives the mesh pool.
	vertexCapacity := cfg.SlotCount * cfg.ChunkSize * cfg.ChunkSize * cfg.ChunkSize
	renderer, err := render.NewRenderer(800, 600, "voxelcore", vertexCapacity)
	if err != nil {
		log.Errorf("failed to initialize renderer: %v", err)
		return
	}
	renderer.Camera().SetPosition(mgl32.Vec3{0, 25, 35})
	renderer.Camera().LookAt(mgl32.Vec3{0, 0, 0})

	terrainParams := terrain.Params{
		Seed: 1,
		Bands: terrain.Bands{
			BlockIDs:        []registry.BlockID{grass, dirt, stone},
			MinDepth:        []int32{0, 1, 4},
			MaxDepth:        []int32{0, 3, 1000},
			Probability:     []float32{1, 1, 1},
			NoiseThresholds: []float32{0, 0, 0},
		},
		SeaLevel: 5,
		WaterID:  water,
	}

	e := engine.New(cfg, log, reg, terrainParams, renderer)

	viewRadius := int32(1)
	for x := -viewRadius; x <= viewRadius; x++ {
		for z := -viewRadius; z <= viewRadius; z++ {
			e.RequestChunk(alloc.ChunkCoord{X: x, Y: 0, Z: z}, 0, time.Time{})
		}
	}

	ctx := context.Background()
	var frameCount int
	lastStatsTime := time.Now()

	for !renderer.ShouldClose() {
		renderer.BeginFrame()

		e.SetView(renderer.Camera().ProjectionMatrix().Mul4(renderer.Camera().ViewMatrix()), renderer.Camera().Position())
		if err := e.Advance(ctx); err != nil {
			log.Errorf("frame advance failed: %v", err)
			break
		}

		frameCount++
		if time.Since(lastStatsTime) >= time.Second {
			s := e.Stats()
			fmt.Printf("fps=%d active=%d dirty=%d draws=%d meshpool=%d budget=%d\n",
				frameCount, s.ChunksActive, s.ChunksDirty, s.DrawCommands, s.MeshPoolUsed, s.MeshBudget)
			frameCount = 0
			lastStatsTime = time.Now()
		}

		renderer.EndFrame()
	}

	renderer.Cleanup()
}
