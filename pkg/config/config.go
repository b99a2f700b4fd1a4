// Package config loads voxelcore's runtime tunables from the environment,
// following the same VOXEL_-prefixed convention the reference renderer used
// for its present-mode and log-level switches.
package config

import (
	"os"
	"strconv"
)

// Config holds every environment-tunable parameter of the engine.
type Config struct {
	// PresentMode holds the VOXEL_PRESENT_MODE value ("immediate", "fifo"
	// or "mailbox"). No package reads it: the renderer always opens its
	// window with vsync enabled.
	PresentMode string
	// LogDebug enables debug-level logging.
	LogDebug bool
	// SlotCount (N) is the number of chunk slots resident in the world buffer.
	SlotCount int
	// ChunkSize (S) is the edge length, in voxels, of a cubic chunk.
	ChunkSize int
	// DirtyK is the sub-region granularity (K) of the dirty-region tracker;
	// each slot's bitmap has K*K*K bits.
	DirtyK int
	// MeshBudgetMin/MeshBudgetMax (M_min/M_max) bound the number of chunks
	// the mesh kernel may remesh in a single frame.
	MeshBudgetMin int
	MeshBudgetMax int
}

// Default returns 4096 resident slots, 32-voxel chunks, 8x8x8 dirty
// sub-regions and a mesh budget of 4 to 64 chunks per frame.
func Default() Config {
	return Config{
		PresentMode:   "immediate",
		LogDebug:      false,
		SlotCount:     4096,
		ChunkSize:     32,
		DirtyK:        8,
		MeshBudgetMin: 4,
		MeshBudgetMax: 64,
	}
}

// Load reads Config from the environment, falling back to Default() for any
// variable that is unset or fails to parse.
func Load() Config {
	c := Default()

	if v := os.Getenv("VOXEL_PRESENT_MODE"); v != "" {
		c.PresentMode = v
	}
	if v := os.Getenv("VOXEL_LOG"); v != "" {
		c.LogDebug = v == "debug" || v == "1" || v == "true"
	}
	if v, ok := envInt("VOXEL_SLOT_COUNT"); ok {
		c.SlotCount = v
	}
	if v, ok := envInt("VOXEL_CHUNK_SIZE"); ok {
		c.ChunkSize = v
	}
	if v, ok := envInt("VOXEL_DIRTY_K"); ok {
		c.DirtyK = v
	}
	if v, ok := envInt("VOXEL_MESH_BUDGET_MIN"); ok {
		c.MeshBudgetMin = v
	}
	if v, ok := envInt("VOXEL_MESH_BUDGET_MAX"); ok {
		c.MeshBudgetMax = v
	}

	return c
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
