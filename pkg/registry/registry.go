// Package registry implements the block registry: a runtime-extensible
// mapping from block names to small integer ids, generalizing the fixed
// BlockType enum the reference renderer shipped (pkg/voxel/block.go) into a
// registry that can be populated before the world is used and then frozen.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

// ErrFrozen is returned by Register once Freeze has been called.
var ErrFrozen = errors.New("registry: already frozen")

// ErrAlreadyRegistered is returned by Register for a duplicate name.
var ErrAlreadyRegistered = errors.New("registry: name already registered")

// ErrIDSpaceExhausted is returned when the 16-bit id space is full.
var ErrIDSpaceExhausted = errors.New("registry: block id space exhausted")

// BlockID is the small integer identifier stored in every voxel word's
// low 16 bits.
type BlockID uint16

// Air is always id 0, reserved and pre-registered.
const Air BlockID = 0

// Properties describes the render/gameplay-relevant attributes of a block
// type. Fields mirror the reference renderer's BlockProperties plus the
// additions needed by the mesh and lighting kernels.
type Properties struct {
	Name        string
	Solid       bool
	Transparent bool
	// LightEmission is a 0-15 value packed into the voxel word's light field.
	LightEmission uint8
}

// Registry is the append-only, then-frozen table of block properties.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]BlockID
	byID     []Properties
	frozen   bool
}

// New returns a registry with only Air pre-registered.
func New() *Registry {
	r := &Registry{
		byName: make(map[string]BlockID),
		byID:   []Properties{{Name: "air", Solid: false, Transparent: true}},
	}
	r.byName["air"] = Air
	return r
}

// Register adds a new block type and returns its assigned id. It is a
// precondition violation (ErrFrozen, ErrAlreadyRegistered) to call it after
// Freeze or with a duplicate name; callers at world-setup time typically
// treat these as fatal, but the registry itself never panics — the host
// decides.
func (r *Registry) Register(props Properties) (BlockID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return 0, ErrFrozen
	}
	if _, exists := r.byName[props.Name]; exists {
		return 0, fmt.Errorf("%w: %q", ErrAlreadyRegistered, props.Name)
	}
	if len(r.byID) >= 1<<16 {
		return 0, ErrIDSpaceExhausted
	}

	id := BlockID(len(r.byID))
	r.byID = append(r.byID, props)
	r.byName[props.Name] = id
	return id, nil
}

// Freeze prevents further registration. Lookups still take the read lock
// after Freeze.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup resolves a block name to its id.
func (r *Registry) Lookup(name string) (BlockID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// TryProperties resolves id's properties, reporting false for an unknown
// id rather than failing. Voxel words can carry an id the registry never
// saw (a stale palette, a corrupted upload); callers on the data path —
// the mesh kernel in particular — treat an unknown id as air rather than
// fail the whole chunk. The mesh kernel does not log these ids.
func (r *Registry) TryProperties(id BlockID) (Properties, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.byID) {
		return Properties{}, false
	}
	return r.byID[id], true
}

// Properties returns the properties registered for id. It panics on an
// unknown id, for call sites that already validated id against a frozen
// registry and treat a miss as a bug rather
// than a data-integrity condition. Code on the per-voxel data path should
// use TryProperties instead.
func (r *Registry) Properties(id BlockID) Properties {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.byID) {
		panic(fmt.Sprintf("registry: unknown block id %d", id))
	}
	return r.byID[id]
}

// Len reports the number of registered block types, including Air.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// PaletteBytes serializes the registry's id->name/properties table into a
// compact binary form suitable for handing to external consumers (e.g. a
// renderer's material table), in registration order so ids keep their
// meaning from one call to the next.
func (r *Registry) PaletteBytes() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	buf := make([]byte, 0, len(r.byID)*16)
	for id, p := range r.byID {
		flags := byte(0)
		if p.Solid {
			flags |= 1
		}
		if p.Transparent {
			flags |= 2
		}
		buf = append(buf, byte(id), byte(id>>8), flags, p.LightEmission)
		nameLen := len(p.Name)
		if nameLen > 255 {
			nameLen = 255
		}
		buf = append(buf, byte(nameLen))
		buf = append(buf, p.Name[:nameLen]...)
	}
	return buf
}
