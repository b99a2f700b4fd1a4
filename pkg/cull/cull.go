// Package cull implements the culling kernel: frustum-plane extraction
// from a view-projection matrix (the Gribb-Hartmann method) and the
// bounding-sphere test used to reduce resident chunks down to an
// indirect-draw command list. It generalizes the reference renderer's
// camera (pkg/render/camera.go) by adding the visibility test the renderer
// itself never performed; the renderer submitted every loaded chunk.
package cull

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"openglhelper"

	"github.com/noahsabaj/voxelcore/pkg/meshpool"
)

// Plane is a half-space boundary in ax+by+cz+d >= 0 form, with Normal
// already unit length.
type Plane struct {
	Normal mgl32.Vec3
	D      float32
}

// DistanceToPoint returns the signed distance from pt to the plane; a
// negative value means pt is on the outside (culled) side.
func (p Plane) DistanceToPoint(pt mgl32.Vec3) float32 {
	return p.Normal.Dot(pt) + p.D
}

// Frustum holds the six view-frustum planes in Left, Right, Bottom, Top,
// Near, Far order.
type Frustum struct {
	Planes [6]Plane
}

// ExtractFrustum derives the six frustum planes from a combined
// view-projection matrix using the Gribb-Hartmann method.
func ExtractFrustum(viewProj mgl32.Mat4) Frustum {
	row := func(i int) mgl32.Vec4 {
		return mgl32.Vec4{viewProj.At(i, 0), viewProj.At(i, 1), viewProj.At(i, 2), viewProj.At(i, 3)}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	combos := [6]mgl32.Vec4{
		r3.Add(r0), // Left
		r3.Sub(r0), // Right
		r3.Add(r1), // Bottom
		r3.Sub(r1), // Top
		r3.Add(r2), // Near
		r3.Sub(r2), // Far
	}

	var f Frustum
	for i, c := range combos {
		n := mgl32.Vec3{c[0], c[1], c[2]}
		length := n.Len()
		if length == 0 {
			f.Planes[i] = Plane{}
			continue
		}
		f.Planes[i] = Plane{Normal: n.Mul(1 / length), D: c[3] / length}
	}
	return f
}

// IntersectsSphere reports whether a sphere at center with the given
// radius is at least partially inside the frustum.
func (f Frustum) IntersectsSphere(center mgl32.Vec3, radius float32) bool {
	for _, p := range f.Planes {
		if p.DistanceToPoint(center) < -radius {
			return false
		}
	}
	return true
}

// SphereRadiusForChunk returns the bounding-sphere radius enclosing a
// cubic chunk of edge length size, per the spec's S*sqrt(3)/2 rule.
func SphereRadiusForChunk(size int) float32 {
	return float32(size) * math32.Sqrt(3) / 2
}

// SlotView is the per-slot input the culling kernel needs: its world-space
// bounding-sphere center, its current mesh range, and whether it currently
// has no geometry (empty, or its last mesh attempt failed).
type SlotView struct {
	Slot        int
	Center      mgl32.Vec3
	Radius      float32
	Mesh        meshpool.Range
	Empty       bool
	MeshFailed  bool
	BaseInstance uint32
}

// Kernel reduces a set of resident slots to an indirect-draw command list.
type Kernel struct{}

// New builds a culling Kernel.
func New() *Kernel { return &Kernel{} }

// DrawCall pairs a generated indirect-draw command with the slot it was
// derived from, so a backend can recover that slot's instance data
// (position, transform) without having to guess it back out of the
// command's BaseVertex.
type DrawCall struct {
	Command openglhelper.DrawElementsIndirectCommand
	Slot    int
}

// Cull returns one DrawCall per visible, non-empty, successfully-meshed
// slot. Slots behind the frustum, empty, or mesh-failed produce no
// command and are simply absent from the draw list, matching the spec's
// "never render garbage" failure behavior.
func (k *Kernel) Cull(slots []SlotView, frustum Frustum) []DrawCall {
	calls := make([]DrawCall, 0, len(slots))
	for _, s := range slots {
		if s.Empty || s.MeshFailed || s.Mesh.Count == 0 {
			continue
		}
		if !frustum.IntersectsSphere(s.Center, s.Radius) {
			continue
		}
		// Mesh.Count is the vertex count reserved in the pool; the index
		// buffer is built 6 indices per 4 vertices (two triangles per quad).
		indexCount := s.Mesh.Count / 4 * 6
		calls = append(calls, DrawCall{
			Slot: s.Slot,
			Command: openglhelper.DrawElementsIndirectCommand{
				Count:         indexCount,
				InstanceCount: 1,
				FirstIndex:    0,
				BaseVertex:    int32(s.Mesh.Offset),
				BaseInstance:  s.BaseInstance,
			},
		})
	}
	return calls
}
