package render

import (
	"fmt"
	"unsafe"

	"openglhelper"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/noahsabaj/voxelcore/pkg/cull"
	"github.com/noahsabaj/voxelcore/pkg/instancestream"
	"github.com/noahsabaj/voxelcore/pkg/meshpool"
)

// vertexShaderSource and fragmentShaderSource replace the reference
// renderer's file-based shader loading (pkg/render/shaders/vert.glsl,
// frag.glsl, neither of which shipped with this tree) with inline GLSL,
// since the engine no longer has a per-chunk model matrix: the vertex
// shader now indexes a per-draw-call chunk position from an SSBO keyed by
// gl_DrawIDARB, matching the indirect multi-draw the culling kernel emits.
const vertexShaderSource = `#version 460 core
layout(location = 0) in uint packedVertex;

layout(std430, binding = 0) buffer ChunkPositions {
	vec4 positions[];
};

uniform mat4 view;
uniform mat4 projection;

out vec3 fragNormal;
out vec3 fragWorldPos;
flat out uint fragMaterial;

const vec3 faceNormals[6] = vec3[6](
	vec3(0.0, 0.0, -1.0),
	vec3(0.0, 0.0, 1.0),
	vec3(1.0, 0.0, 0.0),
	vec3(-1.0, 0.0, 0.0),
	vec3(0.0, 1.0, 0.0),
	vec3(0.0, -1.0, 0.0)
);

void main() {
	uint x = packedVertex & 31u;
	uint y = (packedVertex >> 5) & 31u;
	uint z = (packedVertex >> 10) & 31u;
	uint orientation = (packedVertex >> 17) & 7u;
	uint material = (packedVertex >> 20) & 255u;

	vec3 chunkOrigin = positions[gl_DrawIDARB].xyz;
	vec3 worldPos = chunkOrigin + vec3(float(x), float(y), float(z));

	fragNormal = faceNormals[orientation];
	fragWorldPos = worldPos;
	fragMaterial = material;

	gl_Position = projection * view * vec4(worldPos, 1.0);
}
`

const fragmentShaderSource = `#version 460 core
in vec3 fragNormal;
in vec3 fragWorldPos;
flat in uint fragMaterial;

uniform vec3 viewPos;
uniform vec3 lightPos;
uniform vec3 lightColor;

out vec4 outColor;

void main() {
	vec3 baseColor = vec3(0.5, 0.5, 0.55);
	vec3 lightDir = normalize(lightPos - fragWorldPos);
	float diffuse = max(dot(normalize(fragNormal), lightDir), 0.15);
	outColor = vec4(baseColor * diffuse * lightColor, 1.0);
}
`

// maxDrawCommands bounds how many chunks one indirect multi-draw call can
// cover; it is sized generously relative to the engine's default slot
// count rather than hardcoded to the reference renderer's ~100-chunk demo.
const maxDrawCommands = 8192

// Renderer is the GPU-facing implementation of orchestrator.RenderBackend:
// it owns the window, the persistently-mapped vertex buffer the mesh
// kernel's output lands in, and the indirect command submission the
// culling kernel's output drives. It generalizes the reference renderer's
// single-chunk-at-a-time draw path into one driven entirely by mesh-pool
// ranges and instance-stream records.
type Renderer struct {
	window *openglhelper.Window
	camera *Camera
	shader *openglhelper.Shader

	vao *openglhelper.VertexArrayObject

	vertexBuffer     *openglhelper.BufferObject
	mappedVertices   []uint32
	vertexBufferCap  int

	indicesBuffer  *openglhelper.BufferObject
	indirectBuffer *openglhelper.BufferObject

	positionsBuffer *openglhelper.BufferObject
	positions       []mgl32.Vec4

	drawCommands []openglhelper.DrawElementsIndirectCommand

	lastFrameTime float64
	deltaTime     float32

	isWireframeMode bool
	isClosed        bool
}

// NewRenderer creates a window, compiles the built-in shaders, and
// allocates the persistent vertex buffer, index buffer, indirect command
// buffer, and chunk-position SSBO. vertexCapacity bounds the total number
// of packed vertices live across every resident chunk at once; callers
// size it from the same mesh-pool capacity passed to meshpool.New so the
// two never disagree about how much vertex data can be resident.
func NewRenderer(width, height int, title string, vertexCapacity int) (*Renderer, error) {
	window, err := openglhelper.NewWindow(width, height, title, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	camera := NewCamera(mgl32.Vec3{0, 0, 25})
	camera.LookAt(mgl32.Vec3{0, 0, 0})

	r := &Renderer{window: window, camera: camera}

	window.GLFWWindow().SetKeyCallback(r.keyCallback)
	window.GLFWWindow().SetCursorPosCallback(r.cursorPosCallback)
	window.GLFWWindow().SetScrollCallback(r.scrollCallback)
	window.GLFWWindow().SetFramebufferSizeCallback(r.framebufferSizeCallback)

	shader, err := openglhelper.NewShader(vertexShaderSource, fragmentShaderSource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shaders: %w", err)
	}
	r.shader = shader

	if err := r.initBuffers(vertexCapacity); err != nil {
		return nil, fmt.Errorf("failed to initialize buffers: %w", err)
	}

	return r, nil
}

func (r *Renderer) initBuffers(vertexCapacity int) error {
	r.vao = openglhelper.NewVAO()
	r.vao.Bind()

	r.vertexBufferCap = vertexCapacity
	vbo, err := openglhelper.NewPersistentBuffer(gl.ARRAY_BUFFER, vertexCapacity*4, false, true)
	if err != nil {
		return fmt.Errorf("persistent vertex buffer: %w", err)
	}
	r.vertexBuffer = vbo
	r.vertexBuffer.Bind()
	r.vao.SetVertexAttribPointer(0, 1, gl.UNSIGNED_INT, false, 4, 0)
	r.mappedVertices = unsafe.Slice((*uint32)(vbo.GetMappedPointer()), vertexCapacity)

	maxQuads := vertexCapacity / 4
	indices := make([]uint32, maxQuads*6)
	for i := 0; i < maxQuads; i++ {
		base := uint32(i * 4)
		idx := i * 6
		indices[idx+0] = base
		indices[idx+1] = base + 1
		indices[idx+2] = base + 2
		indices[idx+3] = base
		indices[idx+4] = base + 2
		indices[idx+5] = base + 3
	}
	r.indicesBuffer = openglhelper.NewBufferObject(gl.ELEMENT_ARRAY_BUFFER, len(indices)*4, unsafe.Pointer(&indices[0]), openglhelper.StaticDraw)

	r.indirectBuffer = openglhelper.NewIndirectBuffer(maxDrawCommands, openglhelper.DynamicDraw)
	r.drawCommands = make([]openglhelper.DrawElementsIndirectCommand, 0, maxDrawCommands)

	r.positions = make([]mgl32.Vec4, maxDrawCommands)
	r.positionsBuffer = openglhelper.NewBufferObject(gl.SHADER_STORAGE_BUFFER, maxDrawCommands*int(unsafe.Sizeof(mgl32.Vec4{})), nil, openglhelper.DynamicDraw)
	r.positionsBuffer.BindBase(0)

	return nil
}

// UploadMesh implements orchestrator.RenderBackend: it copies vertices
// into the persistent buffer at the vertex offset the mesh pool reserved.
func (r *Renderer) UploadMesh(slot int, vertices []uint32, rng meshpool.Range) error {
	if len(vertices) == 0 {
		return nil
	}
	end := int(rng.Offset) + len(vertices)
	if end > r.vertexBufferCap {
		return fmt.Errorf("render: mesh for slot %d (offset %d, %d vertices) exceeds vertex buffer capacity %d", slot, rng.Offset, len(vertices), r.vertexBufferCap)
	}
	copy(r.mappedVertices[rng.Offset:end], vertices)
	return nil
}

// Submit implements orchestrator.RenderBackend: it pushes the culling
// kernel's own draw commands straight to the indirect buffer (calls
// already carry the correct Count/BaseVertex per survivor) and, for each
// one, looks up its chunk position from instances by the slot the culler
// identified — instances is indexed by slot, not by position in calls —
// then issues one multi-draw-indirect call.
func (r *Renderer) Submit(frame uint64, instances []instancestream.Record, calls []cull.DrawCall) error {
	if len(calls) == 0 {
		return nil
	}
	if len(calls) > maxDrawCommands {
		calls = calls[:maxDrawCommands]
	}

	r.drawCommands = r.drawCommands[:0]
	for i, call := range calls {
		r.drawCommands = append(r.drawCommands, call.Command)
		var center mgl32.Vec3
		if call.Slot >= 0 && call.Slot < len(instances) {
			center = instances[call.Slot].BoundingCenter
		}
		r.positions[i] = mgl32.Vec4{center.X(), center.Y(), center.Z(), 0}
	}

	r.indirectBuffer.UpdateIndirectCommands(r.drawCommands)
	r.positionsBuffer.Bind()
	r.positionsBuffer.UpdateSubData(0, len(r.drawCommands)*int(unsafe.Sizeof(mgl32.Vec4{})), unsafe.Pointer(&r.positions[0]))

	r.vao.Bind()
	r.vertexBuffer.Bind()
	r.indicesBuffer.Bind()
	r.shader.Use()
	r.shader.SetMat4("view", r.camera.ViewMatrix())
	r.shader.SetMat4("projection", r.camera.ProjectionMatrix())
	r.shader.SetVec3("viewPos", r.camera.Position())
	r.shader.SetVec3("lightPos", mgl32.Vec3{30, 30, 30})
	r.shader.SetVec3("lightColor", mgl32.Vec3{1, 1, 1})

	r.indirectBuffer.Bind()
	openglhelper.MultiDrawElementsIndirect(gl.TRIANGLES, gl.UNSIGNED_INT, len(r.drawCommands))
	return nil
}

// BeginFrame advances timing, processes keyboard input, and clears the
// screen; callers run it before Advance-ing the engine each iteration of
// the host's main loop.
func (r *Renderer) BeginFrame() {
	currentTime := glfw.GetTime()
	r.deltaTime = float32(currentTime - r.lastFrameTime)
	r.lastFrameTime = currentTime

	r.camera.ProcessKeyboardInput(r.deltaTime, r.window)
	r.window.Clear(mgl32.Vec4{0.05, 0.05, 0.1, 1.0})
	gl.Enable(gl.DEPTH_TEST)
}

// EndFrame swaps buffers and polls window events.
func (r *Renderer) EndFrame() {
	r.window.SwapBuffers()
	r.window.PollEvents()
}

// ShouldClose returns whether the window should close.
func (r *Renderer) ShouldClose() bool { return r.window.ShouldClose() }

// Camera exposes the renderer's camera so the host can feed its view
// matrix and position into engine.Engine.SetView each frame.
func (r *Renderer) Camera() *Camera { return r.camera }

// DeltaTime returns the last frame's duration in seconds.
func (r *Renderer) DeltaTime() float32 { return r.deltaTime }

// Cleanup releases every OpenGL resource the renderer owns.
func (r *Renderer) Cleanup() {
	if r.isClosed {
		return
	}
	if r.vertexBuffer != nil {
		r.vertexBuffer.Unmap()
		r.vertexBuffer.Delete()
	}
	if r.indicesBuffer != nil {
		r.indicesBuffer.Delete()
	}
	if r.indirectBuffer != nil {
		r.indirectBuffer.Delete()
	}
	if r.positionsBuffer != nil {
		r.positionsBuffer.Delete()
	}
	if r.vao != nil {
		r.vao.Delete()
	}
	if r.shader != nil {
		r.shader.Delete()
	}
	r.window.Close()
	r.isClosed = true
}

func (r *Renderer) keyCallback(window *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		r.window.GLFWWindow().SetShouldClose(true)
	}
	if key == glfw.KeyC && action == glfw.Press {
		r.window.ToggleMouseCaptured()
		r.camera.ResetMouseState()
	}
	if key == glfw.KeyX && action == glfw.Press {
		r.ToggleWireframeMode()
	}
}

func (r *Renderer) cursorPosCallback(_ *glfw.Window, xpos, ypos float64) {
	if r.window.IsMouseCaptured() {
		r.camera.HandleMouseMovement(xpos, ypos)
	}
}

func (r *Renderer) scrollCallback(_ *glfw.Window, xoffset, yoffset float64) {
	r.camera.HandleMouseScroll(yoffset)
}

func (r *Renderer) framebufferSizeCallback(_ *glfw.Window, width, height int) {
	r.window.OnResize(width, height)
	r.camera.UpdateProjectionMatrix(width, height)
}

// ToggleWireframeMode switches between solid and wireframe rendering.
func (r *Renderer) ToggleWireframeMode() {
	r.isWireframeMode = !r.isWireframeMode
	if r.isWireframeMode {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.LINE)
	} else {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)
	}
}
