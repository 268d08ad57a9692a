package culling

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/math"
	"github.com/spaghettifunk/astra/engine/renderer"
	"github.com/spaghettifunk/astra/engine/renderer/components"
	"github.com/spaghettifunk/astra/engine/renderer/metadata"
	"github.com/spaghettifunk/astra/engine/renderer/soft"
)

/*
 * Test fixtures. The fake source mirrors what a render graph would hand the
 * pipeline: a candidate set uploaded to backend buffers plus host-readable
 * lookups. Commands use mesh IDs 1..4 and material IDs 1..2 unless a test
 * corrupts them on purpose.
 */

type fakeSource struct {
	backend  renderer.ComputeBackend
	commands []metadata.IndirectRenderCommand
	spheres  []metadata.BoundingSphere

	meshes    map[uint32]metadata.MeshMetadata
	materials map[uint32]bool

	candidates *metadata.RenderBuffer
	bounds     *metadata.RenderBuffer
	hierarchy  *BoundingHierarchy
}

func newFakeSource(t *testing.T, backend renderer.ComputeBackend, commands []metadata.IndirectRenderCommand, spheres []metadata.BoundingSphere) *fakeSource {
	t.Helper()
	require.Equal(t, len(commands), len(spheres))

	s := &fakeSource{
		backend:  backend,
		commands: commands,
		spheres:  spheres,
		meshes: map[uint32]metadata.MeshMetadata{
			1: {IndexCount: 36, VertexCount: 24},
			2: {IndexCount: 72, VertexCount: 48},
			3: {IndexCount: 12, VertexCount: 8},
			4: {IndexCount: 6, VertexCount: 4},
		},
		materials: map[uint32]bool{1: true, 2: true},
	}

	count := uint32(len(commands))
	var err error
	s.candidates, err = backend.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_STORAGE, uint64(count)*metadata.CommandStride)
	require.NoError(t, err)
	s.bounds, err = backend.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_STORAGE, uint64(count)*metadata.SphereStride)
	require.NoError(t, err)

	commandBlock := make([]byte, uint64(count)*metadata.CommandStride)
	sphereBlock := make([]byte, uint64(count)*metadata.SphereStride)
	for i := uint32(0); i < count; i++ {
		metadata.EncodeCommand(commandBlock[uint64(i)*metadata.CommandStride:], &s.commands[i])
		metadata.EncodeSphere(sphereBlock[uint64(i)*metadata.SphereStride:], &s.spheres[i])
	}
	require.NoError(t, backend.RenderBufferLoadRange(s.candidates, 0, uint64(len(commandBlock)), commandBlock))
	require.NoError(t, backend.RenderBufferLoadRange(s.bounds, 0, uint64(len(sphereBlock)), sphereBlock))

	return s
}

// Builds a single-leaf hierarchy spanning every candidate.
func (s *fakeSource) withHierarchy(t *testing.T) *fakeSource {
	t.Helper()

	count := uint32(len(s.commands))
	bounds := metadata.BVHNode{
		Min: math.Vec4{X: -1e6, Y: -1e6, Z: -1e6},
		Max: math.Vec4{X: 1e6, Y: 1e6, Z: 1e6, W: 0},
	}

	nodeBlock := make([]byte, metadata.BVHNodeStride)
	metadata.EncodeBVHNode(nodeBlock, &bounds)
	rangeBlock := make([]byte, metadata.BVHLeafRangeStride)
	leafRange := metadata.BVHLeafRange{First: 0, Count: count}
	metadata.EncodeBVHLeafRange(rangeBlock, &leafRange)

	nodeBuffer, err := s.backend.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_STORAGE, uint64(len(nodeBlock)))
	require.NoError(t, err)
	rangeBuffer, err := s.backend.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_STORAGE, uint64(len(rangeBlock)))
	require.NoError(t, err)
	require.NoError(t, s.backend.RenderBufferLoadRange(nodeBuffer, 0, uint64(len(nodeBlock)), nodeBlock))
	require.NoError(t, s.backend.RenderBufferLoadRange(rangeBuffer, 0, uint64(len(rangeBlock)), rangeBlock))

	s.hierarchy = &BoundingHierarchy{
		NodeBuffer:  nodeBuffer,
		RangeBuffer: rangeBuffer,
		NodeCount:   1,
	}
	s.hierarchy.SetReady(true)
	return s
}

func (s *fakeSource) CandidateCount() uint32 { return uint32(len(s.commands)) }

func (s *fakeSource) CommandAt(index uint32) (metadata.IndirectRenderCommand, error) {
	return s.commands[index], nil
}

func (s *fakeSource) BoundingVolumeAt(index uint32) (metadata.BoundingSphere, error) {
	return s.spheres[index], nil
}

func (s *fakeSource) MaterialKnown(materialID uint32) bool { return s.materials[materialID] }

func (s *fakeSource) MeshMetadata(meshID uint32) (metadata.MeshMetadata, bool) {
	mesh, ok := s.meshes[meshID]
	return mesh, ok
}

func (s *fakeSource) BoundingHierarchy() *BoundingHierarchy  { return s.hierarchy }
func (s *fakeSource) CandidateBuffer() *metadata.RenderBuffer { return s.candidates }
func (s *fakeSource) BoundsBuffer() *metadata.RenderBuffer    { return s.bounds }

func validCommand(pass uint32, i uint32) metadata.IndirectRenderCommand {
	return metadata.IndirectRenderCommand{
		MeshID:        (i % 4) + 1,
		MaterialID:    (i % 2) + 1,
		RenderPass:    pass,
		InstanceCount: 1,
		IndexCount:    36,
		FirstInstance: i,
	}
}

func visibleSphere(i uint32) metadata.BoundingSphere {
	// In front of a camera at the origin looking down -Z.
	return metadata.BoundingSphere{
		Center:    math.Vec3{X: 0, Y: 0, Z: -10 - float32(i)},
		Radius:    1,
		LayerMask: 0xFFFFFFFF,
	}
}

// Reads the (mesh, material, pass) signature multiset out of a pipeline's
// culled buffer. Order-insensitive, so strategies that append in different
// orders still compare equal.
func visibleSignatures(t *testing.T, backend renderer.ComputeBackend, p *CullPipeline) map[[3]uint32]int {
	t.Helper()

	count := p.VisibleDrawCount()
	signatures := make(map[[3]uint32]int, count)
	if count == 0 {
		return signatures
	}

	view, err := backend.RenderBufferMapMemory(p.CulledBuffer(), 0, uint64(count)*metadata.CommandStride)
	require.NoError(t, err)
	defer backend.RenderBufferUnmapMemory(p.CulledBuffer())

	for i := uint32(0); i < count; i++ {
		cmd := metadata.DecodeCommand(view[uint64(i)*metadata.CommandStride:])
		signatures[[3]uint32{cmd.MeshID, cmd.MaterialID, cmd.RenderPass}]++
	}
	return signatures
}

func newPipeline(t *testing.T, backend renderer.ComputeBackend, source CommandSource, targetPass, capacity uint32, flags Flags) *CullPipeline {
	t.Helper()
	p, err := NewCullPipeline(&CullPipelineConfig{
		Backend:    backend,
		Source:     source,
		TargetPass: targetPass,
		Capacity:   capacity,
		Flags:      flags,
	})
	require.NoError(t, err)
	t.Cleanup(p.Destroy)
	return p
}

func TestCullPassthroughDropsSentinelCandidates(t *testing.T) {
	backend := soft.New()

	commands := make([]metadata.IndirectRenderCommand, 10)
	spheres := make([]metadata.BoundingSphere, 10)
	for i := range commands {
		commands[i] = validCommand(1, uint32(i))
		spheres[i] = visibleSphere(uint32(i))
	}
	// Three stale entries carrying sentinel identifiers.
	commands[2].MeshID = metadata.InvalidID
	commands[5].MaterialID = metadata.InvalidID
	commands[8].MeshID = 0

	source := newFakeSource(t, backend, commands, spheres)
	p := newPipeline(t, backend, source, 1, 16, Flags{})

	p.Cull(10, nil)

	_, skipped := p.WasSubmissionSkipped()
	assert.False(t, skipped)
	assert.Equal(t, uint32(7), p.VisibleDrawCount())
	assert.Equal(t, uint32(7), p.VisibleInstanceCount())
	assert.Equal(t, StrategyPassthrough, p.LastCullStats().Strategy)
	assert.Equal(t, uint32(0), p.LastCullStats().Overflow)
}

func TestCullCapacityClampAndOverflow(t *testing.T) {
	backend := soft.New()

	commands := make([]metadata.IndirectRenderCommand, 10)
	spheres := make([]metadata.BoundingSphere, 10)
	for i := range commands {
		commands[i] = validCommand(1, uint32(i))
		spheres[i] = visibleSphere(uint32(i))
	}

	source := newFakeSource(t, backend, commands, spheres)
	p := newPipeline(t, backend, source, 1, 4, Flags{})

	p.Cull(10, nil)

	_, skipped := p.WasSubmissionSkipped()
	assert.False(t, skipped)
	assert.Equal(t, uint32(4), p.VisibleDrawCount())
	assert.Equal(t, uint32(6), p.LastCullStats().Overflow)
	assert.LessOrEqual(t, p.VisibleDrawCount(), uint32(4))
}

func TestCullPassFilter(t *testing.T) {
	backend := soft.New()

	commands := []metadata.IndirectRenderCommand{
		validCommand(1, 0),
		validCommand(2, 1),
		validCommand(1, 2),
		validCommand(metadata.RenderPassAny, 3),
		validCommand(3, 4),
	}
	spheres := make([]metadata.BoundingSphere, len(commands))
	for i := range spheres {
		spheres[i] = visibleSphere(uint32(i))
	}

	source := newFakeSource(t, backend, commands, spheres)
	p := newPipeline(t, backend, source, 1, 16, Flags{})

	p.Cull(uint32(len(commands)), nil)

	// Two pass-1 commands plus the pass-agnostic one.
	assert.Equal(t, uint32(3), p.VisibleDrawCount())
}

func TestCullFrustumRejectsOutOfView(t *testing.T) {
	backend := soft.New()

	commands := make([]metadata.IndirectRenderCommand, 4)
	for i := range commands {
		commands[i] = validCommand(1, uint32(i))
	}
	spheres := []metadata.BoundingSphere{
		{Center: math.Vec3{X: 0, Y: 0, Z: -10}, Radius: 1, LayerMask: 0xFFFFFFFF},
		// Behind the camera.
		{Center: math.Vec3{X: 0, Y: 0, Z: 10}, Radius: 1, LayerMask: 0xFFFFFFFF},
		// Beyond the far clip distance.
		{Center: math.Vec3{X: 0, Y: 0, Z: -2000}, Radius: 1, LayerMask: 0xFFFFFFFF},
		// Visible in space but masked out.
		{Center: math.Vec3{X: 0, Y: 0, Z: -12}, Radius: 1, LayerMask: 0x2},
	}

	source := newFakeSource(t, backend, commands, spheres)
	p := newPipeline(t, backend, source, 1, 16, Flags{})

	camera := components.NewCamera()
	camera.CullMask = 0x1

	p.Cull(uint32(len(commands)), camera)

	assert.Equal(t, StrategyFrustum, p.LastCullStats().Strategy)
	assert.Equal(t, uint32(1), p.VisibleDrawCount())
}

func TestCullHierarchicalMatchesFrustum(t *testing.T) {
	backend := soft.New()

	commands := make([]metadata.IndirectRenderCommand, 12)
	spheres := make([]metadata.BoundingSphere, 12)
	for i := range commands {
		commands[i] = validCommand(1, uint32(i))
		if i%3 == 0 {
			// Behind the camera.
			spheres[i] = metadata.BoundingSphere{Center: math.Vec3{X: 0, Y: 0, Z: 20}, Radius: 1, LayerMask: 0xFFFFFFFF}
		} else {
			spheres[i] = visibleSphere(uint32(i))
		}
	}

	camera := components.NewCamera()

	frustumSource := newFakeSource(t, backend, commands, spheres)
	frustumPipeline := newPipeline(t, backend, frustumSource, 1, 32, Flags{})
	frustumPipeline.Cull(12, camera)
	require.Equal(t, StrategyFrustum, frustumPipeline.LastCullStats().Strategy)

	hierSource := newFakeSource(t, backend, commands, spheres).withHierarchy(t)
	hierPipeline := newPipeline(t, backend, hierSource, 1, 32, Flags{UseHierarchicalCulling: true})
	hierPipeline.Cull(12, camera)
	require.Equal(t, StrategyHierarchical, hierPipeline.LastCullStats().Strategy)

	assert.Equal(t, frustumPipeline.VisibleDrawCount(), hierPipeline.VisibleDrawCount())
	assert.Equal(t, frustumPipeline.VisibleInstanceCount(), hierPipeline.VisibleInstanceCount())

	// Traversal order may differ, the visible content must not.
	assert.Equal(t,
		visibleSignatures(t, backend, frustumPipeline),
		visibleSignatures(t, backend, hierPipeline))
}

// A backend whose hierarchical stage reports available but fails at
// dispatch, forcing the same-frame downgrade path.
type flakyHierarchyBackend struct {
	*soft.Backend
}

func (b *flakyHierarchyBackend) DispatchCull(stage metadata.CullStageType, params *renderer.CullDispatchParams) error {
	if stage == metadata.CULL_STAGE_HIERARCHICAL {
		return core.ErrStageUnavailable
	}
	return b.Backend.DispatchCull(stage, params)
}

func TestCullStrategyDowngradeSameFrame(t *testing.T) {
	backend := &flakyHierarchyBackend{Backend: soft.New()}

	commands := make([]metadata.IndirectRenderCommand, 5)
	spheres := make([]metadata.BoundingSphere, 5)
	for i := range commands {
		commands[i] = validCommand(1, uint32(i))
		spheres[i] = visibleSphere(uint32(i))
	}
	source := newFakeSource(t, backend, commands, spheres).withHierarchy(t)

	p := newPipeline(t, backend, source, 1, 16, Flags{UseHierarchicalCulling: true})
	p.Cull(5, components.NewCamera())

	_, skipped := p.WasSubmissionSkipped()
	assert.False(t, skipped)
	assert.Equal(t, StrategyFrustum, p.LastCullStats().Strategy)
	assert.Equal(t, uint32(5), p.VisibleDrawCount())
}

func TestCullSanitizerDropsUnknownMaterial(t *testing.T) {
	backend := soft.New()

	commands := make([]metadata.IndirectRenderCommand, 6)
	spheres := make([]metadata.BoundingSphere, 6)
	for i := range commands {
		commands[i] = validCommand(1, uint32(i))
		spheres[i] = visibleSphere(uint32(i))
	}
	// Identifier-valid but unknown to the material system; the compute
	// stage accepts these and only the sanitizer can catch them.
	commands[1].MaterialID = 99
	commands[4].MaterialID = 99

	source := newFakeSource(t, backend, commands, spheres)
	p := newPipeline(t, backend, source, 1, 16, Flags{})

	p.Cull(6, nil)

	_, skipped := p.WasSubmissionSkipped()
	assert.False(t, skipped)
	assert.Equal(t, uint32(4), p.VisibleDrawCount())
	assert.Equal(t, uint32(2), p.LastCullStats().Dropped)

	// Survivors must be compacted to the front in their original order.
	view, err := backend.RenderBufferMapMemory(p.CulledBuffer(), 0, uint64(p.VisibleDrawCount())*metadata.CommandStride)
	require.NoError(t, err)
	defer backend.RenderBufferUnmapMemory(p.CulledBuffer())

	wantFirstInstances := []uint32{0, 2, 3, 5}
	for i, want := range wantFirstInstances {
		cmd := metadata.DecodeCommand(view[uint64(i)*metadata.CommandStride:])
		assert.Equal(t, want, cmd.FirstInstance, "compacted entry %d", i)
	}
}

func TestCullSanitizeIdempotent(t *testing.T) {
	backend := soft.New()

	commands := make([]metadata.IndirectRenderCommand, 6)
	spheres := make([]metadata.BoundingSphere, 6)
	for i := range commands {
		commands[i] = validCommand(1, uint32(i))
		spheres[i] = visibleSphere(uint32(i))
	}
	commands[2].MaterialID = 99

	source := newFakeSource(t, backend, commands, spheres)
	p := newPipeline(t, backend, source, 1, 16, Flags{})

	p.Cull(6, nil)
	require.Equal(t, uint32(5), p.VisibleDrawCount())
	require.Equal(t, uint32(1), p.LastCullStats().Dropped)

	// A second pass over the already-compacted buffer drops nothing and
	// leaves the counters unchanged.
	first := metadata.VisibilityCounters{
		DrawCount:     p.VisibleDrawCount(),
		InstanceCount: p.VisibleInstanceCount(),
		Overflow:      p.LastCullStats().Overflow,
	}
	second, err := p.sanitize(first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, uint32(0), p.LastCullStats().Dropped)
}

func TestCullZeroInstanceSurvivesSanitize(t *testing.T) {
	backend := soft.New()

	commands := make([]metadata.IndirectRenderCommand, 4)
	spheres := make([]metadata.BoundingSphere, 4)
	for i := range commands {
		commands[i] = validCommand(1, uint32(i))
		spheres[i] = visibleSphere(uint32(i))
	}
	commands[1].InstanceCount = 0

	source := newFakeSource(t, backend, commands, spheres)
	p := newPipeline(t, backend, source, 1, 16, Flags{})

	p.Cull(4, nil)

	_, skipped := p.WasSubmissionSkipped()
	assert.False(t, skipped)
	assert.Equal(t, uint32(4), p.VisibleDrawCount())
	assert.Equal(t, uint32(3), p.VisibleInstanceCount())
	assert.Equal(t, uint32(0), p.LastCullStats().Dropped)
}

func TestCullMapFailureSkipsPass(t *testing.T) {
	backend := soft.New()

	commands := []metadata.IndirectRenderCommand{validCommand(1, 0)}
	spheres := []metadata.BoundingSphere{visibleSphere(0)}
	source := newFakeSource(t, backend, commands, spheres)

	p := newPipeline(t, backend, source, 1, 16, Flags{})

	backend.ForceMapFailure = true
	p.Cull(1, nil)

	reason, skipped := p.WasSubmissionSkipped()
	assert.True(t, skipped)
	assert.NotEmpty(t, reason)
	assert.Equal(t, uint32(0), p.VisibleDrawCount())
	assert.Equal(t, uint32(0), p.VisibleInstanceCount())
}

// A backend that accepts every dispatch but never writes anything, leaving
// the counters at zero. Models a device stage silently producing nothing.
type silentBackend struct {
	*soft.Backend
}

func (b *silentBackend) DispatchCull(stage metadata.CullStageType, params *renderer.CullDispatchParams) error {
	return nil
}

func TestCullCPUFallbackRecovers(t *testing.T) {
	backend := &silentBackend{Backend: soft.New()}

	commands := make([]metadata.IndirectRenderCommand, 10)
	spheres := make([]metadata.BoundingSphere, 10)
	for i := range commands {
		pass := uint32(1)
		if i >= 5 {
			pass = 2
		}
		commands[i] = validCommand(pass, uint32(i))
		spheres[i] = visibleSphere(uint32(i))
	}
	// Zero instance counts are coerced to one by the fallback.
	commands[0].InstanceCount = 0

	source := newFakeSource(t, backend, commands, spheres)
	p := newPipeline(t, backend, source, 1, 16, Flags{AllowGPUCPUFallback: true})

	p.Cull(10, nil)

	_, skipped := p.WasSubmissionSkipped()
	assert.False(t, skipped)
	assert.Equal(t, uint32(5), p.VisibleDrawCount())
	assert.Equal(t, uint32(5), p.VisibleInstanceCount())
}

func TestCullFallbackMatchesPassthrough(t *testing.T) {
	commands := make([]metadata.IndirectRenderCommand, 9)
	spheres := make([]metadata.BoundingSphere, 9)
	for i := range commands {
		pass := uint32(1)
		if i%3 == 2 {
			pass = 2
		}
		commands[i] = validCommand(pass, uint32(i))
		spheres[i] = visibleSphere(uint32(i))
	}
	commands[4].MeshID = metadata.InvalidID

	gpuBackend := soft.New()
	gpuSource := newFakeSource(t, gpuBackend, commands, spheres)
	gpuPipeline := newPipeline(t, gpuBackend, gpuSource, 1, 16, Flags{ForcePassthroughCulling: true})
	gpuPipeline.Cull(9, nil)
	require.Equal(t, StrategyPassthrough, gpuPipeline.LastCullStats().Strategy)

	cpuBackend := &silentBackend{Backend: soft.New()}
	cpuSource := newFakeSource(t, cpuBackend, commands, spheres)
	cpuPipeline := newPipeline(t, cpuBackend, cpuSource, 1, 16, Flags{AllowGPUCPUFallback: true})
	cpuPipeline.Cull(9, nil)

	_, skipped := cpuPipeline.WasSubmissionSkipped()
	require.False(t, skipped)

	assert.Equal(t, gpuPipeline.VisibleDrawCount(), cpuPipeline.VisibleDrawCount())
	assert.Equal(t,
		visibleSignatures(t, gpuBackend, gpuPipeline),
		visibleSignatures(t, cpuBackend, cpuPipeline))
}

func TestCullCPUFallbackRejectsCorruptSet(t *testing.T) {
	backend := &silentBackend{Backend: soft.New()}

	commands := make([]metadata.IndirectRenderCommand, 10)
	spheres := make([]metadata.BoundingSphere, 10)
	for i := range commands {
		commands[i] = validCommand(1, uint32(i))
		spheres[i] = visibleSphere(uint32(i))
	}
	// 40% of the set carries sentinel identifiers, above the corruption
	// threshold.
	for _, i := range []int{1, 3, 5, 7} {
		commands[i].MeshID = metadata.InvalidID
	}

	source := newFakeSource(t, backend, commands, spheres)
	p := newPipeline(t, backend, source, 1, 16, Flags{AllowGPUCPUFallback: true})

	p.Cull(10, nil)

	reason, skipped := p.WasSubmissionSkipped()
	assert.True(t, skipped)
	assert.True(t, strings.Contains(reason, "rejected"), "reason: %s", reason)
	assert.Equal(t, uint32(0), p.VisibleDrawCount())
}

func TestCullNoFallbackForPassAgnosticPipeline(t *testing.T) {
	backend := &silentBackend{Backend: soft.New()}

	commands := []metadata.IndirectRenderCommand{validCommand(1, 0)}
	spheres := []metadata.BoundingSphere{visibleSphere(0)}
	source := newFakeSource(t, backend, commands, spheres)

	p := newPipeline(t, backend, source, metadata.RenderPassAny, 16, Flags{AllowGPUCPUFallback: true})

	p.Cull(1, nil)

	// An empty result for a pass-agnostic pipeline is trusted as-is.
	_, skipped := p.WasSubmissionSkipped()
	assert.False(t, skipped)
	assert.Equal(t, uint32(0), p.VisibleDrawCount())
}

func TestCullNoFallbackWhenDisallowed(t *testing.T) {
	backend := &silentBackend{Backend: soft.New()}

	commands := []metadata.IndirectRenderCommand{validCommand(1, 0)}
	spheres := []metadata.BoundingSphere{visibleSphere(0)}
	source := newFakeSource(t, backend, commands, spheres)

	p := newPipeline(t, backend, source, 1, 16, Flags{})

	p.Cull(1, nil)

	_, skipped := p.WasSubmissionSkipped()
	assert.False(t, skipped)
	assert.Equal(t, uint32(0), p.VisibleDrawCount())
}

// A backend whose dispatch reports an impossible visible count.
type corruptCounterBackend struct {
	*soft.Backend
}

func (b *corruptCounterBackend) DispatchCull(stage metadata.CullStageType, params *renderer.CullDispatchParams) error {
	counters := metadata.VisibilityCounters{DrawCount: params.Capacity + 5}
	block := make([]byte, metadata.CounterBufferSize)
	metadata.EncodeCounters(block, &counters)
	return b.RenderBufferLoadRange(params.CounterBuffer, 0, metadata.CounterBufferSize, block)
}

func TestCullCounterCorruptionSkipsPass(t *testing.T) {
	backend := &corruptCounterBackend{Backend: soft.New()}

	commands := []metadata.IndirectRenderCommand{validCommand(1, 0)}
	spheres := []metadata.BoundingSphere{visibleSphere(0)}
	source := newFakeSource(t, backend, commands, spheres)

	p := newPipeline(t, backend, source, 1, 4, Flags{})

	p.Cull(1, nil)

	reason, skipped := p.WasSubmissionSkipped()
	assert.True(t, skipped)
	assert.True(t, strings.Contains(reason, "counter corruption"), "reason: %s", reason)
	assert.Equal(t, uint32(0), p.VisibleDrawCount())
}

func TestCullZeroCandidatesPublishesZero(t *testing.T) {
	backend := soft.New()

	source := newFakeSource(t, backend,
		[]metadata.IndirectRenderCommand{validCommand(1, 0)},
		[]metadata.BoundingSphere{visibleSphere(0)})
	p := newPipeline(t, backend, source, 1, 16, Flags{})

	p.Cull(0, nil)

	_, skipped := p.WasSubmissionSkipped()
	assert.False(t, skipped)
	assert.Equal(t, uint32(0), p.VisibleDrawCount())
	assert.Equal(t, uint32(0), p.VisibleInstanceCount())
}

func TestCullForcePassthroughOverridesEverything(t *testing.T) {
	backend := soft.New()

	commands := []metadata.IndirectRenderCommand{validCommand(1, 0)}
	spheres := []metadata.BoundingSphere{visibleSphere(0)}
	source := newFakeSource(t, backend, commands, spheres).withHierarchy(t)

	p := newPipeline(t, backend, source, 1, 16, Flags{
		ForcePassthroughCulling: true,
		UseHierarchicalCulling:  true,
	})

	p.Cull(1, components.NewCamera())

	assert.Equal(t, StrategyPassthrough, p.LastCullStats().Strategy)
	assert.Equal(t, uint32(1), p.VisibleDrawCount())
}

func TestCullFlagsApplyOnNextInvocation(t *testing.T) {
	backend := soft.New()

	commands := []metadata.IndirectRenderCommand{validCommand(1, 0)}
	spheres := []metadata.BoundingSphere{visibleSphere(0)}
	source := newFakeSource(t, backend, commands, spheres)

	p := newPipeline(t, backend, source, 1, 16, Flags{})
	camera := components.NewCamera()

	p.Cull(1, camera)
	assert.Equal(t, StrategyFrustum, p.LastCullStats().Strategy)

	p.SetFlags(Flags{ForcePassthroughCulling: true})
	p.Cull(1, camera)
	assert.Equal(t, StrategyPassthrough, p.LastCullStats().Strategy)
}

func TestCullRepeatedInvocationsAreIndependent(t *testing.T) {
	backend := soft.New()

	commands := make([]metadata.IndirectRenderCommand, 8)
	spheres := make([]metadata.BoundingSphere, 8)
	for i := range commands {
		commands[i] = validCommand(1, uint32(i))
		spheres[i] = visibleSphere(uint32(i))
	}
	source := newFakeSource(t, backend, commands, spheres)
	p := newPipeline(t, backend, source, 1, 16, Flags{})

	for frame := 0; frame < 3; frame++ {
		p.Cull(8, nil)
		_, skipped := p.WasSubmissionSkipped()
		assert.False(t, skipped, "frame %d", frame)
		assert.Equal(t, uint32(8), p.VisibleDrawCount(), "frame %d", frame)
	}
}
