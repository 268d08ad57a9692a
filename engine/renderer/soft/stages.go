package soft

import (
	"github.com/spaghettifunk/astra/engine/math"
	"github.com/spaghettifunk/astra/engine/renderer"
	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

/*
 * The cull stage kernels. Each mirrors one compute shader: the passthrough
 * and frustum stages process one candidate per "thread", the hierarchical
 * stage one hierarchy leaf per "thread". Accepted commands are appended
 * through cullAppend, which emulates the shader's atomic counter including
 * the capacity clamp and overflow accounting.
 */

type appendState struct {
	culled   []byte
	counters []byte
	capacity uint32
	written  uint32
	overflow uint32
	instances uint32
}

func cullAppend(s *appendState, src []byte) {
	if s.written >= s.capacity {
		// Accepted but no room left. Count it, never write past the end.
		s.overflow++
		return
	}
	offset := uint64(s.written) * metadata.CommandStride
	copy(s.culled[offset:offset+metadata.CommandStride], src[:metadata.CommandStride])
	s.written++
	s.instances += metadata.DecodeCommand(src).InstanceCount
}

func (s *appendState) publish() {
	counters := metadata.VisibilityCounters{
		DrawCount:     s.written,
		InstanceCount: s.instances,
		Overflow:      s.overflow,
	}
	metadata.EncodeCounters(s.counters, &counters)
}

func validIdentifiers(cmd *metadata.IndirectRenderCommand) bool {
	if cmd.MeshID == 0 || cmd.MeshID == metadata.InvalidID {
		return false
	}
	if cmd.MaterialID == 0 || cmd.MaterialID == metadata.InvalidID {
		return false
	}
	return true
}

func passMatches(cmd *metadata.IndirectRenderCommand, targetPass uint32) bool {
	return cmd.RenderPass == targetPass || cmd.RenderPass == metadata.RenderPassAny
}

func sphereVisible(sphere *metadata.BoundingSphere, params *renderer.CullDispatchParams) bool {
	if sphere.LayerMask&params.CullMask == 0 {
		return false
	}
	if sphere.Center.DistanceSquared(params.CameraPosition) > params.FarClipSquared {
		return false
	}
	return params.Frustum.IntersectsSphere(sphere.Center, sphere.Radius)
}

func runPassthroughStage(candidates, culled, counters []byte, params *renderer.CullDispatchParams) {
	s := &appendState{culled: culled, counters: counters, capacity: params.Capacity}
	for i := uint32(0); i < params.CandidateCount; i++ {
		offset := uint64(i) * metadata.CommandStride
		raw := candidates[offset : offset+metadata.CommandStride]
		cmd := metadata.DecodeCommand(raw)
		if !passMatches(&cmd, params.TargetPass) || !validIdentifiers(&cmd) {
			continue
		}
		cullAppend(s, raw)
	}
	s.publish()
}

func runFrustumStage(candidates, bounds, culled, counters []byte, params *renderer.CullDispatchParams) {
	s := &appendState{culled: culled, counters: counters, capacity: params.Capacity}
	for i := uint32(0); i < params.CandidateCount; i++ {
		offset := uint64(i) * metadata.CommandStride
		raw := candidates[offset : offset+metadata.CommandStride]
		cmd := metadata.DecodeCommand(raw)
		if !passMatches(&cmd, params.TargetPass) || !validIdentifiers(&cmd) {
			continue
		}
		sphere := metadata.DecodeSphere(bounds[uint64(i)*metadata.SphereStride:])
		if !sphereVisible(&sphere, params) {
			continue
		}
		cullAppend(s, raw)
	}
	s.publish()
}

func runHierarchicalStage(candidates, bounds, nodes, ranges, culled, counters []byte, params *renderer.CullDispatchParams) {
	s := &appendState{culled: culled, counters: counters, capacity: params.Capacity}
	nodeCount := uint32(len(nodes) / metadata.BVHNodeStride)

	// One thread per leaf. Leaves occupy the tail of the node array for a
	// binary tree laid out internal-nodes-first.
	firstLeaf := nodeCount - params.BVHLeafCount
	for leaf := uint32(0); leaf < params.BVHLeafCount; leaf++ {
		nodeIndex := firstLeaf + leaf
		node := metadata.DecodeBVHNode(nodes[uint64(nodeIndex)*metadata.BVHNodeStride:])

		// Whole subtrees outside the frustum are rejected with one AABB test.
		extents := math.Extents3D{
			Min: node.Min.ToVec3(),
			Max: node.Max.ToVec3(),
		}
		if !params.Frustum.IntersectsAABB(extents) {
			continue
		}

		rangeIndex := uint32(node.Max.W)
		leafRange := metadata.DecodeBVHLeafRange(ranges[uint64(rangeIndex)*metadata.BVHLeafRangeStride:])
		for j := uint32(0); j < leafRange.Count; j++ {
			i := leafRange.First + j
			if i >= params.CandidateCount {
				break
			}
			offset := uint64(i) * metadata.CommandStride
			raw := candidates[offset : offset+metadata.CommandStride]
			cmd := metadata.DecodeCommand(raw)
			if !passMatches(&cmd, params.TargetPass) || !validIdentifiers(&cmd) {
				continue
			}
			sphere := metadata.DecodeSphere(bounds[uint64(i)*metadata.SphereStride:])
			if !sphereVisible(&sphere, params) {
				continue
			}
			cullAppend(s, raw)
		}
	}
	s.publish()
}
