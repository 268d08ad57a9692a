package culling

import (
	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/renderer"
	"github.com/spaghettifunk/astra/engine/renderer/components"
	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

/**
 * @brief Issues the hierarchical dispatch: one compute thread per leaf of
 * the bounding hierarchy. Subtrees outside the frustum are rejected with a
 * single bounds test; surviving leaves apply the same per-object tests as
 * the frustum stage, so the two strategies differ only in traversal cost,
 * never in visible-set content.
 */
func (p *CullPipeline) dispatchHierarchical(candidateCount uint32, camera *components.Camera) error {
	if camera == nil {
		return core.ErrNoCamera
	}
	if !p.backend.HasCullStage(metadata.CULL_STAGE_HIERARCHICAL) {
		return core.ErrStageUnavailable
	}
	hierarchy := p.source.BoundingHierarchy()
	if hierarchy == nil || !hierarchy.Ready() {
		return core.ErrHierarchyNotReady
	}
	params := &renderer.CullDispatchParams{
		CandidateBuffer: p.source.CandidateBuffer(),
		BoundsBuffer:    p.source.BoundsBuffer(),
		CulledBuffer:    p.culledBuffer,
		CounterBuffer:   p.counterBuffer,
		CandidateCount:  candidateCount,
		Capacity:        p.capacity,
		TargetPass:      p.targetPass,
		Frustum:         camera.GetFrustum(),
		CameraPosition:  camera.GetPosition(),
		FarClipSquared:  camera.FarClip * camera.FarClip,
		CullMask:        camera.CullMask,
		BVHNodeBuffer:   hierarchy.NodeBuffer,
		BVHRangeBuffer:  hierarchy.RangeBuffer,
		BVHLeafCount:    hierarchy.LeafCount(),
	}
	return p.backend.DispatchCull(metadata.CULL_STAGE_HIERARCHICAL, params)
}
