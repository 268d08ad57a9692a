package culling

import (
	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/renderer"
	"github.com/spaghettifunk/astra/engine/renderer/components"
	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

/**
 * @brief Issues the frustum dispatch: one compute invocation per candidate.
 * A command is accepted iff its bounding sphere intersects all six frustum
 * planes, its squared distance to the camera is within farClip², and its
 * layer mask intersects the camera's cull mask. Accepted commands are
 * appended through an atomic counter, clamped to capacity with overflow
 * accounting.
 */
func (p *CullPipeline) dispatchFrustum(candidateCount uint32, camera *components.Camera) error {
	if camera == nil {
		return core.ErrNoCamera
	}
	if !p.backend.HasCullStage(metadata.CULL_STAGE_FRUSTUM) {
		return core.ErrStageUnavailable
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
	}
	return p.backend.DispatchCull(metadata.CULL_STAGE_FRUSTUM, params)
}
