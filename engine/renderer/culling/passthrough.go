package culling

import (
	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/renderer"
	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

/**
 * @brief Issues the passthrough dispatch: every candidate whose render pass
 * matches the target (or is the wildcard) and whose identifiers are not
 * sentinels is copied into the culled buffer. No spatial test. This is the
 * baseline correctness path and the final fallback rung.
 */
func (p *CullPipeline) dispatchPassthrough(candidateCount uint32) error {
	if !p.backend.HasCullStage(metadata.CULL_STAGE_PASSTHROUGH) {
		return core.ErrStageUnavailable
	}
	params := &renderer.CullDispatchParams{
		CandidateBuffer: p.source.CandidateBuffer(),
		CulledBuffer:    p.culledBuffer,
		CounterBuffer:   p.counterBuffer,
		CandidateCount:  candidateCount,
		Capacity:        p.capacity,
		TargetPass:      p.targetPass,
	}
	return p.backend.DispatchCull(metadata.CULL_STAGE_PASSTHROUGH, params)
}
