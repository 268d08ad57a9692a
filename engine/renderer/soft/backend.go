package soft

import (
	"fmt"

	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/renderer"
	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

/**
 * @brief A host-side compute backend. Buffers live in process memory and the
 * cull stages run synchronously on the calling thread, with the same stage
 * semantics as the device backends. Used for headless runs and as the
 * reference implementation the GPU stages are validated against.
 */
type Backend struct {
	stages map[metadata.CullStageType]bool
	/**
	 * @brief Fault injection: when true every RenderBufferMapMemory call
	 * fails. Exercises the "skip this pass" recovery path.
	 */
	ForceMapFailure bool
}

type softBuffer struct {
	data   []byte
	mapped bool
}

func New() *Backend {
	return &Backend{
		stages: map[metadata.CullStageType]bool{
			metadata.CULL_STAGE_PASSTHROUGH:  true,
			metadata.CULL_STAGE_FRUSTUM:      true,
			metadata.CULL_STAGE_HIERARCHICAL: true,
		},
	}
}

/** @brief Removes a compute stage, forcing strategy downgrades. */
func (b *Backend) DisableStage(stage metadata.CullStageType) {
	b.stages[stage] = false
}

func (b *Backend) RenderBufferCreate(renderbufferType metadata.RenderBufferType, totalSize uint64) (*metadata.RenderBuffer, error) {
	if totalSize == 0 {
		return nil, fmt.Errorf("func RenderBufferCreate - totalSize must be > 0")
	}
	return &metadata.RenderBuffer{
		RenderBufferType: renderbufferType,
		TotalSize:        totalSize,
		InternalData:     &softBuffer{data: make([]byte, totalSize)},
	}, nil
}

func (b *Backend) RenderBufferDestroy(buffer *metadata.RenderBuffer) {
	if buffer != nil {
		buffer.InternalData = nil
	}
}

func (b *Backend) internal(buffer *metadata.RenderBuffer) (*softBuffer, error) {
	if buffer == nil || buffer.InternalData == nil {
		return nil, fmt.Errorf("func internal - render buffer has no backing storage")
	}
	sb, ok := buffer.InternalData.(*softBuffer)
	if !ok {
		return nil, fmt.Errorf("func internal - render buffer does not belong to this backend")
	}
	return sb, nil
}

func (b *Backend) RenderBufferLoadRange(buffer *metadata.RenderBuffer, offset, size uint64, data []byte) error {
	sb, err := b.internal(buffer)
	if err != nil {
		return err
	}
	if offset+size > buffer.TotalSize {
		return fmt.Errorf("func RenderBufferLoadRange - range [%d, %d) exceeds buffer size %d", offset, offset+size, buffer.TotalSize)
	}
	copy(sb.data[offset:offset+size], data[:size])
	return nil
}

func (b *Backend) RenderBufferMapMemory(buffer *metadata.RenderBuffer, offset, size uint64) ([]byte, error) {
	if b.ForceMapFailure {
		return nil, core.ErrBufferNotMapped
	}
	sb, err := b.internal(buffer)
	if err != nil {
		return nil, core.ErrBufferNotMapped
	}
	if offset+size > buffer.TotalSize {
		return nil, core.ErrBufferNotMapped
	}
	sb.mapped = true
	return sb.data[offset : offset+size], nil
}

func (b *Backend) RenderBufferUnmapMemory(buffer *metadata.RenderBuffer) {
	if sb, err := b.internal(buffer); err == nil {
		sb.mapped = false
	}
}

func (b *Backend) HasCullStage(stage metadata.CullStageType) bool {
	return b.stages[stage]
}

func (b *Backend) DispatchCull(stage metadata.CullStageType, params *renderer.CullDispatchParams) error {
	if !b.stages[stage] {
		return core.ErrStageUnavailable
	}

	candidates, err := b.internal(params.CandidateBuffer)
	if err != nil {
		return err
	}
	culled, err := b.internal(params.CulledBuffer)
	if err != nil {
		return err
	}
	counters, err := b.internal(params.CounterBuffer)
	if err != nil {
		return err
	}

	switch stage {
	case metadata.CULL_STAGE_PASSTHROUGH:
		runPassthroughStage(candidates.data, culled.data, counters.data, params)
		return nil
	case metadata.CULL_STAGE_FRUSTUM:
		bounds, err := b.internal(params.BoundsBuffer)
		if err != nil {
			return err
		}
		runFrustumStage(candidates.data, bounds.data, culled.data, counters.data, params)
		return nil
	case metadata.CULL_STAGE_HIERARCHICAL:
		bounds, err := b.internal(params.BoundsBuffer)
		if err != nil {
			return err
		}
		nodes, err := b.internal(params.BVHNodeBuffer)
		if err != nil {
			return err
		}
		ranges, err := b.internal(params.BVHRangeBuffer)
		if err != nil {
			return err
		}
		runHierarchicalStage(candidates.data, bounds.data, nodes.data, ranges.data, culled.data, counters.data, params)
		return nil
	}
	return core.ErrStageUnavailable
}

// The soft stages run synchronously, so all writes are already visible.
func (b *Backend) MemoryBarrier() {}
