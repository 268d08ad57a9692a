package renderer

import (
	"github.com/spaghettifunk/astra/engine/math"
	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

/**
 * @brief Everything one visibility cull dispatch needs. Built by a culling
 * strategy, consumed by a backend's compute stage.
 */
type CullDispatchParams struct {
	/** @brief Device-resident array of candidate IndirectRenderCommands. */
	CandidateBuffer *metadata.RenderBuffer
	/** @brief Device-resident array of BoundingSpheres, parallel to the candidates. */
	BoundsBuffer *metadata.RenderBuffer
	/** @brief The destination array for accepted commands. */
	CulledBuffer *metadata.RenderBuffer
	/** @brief The visibility counter block (draw count, instance count, overflow). */
	CounterBuffer *metadata.RenderBuffer
	/** @brief Number of candidates to process. */
	CandidateCount uint32
	/** @brief Hard upper bound of commands the culled buffer can hold. */
	Capacity uint32
	/** @brief The render pass accepted commands must match (or RenderPassAny). */
	TargetPass uint32

	// Spatial test inputs. Only read by the frustum and hierarchical stages.
	Frustum        math.Frustum
	CameraPosition math.Vec3
	/** @brief Squared far-clip distance; commands further than this are rejected. */
	FarClipSquared float32
	CullMask       uint32

	// Hierarchy inputs. Only read by the hierarchical stage.
	BVHNodeBuffer  *metadata.RenderBuffer
	BVHRangeBuffer *metadata.RenderBuffer
	/** @brief One compute thread runs per hierarchy leaf. */
	BVHLeafCount uint32
}

/**
 * @brief The slice of a renderer backend the culling pipeline consumes:
 * storage buffer management, compute stage dispatch and the barrier needed
 * before reading results back. Buffer mapping failures are reported as error
 * values; callers treat them as "skip this pass".
 */
type ComputeBackend interface {
	RenderBufferCreate(renderbufferType metadata.RenderBufferType, totalSize uint64) (*metadata.RenderBuffer, error)
	RenderBufferDestroy(buffer *metadata.RenderBuffer)
	RenderBufferLoadRange(buffer *metadata.RenderBuffer, offset, size uint64, data []byte) error
	RenderBufferMapMemory(buffer *metadata.RenderBuffer, offset, size uint64) ([]byte, error)
	RenderBufferUnmapMemory(buffer *metadata.RenderBuffer)

	/** @brief Reports whether the given cull compute stage is available. */
	HasCullStage(stage metadata.CullStageType) bool
	/**
	 * @brief Issues one cull compute dispatch. Asynchronous with respect to
	 * the calling thread; once issued it always runs to completion.
	 */
	DispatchCull(stage metadata.CullStageType, params *CullDispatchParams) error
	/**
	 * @brief Blocks until all writes of previously dispatched compute work
	 * are visible to the host.
	 */
	MemoryBarrier()
}
