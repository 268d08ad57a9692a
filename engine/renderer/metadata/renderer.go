package metadata

/** @brief An invalid 32-bit identifier. */
const InvalidID uint32 = 0xFFFFFFFF

/** @brief An invalid 16-bit identifier. */
const InvalidIDUint16 uint16 = 0xFFFF

/**
 * @brief The wildcard render pass value. A command carrying this value is
 * considered part of every render pass.
 */
const RenderPassAny uint32 = 0xFFFFFFFF

type RenderBufferType int

const (
	/** @brief Buffer is use is unknown. Default, but usually invalid. */
	RENDERBUFFER_TYPE_UNKNOWN RenderBufferType = iota
	/** @brief Buffer is used for data storage (i.e. candidate and culled command arrays). */
	RENDERBUFFER_TYPE_STORAGE
	/** @brief Buffer is used for reading purposes (i.e copy to from device local, then read) */
	RENDERBUFFER_TYPE_READ
	/** @brief Buffer is used for uniform data. */
	RENDERBUFFER_TYPE_UNIFORM
)

type RenderBuffer struct {
	/** @brief The type of buffer, which typically determines its use. */
	RenderBufferType RenderBufferType
	/** @brief The total size of the buffer in bytes. */
	TotalSize uint64
	/** @brief Contains internal data for the renderer-API-specific buffer. */
	InternalData interface{}
}

/** @brief The compute stages a backend may provide for visibility culling. */
type CullStageType int

const (
	/** @brief Pass filter and identifier validation only, no spatial test. */
	CULL_STAGE_PASSTHROUGH CullStageType = iota
	/** @brief Per-object six-plane frustum test. */
	CULL_STAGE_FRUSTUM
	/** @brief Frustum test reached through the bounding hierarchy leaves. */
	CULL_STAGE_HIERARCHICAL
)

func (c CullStageType) String() string {
	switch c {
	case CULL_STAGE_PASSTHROUGH:
		return "passthrough"
	case CULL_STAGE_FRUSTUM:
		return "frustum"
	case CULL_STAGE_HIERARCHICAL:
		return "hierarchical"
	}
	return "unknown"
}
