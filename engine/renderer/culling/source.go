package culling

import (
	"sync/atomic"

	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

/**
 * @brief The collaborator holding the full set of candidate draw commands
 * and their per-object metadata. The culling pipeline never mutates it; the
 * device-resident buffers it exposes are pure inputs to the compute stages
 * and the host-readable lookups feed the sanitizer, CPU fallback and the
 * validation cross-check.
 */
type CommandSource interface {
	CandidateCount() uint32
	/** @brief A host-readable copy of the candidate command at index. */
	CommandAt(index uint32) (metadata.IndirectRenderCommand, error)
	/** @brief A host-readable copy of the bounding sphere at index. */
	BoundingVolumeAt(index uint32) (metadata.BoundingSphere, error)
	MaterialKnown(materialID uint32) bool
	/** @brief Mesh metadata by identifier; ok is false for unknown meshes. */
	MeshMetadata(meshID uint32) (metadata.MeshMetadata, bool)
	/** @brief The bounding hierarchy, or nil when the source has none. */
	BoundingHierarchy() *BoundingHierarchy
	/** @brief Device-resident candidate command array. */
	CandidateBuffer() *metadata.RenderBuffer
	/** @brief Device-resident bounding sphere array, parallel to the candidates. */
	BoundsBuffer() *metadata.RenderBuffer
}

/**
 * @brief A device-resident tree of bounding volumes over the candidate
 * commands. Built asynchronously by the command source; culling reads the
 * ready flag and degrades to the frustum strategy until the build finishes.
 */
type BoundingHierarchy struct {
	/** @brief Packed BVHNode array, internal nodes first, leaves at the tail. */
	NodeBuffer *metadata.RenderBuffer
	/** @brief BVHLeafRange array indexed by a leaf node's range index. */
	RangeBuffer *metadata.RenderBuffer
	/** @brief Total number of nodes, internal plus leaf. */
	NodeCount uint32

	ready atomic.Bool
}

/** @brief Leaf count of a binary tree over NodeCount nodes. */
func (h *BoundingHierarchy) LeafCount() uint32 {
	return (h.NodeCount + 1) / 2
}

func (h *BoundingHierarchy) Ready() bool {
	return h.ready.Load()
}

func (h *BoundingHierarchy) SetReady(ready bool) {
	h.ready.Store(ready)
}
