package metadata

import (
	"encoding/binary"

	"github.com/spaghettifunk/astra/engine/math"
)

/**
 * @brief One candidate indirect draw: the GPU-consumable descriptor for a
 * single draw call plus the identifiers the culling pipeline filters on.
 * The layout matches the std430 storage buffer the compute stages consume;
 * eight tightly packed uint32 fields.
 */
type IndirectRenderCommand struct {
	/** @brief Identifier of the mesh to draw. Never 0 or InvalidID in a valid command. */
	MeshID uint32
	/** @brief Identifier of the material to draw with. Never 0 or InvalidID in a valid command. */
	MaterialID uint32
	/** @brief The render pass this command belongs to, or RenderPassAny. */
	RenderPass uint32
	/** @brief Number of instances to draw. Zero is soft-invalid but survivable. */
	InstanceCount uint32
	// Indirect draw fields below are carried through culling untouched.
	IndexCount    uint32
	FirstIndex    uint32
	VertexOffset  uint32
	FirstInstance uint32
}

/** @brief The byte stride of one encoded IndirectRenderCommand. */
const CommandStride = 32

/** @brief A bounding sphere plus layer mask for one candidate command. */
type BoundingSphere struct {
	Center math.Vec3
	Radius float32
	/** @brief Layer bits; a camera sees the command if the masks intersect. */
	LayerMask uint32
}

/** @brief The byte stride of one encoded BoundingSphere (vec4 + mask + pad). */
const SphereStride = 32

/**
 * @brief The three visibility counters written once per cull invocation.
 */
type VisibilityCounters struct {
	/** @brief Number of commands accepted into the culled buffer. */
	DrawCount uint32
	/** @brief Instances summed across accepted commands. */
	InstanceCount uint32
	/** @brief Number of accepted commands dropped because the culled buffer was full. */
	Overflow uint32
}

/** @brief The byte size of the encoded counter block. */
const CounterBufferSize = 12

/** @brief Per-mesh metadata consulted by the sanitizer's hard-validity checks. */
type MeshMetadata struct {
	IndexCount  uint32
	VertexCount uint32
}

/**
 * @brief One node of the bounding hierarchy, packed as min/max vec4 pairs.
 * For an internal node Min.W holds the left child index and Max.W the right
 * child index; for a leaf Min.W is negative and Max.W holds the leaf range
 * index.
 */
type BVHNode struct {
	Min math.Vec4
	Max math.Vec4
}

/** @brief The byte stride of one encoded BVHNode. */
const BVHNodeStride = 32

/** @brief The candidate command span covered by one hierarchy leaf. */
type BVHLeafRange struct {
	First uint32
	Count uint32
}

/** @brief The byte stride of one encoded BVHLeafRange. */
const BVHLeafRangeStride = 8

func EncodeCommand(dst []byte, cmd *IndirectRenderCommand) {
	binary.LittleEndian.PutUint32(dst[0:], cmd.MeshID)
	binary.LittleEndian.PutUint32(dst[4:], cmd.MaterialID)
	binary.LittleEndian.PutUint32(dst[8:], cmd.RenderPass)
	binary.LittleEndian.PutUint32(dst[12:], cmd.InstanceCount)
	binary.LittleEndian.PutUint32(dst[16:], cmd.IndexCount)
	binary.LittleEndian.PutUint32(dst[20:], cmd.FirstIndex)
	binary.LittleEndian.PutUint32(dst[24:], cmd.VertexOffset)
	binary.LittleEndian.PutUint32(dst[28:], cmd.FirstInstance)
}

func DecodeCommand(src []byte) IndirectRenderCommand {
	return IndirectRenderCommand{
		MeshID:        binary.LittleEndian.Uint32(src[0:]),
		MaterialID:    binary.LittleEndian.Uint32(src[4:]),
		RenderPass:    binary.LittleEndian.Uint32(src[8:]),
		InstanceCount: binary.LittleEndian.Uint32(src[12:]),
		IndexCount:    binary.LittleEndian.Uint32(src[16:]),
		FirstIndex:    binary.LittleEndian.Uint32(src[20:]),
		VertexOffset:  binary.LittleEndian.Uint32(src[24:]),
		FirstInstance: binary.LittleEndian.Uint32(src[28:]),
	}
}

func EncodeSphere(dst []byte, sphere *BoundingSphere) {
	binary.LittleEndian.PutUint32(dst[0:], math.Float32bits(sphere.Center.X))
	binary.LittleEndian.PutUint32(dst[4:], math.Float32bits(sphere.Center.Y))
	binary.LittleEndian.PutUint32(dst[8:], math.Float32bits(sphere.Center.Z))
	binary.LittleEndian.PutUint32(dst[12:], math.Float32bits(sphere.Radius))
	binary.LittleEndian.PutUint32(dst[16:], sphere.LayerMask)
}

func DecodeSphere(src []byte) BoundingSphere {
	return BoundingSphere{
		Center: math.Vec3{
			X: math.Float32frombits(binary.LittleEndian.Uint32(src[0:])),
			Y: math.Float32frombits(binary.LittleEndian.Uint32(src[4:])),
			Z: math.Float32frombits(binary.LittleEndian.Uint32(src[8:])),
		},
		Radius:    math.Float32frombits(binary.LittleEndian.Uint32(src[12:])),
		LayerMask: binary.LittleEndian.Uint32(src[16:]),
	}
}

func EncodeCounters(dst []byte, counters *VisibilityCounters) {
	binary.LittleEndian.PutUint32(dst[0:], counters.DrawCount)
	binary.LittleEndian.PutUint32(dst[4:], counters.InstanceCount)
	binary.LittleEndian.PutUint32(dst[8:], counters.Overflow)
}

func DecodeCounters(src []byte) VisibilityCounters {
	return VisibilityCounters{
		DrawCount:     binary.LittleEndian.Uint32(src[0:]),
		InstanceCount: binary.LittleEndian.Uint32(src[4:]),
		Overflow:      binary.LittleEndian.Uint32(src[8:]),
	}
}

func EncodeBVHNode(dst []byte, node *BVHNode) {
	putF32 := func(off int, f float32) {
		binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(f))
	}
	putF32(0, node.Min.X)
	putF32(4, node.Min.Y)
	putF32(8, node.Min.Z)
	putF32(12, node.Min.W)
	putF32(16, node.Max.X)
	putF32(20, node.Max.Y)
	putF32(24, node.Max.Z)
	putF32(28, node.Max.W)
}

func DecodeBVHNode(src []byte) BVHNode {
	getF32 := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(src[off:]))
	}
	return BVHNode{
		Min: math.Vec4{X: getF32(0), Y: getF32(4), Z: getF32(8), W: getF32(12)},
		Max: math.Vec4{X: getF32(16), Y: getF32(20), Z: getF32(24), W: getF32(28)},
	}
}

func EncodeBVHLeafRange(dst []byte, r *BVHLeafRange) {
	binary.LittleEndian.PutUint32(dst[0:], r.First)
	binary.LittleEndian.PutUint32(dst[4:], r.Count)
}

func DecodeBVHLeafRange(src []byte) BVHLeafRange {
	return BVHLeafRange{
		First: binary.LittleEndian.Uint32(src[0:]),
		Count: binary.LittleEndian.Uint32(src[4:]),
	}
}
