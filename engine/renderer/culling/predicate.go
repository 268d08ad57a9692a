package culling

import (
	"github.com/spaghettifunk/astra/engine/math"
	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

/*
 * The host-side acceptance predicate. This is the same predicate the
 * passthrough compute stage applies, extended with the lookup-table checks
 * the sanitizer performs, so that a passthrough cull followed by sanitize
 * and a CPU fallback walk accept the same set of commands.
 */

type rejectReason int

const (
	rejectNone rejectReason = iota
	/** @brief Command belongs to a different concrete render pass. Expected, non-fatal. */
	rejectPassMismatch
	/** @brief MeshID or MaterialID is zero or the max-u32 sentinel. */
	rejectSentinelIdentifier
	/** @brief MaterialID is not present in the command source's lookup table. */
	rejectUnknownMaterial
	/** @brief MeshID is not present in the command source's lookup table. */
	rejectUnknownMesh
	/** @brief Mesh metadata reports zero index or vertex count. */
	rejectEmptyMesh
)

func (r rejectReason) String() string {
	switch r {
	case rejectNone:
		return "accepted"
	case rejectPassMismatch:
		return "render pass mismatch"
	case rejectSentinelIdentifier:
		return "sentinel mesh or material identifier"
	case rejectUnknownMaterial:
		return "unknown material"
	case rejectUnknownMesh:
		return "unknown mesh"
	case rejectEmptyMesh:
		return "mesh metadata with zero index or vertex count"
	}
	return "unknown"
}

func identifierValid(id uint32) bool {
	return id != 0 && id != metadata.InvalidID
}

func commandPassMatches(cmd *metadata.IndirectRenderCommand, targetPass uint32) bool {
	return cmd.RenderPass == targetPass || cmd.RenderPass == metadata.RenderPassAny
}

/**
 * @brief Classifies a candidate against the target pass and the command
 * source's lookup tables. rejectNone means accepted.
 */
func classifyCommand(source CommandSource, cmd *metadata.IndirectRenderCommand, targetPass uint32) rejectReason {
	if !commandPassMatches(cmd, targetPass) {
		return rejectPassMismatch
	}
	if !identifierValid(cmd.MeshID) || !identifierValid(cmd.MaterialID) {
		return rejectSentinelIdentifier
	}
	if !source.MaterialKnown(cmd.MaterialID) {
		return rejectUnknownMaterial
	}
	mesh, ok := source.MeshMetadata(cmd.MeshID)
	if !ok {
		return rejectUnknownMesh
	}
	if mesh.IndexCount == 0 || mesh.VertexCount == 0 {
		return rejectEmptyMesh
	}
	return rejectNone
}

/**
 * @brief The host mirror of the spatial tests performed by the frustum and
 * hierarchical compute stages.
 */
func sphereVisibleHost(sphere *metadata.BoundingSphere, frustum *math.Frustum, cameraPosition math.Vec3, farClipSquared float32, cullMask uint32) bool {
	if sphere.LayerMask&cullMask == 0 {
		return false
	}
	if sphere.Center.DistanceSquared(cameraPosition) > farClipSquared {
		return false
	}
	return frustum.IntersectsSphere(sphere.Center, sphere.Radius)
}
