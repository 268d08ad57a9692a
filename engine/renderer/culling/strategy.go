package culling

import (
	"github.com/spaghettifunk/astra/engine/renderer"
	"github.com/spaghettifunk/astra/engine/renderer/components"
	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

/**
 * @brief The closed set of interchangeable culling strategies. Exactly one
 * is selected per cull invocation; a strategy that cannot acquire its
 * resources downgrades to the next-weaker one in the same frame.
 */
type Strategy int

const (
	/** @brief Pass filter and identifier validation only. The final fallback rung. */
	StrategyPassthrough Strategy = iota
	/** @brief Per-object frustum, distance and layer mask tests. */
	StrategyFrustum
	/** @brief Same tests as frustum, reached through the bounding hierarchy. */
	StrategyHierarchical
)

func (s Strategy) String() string {
	switch s {
	case StrategyPassthrough:
		return "passthrough"
	case StrategyFrustum:
		return "frustum"
	case StrategyHierarchical:
		return "hierarchical"
	}
	return "unknown"
}

/** @brief The next-weaker strategy; ok is false below passthrough. */
func (s Strategy) downgrade() (Strategy, bool) {
	switch s {
	case StrategyHierarchical:
		return StrategyFrustum, true
	case StrategyFrustum:
		return StrategyPassthrough, true
	}
	return StrategyPassthrough, false
}

/**
 * @brief The operator-facing culling configuration, sourced from the
 * surrounding engine's settings. Snapshotted once per cull invocation; a
 * flag change never takes effect mid-pipeline.
 */
type Flags struct {
	/** @brief Debug override forcing the passthrough strategy. */
	ForcePassthroughCulling bool
	/** @brief Permits the CPU fallback when a GPU pass yields zero visible commands. */
	AllowGPUCPUFallback bool
	EnableDebugLogging  bool
	/** @brief Enables the GPU-vs-CPU visibility cross-check. */
	EnableValidationLogging bool
	UseHierarchicalCulling  bool
}

/**
 * @brief Deterministically picks the strongest strategy whose resources are
 * all available. Hierarchical requires the feature flag, the hierarchical
 * compute stage, a ready hierarchy and a camera; frustum requires its stage
 * and a camera; everything else falls through to passthrough.
 */
func selectStrategy(flags Flags, backend renderer.ComputeBackend, source CommandSource, camera *components.Camera) Strategy {
	if flags.ForcePassthroughCulling {
		return StrategyPassthrough
	}
	if flags.UseHierarchicalCulling && camera != nil &&
		backend.HasCullStage(metadata.CULL_STAGE_HIERARCHICAL) {
		if hierarchy := source.BoundingHierarchy(); hierarchy != nil && hierarchy.Ready() {
			return StrategyHierarchical
		}
	}
	if camera != nil && backend.HasCullStage(metadata.CULL_STAGE_FRUSTUM) {
		return StrategyFrustum
	}
	return StrategyPassthrough
}
