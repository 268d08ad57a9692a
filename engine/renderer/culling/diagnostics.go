package culling

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/math"
	"github.com/spaghettifunk/astra/engine/renderer/components"
	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

const (
	defaultRawSampleBudget   int32 = 8
	defaultResultBudget      int32 = 32
	defaultCrossCheckBudget  int32 = 4
	defaultSoftIssueBudget   int32 = 64
	rawSampleCommandsPerCull       = 4
)

/**
 * @brief Bounded message budgets for the diagnostic paths. Budgets decrement
 * atomically per message since strategies may log from several paths within
 * one frame, and are only replenished by an explicit Reset (an operator
 * action, typically on scene load), never automatically per frame. They are
 * a verbosity throttle, not a correctness mechanism.
 */
type DiagnosticBudget struct {
	rawSamples  atomic.Int32
	results     atomic.Int32
	crossChecks atomic.Int32
	softIssues  atomic.Int32
}

func NewDiagnosticBudget() *DiagnosticBudget {
	b := &DiagnosticBudget{}
	b.Reset()
	return b
}

/** @brief Replenishes every budget. */
func (b *DiagnosticBudget) Reset() {
	b.rawSamples.Store(defaultRawSampleBudget)
	b.results.Store(defaultResultBudget)
	b.crossChecks.Store(defaultCrossCheckBudget)
	b.softIssues.Store(defaultSoftIssueBudget)
}

func takeBudget(counter *atomic.Int32) bool {
	for {
		current := counter.Load()
		if current <= 0 {
			return false
		}
		if counter.CompareAndSwap(current, current-1) {
			return true
		}
	}
}

/**
 * @brief Rate-limited diagnostic instrumentation for one cull pipeline.
 * Purely observational: disabling it changes nothing but log volume.
 */
type diagnostics struct {
	budget    *DiagnosticBudget
	sessionID uuid.UUID

	debugEnabled      bool
	validationEnabled bool
}

func newDiagnostics(budget *DiagnosticBudget) *diagnostics {
	return &diagnostics{
		budget:    budget,
		sessionID: uuid.New(),
	}
}

func (d *diagnostics) configure(flags Flags) {
	d.debugEnabled = flags.EnableDebugLogging
	d.validationEnabled = flags.EnableValidationLogging
}

func (d *diagnostics) debugf(msg string, args ...interface{}) {
	if !d.debugEnabled {
		return
	}
	if !takeBudget(&d.budget.softIssues) {
		return
	}
	core.LogDebug("[cull %s] "+msg, append([]interface{}{d.sessionID.String()[:8]}, args...)...)
}

/** @brief Samples a handful of raw candidates before dispatch. */
func (d *diagnostics) sampleRawCommands(source CommandSource, candidateCount uint32) {
	if !d.debugEnabled || candidateCount == 0 {
		return
	}
	if !takeBudget(&d.budget.rawSamples) {
		return
	}
	sample := uint32(rawSampleCommandsPerCull)
	if candidateCount < sample {
		sample = candidateCount
	}
	for i := uint32(0); i < sample; i++ {
		cmd, err := source.CommandAt(i)
		if err != nil {
			core.LogDebug("[cull %s] raw sample %d unavailable: %v", d.sessionID.String()[:8], i, err)
			continue
		}
		core.LogDebug("[cull %s] raw candidate %d: mesh=%d material=%d pass=%d instances=%d",
			d.sessionID.String()[:8], i, cmd.MeshID, cmd.MaterialID, cmd.RenderPass, cmd.InstanceCount)
	}
}

/** @brief Logs the outcome of one dispatch. */
func (d *diagnostics) sampleResult(strategy Strategy, counters metadata.VisibilityCounters) {
	if !d.debugEnabled {
		return
	}
	if !takeBudget(&d.budget.results) {
		return
	}
	core.LogDebug("[cull %s] %s dispatch: visible=%d instances=%d overflow=%d",
		d.sessionID.String()[:8], strategy, counters.DrawCount, counters.InstanceCount, counters.Overflow)
}

/** @brief A (mesh, material, pass) visibility signature. */
type visibilitySignature struct {
	mesh, material, pass uint32
}

/**
 * @brief Opt-in cross-check: independently computes the host-predicate
 * visible set and diffs its signature multiset against the published culled
 * buffer, reporting any asymmetric differences. Never touches counters or
 * the buffer.
 */
func (d *diagnostics) crossCheck(p *CullPipeline, strategy Strategy, camera *components.Camera, candidateCount uint32, published metadata.VisibilityCounters) {
	if !d.validationEnabled {
		return
	}
	if !takeBudget(&d.budget.crossChecks) {
		return
	}

	expected := d.hostVisibleSet(p, strategy, camera, candidateCount)

	size := uint64(published.DrawCount) * metadata.CommandStride
	actual := make(map[visibilitySignature]int)
	if size > 0 {
		view, err := p.backend.RenderBufferMapMemory(p.culledBuffer, 0, size)
		if err != nil {
			core.LogDebug("[cull %s] cross-check aborted, culled buffer unmappable: %v", d.sessionID.String()[:8], err)
			return
		}
		for i := uint32(0); i < published.DrawCount; i++ {
			cmd := metadata.DecodeCommand(view[uint64(i)*metadata.CommandStride:])
			actual[visibilitySignature{cmd.MeshID, cmd.MaterialID, cmd.RenderPass}]++
		}
		p.backend.RenderBufferUnmapMemory(p.culledBuffer)
	}

	mismatches := 0
	for sig, want := range expected {
		if got := actual[sig]; got != want {
			mismatches++
			core.LogDebug("[cull %s] cross-check mismatch (mesh=%d material=%d pass=%d): cpu=%d gpu=%d",
				d.sessionID.String()[:8], sig.mesh, sig.material, sig.pass, want, got)
		}
	}
	for sig, got := range actual {
		if _, ok := expected[sig]; !ok {
			mismatches++
			core.LogDebug("[cull %s] cross-check mismatch (mesh=%d material=%d pass=%d): cpu=0 gpu=%d",
				d.sessionID.String()[:8], sig.mesh, sig.material, sig.pass, got)
		}
	}
	if mismatches == 0 {
		core.LogDebug("[cull %s] cross-check clean: %d signatures", d.sessionID.String()[:8], len(expected))
	}
}

// The capacity clamp is applied in candidate order, matching the soft
// backend; a real device may clamp a different subset, in which case the
// cross-check reports the difference rather than hiding it.
func (d *diagnostics) hostVisibleSet(p *CullPipeline, strategy Strategy, camera *components.Camera, candidateCount uint32) map[visibilitySignature]int {
	spatial := strategy != StrategyPassthrough && camera != nil
	var frustum math.Frustum
	var farClipSquared float32
	if spatial {
		frustum = camera.GetFrustum()
		farClipSquared = camera.FarClip * camera.FarClip
	}

	expected := make(map[visibilitySignature]int)
	accepted := uint32(0)
	for i := uint32(0); i < candidateCount && accepted < p.capacity; i++ {
		cmd, err := p.source.CommandAt(i)
		if err != nil {
			continue
		}
		if classifyCommand(p.source, &cmd, p.targetPass) != rejectNone {
			continue
		}
		if spatial {
			sphere, err := p.source.BoundingVolumeAt(i)
			if err != nil {
				continue
			}
			if !sphereVisibleHost(&sphere, &frustum, camera.GetPosition(), farClipSquared, camera.CullMask) {
				continue
			}
		}
		expected[visibilitySignature{cmd.MeshID, cmd.MaterialID, cmd.RenderPass}]++
		accepted++
	}
	return expected
}
