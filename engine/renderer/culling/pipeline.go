package culling

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/renderer"
	"github.com/spaghettifunk/astra/engine/renderer/components"
	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

/** @brief The phases one cull invocation moves through, in order. */
type CullState int

const (
	CULL_STATE_IDLE CullState = iota
	CULL_STATE_STRATEGY_SELECTED
	CULL_STATE_DISPATCHED
	CULL_STATE_COUNTERS_READ
	CULL_STATE_SANITIZED
	/** @brief Terminal: counters are authoritative, draws may be submitted. */
	CULL_STATE_PUBLISHED
	/** @brief Terminal: counters forced to zero, the caller must not draw. */
	CULL_STATE_SKIPPED
)

/** @brief Outcome of the most recent cull invocation. */
type CullStats struct {
	Strategy         Strategy
	Candidates       uint32
	Visible          uint32
	VisibleInstances uint32
	/** @brief Entries removed by the sanitizer. */
	Dropped uint32
	/** @brief Accepted commands that did not fit the culled buffer. */
	Overflow uint32
	Duration time.Duration
}

type CullPipelineConfig struct {
	Backend renderer.ComputeBackend
	Source  CommandSource
	/** @brief The render pass this pipeline filters for. May be RenderPassAny. */
	TargetPass uint32
	/** @brief Hard upper bound of visible commands per pass. Must be > 0. */
	Capacity uint32
	Flags    Flags
	/** @brief Optional shared diagnostic budget; one is created when nil. */
	Budget *DiagnosticBudget
}

/**
 * @brief Orchestrates visibility culling for one render pass: strategy
 * selection, compute dispatch, counter readback, host-side sanitation and
 * the optional CPU fallback. The culled buffer and counters are exclusively
 * owned by this pipeline for the duration of an invocation; a single render
 * thread drives Cull while flag updates may arrive from a watcher
 * goroutine.
 *
 * No failure escapes Cull. Every internal fault degrades to zero visible
 * commands plus a recorded skip reason, and callers must consult
 * WasSubmissionSkipped before submitting draws.
 */
type CullPipeline struct {
	backend renderer.ComputeBackend
	source  CommandSource

	targetPass uint32
	capacity   uint32

	culledBuffer  *metadata.RenderBuffer
	counterBuffer *metadata.RenderBuffer
	counters      counterManager

	flagsMutex sync.Mutex
	flags      Flags

	diag  *diagnostics
	state CullState

	published  metadata.VisibilityCounters
	skipReason string
	skipped    bool
	lastStats  CullStats
}

func NewCullPipeline(config *CullPipelineConfig) (*CullPipeline, error) {
	if config.Backend == nil || config.Source == nil {
		return nil, fmt.Errorf("func NewCullPipeline - backend and source are required")
	}
	if config.Capacity == 0 {
		return nil, fmt.Errorf("func NewCullPipeline - config.Capacity must be > 0")
	}

	culled, err := config.Backend.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_STORAGE, uint64(config.Capacity)*metadata.CommandStride)
	if err != nil {
		return nil, fmt.Errorf("func NewCullPipeline - creating culled buffer: %w", err)
	}
	counterBuffer, err := config.Backend.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_READ, metadata.CounterBufferSize)
	if err != nil {
		config.Backend.RenderBufferDestroy(culled)
		return nil, fmt.Errorf("func NewCullPipeline - creating counter buffer: %w", err)
	}

	budget := config.Budget
	if budget == nil {
		budget = NewDiagnosticBudget()
	}

	p := &CullPipeline{
		backend:       config.Backend,
		source:        config.Source,
		targetPass:    config.TargetPass,
		capacity:      config.Capacity,
		culledBuffer:  culled,
		counterBuffer: counterBuffer,
		flags:         config.Flags,
		diag:          newDiagnostics(budget),
		state:         CULL_STATE_IDLE,
	}
	p.counters = counterManager{backend: config.Backend, buffer: counterBuffer}
	return p, nil
}

func (p *CullPipeline) Destroy() {
	p.backend.RenderBufferDestroy(p.culledBuffer)
	p.backend.RenderBufferDestroy(p.counterBuffer)
}

/** @brief Replaces the operator flags. Takes effect on the next invocation. */
func (p *CullPipeline) SetFlags(flags Flags) {
	p.flagsMutex.Lock()
	p.flags = flags
	p.flagsMutex.Unlock()
}

func (p *CullPipeline) snapshotFlags() Flags {
	p.flagsMutex.Lock()
	defer p.flagsMutex.Unlock()
	return p.flags
}

/** @brief The render pass this pipeline filters for. */
func (p *CullPipeline) TargetPass() uint32 {
	return p.targetPass
}

/** @brief The culled command buffer for indirect draw submission. */
func (p *CullPipeline) CulledBuffer() *metadata.RenderBuffer {
	return p.culledBuffer
}

/** @brief Authoritative only when the pass was not skipped. */
func (p *CullPipeline) VisibleDrawCount() uint32 {
	return p.published.DrawCount
}

/** @brief Authoritative only when the pass was not skipped. */
func (p *CullPipeline) VisibleInstanceCount() uint32 {
	return p.published.InstanceCount
}

/** @brief The skip reason of the last invocation, if it was skipped. */
func (p *CullPipeline) WasSubmissionSkipped() (string, bool) {
	return p.skipReason, p.skipped
}

func (p *CullPipeline) LastCullStats() CullStats {
	return p.lastStats
}

/**
 * @brief Runs one complete cull invocation for this pipeline's render pass.
 * Exactly one strategy dispatch runs (with same-frame downgrades on
 * resource failure); the sanitizer runs only when the pre-sanitize visible
 * count is nonzero; the CPU fallback only when permitted and the GPU result
 * is unexpectedly empty. Each invocation is independent: there is no retry
 * across frames.
 */
func (p *CullPipeline) Cull(candidateCount uint32, camera *components.Camera) {
	started := time.Now()
	flags := p.snapshotFlags()
	p.diag.configure(flags)

	p.state = CULL_STATE_IDLE
	p.skipped = false
	p.skipReason = ""
	p.published = metadata.VisibilityCounters{}
	p.lastStats = CullStats{Candidates: candidateCount}

	if candidateCount == 0 {
		// Nothing to cull; publish zero counters without a dispatch.
		if err := p.counters.Reset(); err != nil {
			p.skipPass(fmt.Sprintf("resetting counters: %v", err))
			return
		}
		p.state = CULL_STATE_PUBLISHED
		p.lastStats.Duration = time.Since(started)
		return
	}

	p.diag.sampleRawCommands(p.source, candidateCount)

	strategy := selectStrategy(flags, p.backend, p.source, camera)
	p.state = CULL_STATE_STRATEGY_SELECTED
	p.lastStats.Strategy = strategy

	counters, ok := p.dispatchAndRead(strategy, candidateCount, camera)
	if !ok {
		p.lastStats.Duration = time.Since(started)
		return
	}

	if counters.DrawCount > 0 {
		sanitized, err := p.sanitize(counters)
		if err != nil {
			p.skipPass(fmt.Sprintf("sanitize failed: %v", err))
			p.lastStats.Duration = time.Since(started)
			return
		}
		counters = sanitized
	}
	p.state = CULL_STATE_SANITIZED

	if counters.DrawCount == 0 && p.targetPass != metadata.RenderPassAny && flags.AllowGPUCPUFallback {
		recovered, skipReason, err := p.cpuFallback(candidateCount)
		if err != nil {
			p.skipPass(fmt.Sprintf("cpu fallback failed: %v", err))
			p.lastStats.Duration = time.Since(started)
			return
		}
		if skipReason != "" {
			p.skipPass(skipReason)
			p.lastStats.Duration = time.Since(started)
			return
		}
		counters = recovered
	}

	p.published = counters
	p.state = CULL_STATE_PUBLISHED
	p.lastStats.Visible = counters.DrawCount
	p.lastStats.VisibleInstances = counters.InstanceCount
	p.lastStats.Overflow = counters.Overflow
	p.lastStats.Duration = time.Since(started)

	p.diag.crossCheck(p, p.lastStats.Strategy, camera, candidateCount, counters)
}

/**
 * @brief Runs the reset -> dispatch -> barrier -> readback sequence for the
 * chosen strategy, downgrading to the next-weaker strategy within the same
 * invocation whenever a required resource cannot be acquired. Returns false
 * after marking the pass skipped when no strategy could run or the counters
 * could not be read back.
 */
func (p *CullPipeline) dispatchAndRead(strategy Strategy, candidateCount uint32, camera *components.Camera) (metadata.VisibilityCounters, bool) {
	for {
		if err := p.counters.Reset(); err != nil {
			p.skipPass(fmt.Sprintf("resetting counters: %v", err))
			return metadata.VisibilityCounters{}, false
		}

		err := p.dispatchStrategy(strategy, candidateCount, camera)
		if err == nil {
			break
		}

		weaker, ok := strategy.downgrade()
		if !ok {
			p.skipPass(fmt.Sprintf("no culling strategy available: %v", err))
			return metadata.VisibilityCounters{}, false
		}
		core.LogWarn("cull pass %d: %s strategy unavailable (%v), downgrading to %s", p.targetPass, strategy, err, weaker)
		strategy = weaker
		p.lastStats.Strategy = strategy
	}
	p.state = CULL_STATE_DISPATCHED

	// The dispatch is asynchronous; block until its writes are host-visible.
	p.backend.MemoryBarrier()

	counters, err := p.counters.Read()
	if err != nil {
		p.skipPass(fmt.Sprintf("counter readback failed: %v", err))
		return metadata.VisibilityCounters{}, false
	}
	p.state = CULL_STATE_COUNTERS_READ
	p.diag.sampleResult(p.lastStats.Strategy, counters)

	if counters.DrawCount > p.capacity {
		// A dispatch can never legally report more than capacity. Treat it
		// as corruption of the counter block itself.
		p.skipPass(fmt.Sprintf("counter corruption: visible count %d exceeds capacity %d", counters.DrawCount, p.capacity))
		return metadata.VisibilityCounters{}, false
	}
	return counters, true
}

func (p *CullPipeline) dispatchStrategy(strategy Strategy, candidateCount uint32, camera *components.Camera) error {
	switch strategy {
	case StrategyHierarchical:
		return p.dispatchHierarchical(candidateCount, camera)
	case StrategyFrustum:
		return p.dispatchFrustum(candidateCount, camera)
	default:
		return p.dispatchPassthrough(candidateCount)
	}
}

/**
 * @brief Marks the pass as not submittable. Counters are forced to zero so
 * that a caller ignoring the skip signal still draws nothing.
 */
func (p *CullPipeline) skipPass(reason string) {
	p.skipped = true
	p.skipReason = reason
	p.published = metadata.VisibilityCounters{}
	p.state = CULL_STATE_SKIPPED
	if err := p.counters.Write(metadata.VisibilityCounters{}); err != nil {
		// The device-side counters could not be zeroed; the cached zeros
		// above still protect any caller going through this pipeline.
		core.LogError("cull pass %d skipped and counter zeroing failed: %v", p.targetPass, err)
	}
	core.LogWarn("cull pass %d: submission skipped: %s", p.targetPass, reason)
}
