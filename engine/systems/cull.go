package systems

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/renderer"
	"github.com/spaghettifunk/astra/engine/renderer/components"
	"github.com/spaghettifunk/astra/engine/renderer/culling"
)

/** @brief The cull system configuration. */
type CullSystemConfig struct {
	/** @brief NOTE: The maximum number of render passes the system manages. */
	MaxPassCount uint16
}

type passEntry struct {
	ID       uuid.UUID
	Pipeline *culling.CullPipeline
}

/**
 * @brief Owns one cull pipeline per registered render pass and fans
 * settings changes out to all of them. Pipelines share a single diagnostic
 * budget so chatty passes cannot starve quiet ones of log samples.
 */
type CullSystem struct {
	Config  *CullSystemConfig
	backend renderer.ComputeBackend
	source  culling.CommandSource
	budget  *culling.DiagnosticBudget

	mutex    sync.RWMutex
	passes   map[uint32]*passEntry
	settings CullSettings
}

func NewCullSystem(config *CullSystemConfig, backend renderer.ComputeBackend, source culling.CommandSource) (*CullSystem, error) {
	if config.MaxPassCount == 0 {
		err := fmt.Errorf("func NewCullSystem - config.MaxPassCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	if backend == nil || source == nil {
		err := fmt.Errorf("func NewCullSystem - backend and source are required")
		core.LogError(err.Error())
		return nil, err
	}
	return &CullSystem{
		Config:   config,
		backend:  backend,
		source:   source,
		budget:   culling.NewDiagnosticBudget(),
		passes:   make(map[uint32]*passEntry, config.MaxPassCount),
		settings: DefaultCullSettings(),
	}, nil
}

func (cs *CullSystem) Shutdown() error {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()
	for pass, entry := range cs.passes {
		entry.Pipeline.Destroy()
		delete(cs.passes, pass)
	}
	return nil
}

/**
 * @brief Registers a render pass and creates its cull pipeline using the
 * current settings. Registering an already-registered pass is an error.
 */
func (cs *CullSystem) RegisterPass(targetPass uint32) (*culling.CullPipeline, error) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if _, exists := cs.passes[targetPass]; exists {
		return nil, fmt.Errorf("func RegisterPass - pass %d already registered", targetPass)
	}
	if len(cs.passes) >= int(cs.Config.MaxPassCount) {
		return nil, fmt.Errorf("func RegisterPass - pass limit of %d reached", cs.Config.MaxPassCount)
	}

	pipeline, err := culling.NewCullPipeline(&culling.CullPipelineConfig{
		Backend:    cs.backend,
		Source:     cs.source,
		TargetPass: targetPass,
		Capacity:   cs.settings.Capacity,
		Flags:      cs.settings.Flags(),
		Budget:     cs.budget,
	})
	if err != nil {
		return nil, fmt.Errorf("func RegisterPass - %w", err)
	}

	entry := &passEntry{
		ID:       uuid.New(),
		Pipeline: pipeline,
	}
	cs.passes[targetPass] = entry

	core.LogInfo("cull pass %d registered with id %s", targetPass, entry.ID.String())
	return pipeline, nil
}

/** @brief Removes a pass and destroys its pipeline. */
func (cs *CullSystem) UnregisterPass(targetPass uint32) error {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	entry, exists := cs.passes[targetPass]
	if !exists {
		return fmt.Errorf("func UnregisterPass - pass %d is not registered", targetPass)
	}
	entry.Pipeline.Destroy()
	delete(cs.passes, targetPass)
	return nil
}

func (cs *CullSystem) Pipeline(targetPass uint32) (*culling.CullPipeline, bool) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()
	entry, exists := cs.passes[targetPass]
	if !exists {
		return nil, false
	}
	return entry.Pipeline, true
}

/**
 * @brief Pushes new settings to every registered pipeline. Capacity changes
 * only apply to pipelines created afterwards; flags apply on each pipeline's
 * next invocation.
 */
func (cs *CullSystem) ApplySettings(settings CullSettings) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if settings.Capacity != cs.settings.Capacity {
		core.LogInfo("cull capacity changed from %d to %d; existing passes keep their buffers", cs.settings.Capacity, settings.Capacity)
	}
	cs.settings = settings

	flags := settings.Flags()
	for _, entry := range cs.passes {
		entry.Pipeline.SetFlags(flags)
	}
}

/** @brief Resets the shared diagnostic budget for a new capture window. */
func (cs *CullSystem) ResetDiagnosticBudget() {
	cs.budget.Reset()
}

/**
 * @brief Runs every registered pass against the current candidate set.
 * Returns the per-pass stats keyed by render pass.
 */
func (cs *CullSystem) CullAll(camera *components.Camera) map[uint32]culling.CullStats {
	cs.mutex.RLock()
	entries := make(map[uint32]*passEntry, len(cs.passes))
	for pass, entry := range cs.passes {
		entries[pass] = entry
	}
	cs.mutex.RUnlock()

	candidateCount := cs.source.CandidateCount()
	stats := make(map[uint32]culling.CullStats, len(entries))
	for pass, entry := range entries {
		entry.Pipeline.Cull(candidateCount, camera)
		stats[pass] = entry.Pipeline.LastCullStats()
	}
	return stats
}
