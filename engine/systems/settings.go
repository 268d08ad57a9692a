package systems

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/renderer/culling"
)

/**
 * @brief On-disk culling settings. Decoded from a TOML file and re-read
 * whenever the file changes on disk.
 */
type CullSettings struct {
	/** @brief Hard upper bound of commands a culled buffer can hold. */
	Capacity uint32 `toml:"capacity"`
	/** @brief Forces the passthrough strategy for every pass. */
	ForcePassthroughCulling bool `toml:"force_passthrough_culling"`
	/** @brief Enables the hierarchical strategy when a hierarchy is ready. */
	UseHierarchicalCulling bool `toml:"use_hierarchical_culling"`
	/** @brief Allows the host-side fallback when a dispatch produces nothing. */
	AllowGPUCPUFallback bool `toml:"allow_gpu_cpu_fallback"`
	EnableDebugLogging  bool `toml:"enable_debug_logging"`
	/** @brief Enables the host-side cross-check of device results. */
	EnableValidationLogging bool `toml:"enable_validation_logging"`
}

func DefaultCullSettings() CullSettings {
	return CullSettings{
		Capacity:                1024,
		UseHierarchicalCulling:  true,
		AllowGPUCPUFallback:     true,
		EnableDebugLogging:      false,
		EnableValidationLogging: false,
	}
}

func (s CullSettings) Flags() culling.Flags {
	return culling.Flags{
		ForcePassthroughCulling: s.ForcePassthroughCulling,
		UseHierarchicalCulling:  s.UseHierarchicalCulling,
		AllowGPUCPUFallback:     s.AllowGPUCPUFallback,
		EnableDebugLogging:      s.EnableDebugLogging,
		EnableValidationLogging: s.EnableValidationLogging,
	}
}

/**
 * @brief Watches a TOML settings file and pushes decoded settings to
 * subscribers whenever it changes. Subscribers are notified from the
 * watcher goroutine.
 */
type SettingsSystem struct {
	path     string
	current  CullSettings
	mutex    sync.RWMutex
	handlers []func(CullSettings)

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewSettingsSystem(path string) (*SettingsSystem, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ss := &SettingsSystem{
		path:     path,
		current:  DefaultCullSettings(),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}

	// A missing file is not fatal, defaults apply until one appears.
	if err := ss.reload(); err != nil && !os.IsNotExist(err) {
		fsWatch.Close()
		return nil, err
	}

	return ss, nil
}

func (ss *SettingsSystem) Initialize() error {
	if err := ss.fsnotify.Add(ss.path); err != nil {
		core.LogWarn("settings file `%s` is not watchable: %s", ss.path, err.Error())
	}
	go ss.start()
	return nil
}

func (ss *SettingsSystem) Shutdown() error {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()
	if ss.isClosed {
		return nil
	}
	ss.isClosed = true
	close(ss.done)
	return nil
}

/** @brief Returns the settings as of the last successful decode. */
func (ss *SettingsSystem) Current() CullSettings {
	ss.mutex.RLock()
	defer ss.mutex.RUnlock()
	return ss.current
}

/**
 * @brief Registers a handler invoked with the new settings after every
 * successful reload. The handler is also invoked immediately with the
 * current settings.
 */
func (ss *SettingsSystem) Subscribe(handler func(CullSettings)) {
	ss.mutex.Lock()
	ss.handlers = append(ss.handlers, handler)
	current := ss.current
	ss.mutex.Unlock()
	handler(current)
}

func (ss *SettingsSystem) start() {
	for {
		select {
		case e := <-ss.fsnotify.Events:
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if err := ss.reload(); err != nil {
				core.LogError("func start - reloading settings from `%s` failed: %s", ss.path, err.Error())
				continue
			}
			ss.notify()

		case e := <-ss.fsnotify.Errors:
			core.LogError(e.Error())

		case <-ss.done:
			ss.fsnotify.Close()
			return
		}
	}
}

func (ss *SettingsSystem) reload() error {
	data, err := os.ReadFile(ss.path)
	if err != nil {
		return err
	}

	settings := DefaultCullSettings()
	if err := toml.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("func reload - invalid settings file: %w", err)
	}
	if settings.Capacity == 0 {
		return fmt.Errorf("func reload - capacity must be > 0")
	}

	ss.mutex.Lock()
	ss.current = settings
	ss.mutex.Unlock()

	core.LogInfo("cull settings loaded from `%s`", ss.path)
	return nil
}

func (ss *SettingsSystem) notify() {
	ss.mutex.RLock()
	handlers := make([]func(CullSettings), len(ss.handlers))
	copy(handlers, ss.handlers)
	current := ss.current
	ss.mutex.RUnlock()

	for _, handler := range handlers {
		handler(current)
	}
}
