package culling

import (
	"github.com/spaghettifunk/astra/engine/renderer"
	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

/**
 * @brief Moves the small visibility counter block between host and device.
 * The same map/unmap path serves reads and writes, so callers never care
 * whether the backend keeps the buffer persistently mapped. Every failure
 * surfaces as an error value and resolves to "skip this pass" upstream.
 */
type counterManager struct {
	backend renderer.ComputeBackend
	buffer  *metadata.RenderBuffer
}

var zeroCounterBlock [metadata.CounterBufferSize]byte

/** @brief Zeroes all three counters. Called at the start of every invocation. */
func (cm *counterManager) Reset() error {
	return cm.backend.RenderBufferLoadRange(cm.buffer, 0, metadata.CounterBufferSize, zeroCounterBlock[:])
}

func (cm *counterManager) Read() (metadata.VisibilityCounters, error) {
	view, err := cm.backend.RenderBufferMapMemory(cm.buffer, 0, metadata.CounterBufferSize)
	if err != nil {
		return metadata.VisibilityCounters{}, err
	}
	counters := metadata.DecodeCounters(view)
	cm.backend.RenderBufferUnmapMemory(cm.buffer)
	return counters, nil
}

func (cm *counterManager) Write(counters metadata.VisibilityCounters) error {
	view, err := cm.backend.RenderBufferMapMemory(cm.buffer, 0, metadata.CounterBufferSize)
	if err != nil {
		return err
	}
	metadata.EncodeCounters(view, &counters)
	cm.backend.RenderBufferUnmapMemory(cm.buffer)
	return nil
}
