package soft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/renderer"
	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

func TestRenderBufferRoundTrip(t *testing.T) {
	b := New()

	buffer, err := b.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_STORAGE, 64)
	require.NoError(t, err)

	payload := []byte{1, 2, 3, 4}
	require.NoError(t, b.RenderBufferLoadRange(buffer, 8, 4, payload))

	view, err := b.RenderBufferMapMemory(buffer, 8, 4)
	require.NoError(t, err)
	assert.Equal(t, payload, view)
	b.RenderBufferUnmapMemory(buffer)
}

func TestRenderBufferRangeChecks(t *testing.T) {
	b := New()

	_, err := b.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_STORAGE, 0)
	assert.Error(t, err)

	buffer, err := b.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_STORAGE, 16)
	require.NoError(t, err)

	assert.Error(t, b.RenderBufferLoadRange(buffer, 8, 16, make([]byte, 16)))

	_, err = b.RenderBufferMapMemory(buffer, 8, 16)
	assert.ErrorIs(t, err, core.ErrBufferNotMapped)
}

func TestForceMapFailure(t *testing.T) {
	b := New()

	buffer, err := b.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_READ, 16)
	require.NoError(t, err)

	b.ForceMapFailure = true
	_, err = b.RenderBufferMapMemory(buffer, 0, 16)
	assert.ErrorIs(t, err, core.ErrBufferNotMapped)

	b.ForceMapFailure = false
	_, err = b.RenderBufferMapMemory(buffer, 0, 16)
	assert.NoError(t, err)
}

func TestDisableStage(t *testing.T) {
	b := New()
	assert.True(t, b.HasCullStage(metadata.CULL_STAGE_FRUSTUM))

	b.DisableStage(metadata.CULL_STAGE_FRUSTUM)
	assert.False(t, b.HasCullStage(metadata.CULL_STAGE_FRUSTUM))

	err := b.DispatchCull(metadata.CULL_STAGE_FRUSTUM, &renderer.CullDispatchParams{})
	assert.ErrorIs(t, err, core.ErrStageUnavailable)
}

func TestPassthroughStageOverflowAccounting(t *testing.T) {
	b := New()

	const candidateCount = 6
	const capacity = 2

	candidates, err := b.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_STORAGE, candidateCount*metadata.CommandStride)
	require.NoError(t, err)
	culled, err := b.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_STORAGE, capacity*metadata.CommandStride)
	require.NoError(t, err)
	counters, err := b.RenderBufferCreate(metadata.RENDERBUFFER_TYPE_READ, metadata.CounterBufferSize)
	require.NoError(t, err)

	block := make([]byte, candidateCount*metadata.CommandStride)
	for i := uint32(0); i < candidateCount; i++ {
		cmd := metadata.IndirectRenderCommand{
			MeshID:        1,
			MaterialID:    1,
			RenderPass:    0,
			InstanceCount: 2,
		}
		metadata.EncodeCommand(block[uint64(i)*metadata.CommandStride:], &cmd)
	}
	require.NoError(t, b.RenderBufferLoadRange(candidates, 0, uint64(len(block)), block))

	err = b.DispatchCull(metadata.CULL_STAGE_PASSTHROUGH, &renderer.CullDispatchParams{
		CandidateBuffer: candidates,
		CulledBuffer:    culled,
		CounterBuffer:   counters,
		CandidateCount:  candidateCount,
		Capacity:        capacity,
		TargetPass:      0,
	})
	require.NoError(t, err)

	view, err := b.RenderBufferMapMemory(counters, 0, metadata.CounterBufferSize)
	require.NoError(t, err)
	defer b.RenderBufferUnmapMemory(counters)

	result := metadata.DecodeCounters(view)
	assert.Equal(t, uint32(capacity), result.DrawCount)
	// Instance totals only cover the commands that were written.
	assert.Equal(t, uint32(capacity*2), result.InstanceCount)
	assert.Equal(t, uint32(candidateCount-capacity), result.Overflow)
}
