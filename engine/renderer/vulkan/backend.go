package vulkan

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/math"
	"github.com/spaghettifunk/astra/engine/renderer"
	"github.com/spaghettifunk/astra/engine/renderer/metadata"
)

const (
	// std140 layout of the CullParams uniform block.
	cullParamsSize uint64 = 144

	// Thread-group widths baked into the compute shaders.
	cullWorkgroupSize             uint32 = 256
	cullHierarchicalWorkgroupSize uint32 = 64
)

var cullStageShaderNames = map[metadata.CullStageType]string{
	metadata.CULL_STAGE_PASSTHROUGH:  "cull_passthrough.comp.spv",
	metadata.CULL_STAGE_FRUSTUM:      "cull_frustum.comp.spv",
	metadata.CULL_STAGE_HIERARCHICAL: "cull_hierarchical.comp.spv",
}

/**
 * @brief Vulkan implementation of the compute backend. Headless; it owns a
 * compute-only device, one pipeline per available cull stage and the uniform
 * buffer the dispatch parameters are streamed through.
 */
type VulkanBackend struct {
	context *VulkanContext
	// One pipeline per cull stage whose SPIR-V module was found on disk.
	pipelines map[metadata.CullStageType]*VulkanComputePipeline
	// Uniform buffer rewritten before every dispatch.
	paramsBuffer *VulkanBuffer
	// Bound in place of hierarchy buffers for the non-hierarchical stages.
	placeholderBuffer *VulkanBuffer
}

type VulkanBackendConfig struct {
	ApplicationName string
	/** @brief Directory the compiled .spv cull shaders live in. */
	ShaderPath string
}

func New(config *VulkanBackendConfig) (*VulkanBackend, error) {
	context, err := NewVulkanContext(config.ApplicationName)
	if err != nil {
		return nil, err
	}

	backend := &VulkanBackend{
		context:   context,
		pipelines: make(map[metadata.CullStageType]*VulkanComputePipeline),
	}

	// A missing shader module is not fatal, the stage is simply reported
	// unavailable and the pipeline downgrades.
	for stage, name := range cullStageShaderNames {
		shaderPath := filepath.Join(config.ShaderPath, name)
		if _, err := os.Stat(shaderPath); err != nil {
			core.LogWarn("cull stage %s unavailable, shader module `%s` not found", stage.String(), shaderPath)
			continue
		}
		pipeline, err := NewVulkanComputePipeline(context, shaderPath)
		if err != nil {
			core.LogWarn("cull stage %s unavailable: %s", stage.String(), err.Error())
			continue
		}
		backend.pipelines[stage] = pipeline
	}

	backend.paramsBuffer, err = NewVulkanBuffer(context, cullParamsSize, vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit))
	if err != nil {
		backend.Shutdown()
		return nil, err
	}
	backend.placeholderBuffer, err = NewVulkanBuffer(context, metadata.BVHNodeStride, vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit))
	if err != nil {
		backend.Shutdown()
		return nil, err
	}

	core.LogInfo("vulkan compute backend initialized with %d cull stage(s)", len(backend.pipelines))

	return backend, nil
}

func (vr *VulkanBackend) Shutdown() {
	if vr.context != nil {
		vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)
	}
	for _, pipeline := range vr.pipelines {
		pipeline.Destroy(vr.context)
	}
	vr.pipelines = make(map[metadata.CullStageType]*VulkanComputePipeline)
	if vr.paramsBuffer != nil {
		vr.paramsBuffer.Destroy(vr.context)
		vr.paramsBuffer = nil
	}
	if vr.placeholderBuffer != nil {
		vr.placeholderBuffer.Destroy(vr.context)
		vr.placeholderBuffer = nil
	}
	if vr.context != nil {
		vr.context.Destroy()
		vr.context = nil
	}
}

func (vr *VulkanBackend) RenderBufferCreate(renderbufferType metadata.RenderBufferType, totalSize uint64) (*metadata.RenderBuffer, error) {
	usage := vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit | vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit)
	if renderbufferType == metadata.RENDERBUFFER_TYPE_UNIFORM {
		usage = vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit | vk.BufferUsageTransferDstBit)
	}
	internal, err := NewVulkanBuffer(vr.context, totalSize, usage)
	if err != nil {
		return nil, err
	}
	return &metadata.RenderBuffer{
		RenderBufferType: renderbufferType,
		TotalSize:        totalSize,
		InternalData:     internal,
	}, nil
}

func (vr *VulkanBackend) RenderBufferDestroy(buffer *metadata.RenderBuffer) {
	if buffer == nil {
		return
	}
	if internal, ok := buffer.InternalData.(*VulkanBuffer); ok && internal != nil {
		internal.Destroy(vr.context)
	}
	buffer.InternalData = nil
}

func (vr *VulkanBackend) RenderBufferLoadRange(buffer *metadata.RenderBuffer, offset, size uint64, data []byte) error {
	internal, err := vr.internalBuffer(buffer)
	if err != nil {
		return err
	}
	return internal.LoadRange(vr.context, offset, size, data)
}

func (vr *VulkanBackend) RenderBufferMapMemory(buffer *metadata.RenderBuffer, offset, size uint64) ([]byte, error) {
	internal, err := vr.internalBuffer(buffer)
	if err != nil {
		return nil, err
	}
	return internal.Map(vr.context, offset, size)
}

func (vr *VulkanBackend) RenderBufferUnmapMemory(buffer *metadata.RenderBuffer) {
	internal, err := vr.internalBuffer(buffer)
	if err != nil {
		return
	}
	internal.Unmap(vr.context)
}

func (vr *VulkanBackend) HasCullStage(stage metadata.CullStageType) bool {
	_, ok := vr.pipelines[stage]
	return ok
}

func (vr *VulkanBackend) DispatchCull(stage metadata.CullStageType, params *renderer.CullDispatchParams) error {
	pipeline, ok := vr.pipelines[stage]
	if !ok {
		return core.ErrStageUnavailable
	}

	if err := vr.writeCullParams(params); err != nil {
		return err
	}

	buffers, err := vr.bindingBuffers(params)
	if err != nil {
		return err
	}
	pipeline.UpdateDescriptors(vr.context, buffers)

	threadCount := params.CandidateCount
	groupWidth := cullWorkgroupSize
	if stage == metadata.CULL_STAGE_HIERARCHICAL {
		threadCount = params.BVHLeafCount
		groupWidth = cullHierarchicalWorkgroupSize
	}
	groupCount := (threadCount + groupWidth - 1) / groupWidth
	if groupCount == 0 {
		return nil
	}

	commandBuffer, err := AllocateAndBeginSingleUse(vr.context, vr.context.CommandPool)
	if err != nil {
		return err
	}

	vk.CmdBindPipeline(commandBuffer.Handle, vk.PipelineBindPointCompute, pipeline.Handle)
	vk.CmdBindDescriptorSets(commandBuffer.Handle, vk.PipelineBindPointCompute, pipeline.PipelineLayout, 0, 1, []vk.DescriptorSet{pipeline.DescriptorSet}, 0, nil)
	vk.CmdDispatch(commandBuffer.Handle, groupCount, 1, 1)

	// Make the compute writes visible to subsequent host reads.
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessShaderWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessHostReadBit),
	}
	vk.CmdPipelineBarrier(commandBuffer.Handle,
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		vk.PipelineStageFlags(vk.PipelineStageHostBit),
		0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)

	return commandBuffer.EndSingleUse(vr.context, vr.context.CommandPool, vr.context.Device.ComputeQueue)
}

func (vr *VulkanBackend) MemoryBarrier() {
	vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)
}

func (vr *VulkanBackend) internalBuffer(buffer *metadata.RenderBuffer) (*VulkanBuffer, error) {
	if buffer == nil {
		return nil, fmt.Errorf("func internalBuffer - nil renderbuffer")
	}
	internal, ok := buffer.InternalData.(*VulkanBuffer)
	if !ok || internal == nil {
		return nil, fmt.Errorf("func internalBuffer - renderbuffer has no vulkan buffer attached")
	}
	return internal, nil
}

func (vr *VulkanBackend) bindingBuffers(params *renderer.CullDispatchParams) ([cullBindingCount]*VulkanBuffer, error) {
	var buffers [cullBindingCount]*VulkanBuffer

	resolve := func(rb *metadata.RenderBuffer) (*VulkanBuffer, error) {
		if rb == nil {
			return vr.placeholderBuffer, nil
		}
		return vr.internalBuffer(rb)
	}

	var err error
	if buffers[cullBindingCandidates], err = resolve(params.CandidateBuffer); err != nil {
		return buffers, err
	}
	if buffers[cullBindingBounds], err = resolve(params.BoundsBuffer); err != nil {
		return buffers, err
	}
	if buffers[cullBindingCulled], err = resolve(params.CulledBuffer); err != nil {
		return buffers, err
	}
	if buffers[cullBindingCounters], err = resolve(params.CounterBuffer); err != nil {
		return buffers, err
	}
	if buffers[cullBindingBVHNodes], err = resolve(params.BVHNodeBuffer); err != nil {
		return buffers, err
	}
	if buffers[cullBindingBVHRanges], err = resolve(params.BVHRangeBuffer); err != nil {
		return buffers, err
	}
	buffers[cullBindingParams] = vr.paramsBuffer

	return buffers, nil
}

/**
 * @brief Serializes the dispatch parameters into the std140 CullParams block
 * and uploads them to the uniform buffer.
 */
func (vr *VulkanBackend) writeCullParams(params *renderer.CullDispatchParams) error {
	block := make([]byte, cullParamsSize)

	putFloat := func(offset int, value float32) {
		binary.LittleEndian.PutUint32(block[offset:], math.Float32bits(value))
	}

	for i := 0; i < 6; i++ {
		plane := params.Frustum.Planes[i]
		base := i * 16
		putFloat(base, plane.Normal.X)
		putFloat(base+4, plane.Normal.Y)
		putFloat(base+8, plane.Normal.Z)
		putFloat(base+12, plane.D)
	}
	putFloat(96, params.CameraPosition.X)
	putFloat(100, params.CameraPosition.Y)
	putFloat(104, params.CameraPosition.Z)
	putFloat(108, params.FarClipSquared)
	binary.LittleEndian.PutUint32(block[112:], params.CandidateCount)
	binary.LittleEndian.PutUint32(block[116:], params.Capacity)
	binary.LittleEndian.PutUint32(block[120:], params.TargetPass)
	binary.LittleEndian.PutUint32(block[124:], params.CullMask)
	binary.LittleEndian.PutUint32(block[128:], params.BVHLeafCount)

	return vr.paramsBuffer.LoadRange(vr.context, 0, cullParamsSize, block)
}
