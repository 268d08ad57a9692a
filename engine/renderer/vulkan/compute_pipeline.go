package vulkan

import (
	"fmt"
	"os"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/astra/engine/core"
)

const (
	// Storage buffer bindings consumed by every cull stage.
	cullBindingCandidates uint32 = 0
	cullBindingBounds     uint32 = 1
	cullBindingCulled     uint32 = 2
	cullBindingCounters   uint32 = 3
	cullBindingBVHNodes   uint32 = 4
	cullBindingBVHRanges  uint32 = 5
	// Uniform buffer binding holding the per-dispatch parameters.
	cullBindingParams uint32 = 6

	cullBindingCount = 7
)

/**
 * @brief Holds a compute pipeline, its layout and the descriptor
 * machinery needed to bind the cull buffers for a dispatch.
 */
type VulkanComputePipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout
	/** @brief The shader module the pipeline was built from. */
	ShaderModule vk.ShaderModule
	/** @brief The descriptor set layout describing the cull bindings. */
	DescriptorSetLayout vk.DescriptorSetLayout
	/** @brief Pool the descriptor set is allocated from. */
	DescriptorPool vk.DescriptorPool
	/** @brief The single descriptor set, rewritten before each dispatch. */
	DescriptorSet vk.DescriptorSet
}

func NewVulkanComputePipeline(context *VulkanContext, shaderPath string) (*VulkanComputePipeline, error) {
	code, err := os.ReadFile(shaderPath)
	if err != nil {
		err := fmt.Errorf("func NewVulkanComputePipeline - unable to read shader module `%s`", shaderPath)
		core.LogError(err.Error())
		return nil, err
	}
	if len(code)%4 != 0 {
		err := fmt.Errorf("func NewVulkanComputePipeline - shader module `%s` is not valid SPIR-V", shaderPath)
		core.LogError(err.Error())
		return nil, err
	}

	outPipeline := &VulkanComputePipeline{}

	moduleCreateInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    sliceUint32(code),
	}
	if res := vk.CreateShaderModule(context.Device.LogicalDevice, &moduleCreateInfo, context.Allocator, &outPipeline.ShaderModule); res != vk.Success {
		err := fmt.Errorf("func NewVulkanComputePipeline - failed to create shader module with error %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}

	// Descriptor set layout. Six storage buffers plus one uniform buffer,
	// all visible to the compute stage only.
	bindings := make([]vk.DescriptorSetLayoutBinding, cullBindingCount)
	for i := uint32(0); i < cullBindingParams; i++ {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         i,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		}
	}
	bindings[cullBindingParams] = vk.DescriptorSetLayoutBinding{
		Binding:         cullBindingParams,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
	}

	layoutCreateInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: cullBindingCount,
		PBindings:    bindings,
	}
	if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutCreateInfo, context.Allocator, &outPipeline.DescriptorSetLayout); res != vk.Success {
		err := fmt.Errorf("func NewVulkanComputePipeline - failed to create descriptor set layout with error %s", VulkanResultString(res))
		core.LogError(err.Error())
		outPipeline.Destroy(context)
		return nil, err
	}

	// Pipeline layout.
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{outPipeline.DescriptorSetLayout},
	}
	if res := vk.CreatePipelineLayout(context.Device.LogicalDevice, &pipelineLayoutCreateInfo, context.Allocator, &outPipeline.PipelineLayout); res != vk.Success {
		err := fmt.Errorf("func NewVulkanComputePipeline - failed to create pipeline layout with error %s", VulkanResultString(res))
		core.LogError(err.Error())
		outPipeline.Destroy(context)
		return nil, err
	}

	stageCreateInfo := vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageComputeBit,
		Module: outPipeline.ShaderModule,
		PName:  VulkanSafeString("main"),
	}

	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  stageCreateInfo,
		Layout: outPipeline.PipelineLayout,
	}

	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateComputePipelines(context.Device.LogicalDevice, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{pipelineCreateInfo}, context.Allocator, pipelines); res != vk.Success {
		err := fmt.Errorf("func NewVulkanComputePipeline - failed to create compute pipeline with error %s", VulkanResultString(res))
		core.LogError(err.Error())
		outPipeline.Destroy(context)
		return nil, err
	}
	outPipeline.Handle = pipelines[0]

	// Descriptor pool and set.
	poolSizes := []vk.DescriptorPoolSize{
		{
			Type:            vk.DescriptorTypeStorageBuffer,
			DescriptorCount: cullBindingCount - 1,
		},
		{
			Type:            vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
		},
	}
	poolCreateInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
		MaxSets:       1,
	}
	if res := vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolCreateInfo, context.Allocator, &outPipeline.DescriptorPool); res != vk.Success {
		err := fmt.Errorf("func NewVulkanComputePipeline - failed to create descriptor pool with error %s", VulkanResultString(res))
		core.LogError(err.Error())
		outPipeline.Destroy(context)
		return nil, err
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     outPipeline.DescriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{outPipeline.DescriptorSetLayout},
	}
	sets := make([]vk.DescriptorSet, 1)
	if res := vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocInfo, &sets[0]); res != vk.Success {
		err := fmt.Errorf("func NewVulkanComputePipeline - failed to allocate descriptor set with error %s", VulkanResultString(res))
		core.LogError(err.Error())
		outPipeline.Destroy(context)
		return nil, err
	}
	outPipeline.DescriptorSet = sets[0]

	core.LogDebug("compute pipeline created from `%s`", shaderPath)

	return outPipeline, nil
}

/**
 * @brief Rewrites the descriptor set to point at the buffers for the
 * upcoming dispatch. Bindings with no meaningful buffer receive the
 * placeholder so the set stays fully populated.
 */
func (v *VulkanComputePipeline) UpdateDescriptors(context *VulkanContext, buffers [cullBindingCount]*VulkanBuffer) {
	bufferInfos := make([]vk.DescriptorBufferInfo, cullBindingCount)
	writes := make([]vk.WriteDescriptorSet, cullBindingCount)
	for i := uint32(0); i < cullBindingCount; i++ {
		bufferInfos[i] = vk.DescriptorBufferInfo{
			Buffer: buffers[i].Handle,
			Offset: 0,
			Range:  vk.DeviceSize(vk.WholeSize),
		}
		descriptorType := vk.DescriptorTypeStorageBuffer
		if i == cullBindingParams {
			descriptorType = vk.DescriptorTypeUniformBuffer
		}
		writes[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          v.DescriptorSet,
			DstBinding:      i,
			DescriptorType:  descriptorType,
			DescriptorCount: 1,
			PBufferInfo:     []vk.DescriptorBufferInfo{bufferInfos[i]},
		}
	}
	vk.UpdateDescriptorSets(context.Device.LogicalDevice, cullBindingCount, writes, 0, nil)
}

func (v *VulkanComputePipeline) Destroy(context *VulkanContext) {
	if v.DescriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, v.DescriptorPool, context.Allocator)
		v.DescriptorPool = vk.NullDescriptorPool
	}
	if v.Handle != vk.NullPipeline {
		vk.DestroyPipeline(context.Device.LogicalDevice, v.Handle, context.Allocator)
		v.Handle = vk.NullPipeline
	}
	if v.PipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(context.Device.LogicalDevice, v.PipelineLayout, context.Allocator)
		v.PipelineLayout = vk.NullPipelineLayout
	}
	if v.DescriptorSetLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, v.DescriptorSetLayout, context.Allocator)
		v.DescriptorSetLayout = vk.NullDescriptorSetLayout
	}
	if v.ShaderModule != vk.NullShaderModule {
		vk.DestroyShaderModule(context.Device.LogicalDevice, v.ShaderModule, context.Allocator)
		v.ShaderModule = vk.NullShaderModule
	}
}
