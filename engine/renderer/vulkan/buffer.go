package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/astra/engine/core"
)

/**
 * @brief A storage or uniform buffer in host-visible, host-coherent memory.
 * The culling buffers are small (commands, spheres, counters), so device
 * local staging is not worth the copy; host-visible memory also lets the
 * sanitizer and counter readback map them directly.
 */
type VulkanBuffer struct {
	Handle    vk.Buffer
	Memory    vk.DeviceMemory
	TotalSize uint64
	mappedPtr unsafe.Pointer
}

func NewVulkanBuffer(context *VulkanContext, size uint64, usage vk.BufferUsageFlags) (*VulkanBuffer, error) {
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferCreateInfo, context.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("func NewVulkanBuffer - vkCreateBuffer failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, handle, &requirements)
	requirements.Deref()

	memoryIndex := context.FindMemoryIndex(
		requirements.MemoryTypeBits,
		uint32(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit),
	)
	if memoryIndex < 0 {
		vk.DestroyBuffer(context.Device.LogicalDevice, handle, context.Allocator)
		return nil, fmt.Errorf("func NewVulkanBuffer - no host-visible memory type for buffer")
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory); res != vk.Success {
		vk.DestroyBuffer(context.Device.LogicalDevice, handle, context.Allocator)
		err := fmt.Errorf("func NewVulkanBuffer - vkAllocateMemory failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	if res := vk.BindBufferMemory(context.Device.LogicalDevice, handle, memory, 0); res != vk.Success {
		vk.FreeMemory(context.Device.LogicalDevice, memory, context.Allocator)
		vk.DestroyBuffer(context.Device.LogicalDevice, handle, context.Allocator)
		return nil, fmt.Errorf("func NewVulkanBuffer - vkBindBufferMemory failed with %s", VulkanResultString(res))
	}

	return &VulkanBuffer{
		Handle:    handle,
		Memory:    memory,
		TotalSize: size,
	}, nil
}

func (vb *VulkanBuffer) Destroy(context *VulkanContext) {
	if vb.mappedPtr != nil {
		vk.UnmapMemory(context.Device.LogicalDevice, vb.Memory)
		vb.mappedPtr = nil
	}
	vk.FreeMemory(context.Device.LogicalDevice, vb.Memory, context.Allocator)
	vk.DestroyBuffer(context.Device.LogicalDevice, vb.Handle, context.Allocator)
	vb.Handle = nil
	vb.Memory = nil
}

/**
 * @brief Maps a byte range for host access. Mapping may stall until the GPU
 * has finished prior writes to the buffer.
 */
func (vb *VulkanBuffer) Map(context *VulkanContext, offset, size uint64) ([]byte, error) {
	if offset+size > vb.TotalSize {
		return nil, core.ErrBufferNotMapped
	}
	var ptr unsafe.Pointer
	if res := vk.MapMemory(
		context.Device.LogicalDevice,
		vb.Memory,
		vk.DeviceSize(offset),
		vk.DeviceSize(size),
		0,
		&ptr,
	); res != vk.Success {
		core.LogError("vkMapMemory failed with %s", VulkanResultString(res))
		return nil, core.ErrBufferNotMapped
	}
	vb.mappedPtr = ptr
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (vb *VulkanBuffer) Unmap(context *VulkanContext) {
	if vb.mappedPtr == nil {
		return
	}
	vk.UnmapMemory(context.Device.LogicalDevice, vb.Memory)
	vb.mappedPtr = nil
}

/** @brief Copies data into [offset, offset+size) through a transient map. */
func (vb *VulkanBuffer) LoadRange(context *VulkanContext, offset, size uint64, data []byte) error {
	view, err := vb.Map(context, offset, size)
	if err != nil {
		return err
	}
	copy(view, data[:size])
	vb.Unmap(context)
	return nil
}
