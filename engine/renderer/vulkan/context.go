package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/astra/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device
	/** @brief Index of the queue family compute work is submitted to. */
	ComputeQueueIndex uint32
	ComputeQueue      vk.Queue
}

type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Device    *VulkanDevice
	/** @brief Pool for the single-use compute command buffers. */
	CommandPool vk.CommandPool
}

/**
 * @brief Creates a headless compute context: instance, a physical device
 * with a compute queue family, logical device, queue and command pool. No
 * surface or swapchain is created; the culling pipeline only dispatches
 * compute work.
 */
func NewVulkanContext(appName string) (*VulkanContext, error) {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		core.LogError("failed to locate the vulkan loader: %s", err)
		return nil, err
	}
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	context := &VulkanContext{
		// TODO: custom allocator.
		Allocator: nil,
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Astra Engine"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}
	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, context.Allocator, &instance); res != vk.Success {
		err := fmt.Errorf("vkCreateInstance failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	context.Instance = instance

	if err := vk.InitInstance(context.Instance); err != nil {
		core.LogError("failed to initialize vk instance: %s", err)
		return nil, err
	}

	if err := context.selectDevice(); err != nil {
		return nil, err
	}
	if err := context.createCommandPool(); err != nil {
		return nil, err
	}
	return context, nil
}

func (vc *VulkanContext) selectDevice() error {
	var deviceCount uint32
	if res := vk.EnumeratePhysicalDevices(vc.Instance, &deviceCount, nil); res != vk.Success || deviceCount == 0 {
		return fmt.Errorf("func selectDevice - no vulkan capable physical devices found")
	}
	physicalDevices := make([]vk.PhysicalDevice, deviceCount)
	if res := vk.EnumeratePhysicalDevices(vc.Instance, &deviceCount, physicalDevices); res != vk.Success {
		return fmt.Errorf("func selectDevice - enumerating physical devices failed with %s", VulkanResultString(res))
	}

	for _, physicalDevice := range physicalDevices {
		queueIndex, found := findComputeQueueFamily(physicalDevice)
		if !found {
			continue
		}

		device := &VulkanDevice{
			PhysicalDevice:    physicalDevice,
			ComputeQueueIndex: queueIndex,
		}

		queuePriority := []float32{1.0}
		queueCreateInfos := []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: queueIndex,
			QueueCount:       1,
			PQueuePriorities: queuePriority,
		}}
		deviceCreateInfo := vk.DeviceCreateInfo{
			SType:                vk.StructureTypeDeviceCreateInfo,
			QueueCreateInfoCount: 1,
			PQueueCreateInfos:    queueCreateInfos,
		}
		var logicalDevice vk.Device
		if res := vk.CreateDevice(physicalDevice, &deviceCreateInfo, vc.Allocator, &logicalDevice); res != vk.Success {
			core.LogWarn("vkCreateDevice failed with %s, trying next device", VulkanResultString(res))
			continue
		}
		device.LogicalDevice = logicalDevice

		var queue vk.Queue
		vk.GetDeviceQueue(logicalDevice, queueIndex, 0, &queue)
		device.ComputeQueue = queue

		vc.Device = device
		return nil
	}
	return fmt.Errorf("func selectDevice - no physical device with a compute queue family found")
}

func findComputeQueueFamily(device vk.PhysicalDevice) (uint32, bool) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()
		if vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueComputeBit != 0 {
			return i, true
		}
	}
	return 0, false
}

func (vc *VulkanContext) createCommandPool() error {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: vc.Device.ComputeQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(vc.Device.LogicalDevice, &poolCreateInfo, vc.Allocator, &pool); res != vk.Success {
		return fmt.Errorf("func createCommandPool - vkCreateCommandPool failed with %s", VulkanResultString(res))
	}
	vc.CommandPool = pool
	return nil
}

func (vc *VulkanContext) Destroy() {
	if vc.Device != nil && vc.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(vc.Device.LogicalDevice)
		vk.DestroyCommandPool(vc.Device.LogicalDevice, vc.CommandPool, vc.Allocator)
		vk.DestroyDevice(vc.Device.LogicalDevice, vc.Allocator)
	}
	if vc.Instance != nil {
		vk.DestroyInstance(vc.Instance, vc.Allocator)
	}
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}
