package vulkan_test

import (
	"io"
	"testing"
	"unsafe"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/mocks"
	"github.com/vkngwrapper/gapi"
	"github.com/vkngwrapper/gapi/backend/vulkan"
	"github.com/vkngwrapper/gapi/devmem"
	"github.com/vkngwrapper/gapi/resource"
	"golang.org/x/exp/slog"
)

func readyMemory(t *testing.T, ctrl *gomock.Controller) (*mocks.MockDevice, *vulkan.DeviceHeaps, *devmem.Allocator[core1_0.DeviceMemory]) {
	logger := slog.New(slog.NewTextHandler(io.Discard))
	device := mocks.NewMockDevice(ctrl)
	heaps := vulkan.NewDeviceHeaps(device, nil)
	provider := devmem.NewCachingProvider[core1_0.DeviceMemory](logger, heaps, "memory", nil)
	allocator := devmem.New[core1_0.DeviceMemory](logger, provider, devmem.CreateOptions{DefaultPageSize: 4096})
	return device, heaps, allocator
}

func expectPage(device *mocks.MockDevice, memory *mocks.MockDeviceMemory, typeIndex int) {
	device.EXPECT().AllocateMemory(gomock.Nil(), core1_0.MemoryAllocateInfo{
		AllocationSize:  4096,
		MemoryTypeIndex: typeIndex,
	}).Return(memory, core1_0.VKSuccess, nil)
}

func TestDeviceHeapsAllocateMemoryType(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, _, allocator := readyMemory(t, ctrl)

	memory := mocks.EasyMockDeviceMemory(ctrl)
	expectPage(device, memory, 3)

	alloc, err := allocator.Alloc(devmem.Requirements{Size: 256, Alignment: 64}, 1, 3, false)
	require.NoError(t, err)
	require.Equal(t, core1_0.DeviceMemory(memory), alloc.Heap())

	// the emptied page is kept by the provider, so nothing is freed natively
	require.NoError(t, allocator.Free(&alloc))
	require.NoError(t, allocator.Destroy())
}

func TestDeviceHeapsOutOfMemory(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, _, allocator := readyMemory(t, ctrl)

	device.EXPECT().AllocateMemory(gomock.Nil(), gomock.Any()).
		Return(nil, core1_0.VKErrorOutOfDeviceMemory, core1_0.VKErrorOutOfDeviceMemory.ToError())

	_, err := allocator.Alloc(devmem.Requirements{Size: 256, Alignment: 64}, 0, 0, false)
	require.Error(t, err)
	require.True(t, gapi.IsAllocationFailed(err))
	require.ErrorIs(t, err, gapi.ErrAllocationFailed)
	require.Contains(t, err.Error(), "4.0 KiB")
}

func TestMapSharesOnePageMapping(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, heaps, allocator := readyMemory(t, ctrl)

	memory := mocks.EasyMockDeviceMemory(ctrl)
	expectPage(device, memory, 1)

	data := make([]byte, 4096)
	memory.EXPECT().Map(0, 4096, core1_0.MemoryMapFlags(0)).Return(unsafe.Pointer(&data[0]), core1_0.VKSuccess, nil)
	unmapCalls := 0
	memory.EXPECT().Unmap().Do(func() { unmapCalls++ })

	first, err := allocator.Alloc(devmem.Requirements{Size: 16, Alignment: 16}, 0, 1, true)
	require.NoError(t, err)
	second, err := allocator.Alloc(devmem.Requirements{Size: 16, Alignment: 16}, 0, 1, true)
	require.NoError(t, err)
	require.Equal(t, first.Heap(), second.Heap())

	firstBytes, err := heaps.Map(first)
	require.NoError(t, err)
	secondBytes, err := heaps.Map(second)
	require.NoError(t, err)
	require.Equal(t, 1, heaps.MappedPages())

	copy(secondBytes, "0123456789abcdef")
	require.Len(t, firstBytes, 16)
	require.Equal(t, []byte("0123456789abcdef"), data[second.Offset:second.Offset+16])

	heaps.Unmap(first)
	require.Zero(t, unmapCalls)
	heaps.Unmap(second)
	require.Equal(t, 1, unmapCalls)
	require.Zero(t, heaps.MappedPages())

	require.Panics(t, func() { heaps.Unmap(second) })

	require.NoError(t, allocator.Free(&first))
	require.NoError(t, allocator.Free(&second))
}

func TestReleaseUnmapsAndFrees(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, heaps, allocator := readyMemory(t, ctrl)

	memory := mocks.EasyMockDeviceMemory(ctrl)
	expectPage(device, memory, 1)

	data := make([]byte, 4096)
	memory.EXPECT().Map(0, 4096, core1_0.MemoryMapFlags(0)).Return(unsafe.Pointer(&data[0]), core1_0.VKSuccess, nil)

	alloc, err := allocator.Alloc(devmem.Requirements{Size: 16, Alignment: 16}, 0, 1, true)
	require.NoError(t, err)
	_, err = heaps.Map(alloc)
	require.NoError(t, err)

	gomock.InOrder(
		memory.EXPECT().Unmap(),
		memory.EXPECT().Free(gomock.Nil()),
	)
	heaps.ReleaseHeap(memory, 4096, 1)
	require.Zero(t, heaps.MappedPages())

	_, err = heaps.Map(alloc)
	require.Error(t, err)
}

func TestMapNullAllocation(t *testing.T) {
	ctrl := gomock.NewController(t)
	heaps := vulkan.NewDeviceHeaps(mocks.NewMockDevice(ctrl), nil)

	_, err := heaps.Map(devmem.Allocation[core1_0.DeviceMemory]{})
	require.Error(t, err)
	heaps.Unmap(devmem.Allocation[core1_0.DeviceMemory]{})
}

func testMemoryProperties() *core1_0.PhysicalDeviceMemoryProperties {
	return &core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 1},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent | core1_0.MemoryPropertyHostCached, HeapIndex: 1},
		},
		MemoryHeaps: []core1_0.MemoryHeap{
			{Size: 1 << 30},
			{Size: 1 << 30},
		},
	}
}

func TestFindMemoryClass(t *testing.T) {
	properties := testMemoryProperties()

	class, err := vulkan.FindMemoryClass(properties, 0b111, resource.HeapDevice)
	require.NoError(t, err)
	require.Equal(t, resource.MemoryClass{HeapID: 0, TypeID: 0, HostVisible: false}, class)

	class, err = vulkan.FindMemoryClass(properties, 0b111, resource.HeapUpload)
	require.NoError(t, err)
	require.Equal(t, resource.MemoryClass{HeapID: 1, TypeID: 1, HostVisible: true}, class)

	class, err = vulkan.FindMemoryClass(properties, 0b111, resource.HeapReadback)
	require.NoError(t, err)
	require.Equal(t, resource.MemoryClass{HeapID: 1, TypeID: 2, HostVisible: true}, class)

	// device-local memory that is masked out falls back to a host type
	class, err = vulkan.FindMemoryClass(properties, 0b110, resource.HeapDevice)
	require.NoError(t, err)
	require.True(t, class.HostVisible)

	_, err = vulkan.FindMemoryClass(properties, 0b001, resource.HeapUpload)
	require.Error(t, err)
}
