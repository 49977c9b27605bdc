package descriptors_test

import (
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gapi"
	"github.com/vkngwrapper/gapi/descriptors"
	"github.com/vkngwrapper/gapi/descriptors/mocks"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

type fakeHeap struct {
	cpu uintptr
	gpu uint64
}

func (h *fakeHeap) CPUStart() uintptr { return h.cpu }
func (h *fakeHeap) GPUStart() uint64  { return h.gpu }

func readyAllocator(t *testing.T, ctrl *gomock.Controller, options descriptors.Options) (*mocks.MockDevice, *descriptors.Allocator) {
	device := mocks.NewMockDevice(ctrl)
	device.EXPECT().DescriptorIncrementSize(descriptors.HeapTypeResource).Return(32)
	device.EXPECT().DescriptorIncrementSize(descriptors.HeapTypeSampler).Return(16)

	logger := slog.New(slog.NewTextHandler(io.Discard))
	return device, descriptors.New(logger, device, options)
}

func TestResourceDescriptors(t *testing.T) {
	ctrl := gomock.NewController(t)

	device, allocator := readyAllocator(t, ctrl, descriptors.Options{})

	heap := &fakeHeap{cpu: 0x1000, gpu: 0x10000}
	device.EXPECT().CreateDescriptorHeap(65535, descriptors.HeapTypeResource, true).Return(heap, nil)

	first, err := allocator.Alloc(4, false)
	require.NoError(t, err)
	second, err := allocator.Alloc(2, false)
	require.NoError(t, err)

	require.Equal(t, descriptors.TypeResource, first.HeapID)
	require.Equal(t, descriptors.DescriptorHeap(heap), allocator.HeapOf(second))
	require.Equal(t, uintptr(0x1000), allocator.Handle(first))
	require.Equal(t, uintptr(0x1000+4*32), allocator.Handle(second))
	require.Equal(t, uint64(0x10000+4*32), allocator.GPUHandle(second))
	require.Equal(t, uintptr(0x1000+5*32), allocator.HandleAt(second, 1))

	require.NoError(t, allocator.Free(&first))
	require.NoError(t, allocator.Free(&second))

	// the empty heap is cached until teardown
	device.EXPECT().ReleaseDescriptorHeap(heap)
	require.NoError(t, allocator.Destroy())
}

func TestSamplerDescriptorsUseTheirOwnHeap(t *testing.T) {
	ctrl := gomock.NewController(t)

	device, allocator := readyAllocator(t, ctrl, descriptors.Options{SamplerPageSize: 64})

	resourceHeap := &fakeHeap{cpu: 0x1000, gpu: 0x10000}
	samplerHeap := &fakeHeap{cpu: 0x8000, gpu: 0x80000}
	device.EXPECT().CreateDescriptorHeap(65535, descriptors.HeapTypeResource, true).Return(resourceHeap, nil)
	device.EXPECT().CreateDescriptorHeap(64, descriptors.HeapTypeSampler, true).Return(samplerHeap, nil)

	resource, err := allocator.Alloc(3, false)
	require.NoError(t, err)
	sampler, err := allocator.Alloc(3, true)
	require.NoError(t, err)

	require.Equal(t, descriptors.TypeSampler, sampler.HeapID)
	require.Equal(t, 0, sampler.Offset)
	require.Equal(t, uintptr(0x8000+2*16), allocator.HandleAt(sampler, 2))

	resourceStats, samplerStats := allocator.Statistics()
	require.Equal(t, 3, resourceStats.AllocationBytes)
	require.Equal(t, 64, samplerStats.PageBytes)

	require.NoError(t, allocator.Free(&sampler))
	require.NoError(t, allocator.Free(&resource))

	device.EXPECT().ReleaseDescriptorHeap(resourceHeap)
	device.EXPECT().ReleaseDescriptorHeap(samplerHeap)
	require.NoError(t, allocator.Destroy())
}

func TestHostDescriptors(t *testing.T) {
	ctrl := gomock.NewController(t)

	device, allocator := readyAllocator(t, ctrl, descriptors.Options{ResourcePageSize: 128})

	hostHeap := &fakeHeap{cpu: 0x2000}
	visibleHeap := &fakeHeap{cpu: 0x3000, gpu: 0x30000}
	device.EXPECT().CreateDescriptorHeap(128, descriptors.HeapTypeResource, false).Return(hostHeap, nil)

	host, err := allocator.AllocHost(8)
	require.NoError(t, err)
	require.Equal(t, descriptors.TypeHost, host.HeapID)
	require.Equal(t, uintptr(0x2000), allocator.Handle(host))
	require.Zero(t, allocator.GPUHandle(host))

	// a visible request never shares the host heap; the host heap is evicted from the cache when
	// the differently typed request arrives
	require.NoError(t, allocator.Free(&host))
	device.EXPECT().ReleaseDescriptorHeap(hostHeap)
	device.EXPECT().CreateDescriptorHeap(128, descriptors.HeapTypeResource, true).Return(visibleHeap, nil)

	visible, err := allocator.Alloc(8, false)
	require.NoError(t, err)
	require.Equal(t, descriptors.DescriptorHeap(visibleHeap), allocator.HeapOf(visible))

	require.NoError(t, allocator.Free(&visible))
	device.EXPECT().ReleaseDescriptorHeap(visibleHeap)
	require.NoError(t, allocator.Destroy())
}

func TestFreeThenAllocReusesCachedHeap(t *testing.T) {
	ctrl := gomock.NewController(t)

	device, allocator := readyAllocator(t, ctrl, descriptors.Options{})

	heap := &fakeHeap{cpu: 0x1000, gpu: 0x10000}
	device.EXPECT().CreateDescriptorHeap(65535, descriptors.HeapTypeResource, true).Return(heap, nil).Times(1)

	alloc, err := allocator.Alloc(16, false)
	require.NoError(t, err)
	require.NoError(t, allocator.Free(&alloc))
	require.True(t, alloc.IsNull())

	alloc, err = allocator.Alloc(16, false)
	require.NoError(t, err)
	require.Equal(t, descriptors.DescriptorHeap(heap), allocator.HeapOf(alloc))

	require.NoError(t, allocator.Free(&alloc))
	device.EXPECT().ReleaseDescriptorHeap(heap)
	require.NoError(t, allocator.Destroy())
}

func TestDescriptorHeapFailure(t *testing.T) {
	ctrl := gomock.NewController(t)

	device, allocator := readyAllocator(t, ctrl, descriptors.Options{})
	device.EXPECT().CreateDescriptorHeap(65535, descriptors.HeapTypeResource, true).Return(nil, errors.New("E_OUTOFMEMORY"))

	alloc, err := allocator.Alloc(1, false)
	require.True(t, gapi.IsAllocationFailed(err))
	require.True(t, alloc.IsNull())
	require.Zero(t, allocator.Handle(alloc))

	require.NoError(t, allocator.Destroy())
}

func TestZeroCountAndEmptyFree(t *testing.T) {
	ctrl := gomock.NewController(t)

	_, allocator := readyAllocator(t, ctrl, descriptors.Options{})

	alloc, err := allocator.Alloc(0, true)
	require.NoError(t, err)
	require.True(t, alloc.IsNull())
	require.NoError(t, allocator.Free(&alloc))
	require.NoError(t, allocator.Free(nil))
	require.NoError(t, allocator.Destroy())
}
