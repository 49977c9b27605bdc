package vulkan

import (
	"math"
	"math/bits"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/dustin/go-humanize"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
	"github.com/vkngwrapper/gapi/devmem"
	"github.com/vkngwrapper/gapi/resource"
)

// MemoryDevice is the part of core1_0.Device that allocates device memory
type MemoryDevice interface {
	AllocateMemory(allocationCallbacks *driver.AllocationCallbacks, o core1_0.MemoryAllocateInfo) (core1_0.DeviceMemory, common.VkResult, error)
}

type heapState struct {
	size          int
	mapData       unsafe.Pointer
	mapReferences int
}

// DeviceHeaps allocates whole vkDeviceMemory objects as allocator pages. typeID is the memory type
// index. A page is mapped once, the first time any allocation inside it is mapped, and stays mapped
// until the last mapping of the page is released.
type DeviceHeaps struct {
	device              MemoryDevice
	allocationCallbacks *driver.AllocationCallbacks

	mapMutex sync.Mutex
	heaps    *swiss.Map[core1_0.DeviceMemory, *heapState]
}

var _ devmem.NativeHeaps[core1_0.DeviceMemory] = &DeviceHeaps{}

func NewDeviceHeaps(device MemoryDevice, allocationCallbacks *driver.AllocationCallbacks) *DeviceHeaps {
	return &DeviceHeaps{
		device:              device,
		allocationCallbacks: allocationCallbacks,
		heaps:               swiss.NewMap[core1_0.DeviceMemory, *heapState](16),
	}
}

func (h *DeviceHeaps) CreateHeap(size int, typeID uint32) (core1_0.DeviceMemory, error) {
	memory, _, err := h.device.AllocateMemory(h.allocationCallbacks, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: int(typeID),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "allocating %s of memory type %d", humanize.IBytes(uint64(size)), typeID)
	}

	h.mapMutex.Lock()
	defer h.mapMutex.Unlock()
	h.heaps.Put(memory, &heapState{size: size})

	return memory, nil
}

func (h *DeviceHeaps) ReleaseHeap(heap core1_0.DeviceMemory, size int, typeID uint32) {
	h.mapMutex.Lock()
	defer h.mapMutex.Unlock()

	state, ok := h.heaps.Get(heap)
	if ok && state.mapData != nil {
		heap.Unmap()
	}
	h.heaps.Delete(heap)

	heap.Free(h.allocationCallbacks)
}

// Map returns the host view of a host-visible allocation
func (h *DeviceHeaps) Map(alloc devmem.Allocation[core1_0.DeviceMemory]) ([]byte, error) {
	if alloc.IsNull() {
		return nil, errors.New("mapping a null allocation")
	}

	h.mapMutex.Lock()
	defer h.mapMutex.Unlock()

	heap := alloc.Heap()
	state, ok := h.heaps.Get(heap)
	if !ok {
		return nil, errors.New("mapping memory that was not allocated by these heaps")
	}

	if state.mapReferences == 0 {
		mapData, _, err := heap.Map(0, state.size, 0)
		if err != nil {
			return nil, errors.Wrap(err, "mapping device memory")
		}
		state.mapData = mapData
	} else if state.mapData == nil {
		return nil, errors.New("the page is showing existing memory mapping references, but no mapped memory")
	}

	state.mapReferences++
	return unsafe.Slice((*byte)(unsafe.Add(state.mapData, alloc.Offset)), alloc.Size), nil
}

// Unmap releases one mapping taken by Map
func (h *DeviceHeaps) Unmap(alloc devmem.Allocation[core1_0.DeviceMemory]) {
	if alloc.IsNull() {
		return
	}

	h.mapMutex.Lock()
	defer h.mapMutex.Unlock()

	heap := alloc.Heap()
	state, ok := h.heaps.Get(heap)
	if !ok || state.mapReferences == 0 {
		panic("device memory page has more references being unmapped than are currently mapped")
	}

	state.mapReferences--
	if state.mapReferences == 0 {
		heap.Unmap()
		state.mapData = nil
	}
}

// MappedPages returns the number of pages that are currently mapped
func (h *DeviceHeaps) MappedPages() int {
	h.mapMutex.Lock()
	defer h.mapMutex.Unlock()

	count := 0
	h.heaps.Iter(func(_ core1_0.DeviceMemory, state *heapState) bool {
		if state.mapData != nil {
			count++
		}
		return false
	})
	return count
}

func memoryPreferences(heap resource.BufferHeap) (required, preferred, notPreferred core1_0.MemoryPropertyFlags) {
	switch heap {
	case resource.HeapUpload:
		required = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent
		notPreferred = core1_0.MemoryPropertyHostCached
	case resource.HeapReadback:
		required = core1_0.MemoryPropertyHostVisible
		preferred = core1_0.MemoryPropertyHostCached | core1_0.MemoryPropertyHostCoherent
	default:
		preferred = core1_0.MemoryPropertyDeviceLocal
		notPreferred = core1_0.MemoryPropertyHostVisible
	}
	return required, preferred, notPreferred
}

// FindMemoryClass picks the memory type for a resource placed in heap. memoryTypeBits is the
// resource's allowed type mask. Types missing a required flag are skipped; among the rest the one
// missing the fewest preferred flags and carrying the fewest unwanted ones wins.
func FindMemoryClass(properties *core1_0.PhysicalDeviceMemoryProperties, memoryTypeBits uint32, heap resource.BufferHeap) (resource.MemoryClass, error) {
	required, preferred, notPreferred := memoryPreferences(heap)

	bestMemoryTypeIndex := -1
	minCost := math.MaxInt

	for memTypeIndex, memoryType := range properties.MemoryTypes {
		memTypeBit := uint32(1 << memTypeIndex)
		if memTypeBit&memoryTypeBits == 0 {
			continue
		}

		flags := memoryType.PropertyFlags
		if required&flags != required {
			continue
		}

		missingPreferredFlags := preferred & ^flags
		presentNotPreferredFlags := notPreferred & flags
		cost := bits.OnesCount32(uint32(missingPreferredFlags)) + bits.OnesCount32(uint32(presentNotPreferredFlags))
		if cost < minCost {
			bestMemoryTypeIndex = memTypeIndex
			minCost = cost
		}
		if cost == 0 {
			break
		}
	}

	if bestMemoryTypeIndex < 0 {
		return resource.MemoryClass{}, errors.Newf("no memory type in mask %#x is usable for the %s heap", memoryTypeBits, heap)
	}

	memoryType := properties.MemoryTypes[bestMemoryTypeIndex]
	return resource.MemoryClass{
		HeapID:      uint32(memoryType.HeapIndex),
		TypeID:      uint32(bestMemoryTypeIndex),
		HostVisible: memoryType.PropertyFlags&core1_0.MemoryPropertyHostVisible != 0,
	}, nil
}
