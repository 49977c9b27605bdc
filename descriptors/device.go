package descriptors

//go:generate mockgen -destination mocks/mock_device.go -package mocks . Device

// HeapType is the class of native descriptor heap. Resource and sampler descriptors can never share
// a heap.
type HeapType uint32

const (
	HeapTypeResource HeapType = iota
	HeapTypeSampler
)

func (t HeapType) String() string {
	if t == HeapTypeSampler {
		return "Sampler"
	}
	return "Resource"
}

// Type ids double as heap ids: an allocation's HeapID is the type it was allocated with.
const (
	// TypeResource is a shader-visible resource (constant, shader resource, unordered access) descriptor
	TypeResource uint32 = iota
	// TypeSampler is a shader-visible sampler descriptor
	TypeSampler
	// TypeHost is a host-only resource descriptor, used to stage tables before copying them into
	// a shader-visible heap
	TypeHost
)

// DescriptorHeap is a native descriptor heap
type DescriptorHeap interface {
	CPUStart() uintptr
	GPUStart() uint64
}

// Device is the vendor primitive that creates descriptor heaps
type Device interface {
	CreateDescriptorHeap(numDescriptors int, heapType HeapType, shaderVisible bool) (DescriptorHeap, error)
	ReleaseDescriptorHeap(heap DescriptorHeap)
	DescriptorIncrementSize(heapType HeapType) int
}

func heapTypeOf(typeID uint32) HeapType {
	if typeID == TypeSampler {
		return HeapTypeSampler
	}
	return HeapTypeResource
}

// deviceHeaps exposes a Device as the native heap source of a paged allocator
type deviceHeaps struct {
	device Device
}

func (h deviceHeaps) CreateHeap(size int, typeID uint32) (DescriptorHeap, error) {
	return h.device.CreateDescriptorHeap(size, heapTypeOf(typeID), typeID != TypeHost)
}

func (h deviceHeaps) ReleaseHeap(heap DescriptorHeap, size int, typeID uint32) {
	h.device.ReleaseDescriptorHeap(heap)
}
