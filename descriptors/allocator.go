package descriptors

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gapi/devmem"
	"github.com/vkngwrapper/gapi/memutils"
	"golang.org/x/exp/slog"
)

const (
	DefaultResourcePageSize = 65535
	DefaultSamplerPageSize  = 2048
)

// Allocation is a contiguous run of descriptor slots
type Allocation = devmem.Allocation[DescriptorHeap]

type Options struct {
	ResourcePageSize int
	SamplerPageSize  int
	// Metrics may be nil
	Metrics *devmem.Metrics
}

// Allocator hands out descriptor table space. Resource and sampler descriptors come from two
// independent paged allocators; host-only descriptors share the resource allocator under their own
// type, so they never land in a shader-visible heap.
type Allocator struct {
	device Device

	resourceProvider *devmem.CachingProvider[DescriptorHeap]
	samplerProvider  *devmem.CachingProvider[DescriptorHeap]
	resource         *devmem.Allocator[DescriptorHeap]
	sampler          *devmem.Allocator[DescriptorHeap]

	resourceIncrement int
	samplerIncrement  int
}

func New(logger *slog.Logger, device Device, options Options) *Allocator {
	resourcePageSize := options.ResourcePageSize
	if resourcePageSize <= 0 {
		resourcePageSize = DefaultResourcePageSize
	}
	samplerPageSize := options.SamplerPageSize
	if samplerPageSize <= 0 {
		samplerPageSize = DefaultSamplerPageSize
	}

	heaps := deviceHeaps{device: device}
	resourceProvider := devmem.NewCachingProvider[DescriptorHeap](logger, heaps, "descriptors_resource", options.Metrics)
	samplerProvider := devmem.NewCachingProvider[DescriptorHeap](logger, heaps, "descriptors_sampler", options.Metrics)

	return &Allocator{
		device:           device,
		resourceProvider: resourceProvider,
		samplerProvider:  samplerProvider,
		resource: devmem.New[DescriptorHeap](logger, resourceProvider, devmem.CreateOptions{
			Name:            "descriptors_resource",
			DefaultPageSize: resourcePageSize,
			Metrics:         options.Metrics,
		}),
		sampler: devmem.New[DescriptorHeap](logger, samplerProvider, devmem.CreateOptions{
			Name:            "descriptors_sampler",
			DefaultPageSize: samplerPageSize,
			Metrics:         options.Metrics,
		}),
		resourceIncrement: device.DescriptorIncrementSize(HeapTypeResource),
		samplerIncrement:  device.DescriptorIncrementSize(HeapTypeSampler),
	}
}

// Alloc reserves count consecutive shader-visible descriptors. A count of zero returns the empty
// allocation.
func (a *Allocator) Alloc(count int, sampler bool) (Allocation, error) {
	if sampler {
		return a.sampler.Alloc(devmem.Requirements{Size: count, Alignment: 1}, TypeSampler, TypeSampler, false)
	}
	return a.resource.Alloc(devmem.Requirements{Size: count, Alignment: 1}, TypeResource, TypeResource, false)
}

// AllocHost reserves count consecutive host-only resource descriptors
func (a *Allocator) AllocHost(count int) (Allocation, error) {
	return a.resource.Alloc(devmem.Requirements{Size: count, Alignment: 1}, TypeHost, TypeHost, true)
}

// Free returns alloc's slots and resets it to the empty allocation
func (a *Allocator) Free(alloc *Allocation) error {
	if alloc == nil || alloc.IsNull() {
		return nil
	}
	if alloc.HeapID == TypeSampler {
		return a.sampler.Free(alloc)
	}
	return a.resource.Free(alloc)
}

// HeapOf returns the native heap that holds alloc
func (a *Allocator) HeapOf(alloc Allocation) DescriptorHeap {
	return alloc.Heap()
}

// IncrementSize returns the byte stride between descriptors of the given heap type
func (a *Allocator) IncrementSize(heapType HeapType) int {
	if heapType == HeapTypeSampler {
		return a.samplerIncrement
	}
	return a.resourceIncrement
}

func (a *Allocator) increment(alloc Allocation) int {
	return a.IncrementSize(heapTypeOf(alloc.HeapID))
}

// Handle returns the CPU address of the first descriptor of alloc
func (a *Allocator) Handle(alloc Allocation) uintptr {
	return a.HandleAt(alloc, 0)
}

// HandleAt returns the CPU address of descriptor index within alloc
func (a *Allocator) HandleAt(alloc Allocation, index int) uintptr {
	heap := alloc.Heap()
	if heap == nil {
		return 0
	}
	return heap.CPUStart() + uintptr((alloc.Offset+index)*a.increment(alloc))
}

// GPUHandle returns the GPU address of the first descriptor of alloc. Host-only descriptors have no
// GPU address.
func (a *Allocator) GPUHandle(alloc Allocation) uint64 {
	return a.GPUHandleAt(alloc, 0)
}

func (a *Allocator) GPUHandleAt(alloc Allocation, index int) uint64 {
	heap := alloc.Heap()
	if heap == nil || alloc.HeapID == TypeHost {
		return 0
	}
	return heap.GPUStart() + uint64((alloc.Offset+index)*a.increment(alloc))
}

func (a *Allocator) Statistics() (resource memutils.Statistics, sampler memutils.Statistics) {
	return a.resource.Statistics(), a.sampler.Statistics()
}

// Destroy releases every descriptor heap, including the ones held in the recently freed slots
func (a *Allocator) Destroy() error {
	resourceErr := a.resource.Destroy()
	samplerErr := a.sampler.Destroy()
	a.resourceProvider.Destroy()
	a.samplerProvider.Destroy()

	return errors.CombineErrors(resourceErr, samplerErr)
}
