package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gapi/memutils"
)

// PageMetadata tracks the sub-allocations carved out of a single page of some larger resource: device
// memory bytes, descriptor heap slots, or anything else that can be addressed as an offset range. It
// does not own the page itself, only the bookkeeping about which ranges are live and which are free.
type PageMetadata interface {
	// Init must be called before the PageMetadata is used. It sets the number of units the page
	// manages and marks the entire page as a single free range.
	Init(size int)
	// Size retrieves the size that the page was initialized with
	Size() int

	// Validate performs internal consistency checks on the metadata. Live and free ranges must tile
	// the page exactly, without gaps or overlap, and the cached counters must agree with the ranges.
	Validate() error
	// AllocationCount returns the number of live sub-allocations
	AllocationCount() int
	// FreeRegionsCount returns the number of distinct free ranges. Adjacent free ranges are always
	// merged, so two free ranges are never neighbors.
	FreeRegionsCount() int
	// SumFreeSize returns the number of free units in the page
	SumFreeSize() int
	// UsedSize returns the number of units covered by live sub-allocations
	UsedSize() int
	// MayHaveFreeBlock is a fast heuristic indicating whether an allocation of the provided size
	// could possibly succeed. It never returns false negatives.
	MayHaveFreeBlock(size int) bool
	// IsEmpty will return true if this page has no live sub-allocations
	IsEmpty() bool

	// VisitAllRegions will call the provided callback once for each allocation and free region in
	// the page, in offset order.
	VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error

	// AllocationOffset returns the offset of a live allocation
	AllocationOffset(allocHandle BlockAllocationHandle) (int, error)
	// AllocationSize returns the size of a live allocation
	AllocationSize(allocHandle BlockAllocationHandle) (int, error)
	AllocationUserData(allocHandle BlockAllocationHandle) (any, error)
	SetAllocationUserData(allocHandle BlockAllocationHandle, userData any) error

	// AddDetailedStatistics sums this page's statistics into the provided object
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	// AddStatistics sums this page's statistics into the provided object
	AddStatistics(stats *memutils.Statistics)

	// Clear instantly frees all allocations
	Clear()
	// PageJsonData populates a json object with information about this page
	PageJsonData(json jwriter.ObjectState)

	// CreateAllocationRequest locates a free range that can hold allocSize units at an offset that
	// is a multiple of allocAlignment. The returned bool is false when no range fits. The request
	// can be passed to Alloc to commit it.
	CreateAllocationRequest(allocSize int, allocAlignment uint, strategy AllocationStrategy) (bool, AllocationRequest, error)
	// Alloc commits an AllocationRequest. The implementation must return an error if the free range
	// the request was created from no longer exists or is no longer large enough.
	Alloc(request AllocationRequest, userData any) (BlockAllocationHandle, error)
	// Free returns a live allocation to the free list, merging it with free neighbors.
	//
	// The implementation must return an error if the provided handle does not map to a live allocation.
	Free(allocHandle BlockAllocationHandle) error
}

// PageMetadataBase provides a few shared utilities for PageMetadata implementations
type PageMetadataBase struct {
	size int
}

// Init sizes the page
func (m *PageMetadataBase) Init(size int) {
	m.size = size
}

// Size returns the size of the page
func (m *PageMetadataBase) Size() int { return m.size }

// PageJsonData populates a json object with summary information about this page
func (m *PageMetadataBase) PageJsonData(json jwriter.ObjectState, unusedBytes, allocationCount, unusedRangeCount int) {
	json.Name("TotalBytes").Int(m.Size())
	json.Name("UnusedBytes").Int(unusedBytes)
	json.Name("Allocations").Int(allocationCount)
	json.Name("UnusedRanges").Int(unusedRangeCount)
}
