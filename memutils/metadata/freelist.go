package metadata

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gapi/memutils"
	"golang.org/x/exp/slices"
)

// FreeListMetadata is a PageMetadata that keeps free ranges in an offset-sorted list. Allocation carves
// a range out of a free entry, splitting off any alignment padding and any tail as new free entries.
// Freeing reinserts the range and merges it with free neighbors, so the list never holds two
// adjacent entries.
type FreeListMetadata struct {
	PageMetadataBase

	freeList []freeRange
	freeSize int
	usedSize int

	nextHandle  BlockAllocationHandle
	allocations *swiss.Map[BlockAllocationHandle, *Suballocation]
}

var _ PageMetadata = &FreeListMetadata{}

func NewFreeListMetadata() *FreeListMetadata {
	return &FreeListMetadata{}
}

func (m *FreeListMetadata) Init(size int) {
	m.PageMetadataBase.Init(size)
	m.allocations = swiss.NewMap[BlockAllocationHandle, *Suballocation](42)
	m.nextHandle = 0
	m.usedSize = 0
	m.freeSize = size
	m.freeList = m.freeList[:0]
	if size > 0 {
		m.freeList = append(m.freeList, freeRange{offset: 0, size: size})
	}
}

func (m *FreeListMetadata) Validate() error {
	regionCount := 0
	expectedOffset := 0
	usedSize := 0
	freeSize := 0
	lastWasFree := false

	err := m.VisitAllRegions(func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error {
		if offset != expectedOffset {
			return errors.Newf("region %d starts at offset %d, but the previous region ended at %d", regionCount, offset, expectedOffset)
		}
		if size <= 0 {
			return errors.Newf("region %d at offset %d has non-positive size %d", regionCount, offset, size)
		}
		if free && lastWasFree {
			return errors.Newf("free region at offset %d was not merged with the free region before it", offset)
		}

		if free {
			freeSize += size
		} else {
			usedSize += size
		}

		lastWasFree = free
		expectedOffset = offset + size
		regionCount++
		return nil
	})
	if err != nil {
		return err
	}

	if m.Size() > 0 && expectedOffset != m.Size() {
		return errors.Newf("regions end at offset %d, but the page has size %d", expectedOffset, m.Size())
	}
	if usedSize != m.usedSize {
		return errors.Newf("live allocations cover %d units, but the page reports %d used", usedSize, m.usedSize)
	}
	if freeSize != m.freeSize {
		return errors.Newf("free regions cover %d units, but the page reports %d free", freeSize, m.freeSize)
	}
	if m.usedSize+m.freeSize != m.Size() {
		return errors.Newf("used size %d and free size %d do not add up to page size %d", m.usedSize, m.freeSize, m.Size())
	}

	return nil
}

func (m *FreeListMetadata) AllocationCount() int  { return m.allocations.Count() }
func (m *FreeListMetadata) FreeRegionsCount() int { return len(m.freeList) }
func (m *FreeListMetadata) SumFreeSize() int      { return m.freeSize }
func (m *FreeListMetadata) UsedSize() int         { return m.usedSize }
func (m *FreeListMetadata) IsEmpty() bool         { return m.allocations.Count() == 0 }

func (m *FreeListMetadata) MayHaveFreeBlock(size int) bool {
	return m.freeSize >= size
}

func (m *FreeListMetadata) sortedAllocations() []BlockAllocationHandle {
	handles := make([]BlockAllocationHandle, 0, m.allocations.Count())
	offsets := make(map[BlockAllocationHandle]int, m.allocations.Count())
	m.allocations.Iter(func(handle BlockAllocationHandle, alloc *Suballocation) bool {
		handles = append(handles, handle)
		offsets[handle] = alloc.Offset
		return false
	})

	sort.Slice(handles, func(i, j int) bool {
		return offsets[handles[i]] < offsets[handles[j]]
	})
	return handles
}

func (m *FreeListMetadata) VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error {
	handles := m.sortedAllocations()

	freeIndex := 0
	for _, handle := range handles {
		alloc, _ := m.allocations.Get(handle)

		for freeIndex < len(m.freeList) && m.freeList[freeIndex].offset < alloc.Offset {
			region := m.freeList[freeIndex]
			err := handleBlock(NoAllocation, region.offset, region.size, nil, true)
			if err != nil {
				return err
			}
			freeIndex++
		}

		err := handleBlock(handle, alloc.Offset, alloc.Size, alloc.UserData, false)
		if err != nil {
			return err
		}
	}

	for ; freeIndex < len(m.freeList); freeIndex++ {
		region := m.freeList[freeIndex]
		err := handleBlock(NoAllocation, region.offset, region.size, nil, true)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *FreeListMetadata) getAllocation(allocHandle BlockAllocationHandle) (*Suballocation, error) {
	alloc, ok := m.allocations.Get(allocHandle)
	if !ok {
		return nil, errors.Wrapf(memutils.ForeignAllocationError, "handle %d", allocHandle)
	}
	return alloc, nil
}

func (m *FreeListMetadata) AllocationOffset(allocHandle BlockAllocationHandle) (int, error) {
	alloc, err := m.getAllocation(allocHandle)
	if err != nil {
		return 0, err
	}
	return alloc.Offset, nil
}

func (m *FreeListMetadata) AllocationSize(allocHandle BlockAllocationHandle) (int, error) {
	alloc, err := m.getAllocation(allocHandle)
	if err != nil {
		return 0, err
	}
	return alloc.Size, nil
}

func (m *FreeListMetadata) AllocationUserData(allocHandle BlockAllocationHandle) (any, error) {
	alloc, err := m.getAllocation(allocHandle)
	if err != nil {
		return nil, err
	}
	return alloc.UserData, nil
}

func (m *FreeListMetadata) SetAllocationUserData(allocHandle BlockAllocationHandle, userData any) error {
	alloc, err := m.getAllocation(allocHandle)
	if err != nil {
		return err
	}
	alloc.UserData = userData
	return nil
}

func (m *FreeListMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.PageCount++
	stats.PageBytes += m.Size()

	m.allocations.Iter(func(_ BlockAllocationHandle, alloc *Suballocation) bool {
		stats.AddAllocation(alloc.Size)
		return false
	})

	for _, region := range m.freeList {
		stats.AddUnusedRange(region.size)
	}
}

func (m *FreeListMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.PageCount++
	stats.PageBytes += m.Size()
	stats.AllocationCount += m.allocations.Count()
	stats.AllocationBytes += m.usedSize
}

func (m *FreeListMetadata) Clear() {
	m.Init(m.Size())
}

func (m *FreeListMetadata) PageJsonData(json jwriter.ObjectState) {
	m.PageMetadataBase.PageJsonData(json, m.freeSize, m.allocations.Count(), len(m.freeList))

	suballocations := json.Name("Suballocations").Array()
	defer suballocations.End()

	_ = m.VisitAllRegions(func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error {
		obj := suballocations.Object()
		defer obj.End()

		obj.Name("Offset").Int(offset)
		obj.Name("Size").Int(size)
		if free {
			obj.Name("Type").String("FREE")
		} else if userData != nil {
			obj.Name("UserData").String(fmt.Sprintf("%v", userData))
		}
		return nil
	})
}

func (m *FreeListMetadata) CreateAllocationRequest(allocSize int, allocAlignment uint, strategy AllocationStrategy) (bool, AllocationRequest, error) {
	if allocSize <= 0 {
		return false, AllocationRequest{}, errors.Newf("allocation size must be positive, got %d", allocSize)
	}
	if allocAlignment == 0 {
		allocAlignment = 1
	}
	err := memutils.CheckPow2(allocAlignment, "allocAlignment")
	if err != nil {
		return false, AllocationRequest{}, err
	}

	if !m.MayHaveFreeBlock(allocSize) {
		return false, AllocationRequest{}, nil
	}

	bestIndex := -1
	bestSize := 0
	for i, region := range m.freeList {
		aligned := memutils.AlignUp(region.offset, allocAlignment)
		if aligned+allocSize > region.end() {
			continue
		}

		if strategy&AllocationStrategyMinTime != 0 {
			bestIndex = i
			break
		}

		if bestIndex < 0 || region.size < bestSize {
			bestIndex = i
			bestSize = region.size
		}
	}

	if bestIndex < 0 {
		return false, AllocationRequest{}, nil
	}

	region := m.freeList[bestIndex]
	return true, AllocationRequest{
		Offset:     memutils.AlignUp(region.offset, allocAlignment),
		Size:       allocSize,
		FreeOffset: region.offset,
		FreeSize:   region.size,
	}, nil
}

func (m *FreeListMetadata) findFreeRange(offset int) int {
	index := sort.Search(len(m.freeList), func(i int) bool {
		return m.freeList[i].offset >= offset
	})
	if index < len(m.freeList) && m.freeList[index].offset == offset {
		return index
	}
	return -1
}

func (m *FreeListMetadata) Alloc(request AllocationRequest, userData any) (BlockAllocationHandle, error) {
	index := m.findFreeRange(request.FreeOffset)
	if index < 0 {
		return NoAllocation, errors.Newf("no free range at offset %d", request.FreeOffset)
	}

	region := m.freeList[index]
	if region.size != request.FreeSize || request.Offset < region.offset || request.Offset+request.Size > region.end() {
		return NoAllocation, errors.Newf("free range at offset %d changed since the request was created", request.FreeOffset)
	}

	var remainder []freeRange
	if request.Offset > region.offset {
		remainder = append(remainder, freeRange{offset: region.offset, size: request.Offset - region.offset})
	}
	if tail := region.end() - (request.Offset + request.Size); tail > 0 {
		remainder = append(remainder, freeRange{offset: request.Offset + request.Size, size: tail})
	}

	m.freeList = slices.Delete(m.freeList, index, index+1)
	m.freeList = slices.Insert(m.freeList, index, remainder...)
	m.freeSize -= request.Size
	m.usedSize += request.Size

	handle := m.nextHandle
	m.nextHandle++
	m.allocations.Put(handle, &Suballocation{
		Offset:   request.Offset,
		Size:     request.Size,
		UserData: userData,
	})

	return handle, nil
}

func (m *FreeListMetadata) Free(allocHandle BlockAllocationHandle) error {
	alloc, err := m.getAllocation(allocHandle)
	if err != nil {
		return err
	}
	m.allocations.Delete(allocHandle)

	m.usedSize -= alloc.Size
	m.freeSize += alloc.Size

	released := freeRange{offset: alloc.Offset, size: alloc.Size}
	index := sort.Search(len(m.freeList), func(i int) bool {
		return m.freeList[i].offset > released.offset
	})

	mergePrev := index > 0 && m.freeList[index-1].end() == released.offset
	mergeNext := index < len(m.freeList) && released.end() == m.freeList[index].offset

	switch {
	case mergePrev && mergeNext:
		m.freeList[index-1].size += released.size + m.freeList[index].size
		m.freeList = slices.Delete(m.freeList, index, index+1)
	case mergePrev:
		m.freeList[index-1].size += released.size
	case mergeNext:
		m.freeList[index].offset = released.offset
		m.freeList[index].size += released.size
	default:
		m.freeList = slices.Insert(m.freeList, index, released)
	}

	return nil
}
