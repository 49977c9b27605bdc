package devmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gapi"
	"github.com/vkngwrapper/gapi/memutils"
	"github.com/vkngwrapper/gapi/memutils/metadata"
	"golang.org/x/exp/slog"
)

const (
	// DefaultPageSize is used when CreateOptions.DefaultPageSize is left empty. It is equal to 64Mb.
	DefaultPageSize int = 64 * 1024 * 1024
)

// Requirements describe the backing store a resource needs
type Requirements struct {
	Size      int
	Alignment uint
}

// PageKey is the class of memory a page serves. Only requests with an identical key share a page.
type PageKey struct {
	HeapID      uint32
	TypeID      uint32
	HostVisible bool
}

// Page is one native heap, sub-divided into many allocations of a single PageKey class
type Page[M comparable] struct {
	id       int
	key      PageKey
	heap     M
	metadata metadata.PageMetadata
}

func (p *Page[M]) ID() int         { return p.id }
func (p *Page[M]) Key() PageKey    { return p.key }
func (p *Page[M]) Heap() M         { return p.heap }
func (p *Page[M]) Size() int       { return p.metadata.Size() }
func (p *Page[M]) UsedSize() int   { return p.metadata.UsedSize() }
func (p *Page[M]) FreeSize() int   { return p.metadata.SumFreeSize() }
func (p *Page[M]) Validate() error { return p.metadata.Validate() }

// Allocation is a range within a page. The zero value has no page and represents an empty allocation;
// it is what zero-size requests return, and freeing it does nothing.
type Allocation[M comparable] struct {
	page   *Page[M]
	handle metadata.BlockAllocationHandle

	Offset int
	Size   int
	HeapID uint32
}

// IsNull returns true for the empty allocation
func (a Allocation[M]) IsNull() bool { return a.page == nil }

// Page returns the page the allocation lives in, or nil for the empty allocation
func (a Allocation[M]) Page() *Page[M] { return a.page }

// Heap returns the native heap backing the allocation
func (a Allocation[M]) Heap() M {
	if a.page == nil {
		var zero M
		return zero
	}
	return a.page.heap
}

// TypeID returns the type class of the page the allocation lives in
func (a Allocation[M]) TypeID() uint32 {
	if a.page == nil {
		return 0
	}
	return a.page.key.TypeID
}

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Name labels log lines and metrics
	Name string
	// DefaultPageSize is the size of new pages. Requests larger than this get a page of exactly
	// their own size.
	DefaultPageSize int
	// Strategy chooses among free ranges that could hold an allocation
	Strategy metadata.AllocationStrategy
	// Metrics may be nil
	Metrics *Metrics
}

// Allocator is a paged sub-allocator over a HeapProvider. Every method is safe to call from multiple
// goroutines; all of them serialize on a single mutex.
type Allocator[M comparable] struct {
	logger   *slog.Logger
	provider HeapProvider[M]
	name     string
	metrics  *Metrics
	strategy metadata.AllocationStrategy

	mutex           sync.Mutex
	defaultPageSize int
	pages           []*Page[M]
	nextPageID      int
}

func New[M comparable](logger *slog.Logger, provider HeapProvider[M], options CreateOptions) *Allocator[M] {
	pageSize := options.DefaultPageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	strategy := options.Strategy
	if strategy == 0 {
		strategy = metadata.AllocationStrategyMinMemory
	}

	name := options.Name
	if name == "" {
		name = "memory"
	}

	return &Allocator[M]{
		logger:          logger,
		provider:        provider,
		name:            name,
		metrics:         options.Metrics,
		strategy:        strategy,
		defaultPageSize: pageSize,
	}
}

// SetDefaultPageSize changes the size of pages created from now on. Existing pages are untouched.
func (a *Allocator[M]) SetDefaultPageSize(size int) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if size > 0 {
		a.defaultPageSize = size
	}
}

// Alloc places requirements.Size units into a page of the requested class. Existing pages are tried
// first, in creation order. If none has room, a new page of max(requirements.Size, default page size)
// is requested from the provider. Provider failures are marked with gapi.ErrAllocationFailed and are
// not retried.
func (a *Allocator[M]) Alloc(requirements Requirements, heapID, typeID uint32, hostVisible bool) (Allocation[M], error) {
	if requirements.Size <= 0 {
		return Allocation[M]{}, nil
	}

	alignment := requirements.Alignment
	if alignment == 0 {
		alignment = 1
	}
	err := memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return Allocation[M]{}, err
	}

	key := PageKey{HeapID: heapID, TypeID: typeID, HostVisible: hostVisible}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	for _, page := range a.pages {
		if page.key != key || !page.metadata.MayHaveFreeBlock(requirements.Size) {
			continue
		}

		alloc, ok, err := a.allocFromPage(page, requirements.Size, alignment)
		if err != nil {
			return Allocation[M]{}, err
		}
		if ok {
			a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Returned from existing page", slog.Int("page.id", page.id))
			return alloc, nil
		}
	}

	pageSize := max(requirements.Size, a.defaultPageSize)
	page, err := a.createPage(key, pageSize)
	if err != nil {
		a.metrics.allocFailed(a.name)
		return Allocation[M]{}, err
	}

	alloc, ok, err := a.allocFromPage(page, requirements.Size, alignment)
	if err != nil {
		return Allocation[M]{}, err
	}
	if !ok {
		panic(fmt.Sprintf("created page %d of size %d to hold an allocation of size %d but it did not fit", page.id, pageSize, requirements.Size))
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Created new page", slog.Int("page.id", page.id), slog.String("size", humanize.IBytes(uint64(pageSize))))
	return alloc, nil
}

func (a *Allocator[M]) createPage(key PageKey, size int) (*Page[M], error) {
	heap, err := a.provider.Alloc(size, key.TypeID)
	if err != nil {
		return nil, gapi.AllocationFailed(errors.Wrapf(err, "%s: creating page of %d for type %d", a.name, size, key.TypeID))
	}

	meta := metadata.NewFreeListMetadata()
	meta.Init(size)

	page := &Page[M]{
		id:       a.nextPageID,
		key:      key,
		heap:     heap,
		metadata: meta,
	}
	a.nextPageID++
	a.pages = append(a.pages, page)
	a.metrics.pageCreated(a.name, size)

	return page, nil
}

func (a *Allocator[M]) allocFromPage(page *Page[M], size int, alignment uint) (Allocation[M], bool, error) {
	ok, request, err := page.metadata.CreateAllocationRequest(size, alignment, a.strategy)
	if err != nil || !ok {
		return Allocation[M]{}, false, err
	}

	handle, err := page.metadata.Alloc(request, nil)
	if err != nil {
		panic(fmt.Sprintf("unexpected failure committing a fresh allocation request on page %d: %+v", page.id, err))
	}
	memutils.DebugValidate(page.metadata)
	a.metrics.allocated(a.name, size)

	return Allocation[M]{
		page:   page,
		handle: handle,
		Offset: request.Offset,
		Size:   size,
		HeapID: page.key.HeapID,
	}, true, nil
}

// Free returns alloc's range to its page and resets alloc to the empty allocation. A page left with
// no allocations is handed back to the provider. Freeing the empty allocation does nothing.
func (a *Allocator[M]) Free(alloc *Allocation[M]) error {
	if alloc == nil || alloc.page == nil {
		return nil
	}

	pageToDelete, err := a.freeWithLock(alloc)
	if err != nil {
		return err
	}

	if pageToDelete != nil {
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Deleted empty page", slog.Int("page.id", pageToDelete.id))
		a.provider.Free(pageToDelete.heap, pageToDelete.metadata.Size(), pageToDelete.key.TypeID)
	}

	*alloc = Allocation[M]{}
	return nil
}

func (a *Allocator[M]) freeWithLock(alloc *Allocation[M]) (*Page[M], error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	page := alloc.page
	pageIndex := a.pageIndex(page)
	if pageIndex < 0 {
		return nil, errors.Wrapf(memutils.ForeignAllocationError, "%s: page %d", a.name, page.id)
	}

	err := page.metadata.Free(alloc.handle)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: freeing offset %d on page %d", a.name, alloc.Offset, page.id)
	}
	memutils.DebugValidate(page.metadata)
	a.metrics.freed(a.name, alloc.Size)

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Freed from page", slog.Int("page.id", page.id), slog.Int("offset", alloc.Offset))

	if !page.metadata.IsEmpty() {
		return nil, nil
	}

	a.pages = append(a.pages[:pageIndex], a.pages[pageIndex+1:]...)
	a.metrics.pageReleased(a.name, page.metadata.Size())
	return page, nil
}

func (a *Allocator[M]) pageIndex(page *Page[M]) int {
	for index, candidate := range a.pages {
		if candidate == page {
			return index
		}
	}
	return -1
}

// PageCount returns the number of live pages
func (a *Allocator[M]) PageCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return len(a.pages)
}

// Pages returns a snapshot of the live pages
func (a *Allocator[M]) Pages() []*Page[M] {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	pages := make([]*Page[M], len(a.pages))
	copy(pages, a.pages)
	return pages
}

func (a *Allocator[M]) Statistics() memutils.Statistics {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var stats memutils.Statistics
	for _, page := range a.pages {
		page.metadata.AddStatistics(&stats)
	}
	return stats
}

func (a *Allocator[M]) DetailedStatistics() memutils.DetailedStatistics {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	for _, page := range a.pages {
		page.metadata.AddDetailedStatistics(&stats)
	}
	return stats
}

// PrintDetailedMap writes every page and sub-allocation to writer as a json object
func (a *Allocator[M]) PrintDetailedMap(writer *jwriter.Writer) {
	stats := a.DetailedStatistics()

	a.mutex.Lock()
	defer a.mutex.Unlock()

	obj := writer.Object()
	defer obj.End()

	obj.Name("Name").String(a.name)
	obj.Name("DefaultPageSize").Int(a.defaultPageSize)

	total := obj.Name("Total").Object()
	total.Name("PageCount").Int(stats.PageCount)
	total.Name("PageBytes").Int(stats.PageBytes)
	total.Name("AllocationCount").Int(stats.AllocationCount)
	total.Name("AllocationBytes").Int(stats.AllocationBytes)
	total.Name("UnusedRangeCount").Int(stats.UnusedRangeCount)
	if stats.AllocationCount > 0 {
		total.Name("AllocationSizeMin").Int(stats.AllocationSizeMin)
		total.Name("AllocationSizeMax").Int(stats.AllocationSizeMax)
	}
	if stats.UnusedRangeCount > 0 {
		total.Name("UnusedRangeSizeMin").Int(stats.UnusedRangeSizeMin)
		total.Name("UnusedRangeSizeMax").Int(stats.UnusedRangeSizeMax)
	}
	total.End()

	pages := obj.Name("Pages").Array()
	for _, page := range a.pages {
		pageObj := pages.Object()
		pageObj.Name("Id").Int(page.id)
		pageObj.Name("HeapId").Int(int(page.key.HeapID))
		pageObj.Name("TypeId").Int(int(page.key.TypeID))
		pageObj.Name("HostVisible").Bool(page.key.HostVisible)
		page.metadata.PageJsonData(pageObj)
		pageObj.End()
	}
	pages.End()
}

// BuildStatsString returns the output of PrintDetailedMap as a string
func (a *Allocator[M]) BuildStatsString() string {
	writer := jwriter.NewWriter()
	a.PrintDetailedMap(&writer)
	return string(writer.Bytes())
}

// Destroy releases every page to the provider. Allocations that are still live are logged as
// unreleased and an error is returned, but the pages are released regardless.
func (a *Allocator[M]) Destroy() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	unreleased := 0
	for _, page := range a.pages {
		if !page.metadata.IsEmpty() {
			unreleased += page.metadata.AllocationCount()
			a.logUnreleasedMemory(page)
		}

		a.provider.Free(page.heap, page.metadata.Size(), page.key.TypeID)
		a.metrics.pageReleased(a.name, page.metadata.Size())
		a.metrics.freed(a.name, page.metadata.UsedSize())
	}
	a.pages = nil

	if unreleased > 0 {
		return errors.Newf("%s: %d allocations were not freed before the allocator was destroyed", a.name, unreleased)
	}
	return nil
}

func (a *Allocator[M]) logUnreleasedMemory(page *Page[M]) {
	err := page.metadata.VisitAllRegions(func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
		if free {
			return nil
		}

		a.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
			slog.String("allocator", a.name),
			slog.Int("page.id", page.id),
			slog.Int("offset", offset),
			slog.Int("size", size),
		)
		return nil
	})
	if err != nil {
		a.logger.LogAttrs(context.Background(),
			slog.LevelError,
			"[UNRELEASED MEMORY] error while iterating unreleased memory",
			slog.Any("error", err))
	}
}
