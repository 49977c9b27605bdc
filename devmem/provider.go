package devmem

import (
	"context"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/exp/slog"
)

// NativeHeaps is the vendor primitive that creates and releases whole native heaps. typeID is
// backend-defined: a memory type index, a heap type, or a descriptor heap type.
type NativeHeaps[M comparable] interface {
	CreateHeap(size int, typeID uint32) (M, error)
	ReleaseHeap(heap M, size int, typeID uint32)
}

// HeapProvider is where an Allocator gets its pages from
type HeapProvider[M comparable] interface {
	Alloc(size int, typeID uint32) (M, error)
	Free(heap M, size int, typeID uint32)
}

// CachingProvider is a HeapProvider that holds on to the most recently freed native heap. A request of
// the same size and type is served from that slot without a native call. Any other request evicts
// the cached heap first, so at most one heap is ever cached.
type CachingProvider[M comparable] struct {
	logger  *slog.Logger
	native  NativeHeaps[M]
	metrics *Metrics
	name    string

	mutex      sync.Mutex
	last       M
	lastSize   int
	lastTypeID uint32
	hasLast    bool
}

var _ HeapProvider[int] = &CachingProvider[int]{}

// NewCachingProvider wraps native in a one-slot recently-freed cache. name labels the provider's
// metrics and log lines. metrics may be nil.
func NewCachingProvider[M comparable](logger *slog.Logger, native NativeHeaps[M], name string, metrics *Metrics) *CachingProvider[M] {
	return &CachingProvider[M]{
		logger:  logger,
		native:  native,
		metrics: metrics,
		name:    name,
	}
}

func (p *CachingProvider[M]) Alloc(size int, typeID uint32) (M, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.hasLast {
		if p.lastSize == size && p.lastTypeID == typeID {
			heap := p.take()
			p.metrics.cacheHit(p.name)
			p.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Reused cached heap",
				slog.String("provider", p.name),
				slog.String("size", humanize.IBytes(uint64(size))),
				slog.Uint64("typeId", uint64(typeID)))
			return heap, nil
		}

		p.evict()
	}

	heap, err := p.native.CreateHeap(size, typeID)
	if err != nil {
		var zero M
		return zero, err
	}

	p.metrics.heapCreated(p.name)
	return heap, nil
}

func (p *CachingProvider[M]) Free(heap M, size int, typeID uint32) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.hasLast {
		p.evict()
	}

	p.last = heap
	p.lastSize = size
	p.lastTypeID = typeID
	p.hasLast = true
}

// Cached reports whether a heap is currently held in the recently-freed slot
func (p *CachingProvider[M]) Cached() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.hasLast
}

// Destroy releases the cached heap, if any. The provider may still be used afterward.
func (p *CachingProvider[M]) Destroy() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.hasLast {
		p.evict()
	}
}

func (p *CachingProvider[M]) take() M {
	heap := p.last

	var zero M
	p.last = zero
	p.lastSize = 0
	p.lastTypeID = 0
	p.hasLast = false

	return heap
}

func (p *CachingProvider[M]) evict() {
	size, typeID := p.lastSize, p.lastTypeID
	heap := p.take()

	p.native.ReleaseHeap(heap, size, typeID)
	p.metrics.cacheEviction(p.name)
	p.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Released cached heap",
		slog.String("provider", p.name),
		slog.String("size", humanize.IBytes(uint64(size))),
		slog.Uint64("typeId", uint64(typeID)))
}
