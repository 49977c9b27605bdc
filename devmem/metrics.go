package devmem

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records page and heap churn for any number of allocators, distinguished by the allocator
// label. A nil *Metrics is valid and records nothing.
type Metrics struct {
	pagesCreated   *prometheus.CounterVec
	pagesReleased  *prometheus.CounterVec
	allocFailures  *prometheus.CounterVec
	heapsCreated   *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec

	livePages      *prometheus.GaugeVec
	pageBytes      *prometheus.GaugeVec
	allocatedBytes *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		pagesCreated: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "gapi",
			Name:      "allocator_pages_created_total",
			Help:      "Total number of pages created by an allocator.",
		}, []string{"allocator"}),
		pagesReleased: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "gapi",
			Name:      "allocator_pages_released_total",
			Help:      "Total number of empty pages returned to the heap provider.",
		}, []string{"allocator"}),
		allocFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "gapi",
			Name:      "allocator_failures_total",
			Help:      "Total number of allocations that failed because no native heap could be created.",
		}, []string{"allocator"}),
		heapsCreated: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "gapi",
			Name:      "heap_provider_native_allocations_total",
			Help:      "Total number of native heaps created by a heap provider.",
		}, []string{"allocator"}),
		cacheHits: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "gapi",
			Name:      "heap_provider_cache_hits_total",
			Help:      "Total number of heap requests served from the recently freed slot.",
		}, []string{"allocator"}),
		cacheEvictions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "gapi",
			Name:      "heap_provider_cache_evictions_total",
			Help:      "Total number of cached heaps released to the driver.",
		}, []string{"allocator"}),
		livePages: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gapi",
			Name:      "allocator_pages",
			Help:      "Number of live pages owned by an allocator.",
		}, []string{"allocator"}),
		pageBytes: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gapi",
			Name:      "allocator_page_bytes",
			Help:      "Total size of the live pages owned by an allocator.",
		}, []string{"allocator"}),
		allocatedBytes: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gapi",
			Name:      "allocator_allocated_bytes",
			Help:      "Total size of the live sub-allocations of an allocator.",
		}, []string{"allocator"}),
	}
}

func (m *Metrics) pageCreated(name string, size int) {
	if m == nil {
		return
	}
	m.pagesCreated.WithLabelValues(name).Inc()
	m.livePages.WithLabelValues(name).Inc()
	m.pageBytes.WithLabelValues(name).Add(float64(size))
}

func (m *Metrics) pageReleased(name string, size int) {
	if m == nil {
		return
	}
	m.pagesReleased.WithLabelValues(name).Inc()
	m.livePages.WithLabelValues(name).Dec()
	m.pageBytes.WithLabelValues(name).Sub(float64(size))
}

func (m *Metrics) allocated(name string, size int) {
	if m == nil {
		return
	}
	m.allocatedBytes.WithLabelValues(name).Add(float64(size))
}

func (m *Metrics) freed(name string, size int) {
	if m == nil {
		return
	}
	m.allocatedBytes.WithLabelValues(name).Sub(float64(size))
}

func (m *Metrics) allocFailed(name string) {
	if m == nil {
		return
	}
	m.allocFailures.WithLabelValues(name).Inc()
}

func (m *Metrics) heapCreated(name string) {
	if m == nil {
		return
	}
	m.heapsCreated.WithLabelValues(name).Inc()
}

func (m *Metrics) cacheHit(name string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(name).Inc()
}

func (m *Metrics) cacheEviction(name string) {
	if m == nil {
		return
	}
	m.cacheEvictions.WithLabelValues(name).Inc()
}
