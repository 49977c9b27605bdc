// Package device wires the allocators, the resource factory and the layout builder over one native
// backend.
package device

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vkngwrapper/gapi"
	"github.com/vkngwrapper/gapi/descriptors"
	"github.com/vkngwrapper/gapi/devmem"
	"github.com/vkngwrapper/gapi/layout"
	"github.com/vkngwrapper/gapi/memutils"
	"github.com/vkngwrapper/gapi/resource"
	"golang.org/x/exp/slog"
)

// Backend is a native graphics API. Adapters is called before Open; everything else after it.
type Backend[M comparable] interface {
	Adapters() ([]gapi.AdapterProps, error)
	Open(adapter gapi.AdapterProps) error
	Close() error

	MemoryHeaps() devmem.NativeHeaps[M]
	// DescriptorDevice returns nil on APIs without descriptor heaps
	DescriptorDevice() descriptors.Device
	Resources() resource.Backend[M]
	Queue() resource.Queue[M]
	// LayoutCompiler may return nil, in which case layouts carry no native object
	LayoutCompiler(cfg gapi.Config) layout.Compiler
}

// Device owns every allocator created over one opened backend
type Device[M comparable] struct {
	logger  *slog.Logger
	backend Backend[M]

	Adapter gapi.AdapterProps
	Metrics *devmem.Metrics

	memoryProvider *devmem.CachingProvider[M]
	Memory         *devmem.Allocator[M]
	// Descriptors is nil when the backend has no descriptor heaps
	Descriptors *descriptors.Allocator
	Resources   *resource.Factory[M]
	Layouts     *layout.Builder
}

// New selects an adapter, opens backend on it and builds the allocators from cfg. reg may be nil, in
// which case no metrics are recorded.
func New[M comparable](logger *slog.Logger, cfg gapi.Config, reg prometheus.Registerer, backend Backend[M]) (*Device[M], error) {
	err := cfg.Validate()
	if err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	adapters, err := backend.Adapters()
	if err != nil {
		return nil, gapi.DeviceUnavailable(errors.Wrap(err, "enumerating adapters"))
	}
	adapter, err := gapi.SelectAdapter(adapters, cfg.Adapter)
	if err != nil {
		return nil, err
	}

	err = backend.Open(adapter)
	if err != nil {
		return nil, gapi.DeviceUnavailable(errors.Wrapf(err, "opening %s", adapter.Name))
	}

	var metrics *devmem.Metrics
	if reg != nil {
		metrics = devmem.NewMetrics(reg)
	}

	d := &Device[M]{
		logger:  logger,
		backend: backend,
		Adapter: adapter,
		Metrics: metrics,
	}

	d.memoryProvider = devmem.NewCachingProvider[M](logger, backend.MemoryHeaps(), "memory", metrics)
	d.Memory = devmem.New[M](logger, d.memoryProvider, devmem.CreateOptions{
		Name:            "memory",
		DefaultPageSize: cfg.MemoryPageSize,
		Strategy:        cfg.Strategy(),
		Metrics:         metrics,
	})

	layoutOptions := layout.Options{
		PushConstantRegister:       uint32(cfg.PushConstantRegister),
		BaseVertexInstanceRegister: uint32(cfg.BaseVertexInstanceRegister),
	}
	if descriptorDevice := backend.DescriptorDevice(); descriptorDevice != nil {
		d.Descriptors = descriptors.New(logger, descriptorDevice, descriptors.Options{
			ResourcePageSize: cfg.ResourceDescriptorPageSize,
			SamplerPageSize:  cfg.SamplerDescriptorPageSize,
			Metrics:          metrics,
		})
		layoutOptions.ResourceIncrement = d.Descriptors.IncrementSize(descriptors.HeapTypeResource)
		layoutOptions.SamplerIncrement = d.Descriptors.IncrementSize(descriptors.HeapTypeSampler)
	}

	d.Resources, err = resource.NewFactory[M](logger, d.Memory, backend.Resources(), backend.Queue(), resource.Options{
		RowPitchAlignment: uint(cfg.RowPitchAlignment),
	})
	if err != nil {
		return nil, errors.CombineErrors(err, backend.Close())
	}

	d.Layouts = layout.NewBuilder(logger, backend.LayoutCompiler(cfg), layoutOptions)

	logger.LogAttrs(context.Background(), slog.LevelInfo, "Opened device",
		slog.String("adapter", adapter.Name),
		slog.String("dedicatedMemory", humanize.IBytes(uint64(adapter.DedicatedMemory))),
		slog.String("memoryPageSize", humanize.IBytes(uint64(cfg.MemoryPageSize))))
	return d, nil
}

// PrintDetailedMap writes the page map of every allocator of the device
func (d *Device[M]) PrintDetailedMap(writer *jwriter.Writer) {
	obj := writer.Object()
	defer obj.End()

	obj.Name("Adapter").String(d.Adapter.Name)

	d.Memory.PrintDetailedMap(obj.Name("Memory"))

	if d.Descriptors != nil {
		resourceStats, samplerStats := d.Descriptors.Statistics()
		descriptorObj := obj.Name("Descriptors").Object()
		printStatistics(descriptorObj.Name("Resource"), resourceStats)
		printStatistics(descriptorObj.Name("Sampler"), samplerStats)
		descriptorObj.End()
	}

	obj.Name("CachedLayouts").Int(d.Layouts.CachedCount())
}

func printStatistics(writer *jwriter.Writer, stats memutils.Statistics) {
	obj := writer.Object()
	defer obj.End()

	obj.Name("PageCount").Int(stats.PageCount)
	obj.Name("PageBytes").Int(stats.PageBytes)
	obj.Name("AllocationCount").Int(stats.AllocationCount)
	obj.Name("AllocationBytes").Int(stats.AllocationBytes)
}

// BuildStatsString returns the output of PrintDetailedMap as a string
func (d *Device[M]) BuildStatsString() string {
	writer := jwriter.NewWriter()
	d.PrintDetailedMap(&writer)
	return string(writer.Bytes())
}

// Close releases every allocator and closes the backend. Allocations that are still live are logged
// and reported in the returned error.
func (d *Device[M]) Close() error {
	var err error
	if d.Descriptors != nil {
		err = errors.CombineErrors(err, d.Descriptors.Destroy())
	}
	err = errors.CombineErrors(err, d.Memory.Destroy())
	d.memoryProvider.Destroy()

	return errors.CombineErrors(err, d.backend.Close())
}
