package layout

import (
	"context"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/gapi"
	"github.com/vkngwrapper/gapi/reflection"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// Compiler turns a flattened layout into a backend object
type Compiler interface {
	Compile(layout *Layout) (any, error)
}

type Options struct {
	// ResourceIncrement and SamplerIncrement scale heap offsets into byte offsets. Zero means 1.
	ResourceIncrement int
	SamplerIncrement  int

	PushConstantRegister       uint32
	BaseVertexInstanceRegister uint32
}

type BuildOptions struct {
	// BaseVertexInstance adds a vertex-visible parameter of two constants for emulated base vertex
	// and base instance
	BaseVertexInstance bool
}

// Builder assembles pipeline layouts from reflected binding lists and caches them by content
type Builder struct {
	logger   *slog.Logger
	compiler Compiler
	options  Options

	cacheLock sync.RWMutex
	cache     *swiss.Map[uint64, *Layout]
}

// NewBuilder creates a Builder. A nil compiler builds layouts without a native object.
func NewBuilder(logger *slog.Logger, compiler Compiler, options Options) *Builder {
	if options.ResourceIncrement <= 0 {
		options.ResourceIncrement = 1
	}
	if options.SamplerIncrement <= 0 {
		options.SamplerIncrement = 1
	}
	if options.PushConstantRegister == 0 {
		options.PushConstantRegister = gapi.DefaultPushConstantRegister
	}
	if options.BaseVertexInstanceRegister == 0 {
		options.BaseVertexInstanceRegister = gapi.DefaultBaseVertexInstanceRegister
	}

	return &Builder{
		logger:   logger,
		compiler: compiler,
		options:  options,
		cache:    swiss.NewMap[uint64, *Layout](16),
	}
}

// Build merges the binding lists of every stage of a pipeline and returns its layout. Identical inputs
// return the same *Layout. A layout the backend rejects fails with gapi.ErrLayoutBuild.
func (b *Builder) Build(options BuildOptions, stages ...[]reflection.Binding) (*Layout, error) {
	bindings, push, err := reflection.Merge(stages...)
	if err != nil {
		return nil, gapi.LayoutBuildFailed(err)
	}

	hash := hashLayout(bindings, push, options)

	b.cacheLock.RLock()
	cached, ok := b.cache.Get(hash)
	b.cacheLock.RUnlock()
	if ok && sameInputs(cached, bindings, push, options) {
		return cached, nil
	}

	layout := b.assemble(bindings, push, options)
	layout.hash = hash

	if b.compiler != nil {
		native, err := b.compiler.Compile(layout)
		if err != nil {
			b.logger.LogAttrs(context.Background(), slog.LevelError, "pipeline layout rejected",
				slog.Int("parameters", len(layout.Parameters)),
				slog.Any("error", err))
			return nil, gapi.LayoutBuildFailed(errors.Wrap(err, "compiling pipeline layout"))
		}
		layout.Native = native
	}

	b.cacheLock.Lock()
	defer b.cacheLock.Unlock()

	existing, found := b.cache.Get(hash)
	if found && sameInputs(existing, bindings, push, options) {
		return existing, nil
	}
	if !found {
		b.cache.Put(hash, layout)
	}

	b.logger.LogAttrs(context.Background(), slog.LevelDebug, "Built pipeline layout",
		slog.Uint64("hash", hash),
		slog.Int("bindings", len(bindings)),
		slog.Int("parameters", len(layout.Parameters)))
	return layout, nil
}

// CachedCount returns the number of layouts held by the cache
func (b *Builder) CachedCount() int {
	b.cacheLock.RLock()
	defer b.cacheLock.RUnlock()

	return b.cache.Count()
}

type rangeDesc struct {
	rng        DescriptorRange
	id         uint32
	visibility Visibility
}

func (b *Builder) assemble(bindings []reflection.Binding, push reflection.PushBlock, options BuildOptions) *Layout {
	layout := &Layout{
		Bindings:       bindings,
		Push:           push,
		Params:         make([]Param, len(bindings)),
		PushConstantID: -1,
		BaseInstanceID: -1,
	}

	var desc []rangeDesc
	add := func(binding reflection.Binding, rangeType RangeType) {
		rng := DescriptorRange{
			Type:           rangeType,
			NumDescriptors: binding.ArraySize,
			BaseRegister:   binding.Layout,
		}
		if binding.RuntimeSized {
			rng.BaseRegister = 0
			rng.RegisterSpace = binding.Layout + 1
			rng.NumDescriptors = Unbounded
		}

		desc = append(desc, rangeDesc{
			rng:        rng,
			id:         binding.Layout,
			visibility: VisibilityOf(binding.Stage),
		})
	}

	for _, binding := range bindings {
		if !binding.IsUsed() {
			continue
		}
		if binding.RuntimeSized {
			layout.runtimeSized = true
		}

		switch binding.Class {
		case reflection.ClassUBO:
			add(binding, RangeCBV)
		case reflection.ClassTexture:
			add(binding, RangeSRV)
			add(binding, RangeSampler)
		case reflection.ClassSampler:
			add(binding, RangeSampler)
		case reflection.ClassImage, reflection.ClassSsboR, reflection.ClassImgR, reflection.ClassTlas:
			add(binding, RangeSRV)
		case reflection.ClassSsboRW, reflection.ClassImgRW:
			add(binding, RangeUAV)
		}
	}

	sort.SliceStable(desc, func(i, j int) bool {
		a, b := desc[i], desc[j]
		if a.rng.RegisterSpace != b.rng.RegisterSpace {
			return a.rng.RegisterSpace < b.rng.RegisterSpace
		}
		if a.visibility != b.visibility {
			return a.visibility < b.visibility
		}
		return a.rng.Type < b.rng.Type
	})

	var current *rangeDesc
	for i := range desc {
		d := &desc[i]

		heapIndex := HeapResource
		if d.rng.Type == RangeSampler {
			heapIndex = HeapSampler
		}
		heap := &layout.Heaps[heapIndex]

		if current == nil || current.visibility != d.visibility || current.rng.Type != d.rng.Type ||
			current.rng.RegisterSpace != d.rng.RegisterSpace {
			layout.Parameters = append(layout.Parameters, RootParameter{
				Type:       ParameterTable,
				Visibility: d.visibility,
			})

			root := RootTable{
				Heap:       heapIndex,
				HeapOffset: heap.NumDesc,
				Binding:    -1,
			}
			if d.rng.RegisterSpace > 0 {
				root.Binding = int(d.rng.RegisterSpace - 1)
			}
			layout.Roots = append(layout.Roots, root)
			current = d
		}

		table := &layout.Parameters[len(layout.Parameters)-1]
		table.Ranges = append(table.Ranges, d.rng)
		if d.rng.RegisterSpace == 0 {
			heap.NumDesc += int(d.rng.NumDescriptors)
		}

		param := &layout.Params[d.id]
		param.RangeType = current.rng.Type
		if current.rng.Type == RangeSampler {
			param.HeapOffsetSmp = heap.NumDesc - int(d.rng.NumDescriptors)
		} else {
			param.HeapOffset = heap.NumDesc - int(d.rng.NumDescriptors)
		}
	}

	// runtime-sized tables start after every fixed descriptor
	for _, d := range desc {
		if d.rng.NumDescriptors != Unbounded {
			continue
		}
		layout.Params[d.id].HeapOffset = layout.Heaps[HeapResource].NumDesc
		layout.Params[d.id].HeapOffsetSmp = layout.Heaps[HeapSampler].NumDesc
	}

	for i := range layout.Params {
		layout.Params[i].HeapOffset *= b.options.ResourceIncrement
		layout.Params[i].HeapOffsetSmp *= b.options.SamplerIncrement
	}
	for i := range layout.Roots {
		if layout.Roots[i].Heap == HeapResource {
			layout.Roots[i].HeapOffset *= b.options.ResourceIncrement
		} else {
			layout.Roots[i].HeapOffset *= b.options.SamplerIncrement
		}
	}

	if push.Size > 0 {
		layout.PushConstantID = len(layout.Parameters)
		layout.Parameters = append(layout.Parameters, RootParameter{
			Type:           ParameterConstants,
			Visibility:     VisibilityOf(push.Stage),
			ShaderRegister: b.options.PushConstantRegister,
			Num32BitValues: uint32((push.Size + 3) / 4),
		})
	}

	if options.BaseVertexInstance {
		layout.BaseInstanceID = len(layout.Parameters)
		layout.Parameters = append(layout.Parameters, RootParameter{
			Type:           ParameterConstants,
			Visibility:     VisibilityVertex,
			ShaderRegister: b.options.BaseVertexInstanceRegister,
			Num32BitValues: 2,
		})
	}

	return layout
}

func hashLayout(bindings []reflection.Binding, push reflection.PushBlock, options BuildOptions) uint64 {
	digest := xxhash.New()
	var buf [8]byte

	write := func(values ...uint64) {
		for _, value := range values {
			binary.LittleEndian.PutUint64(buf[:], value)
			_, _ = digest.Write(buf[:])
		}
	}

	for _, binding := range bindings {
		runtimeSized := uint64(0)
		if binding.RuntimeSized {
			runtimeSized = 1
		}
		write(uint64(binding.Layout), uint64(binding.Stage), uint64(binding.Class), uint64(binding.ArraySize),
			runtimeSized, uint64(binding.ByteSize), uint64(binding.VarByteSize))
	}

	baseVertex := uint64(0)
	if options.BaseVertexInstance {
		baseVertex = 1
	}
	write(uint64(push.Stage), uint64(push.Size), baseVertex)

	return digest.Sum64()
}

func sameInputs(layout *Layout, bindings []reflection.Binding, push reflection.PushBlock, options BuildOptions) bool {
	return slices.Equal(layout.Bindings, bindings) && layout.Push == push &&
		(layout.BaseInstanceID >= 0) == options.BaseVertexInstance
}
