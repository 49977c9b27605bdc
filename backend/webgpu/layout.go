// Package webgpu compiles pipeline layouts into WebGPU bind group layouts. WebGPU has no combined
// image samplers, descriptor arrays, push constants or ray tracing, so layouts using any of these
// are rejected.
package webgpu

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/vkngwrapper/gapi/layout"
	"github.com/vkngwrapper/gapi/reflection"
	"golang.org/x/exp/slog"
)

// Device creates native bind group layouts
type Device interface {
	CreateBindGroupLayout(label string, entries []gputypes.BindGroupLayoutEntry) (any, error)
}

// BindGroupLayout is the compiled form of a layout, which is always bind group 0
type BindGroupLayout struct {
	Entries []gputypes.BindGroupLayoutEntry
	Native  any
}

type Compiler struct {
	logger *slog.Logger
	device Device
}

var _ layout.Compiler = &Compiler{}

func NewCompiler(logger *slog.Logger, device Device) *Compiler {
	return &Compiler{
		logger: logger,
		device: device,
	}
}

func (c *Compiler) Compile(l *layout.Layout) (any, error) {
	entries, err := Entries(l)
	if err != nil {
		return nil, err
	}

	native, err := c.device.CreateBindGroupLayout("gapi_layout", entries)
	if err != nil {
		return nil, errors.Wrap(err, "creating bind group layout")
	}

	c.logger.LogAttrs(context.Background(), slog.LevelDebug, "Compiled bind group layout", slog.Int("entries", len(entries)))
	return &BindGroupLayout{
		Entries: entries,
		Native:  native,
	}, nil
}

// Entries converts the used bindings of l into bind group layout entries, in slot order
func Entries(l *layout.Layout) ([]gputypes.BindGroupLayoutEntry, error) {
	if l.Push.Size > 0 {
		return nil, errors.New("push constants are not supported")
	}

	var entries []gputypes.BindGroupLayoutEntry
	for _, binding := range l.Bindings {
		if !binding.IsUsed() {
			continue
		}

		entry, err := entryOf(binding)
		if err != nil {
			return nil, errors.Wrapf(err, "binding %d", binding.Layout)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func entryOf(binding reflection.Binding) (gputypes.BindGroupLayoutEntry, error) {
	entry := gputypes.BindGroupLayoutEntry{Binding: binding.Layout}

	if binding.RuntimeSized || binding.ArraySize > 1 {
		return entry, errors.New("descriptor arrays are not supported")
	}

	if binding.Stage&^(reflection.StageVertex|reflection.StageFragment|reflection.StageCompute) != 0 {
		return entry, errors.Newf("stages %s are not supported", binding.Stage)
	}
	if binding.Stage&reflection.StageVertex != 0 {
		entry.Visibility |= gputypes.ShaderStageVertex
	}
	if binding.Stage&reflection.StageFragment != 0 {
		entry.Visibility |= gputypes.ShaderStageFragment
	}
	if binding.Stage&reflection.StageCompute != 0 {
		entry.Visibility |= gputypes.ShaderStageCompute
	}

	switch binding.Class {
	case reflection.ClassUBO:
		entry.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeUniform,
			MinBindingSize: uint64(binding.ByteSize),
		}
	case reflection.ClassSsboR:
		entry.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeReadOnlyStorage,
			MinBindingSize: uint64(binding.ByteSize + binding.VarByteSize),
		}
	case reflection.ClassSsboRW:
		entry.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeStorage,
			MinBindingSize: uint64(binding.ByteSize + binding.VarByteSize),
		}
	case reflection.ClassImage:
		entry.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case reflection.ClassSampler:
		entry.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	case reflection.ClassImgR:
		entry.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessReadOnly,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case reflection.ClassImgRW:
		entry.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessReadWrite,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	default:
		return entry, errors.Newf("%s bindings are not supported", binding.Class)
	}

	return entry, nil
}
