package vulkan

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_2"
	"github.com/vkngwrapper/core/v2/driver"
	"github.com/vkngwrapper/gapi/layout"
	"github.com/vkngwrapper/gapi/reflection"
	"golang.org/x/exp/slog"
)

// DescriptorTypeAccelerationStructure is VK_DESCRIPTOR_TYPE_ACCELERATION_STRUCTURE_KHR
const DescriptorTypeAccelerationStructure core1_0.DescriptorType = 1000150000

const (
	stageTask core1_0.ShaderStageFlags = 0x40
	stageMesh core1_0.ShaderStageFlags = 0x80
)

// LayoutDevice is the part of core1_0.Device that creates layouts
type LayoutDevice interface {
	CreateDescriptorSetLayout(allocationCallbacks *driver.AllocationCallbacks, o core1_0.DescriptorSetLayoutCreateInfo) (core1_0.DescriptorSetLayout, common.VkResult, error)
	CreatePipelineLayout(allocationCallbacks *driver.AllocationCallbacks, o core1_0.PipelineLayoutCreateInfo) (core1_0.PipelineLayout, common.VkResult, error)
}

// PipelineLayout is the compiled form of a layout: one descriptor set holding every binding, and the
// pipeline layout over it
type PipelineLayout struct {
	SetLayout      core1_0.DescriptorSetLayout
	PipelineLayout core1_0.PipelineLayout
	// VariableBinding is the binding that takes a variable descriptor count, or -1
	VariableBinding int
}

func (p *PipelineLayout) Destroy(allocationCallbacks *driver.AllocationCallbacks) {
	p.PipelineLayout.Destroy(allocationCallbacks)
	p.SetLayout.Destroy(allocationCallbacks)
}

// LayoutCompiler compiles pipeline layouts into Vulkan descriptor set layouts. Runtime-sized bindings
// are partially bound with maxRuntimeDescriptors slots. A runtime-sized binding that is also the
// highest binding of the set takes a variable descriptor count.
type LayoutCompiler struct {
	logger                *slog.Logger
	device                LayoutDevice
	allocationCallbacks   *driver.AllocationCallbacks
	maxRuntimeDescriptors int
}

var _ layout.Compiler = &LayoutCompiler{}

func NewLayoutCompiler(logger *slog.Logger, device LayoutDevice, allocationCallbacks *driver.AllocationCallbacks, maxRuntimeDescriptors int) *LayoutCompiler {
	return &LayoutCompiler{
		logger:                logger,
		device:                device,
		allocationCallbacks:   allocationCallbacks,
		maxRuntimeDescriptors: maxRuntimeDescriptors,
	}
}

func DescriptorType(class reflection.Class) (core1_0.DescriptorType, error) {
	switch class {
	case reflection.ClassUBO:
		return core1_0.DescriptorTypeUniformBuffer, nil
	case reflection.ClassTexture:
		return core1_0.DescriptorTypeCombinedImageSampler, nil
	case reflection.ClassImage:
		return core1_0.DescriptorTypeSampledImage, nil
	case reflection.ClassSampler:
		return core1_0.DescriptorTypeSampler, nil
	case reflection.ClassSsboR, reflection.ClassSsboRW:
		return core1_0.DescriptorTypeStorageBuffer, nil
	case reflection.ClassImgR, reflection.ClassImgRW:
		return core1_0.DescriptorTypeStorageImage, nil
	case reflection.ClassTlas:
		return DescriptorTypeAccelerationStructure, nil
	}
	return 0, errors.Newf("%s has no descriptor type", class)
}

func ShaderStages(stage reflection.Stage) core1_0.ShaderStageFlags {
	var flags core1_0.ShaderStageFlags
	if stage&reflection.StageVertex != 0 {
		flags |= core1_0.StageVertex
	}
	if stage&reflection.StageControl != 0 {
		flags |= core1_0.StageTessellationControl
	}
	if stage&reflection.StageEvaluate != 0 {
		flags |= core1_0.StageTessellationEvaluation
	}
	if stage&reflection.StageGeometry != 0 {
		flags |= core1_0.StageGeometry
	}
	if stage&reflection.StageFragment != 0 {
		flags |= core1_0.StageFragment
	}
	if stage&reflection.StageCompute != 0 {
		flags |= core1_0.StageCompute
	}
	if stage&reflection.StageTask != 0 {
		flags |= stageTask
	}
	if stage&reflection.StageMesh != 0 {
		flags |= stageMesh
	}
	return flags
}

// SetLayoutInfo builds the descriptor set layout create info for l, and the binding that takes a
// variable descriptor count, or -1
func (c *LayoutCompiler) SetLayoutInfo(l *layout.Layout) (core1_0.DescriptorSetLayoutCreateInfo, int, error) {
	var info core1_0.DescriptorSetLayoutCreateInfo
	var bindingFlags []core1_2.DescriptorBindingFlags

	variableBinding := -1
	for _, binding := range l.Bindings {
		if !binding.IsUsed() {
			continue
		}

		descriptorType, err := DescriptorType(binding.Class)
		if err != nil {
			return info, -1, errors.Wrapf(err, "binding %d", binding.Layout)
		}

		count := int(binding.ArraySize)
		var flags core1_2.DescriptorBindingFlags
		if binding.RuntimeSized {
			count = c.maxRuntimeDescriptors
			flags = core1_2.DescriptorBindingPartiallyBound
			variableBinding = len(info.Bindings)
		}

		info.Bindings = append(info.Bindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         int(binding.Layout),
			DescriptorType:  descriptorType,
			DescriptorCount: count,
			StageFlags:      ShaderStages(binding.Stage),
		})
		bindingFlags = append(bindingFlags, flags)
	}

	if variableBinding < 0 {
		return info, -1, nil
	}

	info.NextOptions = common.NextOptions{Next: core1_2.DescriptorSetLayoutBindingFlagsCreateInfo{
		BindingFlags: bindingFlags,
	}}

	// only the highest binding of a set may have a variable count
	if variableBinding != len(info.Bindings)-1 {
		return info, -1, nil
	}
	bindingFlags[variableBinding] |= core1_2.DescriptorBindingVariableDescriptorCount
	return info, info.Bindings[variableBinding].Binding, nil
}

func (c *LayoutCompiler) Compile(l *layout.Layout) (any, error) {
	info, variableBinding, err := c.SetLayoutInfo(l)
	if err != nil {
		return nil, err
	}

	setLayout, _, err := c.device.CreateDescriptorSetLayout(c.allocationCallbacks, info)
	if err != nil {
		return nil, errors.Wrap(err, "creating descriptor set layout")
	}

	var pushRanges []core1_0.PushConstantRange
	if l.Push.Size > 0 {
		pushRanges = append(pushRanges, core1_0.PushConstantRange{
			StageFlags: ShaderStages(l.Push.Stage),
			Offset:     0,
			Size:       (l.Push.Size + 3) &^ 3,
		})
	}

	pipelineLayout, _, err := c.device.CreatePipelineLayout(c.allocationCallbacks, core1_0.PipelineLayoutCreateInfo{
		SetLayouts:         []core1_0.DescriptorSetLayout{setLayout},
		PushConstantRanges: pushRanges,
	})
	if err != nil {
		setLayout.Destroy(c.allocationCallbacks)
		return nil, errors.Wrap(err, "creating pipeline layout")
	}

	c.logger.LogAttrs(context.Background(), slog.LevelDebug, "Compiled pipeline layout",
		slog.Int("bindings", len(info.Bindings)),
		slog.Int("variableBinding", variableBinding),
		slog.Int("pushBytes", l.Push.Size))

	return &PipelineLayout{
		SetLayout:       setLayout,
		PipelineLayout:  pipelineLayout,
		VariableBinding: variableBinding,
	}, nil
}
