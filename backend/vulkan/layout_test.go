package vulkan_test

import (
	"io"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_2"
	"github.com/vkngwrapper/core/v2/driver"
	"github.com/vkngwrapper/core/v2/mocks"
	"github.com/vkngwrapper/gapi"
	"github.com/vkngwrapper/gapi/backend/vulkan"
	"github.com/vkngwrapper/gapi/layout"
	"github.com/vkngwrapper/gapi/reflection"
	"golang.org/x/exp/slog"
)

func readyBuilder(device *mocks.MockDevice) *layout.Builder {
	logger := slog.New(slog.NewTextHandler(io.Discard))
	compiler := vulkan.NewLayoutCompiler(logger, device, nil, 128)
	return layout.NewBuilder(logger, compiler, layout.Options{})
}

// expectLayouts records the create infos passed to the device and returns the created layouts
func expectLayouts(ctrl *gomock.Controller, device *mocks.MockDevice) (*core1_0.DescriptorSetLayoutCreateInfo, *core1_0.PipelineLayoutCreateInfo, *mocks.MockDescriptorSetLayout, *mocks.MockPipelineLayout) {
	setLayout := mocks.EasyMockDescriptorSetLayout(ctrl)
	pipelineLayout := mocks.EasyMockPipelineLayout(ctrl)
	setInfo := &core1_0.DescriptorSetLayoutCreateInfo{}
	pipelineInfo := &core1_0.PipelineLayoutCreateInfo{}

	device.EXPECT().CreateDescriptorSetLayout(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(callbacks *driver.AllocationCallbacks, o core1_0.DescriptorSetLayoutCreateInfo) (core1_0.DescriptorSetLayout, common.VkResult, error) {
			*setInfo = o
			return setLayout, core1_0.VKSuccess, nil
		})
	device.EXPECT().CreatePipelineLayout(gomock.Nil(), gomock.Any()).DoAndReturn(
		func(callbacks *driver.AllocationCallbacks, o core1_0.PipelineLayoutCreateInfo) (core1_0.PipelineLayout, common.VkResult, error) {
			*pipelineInfo = o
			return pipelineLayout, core1_0.VKSuccess, nil
		})

	return setInfo, pipelineInfo, setLayout, pipelineLayout
}

func TestCompileDescriptorSetLayout(t *testing.T) {
	ctrl := gomock.NewController(t)
	device := mocks.NewMockDevice(ctrl)
	info, pipelineInfo, setLayout, pipelineLayout := expectLayouts(ctrl, device)

	l, err := readyBuilder(device).Build(layout.BuildOptions{},
		[]reflection.Binding{
			{Layout: 0, Stage: reflection.StageVertex, Class: reflection.ClassUBO, ArraySize: 1, ByteSize: 64},
			{Stage: reflection.StageVertex, Class: reflection.ClassPush, ByteSize: 6},
		},
		[]reflection.Binding{
			{Layout: 0, Stage: reflection.StageFragment, Class: reflection.ClassUBO, ArraySize: 1, ByteSize: 64},
			{Layout: 2, Stage: reflection.StageFragment, Class: reflection.ClassTexture, ArraySize: 3},
			{Layout: 3, Stage: reflection.StageFragment, Class: reflection.ClassImage, RuntimeSized: true},
		},
	)
	require.NoError(t, err)

	require.Equal(t, []core1_0.DescriptorSetLayoutBinding{
		{Binding: 0, DescriptorType: core1_0.DescriptorTypeUniformBuffer, DescriptorCount: 1, StageFlags: core1_0.StageVertex | core1_0.StageFragment},
		{Binding: 2, DescriptorType: core1_0.DescriptorTypeCombinedImageSampler, DescriptorCount: 3, StageFlags: core1_0.StageFragment},
		{Binding: 3, DescriptorType: core1_0.DescriptorTypeSampledImage, DescriptorCount: 128, StageFlags: core1_0.StageFragment},
	}, info.Bindings)

	flags, ok := info.Next.(core1_2.DescriptorSetLayoutBindingFlagsCreateInfo)
	require.True(t, ok)
	require.Equal(t, []core1_2.DescriptorBindingFlags{
		0,
		0,
		core1_2.DescriptorBindingPartiallyBound | core1_2.DescriptorBindingVariableDescriptorCount,
	}, flags.BindingFlags)

	require.Equal(t, []core1_0.PushConstantRange{
		{StageFlags: core1_0.StageVertex, Offset: 0, Size: 8},
	}, pipelineInfo.PushConstantRanges)
	require.Equal(t, []core1_0.DescriptorSetLayout{setLayout}, pipelineInfo.SetLayouts)

	native, ok := l.Native.(*vulkan.PipelineLayout)
	require.True(t, ok)
	require.Equal(t, 3, native.VariableBinding)

	gomock.InOrder(
		pipelineLayout.EXPECT().Destroy(gomock.Nil()),
		setLayout.EXPECT().Destroy(gomock.Nil()),
	)
	native.Destroy(nil)
}

func TestRuntimeSizedBelowHighestBindingIsNotVariable(t *testing.T) {
	ctrl := gomock.NewController(t)
	compiler := vulkan.NewLayoutCompiler(slog.New(slog.NewTextHandler(io.Discard)), mocks.NewMockDevice(ctrl), nil, 64)

	info, variableBinding, err := compiler.SetLayoutInfo(&layout.Layout{
		Bindings: []reflection.Binding{
			{Layout: 0, Stage: reflection.StageCompute, Class: reflection.ClassSsboRW, RuntimeSized: true},
			{Layout: 1, Stage: reflection.StageCompute, Class: reflection.ClassImgR, ArraySize: 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, -1, variableBinding)
	require.Equal(t, 64, info.Bindings[0].DescriptorCount)
	require.Equal(t, core1_0.DescriptorTypeStorageImage, info.Bindings[1].DescriptorType)

	flags, ok := info.Next.(core1_2.DescriptorSetLayoutBindingFlagsCreateInfo)
	require.True(t, ok)
	require.Equal(t, []core1_2.DescriptorBindingFlags{core1_2.DescriptorBindingPartiallyBound, 0}, flags.BindingFlags)
}

func TestCompileSkipsUnusedSlots(t *testing.T) {
	ctrl := gomock.NewController(t)
	device := mocks.NewMockDevice(ctrl)
	info, pipelineInfo, _, _ := expectLayouts(ctrl, device)

	_, err := readyBuilder(device).Build(layout.BuildOptions{}, []reflection.Binding{
		{Layout: 0, Stage: reflection.StageCompute, Class: reflection.ClassSampler, ArraySize: 1},
		{Layout: 2, Stage: reflection.StageCompute, Class: reflection.ClassTlas, ArraySize: 1},
	})
	require.NoError(t, err)

	require.Len(t, info.Bindings, 2)
	require.Equal(t, 2, info.Bindings[1].Binding)
	require.Equal(t, vulkan.DescriptorTypeAccelerationStructure, info.Bindings[1].DescriptorType)
	require.Nil(t, info.Next)
	require.Empty(t, pipelineInfo.PushConstantRanges)
}

func TestPipelineLayoutFailureDestroysSetLayout(t *testing.T) {
	ctrl := gomock.NewController(t)
	device := mocks.NewMockDevice(ctrl)

	setLayout := mocks.EasyMockDescriptorSetLayout(ctrl)
	device.EXPECT().CreateDescriptorSetLayout(gomock.Nil(), gomock.Any()).Return(setLayout, core1_0.VKSuccess, nil)
	device.EXPECT().CreatePipelineLayout(gomock.Nil(), gomock.Any()).
		Return(nil, core1_0.VKErrorOutOfHostMemory, core1_0.VKErrorOutOfHostMemory.ToError())
	setLayout.EXPECT().Destroy(gomock.Nil())

	_, err := readyBuilder(device).Build(layout.BuildOptions{}, []reflection.Binding{
		{Layout: 0, Stage: reflection.StageCompute, Class: reflection.ClassSsboR, ArraySize: 1, ByteSize: 16},
	})
	require.Error(t, err)
	require.True(t, gapi.IsLayoutBuild(err))
	require.ErrorIs(t, err, gapi.ErrLayoutBuild)
}

func TestShaderStages(t *testing.T) {
	require.Equal(t, core1_0.StageVertex|core1_0.StageFragment, vulkan.ShaderStages(reflection.StageVertex|reflection.StageFragment))
	require.Equal(t, core1_0.StageTessellationControl|core1_0.StageTessellationEvaluation, vulkan.ShaderStages(reflection.StageControl|reflection.StageEvaluate))
	require.Equal(t, core1_0.ShaderStageFlags(0xc0), vulkan.ShaderStages(reflection.StageMesh|reflection.StageTask))

	_, err := vulkan.DescriptorType(reflection.ClassPush)
	require.Error(t, err)
}
