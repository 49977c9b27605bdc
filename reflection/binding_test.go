package reflection_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gapi/reflection"
)

func TestStageString(t *testing.T) {
	require.Equal(t, "None", reflection.StageNone.String())
	require.Equal(t, "Vertex|Fragment", (reflection.StageVertex | reflection.StageFragment).String())

	require.True(t, reflection.StageCompute.Single())
	require.False(t, (reflection.StageVertex | reflection.StageFragment).Single())
	require.False(t, reflection.StageNone.Single())
}

func TestMergeUnionsStages(t *testing.T) {
	vertex := []reflection.Binding{
		{Layout: 0, Stage: reflection.StageVertex, Class: reflection.ClassUBO, ArraySize: 1, ByteSize: 64},
	}
	fragment := []reflection.Binding{
		{Layout: 0, Stage: reflection.StageFragment, Class: reflection.ClassUBO, ArraySize: 1, ByteSize: 80},
		{Layout: 1, Stage: reflection.StageFragment, Class: reflection.ClassTexture, ArraySize: 1},
	}

	merged, push, err := reflection.Merge(vertex, fragment)
	require.NoError(t, err)
	require.Equal(t, reflection.PushBlock{}, push)
	require.Equal(t, []reflection.Binding{
		{Layout: 0, Stage: reflection.StageVertex | reflection.StageFragment, Class: reflection.ClassUBO, ArraySize: 1, ByteSize: 80},
		{Layout: 1, Stage: reflection.StageFragment, Class: reflection.ClassTexture, ArraySize: 1},
	}, merged)
}

func TestMergeIsOrderIndependent(t *testing.T) {
	vertex := []reflection.Binding{
		{Layout: 2, Stage: reflection.StageVertex, Class: reflection.ClassSsboR, ArraySize: 1, ByteSize: 16, VarByteSize: 32},
		{Stage: reflection.StageVertex, Class: reflection.ClassPush, ByteSize: 8},
	}
	fragment := []reflection.Binding{
		{Layout: 0, Stage: reflection.StageFragment, Class: reflection.ClassSampler, ArraySize: 1},
		{Layout: 2, Stage: reflection.StageFragment, Class: reflection.ClassSsboR, ArraySize: 1, ByteSize: 16},
		{Stage: reflection.StageFragment, Class: reflection.ClassPush, ByteSize: 16},
	}

	first, firstPush, err := reflection.Merge(vertex, fragment)
	require.NoError(t, err)
	second, secondPush, err := reflection.Merge(fragment, vertex)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, firstPush, secondPush)
	require.Equal(t, reflection.PushBlock{Stage: reflection.StageVertex | reflection.StageFragment, Size: 16}, firstPush)
}

func TestMergeLeavesGapsUnused(t *testing.T) {
	merged, _, err := reflection.Merge([]reflection.Binding{
		{Layout: 3, Stage: reflection.StageCompute, Class: reflection.ClassImgRW, ArraySize: 1},
	})
	require.NoError(t, err)
	require.Len(t, merged, 4)

	for i := 0; i < 3; i++ {
		require.False(t, merged[i].IsUsed())
		require.Equal(t, uint32(i), merged[i].Layout)
	}
	require.True(t, merged[3].IsUsed())
}

func TestMergeRejectsClassConflict(t *testing.T) {
	_, _, err := reflection.Merge(
		[]reflection.Binding{{Layout: 0, Stage: reflection.StageVertex, Class: reflection.ClassUBO}},
		[]reflection.Binding{{Layout: 0, Stage: reflection.StageFragment, Class: reflection.ClassSsboR}},
	)
	require.True(t, errors.Is(err, reflection.ErrBindingConflict))
}

func TestMergeRejectsHugeLayout(t *testing.T) {
	_, _, err := reflection.Merge(
		[]reflection.Binding{{Layout: 1, Stage: reflection.StageCompute, Class: reflection.ClassUBO}},
		[]reflection.Binding{{Layout: 1<<32 - 1, Stage: reflection.StageCompute, Class: reflection.ClassSsboR}},
	)
	require.Error(t, err)

	merged, _, err := reflection.Merge([]reflection.Binding{
		{Layout: reflection.MaxLayout - 1, Stage: reflection.StageCompute, Class: reflection.ClassSampler},
	})
	require.NoError(t, err)
	require.Len(t, merged, reflection.MaxLayout)
}

func TestMergeKeepsRuntimeSized(t *testing.T) {
	merged, _, err := reflection.Merge(
		[]reflection.Binding{{Layout: 0, Stage: reflection.StageVertex, Class: reflection.ClassImage, ArraySize: 1}},
		[]reflection.Binding{{Layout: 0, Stage: reflection.StageFragment, Class: reflection.ClassImage, RuntimeSized: true}},
	)
	require.NoError(t, err)
	require.True(t, merged[0].RuntimeSized)
	require.Equal(t, uint32(1), merged[0].ArraySize)
}

func TestSizeOfBuffer(t *testing.T) {
	binding := reflection.Binding{Class: reflection.ClassSsboRW, ByteSize: 16, VarByteSize: 12}

	require.Equal(t, 16, reflection.SizeOfBuffer(binding, 0))
	require.Equal(t, 16+12*10, reflection.SizeOfBuffer(binding, 10))
}
