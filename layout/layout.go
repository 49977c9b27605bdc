package layout

import (
	"math"

	"github.com/vkngwrapper/gapi/reflection"
)

// RangeType is the kind of descriptor a table range holds. Ranges sort in declaration order.
type RangeType uint8

const (
	RangeCBV RangeType = iota
	RangeSRV
	RangeSampler
	RangeUAV
)

var rangeTypeNames = map[RangeType]string{
	RangeCBV:     "CBV",
	RangeSRV:     "SRV",
	RangeSampler: "SAMPLER",
	RangeUAV:     "UAV",
}

func (t RangeType) String() string {
	return rangeTypeNames[t]
}

// Visibility is the shader stage a root parameter is visible to
type Visibility uint8

const (
	VisibilityAll Visibility = iota
	VisibilityVertex
	VisibilityHull
	VisibilityDomain
	VisibilityGeometry
	VisibilityPixel
	VisibilityAmplification
	VisibilityMesh
)

var visibilityNames = map[Visibility]string{
	VisibilityAll:           "ALL",
	VisibilityVertex:        "VERTEX",
	VisibilityHull:          "HULL",
	VisibilityDomain:        "DOMAIN",
	VisibilityGeometry:      "GEOMETRY",
	VisibilityPixel:         "PIXEL",
	VisibilityAmplification: "AMPLIFICATION",
	VisibilityMesh:          "MESH",
}

func (v Visibility) String() string {
	return visibilityNames[v]
}

// VisibilityOf maps a stage set to the visibility of a root parameter. Anything other than a single
// graphics stage is visible to all stages.
func VisibilityOf(stage reflection.Stage) Visibility {
	switch stage {
	case reflection.StageVertex:
		return VisibilityVertex
	case reflection.StageControl:
		return VisibilityHull
	case reflection.StageEvaluate:
		return VisibilityDomain
	case reflection.StageGeometry:
		return VisibilityGeometry
	case reflection.StageFragment:
		return VisibilityPixel
	case reflection.StageMesh:
		return VisibilityMesh
	case reflection.StageTask:
		return VisibilityAmplification
	}
	return VisibilityAll
}

const (
	HeapResource = 0
	HeapSampler  = 1
	heapCount    = 2
)

// Unbounded is the descriptor count of a runtime-sized range
const Unbounded = math.MaxUint32

type DescriptorRange struct {
	Type           RangeType
	NumDescriptors uint32
	BaseRegister   uint32
	RegisterSpace  uint32
}

type ParameterType uint8

const (
	ParameterTable ParameterType = iota
	ParameterConstants
)

// RootParameter is either a descriptor table over consecutive ranges or a block of inline 32-bit
// constants
type RootParameter struct {
	Type       ParameterType
	Visibility Visibility

	Ranges []DescriptorRange

	ShaderRegister uint32
	RegisterSpace  uint32
	Num32BitValues uint32
}

// RootTable records where the descriptors of a table parameter live. Binding is the layout slot of a
// runtime-sized table, or -1.
type RootTable struct {
	Heap       int
	HeapOffset int
	Binding    int
}

// Param is the heap placement of one layout slot
type Param struct {
	HeapOffset    int
	HeapOffsetSmp int
	RangeType     RangeType
}

// Heap is the number of fixed descriptors a layout places in one heap
type Heap struct {
	NumDesc int
}

// Layout is a binding table flattened into root parameters and heap offsets
type Layout struct {
	// Bindings is the merged binding list, indexed by layout slot
	Bindings []reflection.Binding
	Push     reflection.PushBlock

	Parameters []RootParameter
	// Roots has one entry per table parameter, in parameter order
	Roots  []RootTable
	Params []Param
	Heaps  [heapCount]Heap

	// PushConstantID and BaseInstanceID index Parameters, or are -1
	PushConstantID int
	BaseInstanceID int

	// Native is the compiled backend object
	Native any

	runtimeSized bool
	hash         uint64
}

func (l *Layout) DescriptorsCount() int { return len(l.Bindings) }
func (l *Layout) IsRuntimeSized() bool  { return l.runtimeSized }
func (l *Layout) Hash() uint64          { return l.hash }

// SizeOfBuffer returns the size of a buffer bound at slot layoutBind holding arrayLen elements of its
// runtime-sized tail
func (l *Layout) SizeOfBuffer(layoutBind int, arrayLen int) int {
	return reflection.SizeOfBuffer(l.Bindings[layoutBind], arrayLen)
}
