package reflection

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Stage is a set of shader stages
type Stage uint32

const (
	StageVertex Stage = 1 << iota
	StageControl
	StageEvaluate
	StageGeometry
	StageFragment
	StageCompute
	StageMesh
	StageTask

	StageNone Stage = 0
)

var stageNames = []struct {
	stage Stage
	name  string
}{
	{StageVertex, "Vertex"},
	{StageControl, "Control"},
	{StageEvaluate, "Evaluate"},
	{StageGeometry, "Geometry"},
	{StageFragment, "Fragment"},
	{StageCompute, "Compute"},
	{StageMesh, "Mesh"},
	{StageTask, "Task"},
}

func (s Stage) String() string {
	if s == StageNone {
		return "None"
	}

	var names []string
	for _, entry := range stageNames {
		if s&entry.stage != 0 {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, "|")
}

// Single reports whether exactly one stage is set
func (s Stage) Single() bool {
	return s != 0 && s&(s-1) == 0
}

// Class is the kind of resource a binding refers to
type Class uint8

const (
	ClassUBO Class = iota
	// ClassTexture is a combined image and sampler
	ClassTexture
	// ClassImage is a sampled image without a sampler
	ClassImage
	ClassSampler
	ClassSsboR
	ClassSsboRW
	ClassImgR
	ClassImgRW
	ClassTlas
	ClassPush
)

var classNames = map[Class]string{
	ClassUBO:     "UBO",
	ClassTexture: "Texture",
	ClassImage:   "Image",
	ClassSampler: "Sampler",
	ClassSsboR:   "SsboR",
	ClassSsboRW:  "SsboRW",
	ClassImgR:    "ImgR",
	ClassImgRW:   "ImgRW",
	ClassTlas:    "Tlas",
	ClassPush:    "Push",
}

func (c Class) String() string {
	return classNames[c]
}

// Binding is one resource slot a shader reads or writes
type Binding struct {
	// Layout is the binding slot / register index
	Layout uint32
	// Stage is every stage that touches the slot. An empty set marks an unused slot.
	Stage Stage
	Class Class
	// ArraySize is the number of descriptors bound at the slot
	ArraySize uint32
	// RuntimeSized marks a descriptor array whose length is only known at bind time
	RuntimeSized bool
	// ByteSize is the fixed part of a buffer binding
	ByteSize int
	// VarByteSize is the stride of a trailing runtime-sized array in a buffer binding
	VarByteSize int
}

// IsUsed reports whether any stage touches the slot
func (b Binding) IsUsed() bool {
	return b.Stage != StageNone
}

// PushBlock is the merged push constant block of a pipeline
type PushBlock struct {
	Stage Stage
	Size  int
}

// MaxLayout bounds binding slots. Merged lists are dense, so a layout at or past it is rejected.
const MaxLayout = 1 << 16

// ErrBindingConflict is returned by Merge when two stages declare different classes at one slot
var ErrBindingConflict = errors.New("binding class conflict")

// Merge folds per-stage binding lists into one list indexed by Layout. Bindings with the same layout
// become one binding used by the union of their stages, with the largest sizes any stage declared.
// Slots no stage declares are left as unused bindings. Push constant entries are folded into the
// returned PushBlock instead. The result does not depend on the order of lists.
func Merge(lists ...[]Binding) ([]Binding, PushBlock, error) {
	var merged []Binding
	var filled []bool
	var push PushBlock

	for _, list := range lists {
		for _, binding := range list {
			if binding.Class == ClassPush {
				push.Stage |= binding.Stage
				push.Size = max(push.Size, binding.ByteSize)
				continue
			}

			if binding.Layout >= MaxLayout {
				return nil, PushBlock{}, errors.Newf("layout %d in %s is past the last supported slot %d",
					binding.Layout, binding.Stage, MaxLayout-1)
			}

			for uint32(len(merged)) <= binding.Layout {
				merged = append(merged, Binding{Layout: uint32(len(merged))})
				filled = append(filled, false)
			}

			slot := &merged[binding.Layout]
			if !filled[binding.Layout] {
				*slot = binding
				if slot.ArraySize == 0 {
					slot.ArraySize = 1
				}
				filled[binding.Layout] = true
				continue
			}

			if slot.Class != binding.Class {
				return nil, PushBlock{}, errors.Wrapf(ErrBindingConflict, "layout %d is %s in %s but %s in %s",
					binding.Layout, slot.Class, slot.Stage, binding.Class, binding.Stage)
			}

			slot.Stage |= binding.Stage
			slot.ArraySize = max(slot.ArraySize, binding.ArraySize)
			slot.RuntimeSized = slot.RuntimeSized || binding.RuntimeSized
			slot.ByteSize = max(slot.ByteSize, binding.ByteSize)
			slot.VarByteSize = max(slot.VarByteSize, binding.VarByteSize)
		}
	}

	return merged, push, nil
}

// SizeOfBuffer returns the number of bytes a buffer bound at b needs to hold arrayLen elements of its
// trailing runtime-sized array
func SizeOfBuffer(b Binding, arrayLen int) int {
	return b.ByteSize + b.VarByteSize*arrayLen
}
