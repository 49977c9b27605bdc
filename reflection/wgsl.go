package reflection

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/wgsl"
)

// EntryPoint is the reflected binding list of one shader entry point
type EntryPoint struct {
	Name     string
	Stage    Stage
	Bindings []Binding
}

// ReflectWGSL parses WGSL source and returns one binding list per entry point. Every module-scope
// resource is attributed to every entry point of the module. Only bind group 0 is supported, since
// a pipeline layout is a single binding table. The module is only lowered when a buffer binding
// needs its size computed.
func ReflectWGSL(source string) ([]EntryPoint, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, errors.Wrap(err, "parsing wgsl")
	}

	r := &wgslReflector{ast: ast}

	var bindings []Binding
	for _, global := range ast.GlobalVars {
		binding, ok, err := r.reflectGlobal(global)
		if err != nil {
			return nil, errors.Wrapf(err, "reflecting %s", global.Name)
		}
		if ok {
			bindings = append(bindings, binding)
		}
	}

	var entryPoints []EntryPoint
	for _, function := range ast.Functions {
		stage := entryStage(function.Attributes)
		if stage == StageNone {
			continue
		}

		staged := make([]Binding, len(bindings))
		for i, binding := range bindings {
			binding.Stage = stage
			staged[i] = binding
		}

		entryPoints = append(entryPoints, EntryPoint{
			Name:     function.Name,
			Stage:    stage,
			Bindings: staged,
		})
	}

	if len(entryPoints) == 0 {
		return nil, errors.New("wgsl module has no entry points")
	}
	return entryPoints, nil
}

// ReflectWGSLMerged reflects source and merges all of its entry points into one layout
func ReflectWGSLMerged(source string) ([]Binding, PushBlock, error) {
	entryPoints, err := ReflectWGSL(source)
	if err != nil {
		return nil, PushBlock{}, err
	}

	lists := make([][]Binding, len(entryPoints))
	for i, entry := range entryPoints {
		lists[i] = entry.Bindings
	}
	return Merge(lists...)
}

func entryStage(attributes []wgsl.Attribute) Stage {
	for _, attribute := range attributes {
		switch attribute.Name {
		case "vertex":
			return StageVertex
		case "fragment":
			return StageFragment
		case "compute":
			return StageCompute
		}
	}
	return StageNone
}

type wgslReflector struct {
	ast    *wgsl.Module
	module *ir.Module
}

func (r *wgslReflector) lowered() (*ir.Module, error) {
	if r.module != nil {
		return r.module, nil
	}

	module, err := naga.Lower(r.ast)
	if err != nil {
		return nil, errors.Wrap(err, "lowering wgsl")
	}
	r.module = module
	return module, nil
}

func (r *wgslReflector) reflectGlobal(global *wgsl.VarDecl) (Binding, bool, error) {
	if global.AddressSpace == "push_constant" {
		size, _, err := r.globalByteSize(global.Name)
		if err != nil {
			return Binding{}, false, err
		}
		return Binding{Class: ClassPush, ByteSize: size}, true, nil
	}

	group, hasGroup, err := intAttribute(global.Attributes, "group")
	if err != nil {
		return Binding{}, false, err
	}
	layout, hasBinding, err := intAttribute(global.Attributes, "binding")
	if err != nil {
		return Binding{}, false, err
	}
	if !hasGroup || !hasBinding {
		// private and workgroup variables are not resources
		return Binding{}, false, nil
	}
	if group != 0 {
		return Binding{}, false, errors.Newf("bind group %d is not supported, only group 0", group)
	}
	if layout < 0 || layout >= MaxLayout {
		return Binding{}, false, errors.Newf("@binding(%d) is out of range", layout)
	}

	binding := Binding{
		Layout:    uint32(layout),
		ArraySize: 1,
	}

	switch global.AddressSpace {
	case "uniform":
		binding.Class = ClassUBO
	case "storage":
		binding.Class = ClassSsboR
		if global.AccessMode == "read_write" || global.AccessMode == "write" {
			binding.Class = ClassSsboRW
		}
	case "", "handle":
		elementType, arraySize, runtimeSized, err := bindingArray(global.Type)
		if err != nil {
			return Binding{}, false, err
		}

		class, err := handleClass(elementType)
		if err != nil {
			return Binding{}, false, err
		}
		binding.Class = class
		binding.ArraySize = arraySize
		binding.RuntimeSized = runtimeSized
		return binding, true, nil
	default:
		return Binding{}, false, errors.Newf("unsupported address space %q on a bound variable", global.AddressSpace)
	}

	size, varSize, err := r.globalByteSize(global.Name)
	if err != nil {
		return Binding{}, false, err
	}
	binding.ByteSize = size
	binding.VarByteSize = varSize
	return binding, true, nil
}

// bindingArray unwraps binding_array<T> and binding_array<T, N>. Types that are not binding arrays are
// returned as a single descriptor.
func bindingArray(typ wgsl.Type) (wgsl.Type, uint32, bool, error) {
	switch array := typ.(type) {
	case *wgsl.BindingArrayType:
		if array.Size == nil {
			return array.Element, 0, true, nil
		}
		size, err := intLiteral(array.Size)
		if err != nil {
			return nil, 0, false, errors.Wrap(err, "binding array size")
		}
		return array.Element, uint32(size), false, nil
	case *wgsl.NamedType:
		if array.Name != "binding_array" {
			return typ, 1, false, nil
		}
		if len(array.TypeParams) != 1 {
			return nil, 0, false, errors.New("sized binding arrays are not supported")
		}
		return array.TypeParams[0], 0, true, nil
	}
	return typ, 1, false, nil
}

func handleClass(typ wgsl.Type) (Class, error) {
	named, ok := typ.(*wgsl.NamedType)
	if !ok {
		return 0, errors.Newf("unsupported resource type %T", typ)
	}

	switch {
	case named.Name == "sampler" || named.Name == "sampler_comparison":
		return ClassSampler, nil
	case named.Name == "acceleration_structure":
		return ClassTlas, nil
	case strings.HasPrefix(named.Name, "texture_storage_"):
		if len(named.TypeParams) > 1 {
			if access, ok := named.TypeParams[1].(*wgsl.NamedType); ok && access.Name == "read" {
				return ClassImgR, nil
			}
		}
		return ClassImgRW, nil
	case strings.HasPrefix(named.Name, "texture_"):
		return ClassImage, nil
	}

	return 0, errors.Newf("unsupported resource type %s", named.Name)
}

func intAttribute(attributes []wgsl.Attribute, name string) (int, bool, error) {
	for _, attribute := range attributes {
		if attribute.Name != name {
			continue
		}
		if len(attribute.Args) != 1 {
			return 0, true, errors.Newf("@%s expects one argument", name)
		}
		value, err := intLiteral(attribute.Args[0])
		return value, true, err
	}
	return 0, false, nil
}

func intLiteral(expr wgsl.Expr) (int, error) {
	literal, ok := expr.(*wgsl.Literal)
	if !ok {
		return 0, errors.Newf("expected an integer literal, got %T", expr)
	}

	value, err := strconv.Atoi(strings.TrimRight(literal.Value, "iu"))
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %q", literal.Value)
	}
	return value, nil
}

func (r *wgslReflector) globalByteSize(name string) (int, int, error) {
	module, err := r.lowered()
	if err != nil {
		return 0, 0, err
	}

	for _, global := range module.GlobalVariables {
		if global.Name == name {
			return typeByteSize(module, global.Type)
		}
	}
	return 0, 0, errors.Newf("global %s missing from lowered module", name)
}

// typeByteSize returns the fixed size of a type and the stride of its trailing runtime-sized array,
// if it has one
func typeByteSize(module *ir.Module, handle ir.TypeHandle) (int, int, error) {
	if int(handle) >= len(module.Types) {
		return 0, 0, errors.Newf("type handle %d out of range", handle)
	}

	switch inner := module.Types[handle].Inner.(type) {
	case ir.ScalarType:
		return int(inner.Width), 0, nil
	case ir.VectorType:
		return int(inner.Size) * int(inner.Scalar.Width), 0, nil
	case ir.MatrixType:
		rows := int(inner.Rows)
		if rows == 3 {
			rows = 4
		}
		return int(inner.Columns) * rows * int(inner.Scalar.Width), 0, nil
	case ir.ArrayType:
		if inner.Size.Constant == nil {
			return 0, int(inner.Stride), nil
		}
		return int(*inner.Size.Constant) * int(inner.Stride), 0, nil
	case ir.StructType:
		if len(inner.Members) == 0 {
			return int(inner.Span), 0, nil
		}

		last := inner.Members[len(inner.Members)-1]
		_, varSize, err := typeByteSize(module, last.Type)
		if err != nil {
			return 0, 0, err
		}
		if varSize > 0 {
			return int(last.Offset), varSize, nil
		}
		return int(inner.Span), 0, nil
	}

	return 0, 0, errors.Newf("type %s has no host-shareable size", module.Types[handle].Name)
}
