package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gapi"
	"github.com/vkngwrapper/gapi/layout"
	"github.com/vkngwrapper/gapi/reflection"
	"golang.org/x/exp/slog"
)

// inspect reflects every shader in paths, builds one layout over all of their entry points and
// returns it as JSON
func inspect(logger *slog.Logger, cfg gapi.Config, baseVertex bool, paths []string, sources map[string]string) ([]byte, error) {
	writer := jwriter.NewWriter()
	obj := writer.Object()

	var stages [][]reflection.Binding
	shaders := obj.Name("Shaders").Array()
	for _, path := range paths {
		entryPoints, err := reflection.ReflectWGSL(sources[path])
		if err != nil {
			return nil, errors.Wrapf(err, "reflecting %s", path)
		}

		shader := shaders.Object()
		shader.Name("Path").String(path)
		entries := shader.Name("EntryPoints").Array()
		for _, entryPoint := range entryPoints {
			entry := entries.Object()
			entry.Name("Name").String(entryPoint.Name)
			entry.Name("Stage").String(entryPoint.Stage.String())
			entry.End()

			stages = append(stages, entryPoint.Bindings)
		}
		entries.End()
		shader.End()
	}
	shaders.End()

	builder := layout.NewBuilder(logger, nil, layout.Options{
		PushConstantRegister:       uint32(cfg.PushConstantRegister),
		BaseVertexInstanceRegister: uint32(cfg.BaseVertexInstanceRegister),
	})
	l, err := builder.Build(layout.BuildOptions{BaseVertexInstance: baseVertex}, stages...)
	if err != nil {
		return nil, err
	}

	writeLayout(obj.Name("Layout"), l)
	obj.End()

	return writer.Bytes(), writer.Error()
}

func writeLayout(writer *jwriter.Writer, l *layout.Layout) {
	obj := writer.Object()
	defer obj.End()

	obj.Name("Hash").String(fmt.Sprintf("%016x", l.Hash()))
	obj.Name("DescriptorsCount").Int(l.DescriptorsCount())
	obj.Name("RuntimeSized").Bool(l.IsRuntimeSized())

	bindings := obj.Name("Bindings").Array()
	for i, binding := range l.Bindings {
		bindingObj := bindings.Object()
		bindingObj.Name("Layout").Int(int(binding.Layout))
		bindingObj.Name("Used").Bool(binding.IsUsed())
		if binding.IsUsed() {
			bindingObj.Name("Stage").String(binding.Stage.String())
			bindingObj.Name("Class").String(binding.Class.String())
			bindingObj.Name("ArraySize").Int(int(binding.ArraySize))
			bindingObj.Name("RuntimeSized").Bool(binding.RuntimeSized)
			if binding.ByteSize > 0 || binding.VarByteSize > 0 {
				bindingObj.Name("ByteSize").String(humanize.IBytes(uint64(binding.ByteSize)))
				bindingObj.Name("VarByteSize").Int(binding.VarByteSize)
			}
			param := l.Params[i]
			bindingObj.Name("RangeType").String(param.RangeType.String())
			bindingObj.Name("HeapOffset").Int(param.HeapOffset)
			if binding.Class == reflection.ClassTexture {
				bindingObj.Name("HeapOffsetSampler").Int(param.HeapOffsetSmp)
			}
		}
		bindingObj.End()
	}
	bindings.End()

	push := obj.Name("Push").Object()
	push.Name("Stage").String(l.Push.Stage.String())
	push.Name("Size").Int(l.Push.Size)
	push.End()

	parameters := obj.Name("Parameters").Array()
	for _, parameter := range l.Parameters {
		paramObj := parameters.Object()
		paramObj.Name("Visibility").String(parameter.Visibility.String())
		if parameter.Type == layout.ParameterConstants {
			paramObj.Name("Type").String("CONSTANTS")
			paramObj.Name("ShaderRegister").Int(int(parameter.ShaderRegister))
			paramObj.Name("Num32BitValues").Int(int(parameter.Num32BitValues))
			paramObj.End()
			continue
		}

		paramObj.Name("Type").String("TABLE")
		ranges := paramObj.Name("Ranges").Array()
		for _, descriptorRange := range parameter.Ranges {
			rangeObj := ranges.Object()
			rangeObj.Name("Type").String(descriptorRange.Type.String())
			if descriptorRange.NumDescriptors == layout.Unbounded {
				rangeObj.Name("NumDescriptors").String("UNBOUNDED")
			} else {
				rangeObj.Name("NumDescriptors").Int(int(descriptorRange.NumDescriptors))
			}
			rangeObj.Name("BaseRegister").Int(int(descriptorRange.BaseRegister))
			rangeObj.Name("RegisterSpace").Int(int(descriptorRange.RegisterSpace))
			rangeObj.End()
		}
		ranges.End()
		paramObj.End()
	}
	parameters.End()

	roots := obj.Name("Roots").Array()
	for _, root := range l.Roots {
		rootObj := roots.Object()
		if root.Heap == layout.HeapSampler {
			rootObj.Name("Heap").String("SAMPLER")
		} else {
			rootObj.Name("Heap").String("RESOURCE")
		}
		rootObj.Name("HeapOffset").Int(root.HeapOffset)
		rootObj.Name("Binding").Int(root.Binding)
		rootObj.End()
	}
	roots.End()

	heaps := obj.Name("Heaps").Object()
	heaps.Name("Resource").Int(l.Heaps[layout.HeapResource].NumDesc)
	heaps.Name("Sampler").Int(l.Heaps[layout.HeapSampler].NumDesc)
	heaps.End()

	obj.Name("PushConstantID").Int(l.PushConstantID)
	obj.Name("BaseInstanceID").Int(l.BaseInstanceID)
}
