package dx12

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gapi/descriptors"
	"github.com/vkngwrapper/gapi/layout"
	"golang.org/x/exp/slog"
)

//go:generate mockgen -destination mocks/mock_device.go -package mocks . Device

// MaxRootCost is the number of DWORDs a root signature may occupy
const MaxRootCost = 64

// RootSignatureDesc is the input of root signature serialization
type RootSignatureDesc struct {
	Parameters []layout.RootParameter
}

// RootSignature is a compiled native root signature
type RootSignature interface {
	Release()
}

// Device is the vendor primitive that serializes and creates root signatures
type Device interface {
	// SerializeRootSignature returns the serialized blob, or the serializer's diagnostic text with
	// the error
	SerializeRootSignature(desc RootSignatureDesc) ([]byte, string, error)
	CreateRootSignature(blob []byte) (RootSignature, error)
}

// RootCost returns the number of DWORDs parameters occupy in a root signature. A descriptor table
// costs one; inline constants cost one per value.
func RootCost(parameters []layout.RootParameter) int {
	cost := 0
	for _, parameter := range parameters {
		if parameter.Type == layout.ParameterConstants {
			cost += int(parameter.Num32BitValues)
		} else {
			cost++
		}
	}
	return cost
}

// Compiler compiles pipeline layouts into root signatures
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
	cost := RootCost(l.Parameters)
	if cost > MaxRootCost {
		return nil, errors.Newf("root signature needs %d DWORDs, the limit is %d", cost, MaxRootCost)
	}

	blob, diagnostic, err := c.device.SerializeRootSignature(RootSignatureDesc{Parameters: l.Parameters})
	if err != nil {
		if diagnostic != "" {
			c.logger.LogAttrs(context.Background(), slog.LevelError, diagnostic)
		}
		return nil, errors.Wrap(err, "serializing root signature")
	}

	signature, err := c.device.CreateRootSignature(blob)
	if err != nil {
		return nil, errors.Wrap(err, "creating root signature")
	}
	return signature, nil
}

// LayoutOptions scales layout heap offsets by the device's descriptor increments
func LayoutOptions(device descriptors.Device, pushConstantRegister, baseVertexInstanceRegister uint32) layout.Options {
	return layout.Options{
		ResourceIncrement:          device.DescriptorIncrementSize(descriptors.HeapTypeResource),
		SamplerIncrement:           device.DescriptorIncrementSize(descriptors.HeapTypeSampler),
		PushConstantRegister:       pushConstantRegister,
		BaseVertexInstanceRegister: baseVertexInstanceRegister,
	}
}
