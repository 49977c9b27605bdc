package gapi

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// softwareRendererName is the name that the DXGI warp adapter reports when the software flag is missing
const softwareRendererName = "Microsoft Basic Render Driver"

// AdapterType roughly classifies a physical adapter
type AdapterType int

const (
	AdapterTypeOther AdapterType = iota
	AdapterTypeIntegrated
	AdapterTypeDiscrete
	AdapterTypeVirtual
	AdapterTypeCPU
)

// AdapterProps describes one physical adapter enumerated by a backend
type AdapterProps struct {
	Name     string
	Type     AdapterType
	Software bool

	DedicatedMemory int
	SharedMemory    int
}

func (p AdapterProps) isSoftware() bool {
	return p.Software || p.Type == AdapterTypeCPU || p.Name == softwareRendererName
}

// SelectAdapter picks the adapter a device should be created on. Software adapters are never
// chosen. If name is empty, the first hardware adapter wins; otherwise the adapter must match
// name exactly. An error marked with ErrDeviceUnavailable is returned when nothing qualifies.
func SelectAdapter(adapters []AdapterProps, name string) (AdapterProps, error) {
	for _, adapter := range adapters {
		if adapter.isSoftware() {
			continue
		}
		if name != "" && adapter.Name != name {
			continue
		}
		return adapter, nil
	}

	if name != "" {
		return AdapterProps{}, DeviceUnavailable(errors.Newf("no hardware adapter named %q among %s", name, adapterNames(adapters)))
	}
	return AdapterProps{}, DeviceUnavailable(errors.Newf("no hardware adapter among %s", adapterNames(adapters)))
}

func adapterNames(adapters []AdapterProps) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name)
	}
	return "[" + strings.Join(names, ", ") + "]"
}
