package gapi

import (
	"flag"
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gapi/memutils"
	"github.com/vkngwrapper/gapi/memutils/metadata"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMemoryPageSize             = 64 * 1024 * 1024
	DefaultResourceDescriptorPageSize = 65535
	DefaultSamplerDescriptorPageSize  = 2048
	DefaultRowPitchAlignment          = 256
	DefaultMaxRuntimeDescriptors      = 4096

	// DefaultBaseVertexInstanceRegister and DefaultPushConstantRegister sit far above any register
	// a shader would declare by hand
	DefaultBaseVertexInstanceRegister = 1020
	DefaultPushConstantRegister       = 1021
)

// Config holds the tunables of a device and its allocators
type Config struct {
	// Adapter selects a physical adapter by name. Empty picks the first hardware adapter.
	Adapter string `yaml:"adapter"`

	MemoryPageSize             int    `yaml:"memory_page_size"`
	ResourceDescriptorPageSize int    `yaml:"resource_descriptor_page_size"`
	SamplerDescriptorPageSize  int    `yaml:"sampler_descriptor_page_size"`
	AllocationStrategy         string `yaml:"allocation_strategy"`

	RowPitchAlignment     int `yaml:"row_pitch_alignment"`
	MaxRuntimeDescriptors int `yaml:"max_runtime_descriptors"`

	PushConstantRegister       int `yaml:"push_constant_register"`
	BaseVertexInstanceRegister int `yaml:"base_vertex_instance_register"`
}

// RegisterFlags registers flags with no prefix
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("", f)
}

// RegisterFlagsWithPrefix registers flags with the given prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Adapter, prefix+"adapter", "", "Name of the physical adapter to create the device on. Empty selects the first hardware adapter.")
	f.IntVar(&cfg.MemoryPageSize, prefix+"memory.page-size", DefaultMemoryPageSize, "Default size in bytes of a device memory page. Larger requests get a dedicated page of exactly their size.")
	f.IntVar(&cfg.ResourceDescriptorPageSize, prefix+"descriptors.resource-page-size", DefaultResourceDescriptorPageSize, "Default number of slots in a resource descriptor heap page.")
	f.IntVar(&cfg.SamplerDescriptorPageSize, prefix+"descriptors.sampler-page-size", DefaultSamplerDescriptorPageSize, "Default number of slots in a sampler descriptor heap page.")
	f.StringVar(&cfg.AllocationStrategy, prefix+"memory.strategy", "best-fit", "Placement strategy for sub-allocations: best-fit or first-fit.")
	f.IntVar(&cfg.RowPitchAlignment, prefix+"upload.row-pitch-alignment", DefaultRowPitchAlignment, "Row pitch alignment in bytes of texture staging buffers. Must be a power of two.")
	f.IntVar(&cfg.MaxRuntimeDescriptors, prefix+"layout.max-runtime-descriptors", DefaultMaxRuntimeDescriptors, "Upper bound of variable-count descriptor bindings on backends that need one.")
	f.IntVar(&cfg.PushConstantRegister, prefix+"layout.push-constant-register", DefaultPushConstantRegister, "Shader register of the push constant root parameter.")
	f.IntVar(&cfg.BaseVertexInstanceRegister, prefix+"layout.base-vertex-register", DefaultBaseVertexInstanceRegister, "Shader register of the emulated base vertex / base instance root parameter.")
}

func (cfg *Config) Validate() error {
	if cfg.MemoryPageSize <= 0 {
		return errors.Newf("memory page size must be positive, got %d", cfg.MemoryPageSize)
	}
	if cfg.ResourceDescriptorPageSize <= 0 || cfg.SamplerDescriptorPageSize <= 0 {
		return errors.Newf("descriptor page sizes must be positive, got %d and %d", cfg.ResourceDescriptorPageSize, cfg.SamplerDescriptorPageSize)
	}
	if _, ok := metadata.ParseAllocationStrategy(cfg.AllocationStrategy); !ok {
		return errors.Newf("unknown allocation strategy %q", cfg.AllocationStrategy)
	}
	if err := memutils.CheckPow2(cfg.RowPitchAlignment, "row pitch alignment"); err != nil {
		return err
	}
	if cfg.MaxRuntimeDescriptors <= 0 {
		return errors.Newf("max runtime descriptors must be positive, got %d", cfg.MaxRuntimeDescriptors)
	}
	if cfg.PushConstantRegister < 0 || int64(cfg.PushConstantRegister) > math.MaxUint32 {
		return errors.Newf("push constant register must be a valid shader register, got %d", cfg.PushConstantRegister)
	}
	if cfg.BaseVertexInstanceRegister < 0 || int64(cfg.BaseVertexInstanceRegister) > math.MaxUint32 {
		return errors.Newf("base vertex register must be a valid shader register, got %d", cfg.BaseVertexInstanceRegister)
	}
	if cfg.PushConstantRegister == cfg.BaseVertexInstanceRegister {
		return errors.Newf("push constant and base vertex parameters share register %d", cfg.PushConstantRegister)
	}
	return nil
}

// Strategy returns the parsed allocation strategy. Validate must have succeeded.
func (cfg *Config) Strategy() metadata.AllocationStrategy {
	strategy, _ := metadata.ParseAllocationStrategy(cfg.AllocationStrategy)
	return strategy
}

// DefaultConfig returns a Config populated with every flag default
func DefaultConfig() Config {
	var cfg Config
	cfg.RegisterFlags(flag.NewFlagSet("defaults", flag.ContinueOnError))
	return cfg
}

// LoadConfig reads a YAML file over the flag defaults and validates the result
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}
