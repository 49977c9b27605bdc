package resource

import "github.com/vkngwrapper/core/v2/common"

// Usage describes how a buffer will be used
type Usage uint32

var usageMapping = common.NewFlagStringMapping[Usage]()

func (u Usage) Register(str string) {
	usageMapping.Register(u, str)
}
func (u Usage) String() string {
	return usageMapping.FlagsToString(u)
}

const (
	UsageTransferSrc Usage = 1 << iota
	UsageTransferDst
	UsageUniform
	UsageIndex
	UsageVertex
	UsageStorage
	UsageIndirect
	// UsageInitialized requests zero-filled contents when a buffer is created without data
	UsageInitialized
)

func init() {
	UsageTransferSrc.Register("TransferSrc")
	UsageTransferDst.Register("TransferDst")
	UsageUniform.Register("Uniform")
	UsageIndex.Register("Index")
	UsageVertex.Register("Vertex")
	UsageStorage.Register("Storage")
	UsageIndirect.Register("Indirect")
	UsageInitialized.Register("Initialized")
}

// BufferHeap selects the memory class a buffer lives in
type BufferHeap uint8

const (
	// HeapDevice is device-local memory, written through staging copies
	HeapDevice BufferHeap = iota
	// HeapUpload is host-visible memory the CPU writes and the GPU reads
	HeapUpload
	// HeapReadback is host-visible memory the GPU writes and the CPU reads
	HeapReadback
)

var bufferHeapNames = map[BufferHeap]string{
	HeapDevice:   "Device",
	HeapUpload:   "Upload",
	HeapReadback: "Readback",
}

func (h BufferHeap) String() string {
	return bufferHeapNames[h]
}

// Access is the way the GPU accesses a texture between barriers
type Access uint32

var accessMapping = common.NewFlagStringMapping[Access]()

func (a Access) Register(str string) {
	accessMapping.Register(a, str)
}
func (a Access) String() string {
	return accessMapping.FlagsToString(a)
}

const (
	AccessTransferSrc Access = 1 << iota
	AccessTransferDst
	AccessSampler
	AccessUavReadGraphics
	AccessUavReadCompute
	AccessDepthReadOnly
	AccessColorAttachment

	AccessNone Access = 0
)

func init() {
	AccessTransferSrc.Register("TransferSrc")
	AccessTransferDst.Register("TransferDst")
	AccessSampler.Register("Sampler")
	AccessUavReadGraphics.Register("UavReadGraphics")
	AccessUavReadCompute.Register("UavReadCompute")
	AccessDepthReadOnly.Register("DepthReadOnly")
	AccessColorAttachment.Register("ColorAttachment")
}

// AllMips addresses every mip level of a texture in a barrier
const AllMips = ^uint32(0)
