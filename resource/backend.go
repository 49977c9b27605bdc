package resource

import "github.com/vkngwrapper/gapi/devmem"

// MemoryClass is the allocator key a backend chooses for a resource
type MemoryClass struct {
	HeapID      uint32
	TypeID      uint32
	HostVisible bool
}

type BufferDesc struct {
	Size  int
	Usage Usage
	Heap  BufferHeap
}

type TextureDesc struct {
	Width  uint32
	Height uint32
	// Depth is the number of slices of a volume texture, or 0
	Depth  uint32
	Mips   uint32
	Format TextureFormat

	Storage    bool
	Attachment bool
}

// Backend creates native buffers and textures on memory placed by the device allocator
type Backend[M comparable] interface {
	BufferMemory(desc BufferDesc) (devmem.Requirements, MemoryClass, error)
	TextureMemory(desc TextureDesc) (devmem.Requirements, MemoryClass, error)

	CreateBuffer(desc BufferDesc, memory devmem.Allocation[M]) (any, error)
	CreateTexture(desc TextureDesc, memory devmem.Allocation[M]) (any, error)
	DestroyNative(native any)

	// Map returns the host view of a host-visible allocation
	Map(memory devmem.Allocation[M]) ([]byte, error)
	Unmap(memory devmem.Allocation[M])
}

// Commands records transfer work. A held resource stays alive until the recorded work completes.
type Commands[M comparable] interface {
	Begin() error
	End() error

	Copy(dst *Texture[M], width, height, mip uint32, src *Buffer[M], srcOffset int)
	CopyBuffer(dst *Buffer[M], dstOffset int, src *Buffer[M], srcOffset int, size int)
	CopyToBuffer(dst *Buffer[M], dstOffset int, src *Texture[M], width, height, mip uint32)
	Barrier(tex *Texture[M], from, to Access, mip uint32)
	FillBuffer(dst *Buffer[M], value uint32, offset, size int)
	Fill(tex *Texture[M], value uint32)
	GenerateMipmap(tex *Texture[M], width, height, mips uint32)

	Hold(resource Resource)
}

// Queue hands out command recorders and submits them
type Queue[M comparable] interface {
	Commands() (Commands[M], error)
	Submit(cmd Commands[M]) error
	// SubmitAndWait blocks until the GPU has finished cmd. It has no timeout.
	SubmitAndWait(cmd Commands[M]) error
}
