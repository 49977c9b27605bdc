package resource_test

import (
	"fmt"
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gapi/devmem"
	"github.com/vkngwrapper/gapi/resource"
	"golang.org/x/exp/slog"
)

type fakeMemory struct {
	typeID uint32
	data   []byte
}

type fakeHeaps struct {
	live int
}

func (h *fakeHeaps) CreateHeap(size int, typeID uint32) (*fakeMemory, error) {
	h.live++
	return &fakeMemory{typeID: typeID, data: make([]byte, size)}, nil
}

func (h *fakeHeaps) ReleaseHeap(heap *fakeMemory, size int, typeID uint32) {
	h.live--
}

type fakeBackend struct {
	created   int
	destroyed int
	fail      bool
	mapped    int
}

func (b *fakeBackend) BufferMemory(desc resource.BufferDesc) (devmem.Requirements, resource.MemoryClass, error) {
	requirements := devmem.Requirements{Size: desc.Size, Alignment: 256}
	switch desc.Heap {
	case resource.HeapUpload:
		return requirements, resource.MemoryClass{HeapID: 1, TypeID: 1, HostVisible: true}, nil
	case resource.HeapReadback:
		return requirements, resource.MemoryClass{HeapID: 1, TypeID: 2, HostVisible: true}, nil
	}
	return requirements, resource.MemoryClass{}, nil
}

func (b *fakeBackend) TextureMemory(desc resource.TextureDesc) (devmem.Requirements, resource.MemoryClass, error) {
	blocksW, blocksH := desc.Format.BlockCount(desc.Width, desc.Height)
	size := int(blocksW) * int(blocksH) * desc.Format.BytesPerBlock() * 2
	return devmem.Requirements{Size: size, Alignment: 4096}, resource.MemoryClass{TypeID: 3}, nil
}

func (b *fakeBackend) CreateBuffer(desc resource.BufferDesc, memory devmem.Allocation[*fakeMemory]) (any, error) {
	if b.fail {
		return nil, errors.New("E_OUTOFMEMORY")
	}
	b.created++
	return fmt.Sprintf("buffer-%d", b.created), nil
}

func (b *fakeBackend) CreateTexture(desc resource.TextureDesc, memory devmem.Allocation[*fakeMemory]) (any, error) {
	if b.fail {
		return nil, errors.New("E_OUTOFMEMORY")
	}
	b.created++
	return fmt.Sprintf("texture-%d", b.created), nil
}

func (b *fakeBackend) DestroyNative(native any) {
	b.destroyed++
}

func (b *fakeBackend) Map(memory devmem.Allocation[*fakeMemory]) ([]byte, error) {
	b.mapped++
	return memory.Heap().data[memory.Offset : memory.Offset+memory.Size], nil
}

func (b *fakeBackend) Unmap(memory devmem.Allocation[*fakeMemory]) {
	b.mapped--
}

type op struct {
	name   string
	width  uint32
	height uint32
	mip    uint32
	offset int
	from   resource.Access
	to     resource.Access
}

type fakeCommands struct {
	backend *fakeBackend
	ops     []op
	held    []resource.Resource
	begun   bool
	ended   bool
}

func (c *fakeCommands) Begin() error {
	c.begun = true
	return nil
}

func (c *fakeCommands) End() error {
	c.ended = true
	return nil
}

func (c *fakeCommands) Copy(dst *resource.Texture[*fakeMemory], width, height, mip uint32, src *resource.Buffer[*fakeMemory], srcOffset int) {
	c.ops = append(c.ops, op{name: "copy", width: width, height: height, mip: mip, offset: srcOffset})
}

func (c *fakeCommands) CopyBuffer(dst *resource.Buffer[*fakeMemory], dstOffset int, src *resource.Buffer[*fakeMemory], srcOffset int, size int) {
	c.ops = append(c.ops, op{name: "copyBuffer", offset: srcOffset, width: uint32(size)})
}

// CopyToBuffer writes row y of the image as bytes of value y+1 at the staging row pitch
func (c *fakeCommands) CopyToBuffer(dst *resource.Buffer[*fakeMemory], dstOffset int, src *resource.Texture[*fakeMemory], width, height, mip uint32) {
	c.ops = append(c.ops, op{name: "copyToBuffer", width: width, height: height, mip: mip, offset: dstOffset})

	mapped, _ := c.backend.Map(dst.Memory)
	defer c.backend.Unmap(dst.Memory)

	pitch := dst.Size() / int(height)
	row := int(width) * src.Format().BytesPerBlock()
	for y := 0; y < int(height); y++ {
		for x := 0; x < pitch; x++ {
			mapped[dstOffset+y*pitch+x] = 0xff
			if x < row {
				mapped[dstOffset+y*pitch+x] = byte(y + 1)
			}
		}
	}
}

func (c *fakeCommands) Barrier(tex *resource.Texture[*fakeMemory], from, to resource.Access, mip uint32) {
	c.ops = append(c.ops, op{name: "barrier", from: from, to: to, mip: mip})
}

func (c *fakeCommands) FillBuffer(dst *resource.Buffer[*fakeMemory], value uint32, offset, size int) {
	c.ops = append(c.ops, op{name: "fillBuffer", offset: offset, width: uint32(size)})
}

func (c *fakeCommands) Fill(tex *resource.Texture[*fakeMemory], value uint32) {
	c.ops = append(c.ops, op{name: "fill"})
}

func (c *fakeCommands) GenerateMipmap(tex *resource.Texture[*fakeMemory], width, height, mips uint32) {
	c.ops = append(c.ops, op{name: "mipmap", width: width, height: height, mip: mips})
}

func (c *fakeCommands) Hold(r resource.Resource) {
	r.Acquire()
	c.held = append(c.held, r)
}

func (c *fakeCommands) complete(t *testing.T) {
	for _, r := range c.held {
		require.NoError(t, r.Release())
	}
	c.held = nil
}

type fakeQueue struct {
	backend   *fakeBackend
	submitted []*fakeCommands
	waited    int
}

func (q *fakeQueue) Commands() (resource.Commands[*fakeMemory], error) {
	return &fakeCommands{backend: q.backend}, nil
}

func (q *fakeQueue) Submit(cmd resource.Commands[*fakeMemory]) error {
	q.submitted = append(q.submitted, cmd.(*fakeCommands))
	return nil
}

func (q *fakeQueue) SubmitAndWait(cmd resource.Commands[*fakeMemory]) error {
	q.waited++
	q.submitted = append(q.submitted, cmd.(*fakeCommands))
	return nil
}

func (q *fakeQueue) completeAll(t *testing.T) {
	for _, cmd := range q.submitted {
		require.True(t, cmd.begun)
		require.True(t, cmd.ended)
		cmd.complete(t)
	}
}

type harness struct {
	heaps   *fakeHeaps
	backend *fakeBackend
	queue   *fakeQueue
	memory  *devmem.Allocator[*fakeMemory]
	factory *resource.Factory[*fakeMemory]
}

func newHarness(t *testing.T) *harness {
	logger := slog.New(slog.NewTextHandler(io.Discard))

	h := &harness{
		heaps:   &fakeHeaps{},
		backend: &fakeBackend{},
	}
	h.queue = &fakeQueue{backend: h.backend}

	provider := devmem.NewCachingProvider[*fakeMemory](logger, h.heaps, "test", nil)
	h.memory = devmem.New[*fakeMemory](logger, provider, devmem.CreateOptions{DefaultPageSize: 1 << 16})

	var err error
	h.factory, err = resource.NewFactory[*fakeMemory](logger, h.memory, h.backend, h.queue, resource.Options{})
	require.NoError(t, err)
	return h
}

func (h *harness) liveAllocations() int {
	return h.memory.Statistics().AllocationCount
}
