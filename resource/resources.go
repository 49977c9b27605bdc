package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gapi/devmem"
)

// Buffer is a native buffer and the device memory behind it
type Buffer[M comparable] struct {
	shared

	Desc   BufferDesc
	Memory devmem.Allocation[M]
	Native any

	hostVisible bool
}

func (b *Buffer[M]) Size() int         { return b.Desc.Size }
func (b *Buffer[M]) HostVisible() bool { return b.hostVisible }

// Texture is a native image and the device memory behind it
type Texture[M comparable] struct {
	shared

	Desc   TextureDesc
	Memory devmem.Allocation[M]
	Native any
}

func (t *Texture[M]) Width() uint32         { return t.Desc.Width }
func (t *Texture[M]) Height() uint32        { return t.Desc.Height }
func (t *Texture[M]) Mips() uint32          { return t.Desc.Mips }
func (t *Texture[M]) Format() TextureFormat { return t.Desc.Format }

// DefaultAccess is the access a texture rests in between transfers
func (t *Texture[M]) DefaultAccess() Access {
	switch {
	case t.Desc.Format.IsDepth():
		return AccessDepthReadOnly
	case t.Desc.Storage:
		return AccessUavReadGraphics | AccessUavReadCompute
	}
	return AccessSampler
}

// write copies data into a host-visible buffer at offset
func (f *Factory[M]) write(buffer *Buffer[M], offset int, data []byte) error {
	if offset+len(data) > buffer.Desc.Size {
		return errors.Newf("writing %d bytes at offset %d overflows a buffer of %d bytes", len(data), offset, buffer.Desc.Size)
	}

	mapped, err := f.backend.Map(buffer.Memory)
	if err != nil {
		return errors.Wrap(err, "mapping buffer")
	}
	defer f.backend.Unmap(buffer.Memory)

	copy(mapped[offset:], data)
	return nil
}

// ReadBytes copies len(out) bytes at offset out of a host-visible buffer
func (f *Factory[M]) ReadBytes(buffer *Buffer[M], offset int, out []byte) error {
	if !buffer.hostVisible {
		return errors.New("reading a buffer that is not host visible")
	}
	if offset+len(out) > buffer.Desc.Size {
		return errors.Newf("reading %d bytes at offset %d overflows a buffer of %d bytes", len(out), offset, buffer.Desc.Size)
	}

	mapped, err := f.backend.Map(buffer.Memory)
	if err != nil {
		return errors.Wrap(err, "mapping buffer")
	}
	defer f.backend.Unmap(buffer.Memory)

	copy(out, mapped[offset:offset+len(out)])
	return nil
}
