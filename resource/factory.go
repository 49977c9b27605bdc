package resource

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/vkngwrapper/gapi"
	"github.com/vkngwrapper/gapi/devmem"
	"github.com/vkngwrapper/gapi/memutils"
	"golang.org/x/exp/slog"
)

const DefaultRowPitchAlignment = 256

type Options struct {
	// RowPitchAlignment is the alignment of each row in a texture staging buffer. It must be a power
	// of two.
	RowPitchAlignment uint
}

// Factory places buffers and textures in device memory and uploads their initial contents
type Factory[M comparable] struct {
	logger  *slog.Logger
	memory  *devmem.Allocator[M]
	backend Backend[M]
	queue   Queue[M]

	rowPitchAlignment uint
}

func NewFactory[M comparable](logger *slog.Logger, memory *devmem.Allocator[M], backend Backend[M], queue Queue[M], options Options) (*Factory[M], error) {
	if options.RowPitchAlignment == 0 {
		options.RowPitchAlignment = DefaultRowPitchAlignment
	}
	err := memutils.CheckPow2(options.RowPitchAlignment, "row pitch alignment")
	if err != nil {
		return nil, err
	}

	return &Factory[M]{
		logger:            logger,
		memory:            memory,
		backend:           backend,
		queue:             queue,
		rowPitchAlignment: options.RowPitchAlignment,
	}, nil
}

// RowPitch is the staging row size of a row of width texels or blocks
func (f *Factory[M]) RowPitch(format TextureFormat, width uint32) int {
	blocksW, _ := format.BlockCount(width, 1)
	return memutils.AlignUp(int(blocksW)*format.BytesPerBlock(), f.rowPitchAlignment)
}

// CompressedStagingSize is the size of the staging buffer holding every mip level of a compressed
// texture, each level starting on an aligned offset
func (f *Factory[M]) CompressedStagingSize(format TextureFormat, width, height, mips uint32) int {
	total := 0
	for i := uint32(0); i < mips; i++ {
		_, blocksH := format.BlockCount(width, height)
		total += f.RowPitch(format, width) * int(blocksH)
		total = memutils.AlignUp(total, f.rowPitchAlignment)

		width = max(1, width/2)
		height = max(1, height/2)
	}
	return total
}

func (f *Factory[M]) createBuffer(desc BufferDesc) (*Buffer[M], error) {
	requirements, class, err := f.backend.BufferMemory(desc)
	if err != nil {
		return nil, errors.Wrap(err, "querying buffer memory requirements")
	}

	memory, err := f.memory.Alloc(requirements, class.HeapID, class.TypeID, class.HostVisible)
	if err != nil {
		return nil, err
	}

	native, err := f.backend.CreateBuffer(desc, memory)
	if err != nil {
		freeErr := f.memory.Free(&memory)
		return nil, gapi.AllocationFailed(errors.CombineErrors(errors.Wrap(err, "creating buffer"), freeErr))
	}

	buffer := &Buffer[M]{
		Desc:        desc,
		Memory:      memory,
		Native:      native,
		hostVisible: class.HostVisible,
	}
	buffer.init(func() error {
		f.backend.DestroyNative(buffer.Native)
		return f.memory.Free(&buffer.Memory)
	})
	return buffer, nil
}

func (f *Factory[M]) createTexture(desc TextureDesc) (*Texture[M], error) {
	requirements, class, err := f.backend.TextureMemory(desc)
	if err != nil {
		return nil, errors.Wrap(err, "querying texture memory requirements")
	}

	memory, err := f.memory.Alloc(requirements, class.HeapID, class.TypeID, class.HostVisible)
	if err != nil {
		return nil, err
	}

	native, err := f.backend.CreateTexture(desc, memory)
	if err != nil {
		freeErr := f.memory.Free(&memory)
		return nil, gapi.AllocationFailed(errors.CombineErrors(errors.Wrap(err, "creating texture"), freeErr))
	}

	texture := &Texture[M]{
		Desc:   desc,
		Memory: memory,
		Native: native,
	}
	texture.init(func() error {
		f.backend.DestroyNative(texture.Native)
		return f.memory.Free(&texture.Memory)
	})
	return texture, nil
}

// submit records work into a fresh command buffer and submits it
func (f *Factory[M]) submit(wait bool, record func(cmd Commands[M])) error {
	cmd, err := f.queue.Commands()
	if err != nil {
		return errors.Wrap(err, "acquiring command buffer")
	}

	err = cmd.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning command buffer")
	}
	record(cmd)
	err = cmd.End()
	if err != nil {
		return errors.Wrap(err, "ending command buffer")
	}

	if wait {
		return f.queue.SubmitAndWait(cmd)
	}
	return f.queue.Submit(cmd)
}

// releaseAll drops the factory's own references once they have been handed to a command buffer
func releaseAll(err error, resources ...Resource) error {
	for _, resource := range resources {
		err = errors.CombineErrors(err, resource.Release())
	}
	return err
}

// AllocBuffer creates a buffer of size bytes. Data, when present, is written directly into host-visible
// memory or staged through an upload buffer and a queued copy. A buffer created with
// UsageInitialized and no data is zero-filled.
func (f *Factory[M]) AllocBuffer(data []byte, size int, usage Usage, heap BufferHeap) (*Buffer[M], error) {
	if data != nil && len(data) > size {
		return nil, errors.Newf("%d bytes of data do not fit a buffer of %d bytes", len(data), size)
	}

	buffer, err := f.createBuffer(BufferDesc{
		Size:  size,
		Usage: usage | UsageTransferSrc | UsageTransferDst,
		Heap:  heap,
	})
	if err != nil {
		return nil, err
	}

	switch {
	case data == nil && usage&UsageInitialized != 0 && heap != HeapUpload:
		err = f.fillBuffer(buffer)
	case data == nil:
	case buffer.hostVisible:
		err = f.write(buffer, 0, data)
	default:
		err = f.stageBuffer(buffer, data)
	}
	if err != nil {
		return nil, releaseAll(err, buffer)
	}

	f.logger.LogAttrs(context.Background(), slog.LevelDebug, "Created buffer",
		slog.String("size", humanize.IBytes(uint64(size))),
		slog.String("usage", buffer.Desc.Usage.String()),
		slog.String("heap", heap.String()))
	return buffer, nil
}

func (f *Factory[M]) fillBuffer(buffer *Buffer[M]) error {
	if buffer.hostVisible {
		return f.write(buffer, 0, make([]byte, buffer.Desc.Size))
	}

	return f.submit(false, func(cmd Commands[M]) {
		cmd.Hold(buffer)
		cmd.FillBuffer(buffer, 0, 0, buffer.Desc.Size)
	})
}

func (f *Factory[M]) stageBuffer(buffer *Buffer[M], data []byte) error {
	stage, err := f.createBuffer(BufferDesc{Size: len(data), Usage: UsageTransferSrc, Heap: HeapUpload})
	if err != nil {
		return err
	}

	err = f.write(stage, 0, data)
	if err != nil {
		return releaseAll(err, stage)
	}

	err = f.submit(false, func(cmd Commands[M]) {
		cmd.Hold(buffer)
		cmd.Hold(stage)
		cmd.CopyBuffer(buffer, 0, stage, 0, len(data))
	})
	return releaseAll(err, stage)
}

// AllocTexture creates a sampled texture from pixmap and uploads it. Uncompressed textures upload the
// top level and generate the rest of the mip chain; compressed pixmaps carry every level.
func (f *Factory[M]) AllocTexture(pixmap Pixmap, mips uint32) (*Texture[M], error) {
	if mips == 0 {
		mips = 1
	}
	err := pixmap.validate(mips)
	if err != nil {
		return nil, err
	}

	if pixmap.Format.IsCompressed() {
		return f.allocCompressedTexture(pixmap, mips)
	}

	row := pixmap.RowBytes()
	pitch := f.RowPitch(pixmap.Format, pixmap.Width)

	stage, err := f.createBuffer(BufferDesc{Size: int(pixmap.Height) * pitch, Usage: UsageTransferSrc, Heap: HeapUpload})
	if err != nil {
		return nil, err
	}

	mapped, err := f.backend.Map(stage.Memory)
	if err != nil {
		return nil, releaseAll(errors.Wrap(err, "mapping staging buffer"), stage)
	}
	for y := 0; y < int(pixmap.Height); y++ {
		copy(mapped[y*pitch:], pixmap.Data[y*row:(y+1)*row])
	}
	f.backend.Unmap(stage.Memory)

	texture, err := f.createTexture(TextureDesc{
		Width:  pixmap.Width,
		Height: pixmap.Height,
		Mips:   mips,
		Format: pixmap.Format,
	})
	if err != nil {
		return nil, releaseAll(err, stage)
	}

	err = f.submit(false, func(cmd Commands[M]) {
		cmd.Hold(texture)
		cmd.Hold(stage)

		cmd.Copy(texture, pixmap.Width, pixmap.Height, 0, stage, 0)
		cmd.Barrier(texture, AccessTransferDst, AccessSampler, AllMips)
		if mips > 1 {
			cmd.GenerateMipmap(texture, pixmap.Width, pixmap.Height, mips)
		}
	})
	err = releaseAll(err, stage)
	if err != nil {
		return nil, releaseAll(err, texture)
	}
	return texture, nil
}

func (f *Factory[M]) allocCompressedTexture(pixmap Pixmap, mips uint32) (*Texture[M], error) {
	format := pixmap.Format
	stageSize := f.CompressedStagingSize(format, pixmap.Width, pixmap.Height, mips)

	stage, err := f.createBuffer(BufferDesc{Size: stageSize, Usage: UsageTransferSrc, Heap: HeapUpload})
	if err != nil {
		return nil, err
	}

	mapped, err := f.backend.Map(stage.Memory)
	if err != nil {
		return nil, releaseAll(errors.Wrap(err, "mapping staging buffer"), stage)
	}

	srcOffset, dstOffset := 0, 0
	width, height := pixmap.Width, pixmap.Height
	for i := uint32(0); i < mips; i++ {
		blocksW, blocksH := format.BlockCount(width, height)
		row := int(blocksW) * format.BytesPerBlock()
		pitch := f.RowPitch(format, width)

		for y := 0; y < int(blocksH); y++ {
			copy(mapped[dstOffset+y*pitch:], pixmap.Data[srcOffset:srcOffset+row])
			srcOffset += row
		}
		dstOffset = memutils.AlignUp(dstOffset+pitch*int(blocksH), f.rowPitchAlignment)

		width = max(1, width/2)
		height = max(1, height/2)
	}
	f.backend.Unmap(stage.Memory)

	texture, err := f.createTexture(TextureDesc{
		Width:  pixmap.Width,
		Height: pixmap.Height,
		Mips:   mips,
		Format: format,
	})
	if err != nil {
		return nil, releaseAll(err, stage)
	}

	err = f.submit(false, func(cmd Commands[M]) {
		cmd.Hold(texture)
		cmd.Hold(stage)

		offset := 0
		width, height := pixmap.Width, pixmap.Height
		for i := uint32(0); i < mips; i++ {
			_, blocksH := format.BlockCount(width, height)
			cmd.Copy(texture, width, height, i, stage, offset)
			offset = memutils.AlignUp(offset+f.RowPitch(format, width)*int(blocksH), f.rowPitchAlignment)

			// copies address whole blocks
			width = max(4, width/2)
			height = max(4, height/2)
		}
		cmd.Barrier(texture, AccessTransferDst, AccessSampler, AllMips)
	})
	err = releaseAll(err, stage)
	if err != nil {
		return nil, releaseAll(err, texture)
	}
	return texture, nil
}

// AllocStorage creates a zero-cleared texture shaders can write. A non-zero depth creates a volume.
func (f *Factory[M]) AllocStorage(width, height, depth, mips uint32, format TextureFormat) (*Texture[M], error) {
	texture, err := f.createTexture(TextureDesc{
		Width:   width,
		Height:  height,
		Depth:   depth,
		Mips:    max(1, mips),
		Format:  format,
		Storage: true,
	})
	if err != nil {
		return nil, err
	}

	err = f.submit(false, func(cmd Commands[M]) {
		cmd.Hold(texture)
		cmd.Fill(texture, 0)
	})
	if err != nil {
		return nil, releaseAll(err, texture)
	}
	return texture, nil
}

// AllocAttachment creates a render target without initial contents
func (f *Factory[M]) AllocAttachment(width, height, mips uint32, format TextureFormat) (*Texture[M], error) {
	return f.createTexture(TextureDesc{
		Width:      width,
		Height:     height,
		Mips:       max(1, mips),
		Format:     format,
		Attachment: true,
	})
}

// ReadPixels copies one mip level of texture back to the host. It blocks until the GPU has finished
// the copy, with no timeout.
func (f *Factory[M]) ReadPixels(texture *Texture[M], width, height, mip uint32) (Pixmap, error) {
	format := texture.Desc.Format
	blocksW, blocksH := format.BlockCount(width, height)
	row := int(blocksW) * format.BytesPerBlock()
	pitch := f.RowPitch(format, width)

	stage, err := f.createBuffer(BufferDesc{Size: int(blocksH) * pitch, Usage: UsageTransferDst, Heap: HeapReadback})
	if err != nil {
		return Pixmap{}, err
	}
	defer func() {
		releaseErr := stage.Release()
		if releaseErr != nil {
			f.logger.LogAttrs(context.Background(), slog.LevelError, "failed to release readback buffer", slog.Any("error", releaseErr))
		}
	}()

	access := texture.DefaultAccess()
	err = f.submit(true, func(cmd Commands[M]) {
		cmd.Barrier(texture, access, AccessTransferSrc, mip)
		cmd.CopyToBuffer(stage, 0, texture, width, height, mip)
		cmd.Barrier(texture, AccessTransferSrc, access, mip)
	})
	if err != nil {
		return Pixmap{}, err
	}

	out := NewPixmap(width, height, format)
	mapped, err := f.backend.Map(stage.Memory)
	if err != nil {
		return Pixmap{}, errors.Wrap(err, "mapping readback buffer")
	}
	defer f.backend.Unmap(stage.Memory)

	for y := 0; y < int(blocksH); y++ {
		copy(out.Data[y*row:(y+1)*row], mapped[y*pitch:])
	}
	return out, nil
}
