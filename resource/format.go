package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gapi/memutils"
)

type TextureFormat uint8

const (
	FormatUndefined TextureFormat = iota
	FormatR8
	FormatRG8
	FormatRGB8
	FormatRGBA8
	FormatR16
	FormatRG16
	FormatRGBA16
	FormatR32F
	FormatRG32F
	FormatRGB32F
	FormatRGBA32F
	FormatR11G11B10UF
	FormatDepth16
	FormatDepth24S8
	FormatDepth32F
	FormatDXT1
	FormatDXT3
	FormatDXT5
)

type formatInfo struct {
	name string
	// bytesPerPixel is the texel size of an uncompressed format
	bytesPerPixel int
	// blockSize is the size of one 4x4 block of a compressed format
	blockSize int
	depth     bool
}

var formats = map[TextureFormat]formatInfo{
	FormatUndefined:   {name: "Undefined"},
	FormatR8:          {name: "R8", bytesPerPixel: 1},
	FormatRG8:         {name: "RG8", bytesPerPixel: 2},
	FormatRGB8:        {name: "RGB8", bytesPerPixel: 3},
	FormatRGBA8:       {name: "RGBA8", bytesPerPixel: 4},
	FormatR16:         {name: "R16", bytesPerPixel: 2},
	FormatRG16:        {name: "RG16", bytesPerPixel: 4},
	FormatRGBA16:      {name: "RGBA16", bytesPerPixel: 8},
	FormatR32F:        {name: "R32F", bytesPerPixel: 4},
	FormatRG32F:       {name: "RG32F", bytesPerPixel: 8},
	FormatRGB32F:      {name: "RGB32F", bytesPerPixel: 12},
	FormatRGBA32F:     {name: "RGBA32F", bytesPerPixel: 16},
	FormatR11G11B10UF: {name: "R11G11B10UF", bytesPerPixel: 4},
	FormatDepth16:     {name: "Depth16", bytesPerPixel: 2, depth: true},
	FormatDepth24S8:   {name: "Depth24S8", bytesPerPixel: 4, depth: true},
	FormatDepth32F:    {name: "Depth32F", bytesPerPixel: 4, depth: true},
	FormatDXT1:        {name: "DXT1", blockSize: 8},
	FormatDXT3:        {name: "DXT3", blockSize: 16},
	FormatDXT5:        {name: "DXT5", blockSize: 16},
}

func (f TextureFormat) String() string     { return formats[f].name }
func (f TextureFormat) IsCompressed() bool { return formats[f].blockSize > 0 }
func (f TextureFormat) IsDepth() bool      { return formats[f].depth }

// BytesPerBlock is the size of one addressable unit: a texel, or a 4x4 block for compressed formats
func (f TextureFormat) BytesPerBlock() int {
	info := formats[f]
	if info.blockSize > 0 {
		return info.blockSize
	}
	return info.bytesPerPixel
}

// BlockCount returns the number of addressable units along each axis of a width x height image
func (f TextureFormat) BlockCount(width, height uint32) (uint32, uint32) {
	if f.IsCompressed() {
		return memutils.DivRoundUp(width, 4), memutils.DivRoundUp(height, 4)
	}
	return width, height
}

// Pixmap is a host-side image. Compressed pixmaps hold every mip level back to back.
type Pixmap struct {
	Width  uint32
	Height uint32
	Format TextureFormat
	Data   []byte
}

// NewPixmap allocates a zeroed single-level pixmap
func NewPixmap(width, height uint32, format TextureFormat) Pixmap {
	blocksW, blocksH := format.BlockCount(width, height)
	return Pixmap{
		Width:  width,
		Height: height,
		Format: format,
		Data:   make([]byte, int(blocksW)*int(blocksH)*format.BytesPerBlock()),
	}
}

// RowBytes is the unpadded size of one row of blocks at the top level
func (p Pixmap) RowBytes() int {
	blocksW, _ := p.Format.BlockCount(p.Width, p.Height)
	return int(blocksW) * p.Format.BytesPerBlock()
}

func (p Pixmap) validate(mips uint32) error {
	if p.Format == FormatUndefined {
		return errors.New("pixmap has no format")
	}
	if p.Width == 0 || p.Height == 0 {
		return errors.Newf("pixmap has empty extent %dx%d", p.Width, p.Height)
	}

	expected := 0
	width, height := p.Width, p.Height
	levels := uint32(1)
	if p.Format.IsCompressed() {
		levels = mips
	}
	for i := uint32(0); i < levels; i++ {
		blocksW, blocksH := p.Format.BlockCount(width, height)
		expected += int(blocksW) * int(blocksH) * p.Format.BytesPerBlock()
		width = max(1, width/2)
		height = max(1, height/2)
	}

	if len(p.Data) < expected {
		return errors.Newf("pixmap of %dx%d %s with %d levels needs %d bytes, has %d", p.Width, p.Height, p.Format, levels, expected, len(p.Data))
	}
	return nil
}
