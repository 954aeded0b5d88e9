package framepipe

import "fmt"

// PixelFormat identifies the pixel layout of a video buffer.
type PixelFormat uint32

const (
	// FormatNone is the zero value; it describes no layout.
	FormatNone PixelFormat = iota

	// FormatNV12 is 4:2:0 with a full-resolution Y plane followed by one
	// half-resolution interleaved UV plane.
	FormatNV12

	// FormatI420 is 4:2:0 with three planes: Y, U, V.
	FormatI420

	// FormatRGBA is a single packed plane, 4 bytes per pixel.
	FormatRGBA

	// FormatGray8 is a single 8-bit luma plane.
	FormatGray8
)

// String returns the string representation of the format.
func (f PixelFormat) String() string {
	switch f {
	case FormatNone:
		return "none"
	case FormatNV12:
		return "NV12"
	case FormatI420:
		return "I420"
	case FormatRGBA:
		return "RGBA"
	case FormatGray8:
		return "GRAY8"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(f))
	}
}

// MaxPlanes is the maximum number of planes a supported format carries.
const MaxPlanes = 3

// strideAlign is the row alignment of every plane, in bytes. GPU readback
// paths address plane rows as 32-bit words, so rows stay 4-byte aligned.
const strideAlign = 4

// VideoBufferInfo describes the memory layout of a video buffer: format,
// dimensions and per-plane stride, offset and pixel size. Once a pool is
// reserved against an info, the info is immutable for the pool's lifetime.
type VideoBufferInfo struct {
	// Format is the pixel layout.
	Format PixelFormat

	// Width and Height are the frame dimensions in pixels.
	Width  uint32
	Height uint32

	// Components is the number of planes the format carries.
	Components uint32

	// Strides holds the bytes per row of each plane.
	Strides [MaxPlanes]uint32

	// Offsets holds the byte offset of each plane inside the buffer.
	Offsets [MaxPlanes]uint32

	// PixelBytes holds the bytes per sample of each plane.
	PixelBytes [MaxPlanes]uint32

	// Size is the total buffer size in bytes.
	Size uint32
}

// PlanarInfo describes one plane of a video buffer.
type PlanarInfo struct {
	// Width is the number of samples per row.
	Width uint32

	// Height is the number of rows.
	Height uint32

	// PixelBytes is the bytes per sample.
	PixelBytes uint32
}

// alignUp rounds v up to the next multiple of align.
func alignUp(v, align uint32) uint32 {
	return (v + align - 1) / align * align
}

// Init derives the plane layout for the given format and dimensions.
// Strides are aligned to 4 bytes.
func (i *VideoBufferInfo) Init(format PixelFormat, width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: zero video dimensions %dx%d", ErrInvalidParam, width, height)
	}

	*i = VideoBufferInfo{Format: format, Width: width, Height: height}

	switch format {
	case FormatNV12:
		if width%2 != 0 || height%2 != 0 {
			return fmt.Errorf("%w: NV12 requires even dimensions, got %dx%d", ErrInvalidParam, width, height)
		}
		i.Components = 2
		i.Strides[0] = alignUp(width, strideAlign)
		i.Strides[1] = alignUp(width, strideAlign)
		i.PixelBytes[0] = 1
		i.PixelBytes[1] = 2
		i.Offsets[0] = 0
		i.Offsets[1] = i.Strides[0] * height
		i.Size = i.Offsets[1] + i.Strides[1]*(height/2)

	case FormatI420:
		if width%2 != 0 || height%2 != 0 {
			return fmt.Errorf("%w: I420 requires even dimensions, got %dx%d", ErrInvalidParam, width, height)
		}
		i.Components = 3
		i.Strides[0] = alignUp(width, strideAlign)
		i.Strides[1] = alignUp(width/2, strideAlign)
		i.Strides[2] = i.Strides[1]
		i.PixelBytes[0] = 1
		i.PixelBytes[1] = 1
		i.PixelBytes[2] = 1
		i.Offsets[0] = 0
		i.Offsets[1] = i.Strides[0] * height
		i.Offsets[2] = i.Offsets[1] + i.Strides[1]*(height/2)
		i.Size = i.Offsets[2] + i.Strides[2]*(height/2)

	case FormatRGBA:
		i.Components = 1
		i.Strides[0] = width * 4
		i.PixelBytes[0] = 4
		i.Size = i.Strides[0] * height

	case FormatGray8:
		i.Components = 1
		i.Strides[0] = alignUp(width, strideAlign)
		i.PixelBytes[0] = 1
		i.Size = i.Strides[0] * height

	default:
		return fmt.Errorf("%w: unsupported pixel format %v", ErrInvalidParam, format)
	}

	return nil
}

// PlanarInfo returns layout information for the plane at index.
func (i *VideoBufferInfo) PlanarInfo(index uint32) (PlanarInfo, error) {
	if index >= i.Components {
		return PlanarInfo{}, fmt.Errorf("%w: plane %d of %d", ErrInvalidParam, index, i.Components)
	}

	p := PlanarInfo{PixelBytes: i.PixelBytes[index]}
	switch i.Format {
	case FormatNV12:
		if index == 0 {
			p.Width, p.Height = i.Width, i.Height
		} else {
			p.Width, p.Height = i.Width/2, i.Height/2
		}
	case FormatI420:
		if index == 0 {
			p.Width, p.Height = i.Width, i.Height
		} else {
			p.Width, p.Height = i.Width/2, i.Height/2
		}
	default:
		p.Width, p.Height = i.Width, i.Height
	}
	return p, nil
}

// PlaneSize returns the byte size of the plane at index: stride times rows.
func (i *VideoBufferInfo) PlaneSize(index uint32) (uint32, error) {
	p, err := i.PlanarInfo(index)
	if err != nil {
		return 0, err
	}
	return i.Strides[index] * p.Height, nil
}

// Valid reports whether the info describes a non-empty layout.
func (i *VideoBufferInfo) Valid() bool {
	return i.Format != FormatNone && i.Size > 0 && i.Components > 0
}

// String returns a short human-readable description of the layout.
func (i VideoBufferInfo) String() string {
	return fmt.Sprintf("%v %dx%d (%d planes, %d bytes)", i.Format, i.Width, i.Height, i.Components, i.Size)
}
