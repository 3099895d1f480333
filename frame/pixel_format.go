package frame

import (
	"errors"
	"fmt"
)

// ErrInvalidPixelFormat is returned when a pixel format description does not
// match the plane layout its format requires.
var ErrInvalidPixelFormat = errors.New("frame: invalid pixel format")

// PixelFormat identifies how the planes of a frame encode color.
type PixelFormat uint8

const (
	// PixelFormatInvalid marks a frame without image data.
	PixelFormatInvalid PixelFormat = iota

	// PixelFormatGray is a single 8-bit luminance plane.
	PixelFormatGray

	// PixelFormatBGRA is a single interleaved plane, premultiplied.
	PixelFormatBGRA

	// PixelFormatRGBA is a single interleaved plane, premultiplied.
	PixelFormatRGBA

	// PixelFormatARGB is a single interleaved plane, premultiplied.
	PixelFormatARGB

	// PixelFormatABGR is a single interleaved plane, premultiplied.
	PixelFormatABGR

	// PixelFormatBGR is a single interleaved opaque plane.
	PixelFormatBGR

	// PixelFormatRGB is a single interleaved opaque plane.
	PixelFormatRGB

	// PixelFormatYCbCr is three planes: Y, Cb and Cr. Chroma planes may be
	// subsampled.
	PixelFormatYCbCr

	// PixelFormatYCbCrA is PixelFormatYCbCr with a fourth, full resolution
	// alpha plane.
	PixelFormatYCbCrA
)

// String returns a string representation of the pixel format.
func (f PixelFormat) String() string {
	switch f {
	case PixelFormatInvalid:
		return "invalid"
	case PixelFormatGray:
		return "gray"
	case PixelFormatBGRA:
		return "bgra"
	case PixelFormatRGBA:
		return "rgba"
	case PixelFormatARGB:
		return "argb"
	case PixelFormatABGR:
		return "abgr"
	case PixelFormatBGR:
		return "bgr"
	case PixelFormatRGB:
		return "rgb"
	case PixelFormatYCbCr:
		return "ycbcr"
	case PixelFormatYCbCrA:
		return "ycbcra"
	default:
		return fmt.Sprintf("PixelFormat(%d)", f)
	}
}

// PlaneCount returns the number of planes the format requires.
func (f PixelFormat) PlaneCount() int {
	switch f {
	case PixelFormatInvalid:
		return 0
	case PixelFormatYCbCr:
		return 3
	case PixelFormatYCbCrA:
		return 4
	default:
		return 1
	}
}

// Stride returns the bytes per pixel of plane i, or 0 if the format has no
// such plane.
func (f PixelFormat) Stride(i int) int {
	if i < 0 || i >= f.PlaneCount() {
		return 0
	}
	switch f {
	case PixelFormatBGRA, PixelFormatRGBA, PixelFormatARGB, PixelFormatABGR:
		return 4
	case PixelFormatBGR, PixelFormatRGB:
		return 3
	default:
		return 1
	}
}

// Plane describes one plane of image data.
//
// Stride is the number of bytes per pixel (1 to 4). Rows are tightly packed,
// so a plane occupies Width*Height*Stride bytes.
type Plane struct {
	Width  int
	Height int
	Stride int
	Size   int
}

// NewPlane returns a plane with its Size derived from the dimensions.
func NewPlane(width, height, stride int) Plane {
	return Plane{
		Width:  width,
		Height: height,
		Stride: stride,
		Size:   width * height * stride,
	}
}

// Linesize returns the number of bytes in one row of the plane.
func (p Plane) Linesize() int {
	return p.Width * p.Stride
}

// PixelFormatDesc pairs a pixel format with its plane layout.
type PixelFormatDesc struct {
	Format PixelFormat
	Planes []Plane
}

// NewPixelFormatDesc returns a description for format with the given planes.
func NewPixelFormatDesc(format PixelFormat, planes ...Plane) PixelFormatDesc {
	return PixelFormatDesc{Format: format, Planes: planes}
}

// Validate reports whether the plane layout matches the format.
func (d PixelFormatDesc) Validate() error {
	if d.Format == PixelFormatInvalid {
		return fmt.Errorf("%w: no format", ErrInvalidPixelFormat)
	}
	if len(d.Planes) != d.Format.PlaneCount() {
		return fmt.Errorf("%w: %s needs %d planes, got %d",
			ErrInvalidPixelFormat, d.Format, d.Format.PlaneCount(), len(d.Planes))
	}
	for i, p := range d.Planes {
		if p.Width <= 0 || p.Height <= 0 {
			return fmt.Errorf("%w: plane %d is %dx%d", ErrInvalidPixelFormat, i, p.Width, p.Height)
		}
		if want := d.Format.Stride(i); p.Stride != want {
			return fmt.Errorf("%w: plane %d stride %d, want %d", ErrInvalidPixelFormat, i, p.Stride, want)
		}
	}
	return nil
}
