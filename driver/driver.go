// Package driver defines the graphics backend the device layer drives.
//
// A Driver owns native textures, buffers and fences and executes the
// compositing kernel. The device package calls every Driver method from its
// context goroutine, except Fence.Wait and Fence.Delete which may be called
// from any goroutine.
//
// Backends register themselves by name:
//
//	func init() {
//	    driver.Register("soft", Open)
//	}
package driver

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/mixer/frame"
)

var (
	// ErrUnknownDriver is returned by Lookup for unregistered names.
	ErrUnknownDriver = errors.New("driver: unknown driver")

	// ErrForeignResource is returned when a resource created by another
	// driver is passed in.
	ErrForeignResource = errors.New("driver: resource belongs to another driver")

	// ErrResourceDestroyed is returned when operating on a destroyed resource.
	ErrResourceDestroyed = errors.New("driver: resource destroyed")
)

// Usage is the direction of a transfer buffer.
type Usage uint8

const (
	// UsageWriteOnly buffers carry data from the host to textures.
	UsageWriteOnly Usage = iota

	// UsageReadOnly buffers carry data from textures back to the host.
	UsageReadOnly
)

// String returns a string representation of the usage.
func (u Usage) String() string {
	switch u {
	case UsageWriteOnly:
		return "write_only"
	case UsageReadOnly:
		return "read_only"
	default:
		return fmt.Sprintf("Usage(%d)", u)
	}
}

// GPUUsage returns the buffer usage flags a GPU backend allocates with.
func (u Usage) GPUUsage() gputypes.BufferUsage {
	if u == UsageReadOnly {
		return gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	}
	return gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
}

// DefaultTextureUsage is the usage every compositor texture is created with.
const DefaultTextureUsage = gputypes.TextureUsageCopySrc |
	gputypes.TextureUsageCopyDst |
	gputypes.TextureUsageTextureBinding |
	gputypes.TextureUsageRenderAttachment

// FormatForStride returns the texture format holding stride 8-bit channels.
// Two and three channel textures have no portable unorm format; backends
// store them as raw bytes.
func FormatForStride(stride int) gputypes.TextureFormat {
	switch stride {
	case 1:
		return gputypes.TextureFormatR8Unorm
	case 4:
		return gputypes.TextureFormatBGRA8Unorm
	default:
		return gputypes.TextureFormatUndefined
	}
}

// TextureDescriptor describes a texture to create.
type TextureDescriptor struct {
	Label     string
	Width     int
	Height    int
	Stride    int
	Mipmapped bool
	Format    gputypes.TextureFormat
	Usage     gputypes.TextureUsage
}

// SizeBytes returns the size of the base level in bytes.
func (d TextureDescriptor) SizeBytes() int {
	return d.Width * d.Height * d.Stride
}

// BufferDescriptor describes a transfer buffer to create.
type BufferDescriptor struct {
	Label string
	Size  int
	Usage Usage
}

// Texture is a native texture.
type Texture interface {
	Width() int
	Height() int
	Stride() int
	Mipmapped() bool
	SizeBytes() int

	// Clear sets every texel to zero.
	Clear()

	// Destroy frees the native resource.
	Destroy()
}

// Buffer is a native transfer buffer. Bytes is its persistently mapped
// memory.
type Buffer interface {
	Size() int
	Usage() Usage
	Bytes() []byte
	Destroy()
}

// Fence marks a point in the command stream.
type Fence interface {
	// Wait blocks until the commands before the fence completed or timeout
	// elapsed. It reports whether the fence was signaled.
	Wait(timeout time.Duration) bool

	// Delete frees the fence.
	Delete()
}

// Keyer selects how drawn pixels combine with the target.
type Keyer uint8

const (
	// KeyerLinear composites premultiplied source over the target.
	KeyerLinear Keyer = iota

	// KeyerAdditive adds source to the target, saturating.
	KeyerAdditive
)

// String returns a string representation of the keyer.
func (k Keyer) String() string {
	switch k {
	case KeyerLinear:
		return "linear"
	case KeyerAdditive:
		return "additive"
	default:
		return fmt.Sprintf("Keyer(%d)", k)
	}
}

// DrawParams is one invocation of the compositing kernel.
type DrawParams struct {
	// PixelFormat describes the planes in Textures.
	PixelFormat frame.PixelFormatDesc

	// Textures holds one texture per plane.
	Textures []Texture

	Transform frame.ImageTransform
	Geometry  frame.Geometry

	// AspectRatio is the display width over height of Background. Rotated
	// items are turned in display space so they keep their proportions.
	// Zero is treated as 1.
	AspectRatio float64

	// Background is the render target. A stride 1 target receives the
	// source's luminance as a key.
	Background Texture

	// LocalKey and LayerKey, when set, are stride 1 textures the size of
	// Background that multiply the source coverage.
	LocalKey Texture
	LayerKey Texture

	Keyer Keyer

	// BlendMode composites a stride 4 source onto Background. Modes other
	// than normal are only used for isolated layers.
	BlendMode frame.BlendMode
}

// Driver is a graphics backend.
type Driver interface {
	Name() string

	// Version returns the backend's API version and a free-form
	// description of the implementation.
	Version() (major, minor int, desc string)

	Limits() gputypes.Limits

	NewTexture(desc TextureDescriptor) (Texture, error)
	NewBuffer(desc BufferDescriptor) (Buffer, error)

	// CopyBufferToTexture uploads the first SizeBytes of src into dst.
	CopyBufferToTexture(src Buffer, dst Texture) error

	// CopyTextureToBuffer downloads src into the start of dst.
	CopyTextureToBuffer(src Texture, dst Buffer) error

	// FenceSync inserts a fence after the commands issued so far.
	FenceSync() (Fence, error)

	// Flush submits pending commands.
	Flush() error

	// Draw runs the compositing kernel.
	Draw(p *DrawParams) error

	// PostProcess finalizes a render target. With straighten set it
	// converts premultiplied colors to straight alpha.
	PostProcess(target Texture, straighten bool) error

	Close() error
}
