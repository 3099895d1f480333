// Package soft is a software implementation of the compositing driver.
//
// Textures and buffers live in host memory and every command completes
// before it returns, so fences are always signaled. The kernel reproduces
// the GPU pipeline: plane decoding, placement with resampling, levels and
// color adjustments, keying, field masking and blend modes.
package soft

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/mixer/driver"
	"github.com/gogpu/mixer/internal/parallel"
)

// Name is the name the driver registers under.
const Name = "soft"

// Reported API version. The device requires at least 4.5.
const (
	VersionMajor = 4
	VersionMinor = 5
)

func init() {
	driver.Register(Name, Open)
}

// Driver is the software backend.
//
// Thread safety: Driver methods are called from a single goroutine, the
// device context. Textures are not locked.
type Driver struct {
	limits  gputypes.Limits
	scratch *scratchPool
	rows    *parallel.WorkerPool // started on the first large draw
	closed  atomic.Bool
}

// Open returns a new software driver.
func Open() (driver.Driver, error) {
	return New(), nil
}

// New returns a new software driver with default limits.
func New() *Driver {
	return &Driver{
		limits:  gputypes.DefaultLimits(),
		scratch: newScratchPool(4),
	}
}

// Name returns "soft".
func (d *Driver) Name() string { return Name }

// Version returns the emulated API version.
func (d *Driver) Version() (int, int, string) {
	return VersionMajor, VersionMinor, "gogpu software compositor"
}

// Limits returns the default WebGPU limits.
func (d *Driver) Limits() gputypes.Limits { return d.limits }

// NewTexture allocates a texture. Its texels are zero.
func (d *Driver) NewTexture(desc driver.TextureDescriptor) (driver.Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 || desc.Stride < 1 || desc.Stride > 4 {
		return nil, fmt.Errorf("soft: invalid texture %dx%d stride %d", desc.Width, desc.Height, desc.Stride)
	}
	if max(desc.Width, desc.Height) > int(d.limits.MaxTextureDimension2D) {
		return nil, fmt.Errorf("soft: texture %dx%d exceeds limit %d",
			desc.Width, desc.Height, d.limits.MaxTextureDimension2D)
	}
	return &texture{
		width:     desc.Width,
		height:    desc.Height,
		stride:    desc.Stride,
		mipmapped: desc.Mipmapped,
		format:    desc.Format,
		usage:     desc.Usage,
		label:     desc.Label,
		pix:       make([]byte, desc.SizeBytes()),
	}, nil
}

// NewBuffer allocates a transfer buffer.
func (d *Driver) NewBuffer(desc driver.BufferDescriptor) (driver.Buffer, error) {
	if desc.Size <= 0 {
		return nil, fmt.Errorf("soft: invalid buffer size %d", desc.Size)
	}
	return &buffer{usage: desc.Usage, label: desc.Label, data: make([]byte, desc.Size)}, nil
}

// CopyBufferToTexture copies buffer bytes into the texture.
func (d *Driver) CopyBufferToTexture(src driver.Buffer, dst driver.Texture) error {
	b, err := asBuffer(src)
	if err != nil {
		return err
	}
	t, err := asTexture(dst)
	if err != nil {
		return err
	}
	copy(t.pix, b.data)
	return nil
}

// CopyTextureToBuffer copies texture bytes into the buffer.
func (d *Driver) CopyTextureToBuffer(src driver.Texture, dst driver.Buffer) error {
	t, err := asTexture(src)
	if err != nil {
		return err
	}
	b, err := asBuffer(dst)
	if err != nil {
		return err
	}
	copy(b.data, t.pix)
	return nil
}

// FenceSync returns an already signaled fence.
func (d *Driver) FenceSync() (driver.Fence, error) {
	return fence{}, nil
}

// Flush is a no-op.
func (d *Driver) Flush() error { return nil }

// Close stops the row workers and releases scratch memory.
func (d *Driver) Close() error {
	if d.closed.CompareAndSwap(false, true) {
		if d.rows != nil {
			d.rows.Close()
		}
		d.scratch.drain()
	}
	return nil
}

// bands runs fn over row bands of y0 to y1, in parallel for tall ranges.
func (d *Driver) bands(y0, y1 int, fn func(y0, y1 int)) {
	if y1-y0 < 2*minBandRows || d.closed.Load() {
		fn(y0, y1)
		return
	}
	if d.rows == nil {
		d.rows = parallel.NewWorkerPool(0)
	}
	d.rows.Rows(y0, y1, minBandRows, fn)
}

func asTexture(t driver.Texture) (*texture, error) {
	st, ok := t.(*texture)
	if !ok {
		return nil, fmt.Errorf("%w: texture %T", driver.ErrForeignResource, t)
	}
	if st.destroyed.Load() {
		return nil, driver.ErrResourceDestroyed
	}
	return st, nil
}

func asBuffer(b driver.Buffer) (*buffer, error) {
	sb, ok := b.(*buffer)
	if !ok {
		return nil, fmt.Errorf("%w: buffer %T", driver.ErrForeignResource, b)
	}
	if sb.destroyed.Load() {
		return nil, driver.ErrResourceDestroyed
	}
	return sb, nil
}
