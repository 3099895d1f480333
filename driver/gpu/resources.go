package gpu

import (
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/mixer/driver"
)

// Fence polling backs off up to this interval.
const maxFencePoll = time.Millisecond

// pixer is implemented by the kernel's host textures.
type pixer interface {
	Pix() []byte
}

// texture is a device texture with the host mirror the kernel draws into.
// raw is nil for host-resident textures.
type texture struct {
	host driver.Texture
	raw  hal.Texture
	dev  hal.Device

	// dirty is set when host holds kernel output raw does not have yet.
	dirty bool

	destroyed atomic.Bool
}

func (t *texture) Width() int      { return t.host.Width() }
func (t *texture) Height() int     { return t.host.Height() }
func (t *texture) Stride() int     { return t.host.Stride() }
func (t *texture) Mipmapped() bool { return t.host.Mipmapped() }
func (t *texture) SizeBytes() int  { return t.host.SizeBytes() }

// OnDevice reports whether the texture has device storage.
func (t *texture) OnDevice() bool { return t.raw != nil }

func (t *texture) Clear() {
	t.host.Clear()
	t.dirty = t.raw != nil
}

func (t *texture) Destroy() {
	if !t.destroyed.CompareAndSwap(false, true) {
		return
	}
	if t.raw != nil {
		t.dev.DestroyTexture(t.raw)
	}
	t.host.Destroy()
}

func (t *texture) pix() []byte { return t.host.(pixer).Pix() }

func (t *texture) extent() hal.Extent3D {
	return hal.Extent3D{Width: uint32(t.Width()), Height: uint32(t.Height()), DepthOrArrayLayers: 1}
}

// buffer is a hal buffer mapped for its whole lifetime.
type buffer struct {
	raw   hal.Buffer
	dev   hal.Device
	usage driver.Usage
	data  []byte

	destroyed atomic.Bool
}

func (b *buffer) Size() int           { return len(b.data) }
func (b *buffer) Usage() driver.Usage { return b.usage }
func (b *buffer) Bytes() []byte       { return b.data }

func (b *buffer) Destroy() {
	if !b.destroyed.CompareAndSwap(false, true) {
		return
	}
	if err := b.dev.UnmapBuffer(b.raw); err != nil {
		slogger().Warn("gpu: unmap buffer", "size", len(b.data), "err", err)
	}
	b.dev.DestroyBuffer(b.raw)
}

// fence is reached when the queue completed submission index.
type fence struct {
	queue hal.Queue
	index uint64
}

// Wait polls the queue until the submission completed or timeout elapsed.
func (f *fence) Wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	backoff := 50 * time.Microsecond
	for {
		if f.queue.PollCompleted() >= f.index {
			return true
		}
		left := time.Until(deadline)
		if left <= 0 {
			return false
		}
		time.Sleep(min(backoff, left))
		backoff = min(2*backoff, maxFencePoll)
	}
}

// Delete is a no-op: a submission index owns no native object.
func (f *fence) Delete() {}

// NewTexture creates a texture. Its texels are zero.
func (d *Driver) NewTexture(desc driver.TextureDescriptor) (driver.Texture, error) {
	host, err := d.kernel.NewTexture(desc)
	if err != nil {
		return nil, err
	}
	t := &texture{host: host, dev: d.dev}
	if !d.devicePlaced(desc) {
		return t, nil
	}

	format := desc.Format
	if format == gputypes.TextureFormatUndefined {
		format = driver.FormatForStride(desc.Stride)
	}
	t.raw, err = d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          t.extent(),
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         desc.Usage | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		host.Destroy()
		return nil, fmt.Errorf("gpu: create texture %dx%d: %w", desc.Width, desc.Height, err)
	}
	// Device memory is not guaranteed to start zeroed.
	t.dirty = true
	return t, nil
}

// NewBuffer creates a transfer buffer and maps it.
func (d *Driver) NewBuffer(desc driver.BufferDescriptor) (driver.Buffer, error) {
	if desc.Size <= 0 {
		return nil, fmt.Errorf("gpu: invalid buffer size %d", desc.Size)
	}
	// Copy sizes are multiples of four bytes.
	alloc := uint64(desc.Size+3) &^ 3
	raw, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  alloc,
		Usage: desc.Usage.GPUUsage(),
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create buffer of %d bytes: %w", desc.Size, err)
	}
	m, err := d.dev.MapBuffer(raw, 0, alloc)
	if err != nil {
		d.dev.DestroyBuffer(raw)
		return nil, fmt.Errorf("gpu: map buffer: %w", err)
	}
	if !m.IsCoherent {
		_ = d.dev.UnmapBuffer(raw)
		d.dev.DestroyBuffer(raw)
		return nil, fmt.Errorf("gpu: buffer mapping is not coherent")
	}
	return &buffer{
		raw:   raw,
		dev:   d.dev,
		usage: desc.Usage,
		data:  unsafe.Slice((*byte)(m.Ptr), alloc)[:desc.Size],
	}, nil
}

func asTexture(t driver.Texture) (*texture, error) {
	gt, ok := t.(*texture)
	if !ok {
		return nil, fmt.Errorf("%w: texture %T", driver.ErrForeignResource, t)
	}
	if gt.destroyed.Load() {
		return nil, driver.ErrResourceDestroyed
	}
	return gt, nil
}

// hostOf returns the host mirror of t, or nil for a nil t.
func hostOf(t driver.Texture) (driver.Texture, error) {
	if t == nil {
		return nil, nil
	}
	gt, err := asTexture(t)
	if err != nil {
		return nil, err
	}
	return gt.host, nil
}

func asBuffer(b driver.Buffer) (*buffer, error) {
	gb, ok := b.(*buffer)
	if !ok {
		return nil, fmt.Errorf("%w: buffer %T", driver.ErrForeignResource, b)
	}
	if gb.destroyed.Load() {
		return nil, driver.ErrResourceDestroyed
	}
	return gb, nil
}
