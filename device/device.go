// Package device owns the compositing device: the context goroutine every
// driver call runs on, the texture and transfer buffer pools, the upload
// cache and the asynchronous transfer engine.
//
// Most methods take a context. Operations that touch driver state either
// run on the device context themselves or, like CreateTexture and
// ReadbackAsync, require the caller to already be there: tasks started
// with Invoke or Submit receive a context for which IsCurrent is true.
package device

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"weak"

	"github.com/gogpu/mixer/driver"
	"github.com/gogpu/mixer/frame"
	"github.com/gogpu/mixer/future"
	"github.com/gogpu/mixer/internal/executor"
)

// Priority is the scheduling class of device work.
type Priority = executor.Priority

const (
	// PriorityNormal is used for background work such as uploads.
	PriorityNormal = executor.Normal

	// PriorityHigh is used for work on the output path: compositing,
	// readback buffers and resource recycling.
	PriorityHigh = executor.High
)

// Device is a compositing device.
//
// Thread safety: Device is safe for concurrent use. Methods documented as
// context-only fail with ErrInvalidOperation elsewhere.
type Device struct {
	exec *executor.Executor
	drv  driver.Driver
	opts options
	self weak.Pointer[Device]

	textures *pool[textureKey, driver.Texture]
	buffers  *pool[bufferKey, driver.Buffer]

	// cache maps a write buffer to the texture last uploaded from it. Only
	// accessed on the device context.
	cache    map[driver.Buffer]*Texture
	cacheLen atomic.Int64

	maxTexture int
	counters   counters
	closed     atomic.Bool
}

// New opens a driver on a new device context. It fails with
// ErrInvalidOperation when the driver cannot be opened or reports a version
// below the minimum.
func New(ctx context.Context, opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	open := o.opener
	if open == nil {
		var err error
		if open, err = driver.Lookup(o.driverName); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOperation, err)
		}
	}

	d := &Device{
		exec:     executor.New("device", o.capacity),
		opts:     o,
		textures: newPool[textureKey, driver.Texture](o.maxPerBucket),
		buffers:  newPool[bufferKey, driver.Buffer](o.maxPerBucket),
		cache:    make(map[driver.Buffer]*Texture),
	}
	d.self = weak.Make(d)

	err := d.exec.Invoke(ctx, func(context.Context) error {
		drv, err := open()
		if err != nil {
			return fmt.Errorf("%w: open driver: %w", ErrInvalidOperation, err)
		}
		major, minor, desc := drv.Version()
		if major < o.minMajor || (major == o.minMajor && minor < o.minMinor) {
			_ = drv.Close()
			return fmt.Errorf("%w: %w: %s version %d.%d (%s), need %d.%d",
				ErrInvalidOperation, ErrNotSupported, drv.Name(), major, minor, desc, o.minMajor, o.minMinor)
		}
		d.drv = drv
		d.maxTexture = int(drv.Limits().MaxTextureDimension2D)
		return nil
	}, PriorityHigh)
	if err != nil {
		d.exec.Close()
		return nil, err
	}

	slogger().Info("device: initialized", "driver", d.drv.Name(), "version", d.Version(ctx))
	return d, nil
}

// IsCurrent reports whether ctx belongs to a task running on the device
// context.
func (d *Device) IsCurrent(ctx context.Context) bool {
	return d.exec.IsCurrent(ctx)
}

// Invoke runs fn on the device context and waits for it.
func (d *Device) Invoke(ctx context.Context, fn func(ctx context.Context) error, prio Priority) error {
	if d.closed.Load() {
		return ErrClosed
	}
	return d.exec.Invoke(ctx, fn, prio)
}

// Submit runs fn on the device context and returns a future for its result.
func Submit[T any](ctx context.Context, d *Device, fn func(ctx context.Context) (T, error), prio Priority) *future.Future[T] {
	if d.closed.Load() {
		return future.Failed[T](ErrClosed)
	}
	return executor.Submit(d.exec, ctx, fn, prio)
}

// Await waits for f. On the device context it runs other queued device work
// while waiting.
func Await[T any](ctx context.Context, d *Device, f *future.Future[T]) (T, error) {
	return executor.Await(ctx, d.exec, f)
}

func (d *Device) requireContext(ctx context.Context, op string) error {
	if !d.exec.IsCurrent(ctx) {
		return fmt.Errorf("%w: %s is only valid on the device context", ErrInvalidOperation, op)
	}
	if d.closed.Load() {
		return ErrClosed
	}
	return nil
}

// CreateTexture returns a pooled texture of the given shape, allocating one
// when the pool has none. With clear set the texels are zeroed. Context-only.
func (d *Device) CreateTexture(ctx context.Context, width, height, stride int, mipmapped, clear bool) (*Texture, error) {
	if err := d.requireContext(ctx, "CreateTexture"); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 || stride < 1 || stride > 4 {
		return nil, fmt.Errorf("%w: texture %dx%d stride %d", ErrInvalidSize, width, height, stride)
	}
	if d.maxTexture > 0 && max(width, height) > d.maxTexture {
		return nil, fmt.Errorf("%w: texture %dx%d exceeds %d", ErrInvalidSize, width, height, d.maxTexture)
	}

	key := textureKey{width: width, height: height, stride: stride, mipmapped: mipmapped}
	native, ok := d.textures.get(key)
	if !ok {
		var err error
		native, err = d.drv.NewTexture(driver.TextureDescriptor{
			Label:     fmt.Sprintf("texture %dx%dx%d", width, height, stride),
			Width:     width,
			Height:    height,
			Stride:    stride,
			Mipmapped: mipmapped,
			Format:    driver.FormatForStride(stride),
			Usage:     driver.DefaultTextureUsage,
		})
		if err != nil {
			return nil, fmt.Errorf("device: allocate texture: %w", err)
		}
		d.counters.textureAllocs.Add(1)
		d.counters.textures.Add(1)
		d.counters.textureBytes.Add(int64(key.size()))
		slogger().Debug("device: texture allocation", "width", width, "height", height, "stride", stride)
	}
	if clear {
		native.Clear()
	}
	return d.wrapTexture(native, key), nil
}

// CreateBuffer returns a pooled transfer buffer of exactly size bytes. It
// may be called from any goroutine; on a pool miss the buffer is allocated
// on the device context, read buffers at high priority.
func (d *Device) CreateBuffer(ctx context.Context, size int, usage driver.Usage) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: buffer of %d bytes", ErrInvalidSize, size)
	}
	if d.closed.Load() {
		return nil, ErrClosed
	}

	key := bufferKey{usage: usage, size: size}
	if native, ok := d.buffers.get(key); ok {
		return d.wrapBuffer(native, key), nil
	}

	prio := PriorityNormal
	if usage == driver.UsageReadOnly {
		prio = PriorityHigh
	}

	start := time.Now()
	native, err := executor.Call(d.exec, ctx, func(context.Context) (driver.Buffer, error) {
		start := time.Now()
		b, err := d.drv.NewBuffer(driver.BufferDescriptor{
			Label: fmt.Sprintf("%s buffer %d", usage, size),
			Size:  size,
			Usage: usage,
		})
		if err != nil {
			return nil, err
		}
		d.counters.addBuffer(usage, size)
		if elapsed := time.Since(start); elapsed > perfWarnThreshold {
			slogger().Warn("device: buffer allocation blocked", "size", size, "elapsed", elapsed)
		} else {
			slogger().Debug("device: buffer allocation", "size", size, "elapsed", elapsed)
		}
		return b, nil
	}, prio)
	if err != nil {
		return nil, fmt.Errorf("device: allocate buffer: %w", err)
	}
	if elapsed := time.Since(start); elapsed > perfWarnThreshold {
		slogger().Warn("device: buffer allocation waited on context", "size", size, "elapsed", elapsed)
	}
	return d.wrapBuffer(native, key), nil
}

// CreateArray returns a frame array backed by a pooled write buffer.
// Uploading it later needs no copy, and uploading it again before it is
// released hits the upload cache.
func (d *Device) CreateArray(ctx context.Context, size int) (*frame.Array, error) {
	buf, err := d.CreateBuffer(ctx, size, driver.UsageWriteOnly)
	if err != nil {
		return nil, err
	}
	return frame.NewArray(buf.Bytes(), buf, buf.Release), nil
}

// Draw runs the driver's compositing kernel. Context-only.
func (d *Device) Draw(ctx context.Context, p *driver.DrawParams) error {
	if err := d.requireContext(ctx, "Draw"); err != nil {
		return err
	}
	return d.drv.Draw(p)
}

// PostProcess finalizes a render target. Context-only.
func (d *Device) PostProcess(ctx context.Context, target *Texture, straighten bool) error {
	if err := d.requireContext(ctx, "PostProcess"); err != nil {
		return err
	}
	return d.drv.PostProcess(target.native, straighten)
}

// recycleTexture returns native to its pool, or destroys it on the device
// context when the bucket is full or the device is closed.
func (d *Device) recycleTexture(native driver.Texture, key textureKey) {
	if !d.closed.Load() && d.textures.put(key, native) {
		return
	}
	err := d.exec.Post(func(context.Context) {
		d.destroyTexture(native, key)
	}, PriorityHigh)
	if err != nil {
		slogger().Debug("device: texture released after close", "width", key.width, "height", key.height)
	}
}

// evict drops the upload cache entry of buf. Context-only.
func (d *Device) evict(buf driver.Buffer) {
	tex, ok := d.cache[buf]
	if !ok {
		return
	}
	delete(d.cache, buf)
	d.cacheLen.Store(int64(len(d.cache)))
	tex.Release()
}

func (d *Device) destroyTexture(native driver.Texture, key textureKey) {
	native.Destroy()
	d.counters.textures.Add(-1)
	d.counters.textureBytes.Add(-int64(key.size()))
}

func (d *Device) destroyBuffer(native driver.Buffer) {
	usage, size := native.Usage(), native.Size()
	native.Destroy()
	d.counters.addBuffer(usage, -size)
}
