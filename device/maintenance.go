package device

import (
	"context"
	"fmt"

	"github.com/gogpu/mixer/driver"
	"github.com/gogpu/mixer/future"
)

// GC destroys every pooled texture and buffer. Resources in use are not
// affected and return to the emptied pools when released.
func (d *Device) GC(ctx context.Context) *future.Future[struct{}] {
	return Submit(ctx, d, func(context.Context) (struct{}, error) {
		textures, buffers := d.drainPools()
		slogger().Info("device: gc", "textures", textures, "buffers", buffers)
		return struct{}{}, nil
	}, PriorityHigh)
}

// drainPools destroys all pooled resources. Context-only.
func (d *Device) drainPools() (textures, buffers int) {
	for _, t := range d.textures.drain() {
		d.destroyTexture(t, textureKey{
			width:     t.Width(),
			height:    t.Height(),
			stride:    t.Stride(),
			mipmapped: t.Mipmapped(),
		})
		textures++
	}
	for _, b := range d.buffers.drain() {
		d.destroyBuffer(b)
		buffers++
	}
	return textures, buffers
}

// AllocateBuffers fills the pools with count textures of the given shape
// and count buffers of width*height*depth bytes, so the first frames of
// that shape allocate nothing. Buffers are read buffers when forChannel is
// set, for a channel's output, and write buffers otherwise.
func (d *Device) AllocateBuffers(ctx context.Context, count, width, height, depth int, mipmapped, forChannel bool) error {
	if count <= 0 {
		return nil
	}
	usage := driver.UsageWriteOnly
	if forChannel {
		usage = driver.UsageReadOnly
	}

	return d.Invoke(ctx, func(ctx context.Context) error {
		textures := make([]*Texture, 0, count)
		buffers := make([]*Buffer, 0, count)
		defer func() {
			for _, t := range textures {
				t.Release()
			}
			// Released buffers are pooled from posted tasks; pool these
			// before returning instead.
			for _, b := range buffers {
				if release(&b.refs) && !d.buffers.put(b.key, b.native) {
					d.destroyBuffer(b.native)
				}
			}
		}()

		for range count {
			b, err := d.CreateBuffer(ctx, width*height*depth, usage)
			if err != nil {
				return err
			}
			buffers = append(buffers, b)

			t, err := d.CreateTexture(ctx, width, height, depth, mipmapped, false)
			if err != nil {
				return err
			}
			textures = append(textures, t)
		}
		slogger().Debug("device: preallocated", "count", count, "width", width, "height", height,
			"depth", depth, "usage", usage)
		return nil
	}, PriorityHigh)
}

// MaxTextureSize returns the largest supported texture dimension.
func (d *Device) MaxTextureSize(ctx context.Context) (int, error) {
	if d.closed.Load() {
		return 0, ErrClosed
	}
	return d.maxTexture, nil
}

// Version describes the driver, or returns "Not found" when it cannot be
// queried.
func (d *Device) Version(ctx context.Context) string {
	var v string
	err := d.Invoke(ctx, func(context.Context) error {
		major, minor, desc := d.drv.Version()
		v = fmt.Sprintf("%d.%d %s", major, minor, desc)
		return nil
	}, PriorityNormal)
	if err != nil {
		return "Not found"
	}
	return v
}

// Close empties the upload cache and the pools, closes the driver and
// stops the device context. Resources released afterwards are dropped.
func (d *Device) Close(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	defer d.exec.Close()

	err := d.exec.Invoke(ctx, func(context.Context) error {
		for buf := range d.cache {
			d.evict(buf)
		}
		d.drainPools()
		return nil
	}, PriorityHigh)
	if err != nil {
		return fmt.Errorf("device: close: %w", err)
	}

	// Destroys posted by the evictions above run first.
	err = d.exec.Invoke(ctx, func(context.Context) error {
		return d.drv.Close()
	}, PriorityHigh)
	if err != nil {
		return fmt.Errorf("device: close driver: %w", err)
	}
	slogger().Info("device: closed")
	return nil
}
