package device

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/mixer/driver"
	"github.com/gogpu/mixer/frame"
	"github.com/gogpu/mixer/future"
)

// minCopyChunk is the smallest range a single goroutine copies.
const minCopyChunk = 1 << 20

// UploadAsync copies the first width*height*stride bytes of src into a
// pooled texture on the device context.
//
// When src is backed by a device write buffer, as arrays from CreateArray
// are, the buffer is uploaded directly and the result is cached under it:
// uploading the same buffer again returns the cached texture until the
// buffer is released. Other sources are first copied into a pooled write
// buffer.
func (d *Device) UploadAsync(ctx context.Context, src *frame.Array, width, height, stride int, mipmapped bool) *future.Future[*Texture] {
	if d.closed.Load() {
		return future.Failed[*Texture](ErrClosed)
	}
	size := width * height * stride
	if width <= 0 || height <= 0 || stride < 1 || src.Len() < size {
		return future.Failed[*Texture](fmt.Errorf("%w: upload of %d bytes into %dx%d stride %d",
			ErrInvalidSize, src.Len(), width, height, stride))
	}

	buf, shared := src.Storage().(*Buffer)
	if shared && (buf.Usage() != driver.UsageWriteOnly || buf.Size() < size || buf.Refs() == 0) {
		shared = false
	}
	if shared {
		buf.Retain()
	} else {
		var err error
		if buf, err = d.CreateBuffer(ctx, size, driver.UsageWriteOnly); err != nil {
			return future.Failed[*Texture](err)
		}
		parallelCopy(buf.Bytes(), src.Bytes()[:size])
	}

	// The task releases buf; so does a failed submission that never ran it.
	releaseBuf := sync.OnceFunc(buf.Release)

	key := textureKey{width: width, height: height, stride: stride, mipmapped: mipmapped}
	f := Submit(ctx, d, func(ctx context.Context) (*Texture, error) {
		defer releaseBuf()

		if shared {
			if tex, ok := d.cache[buf.native]; ok && tex.key == key {
				d.counters.cacheHits.Add(1)
				return tex.Retain(), nil
			}
			d.counters.cacheMisses.Add(1)
		}

		tex, err := d.CreateTexture(ctx, width, height, stride, mipmapped, false)
		if err != nil {
			return nil, err
		}
		if err := d.drv.CopyBufferToTexture(buf.native, tex.native); err != nil {
			tex.Release()
			return nil, fmt.Errorf("device: upload: %w", err)
		}
		d.counters.uploads.Add(1)

		if shared {
			d.evict(buf.native)
			d.cache[buf.native] = tex.Retain()
			d.cacheLen.Store(int64(len(d.cache)))
		}
		return tex, nil
	}, PriorityNormal)
	if f.Ready() {
		if _, err := f.Get(); err != nil {
			releaseBuf()
		}
	}
	return f
}

// ReadbackAsync copies tex into a pooled read buffer, fences and flushes.
// Context-only.
//
// The returned future is deferred: the fence wait happens on the goroutine
// that first asks for the value, never on the device context. A wait that
// exceeds the fence timeout is logged and the buffer contents are returned
// anyway. The array keeps the buffer out of the pool until released.
func (d *Device) ReadbackAsync(ctx context.Context, tex *Texture) (*future.Future[*frame.Array], error) {
	if err := d.requireContext(ctx, "ReadbackAsync"); err != nil {
		return nil, err
	}

	buf, err := d.CreateBuffer(ctx, tex.SizeBytes(), driver.UsageReadOnly)
	if err != nil {
		return nil, err
	}
	if err := d.drv.CopyTextureToBuffer(tex.native, buf.native); err != nil {
		buf.Release()
		return nil, fmt.Errorf("device: readback: %w", err)
	}
	fence, err := d.drv.FenceSync()
	if err != nil {
		buf.Release()
		return nil, fmt.Errorf("device: fence: %w", err)
	}
	if err := d.drv.Flush(); err != nil {
		fence.Delete()
		buf.Release()
		return nil, fmt.Errorf("device: flush: %w", err)
	}
	d.counters.readbacks.Add(1)

	timeout := d.opts.fenceTimeout
	return future.Deferred(func() (*frame.Array, error) {
		start := time.Now()
		if !fence.Wait(timeout) {
			d.counters.fenceTimeouts.Add(1)
			slogger().Warn("device: fence wait timed out", "timeout", timeout)
		}
		fence.Delete()
		if elapsed := time.Since(start); elapsed > perfWarnThreshold {
			slogger().Warn("device: buffer mapping blocked", "size", buf.Size(), "elapsed", elapsed)
		}
		return frame.NewArray(buf.Bytes(), buf, buf.Release), nil
	}), nil
}

// parallelCopy copies src into dst, splitting large copies across
// GOMAXPROCS goroutines.
func parallelCopy(dst, src []byte) {
	n := len(src)
	parts := min(runtime.GOMAXPROCS(0), n/minCopyChunk)
	if parts <= 1 {
		copy(dst, src)
		return
	}

	step := (n + parts - 1) / parts
	var g errgroup.Group
	for off := 0; off < n; off += step {
		end := min(off+step, n)
		g.Go(func() error {
			copy(dst[off:end], src[off:end])
			return nil
		})
	}
	_ = g.Wait()
}
