package device

import (
	"context"
	"sync/atomic"
	"weak"

	"github.com/gogpu/mixer/driver"
	"github.com/gogpu/mixer/internal/executor"
)

// Texture is a reference-counted handle to a pooled device texture.
//
// A Texture starts with one reference. Releasing the last reference
// returns the native texture to the device's pool; the handle must not be
// used afterwards. Extra releases are ignored.
type Texture struct {
	dev    *Device
	native driver.Texture
	key    textureKey
	refs   atomic.Int32
}

func (d *Device) wrapTexture(native driver.Texture, key textureKey) *Texture {
	t := &Texture{dev: d, native: native, key: key}
	t.refs.Store(1)
	return t
}

func (t *Texture) Width() int      { return t.key.width }
func (t *Texture) Height() int     { return t.key.height }
func (t *Texture) Stride() int     { return t.key.stride }
func (t *Texture) Mipmapped() bool { return t.key.mipmapped }

// SizeBytes returns width * height * stride.
func (t *Texture) SizeBytes() int { return t.key.size() }

// Native returns the driver texture. It is only valid on the device
// context while the handle is referenced.
func (t *Texture) Native() driver.Texture { return t.native }

// Retain adds a reference and returns t.
func (t *Texture) Retain() *Texture {
	t.refs.Add(1)
	return t
}

// Release drops a reference.
func (t *Texture) Release() {
	if release(&t.refs) {
		t.dev.recycleTexture(t.native, t.key)
	}
}

// Refs returns the current reference count.
func (t *Texture) Refs() int { return int(t.refs.Load()) }

// Buffer is a reference-counted handle to a pooled transfer buffer.
//
// Buffers may leave the device: readback arrays hand their bytes to
// consumers that can outlive it. The handle therefore references the
// device weakly, and a buffer released after the device closed is dropped
// instead of pooled.
type Buffer struct {
	dev    weak.Pointer[Device]
	native driver.Buffer
	key    bufferKey
	refs   atomic.Int32
}

func (d *Device) wrapBuffer(native driver.Buffer, key bufferKey) *Buffer {
	b := &Buffer{dev: d.self, native: native, key: key}
	b.refs.Store(1)
	return b
}

func (b *Buffer) Size() int           { return b.key.size }
func (b *Buffer) Usage() driver.Usage { return b.key.usage }

// Bytes returns the mapped memory of the buffer.
func (b *Buffer) Bytes() []byte { return b.native.Bytes() }

// Native returns the driver buffer.
func (b *Buffer) Native() driver.Buffer { return b.native }

// Retain adds a reference and returns b.
func (b *Buffer) Retain() *Buffer {
	b.refs.Add(1)
	return b
}

// Release drops a reference. The last release evicts the upload cache
// entry keyed by the buffer and returns it to the pool, both on the device
// context at high priority.
func (b *Buffer) Release() {
	if !release(&b.refs) {
		return
	}
	d := b.dev.Value()
	if d == nil || d.closed.Load() {
		slogger().Warn("device: buffer outlived device", "size", b.key.size, "usage", b.key.usage)
		return
	}
	native, key := b.native, b.key
	err := d.exec.Post(func(context.Context) {
		d.evict(native)
		if !d.buffers.put(key, native) {
			d.destroyBuffer(native)
		}
	}, executor.High)
	if err != nil {
		slogger().Warn("device: buffer outlived device", "size", b.key.size, "usage", b.key.usage)
	}
}

// Refs returns the current reference count.
func (b *Buffer) Refs() int { return int(b.refs.Load()) }

// release decrements refs and reports whether it dropped the last
// reference. It never goes below zero.
func release(refs *atomic.Int32) bool {
	for {
		n := refs.Load()
		if n <= 0 {
			return false
		}
		if refs.CompareAndSwap(n, n-1) {
			return n == 1
		}
	}
}
