package device

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/mixer/driver"
)

// counters are the device's resource counters. Counts and sizes cover
// every live native resource, pooled or in use.
type counters struct {
	textureAllocs atomic.Uint64
	textures      atomic.Int64
	textureBytes  atomic.Int64

	bufferAllocs atomic.Uint64
	readBuffers  atomic.Int64
	readBytes    atomic.Int64
	writeBuffers atomic.Int64
	writeBytes   atomic.Int64

	cacheHits     atomic.Uint64
	cacheMisses   atomic.Uint64
	uploads       atomic.Uint64
	readbacks     atomic.Uint64
	fenceTimeouts atomic.Uint64
}

// addBuffer records an allocated buffer, or a destroyed one for negative
// size.
func (c *counters) addBuffer(usage driver.Usage, size int) {
	n := int64(1)
	if size < 0 {
		n = -1
	} else {
		c.bufferAllocs.Add(1)
	}
	if usage == driver.UsageReadOnly {
		c.readBuffers.Add(n)
		c.readBytes.Add(int64(size))
	} else {
		c.writeBuffers.Add(n)
		c.writeBytes.Add(int64(size))
	}
}

// Stats is a snapshot of a device's resource usage.
type Stats struct {
	// Live native textures and their total size, pooled included.
	Textures     int
	TextureBytes int64

	// Live native buffers by usage.
	ReadBuffers      int
	ReadBufferBytes  int64
	WriteBuffers     int
	WriteBufferBytes int64

	// Idle resources in the pools.
	PooledTextures int
	PooledBuffers  int

	// Native allocations since the device was created.
	TextureAllocations uint64
	BufferAllocations  uint64

	CacheEntries  int
	CacheHits     uint64
	CacheMisses   uint64
	Uploads       uint64
	Readbacks     uint64
	FenceTimeouts uint64
}

// Stats returns the current counters.
func (d *Device) Stats() Stats {
	c := &d.counters
	return Stats{
		Textures:           int(c.textures.Load()),
		TextureBytes:       c.textureBytes.Load(),
		ReadBuffers:        int(c.readBuffers.Load()),
		ReadBufferBytes:    c.readBytes.Load(),
		WriteBuffers:       int(c.writeBuffers.Load()),
		WriteBufferBytes:   c.writeBytes.Load(),
		PooledTextures:     d.textures.len(),
		PooledBuffers:      d.buffers.len(),
		TextureAllocations: c.textureAllocs.Load(),
		BufferAllocations:  c.bufferAllocs.Load(),
		CacheEntries:       int(d.cacheLen.Load()),
		CacheHits:          c.cacheHits.Load(),
		CacheMisses:        c.cacheMisses.Load(),
		Uploads:            c.uploads.Load(),
		Readbacks:          c.readbacks.Load(),
		FenceTimeouts:      c.fenceTimeouts.Load(),
	}
}

// String returns a one-line summary.
func (s Stats) String() string {
	const mb = 1 << 20
	return fmt.Sprintf("Device[%d textures %.1f MB (%d pooled), %d read %.1f MB, %d write %.1f MB (%d pooled), cache %d (%d/%d hit/miss)]",
		s.Textures, float64(s.TextureBytes)/mb, s.PooledTextures,
		s.ReadBuffers, float64(s.ReadBufferBytes)/mb,
		s.WriteBuffers, float64(s.WriteBufferBytes)/mb, s.PooledBuffers,
		s.CacheEntries, s.CacheHits, s.CacheMisses)
}
