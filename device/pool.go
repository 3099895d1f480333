package device

import (
	"cmp"
	"slices"
	"sync"

	"github.com/gogpu/mixer/driver"
)

// pool keeps idle resources grouped by shape.
//
// Thread safety: all methods are safe for concurrent use. Resources taken
// from or handed to a pool are never touched by it.
type pool[K comparable, V any] struct {
	mu      sync.Mutex
	buckets map[K][]V
	maxSize int // max resources per bucket, 0 for unlimited
}

func newPool[K comparable, V any](maxPerBucket int) *pool[K, V] {
	return &pool[K, V]{
		buckets: make(map[K][]V),
		maxSize: maxPerBucket,
	}
}

// get pops the most recently returned resource of the bucket.
func (p *pool[K, V]) get(key K) (V, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buckets[key]
	if len(bucket) == 0 {
		var zero V
		return zero, false
	}
	v := bucket[len(bucket)-1]
	var zero V
	bucket[len(bucket)-1] = zero
	p.buckets[key] = bucket[:len(bucket)-1]
	return v, true
}

// put returns v to its bucket. It reports false when the bucket is full;
// the caller then owns v and must destroy it.
func (p *pool[K, V]) put(key K, v V) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buckets[key]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return false
	}
	p.buckets[key] = append(bucket, v)
	return true
}

// drain empties the pool and returns everything it held.
func (p *pool[K, V]) drain() []V {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []V
	for _, bucket := range p.buckets {
		out = append(out, bucket...)
	}
	clear(p.buckets)
	return out
}

// len returns the number of pooled resources.
func (p *pool[K, V]) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, bucket := range p.buckets {
		n += len(bucket)
	}
	return n
}

// counts returns the size of every non-empty bucket.
func (p *pool[K, V]) counts() map[K]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[K]int, len(p.buckets))
	for k, bucket := range p.buckets {
		if len(bucket) > 0 {
			out[k] = len(bucket)
		}
	}
	return out
}

// textureKey is the shape of a pooled texture.
type textureKey struct {
	width     int
	height    int
	stride    int
	mipmapped bool
}

func (k textureKey) size() int { return k.width * k.height * k.stride }

// bufferKey is the shape of a pooled transfer buffer.
type bufferKey struct {
	usage driver.Usage
	size  int
}

// PoolInfo describes one non-empty pool bucket.
type PoolInfo struct {
	// Kind is "texture" or "buffer".
	Kind string

	// Texture buckets.
	Width     int
	Height    int
	Stride    int
	Mipmapped bool

	// Buffer buckets.
	Usage driver.Usage

	// Size is the byte size of one resource in the bucket.
	Size  int
	Count int
}

// Info returns the pooled resources bucket by bucket. Textures come first,
// ordered by stride, mipmapping and size; then buffers by usage and size.
func (d *Device) Info() []PoolInfo {
	var out []PoolInfo
	for k, n := range d.textures.counts() {
		out = append(out, PoolInfo{
			Kind:      "texture",
			Width:     k.width,
			Height:    k.height,
			Stride:    k.stride,
			Mipmapped: k.mipmapped,
			Size:      k.size(),
			Count:     n,
		})
	}
	for k, n := range d.buffers.counts() {
		out = append(out, PoolInfo{
			Kind:  "buffer",
			Usage: k.usage,
			Size:  k.size,
			Count: n,
		})
	}
	slices.SortFunc(out, func(a, b PoolInfo) int {
		return cmp.Or(
			cmp.Compare(b.Kind, a.Kind),
			cmp.Compare(a.Stride, b.Stride),
			compareBool(a.Mipmapped, b.Mipmapped),
			cmp.Compare(a.Usage, b.Usage),
			cmp.Compare(a.Size, b.Size),
			cmp.Compare(a.Width, b.Width),
		)
	})
	return out
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}
