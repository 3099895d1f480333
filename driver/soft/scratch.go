package soft

import (
	"image"
	"sync"
)

// scratchPool reuses the intermediate images the kernel decodes and places
// sources into. Images are grouped by size.
type scratchPool struct {
	mu      sync.Mutex
	buckets map[image.Point][]*image.RGBA
	maxSize int // max images per bucket
}

func newScratchPool(maxPerBucket int) *scratchPool {
	return &scratchPool{
		buckets: make(map[image.Point][]*image.RGBA),
		maxSize: maxPerBucket,
	}
}

// get returns a zeroed image of the given size.
func (p *scratchPool) get(width, height int) *image.RGBA {
	key := image.Pt(width, height)

	p.mu.Lock()
	bucket := p.buckets[key]
	if len(bucket) > 0 {
		img := bucket[len(bucket)-1]
		p.buckets[key] = bucket[:len(bucket)-1]
		p.mu.Unlock()

		clear(img.Pix)
		return img
	}
	p.mu.Unlock()

	return image.NewRGBA(image.Rect(0, 0, width, height))
}

// put returns img for reuse. Images beyond the bucket limit are dropped.
func (p *scratchPool) put(img *image.RGBA) {
	if img == nil {
		return
	}
	key := img.Rect.Size()

	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buckets[key]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return
	}
	p.buckets[key] = append(bucket, img)
}

func (p *scratchPool) drain() {
	p.mu.Lock()
	clear(p.buckets)
	p.mu.Unlock()
}
