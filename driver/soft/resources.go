package soft

import (
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/mixer/driver"
)

// texture is host memory laid out like a tightly packed GPU texture.
type texture struct {
	width     int
	height    int
	stride    int
	mipmapped bool
	format    gputypes.TextureFormat
	usage     gputypes.TextureUsage
	label     string
	pix       []byte

	destroyed atomic.Bool
}

func (t *texture) Width() int      { return t.width }
func (t *texture) Height() int     { return t.height }
func (t *texture) Stride() int     { return t.stride }
func (t *texture) Mipmapped() bool { return t.mipmapped }
func (t *texture) SizeBytes() int  { return len(t.pix) }

// Format returns the GPU format the texture stands in for.
func (t *texture) Format() gputypes.TextureFormat { return t.format }

// Pix returns the texel bytes, row by row.
func (t *texture) Pix() []byte { return t.pix }

func (t *texture) Clear() {
	clear(t.pix)
}

func (t *texture) Destroy() {
	if t.destroyed.CompareAndSwap(false, true) {
		t.pix = nil
	}
}

// buffer is a persistently mapped transfer buffer.
type buffer struct {
	usage driver.Usage
	label string
	data  []byte

	destroyed atomic.Bool
}

func (b *buffer) Size() int           { return len(b.data) }
func (b *buffer) Usage() driver.Usage { return b.usage }
func (b *buffer) Bytes() []byte       { return b.data }

// Destroy marks the buffer dead. The mapped bytes stay valid for arrays that
// still reference them; the garbage collector reclaims them.
func (b *buffer) Destroy() {
	b.destroyed.Store(true)
}

// fence is signaled when created: the software driver executes commands
// synchronously.
type fence struct{}

func (fence) Wait(time.Duration) bool { return true }
func (fence) Delete()                 {}
