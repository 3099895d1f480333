package mixer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/mixer/device"
	"github.com/gogpu/mixer/frame"
	"github.com/gogpu/mixer/future"
)

// ImageMixer accumulates a channel's scene frame by frame and composites it
// on a device.
//
// Thread safety: ImageMixer is safe for concurrent use, but a frame's
// Push, Visit and Pop calls must come in order from one goroutine.
type ImageMixer struct {
	dev      *device.Device
	opts     mixerOptions
	renderer renderer

	mu    sync.Mutex
	scene *scene

	blankMu sync.Mutex
	blanks  [][]byte // released blank buffers, maxFrameSize bytes each
}

// maxBlankBuffers bounds the released blank buffers a mixer keeps.
const maxBlankBuffers = 4

// NewImageMixer returns a mixer compositing on dev.
func NewImageMixer(dev *device.Device, opts ...Option) *ImageMixer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	m := &ImageMixer{
		dev:  dev,
		opts: o,
		renderer: renderer{
			dev:           dev,
			blendModes:    o.blendModes,
			straightAlpha: o.straightAlpha,
		},
		scene: newScene(),
	}
	slogger().Info("mixer: image mixer initialized", "channel", o.channel,
		"blend_modes", o.blendModes, "straight_alpha", o.straightAlpha)
	return m
}

// Push enters a transform. It opens a layer when the accumulated layer
// depth grows.
func (m *ImageMixer) Push(t frame.FrameTransform) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scene.push(t.Image)
}

// Visit adds f under the current transform. Frames without a valid pixel
// format or planes, and frames whose field mode is empty, are skipped.
//
// A frame whose Opaque value is a []*future.Future[*device.Texture] is
// already on the device and is drawn from those textures. Other frames are
// uploaded plane by plane; the uploads start immediately.
func (m *ImageMixer) Visit(ctx context.Context, f frame.ConstFrame) {
	desc := f.PixelFormatDesc()
	if desc.Format == frame.PixelFormatInvalid || len(desc.Planes) == 0 {
		return
	}
	if err := desc.Validate(); err != nil {
		slogger().Debug("mixer: skipping frame", "err", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.scene.top()
	if t.FieldMode == frame.FieldEmpty {
		return
	}
	it := item{
		desc:      desc,
		transform: t,
		geometry:  f.Geometry(),
	}
	if textures, ok := f.Opaque().([]*future.Future[*device.Texture]); ok {
		it.textures = textures
		it.borrowed = true
	} else {
		it.textures = make([]*future.Future[*device.Texture], len(desc.Planes))
		for i, p := range desc.Planes {
			it.textures[i] = m.dev.UploadAsync(ctx, f.ImageData(i), p.Width, p.Height, p.Stride, t.UseMipmap)
		}
	}
	m.scene.add(it)
}

// Pop leaves the innermost transform.
func (m *ImageMixer) Pop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scene.pop()
}

// Depth returns the number of open layers.
func (m *ImageMixer) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scene.depth()
}

// Render composites the accumulated scene into a BGRA picture of format
// and starts a new scene. Output is straight alpha when straighten or
// WithStraightAlpha is set.
//
// The returned future never fails: when compositing fails the error is
// logged and a blank picture is returned instead. A scene without items
// yields a blank picture without any device work.
func (m *ImageMixer) Render(ctx context.Context, format frame.VideoFormatDesc, straighten bool) *future.Future[*frame.Array] {
	m.mu.Lock()
	nodes, roots := m.scene.take()
	m.mu.Unlock()

	if !hasItems(nodes) {
		return future.Ready(m.blank(format))
	}

	var ran atomic.Bool
	f := device.Submit(ctx, m.dev, func(ctx context.Context) (*future.Future[*frame.Array], error) {
		ran.Store(true)
		return m.renderer.render(ctx, nodes, roots, format, straighten)
	}, device.PriorityHigh)
	if f.Ready() && !ran.Load() {
		go discardItems(nodes)
	}

	return future.Deferred(func() (*frame.Array, error) {
		arr, err := future.Flatten(f).Get()
		if err != nil {
			slogger().Warn("mixer: render failed, sending blank frame", "channel", m.opts.channel,
				"format", format.Name, "err", err)
			return m.blank(format), nil
		}
		return arr, nil
	})
}

// blank returns a zeroed picture of format. The picture owns its bytes:
// consumers may write to it. Buffers up to maxFrameSize are recycled once
// the picture is released.
func (m *ImageMixer) blank(format frame.VideoFormatDesc) *frame.Array {
	if format.Size > m.opts.maxFrameSize {
		return frame.WrapBytes(make([]byte, format.Size))
	}

	m.blankMu.Lock()
	var buf []byte
	if n := len(m.blanks); n > 0 {
		buf = m.blanks[n-1]
		m.blanks[n-1] = nil
		m.blanks = m.blanks[:n-1]
	}
	m.blankMu.Unlock()

	if buf == nil {
		buf = make([]byte, m.opts.maxFrameSize)
	}
	data := buf[:format.Size]
	clear(data)
	return frame.NewArray(data, nil, func() { m.putBlank(buf) })
}

func (m *ImageMixer) putBlank(buf []byte) {
	m.blankMu.Lock()
	defer m.blankMu.Unlock()
	if len(m.blanks) < maxBlankBuffers {
		m.blanks = append(m.blanks, buf)
	}
}

// discardItems releases the owned textures of a scene that was never
// rendered, waiting for pending uploads.
func discardItems(nodes []layer) {
	for i := range nodes {
		for _, it := range nodes[i].items {
			if it.borrowed {
				continue
			}
			for _, f := range it.textures {
				if tex, err := f.Get(); err == nil {
					tex.Release()
				}
			}
		}
	}
}

func hasItems(nodes []layer) bool {
	for i := range nodes {
		if len(nodes[i].items) > 0 {
			return true
		}
	}
	return false
}

// CreateFrame returns a frame whose planes are device write buffers, so
// visiting it uploads without copying.
func (m *ImageMixer) CreateFrame(ctx context.Context, tag any, desc frame.PixelFormatDesc, layout frame.ChannelLayout) (*frame.MutableFrame, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	planes := make([]*frame.Array, 0, len(desc.Planes))
	for _, p := range desc.Planes {
		arr, err := m.dev.CreateArray(ctx, p.Size)
		if err != nil {
			for _, a := range planes {
				a.Release()
			}
			return nil, fmt.Errorf("mixer: create frame: %w", err)
		}
		planes = append(planes, arr)
	}
	return frame.NewMutableFrame(tag, planes, desc, layout), nil
}

// MaxFrameSize returns the largest supported frame dimension.
func (m *ImageMixer) MaxFrameSize(ctx context.Context) (int, error) {
	return m.dev.MaxTextureSize(ctx)
}

// Device returns the device the mixer composites on.
func (m *ImageMixer) Device() *device.Device {
	return m.dev
}
