package mixer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"golang.org/x/image/math/f64"

	"github.com/gogpu/mixer/device"
	"github.com/gogpu/mixer/driver/soft"
	"github.com/gogpu/mixer/frame"
	"github.com/gogpu/mixer/future"
	"github.com/gogpu/mixer/internal/blend"
)

type bgra [4]byte

func newTestMixer(t *testing.T, opts ...Option) *ImageMixer {
	t.Helper()
	dev, err := device.New(context.Background(), device.WithDriver(soft.Open))
	if err != nil {
		t.Fatalf("device.New() error = %v", err)
	}
	t.Cleanup(func() { _ = dev.Close(context.Background()) })
	return NewImageMixer(dev, opts...)
}

func progressive(w, h int) frame.VideoFormatDesc {
	return frame.NewVideoFormatDesc("test", w, h, frame.FieldProgressive, 25000, 1000)
}

// imageFrame returns a single plane BGRA frame painted by px.
func imageFrame(w, h int, px func(x, y int) bgra) frame.ConstFrame {
	data := make([]byte, 0, w*h*4)
	for y := range h {
		for x := range w {
			p := px(x, y)
			data = append(data, p[:]...)
		}
	}
	desc := frame.NewPixelFormatDesc(frame.PixelFormatBGRA, frame.NewPlane(w, h, 4))
	return frame.NewMutableFrame(nil, []*frame.Array{frame.WrapBytes(data)}, desc, frame.InvalidChannelLayout()).Freeze()
}

func solidFrame(w, h int, p bgra) frame.ConstFrame {
	return imageFrame(w, h, func(int, int) bgra { return p })
}

func render(t *testing.T, m *ImageMixer, format frame.VideoFormatDesc, straighten bool) []byte {
	t.Helper()
	arr, err := m.Render(context.Background(), format, straighten).Get()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	t.Cleanup(arr.Release)
	if arr.Len() != format.Size {
		t.Fatalf("Render() returned %d bytes, want %d", arr.Len(), format.Size)
	}
	return arr.Bytes()
}

func pixelAt(buf []byte, width, x, y int) bgra {
	i := (y*width + x) * 4
	return bgra{buf[i], buf[i+1], buf[i+2], buf[i+3]}
}

func near(a, b bgra) bool {
	for i := range a {
		if d := int(a[i]) - int(b[i]); d < -1 || d > 1 {
			return false
		}
	}
	return true
}

func withLayer(mode frame.BlendMode) frame.FrameTransform {
	t := frame.DefaultFrameTransform()
	t.Image.LayerDepth = 1
	t.Image.BlendMode = mode
	return t
}

func TestRenderEmptyScene(t *testing.T) {
	m := newTestMixer(t, WithMaxFrameSize(64*64*4))

	// A layer without items is still an empty picture.
	m.Push(withLayer(frame.BlendNormal))
	m.Pop()

	format := progressive(32, 16)
	out := render(t, m, format, false)
	if !bytes.Equal(out, make([]byte, format.Size)) {
		t.Error("empty scene rendered non-zero bytes")
	}
	s := m.Device().Stats()
	if s.TextureAllocations != 0 || s.Readbacks != 0 {
		t.Errorf("empty scene used the device: %d textures, %d readbacks", s.TextureAllocations, s.Readbacks)
	}

	big := progressive(128, 128)
	if got := len(render(t, m, big, false)); got != big.Size {
		t.Errorf("blank frame larger than the recycled buffers = %d bytes, want %d", got, big.Size)
	}
}

func TestRenderEmptySceneFramesAreIndependent(t *testing.T) {
	m := newTestMixer(t, WithMaxFrameSize(1<<20))
	ctx := context.Background()
	format := progressive(4, 4)

	first, err := m.Render(ctx, format, false).Get()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	first.Bytes()[0] = 0xff

	second, err := m.Render(ctx, format, false).Get()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := second.Bytes()[0]; got != 0 {
		t.Errorf("blank frame after a consumer write: byte 0 = %#x, want 0", got)
	}

	// A released buffer comes back zeroed.
	first.Release()
	second.Release()
	third, err := m.Render(ctx, format, false).Get()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	defer third.Release()
	if !bytes.Equal(third.Bytes(), make([]byte, format.Size)) {
		t.Error("recycled blank frame is not zeroed")
	}
}

func TestVisitSkipsFrames(t *testing.T) {
	m := newTestMixer(t)
	ctx := context.Background()

	invalid := frame.NewMutableFrame(nil, nil, frame.NewPixelFormatDesc(frame.PixelFormatInvalid), frame.InvalidChannelLayout()).Freeze()
	noPlanes := frame.NewMutableFrame(nil, nil, frame.NewPixelFormatDesc(frame.PixelFormatBGRA), frame.InvalidChannelLayout()).Freeze()
	m.Visit(ctx, invalid)
	m.Visit(ctx, noPlanes)
	m.Visit(ctx, frame.EmptyFrame())

	masked := frame.DefaultFrameTransform()
	masked.Image.FieldMode = frame.FieldEmpty
	m.Push(masked)
	m.Visit(ctx, solidFrame(2, 2, bgra{1, 2, 3, 255}))
	m.Pop()

	render(t, m, progressive(2, 2), false)
	if s := m.Device().Stats(); s.Uploads != 0 || s.TextureAllocations != 0 {
		t.Errorf("skipped frames reached the device: %d uploads, %d textures", s.Uploads, s.TextureAllocations)
	}
}

func TestRenderNonOverlappingItems(t *testing.T) {
	m := newTestMixer(t)
	ctx := context.Background()
	blue := bgra{255, 0, 0, 255}

	left := frame.DefaultFrameTransform()
	left.Image.FillScale = f64.Vec2{0.5, 1}
	right := left
	right.Image.FillTranslation = f64.Vec2{0.5, 0}

	m.Push(withLayer(frame.BlendNormal))
	m.Push(left)
	m.Visit(ctx, imageFrame(2, 2, func(x, y int) bgra { return bgra{byte(x), byte(y), 255, 255} }))
	m.Pop()
	m.Push(right)
	m.Visit(ctx, solidFrame(2, 2, blue))
	m.Pop()
	m.Pop()

	out := render(t, m, progressive(4, 2), false)
	for y := range 2 {
		for x := range 4 {
			want := blue
			if x < 2 {
				want = bgra{byte(x), byte(y), 255, 255}
			}
			if got := pixelAt(out, 4, x, y); got != want {
				t.Errorf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestRenderRotatesInDisplaySpace(t *testing.T) {
	m := newTestMixer(t)
	ctx := context.Background()
	white := bgra{255, 255, 255, 255}

	turned := frame.DefaultFrameTransform()
	turned.Image.FillTranslation = f64.Vec2{0.375, 0.25}
	turned.Image.FillScale = f64.Vec2{0.25, 0.5}
	turned.Image.Angle = math.Pi / 2
	turned.Image.Anchor = f64.Vec2{0.5, 0.5}

	m.Push(turned)
	m.Visit(ctx, solidFrame(2, 2, white))
	m.Pop()

	// 8x8 pixels shown at 2:1, so the item is square on screen.
	format := progressive(8, 8)
	format.SquareWidth, format.SquareHeight = 16, 8
	out := render(t, m, format, false)
	if got := pixelAt(out, 8, 4, 2); got != white {
		t.Errorf("pixel (4,2) = %v, want %v", got, white)
	}
	if got := pixelAt(out, 8, 2, 4); got != (bgra{}) {
		t.Errorf("pixel (2,4) = %v, want transparent", got)
	}
}

func TestRenderInterlaced(t *testing.T) {
	m := newTestMixer(t)
	ctx := context.Background()
	red := bgra{0, 0, 255, 255}
	green := bgra{0, 255, 0, 255}

	upper := frame.DefaultFrameTransform()
	upper.Image.FieldMode = frame.FieldUpper
	lower := frame.DefaultFrameTransform()
	lower.Image.FieldMode = frame.FieldLower

	m.Push(upper)
	m.Visit(ctx, solidFrame(2, 4, red))
	m.Pop()
	m.Push(lower)
	m.Visit(ctx, solidFrame(2, 4, green))
	m.Pop()

	format := frame.NewVideoFormatDesc("test", 2, 4, frame.FieldUpper, 25000, 1000)
	out := render(t, m, format, false)
	for y := range 4 {
		want := red
		if y%2 == 1 {
			want = green
		}
		for x := range 2 {
			if got := pixelAt(out, 2, x, y); got != want {
				t.Errorf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestRenderIsolatedLayerMatchesDirectBlend(t *testing.T) {
	bg := bgra{60, 120, 180, 255}
	sources := []bgra{
		{200, 100, 50, 255},
		{64, 32, 16, 128},
	}
	modes := []frame.BlendMode{
		frame.BlendMultiply, frame.BlendScreen, frame.BlendDifference,
		frame.BlendOverlay, frame.BlendLuminosity,
	}
	for _, mode := range modes {
		for _, src := range sources {
			t.Run(mode.String(), func(t *testing.T) {
				m := newTestMixer(t, WithBlendModes(true))
				ctx := context.Background()

				m.Visit(ctx, solidFrame(2, 2, bg))
				m.Push(withLayer(mode))
				m.Visit(ctx, solidFrame(2, 2, src))
				m.Pop()

				r, g, b, a := blend.For(mode)(src[2], src[1], src[0], src[3], bg[2], bg[1], bg[0], bg[3])
				want := bgra{b, g, r, a}
				if got := pixelAt(render(t, m, progressive(2, 2), false), 2, 1, 1); got != want {
					t.Errorf("%s of %v over %v = %v, want %v", mode, src, bg, got, want)
				}
			})
		}
	}
}

func TestRenderBlendModesDisabled(t *testing.T) {
	m := newTestMixer(t)
	ctx := context.Background()
	src := bgra{200, 100, 50, 255}

	m.Visit(ctx, solidFrame(2, 2, bgra{60, 120, 180, 255}))
	m.Push(withLayer(frame.BlendMultiply))
	m.Visit(ctx, solidFrame(2, 2, src))
	m.Pop()

	if got := pixelAt(render(t, m, progressive(2, 2), false), 2, 0, 0); got != src {
		t.Errorf("pixel = %v, want the source %v composited normally", got, src)
	}
}

// halfKey is opaque white on the left half and transparent on the right.
func halfKey(w, h int) frame.ConstFrame {
	return imageFrame(w, h, func(x, _ int) bgra {
		if x < w/2 {
			return bgra{255, 255, 255, 255}
		}
		return bgra{}
	})
}

func keyTransform() frame.FrameTransform {
	t := frame.DefaultFrameTransform()
	t.Image.IsKey = true
	return t
}

func TestRenderLocalKey(t *testing.T) {
	m := newTestMixer(t)
	ctx := context.Background()
	red := bgra{0, 0, 255, 255}

	m.Push(withLayer(frame.BlendNormal))
	m.Push(keyTransform())
	m.Visit(ctx, halfKey(4, 2))
	m.Pop()
	m.Visit(ctx, solidFrame(4, 2, red))
	// The key is consumed by the first item after it.
	m.Push(func() frame.FrameTransform {
		t := frame.DefaultFrameTransform()
		t.Image.FillTranslation = f64.Vec2{0, 0.5}
		t.Image.FillScale = f64.Vec2{1, 0.5}
		return t
	}())
	m.Visit(ctx, solidFrame(4, 1, red))
	m.Pop()
	m.Pop()

	out := render(t, m, progressive(4, 2), false)
	tests := []struct {
		x, y int
		want bgra
	}{
		{0, 0, red},
		{1, 0, red},
		{2, 0, bgra{}},
		{3, 0, bgra{}},
		{0, 1, red},
		{3, 1, red},
	}
	for _, tt := range tests {
		if got := pixelAt(out, 4, tt.x, tt.y); got != tt.want {
			t.Errorf("pixel (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestRenderLayerKey(t *testing.T) {
	m := newTestMixer(t)
	ctx := context.Background()
	red := bgra{0, 0, 255, 255}

	m.Push(withLayer(frame.BlendNormal))
	m.Push(keyTransform())
	m.Visit(ctx, halfKey(4, 2))
	m.Pop()
	m.Pop()

	m.Push(withLayer(frame.BlendNormal))
	m.Visit(ctx, solidFrame(4, 2, red))
	m.Pop()

	out := render(t, m, progressive(4, 2), false)
	if got := pixelAt(out, 4, 0, 0); got != red {
		t.Errorf("keyed-in pixel = %v, want %v", got, red)
	}
	if got := pixelAt(out, 4, 3, 1); got != (bgra{}) {
		t.Errorf("keyed-out pixel = %v, want transparent", got)
	}
}

func TestRenderMix(t *testing.T) {
	m := newTestMixer(t)
	ctx := context.Background()

	half := frame.DefaultFrameTransform()
	half.Image.IsMix = true
	half.Image.Opacity = 0.5

	m.Push(withLayer(frame.BlendNormal))
	m.Push(half)
	m.Visit(ctx, solidFrame(2, 2, bgra{0, 0, 255, 255}))
	m.Visit(ctx, solidFrame(2, 2, bgra{255, 0, 0, 255}))
	m.Pop()
	m.Pop()

	want := bgra{128, 0, 128, 255}
	if got := pixelAt(render(t, m, progressive(2, 2), false), 2, 1, 0); !near(got, want) {
		t.Errorf("crossfade pixel = %v, want %v", got, want)
	}
}

func TestRenderStraightAlpha(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		straighten bool
		want       bgra
	}{
		{"premultiplied", nil, false, bgra{0, 0, 128, 128}},
		{"straighten", nil, true, bgra{0, 0, 255, 128}},
		{"option", []Option{WithStraightAlpha(true)}, false, bgra{0, 0, 255, 128}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMixer(t, tt.opts...)
			m.Visit(context.Background(), solidFrame(2, 2, bgra{0, 0, 128, 128}))
			if got := pixelAt(render(t, m, progressive(2, 2), tt.straighten), 2, 0, 0); got != tt.want {
				t.Errorf("pixel = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderFailureSendsBlank(t *testing.T) {
	var logs syncBuffer
	orig := Logger()
	SetLogger(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { SetLogger(orig) })

	m := newTestMixer(t)
	desc := frame.NewPixelFormatDesc(frame.PixelFormatBGRA, frame.NewPlane(2, 2, 4))
	mf := frame.NewMutableFrame(nil, nil, desc, frame.InvalidChannelLayout())
	mf.SetOpaque([]*future.Future[*device.Texture]{future.Failed[*device.Texture](errors.New("upload lost"))})
	m.Visit(context.Background(), mf.Freeze())
	m.Visit(context.Background(), solidFrame(2, 2, bgra{1, 2, 3, 255}))

	format := progressive(2, 2)
	if out := render(t, m, format, false); !bytes.Equal(out, make([]byte, format.Size)) {
		t.Errorf("failed render = %v, want a blank frame", out)
	}
	if !strings.Contains(logs.String(), "render failed") {
		t.Errorf("logs = %q, want a render failure warning", logs.String())
	}

	// Owned textures of the failed frame went back to the pool.
	s := m.Device().Stats()
	if s.Textures != s.PooledTextures {
		t.Errorf("Stats() = %d live %d pooled textures, want all pooled", s.Textures, s.PooledTextures)
	}
}

func TestRenderClosedDeviceSendsBlank(t *testing.T) {
	m := newTestMixer(t)
	m.Visit(context.Background(), solidFrame(2, 2, bgra{1, 2, 3, 255}))
	if err := m.Device().Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	format := progressive(2, 2)
	if out := render(t, m, format, false); !bytes.Equal(out, make([]byte, format.Size)) {
		t.Error("render on a closed device did not return a blank frame")
	}
}

func TestRenderBorrowedTextures(t *testing.T) {
	m := newTestMixer(t)
	ctx := context.Background()
	px := bgra{9, 8, 7, 255}

	src := bytes.Repeat(px[:], 4)
	uploaded := m.Device().UploadAsync(ctx, frame.WrapBytes(src), 2, 2, 4, false)
	desc := frame.NewPixelFormatDesc(frame.PixelFormatBGRA, frame.NewPlane(2, 2, 4))
	mf := frame.NewMutableFrame(nil, nil, desc, frame.InvalidChannelLayout())
	mf.SetOpaque([]*future.Future[*device.Texture]{uploaded})
	m.Visit(ctx, mf.Freeze())

	if got := pixelAt(render(t, m, progressive(2, 2), false), 2, 1, 1); got != px {
		t.Errorf("pixel = %v, want %v", got, px)
	}
	tex, err := uploaded.Get()
	if err != nil {
		t.Fatal(err)
	}
	if tex.Refs() != 1 {
		t.Errorf("borrowed texture refs = %d, want 1", tex.Refs())
	}
	tex.Release()
}

func TestRenderReleasesTextures(t *testing.T) {
	m := newTestMixer(t)
	ctx := context.Background()

	var allocs uint64
	for i := range 3 {
		m.Push(withLayer(frame.BlendScreen))
		m.Visit(ctx, solidFrame(4, 4, bgra{10, 20, 30, 255}))
		m.Push(keyTransform())
		m.Visit(ctx, halfKey(4, 4))
		m.Pop()
		m.Pop()
		render(t, m, progressive(4, 4), false)

		s := m.Device().Stats()
		if s.Textures != s.PooledTextures {
			t.Fatalf("Stats() = %d live %d pooled textures, want all pooled", s.Textures, s.PooledTextures)
		}
		if i == 0 {
			allocs = s.TextureAllocations
		} else if s.TextureAllocations != allocs {
			t.Errorf("frame %d allocated %d textures, want the pooled ones reused", i, s.TextureAllocations-allocs)
		}
	}
}

func TestCreateFrame(t *testing.T) {
	m := newTestMixer(t)
	ctx := context.Background()

	if _, err := m.CreateFrame(ctx, nil, frame.NewPixelFormatDesc(frame.PixelFormatYCbCr), frame.InvalidChannelLayout()); !errors.Is(err, frame.ErrInvalidPixelFormat) {
		t.Errorf("CreateFrame(invalid) error = %v, want ErrInvalidPixelFormat", err)
	}

	desc := frame.NewPixelFormatDesc(frame.PixelFormatBGRA, frame.NewPlane(2, 2, 4))
	mf, err := m.CreateFrame(ctx, "producer", desc, frame.StereoChannelLayout())
	if err != nil {
		t.Fatalf("CreateFrame() error = %v", err)
	}
	if mf.Tag() != "producer" {
		t.Errorf("Tag() = %v, want producer", mf.Tag())
	}
	px := bgra{40, 50, 60, 255}
	copy(mf.ImageData(0), bytes.Repeat(px[:], 4))
	f := mf.Freeze()
	defer f.Release()

	if _, ok := f.ImageData(0).Storage().(*device.Buffer); !ok {
		t.Fatalf("plane storage = %T, want *device.Buffer", f.ImageData(0).Storage())
	}

	m.Visit(ctx, f)
	if got := pixelAt(render(t, m, progressive(2, 2), false), 2, 0, 1); got != px {
		t.Errorf("pixel = %v, want %v", got, px)
	}
	if s := m.Device().Stats(); s.CacheMisses != 1 || s.Uploads != 1 {
		t.Errorf("Stats() = %d misses %d uploads, want 1 and 1", s.CacheMisses, s.Uploads)
	}

	size, err := m.MaxFrameSize(ctx)
	if err != nil || size <= 0 {
		t.Errorf("MaxFrameSize() = %d, %v, want positive", size, err)
	}
}
