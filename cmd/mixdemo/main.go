// Command mixdemo composites a few layers with the mixer and saves the
// result as an image. The output format follows the file extension.
package main

import (
	"context"
	"flag"
	"image"
	"log"
	"log/slog"
	"os"

	"github.com/disintegration/imaging"
	"golang.org/x/image/math/f64"

	"github.com/gogpu/mixer"
	"github.com/gogpu/mixer/frame"
)

func main() {
	var (
		width   = flag.Int("width", 640, "output width")
		height  = flag.Int("height", 360, "output height")
		output  = flag.String("output", "mix.png", "output file (.png, .jpg, .tif, .bmp or .gif)")
		input   = flag.String("input", "", "picture to key into the lower right")
		scale   = flag.Float64("scale", 1, "resize the output by this factor")
		mode    = flag.String("blend", "screen", "blend mode of the overlay layer")
		path    = flag.String("accelerator", mixer.PathAuto, "accelerator path")
		verbose = flag.Bool("v", false, "log device activity")
	)
	flag.Parse()

	if *verbose {
		mixer.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	blendMode, ok := frame.ParseBlendMode(*mode)
	if !ok {
		log.Fatalf("unknown blend mode %q", *mode)
	}

	ctx := context.Background()
	acc := mixer.NewAccelerator(*path, mixer.WithMixerOptions(mixer.WithBlendModes(true)))
	defer acc.Close(ctx)

	m, err := acc.CreateImageMixer(ctx, 1)
	if err != nil {
		log.Fatalf("Failed to create mixer: %v", err)
	}

	format := frame.NewVideoFormatDesc("demo", *width, *height, frame.FieldProgressive, 25000, 1000)
	drawBackground(ctx, m, *width, *height)
	drawOverlay(ctx, m, blendMode)
	picture, err := loadPicture(*input)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", *input, err)
	}
	drawPicture(ctx, m, picture)

	pic, err := m.Render(ctx, format, true).Get()
	if err != nil {
		log.Fatalf("Failed to render: %v", err)
	}
	defer pic.Release()

	if err := save(*output, pic.Bytes(), *width, *height, *scale); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("Mix saved to %s (%dx%d, overlay %s)\n", *output, *width, *height, blendMode)
}

// bgra fills a w x h premultiplied BGRA frame from px.
func bgra(w, h int, px func(x, y int) (b, g, r, a byte)) frame.ConstFrame {
	data := make([]byte, w*h*4)
	for y := range h {
		for x := range w {
			i := (y*w + x) * 4
			data[i], data[i+1], data[i+2], data[i+3] = px(x, y)
		}
	}
	desc := frame.NewPixelFormatDesc(frame.PixelFormatBGRA, frame.NewPlane(w, h, 4))
	return frame.NewMutableFrame(nil, []*frame.Array{frame.WrapBytes(data)}, desc, frame.InvalidChannelLayout()).Freeze()
}

func drawBackground(ctx context.Context, m *mixer.ImageMixer, w, h int) {
	bg := bgra(w, h, func(x, y int) (byte, byte, byte, byte) {
		return byte(100 + 100*y/h), byte(50 + 80*x/w), 30, 255
	})
	m.Visit(ctx, bg)
}

func drawOverlay(ctx context.Context, m *mixer.ImageMixer, mode frame.BlendMode) {
	t := frame.DefaultFrameTransform()
	t.Image.LayerDepth = 1
	t.Image.BlendMode = mode
	t.Image.FillTranslation = f64.Vec2{0.1, 0.1}
	t.Image.FillScale = f64.Vec2{0.5, 0.5}

	m.Push(t)
	defer m.Pop()
	m.Visit(ctx, bgra(64, 64, func(x, y int) (byte, byte, byte, byte) {
		return byte(x * 4), 40, byte(y * 4), 255
	}))
}

// drawPicture draws a picture in the lower right, cut to a disc by a key.
func drawPicture(ctx context.Context, m *mixer.ImageMixer, picture frame.ConstFrame) {
	t := frame.DefaultFrameTransform()
	t.Image.LayerDepth = 1
	t.Image.FillTranslation = f64.Vec2{0.55, 0.4}
	t.Image.FillScale = f64.Vec2{0.4, 0.55}
	t.Image.Opacity = 0.9
	m.Push(t)
	defer m.Pop()

	key := frame.DefaultFrameTransform()
	key.Image.IsKey = true
	m.Push(key)
	m.Visit(ctx, bgra(32, 32, func(x, y int) (byte, byte, byte, byte) {
		dx, dy := x-16, y-16
		if dx*dx+dy*dy < 14*14 {
			return 255, 255, 255, 255
		}
		return 0, 0, 0, 0
	}))
	m.Pop()

	m.Visit(ctx, picture)
}

// loadPicture decodes name into a premultiplied BGRA frame, or returns a
// generated pattern when name is empty.
func loadPicture(name string) (frame.ConstFrame, error) {
	if name == "" {
		return bgra(32, 32, func(x, y int) (byte, byte, byte, byte) {
			return 220, byte(x * 8), byte(y * 8), 255
		}), nil
	}
	img, err := imaging.Open(name, imaging.AutoOrientation(true))
	if err != nil {
		return frame.ConstFrame{}, err
	}
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	return bgra(w, h, func(x, y int) (byte, byte, byte, byte) {
		c := src.NRGBAAt(x, y)
		pm := func(v uint8) byte { return byte((uint32(v)*uint32(c.A) + 127) / 255) }
		return pm(c.B), pm(c.G), pm(c.R), c.A
	}), nil
}

// save writes straight-alpha BGRA pixels to name, resized by scale.
func save(name string, pix []byte, w, h int, scale float64) error {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i+4 <= len(pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = pix[i+2], pix[i+1], pix[i], pix[i+3]
	}

	var out image.Image = img
	if scale > 0 && scale != 1 {
		out = imaging.Resize(img, int(float64(w)*scale), 0, imaging.Lanczos)
	}
	return imaging.Save(out, name)
}
