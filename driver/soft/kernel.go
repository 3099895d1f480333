package soft

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/mixer/driver"
	"github.com/gogpu/mixer/frame"
	"github.com/gogpu/mixer/internal/blend"
)

// Luminance coefficients for saturation adjustments.
const (
	lumR = 0.2125
	lumG = 0.7154
	lumB = 0.0721
)

// minBandRows is the fewest rows a parallel band of the kernel covers.
const minBandRows = 64

var errNoTextures = errors.New("soft: draw without textures")

// Draw runs the compositing kernel for one item.
func (d *Driver) Draw(p *driver.DrawParams) error {
	if len(p.Textures) == 0 {
		return errNoTextures
	}
	bg, err := asTexture(p.Background)
	if err != nil {
		return fmt.Errorf("soft: background: %w", err)
	}
	if bg.stride != 1 && bg.stride != 4 {
		return fmt.Errorf("soft: unsupported target stride %d", bg.stride)
	}
	localKey, err := keyTexture(p.LocalKey, bg)
	if err != nil {
		return fmt.Errorf("soft: local key: %w", err)
	}
	layerKey, err := keyTexture(p.LayerKey, bg)
	if err != nil {
		return fmt.Errorf("soft: layer key: %w", err)
	}

	field := p.Transform.FieldMode
	if field == frame.FieldEmpty {
		return nil
	}

	planes := make([]*texture, len(p.Textures))
	for i, t := range p.Textures {
		if planes[i], err = asTexture(t); err != nil {
			return fmt.Errorf("soft: plane %d: %w", i, err)
		}
	}

	src := d.scratch.get(planes[0].width, planes[0].height)
	defer d.scratch.put(src)
	if err := decode(p.PixelFormat.Format, planes, src); err != nil {
		return err
	}

	placed := d.scratch.get(bg.width, bg.height)
	defer d.scratch.put(placed)
	geometry := p.Geometry
	if len(geometry.Coords) == 0 {
		geometry = frame.DefaultGeometry()
	}
	place(placed, src, p.Transform, geometry, p.AspectRatio)

	t := &p.Transform
	clip := clipRect(t, bg.width, bg.height)
	adjust := t.HasColorAdjustments()
	opacity := byte(math.Round(blend.Clamp(t.Opacity, 0, 1) * 255))
	compose := blend.For(p.BlendMode)
	if p.Keyer == driver.KeyerAdditive {
		compose = blend.Plus
	}

	d.bands(clip.y0, clip.y1, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			if !field.Covers(y) {
				continue
			}
			row := y * bg.width
			for x := clip.x0; x < clip.x1; x++ {
				i := placed.PixOffset(x, y)
				b, g, r, a := placed.Pix[i], placed.Pix[i+1], placed.Pix[i+2], placed.Pix[i+3]
				if a|b|g|r == 0 {
					continue
				}
				if adjust {
					b, g, r = adjustColor(b, g, r, a, t)
				}
				k := opacity
				if localKey != nil {
					k = blend.MulDiv255(k, localKey.pix[row+x])
				}
				if layerKey != nil {
					k = blend.MulDiv255(k, layerKey.pix[row+x])
				}
				if k != 255 {
					b, g, r, a = blend.MulDiv255(b, k), blend.MulDiv255(g, k), blend.MulDiv255(r, k), blend.MulDiv255(a, k)
				}

				if bg.stride == 1 {
					j := row + x
					luma := blend.Luma(r, g, b)
					if p.Keyer == driver.KeyerAdditive {
						bg.pix[j] = blend.KeyPlus(luma, bg.pix[j])
					} else {
						bg.pix[j] = blend.KeyOver(luma, a, bg.pix[j])
					}
					continue
				}

				j := (row + x) * 4
				px := bg.pix[j : j+4]
				nr, ng, nb, na := compose(r, g, b, a, px[2], px[1], px[0], px[3])
				px[0], px[1], px[2], px[3] = nb, ng, nr, na
			}
		}
	})
	return nil
}

// PostProcess converts a premultiplied BGRA target to straight alpha when
// straighten is set.
func (d *Driver) PostProcess(target driver.Texture, straighten bool) error {
	t, err := asTexture(target)
	if err != nil {
		return err
	}
	if !straighten || t.stride != 4 {
		return nil
	}
	d.bands(0, t.height, func(y0, y1 int) {
		for i := y0 * t.width * 4; i < y1*t.width*4; i += 4 {
			a := t.pix[i+3]
			if a == 0 || a == 255 {
				continue
			}
			t.pix[i] = blend.Unpremultiply(t.pix[i], a)
			t.pix[i+1] = blend.Unpremultiply(t.pix[i+1], a)
			t.pix[i+2] = blend.Unpremultiply(t.pix[i+2], a)
		}
	})
	return nil
}

func keyTexture(k driver.Texture, bg *texture) (*texture, error) {
	if k == nil {
		return nil, nil
	}
	t, err := asTexture(k)
	if err != nil {
		return nil, err
	}
	if t.stride != 1 || t.width != bg.width || t.height != bg.height {
		return nil, fmt.Errorf("key %dx%d stride %d does not match target %dx%d",
			t.width, t.height, t.stride, bg.width, bg.height)
	}
	return t, nil
}

type rect struct{ x0, y0, x1, y1 int }

// clipRect returns the pixels whose centers lie inside the clip rectangle.
func clipRect(t *frame.ImageTransform, w, h int) rect {
	edge := func(v float64, size int) int {
		return blend.Clamp(int(math.Ceil(v*float64(size)-0.5)), 0, size)
	}
	x0 := edge(t.ClipTranslation[0], w)
	y0 := edge(t.ClipTranslation[1], h)
	x1 := edge(t.ClipTranslation[0]+t.ClipScale[0], w)
	y1 := edge(t.ClipTranslation[1]+t.ClipScale[1], h)
	return rect{x0, y0, max(x0, x1), max(y0, y1)}
}

// adjustColor applies levels and contrast, saturation and brightness to a
// premultiplied color.
func adjustColor(b, g, r, a byte, t *frame.ImageTransform) (byte, byte, byte) {
	if a == 0 {
		return 0, 0, 0
	}
	af := float64(a) / 255
	c := [3]float64{
		math.Min(1, float64(r)/255/af),
		math.Min(1, float64(g)/255/af),
		math.Min(1, float64(b)/255/af),
	}

	if lv := t.Levels; !lv.IsIdentity() {
		span := lv.MaxInput - lv.MinInput
		for i := range c {
			v := c[i] - lv.MinInput
			if span > 0 {
				v /= span
			}
			v = blend.Clamp(v, 0, 1)
			if lv.Gamma > 0 {
				v = math.Pow(v, 1/lv.Gamma)
			}
			c[i] = lv.MinOutput + (lv.MaxOutput-lv.MinOutput)*v
		}
	}

	if t.Brightness != 1 || t.Saturation != 1 || t.Contrast != 1 {
		for i := range c {
			c[i] *= t.Brightness
		}
		lum := lumR*c[0] + lumG*c[1] + lumB*c[2]
		for i := range c {
			c[i] = lum + (c[i]-lum)*t.Saturation
			c[i] = 0.5 + (c[i]-0.5)*t.Contrast
		}
	}

	out := func(v float64) byte {
		return byte(blend.Clamp(v, 0, 1)*af*255 + 0.5)
	}
	return out(c[2]), out(c[1]), out(c[0])
}
