package frame

import (
	"golang.org/x/image/math/f64"
)

// Levels remaps the input range of each color channel, applies a gamma
// curve, then maps the result into the output range. All values are in [0,1]
// except Gamma.
type Levels struct {
	MinInput  float64
	MaxInput  float64
	Gamma     float64
	MinOutput float64
	MaxOutput float64
}

// DefaultLevels returns the identity level mapping.
func DefaultLevels() Levels {
	return Levels{MaxInput: 1, Gamma: 1, MaxOutput: 1}
}

// IsIdentity reports whether l leaves channels unchanged.
func (l Levels) IsIdentity() bool {
	return l == DefaultLevels()
}

// ImageTransform describes how one image is placed and adjusted within the
// output. Translations and scales are in normalized output coordinates,
// where (0,0) is the top-left corner and (1,1) the bottom-right.
//
// The zero value is not the identity; use DefaultImageTransform.
type ImageTransform struct {
	Opacity    float64
	Contrast   float64
	Brightness float64
	Saturation float64
	Levels     Levels

	FillTranslation f64.Vec2
	FillScale       f64.Vec2
	ClipTranslation f64.Vec2
	ClipScale       f64.Vec2

	// Angle rotates the fill rectangle clockwise, in radians, around Anchor.
	// Anchor is relative to the fill rectangle: (0,0) is its top-left
	// corner and (1,1) its bottom-right.
	Angle  float64
	Anchor f64.Vec2

	FieldMode FieldMode
	IsKey     bool
	IsMix     bool
	UseMipmap bool
	BlendMode BlendMode

	// LayerDepth counts isolated layers opened by the chain of transforms
	// this one was built from.
	LayerDepth int
}

// DefaultImageTransform returns the identity transform.
func DefaultImageTransform() ImageTransform {
	return ImageTransform{
		Opacity:    1,
		Contrast:   1,
		Brightness: 1,
		Saturation: 1,
		Levels:     DefaultLevels(),
		FillScale:  f64.Vec2{1, 1},
		ClipScale:  f64.Vec2{1, 1},
		FieldMode:  FieldProgressive,
	}
}

// Mul returns t combined with a nested transform o.
//
// Scalar adjustments multiply, flags accumulate, the field mode narrows to
// the scan lines both allow and the stronger blend mode wins. The nested
// fill and clip rectangles are placed inside t's. Angles add up; the
// rotation keeps the anchor of the innermost rotated transform.
func (t ImageTransform) Mul(o ImageTransform) ImageTransform {
	r := t
	r.Opacity *= o.Opacity
	r.Contrast *= o.Contrast
	r.Brightness *= o.Brightness
	r.Saturation *= o.Saturation

	r.Levels.MinInput = max(t.Levels.MinInput, o.Levels.MinInput)
	r.Levels.MaxInput = min(t.Levels.MaxInput, o.Levels.MaxInput)
	r.Levels.MinOutput = max(t.Levels.MinOutput, o.Levels.MinOutput)
	r.Levels.MaxOutput = min(t.Levels.MaxOutput, o.Levels.MaxOutput)
	r.Levels.Gamma *= o.Levels.Gamma

	r.FieldMode = t.FieldMode & o.FieldMode
	r.IsKey = t.IsKey || o.IsKey
	r.IsMix = t.IsMix || o.IsMix
	r.UseMipmap = t.UseMipmap || o.UseMipmap
	r.BlendMode = max(t.BlendMode, o.BlendMode)
	r.LayerDepth = t.LayerDepth + o.LayerDepth

	r.FillTranslation = f64.Vec2{
		t.FillTranslation[0] + o.FillTranslation[0]*t.FillScale[0],
		t.FillTranslation[1] + o.FillTranslation[1]*t.FillScale[1],
	}
	r.FillScale = f64.Vec2{t.FillScale[0] * o.FillScale[0], t.FillScale[1] * o.FillScale[1]}

	r.ClipTranslation = f64.Vec2{
		t.ClipTranslation[0] + o.ClipTranslation[0]*t.ClipScale[0],
		t.ClipTranslation[1] + o.ClipTranslation[1]*t.ClipScale[1],
	}
	r.ClipScale = f64.Vec2{t.ClipScale[0] * o.ClipScale[0], t.ClipScale[1] * o.ClipScale[1]}

	r.Angle = t.Angle + o.Angle
	switch {
	case o.Angle != 0 || t.Angle == 0:
		r.Anchor = o.Anchor
	case o.FillScale[0] != 0 && o.FillScale[1] != 0:
		// t's anchor, moved into the nested fill rectangle.
		r.Anchor = f64.Vec2{
			(t.Anchor[0] - o.FillTranslation[0]) / o.FillScale[0],
			(t.Anchor[1] - o.FillTranslation[1]) / o.FillScale[1],
		}
	}
	return r
}

// HasColorAdjustments reports whether levels, contrast, saturation or
// brightness differ from the identity.
func (t ImageTransform) HasColorAdjustments() bool {
	return !t.Levels.IsIdentity() || t.Contrast != 1 || t.Saturation != 1 || t.Brightness != 1
}

// FrameTransform is the per-frame transform pushed onto the mixer. Only the
// image part is consumed by the compositor.
type FrameTransform struct {
	Image ImageTransform
}

// DefaultFrameTransform returns the identity frame transform.
func DefaultFrameTransform() FrameTransform {
	return FrameTransform{Image: DefaultImageTransform()}
}

// Mul returns t combined with a nested transform o.
func (t FrameTransform) Mul(o FrameTransform) FrameTransform {
	return FrameTransform{Image: t.Image.Mul(o.Image)}
}
