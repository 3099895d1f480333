// Package blend implements compositing of premultiplied BGRA pixels.
//
// Every function takes source and destination channels as premultiplied
// bytes and returns the composited destination. Layer blend modes follow the
// W3C Compositing and Blending Level 1 formula:
//
//	Result = (1 - Sa) * D + (1 - Da) * S + Sa * Da * B(Cs, Cb)
//
// where B is evaluated on unpremultiplied colors. The mode catalog extends
// the W3C set with the photographic modes common in broadcast graphics.
//
// References:
//   - Porter-Duff: "Compositing Digital Images" (1984)
//   - W3C Compositing and Blending Level 1: https://www.w3.org/TR/compositing-1/
package blend

import "github.com/gogpu/mixer/frame"

// Func composites a source pixel onto a destination pixel.
// All values are premultiplied alpha, 0-255.
type Func func(sr, sg, sb, sa, dr, dg, db, da byte) (r, g, b, a byte)

var funcs = map[frame.BlendMode]Func{
	frame.BlendNormal:      Over,
	frame.BlendLighten:     blendLighten,
	frame.BlendDarken:      blendDarken,
	frame.BlendMultiply:    blendMultiply,
	frame.BlendAverage:     blendAverage,
	frame.BlendAdd:         blendLinearDodge,
	frame.BlendSubtract:    blendLinearBurn,
	frame.BlendDifference:  blendDifference,
	frame.BlendNegation:    blendNegation,
	frame.BlendExclusion:   blendExclusion,
	frame.BlendScreen:      blendScreen,
	frame.BlendOverlay:     blendOverlay,
	frame.BlendSoftLight:   blendSoftLight,
	frame.BlendHardLight:   blendHardLight,
	frame.BlendColorDodge:  blendColorDodge,
	frame.BlendColorBurn:   blendColorBurn,
	frame.BlendLinearDodge: blendLinearDodge,
	frame.BlendLinearBurn:  blendLinearBurn,
	frame.BlendLinearLight: blendLinearLight,
	frame.BlendVividLight:  blendVividLight,
	frame.BlendPinLight:    blendPinLight,
	frame.BlendHardMix:     blendHardMix,
	frame.BlendReflect:     blendReflect,
	frame.BlendGlow:        blendGlow,
	frame.BlendPhoenix:     blendPhoenix,
	frame.BlendHue:         blendHue,
	frame.BlendSaturation:  blendSaturation,
	frame.BlendColor:       blendColor,
	frame.BlendLuminosity:  blendLuminosity,
}

// For returns the compositing function of mode. Unknown modes composite
// with Over.
func For(mode frame.BlendMode) Func {
	if f, ok := funcs[mode]; ok {
		return f
	}
	return Over
}
