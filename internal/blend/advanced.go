package blend

import "math"

// separableBlend applies a per-channel blend function B(Cb, Cs) on
// unpremultiplied backdrop and source colors and composites the result:
//
//	Result = (1 - Sa) * D + (1 - Da) * S + Sa * Da * B(Cb, Cs)
//	Alpha  = Sa + Da * (1 - Sa)
func separableBlend(sr, sg, sb, sa, dr, dg, db, da byte, blendChan func(cb, cs float64) float64) (byte, byte, byte, byte) {
	if sa == 0 {
		return dr, dg, db, da
	}
	if da == 0 {
		return sr, sg, sb, sa
	}

	saf, daf := toUnit(sa), toUnit(da)
	mix := func(s, d byte) byte {
		sf, df := toUnit(s), toUnit(d)
		b := blendChan(clampUnit(df/daf), clampUnit(sf/saf))
		return fromUnit((1-saf)*df + (1-daf)*sf + saf*daf*clampUnit(b))
	}
	return mix(sr, dr), mix(sg, dg), mix(sb, db), addClamp(sa, mulDiv255(da, 255-sa))
}

func clampUnit(v float64) float64 {
	return Clamp(v, 0, 1)
}

func separable(blendChan func(cb, cs float64) float64) Func {
	return func(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
		return separableBlend(sr, sg, sb, sa, dr, dg, db, da, blendChan)
	}
}

// Per-channel blend functions. cb is the backdrop, cs the source.

func multiply(cb, cs float64) float64 { return cb * cs }

func screen(cb, cs float64) float64 { return cb + cs - cb*cs }

func average(cb, cs float64) float64 { return (cb + cs) / 2 }

func lighten(cb, cs float64) float64 { return math.Max(cb, cs) }

func darken(cb, cs float64) float64 { return math.Min(cb, cs) }

func difference(cb, cs float64) float64 { return math.Abs(cb - cs) }

func negation(cb, cs float64) float64 { return 1 - math.Abs(1-cb-cs) }

func exclusion(cb, cs float64) float64 { return cb + cs - 2*cb*cs }

func linearDodge(cb, cs float64) float64 { return math.Min(1, cb+cs) }

func linearBurn(cb, cs float64) float64 { return math.Max(0, cb+cs-1) }

func phoenix(cb, cs float64) float64 { return math.Min(cb, cs) - math.Max(cb, cs) + 1 }

// hardLight is Multiply or Screen depending on the source.
func hardLight(cb, cs float64) float64 {
	if cs <= 0.5 {
		return multiply(cb, 2*cs)
	}
	return screen(cb, 2*cs-1)
}

func overlay(cb, cs float64) float64 { return hardLight(cs, cb) }

func softLight(cb, cs float64) float64 {
	if cs <= 0.5 {
		return cb - (1-2*cs)*cb*(1-cb)
	}
	var d float64
	if cb <= 0.25 {
		d = ((16*cb-12)*cb + 4) * cb
	} else {
		d = math.Sqrt(cb)
	}
	return cb + (2*cs-1)*(d-cb)
}

func colorDodge(cb, cs float64) float64 {
	if cb == 0 {
		return 0
	}
	if cs >= 1 {
		return 1
	}
	return math.Min(1, cb/(1-cs))
}

func colorBurn(cb, cs float64) float64 {
	if cb >= 1 {
		return 1
	}
	if cs <= 0 {
		return 0
	}
	return 1 - math.Min(1, (1-cb)/cs)
}

func linearLight(cb, cs float64) float64 {
	if cs < 0.5 {
		return linearBurn(cb, 2*cs)
	}
	return linearDodge(cb, 2*(cs-0.5))
}

func vividLight(cb, cs float64) float64 {
	if cs < 0.5 {
		return colorBurn(cb, 2*cs)
	}
	return colorDodge(cb, 2*(cs-0.5))
}

func pinLight(cb, cs float64) float64 {
	if cs < 0.5 {
		return darken(cb, 2*cs)
	}
	return lighten(cb, 2*(cs-0.5))
}

func hardMix(cb, cs float64) float64 {
	if vividLight(cb, cs) < 0.5 {
		return 0
	}
	return 1
}

func reflect(cb, cs float64) float64 {
	if cs >= 1 {
		return 1
	}
	return math.Min(1, cb*cb/(1-cs))
}

func glow(cb, cs float64) float64 { return reflect(cs, cb) }

var (
	blendMultiply    = separable(multiply)
	blendScreen      = separable(screen)
	blendAverage     = separable(average)
	blendLighten     = separable(lighten)
	blendDarken      = separable(darken)
	blendDifference  = separable(difference)
	blendNegation    = separable(negation)
	blendExclusion   = separable(exclusion)
	blendLinearDodge = separable(linearDodge)
	blendLinearBurn  = separable(linearBurn)
	blendPhoenix     = separable(phoenix)
	blendHardLight   = separable(hardLight)
	blendOverlay     = separable(overlay)
	blendSoftLight   = separable(softLight)
	blendColorDodge  = separable(colorDodge)
	blendColorBurn   = separable(colorBurn)
	blendLinearLight = separable(linearLight)
	blendVividLight  = separable(vividLight)
	blendPinLight    = separable(pinLight)
	blendHardMix     = separable(hardMix)
	blendReflect     = separable(reflect)
	blendGlow        = separable(glow)
)
