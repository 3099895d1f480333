package blend

// rgb is a straight color with components in [0, 1], used by the
// non-separable modes.
type rgb [3]float64

func unpremul(r, g, b, a byte) rgb {
	af := float64(a) / 255
	return rgb{
		min(1, float64(r)/255/af),
		min(1, float64(g)/255/af),
		min(1, float64(b)/255/af),
	}
}

// lum is the BT.601 luminance used by the hue, saturation, color and
// luminosity modes.
func (c rgb) lum() float64 {
	return 0.30*c[0] + 0.59*c[1] + 0.11*c[2]
}

func (c rgb) sat() float64 {
	return max(c[0], c[1], c[2]) - min(c[0], c[1], c[2])
}

// clip pulls out-of-range components toward the luminance, keeping it.
func (c rgb) clip() rgb {
	l := c.lum()
	lo := min(c[0], c[1], c[2])
	hi := max(c[0], c[1], c[2])
	for i, v := range c {
		if lo < 0 {
			v = l + (v-l)*l/(l-lo)
		}
		if hi > 1 {
			v = l + (v-l)*(1-l)/(hi-l)
		}
		c[i] = v
	}
	return c
}

func (c rgb) withLum(l float64) rgb {
	d := l - c.lum()
	return rgb{c[0] + d, c[1] + d, c[2] + d}.clip()
}

// withSat rescales c to saturation s. Grays have no hue and come back
// unchanged.
func (c rgb) withSat(s float64) rgb {
	lo, mid, hi := 0, 1, 2
	if c[lo] > c[mid] {
		lo, mid = mid, lo
	}
	if c[mid] > c[hi] {
		mid, hi = hi, mid
	}
	if c[lo] > c[mid] {
		lo, mid = mid, lo
	}
	span := c[hi] - c[lo]
	if span <= 0 {
		return c
	}
	var out rgb
	out[mid] = (c[mid] - c[lo]) * s / span
	out[hi] = s
	return out
}

// SetSat is the W3C SetSat operation on a straight color.
func SetSat(r, g, b, s float64) (float64, float64, float64) {
	c := rgb{r, g, b}.withSat(s)
	return c[0], c[1], c[2]
}

type hslFunc func(src, dst rgb) rgb

func hue(src, dst rgb) rgb        { return src.withSat(dst.sat()).withLum(dst.lum()) }
func saturation(src, dst rgb) rgb { return dst.withSat(src.sat()).withLum(dst.lum()) }
func color(src, dst rgb) rgb      { return src.withLum(dst.lum()) }
func luminosity(src, dst rgb) rgb { return dst.withLum(src.lum()) }

var (
	blendHue        = nonSeparable(hue)
	blendSaturation = nonSeparable(saturation)
	blendColor      = nonSeparable(color)
	blendLuminosity = nonSeparable(luminosity)
)

// nonSeparable composites with a mode that mixes the color channels, in
// the same source-over form as separable modes.
func nonSeparable(f hslFunc) Func {
	return func(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
		if sa == 0 {
			return dr, dg, db, da
		}
		if da == 0 {
			return sr, sg, sb, sa
		}
		saf, daf := float64(sa)/255, float64(da)/255
		mixed := f(unpremul(sr, sg, sb, sa), unpremul(dr, dg, db, da))

		out := func(s, d byte, m float64) byte {
			return fromUnit((1-saf)*float64(d)/255 + (1-daf)*float64(s)/255 + saf*daf*m)
		}
		return out(sr, dr, mixed[0]), out(sg, dg, mixed[1]), out(sb, db, mixed[2]),
			addClamp(sa, mulDiv255(da, 255-sa))
	}
}
