package blend

import "golang.org/x/exp/constraints"

// div255 divides x by 255 using a shift.
//
// Formula: (x + 255) >> 8
//
// The result is exact when x is a product with 0 or 255 and within +1
// otherwise. For inputs up to 255*255 the result stays within [0, 255].
func div255(x uint16) uint16 {
	return (x + 255) >> 8
}

// mulDiv255 multiplies two bytes and divides by 255.
func mulDiv255(a, b byte) byte {
	return byte(div255(uint16(a) * uint16(b)))
}

// MulDiv255 scales a by b/255. Scaling by 255 returns a unchanged and
// scaling by 0 returns 0.
func MulDiv255(a, b byte) byte {
	return mulDiv255(a, b)
}

// addClamp adds two bytes and clamps to 255.
func addClamp(a, b byte) byte {
	sum := uint16(a) + uint16(b)
	if sum > 255 {
		return 255
	}
	return byte(sum)
}

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// toUnit converts a byte to [0, 1].
func toUnit(v byte) float64 {
	return float64(v) / 255
}

// fromUnit converts a value in [0, 1] to a byte, clamping and rounding.
func fromUnit(v float64) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return byte(v*255 + 0.5)
	}
}

// Unpremultiply returns the straight color c*255/a, rounded and clamped.
// Fully transparent pixels yield 0.
func Unpremultiply(c, a byte) byte {
	if a == 0 {
		return 0
	}
	v := (uint16(c)*255 + uint16(a)/2) / uint16(a)
	if v > 255 {
		return 255
	}
	return byte(v)
}
