package blend

// Over composites source over destination.
// Formula: S + D * (1 - Sa)
func Over(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	invSa := 255 - sa
	return addClamp(sr, mulDiv255(dr, invSa)),
		addClamp(sg, mulDiv255(dg, invSa)),
		addClamp(sb, mulDiv255(db, invSa)),
		addClamp(sa, mulDiv255(da, invSa))
}

// Plus adds source and destination, clamped to 255.
// Formula: min(S + D, 255)
func Plus(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	return addClamp(sr, dr), addClamp(sg, dg), addClamp(sb, db), addClamp(sa, da)
}

// KeyOver composites a single channel key value k with coverage ka over a
// key value kd.
// Formula: k + kd * (1 - ka)
func KeyOver(k, ka, kd byte) byte {
	return addClamp(k, mulDiv255(kd, 255-ka))
}

// KeyPlus adds two key values, clamped to 255.
func KeyPlus(k, kd byte) byte {
	return addClamp(k, kd)
}

// Luma returns the BT.601 luminance of a premultiplied color, which is itself
// premultiplied by the color's alpha.
func Luma(r, g, b byte) byte {
	return byte((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}
