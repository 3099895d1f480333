package soft

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/gogpu/mixer/frame"
)

// place draws every quad of g from src into dst. Vertex coordinates are
// mapped through the fill rectangle of t and rotated by t.Angle around its
// anchor. aspect is the display aspect ratio of dst.
func place(dst, src *image.RGBA, t frame.ImageTransform, g frame.Geometry, aspect float64) {
	size := dst.Rect.Size()
	W, H := float64(size.X), float64(size.Y)
	if aspect <= 0 {
		aspect = 1
	}
	sin, cos := math.Sincos(t.Angle)
	anchor := f64.Vec2{
		t.FillTranslation[0] + t.Anchor[0]*t.FillScale[0],
		t.FillTranslation[1] + t.Anchor[1]*t.FillScale[1],
	}
	toTarget := func(c frame.Coord) f64.Vec2 {
		x := t.FillTranslation[0] + c.VertexX*t.FillScale[0]
		y := t.FillTranslation[1] + c.VertexY*t.FillScale[1]
		if t.Angle != 0 {
			dx, dy := (x-anchor[0])*aspect, y-anchor[1]
			x = anchor[0] + (dx*cos-dy*sin)/aspect
			y = anchor[1] + dx*sin + dy*cos
		}
		return f64.Vec2{x * W, y * H}
	}

	for _, q := range g.Quads() {
		var corners [4]f64.Vec2
		for i, c := range q {
			corners[i] = toTarget(c)
		}
		if t.Angle == 0 && axisAligned(q) {
			placeRect(dst, src, corners[0], corners[2], q[0], q[2], t.UseMipmap)
		} else {
			placeQuad(dst, src, corners, q)
		}
	}
}

// axisAligned reports whether both the vertex and texture coordinates of q
// form upright rectangles in the same orientation.
func axisAligned(q [4]frame.Coord) bool {
	return q[0].VertexY == q[1].VertexY && q[1].VertexX == q[2].VertexX &&
		q[2].VertexY == q[3].VertexY && q[3].VertexX == q[0].VertexX &&
		q[0].TextureY == q[1].TextureY && q[1].TextureX == q[2].TextureX &&
		q[2].TextureY == q[3].TextureY && q[3].TextureX == q[0].TextureX
}

// placeRect maps the texture rectangle tl..br of src onto the target
// rectangle p0..p1 with an affine transform.
func placeRect(dst, src *image.RGBA, p0, p1 f64.Vec2, tl, br frame.Coord, mipmap bool) {
	sw, sh := float64(src.Rect.Dx()), float64(src.Rect.Dy())
	u0, v0 := tl.TextureX*sw, tl.TextureY*sh
	u1, v1 := br.TextureX*sw, br.TextureY*sh
	if u0 == u1 || v0 == v1 || p0[0] == p1[0] || p0[1] == p1[1] {
		return
	}

	sx := (p1[0] - p0[0]) / (u1 - u0)
	sy := (p1[1] - p0[1]) / (v1 - v0)
	s2d := f64.Aff3{
		sx, 0, p0[0] - u0*sx,
		0, sy, p0[1] - v0*sy,
	}

	sr := image.Rect(
		int(math.Floor(min(u0, u1))), int(math.Floor(min(v0, v1))),
		int(math.Ceil(max(u0, u1))), int(math.Ceil(max(v0, v1))),
	).Intersect(src.Rect)
	if sr.Empty() {
		return
	}

	interpolator(s2d, mipmap).Transform(dst, s2d, src, sr, draw.Over, nil)
}

// interpolator picks exact copies for unscaled integer placement, a cubic
// filter when mipmapping was requested and bilinear otherwise.
func interpolator(m f64.Aff3, mipmap bool) draw.Transformer {
	unscaled := math.Abs(m[0]) == 1 && math.Abs(m[4]) == 1
	integral := m[2] == math.Trunc(m[2]) && m[5] == math.Trunc(m[5])
	switch {
	case unscaled && integral:
		return draw.NearestNeighbor
	case mipmap:
		return draw.CatmullRom
	default:
		return draw.ApproxBiLinear
	}
}

// placeQuad rasterizes an arbitrary quad by inverting its bilinear mapping
// at every covered pixel center.
func placeQuad(dst, src *image.RGBA, corners [4]f64.Vec2, q [4]frame.Coord) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		minX, maxX = min(minX, c[0]), max(maxX, c[0])
		minY, maxY = min(minY, c[1]), max(maxY, c[1])
	}
	bounds := image.Rect(
		int(math.Floor(minX)), int(math.Floor(minY)),
		int(math.Ceil(maxX)), int(math.Ceil(maxY)),
	).Intersect(dst.Rect)

	sw, sh := float64(src.Rect.Dx()), float64(src.Rect.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			p := f64.Vec2{float64(x) + 0.5, float64(y) + 0.5}
			u, v, ok := invBilinear(p, corners)
			if !ok {
				continue
			}
			tx := lerp2(q[0].TextureX, q[1].TextureX, q[2].TextureX, q[3].TextureX, u, v)
			ty := lerp2(q[0].TextureY, q[1].TextureY, q[2].TextureY, q[3].TextureY, u, v)
			b, g, r, a := sample(src, tx*sw-0.5, ty*sh-0.5)
			i := dst.PixOffset(x, y)
			inv := 255 - uint32(a)
			px := dst.Pix[i : i+4]
			px[0] = byte(min(255, uint32(b)+(uint32(px[0])*inv+127)/255))
			px[1] = byte(min(255, uint32(g)+(uint32(px[1])*inv+127)/255))
			px[2] = byte(min(255, uint32(r)+(uint32(px[2])*inv+127)/255))
			px[3] = byte(min(255, uint32(a)+(uint32(px[3])*inv+127)/255))
		}
	}
}

// invBilinear returns the (u, v) at which the bilinear patch a, b, c, d
// (top-left, top-right, bottom-right, bottom-left) passes through p.
func invBilinear(p f64.Vec2, q [4]f64.Vec2) (u, v float64, ok bool) {
	a, b, c, d := q[0], q[1], q[2], q[3]
	e := sub(b, a)
	f := sub(d, a)
	g := f64.Vec2{a[0] - b[0] + c[0] - d[0], a[1] - b[1] + c[1] - d[1]}
	h := sub(p, a)

	k2 := cross(g, f)
	k1 := cross(e, f) + cross(h, g)
	k0 := cross(h, e)

	solveU := func(v float64) float64 {
		dx := e[0] + g[0]*v
		dy := e[1] + g[1]*v
		if math.Abs(dx) >= math.Abs(dy) {
			return (h[0] - f[0]*v) / dx
		}
		return (h[1] - f[1]*v) / dy
	}
	inside := func(u, v float64) bool {
		const eps = 1e-9
		return u >= -eps && u <= 1+eps && v >= -eps && v <= 1+eps
	}

	if math.Abs(k2) < 1e-12 {
		if k1 == 0 {
			return 0, 0, false
		}
		v = -k0 / k1
		u = solveU(v)
		return u, v, inside(u, v)
	}

	w := k1*k1 - 4*k0*k2
	if w < 0 {
		return 0, 0, false
	}
	w = math.Sqrt(w)
	ik2 := 0.5 / k2
	v = (-k1 - w) * ik2
	u = solveU(v)
	if inside(u, v) {
		return u, v, true
	}
	v = (-k1 + w) * ik2
	u = solveU(v)
	return u, v, inside(u, v)
}

// sample reads src bilinearly at texel-space position (x, y), clamping to
// the edges.
func sample(src *image.RGBA, x, y float64) (byte, byte, byte, byte) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	x0, y0 := math.Floor(x), math.Floor(y)
	fx, fy := x-x0, y-y0
	ix, iy := int(x0), int(y0)

	at := func(x, y int) []byte {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		i := src.PixOffset(x, y)
		return src.Pix[i : i+4]
	}
	p00, p10 := at(ix, iy), at(ix+1, iy)
	p01, p11 := at(ix, iy+1), at(ix+1, iy+1)

	var out [4]byte
	for c := range out {
		top := float64(p00[c])*(1-fx) + float64(p10[c])*fx
		bot := float64(p01[c])*(1-fx) + float64(p11[c])*fx
		out[c] = byte(top*(1-fy) + bot*fy + 0.5)
	}
	return out[0], out[1], out[2], out[3]
}

func lerp2(a, b, c, d, u, v float64) float64 {
	top := a + (b-a)*u
	bot := d + (c-d)*u
	return top + (bot-top)*v
}

func sub(a, b f64.Vec2) f64.Vec2 { return f64.Vec2{a[0] - b[0], a[1] - b[1]} }

func cross(a, b f64.Vec2) float64 { return a[0]*b[1] - a[1]*b[0] }
