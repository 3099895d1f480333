package soft

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/mixer/frame"
	"github.com/gogpu/mixer/internal/blend"
)

// decode converts source planes into premultiplied BGRA texels in dst. dst
// is the size of the first plane. The image.RGBA container is only used for
// its layout; its channel order is B, G, R, A.
func decode(format frame.PixelFormat, planes []*texture, dst *image.RGBA) error {
	if len(planes) != format.PlaneCount() {
		return fmt.Errorf("soft: %s needs %d planes, got %d", format, format.PlaneCount(), len(planes))
	}
	for i, p := range planes {
		if want := format.Stride(i); p.stride != want {
			return fmt.Errorf("soft: %s plane %d has stride %d, want %d", format, i, p.stride, want)
		}
	}

	src := planes[0].pix
	out := dst.Pix
	n := planes[0].width * planes[0].height

	switch format {
	case frame.PixelFormatBGRA:
		copy(out, src)
	case frame.PixelFormatRGBA:
		swizzle4(out, src, n, 2, 1, 0, 3)
	case frame.PixelFormatARGB:
		swizzle4(out, src, n, 3, 2, 1, 0)
	case frame.PixelFormatABGR:
		swizzle4(out, src, n, 1, 2, 3, 0)
	case frame.PixelFormatBGR:
		swizzle3(out, src, n, 0, 1, 2)
	case frame.PixelFormatRGB:
		swizzle3(out, src, n, 2, 1, 0)
	case frame.PixelFormatGray:
		for i := range n {
			y := src[i]
			out[i*4], out[i*4+1], out[i*4+2], out[i*4+3] = y, y, y, 255
		}
	case frame.PixelFormatYCbCr, frame.PixelFormatYCbCrA:
		decodeYCbCr(planes, out)
	default:
		return fmt.Errorf("soft: unsupported pixel format %s", format)
	}
	return nil
}

// swizzle4 writes B, G, R, A from the given source byte offsets.
func swizzle4(out, src []byte, n, b, g, r, a int) {
	for i := range n {
		s := src[i*4 : i*4+4]
		out[i*4], out[i*4+1], out[i*4+2], out[i*4+3] = s[b], s[g], s[r], s[a]
	}
}

// swizzle3 writes opaque B, G, R from the given source byte offsets.
func swizzle3(out, src []byte, n, b, g, r int) {
	for i := range n {
		s := src[i*3 : i*3+3]
		out[i*4], out[i*4+1], out[i*4+2], out[i*4+3] = s[b], s[g], s[r], 255
	}
}

func decodeYCbCr(planes []*texture, out []byte) {
	yp, cbp, crp := planes[0], planes[1], planes[2]
	var ap *texture
	if len(planes) > 3 {
		ap = planes[3]
	}

	w, h := yp.width, yp.height
	for y := range h {
		cy := min(y*cbp.height/h, cbp.height-1)
		for x := range w {
			cx := min(x*cbp.width/w, cbp.width-1)
			cb := cbp.pix[cy*cbp.width+cx]
			cr := crp.pix[min(cy, crp.height-1)*crp.width+min(cx, crp.width-1)]
			r, g, b := color.YCbCrToRGB(yp.pix[y*w+x], cb, cr)

			a := byte(255)
			if ap != nil {
				a = ap.pix[min(y, ap.height-1)*ap.width+min(x, ap.width-1)]
				r, g, b = blend.MulDiv255(r, a), blend.MulDiv255(g, a), blend.MulDiv255(b, a)
			}
			i := (y*w + x) * 4
			out[i], out[i+1], out[i+2], out[i+3] = b, g, r, a
		}
	}
}
