package imaging

import (
	"image"

	"golang.org/x/image/draw"
)

// ToGray converts any image to 8-bit luminance. Inputs that are not
// three-channel colour are expanded to RGB first.
func ToGray(src image.Image) *image.Gray {
	rgb := toRGB(src)
	w, h := rgb.Rect.Dx(), rgb.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := rgb.Pix[y*rgb.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			r, g, b := int(row[4*x]), int(row[4*x+1]), int(row[4*x+2])
			dst[x] = uint8((299*r + 587*g + 114*b + 500) / 1000)
		}
	}
	return out
}

func toRGB(src image.Image) *image.RGBA {
	b := src.Bounds()
	if rgba, ok := src.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// origin returns g re-based at (0,0) with a tight stride.
func origin(g *image.Gray) *image.Gray {
	if g.Rect.Min == (image.Point{}) && g.Stride == g.Rect.Dx() {
		return g
	}
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		off := g.PixOffset(g.Rect.Min.X, g.Rect.Min.Y+y)
		copy(out.Pix[y*w:(y+1)*w], g.Pix[off:off+w])
	}
	return out
}

var gaussKernel5 = [5]int{1, 4, 6, 4, 1}

// GaussianBlur5 smooths with a 5x5 binomial kernel and reflect-101 borders.
func GaussianBlur5(src *image.Gray) *image.Gray {
	src = origin(src)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	tmp := make([]int, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			s := 0
			for k := -2; k <= 2; k++ {
				s += gaussKernel5[k+2] * int(row[reflect101(x+k, w)])
			}
			tmp[y*w+x] = s
		}
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := 0
			for k := -2; k <= 2; k++ {
				s += gaussKernel5[k+2] * tmp[reflect101(y+k, h)*w+x]
			}
			out.Pix[y*w+x] = uint8((s + 128) >> 8)
		}
	}
	return out
}

// reflect101 mirrors i into [0,n) without repeating the edge sample.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
