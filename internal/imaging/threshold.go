package imaging

import "image"

const (
	thresholdBlock  = 11
	thresholdOffset = 2
)

// AdaptiveThreshold binarises g against the mean of each pixel's block x block
// neighbourhood minus offset. Output pixels are 0 or 255 only.
func AdaptiveThreshold(g *image.Gray, block, offset int) *image.Gray {
	g = origin(g)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	r := block / 2
	area := block * block

	rows := make([]int, w*h)
	for y := 0; y < h; y++ {
		line := g.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			s := 0
			for k := -r; k <= r; k++ {
				s += int(line[clampInt(x+k, 0, w-1)])
			}
			rows[y*w+x] = s
		}
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := 0
			for k := -r; k <= r; k++ {
				s += rows[clampInt(y+k, 0, h-1)*w+x]
			}
			mean := (s + area/2) / area
			if int(g.Pix[y*w+x]) > mean-offset {
				out.Pix[y*w+x] = 255
			}
		}
	}
	return out
}
