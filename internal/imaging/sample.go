package imaging

import (
	"image"
	"math"
)

const cubicA = -0.75

func cubicWeights(t float64) [4]float64 {
	var w [4]float64
	w[0] = ((cubicA*(t+1)-5*cubicA)*(t+1)+8*cubicA)*(t+1) - 4*cubicA
	w[1] = ((cubicA+2)*t-(cubicA+3))*t*t + 1
	w[2] = ((cubicA+2)*(1-t)-(cubicA+3))*(1-t)*(1-t) + 1
	w[3] = 1 - w[0] - w[1] - w[2]
	return w
}

// sampleCubic interpolates g at (x,y) with replicated borders. g must be origin based.
func sampleCubic(g *image.Gray, x, y float64) uint8 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	x0, y0 := math.Floor(x), math.Floor(y)
	wx := cubicWeights(x - x0)
	wy := cubicWeights(y - y0)
	ix, iy := int(x0), int(y0)

	var sum float64
	for j := -1; j <= 2; j++ {
		yy := clampInt(iy+j, 0, h-1)
		row := g.Pix[yy*g.Stride:]
		var acc float64
		for i := -1; i <= 2; i++ {
			xx := clampInt(ix+i, 0, w-1)
			acc += wx[i+1] * float64(row[xx])
		}
		sum += wy[j+1] * acc
	}
	return clamp8(sum)
}

func clamp8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
