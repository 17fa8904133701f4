package imaging

import (
	"image"
	"math"
	"sort"
)

const (
	// inkThreshold separates ink (darker) from paper after smoothing.
	inkThreshold = 128
	minInkPixels = 10
	minRotation  = 0.05
)

type point struct{ x, y float64 }

// SkewAngle estimates the rotation, in degrees, that levels the ink in g.
// ok is false when there is too little ink to decide.
func SkewAngle(g *image.Gray) (angle float64, ok bool) {
	g = origin(g)
	w, h := g.Rect.Dx(), g.Rect.Dy()

	// The leftmost and rightmost ink pixel of each row span the same hull as the full set.
	var pts []point
	count := 0
	for y := 0; y < h; y++ {
		first, last := -1, -1
		row := g.Pix[y*w : (y+1)*w]
		for x, v := range row {
			if v < inkThreshold {
				count++
				if first < 0 {
					first = x
				}
				last = x
			}
		}
		if first >= 0 {
			pts = append(pts, point{float64(first), float64(y)})
			if last != first {
				pts = append(pts, point{float64(last), float64(y)})
			}
		}
	}
	if count < minInkPixels {
		return 0, false
	}

	a := minAreaRectAngle(convexHull(pts))
	if a < -45 {
		a = -(90 + a)
	} else {
		a = -a
	}
	return a, true
}

// Deskew rotates g about its centre so the dominant ink rectangle is axis aligned.
// It returns g itself when there is nothing to correct.
func Deskew(g *image.Gray) (*image.Gray, bool) {
	angle, ok := SkewAngle(g)
	if !ok || math.Abs(angle) < minRotation {
		return g, false
	}
	return Rotate(origin(g), angle), true
}

// Rotate turns g by angle degrees (positive is counter-clockwise on screen)
// keeping the original size. Exposed pixels replicate the border.
func Rotate(g *image.Gray, angle float64) *image.Gray {
	g = origin(g)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))

	// Inverse mapping: each output pixel samples the source rotated back.
	theta := -angle * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)
	cx, cy := float64(w)/2, float64(h)/2
	for y := 0; y < h; y++ {
		dy := float64(y) - cy
		for x := 0; x < w; x++ {
			dx := float64(x) - cx
			sx := cx + cos*dx + sin*dy
			sy := cy - sin*dx + cos*dy
			out.Pix[y*w+x] = sampleCubic(g, sx, sy)
		}
	}
	return out
}

// convexHull returns the hull in counter-clockwise order (monotone chain).
func convexHull(pts []point) []point {
	if len(pts) < 3 {
		return append([]point(nil), pts...)
	}
	sorted := append([]point(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].x != sorted[j].x {
			return sorted[i].x < sorted[j].x
		}
		return sorted[i].y < sorted[j].y
	})
	cross := func(o, a, b point) float64 {
		return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
	}
	hull := make([]point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// minAreaRectAngle returns the on-screen angle in [-90,0) of the minimum-area
// rectangle enclosing the hull (rotating calipers over hull edges).
func minAreaRectAngle(hull []point) float64 {
	best := math.Inf(1)
	bestAngle := -90.0
	n := len(hull)
	for i := 0; i < n; i++ {
		p, q := hull[i], hull[(i+1)%n]
		dx, dy := q.x-p.x, q.y-p.y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		ux, uy := dx/l, dy/l
		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, r := range hull {
			u := r.x*ux + r.y*uy
			v := -r.x*uy + r.y*ux
			minU, maxU = math.Min(minU, u), math.Max(maxU, u)
			minV, maxV = math.Min(minV, v), math.Max(maxV, v)
		}
		if area := (maxU - minU) * (maxV - minV); area < best-1e-9 {
			best = area
			bestAngle = math.Atan2(-dy, dx) * 180 / math.Pi
		}
	}
	a := math.Mod(bestAngle, 90)
	if a >= 0 {
		a -= 90
	}
	return a
}
