package imaging

import (
	"image"
	"math"
)

// Outlines smaller than this share of the frame are glyphs or stamps, not page borders.
const minOutlineFraction = 0.2

// 8-neighbourhood, clockwise on screen starting west.
var moore = [8]image.Point{
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
}

func mooreIndex(d image.Point) int {
	for i, m := range moore {
		if m == d {
			return i
		}
	}
	return 0
}

// CorrectPerspective looks for a four-sided outline around the largest ink
// region and warps it to a rectangle. It returns g itself when none is found.
func CorrectPerspective(g *image.Gray) (*image.Gray, bool) {
	g = origin(g)
	contour := largestContour(g)
	if len(contour) < 4 {
		return g, false
	}
	if math.Abs(shoelace(contour)) < minOutlineFraction*float64(g.Rect.Dx()*g.Rect.Dy()) {
		return g, false
	}
	quad := approxPolygon(contour, 0.02*perimeter(contour))
	if len(quad) != 4 {
		return g, false
	}
	tl, tr, br, bl, ok := orderCorners(quad)
	if !ok {
		return g, false
	}
	width := math.Max(dist(br, bl), dist(tr, tl))
	height := math.Max(dist(tr, br), dist(tl, bl))
	W, H := int(width), int(height)
	if W < 2 || H < 2 {
		return g, false
	}
	dst := [4]point{{0, 0}, {float64(W - 1), 0}, {float64(W - 1), float64(H - 1)}, {0, float64(H - 1)}}
	hm, ok := homography(dst, [4]point{tl, tr, br, bl})
	if !ok {
		return g, false
	}
	return warp(g, hm, W, H), true
}

// largestContour traces the outer border of every 8-connected ink component
// and returns the one enclosing the greatest area.
func largestContour(g *image.Gray) []point {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	labels := make([]int32, w*h)
	var (
		best     []point
		bestArea float64
		next     int32
		queue    []int
	)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if labels[i] != 0 || g.Pix[i] >= inkThreshold {
				continue
			}
			next++
			// Raster order guarantees (x,y) is the top-left pixel of its component.
			start := image.Pt(x, y)
			minX, maxX, minY, maxY := x, x, y, y
			labels[i] = next
			queue = append(queue[:0], i)
			for len(queue) > 0 {
				cur := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				cx, cy := cur%w, cur/w
				minX, maxX = min(minX, cx), max(maxX, cx)
				minY, maxY = min(minY, cy), max(maxY, cy)
				for _, m := range moore {
					nx, ny := cx+m.X, cy+m.Y
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					j := ny*w + nx
					if labels[j] == 0 && g.Pix[j] < inkThreshold {
						labels[j] = next
						queue = append(queue, j)
					}
				}
			}
			if float64((maxX-minX)*(maxY-minY)) <= bestArea {
				continue
			}
			c := traceBorder(labels, w, h, start, next)
			if a := math.Abs(shoelace(c)); a > bestArea || best == nil {
				best, bestArea = c, a
			}
		}
	}
	return best
}

// traceBorder follows the outer border of component id clockwise from start.
func traceBorder(labels []int32, w, h int, start image.Point, id int32) []point {
	inside := func(p image.Point) bool {
		return p.X >= 0 && p.Y >= 0 && p.X < w && p.Y < h && labels[p.Y*w+p.X] == id
	}
	step := func(cur image.Point, back int) (image.Point, int, bool) {
		for k := 1; k <= 8; k++ {
			d := (back + k) % 8
			n := cur.Add(moore[d])
			if inside(n) {
				prev := cur.Add(moore[(d+7)%8])
				return n, mooreIndex(prev.Sub(n)), true
			}
		}
		return cur, back, false
	}

	contour := []point{{float64(start.X), float64(start.Y)}}
	first, back, ok := step(start, 0)
	if !ok {
		return contour
	}
	cur := first
	limit := 4 * w * h
	for i := 0; i < limit; i++ {
		if cur == start {
			n, _, _ := step(cur, back)
			if n == first {
				break
			}
		}
		contour = append(contour, point{float64(cur.X), float64(cur.Y)})
		cur, back, _ = step(cur, back)
	}
	return contour
}

func shoelace(c []point) float64 {
	var s float64
	for i := range c {
		j := (i + 1) % len(c)
		s += c[i].x*c[j].y - c[j].x*c[i].y
	}
	return s / 2
}

func perimeter(c []point) float64 {
	var p float64
	for i := range c {
		p += dist(c[i], c[(i+1)%len(c)])
	}
	return p
}

func dist(a, b point) float64 { return math.Hypot(a.x-b.x, a.y-b.y) }

// approxPolygon simplifies a closed curve with Douglas-Peucker.
func approxPolygon(c []point, eps float64) []point {
	if len(c) < 3 {
		return c
	}
	far := 0
	for i := range c {
		if dist(c[0], c[i]) > dist(c[0], c[far]) {
			far = i
		}
	}
	if far == 0 {
		return c[:1]
	}
	a := simplify(c[:far+1], eps)
	tail := append(append([]point(nil), c[far:]...), c[0])
	b := simplify(tail, eps)
	poly := append(a[:len(a)-1], b[:len(b)-1]...)

	// The split point may sit mid-edge; drop vertices that lie on their neighbours' chord.
	for changed := true; changed && len(poly) > 3; {
		changed = false
		for i := range poly {
			prev := poly[(i+len(poly)-1)%len(poly)]
			next := poly[(i+1)%len(poly)]
			if segmentDistance(poly[i], prev, next) <= eps {
				poly = append(poly[:i], poly[i+1:]...)
				changed = true
				break
			}
		}
	}
	return poly
}

func simplify(pts []point, eps float64) []point {
	if len(pts) < 3 {
		return append([]point(nil), pts...)
	}
	first, last := pts[0], pts[len(pts)-1]
	idx, maxD := 0, -1.0
	for i := 1; i < len(pts)-1; i++ {
		if d := segmentDistance(pts[i], first, last); d > maxD {
			idx, maxD = i, d
		}
	}
	if maxD <= eps {
		return []point{first, last}
	}
	left := simplify(pts[:idx+1], eps)
	right := simplify(pts[idx:], eps)
	return append(left[:len(left)-1], right...)
}

func segmentDistance(p, a, b point) float64 {
	dx, dy := b.x-a.x, b.y-a.y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return dist(p, a)
	}
	return math.Abs(dy*p.x-dx*p.y+b.x*a.y-b.y*a.x) / l
}

// orderCorners returns top-left, top-right, bottom-right, bottom-left.
func orderCorners(q []point) (tl, tr, br, bl point, ok bool) {
	iTL, iBR, iTR, iBL := 0, 0, 0, 0
	for i, p := range q {
		if p.x+p.y < q[iTL].x+q[iTL].y {
			iTL = i
		}
		if p.x+p.y > q[iBR].x+q[iBR].y {
			iBR = i
		}
		if p.y-p.x < q[iTR].y-q[iTR].x {
			iTR = i
		}
		if p.y-p.x > q[iBL].y-q[iBL].x {
			iBL = i
		}
	}
	seen := map[int]bool{iTL: true, iBR: true, iTR: true, iBL: true}
	if len(seen) != 4 {
		return tl, tr, br, bl, false
	}
	return q[iTL], q[iTR], q[iBR], q[iBL], true
}

// homography solves for H mapping each from[i] onto to[i].
func homography(from, to [4]point) ([8]float64, bool) {
	var m [8][9]float64
	for i := 0; i < 4; i++ {
		u, v := from[i].x, from[i].y
		x, y := to[i].x, to[i].y
		m[2*i] = [9]float64{u, v, 1, 0, 0, 0, -u * x, -v * x, x}
		m[2*i+1] = [9]float64{0, 0, 0, u, v, 1, -u * y, -v * y, y}
	}
	for col := 0; col < 8; col++ {
		pivot := col
		for r := col + 1; r < 8; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return [8]float64{}, false
		}
		m[col], m[pivot] = m[pivot], m[col]
		for r := 0; r < 8; r++ {
			if r == col {
				continue
			}
			f := m[r][col] / m[col][col]
			for c := col; c < 9; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}
	var hm [8]float64
	for i := 0; i < 8; i++ {
		hm[i] = m[i][8] / m[i][i]
	}
	return hm, true
}

func warp(g *image.Gray, hm [8]float64, W, H int) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, W, H))
	for v := 0; v < H; v++ {
		for u := 0; u < W; u++ {
			fu, fv := float64(u), float64(v)
			den := hm[6]*fu + hm[7]*fv + 1
			if den == 0 {
				continue
			}
			x := (hm[0]*fu + hm[1]*fv + hm[2]) / den
			y := (hm[3]*fu + hm[4]*fv + hm[5]) / den
			out.Pix[v*W+u] = sampleCubic(g, x, y)
		}
	}
	return out
}
