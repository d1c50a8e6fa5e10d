package gjk

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// MinkowskiPoint is one support query on the pair of shapes. Diff lies on the
// Minkowski difference A - B, Sum is the matching point of A + B. Both always
// come from the same direction, so any convex combination of them maps back to
// one point on each shape.
type MinkowskiPoint struct {
	Diff mgl64.Vec3
	Sum  mgl64.Vec3
}

// Witnesses recovers the points on A and B that produced p.
func (p MinkowskiPoint) Witnesses() (onA, onB mgl64.Vec3) {
	onA = p.Sum.Add(p.Diff).Mul(0.5)
	onB = p.Sum.Sub(p.Diff).Mul(0.5)
	return onA, onB
}

func weighted(points []MinkowskiPoint, weights []float64) MinkowskiPoint {
	var out MinkowskiPoint
	for i, p := range points {
		out.Diff = out.Diff.Add(p.Diff.Mul(weights[i]))
		out.Sum = out.Sum.Add(p.Sum.Mul(weights[i]))
	}
	return out
}

// Simplex represents a set of 1-4 points in the Minkowski difference space.
// Size progression: 1 point → 2 points (line) → 3 points (triangle) → 4 points (tetrahedron)
type Simplex struct {
	Points [4]MinkowskiPoint
	Count  int
}

func (s *Simplex) Reset() {
	s.Count = 0
}

// Add appends a point. Adding to a full simplex is ignored.
func (s *Simplex) Add(p MinkowskiPoint) {
	if s.Count < len(s.Points) {
		s.Points[s.Count] = p
		s.Count++
	}
}

func (s *Simplex) contains(p mgl64.Vec3, eps float64) bool {
	for i := 0; i < s.Count; i++ {
		if s.Points[i].Diff.Sub(p).LenSqr() <= eps*eps {
			return true
		}
	}
	return false
}

// degenerateEps is the squared length below which an edge or area is treated as collapsed.
const degenerateEps = 1e-18

// ClosestPoint returns the point of the simplex hull closest to the origin
// and the smallest sub-simplex (the closest feature) that supports it.
// A feature of four points means the origin is enclosed.
func (s *Simplex) ClosestPoint() (MinkowskiPoint, Simplex) {
	switch s.Count {
	case 1:
		return s.Points[0], *s
	case 2:
		return closestOnSegment(s.Points[0], s.Points[1])
	case 3:
		return closestOnTriangle(s.Points[0], s.Points[1], s.Points[2])
	case 4:
		return closestOnTetrahedron(s.Points[0], s.Points[1], s.Points[2], s.Points[3])
	default:
		return MinkowskiPoint{}, Simplex{}
	}
}

func feature(points ...MinkowskiPoint) Simplex {
	var s Simplex
	for _, p := range points {
		s.Add(p)
	}
	return s
}

func closestOnSegment(a, b MinkowskiPoint) (MinkowskiPoint, Simplex) {
	ab := b.Diff.Sub(a.Diff)
	denom := ab.Dot(ab)
	if denom < degenerateEps {
		return a, feature(a)
	}

	t := -a.Diff.Dot(ab) / denom
	switch {
	case t <= 0:
		return a, feature(a)
	case t >= 1:
		return b, feature(b)
	}

	points := []MinkowskiPoint{a, b}
	return weighted(points, []float64{1 - t, t}), feature(a, b)
}

// closestOnTriangle walks the Voronoi regions of the triangle
// (Ericson, Real-Time Collision Detection, 5.1.5).
func closestOnTriangle(a, b, c MinkowskiPoint) (MinkowskiPoint, Simplex) {
	ab := b.Diff.Sub(a.Diff)
	ac := c.Diff.Sub(a.Diff)
	if ab.Cross(ac).LenSqr() < degenerateEps {
		return closestOfSegments(a, b, c)
	}

	ap := a.Diff.Mul(-1)
	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a, feature(a)
	}

	bp := b.Diff.Mul(-1)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b, feature(b)
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return weighted([]MinkowskiPoint{a, b}, []float64{1 - v, v}), feature(a, b)
	}

	cp := c.Diff.Mul(-1)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c, feature(c)
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return weighted([]MinkowskiPoint{a, c}, []float64{1 - w, w}), feature(a, c)
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return weighted([]MinkowskiPoint{b, c}, []float64{1 - w, w}), feature(b, c)
	}

	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return weighted([]MinkowskiPoint{a, b, c}, []float64{1 - v - w, v, w}), feature(a, b, c)
}

func closestOfSegments(a, b, c MinkowskiPoint) (MinkowskiPoint, Simplex) {
	best, bestFeature := closestOnSegment(a, b)
	for _, pair := range [][2]MinkowskiPoint{{b, c}, {a, c}} {
		p, f := closestOnSegment(pair[0], pair[1])
		if p.Diff.LenSqr() < best.Diff.LenSqr() {
			best, bestFeature = p, f
		}
	}
	return best, bestFeature
}

// originOutside reports whether the origin and d lie strictly on opposite sides of plane abc.
// An origin within planeEps of the plane counts as inside. The second result is
// false when d is (nearly) on the plane.
func originOutside(a, b, c, d mgl64.Vec3) (outside bool, valid bool) {
	const planeEps = 1e-10

	n := b.Sub(a).Cross(c.Sub(a))
	signP := a.Mul(-1).Dot(n)
	signD := d.Sub(a).Dot(n)
	if signD*signD < degenerateEps*n.LenSqr() {
		return false, false
	}
	return signP*signD < 0 && signP*signP > planeEps*planeEps*n.LenSqr(), true
}

func closestOnTetrahedron(a, b, c, d MinkowskiPoint) (MinkowskiPoint, Simplex) {
	faces := [4][4]MinkowskiPoint{
		{a, b, c, d},
		{a, c, d, b},
		{a, d, b, c},
		{b, d, c, a},
	}

	best := MinkowskiPoint{}
	var bestFeature Simplex
	bestDist := math.Inf(1)
	enclosed := true
	for _, f := range faces {
		outside, valid := originOutside(f[0].Diff, f[1].Diff, f[2].Diff, f[3].Diff)
		if valid && !outside {
			continue
		}
		enclosed = false
		p, feat := closestOnTriangle(f[0], f[1], f[2])
		if dist := p.Diff.LenSqr(); dist < bestDist {
			best, bestFeature, bestDist = p, feat, dist
		}
	}

	if !enclosed {
		return best, bestFeature
	}

	// Barycentric coordinates of the origin from signed volumes.
	v := volume(a.Diff, b.Diff, c.Diff, d.Diff)
	var origin mgl64.Vec3
	wb := volume(a.Diff, origin, c.Diff, d.Diff) / v
	wc := volume(a.Diff, b.Diff, origin, d.Diff) / v
	wd := volume(a.Diff, b.Diff, c.Diff, origin) / v
	wa := 1 - wb - wc - wd

	p := weighted([]MinkowskiPoint{a, b, c, d}, []float64{wa, wb, wc, wd})
	return p, feature(a, b, c, d)
}

func volume(a, b, c, d mgl64.Vec3) float64 {
	return b.Sub(a).Dot(c.Sub(a).Cross(d.Sub(a)))
}
