// Package gjk implements the Gilbert-Johnson-Keerthi (GJK) distance algorithm.
//
// GJK measures two convex shapes through their Minkowski difference: the
// shapes overlap when it contains the origin, otherwise the closest point of
// the difference to the origin gives the separation and, through the matching
// Minkowski sum, one witness point on each shape.
//
// References:
//   - Gilbert, Johnson, Keerthi: "A Fast Procedure for Computing the Distance Between
//     Complex Objects in Three-Dimensional Space" (1988)
//   - Van den Bergen: "Collision Detection in Interactive 3D Environments" (2003)
//   - Ericson: "Real-Time Collision Detection" (2005), closest point on triangle
package gjk

import (
	"math"
	"sync"

	"github.com/akmonengine/collide/actor"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// GJKMaxIterations caps the refinement loop. When it is reached the last
	// simplex is accepted as the answer, which guards against numerical cycling.
	GJKMaxIterations = 16

	// MinSupportSqr is the squared distance under which the closest point is
	// considered to touch the origin. Completing the simplex to a tetrahedron
	// is tried before the search goes on.
	MinSupportSqr = 1e-4

	// RelativeTolerance stops the search when a new support point improves the
	// squared distance by less than this fraction.
	RelativeTolerance = 0.01

	// AbsoluteTolerance stops the search when the distance bound is tighter than
	// this many units.
	AbsoluteTolerance = 1e-3

	completionEps = 1e-6
	duplicateEps  = 1e-9
	// originSqr is the squared length under which the closest point is the origin itself.
	originSqr = 1e-20
)

// Status classifies the outcome of a query.
type Status int

const (
	// StatusSeparated: the shapes are apart by Result.Distance.
	StatusSeparated Status = iota
	// StatusTouching: the shapes are in surface contact. The distance is zero and
	// the simplex could not be completed around the origin.
	StatusTouching
	// StatusPenetrating: the simplex is a tetrahedron enclosing the origin, ready for EPA.
	StatusPenetrating
)

func (s Status) String() string {
	switch s {
	case StatusSeparated:
		return "separated"
	case StatusTouching:
		return "touching"
	case StatusPenetrating:
		return "penetrating"
	default:
		return "unknown"
	}
}

// Result of a GJK query. Normal, WitnessA and WitnessB are only meaningful
// when the status is not StatusPenetrating.
type Result struct {
	Status     Status
	Distance   float64
	Normal     mgl64.Vec3 // unit, from A towards B
	WitnessA   mgl64.Vec3
	WitnessB   mgl64.Vec3
	Iterations int
}

var SimplexPool = sync.Pool{
	New: func() interface{} {
		return &Simplex{}
	},
}

// MinkowskiSupport computes a support point in the Minkowski difference (A - B)
// together with the matching point of the Minkowski sum (A + B).
//
// Support point: furthestPoint(A, direction) - furthestPoint(B, -direction)
func MinkowskiSupport(a, b actor.Convex, direction mgl64.Vec3) MinkowskiPoint {
	supportA := a.SupportWorld(direction)
	supportB := b.SupportWorld(direction.Mul(-1))
	return MinkowskiPoint{
		Diff: supportA.Sub(supportB),
		Sum:  supportA.Add(supportB),
	}
}

// GJK runs the distance query between a and b.
//
// Algorithm overview:
//  1. Seed the simplex with a support point toward B from A
//  2. Reduce the simplex to the feature closest to the origin
//  3. Four points left → the origin is enclosed, the shapes overlap
//  4. Closest point within MinSupportSqr → try to complete the simplex around the origin
//  5. Support along -v proves a separating plane and makes no progress → report the separation
//  6. Otherwise add the support point and repeat
//
// Touching is reported, with a zero distance, only when the origin sits on the
// simplex and no completion encloses it, or when the iteration cap is reached
// without a separating plane.
//
// The simplex is modified in place. A non-empty simplex is used as a warm start.
// On StatusPenetrating it holds the tetrahedron EPA expands from.
func GJK(a, b actor.Convex, simplex *Simplex) Result {
	if simplex.Count == 0 {
		direction := b.Center().Sub(a.Center())
		if direction.LenSqr() < 1e-12 {
			direction = mgl64.Vec3{1, 0, 0}
		}
		simplex.Add(MinkowskiSupport(a, b, direction))
	}

	for i := 1; i <= GJKMaxIterations; i++ {
		closest, reduced := simplex.ClosestPoint()
		*simplex = reduced

		if simplex.Count == 4 {
			return Result{Status: StatusPenetrating, Iterations: i}
		}

		v := closest.Diff
		vSqr := v.LenSqr()
		if vSqr < MinSupportSqr {
			if complete(a, b, simplex) {
				return Result{Status: StatusPenetrating, Iterations: i}
			}
			if vSqr < originSqr {
				return touching(a, b, closest, i)
			}
		}

		w := MinkowskiSupport(a, b, v.Mul(-1))
		// A positive v.w means the plane through w orthogonal to v separates
		// the origin from the difference. Without it the search must go on.
		if vw := v.Dot(w.Diff); vw > 0 {
			gap := vSqr - vw
			if gap <= RelativeTolerance*vSqr || gap <= AbsoluteTolerance*math.Sqrt(vSqr) || simplex.contains(w.Diff, duplicateEps) {
				return separation(a, b, StatusSeparated, closest, i)
			}
		}

		simplex.Add(w)
	}

	closest, reduced := simplex.ClosestPoint()
	*simplex = reduced
	if simplex.Count == 4 || complete(a, b, simplex) {
		return Result{Status: StatusPenetrating, Iterations: GJKMaxIterations}
	}

	v := closest.Diff
	if w := MinkowskiSupport(a, b, v.Mul(-1)); v.LenSqr() >= originSqr && v.Dot(w.Diff) > 0 {
		return separation(a, b, StatusSeparated, closest, GJKMaxIterations)
	}

	return touching(a, b, closest, GJKMaxIterations)
}

// touching reports surface contact: zero separation, with the witnesses of
// the closest point found.
func touching(a, b actor.Convex, closest MinkowskiPoint, iterations int) Result {
	result := separation(a, b, StatusTouching, closest, iterations)
	result.Distance = 0

	return result
}

func separation(a, b actor.Convex, status Status, closest MinkowskiPoint, iterations int) Result {
	witnessA, witnessB := closest.Witnesses()
	distance := closest.Diff.Len()

	// v points from B to A in the difference space.
	normal := closest.Diff.Mul(-1)
	if distance > 1e-12 {
		normal = normal.Mul(1 / distance)
	} else {
		normal = b.Center().Sub(a.Center())
		if normal.LenSqr() < 1e-12 {
			normal = mgl64.Vec3{1, 0, 0}
		}
		normal = normal.Normalize()
	}

	return Result{
		Status:     status,
		Distance:   distance,
		Normal:     normal,
		WitnessA:   witnessA,
		WitnessB:   witnessB,
		Iterations: iterations,
	}
}

// complete grows the simplex to a tetrahedron with perpendicular support
// queries. The simplex is only replaced when the tetrahedron encloses the origin.
func complete(a, b actor.Convex, simplex *Simplex) bool {
	s := *simplex
	for s.Count < 3 {
		grown := false
		for _, dir := range completionDirections(&s) {
			w := MinkowskiSupport(a, b, dir)
			if addsDimension(&s, w.Diff) {
				s.Add(w)
				grown = true
				break
			}
		}
		if !grown {
			return false
		}
	}

	for _, dir := range completionDirections(&s) {
		w := MinkowskiSupport(a, b, dir)
		if !addsDimension(&s, w.Diff) {
			continue
		}

		tetra := s
		tetra.Add(w)
		if _, feat := tetra.ClosestPoint(); feat.Count == 4 {
			*simplex = tetra
			return true
		}
	}

	return false
}

func completionDirections(s *Simplex) []mgl64.Vec3 {
	p := s.Points
	switch s.Count {
	case 1:
		return []mgl64.Vec3{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}}
	case 2:
		u := p[1].Diff.Sub(p[0].Diff)
		var axis mgl64.Vec3
		axis[leastAxis(u)] = 1
		n1 := u.Cross(axis).Normalize()
		n2 := u.Cross(n1).Normalize()
		return []mgl64.Vec3{n1, n1.Mul(-1), n2, n2.Mul(-1)}
	case 3:
		n := p[1].Diff.Sub(p[0].Diff).Cross(p[2].Diff.Sub(p[0].Diff)).Normalize()
		return []mgl64.Vec3{n, n.Mul(-1)}
	default:
		return nil
	}
}

// leastAxis returns the axis least aligned with u.
func leastAxis(u mgl64.Vec3) int {
	axis := 0
	for i := 1; i < 3; i++ {
		if math.Abs(u[i]) < math.Abs(u[axis]) {
			axis = i
		}
	}
	return axis
}

func addsDimension(s *Simplex, w mgl64.Vec3) bool {
	p := s.Points
	switch s.Count {
	case 1:
		return w.Sub(p[0].Diff).Len() > completionEps
	case 2:
		u := p[1].Diff.Sub(p[0].Diff)
		return w.Sub(p[0].Diff).Cross(u).Len() > completionEps*u.Len()
	case 3:
		n := p[1].Diff.Sub(p[0].Diff).Cross(p[2].Diff.Sub(p[0].Diff))
		return math.Abs(w.Sub(p[0].Diff).Dot(n)) > completionEps*n.Len()
	default:
		return false
	}
}
