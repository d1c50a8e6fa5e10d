package collide

import (
	"math"
	"math/rand"
	"testing"

	"github.com/akmonengine/collide/actor"
	"github.com/akmonengine/collide/epa"
	"github.com/akmonengine/collide/gjk"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Test helper functions
func createBox(position mgl64.Vec3, halfExtents mgl64.Vec3, bodyType actor.BodyType) *actor.Body {
	return actor.NewShapeBody(
		actor.Transform{Position: position, Rotation: mgl64.QuatIdent()},
		&actor.Box{HalfExtents: halfExtents},
		bodyType,
	)
}

func createSphere(position mgl64.Vec3, radius float64, bodyType actor.BodyType) *actor.Body {
	return actor.NewShapeBody(
		actor.Transform{Position: position, Rotation: mgl64.QuatIdent()},
		&actor.Sphere{Radius: radius},
		bodyType,
	)
}

func vec3ApproxEqual(a, b mgl64.Vec3, tolerance float64) bool {
	return math.Abs(a.X()-b.X()) < tolerance &&
		math.Abs(a.Y()-b.Y()) < tolerance &&
		math.Abs(a.Z()-b.Z()) < tolerance
}

func TestCollideSeparatedSpheres(t *testing.T) {
	a := createSphere(mgl64.Vec3{0, 0, 0}, 1, actor.BodyTypeDynamic)
	b := createSphere(mgl64.Vec3{3, 0, 0}, 1, actor.BodyTypeDynamic)

	contact, err := Collide(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if contact.Intersects {
		t.Errorf("expected no intersection")
	}
	if math.Abs(contact.Distance-1) > 1e-3 {
		t.Errorf("Distance = %v, expected 1", contact.Distance)
	}
	if !vec3ApproxEqual(contact.PointA, mgl64.Vec3{1, 0, 0}, 1e-3) || !vec3ApproxEqual(contact.PointB, mgl64.Vec3{2, 0, 0}, 1e-3) {
		t.Errorf("witnesses %v / %v, expected (1, 0, 0) / (2, 0, 0)", contact.PointA, contact.PointB)
	}
	if !vec3ApproxEqual(contact.Normal, mgl64.Vec3{1, 0, 0}, 1e-6) {
		t.Errorf("Normal = %v, expected (1, 0, 0)", contact.Normal)
	}
}

func TestCollideOverlappingBoxes(t *testing.T) {
	a := createBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}, actor.BodyTypeDynamic)
	b := createBox(mgl64.Vec3{1.5, 0, 0}, mgl64.Vec3{1, 1, 1}, actor.BodyTypeDynamic)

	contact, err := Collide(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !contact.Intersects || contact.Status != gjk.StatusPenetrating {
		t.Fatalf("expected an intersection, got %+v", contact)
	}
	if math.Abs(contact.Depth-0.5) > 1e-3 {
		t.Errorf("Depth = %v, expected 0.5", contact.Depth)
	}
	if math.Abs(math.Abs(contact.Normal.X())-1) > 1e-3 {
		t.Errorf("Normal = %v, expected along x", contact.Normal)
	}
}

func TestCollideSphereSeparation(t *testing.T) {
	tests := []struct {
		name   string
		r0, r1 float64
		d      float64
	}{
		{"unit spheres apart", 1, 1, 2.5},
		{"mixed radii apart", 0.5, 2, 4},
		{"mixed radii overlapping", 0.5, 2, 2},
		{"deep overlap", 1, 1, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := createSphere(mgl64.Vec3{0, 0, 0}, tt.r0, actor.BodyTypeDynamic)
			b := createSphere(mgl64.Vec3{0, 0, tt.d}, tt.r1, actor.BodyTypeDynamic)

			contact, err := Collide(a, b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			overlap := tt.d < tt.r0+tt.r1
			if contact.Intersects != overlap {
				t.Fatalf("Intersects = %v, expected %v", contact.Intersects, overlap)
			}
			if overlap {
				if expected := tt.r0 + tt.r1 - tt.d; math.Abs(contact.Depth-expected) > 0.03*expected+1e-3 {
					t.Errorf("Depth = %v, expected %v", contact.Depth, expected)
				}
			} else if expected := tt.d - tt.r0 - tt.r1; math.Abs(contact.Distance-expected) > 1e-3 {
				t.Errorf("Distance = %v, expected %v", contact.Distance, expected)
			}
		})
	}
}

func TestCollideShallowSphereOverlap(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for _, pen := range []float64{0.0015, 0.0017, 0.005, 0.01} {
		for n := 0; n < 40; n++ {
			dir := mgl64.Vec3{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}.Normalize()
			a := createSphere(mgl64.Vec3{0, 0, 0}, 1, actor.BodyTypeDynamic)
			b := createSphere(dir.Mul(2-pen), 1, actor.BodyTypeDynamic)

			contact, err := Collide(a, b)
			if err != nil {
				t.Fatalf("pen %v, dir %v: %v", pen, dir, err)
			}
			if !contact.Intersects {
				t.Fatalf("pen %v, dir %v: overlap missed, status %v distance %v", pen, dir, contact.Status, contact.Distance)
			}
			if math.Abs(contact.Depth-pen) > 1e-3 {
				t.Errorf("pen %v, dir %v: Depth = %v", pen, dir, contact.Depth)
			}
		}
	}
}

func TestCollideSymmetry(t *testing.T) {
	pairs := []struct {
		name string
		a, b *actor.Body
	}{
		{"box and sphere apart", createBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 0.5, 2}, actor.BodyTypeDynamic), createSphere(mgl64.Vec3{2, 3, -1}, 0.75, actor.BodyTypeDynamic)},
		{"box and sphere overlapping", createBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 0.5, 2}, actor.BodyTypeDynamic), createSphere(mgl64.Vec3{1.2, 0.3, -0.4}, 0.75, actor.BodyTypeDynamic)},
	}

	for _, pair := range pairs {
		t.Run(pair.name, func(t *testing.T) {
			ab, err := Collide(pair.a, pair.b)
			if err != nil {
				t.Fatalf("Collide(a, b): %v", err)
			}
			ba, err := Collide(pair.b, pair.a)
			if err != nil {
				t.Fatalf("Collide(b, a): %v", err)
			}

			if ab.Intersects != ba.Intersects {
				t.Fatalf("intersection differs")
			}
			if math.Abs(ab.Depth-ba.Depth) > 1e-3 || math.Abs(ab.Distance-ba.Distance) > 1e-3 {
				t.Errorf("depth/distance differ: %+v vs %+v", ab, ba)
			}
			if !vec3ApproxEqual(ab.Normal, ba.Normal.Mul(-1), 1e-3) {
				t.Errorf("normals are not opposite: %v vs %v", ab.Normal, ba.Normal)
			}
			if !vec3ApproxEqual(ab.PointA, ba.PointB, 1e-2) || !vec3ApproxEqual(ab.PointB, ba.PointA, 1e-2) {
				t.Errorf("witnesses are not swapped")
			}
		})
	}
}

func TestCollideIdempotent(t *testing.T) {
	a := actor.NewShapeBody(
		actor.Transform{Position: mgl64.Vec3{0, 0, 0}, Rotation: mgl64.QuatRotate(0.4, mgl64.Vec3{0, 1, 0})},
		&actor.Cylinder{Radius: 1, HalfHeight: 1},
		actor.BodyTypeDynamic,
	)
	b := createBox(mgl64.Vec3{0.5, 0.8, 0.9}, mgl64.Vec3{0.6, 0.6, 0.6}, actor.BodyTypeDynamic)

	first, err := Collide(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Collide(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
}

func TestDetectorNarrowPhase(t *testing.T) {
	bodies := []*actor.Body{
		createBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}, actor.BodyTypeDynamic),
		createBox(mgl64.Vec3{1.5, 0, 0}, mgl64.Vec3{1, 1, 1}, actor.BodyTypeDynamic),
		createSphere(mgl64.Vec3{10, 0, 0}, 1, actor.BodyTypeDynamic),
		createSphere(mgl64.Vec3{13, 0, 0}, 1, actor.BodyTypeDynamic),
		createSphere(mgl64.Vec3{10, 1.5, 0}, 1, actor.BodyTypeDynamic),
	}
	pairs := []Pair{
		{BodyA: bodies[0], BodyB: bodies[1], Index: 0},
		{BodyA: bodies[2], BodyB: bodies[3], Index: 1},
		{BodyA: bodies[2], BodyB: bodies[4], Index: 2},
		{BodyA: bodies[1], BodyB: bodies[2], Index: 3},
	}

	detector, err := NewDetector(epa.DefaultConfig())
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	serial, err := detector.NarrowPhase(feed(pairs), 1)
	if err != nil {
		t.Fatalf("NarrowPhase: %v", err)
	}
	if len(serial) != 2 {
		t.Fatalf("expected 2 collisions, got %d", len(serial))
	}
	if serial[0].BodyB != bodies[1] || serial[1].BodyB != bodies[4] {
		t.Errorf("collisions are not in pair order")
	}

	parallel, err := detector.NarrowPhase(feed(pairs), 4)
	if err != nil {
		t.Fatalf("NarrowPhase: %v", err)
	}
	for i := range serial {
		if serial[i] != parallel[i] {
			t.Errorf("collision %d differs with 4 workers", i)
		}
	}
}

func TestDetectorNarrowPhaseFailures(t *testing.T) {
	cfg := epa.DefaultConfig()
	cfg.MaxVertices = 5
	detector, err := NewDetector(cfg)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	a := createSphere(mgl64.Vec3{0, 0, 0}, 1, actor.BodyTypeDynamic)
	b := createSphere(mgl64.Vec3{0.5, 0, 0}, 1, actor.BodyTypeDynamic)
	c := createSphere(mgl64.Vec3{0, 0.5, 0}, 1, actor.BodyTypeDynamic)
	far := createSphere(mgl64.Vec3{10, 0, 0}, 1, actor.BodyTypeDynamic)

	collisions, err := detector.NarrowPhase(feed([]Pair{
		{BodyA: a, BodyB: b, Index: 0},
		{BodyA: a, BodyB: far, Index: 1},
		{BodyA: a, BodyB: c, Index: 2},
	}), 2)

	if len(collisions) != 0 {
		t.Errorf("expected no collisions, got %d", len(collisions))
	}
	if !errors.Is(err, epa.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	failed := map[int]bool{}
	for _, e := range multierr.Errors(err) {
		var pairErr *PairError
		if !errors.As(e, &pairErr) {
			t.Fatalf("expected a PairError, got %T", e)
		}
		failed[pairErr.Pair.Index] = true
	}
	if len(failed) != 2 || !failed[0] || !failed[2] {
		t.Errorf("unexpected failed pairs %v", failed)
	}
}

func BenchmarkCollide(b *testing.B) {
	a := createBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}, actor.BodyTypeDynamic)
	c := createSphere(mgl64.Vec3{1.5, 0.3, 0.2}, 1, actor.BodyTypeDynamic)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Collide(a, c); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLargeSceneStep(b *testing.B) {
	const cubesCount = 1000
	const rowSize = 100.0

	scene, err := NewScene(DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}

	rng := rand.New(rand.NewSource(0))
	for i := 0; i < cubesCount; i++ {
		x := 0.0
		y := rng.Float64() * rowSize
		z := rng.Float64() * rowSize

		if err := scene.AddBody(createBox(mgl64.Vec3{x, y, z}, mgl64.Vec3{1, 1, 1}, actor.BodyTypeDynamic)); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := scene.Step(); err != nil {
			b.Fatal(err)
		}
	}
}
