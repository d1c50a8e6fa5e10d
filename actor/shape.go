package actor

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// ShapeType represents the type of collision shape
type ShapeType int

const (
	ShapeTypeSphere ShapeType = iota
	ShapeTypeBox
	ShapeTypeCapsule
	ShapeTypeCylinder
	ShapeTypeCone
	ShapeTypeConvexMesh
)

func (t ShapeType) String() string {
	switch t {
	case ShapeTypeSphere:
		return "sphere"
	case ShapeTypeBox:
		return "box"
	case ShapeTypeCapsule:
		return "capsule"
	case ShapeTypeCylinder:
		return "cylinder"
	case ShapeTypeCone:
		return "cone"
	case ShapeTypeConvexMesh:
		return "mesh"
	default:
		return "unknown"
	}
}

// Shape is the interface that all convex collision shapes must implement.
// Every query works in the shape's local frame and never mutates the shape.
type Shape interface {
	Type() ShapeType
	// Support returns the farthest point of the shape along direction.
	// A zero direction still yields a point on the surface.
	Support(direction mgl64.Vec3) mgl64.Vec3
	// IntersectPlane returns the cross-section of the shape with the plane,
	// counter-clockwise about the plane normal. It is empty when the plane misses.
	// Curved shapes whose parameters cannot be tessellated return an error.
	IntersectPlane(plane Plane) (Polygon, error)
}

// ErrInvalidShape is returned for shapes whose dimensions do not describe a solid.
var ErrInvalidShape = errors.New("shape has invalid dimensions")

// ValidateShape checks that the primitive dimensions of shape are finite and
// positive. A capsule may have a zero HalfHeight, which makes it a sphere.
// Meshes are checked when they are built.
func ValidateShape(shape Shape) error {
	switch s := shape.(type) {
	case nil:
		return errors.Wrap(ErrInvalidShape, "nil shape")
	case *Sphere:
		return dimensions(s.Type(), "radius", s.Radius)
	case *Box:
		return dimensions(s.Type(), "half extents", s.HalfExtents[:]...)
	case *Capsule:
		if err := dimensions(s.Type(), "radius", s.Radius); err != nil {
			return err
		}
		if !(s.HalfHeight >= 0) || math.IsInf(s.HalfHeight, 1) {
			return errors.Wrapf(ErrInvalidShape, "capsule half height %v", s.HalfHeight)
		}
	case *Cylinder:
		return dimensions(s.Type(), "radius and half height", s.Radius, s.HalfHeight)
	case *Cone:
		return dimensions(s.Type(), "radius and height", s.Radius, s.Height)
	}

	return nil
}

func dimensions(shape ShapeType, name string, values ...float64) error {
	for _, v := range values {
		if !(v > 0) || math.IsInf(v, 1) {
			return errors.Wrapf(ErrInvalidShape, "%v %s %v", shape, name, values)
		}
	}

	return nil
}

// tessellationSegments is the angular resolution of the meshes used to cut curved shapes.
const tessellationSegments = 32

// tessellation lazily builds the convex mesh used by IntersectPlane.
// A failed build is kept, so every later call reports the same error.
type tessellation struct {
	once sync.Once
	mesh *ConvexMesh
	err  error
}

func (t *tessellation) get(shape Shape, build func() (*ConvexMesh, error)) (*ConvexMesh, error) {
	t.once.Do(func() {
		if t.err = ValidateShape(shape); t.err != nil {
			return
		}
		t.mesh, t.err = build()
		if t.err != nil {
			t.err = errors.Wrapf(t.err, "tessellating %v", shape.Type())
		}
	})

	return t.mesh, t.err
}

func intersectTessellated(t *tessellation, shape Shape, plane Plane, build func() (*ConvexMesh, error)) (Polygon, error) {
	mesh, err := t.get(shape, build)
	if err != nil {
		return nil, err
	}

	return mesh.IntersectPlane(plane)
}

// planarDirection returns the unit projection of direction on the XY plane.
func planarDirection(direction mgl64.Vec3) (mgl64.Vec3, bool) {
	l := math.Hypot(direction.X(), direction.Y())
	if l < 1e-12 {
		return mgl64.Vec3{}, false
	}

	return mgl64.Vec3{direction.X() / l, direction.Y() / l, 0}, true
}

func normalizeOr(direction, fallback mgl64.Vec3) mgl64.Vec3 {
	l := direction.Len()
	if l < 1e-12 {
		return fallback
	}

	return direction.Mul(1 / l)
}

// Box represents an oriented box collision shape
// The box is defined by its half-extents (half-width, half-height, half-depth)
type Box struct {
	HalfExtents mgl64.Vec3
	tess        tessellation
}

func (b *Box) Type() ShapeType {
	return ShapeTypeBox
}

func (b *Box) Support(direction mgl64.Vec3) mgl64.Vec3 {
	hx, hy, hz := b.HalfExtents.X(), b.HalfExtents.Y(), b.HalfExtents.Z()

	if direction.X() < 0 {
		hx = -hx
	}
	if direction.Y() < 0 {
		hy = -hy
	}
	if direction.Z() < 0 {
		hz = -hz
	}

	return mgl64.Vec3{hx, hy, hz}
}

func (b *Box) IntersectPlane(plane Plane) (Polygon, error) {
	return intersectTessellated(&b.tess, b, plane, func() (*ConvexMesh, error) {
		return NewBoxMesh(b.HalfExtents)
	})
}

// Sphere represents a sphere collision shape
type Sphere struct {
	Radius float64
	tess   tessellation
}

func (s *Sphere) Type() ShapeType {
	return ShapeTypeSphere
}

func (s *Sphere) Support(direction mgl64.Vec3) mgl64.Vec3 {
	return normalizeOr(direction, mgl64.Vec3{1, 0, 0}).Mul(s.Radius)
}

func (s *Sphere) IntersectPlane(plane Plane) (Polygon, error) {
	return intersectTessellated(&s.tess, s, plane, func() (*ConvexMesh, error) {
		rings := tessellationSegments / 2
		profile := make([]mgl64.Vec2, 0, rings+1)
		for k := 0; k <= rings; k++ {
			phi := -math.Pi/2 + math.Pi*float64(k)/float64(rings)
			profile = append(profile, mgl64.Vec2{s.Radius * math.Cos(phi), s.Radius * math.Sin(phi)})
		}

		return NewLatheMesh(profile, tessellationSegments)
	})
}

// Capsule is a segment of half-length HalfHeight along the local Z axis, swept by Radius.
type Capsule struct {
	Radius     float64
	HalfHeight float64
	tess       tessellation
}

func (c *Capsule) Type() ShapeType {
	return ShapeTypeCapsule
}

func (c *Capsule) Support(direction mgl64.Vec3) mgl64.Vec3 {
	z := c.HalfHeight
	if direction.Z() < 0 {
		z = -z
	}

	return mgl64.Vec3{0, 0, z}.Add(normalizeOr(direction, mgl64.Vec3{0, 0, 1}).Mul(c.Radius))
}

func (c *Capsule) IntersectPlane(plane Plane) (Polygon, error) {
	return intersectTessellated(&c.tess, c, plane, func() (*ConvexMesh, error) {
		rings := tessellationSegments / 4
		profile := make([]mgl64.Vec2, 0, 2*rings+2)
		for k := 0; k <= rings; k++ {
			phi := -math.Pi/2 + (math.Pi/2)*float64(k)/float64(rings)
			profile = append(profile, mgl64.Vec2{c.Radius * math.Cos(phi), c.Radius*math.Sin(phi) - c.HalfHeight})
		}
		for k := 0; k <= rings; k++ {
			phi := (math.Pi / 2) * float64(k) / float64(rings)
			profile = append(profile, mgl64.Vec2{c.Radius * math.Cos(phi), c.Radius*math.Sin(phi) + c.HalfHeight})
		}

		return NewLatheMesh(profile, tessellationSegments)
	})
}

// Cylinder is aligned with the local Z axis and centered on the origin.
type Cylinder struct {
	Radius     float64
	HalfHeight float64
	tess       tessellation
}

func (c *Cylinder) Type() ShapeType {
	return ShapeTypeCylinder
}

func (c *Cylinder) Support(direction mgl64.Vec3) mgl64.Vec3 {
	z := c.HalfHeight
	if direction.Z() < 0 {
		z = -z
	}

	planar, ok := planarDirection(direction)
	if !ok {
		return mgl64.Vec3{0, 0, z}
	}

	return planar.Mul(c.Radius).Add(mgl64.Vec3{0, 0, z})
}

func (c *Cylinder) IntersectPlane(plane Plane) (Polygon, error) {
	return intersectTessellated(&c.tess, c, plane, func() (*ConvexMesh, error) {
		return NewLatheMesh([]mgl64.Vec2{
			{0, -c.HalfHeight},
			{c.Radius, -c.HalfHeight},
			{c.Radius, c.HalfHeight},
			{0, c.HalfHeight},
		}, tessellationSegments)
	})
}

// Cone has its base disc at z = -Height/4 and its apex at z = 3*Height/4,
// which puts the centroid on the origin.
type Cone struct {
	Radius float64
	Height float64
	tess   tessellation
}

func (c *Cone) Type() ShapeType {
	return ShapeTypeCone
}

func (c *Cone) apex() mgl64.Vec3 {
	return mgl64.Vec3{0, 0, 0.75 * c.Height}
}

func (c *Cone) Support(direction mgl64.Vec3) mgl64.Vec3 {
	apex := c.apex()
	base := mgl64.Vec3{0, 0, -0.25 * c.Height}
	if planar, ok := planarDirection(direction); ok {
		base = base.Add(planar.Mul(c.Radius))
	}

	if apex.Dot(direction) >= base.Dot(direction) {
		return apex
	}

	return base
}

func (c *Cone) IntersectPlane(plane Plane) (Polygon, error) {
	return intersectTessellated(&c.tess, c, plane, func() (*ConvexMesh, error) {
		return NewLatheMesh([]mgl64.Vec2{
			{0, -0.25 * c.Height},
			{c.Radius, -0.25 * c.Height},
			{0, 0.75 * c.Height},
		}, tessellationSegments)
	})
}
