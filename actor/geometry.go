package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Material tags a geometry for the contact layer. The collision core carries
// it through untouched.
type Material struct {
	Name        string
	Restitution float64 // 0= no rebound, 1= perfect restitution

	StaticFriction  float64
	DynamicFriction float64
}

// Geometry places a convex shape inside its owner's frame.
type Geometry struct {
	Shape    Shape
	Offset   Transform
	Material Material

	oobb AABB
}

// NewGeometry wraps a shape and computes its local bounding box from six
// axis-aligned support queries.
func NewGeometry(shape Shape, offset Transform, material Material) *Geometry {
	if offset.Rotation.Len() == 0 {
		offset.Rotation = mgl64.QuatIdent()
	}

	g := &Geometry{
		Shape:    shape,
		Offset:   offset,
		Material: material,
	}
	g.oobb = computeLocalBoundingBox(shape)

	return g
}

func computeLocalBoundingBox(shape Shape) AABB {
	var box AABB
	for axis := 0; axis < 3; axis++ {
		var dir mgl64.Vec3
		dir[axis] = 1
		box.Max[axis] = shape.Support(dir)[axis]
		dir[axis] = -1
		box.Min[axis] = shape.Support(dir)[axis]
	}

	return box
}

// LocalBoundingBox returns the box enclosing the shape in its own frame.
func (g *Geometry) LocalBoundingBox() AABB {
	return g.oobb
}

// World returns the world pose of the shape frame for an owner at pose.
func (g *Geometry) World(pose Transform) Transform {
	return pose.Compose(g.Offset)
}

// SupportWorld returns the farthest world point along a world direction for an owner at pose.
func (g *Geometry) SupportWorld(pose Transform, direction mgl64.Vec3) mgl64.Vec3 {
	world := g.World(pose)
	local := g.Shape.Support(world.InverseRotate(direction))

	return world.Apply(local)
}

// WorldAABB encloses the local bounding box after it is rotated into world space.
func (g *Geometry) WorldAABB(pose Transform) AABB {
	world := g.World(pose)
	rot := world.Rotation.Mat4().Mat3()

	center := world.Apply(g.oobb.Center())
	half := g.oobb.Extents()

	var extent mgl64.Vec3
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			extent[row] += math.Abs(rot.At(row, col)) * half[col]
		}
	}

	return AABB{Min: center.Sub(extent), Max: center.Add(extent)}
}

// IntersectPlaneWorld cuts the posed shape with a world-space plane.
// The returned polygon is in world space.
func (g *Geometry) IntersectPlaneWorld(pose Transform, plane Plane) (Polygon, error) {
	world := g.World(pose)
	local := Plane{
		Origin: world.InverseRotate(plane.Origin.Sub(world.Position)),
		Normal: world.InverseRotate(plane.Normal),
	}

	polygon, err := g.Shape.IntersectPlane(local)
	if err != nil {
		return nil, err
	}
	for i, p := range polygon {
		polygon[i] = world.Apply(p)
	}

	return polygon, nil
}
