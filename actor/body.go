package actor

import "github.com/go-gl/mathgl/mgl64"

// BodyType represents the type of body
type BodyType int

const (
	// BodyTypeDynamic bodies move between steps and are refreshed in the tree
	BodyTypeDynamic BodyType = iota

	// BodyTypeStatic bodies never move (e.g., ground, walls)
	// Two static bodies are never tested against each other
	BodyTypeStatic
)

// Convex is anything GJK and EPA can query: a world-space support mapping
// and a reference point used to seed the search direction.
type Convex interface {
	SupportWorld(direction mgl64.Vec3) mgl64.Vec3
	Center() mgl64.Vec3
}

// Body is a posed geometry, the physics object's side of the collision boundary.
type Body struct {
	Transform Transform
	Geometry  *Geometry
	BodyType  BodyType

	aabb AABB
}

// NewBody creates a body and computes its world AABB.
func NewBody(transform Transform, geometry *Geometry, bodyType BodyType) *Body {
	if transform.Rotation.Len() == 0 {
		transform.Rotation = mgl64.QuatIdent()
	}

	b := &Body{
		Transform: transform,
		Geometry:  geometry,
		BodyType:  bodyType,
	}
	b.UpdateAABB()

	return b
}

// NewShapeBody is a shortcut for a body whose geometry sits at the body origin.
func NewShapeBody(transform Transform, shape Shape, bodyType BodyType) *Body {
	return NewBody(transform, NewGeometry(shape, NewTransform(), Material{}), bodyType)
}

func (b *Body) SetPosition(position mgl64.Vec3) {
	b.Transform.Position = position
	b.UpdateAABB()
}

func (b *Body) SetRotation(rotation mgl64.Quat) {
	b.Transform.Rotation = rotation.Normalize()
	b.UpdateAABB()
}

func (b *Body) SetTransform(transform Transform) {
	b.Transform = transform
	b.UpdateAABB()
}

// UpdateAABB recomputes the cached world box from the current pose.
func (b *Body) UpdateAABB() {
	b.aabb = b.Geometry.WorldAABB(b.Transform)
}

func (b *Body) AABB() AABB {
	return b.aabb
}

// SupportWorld returns the farthest world point of the body along direction.
func (b *Body) SupportWorld(direction mgl64.Vec3) mgl64.Vec3 {
	return b.Geometry.SupportWorld(b.Transform, direction)
}

// Center returns the world position of the geometry frame.
func (b *Body) Center() mgl64.Vec3 {
	return b.Geometry.World(b.Transform).Position
}

func (b *Body) IntersectPlane(plane Plane) (Polygon, error) {
	return b.Geometry.IntersectPlaneWorld(b.Transform, plane)
}
