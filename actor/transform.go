package actor

import "github.com/go-gl/mathgl/mgl64"

// Transform represents a position and an orientation in 3D space
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// NewTransform creates an identity transform
func NewTransform() Transform {
	return Transform{
		Position: mgl64.Vec3{0, 0, 0},
		Rotation: mgl64.QuatIdent(),
	}
}

// Rotate applies the rotation only, for directions.
func (t Transform) Rotate(v mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Rotate(v)
}

// InverseRotate brings a world direction into the local frame.
func (t Transform) InverseRotate(v mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Conjugate().Rotate(v)
}

// Apply maps a local point to world space.
func (t Transform) Apply(p mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Rotate(p).Add(t.Position)
}

// Compose returns the transform of a child frame expressed in t's parent frame.
func (t Transform) Compose(local Transform) Transform {
	return Transform{
		Position: t.Apply(local.Position),
		Rotation: t.Rotation.Mul(local.Rotation).Normalize(),
	}
}
