package main

import (
	"math/rand"
	"os"
	"strconv"

	"github.com/akmonengine/collide"
	"github.com/akmonengine/collide/actor"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SceneFile is the YAML layout read by --file.
type SceneFile struct {
	Config collide.Config `yaml:"config"`
	Bodies []BodySpec     `yaml:"bodies"`
}

// BodySpec describes one body. Rotation holds XYZ Euler angles in degrees.
// Velocity is applied once per step, before detection.
type BodySpec struct {
	Name   string `yaml:"name"`
	Shape  string `yaml:"shape"`
	Static bool   `yaml:"static"`

	Radius      float64    `yaml:"radius"`
	HalfHeight  float64    `yaml:"half_height"`
	Height      float64    `yaml:"height"`
	HalfExtents [3]float64 `yaml:"half_extents"`

	Vertices  [][3]float64 `yaml:"vertices"`
	Triangles [][3]int     `yaml:"triangles"`

	Position [3]float64 `yaml:"position"`
	Rotation [3]float64 `yaml:"rotation"`
	Velocity [3]float64 `yaml:"velocity"`
}

// namedBody is a body of a running scene with its display name and motion.
type namedBody struct {
	name     string
	body     *actor.Body
	velocity mgl64.Vec3
}

func (s BodySpec) shape() (actor.Shape, error) {
	switch s.Shape {
	case "sphere":
		return &actor.Sphere{Radius: s.Radius}, nil
	case "box":
		return &actor.Box{HalfExtents: mgl64.Vec3(s.HalfExtents)}, nil
	case "capsule":
		return &actor.Capsule{Radius: s.Radius, HalfHeight: s.HalfHeight}, nil
	case "cylinder":
		return &actor.Cylinder{Radius: s.Radius, HalfHeight: s.HalfHeight}, nil
	case "cone":
		return &actor.Cone{Radius: s.Radius, Height: s.Height}, nil
	case "mesh":
		vertices := make([]mgl64.Vec3, len(s.Vertices))
		for i, v := range s.Vertices {
			vertices[i] = mgl64.Vec3(v)
		}
		return actor.NewConvexMesh(vertices, s.Triangles)
	default:
		return nil, errors.Errorf("unknown shape %q", s.Shape)
	}
}

func (s BodySpec) build() (namedBody, error) {
	shape, err := s.shape()
	if err == nil {
		err = actor.ValidateShape(shape)
	}
	if err != nil {
		return namedBody{}, errors.Wrapf(err, "body %q", s.Name)
	}

	bodyType := actor.BodyTypeDynamic
	if s.Static {
		bodyType = actor.BodyTypeStatic
	}
	rotation := mgl64.AnglesToQuat(
		mgl64.DegToRad(s.Rotation[0]),
		mgl64.DegToRad(s.Rotation[1]),
		mgl64.DegToRad(s.Rotation[2]),
		mgl64.XYZ,
	)

	return namedBody{
		name:     s.Name,
		body:     actor.NewShapeBody(actor.Transform{Position: mgl64.Vec3(s.Position), Rotation: rotation}, shape, bodyType),
		velocity: mgl64.Vec3(s.Velocity),
	}, nil
}

// ParseSceneFile reads a scene over the default configuration.
func ParseSceneFile(data []byte) (SceneFile, error) {
	file := SceneFile{Config: collide.DefaultConfig()}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return SceneFile{}, errors.Wrap(err, "parsing scene")
	}
	if err := file.Config.Validate(); err != nil {
		return SceneFile{}, err
	}

	return file, nil
}

func loadSceneFile(path string) (SceneFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SceneFile{}, errors.Wrapf(err, "reading %s", path)
	}

	return ParseSceneFile(data)
}

func buildBodies(specs []BodySpec) ([]namedBody, error) {
	bodies := make([]namedBody, 0, len(specs))
	for _, s := range specs {
		b, err := s.build()
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, b)
	}

	return bodies, nil
}

var presets = map[string]func() []BodySpec{
	"stack":    stackPreset,
	"scatter":  scatterPreset,
	"capsules": capsulesPreset,
}

// stackPreset is a walled floor with a column of spheres resting on it,
// each sphere sinking slightly into the one below.
func stackPreset() []BodySpec {
	specs := []BodySpec{
		{Name: "floor", Shape: "box", Static: true, HalfExtents: [3]float64{10, 10, 0.5}, Position: [3]float64{0, 0, -0.5}},
		{Name: "wall-x", Shape: "box", Static: true, HalfExtents: [3]float64{0.5, 10, 5}, Position: [3]float64{10.5, 0, 5}},
		{Name: "wall-y", Shape: "box", Static: true, HalfExtents: [3]float64{10, 0.5, 5}, Position: [3]float64{0, 10.5, 5}},
	}
	for i := 0; i < 5; i++ {
		specs = append(specs, BodySpec{
			Name:     "sphere-" + string(rune('a'+i)),
			Shape:    "sphere",
			Radius:   0.5,
			Position: [3]float64{0, 0, 0.45 + float64(i)*0.95},
		})
	}

	return specs
}

// scatterPreset places mixed shapes at seeded random positions in a cube.
func scatterPreset() []BodySpec {
	const count = 64
	const size = 12.0

	rng := rand.New(rand.NewSource(1))
	shapes := []string{"box", "capsule", "cylinder", "sphere"}
	specs := make([]BodySpec, 0, count)
	for i := 0; i < count; i++ {
		specs = append(specs, BodySpec{
			Name:        shapes[i%len(shapes)] + "-" + strconv.Itoa(i),
			Shape:       shapes[i%len(shapes)],
			Radius:      0.4 + rng.Float64()*0.6,
			HalfHeight:  0.3 + rng.Float64()*0.7,
			HalfExtents: [3]float64{0.3 + rng.Float64()*0.7, 0.3 + rng.Float64()*0.7, 0.3 + rng.Float64()*0.7},
			Position:    [3]float64{rng.Float64() * size, rng.Float64() * size, rng.Float64() * size},
			Rotation:    [3]float64{rng.Float64() * 360, rng.Float64() * 360, rng.Float64() * 360},
		})
	}

	return specs
}

// capsulesPreset is two vertical capsules overlapping by 0.2.
func capsulesPreset() []BodySpec {
	return []BodySpec{
		{Name: "left", Shape: "capsule", Radius: 0.5, HalfHeight: 1},
		{Name: "right", Shape: "capsule", Radius: 0.5, HalfHeight: 1, Position: [3]float64{0.8, 0, 0}},
	}
}
