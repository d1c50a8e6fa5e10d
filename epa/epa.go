// Package epa implements the Expanding Polytope Algorithm for computing penetration depth.
//
// EPA is run after GJK detects a collision to determine:
//   - Penetration depth (how far shapes overlap)
//   - Contact normal (direction to separate shapes)
//   - Witness points (the deepest point of each shape inside the other)
//
// The algorithm expands a convex polytope, starting from GJK's final tetrahedron,
// on the boundary of the Minkowski difference until the face closest to the origin
// can no longer be pushed outward. That face gives the minimum translation vector.
//
// The polytope is a half-edge mesh stored in fixed-size arenas, with faces
// ordered in a min-heap by their distance to the origin.
//
// References:
//   - Van den Bergen: "Proximity Queries and Penetration Depth Computation on 3D Game Objects" (2001)
package epa

import (
	"math"
	"sync"

	"github.com/akmonengine/collide/actor"
	"github.com/akmonengine/collide/gjk"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	// EPAMaxIterations limits polytope expansion. When reached, the closest
	// face so far is accepted as an approximate answer.
	EPAMaxIterations = 64

	// EPAAbsoluteTolerance: a support point improving the closest face by less
	// than this distance ends the expansion.
	EPAAbsoluteTolerance = 1e-4

	// EPARelativeTolerance: same as EPAAbsoluteTolerance, relative to the current face distance.
	EPARelativeTolerance = 0.01

	// EPAMinFaceDistance is the face distance under which only the absolute tolerance applies.
	EPAMinFaceDistance = 1e-4

	degenerateNormal = 1e-12
)

var (
	// ErrCapacityExceeded is returned when the vertex, face or edge arena of the
	// polytope is exhausted. The pair needs a larger Config.
	ErrCapacityExceeded = errors.New("epa: polytope capacity exceeded")

	// ErrTopology is returned when the polytope stops being a valid closed
	// triangle mesh: Euler characteristic other than 2, broken half-edge links,
	// pinched horizon or degenerate faces.
	ErrTopology = errors.New("epa: polytope topology violated")

	// ErrDegenerateSimplex is returned when the seed simplex is not a tetrahedron with volume.
	ErrDegenerateSimplex = errors.New("epa: degenerate seed simplex")
)

// Config bounds the work and the memory of one penetration query.
type Config struct {
	MaxIterations     int     `yaml:"max_iterations"`
	MaxVertices       int     `yaml:"max_vertices"`
	MaxFaces          int     `yaml:"max_faces"`
	MaxEdges          int     `yaml:"max_edges"`
	AbsoluteTolerance float64 `yaml:"absolute_tolerance"`
	RelativeTolerance float64 `yaml:"relative_tolerance"`
}

func DefaultConfig() Config {
	return Config{
		MaxIterations:     EPAMaxIterations,
		MaxVertices:       EPAMaxIterations + 4,
		MaxFaces:          512,
		MaxEdges:          1536,
		AbsoluteTolerance: EPAAbsoluteTolerance,
		RelativeTolerance: EPARelativeTolerance,
	}
}

// Validate reports every field that cannot hold a tetrahedron or that is negative.
func (c Config) Validate() error {
	var err error
	if c.MaxIterations < 0 {
		err = multierr.Append(err, errors.Errorf("epa: max_iterations must not be negative, got %d", c.MaxIterations))
	}
	if c.MaxVertices < 4 {
		err = multierr.Append(err, errors.Errorf("epa: max_vertices must be at least 4, got %d", c.MaxVertices))
	}
	if c.MaxFaces < 4 {
		err = multierr.Append(err, errors.Errorf("epa: max_faces must be at least 4, got %d", c.MaxFaces))
	}
	if c.MaxEdges < 12 {
		err = multierr.Append(err, errors.Errorf("epa: max_edges must be at least 12, got %d", c.MaxEdges))
	}
	if c.AbsoluteTolerance < 0 || c.RelativeTolerance < 0 {
		err = multierr.Append(err, errors.New("epa: tolerances must not be negative"))
	}

	return err
}

// Penetration describes how deep two convex shapes overlap.
type Penetration struct {
	Depth      float64    // >= 0
	Normal     mgl64.Vec3 // unit, from A towards B
	WitnessA   mgl64.Vec3 // deepest point of A inside B
	WitnessB   mgl64.Vec3 // deepest point of B inside A
	Iterations int
	// Converged is false when the iteration budget ran out first.
	Converged bool
}

// Solver runs penetration queries with one Config, reusing polytope arenas.
// It is safe for concurrent use.
type Solver struct {
	cfg  Config
	pool sync.Pool
}

func NewSolver(cfg Config) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Solver{cfg: cfg}
	s.pool.New = func() interface{} {
		return newPolytope(cfg)
	}

	return s, nil
}

func (s *Solver) Config() Config {
	return s.cfg
}

// Solve expands the GJK tetrahedron of a and b and returns the penetration.
func (s *Solver) Solve(a, b actor.Convex, simplex *gjk.Simplex) (Penetration, error) {
	p := s.pool.Get().(*Polytope)
	defer s.pool.Put(p)

	if err := p.reset(a, b, simplex); err != nil {
		return Penetration{}, err
	}

	return p.ComputePenetration()
}

// The default configuration always validates.
var defaultSolver, _ = NewSolver(DefaultConfig())

// EPA computes the penetration of a and b with the default configuration.
//
// Algorithm overview:
//  1. Seed the polytope with the tetrahedron from GJK
//  2. Pop the face closest to the origin
//  3. Get the support point along its normal
//  4. If it does not push the face out noticeably → converged
//  5. Otherwise carve the faces visible from the support point and fan new ones to it
//  6. Repeat from step 2
//
// The contact normal points from body A toward body B.
func EPA(a, b actor.Convex, simplex *gjk.Simplex) (Penetration, error) {
	return defaultSolver.Solve(a, b, simplex)
}

// ComputePenetration expands the polytope until it converges or the iteration
// budget is spent, then reads the answer off the closest face.
func (p *Polytope) ComputePenetration() (Penetration, error) {
	converged := false
	for p.iterations < p.cfg.MaxIterations {
		expanded, err := p.Expand()
		if err != nil {
			return Penetration{}, err
		}
		if !expanded {
			converged = true
			break
		}
	}

	f, err := p.closestFace()
	if err != nil {
		return Penetration{}, err
	}

	a, b, c := p.faceVertices(f)
	var triangle gjk.Simplex
	triangle.Add(a)
	triangle.Add(b)
	triangle.Add(c)
	closest, _ := triangle.ClosestPoint()
	onA, onB := closest.Witnesses()

	return Penetration{
		Depth:      math.Max(0, p.faces[f].distance),
		Normal:     p.faces[f].normal,
		WitnessA:   onA,
		WitnessB:   onB,
		Iterations: p.iterations,
		Converged:  converged,
	}, nil
}
