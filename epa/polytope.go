package epa

import (
	"container/heap"

	"github.com/akmonengine/collide/actor"
	"github.com/akmonengine/collide/gjk"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// halfEdge is one directed side of a triangle. vert is the vertex the edge
// points to; its origin is the vert of its twin.
type halfEdge struct {
	next, prev, twin int32
	face             int32
	vert             int32
}

type face struct {
	normal   mgl64.Vec3 // outward, unit
	distance float64    // signed distance of the plane from the origin
	edge     int32      // any half-edge of the face

	active bool
	inHeap bool

	// carve scratch
	visited bool
	visible bool
}

// Polytope is the convex hull EPA grows inside the Minkowski difference of two
// shapes. Vertices, half-edges and faces live in arenas sized by Config;
// released slots go to free lists and are reused.
type Polytope struct {
	cfg  Config
	a, b actor.Convex

	verts []gjk.MinkowskiPoint
	edges []halfEdge
	faces []face

	freeEdges []int32
	freeFaces []int32
	heap      faceHeap

	// scratch, bounded by the arena sizes
	stack   []int32
	visited []int32
	horizon []int32
	dead    []int32

	iterations int
}

func newPolytope(cfg Config) *Polytope {
	p := &Polytope{
		cfg:       cfg,
		verts:     make([]gjk.MinkowskiPoint, 0, cfg.MaxVertices),
		edges:     make([]halfEdge, cfg.MaxEdges),
		faces:     make([]face, cfg.MaxFaces),
		freeEdges: make([]int32, 0, cfg.MaxEdges),
		freeFaces: make([]int32, 0, cfg.MaxFaces),
		stack:     make([]int32, 0, cfg.MaxFaces),
		visited:   make([]int32, 0, cfg.MaxFaces),
		horizon:   make([]int32, 0, cfg.MaxEdges),
		dead:      make([]int32, 0, cfg.MaxEdges),
	}
	p.heap = faceHeap{items: make([]int32, 0, cfg.MaxFaces), faces: p.faces}

	return p
}

// NewPolytope seeds a polytope with the tetrahedron GJK left in simplex.
// The polytope queries a and b for every new support point.
func NewPolytope(a, b actor.Convex, simplex *gjk.Simplex, cfg Config) (*Polytope, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := newPolytope(cfg)
	if err := p.reset(a, b, simplex); err != nil {
		return nil, err
	}

	return p, nil
}

// tetraEdge is the half-edge from vertex i to vertex j of the seed tetrahedron.
func tetraEdge(i, j int) int32 {
	if j > i {
		return int32(3*i + j - 1)
	}
	return int32(3*i + j)
}

func (p *Polytope) reset(a, b actor.Convex, simplex *gjk.Simplex) error {
	if simplex.Count != 4 {
		return errors.Wrapf(ErrDegenerateSimplex, "need 4 points, got %d", simplex.Count)
	}

	p.a, p.b = a, b
	p.iterations = 0
	p.verts = append(p.verts[:0], simplex.Points[:]...)
	p.heap.items = p.heap.items[:0]
	for i := range p.faces {
		p.faces[i] = face{}
	}

	// Released slots are popped lowest index first.
	p.freeEdges = p.freeEdges[:0]
	for e := len(p.edges) - 1; e >= 12; e-- {
		p.freeEdges = append(p.freeEdges, int32(e))
	}
	p.freeFaces = p.freeFaces[:0]
	for f := len(p.faces) - 1; f >= 4; f-- {
		p.freeFaces = append(p.freeFaces, int32(f))
	}

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if i == j {
				continue
			}
			p.edges[tetraEdge(i, j)] = halfEdge{twin: tetraEdge(j, i), vert: int32(j), face: -1}
		}
	}

	// Face f is opposite vertex f.
	for f := 0; f < 4; f++ {
		ia, ib, ic, id := f, (f+1)%4, (f+2)%4, (f+3)%4
		va, vb, vc, vd := p.verts[ia].Diff, p.verts[ib].Diff, p.verts[ic].Diff, p.verts[id].Diff

		normal := vc.Sub(vb).Cross(vd.Sub(vb))
		if normal.Len() < degenerateNormal {
			return errors.Wrapf(ErrDegenerateSimplex, "seed face %d has no area", f)
		}

		var cycle [3]int32
		if normal.Dot(vb.Sub(va)) < 0 {
			cycle = [3]int32{tetraEdge(ic, ib), tetraEdge(ib, id), tetraEdge(id, ic)}
			normal = normal.Mul(-1)
		} else {
			cycle = [3]int32{tetraEdge(ib, ic), tetraEdge(ic, id), tetraEdge(id, ib)}
		}
		normal = normal.Normalize()

		for k, e := range cycle {
			p.edges[e].face = int32(f)
			p.edges[e].next = cycle[(k+1)%3]
			p.edges[e].prev = cycle[(k+2)%3]
		}

		p.faces[f] = face{
			normal:   normal,
			distance: vb.Dot(normal),
			edge:     cycle[0],
			active:   true,
		}
		p.pushHeap(int32(f))
	}

	return nil
}

func (p *Polytope) pushHeap(f int32) {
	p.faces[f].inHeap = true
	heap.Push(&p.heap, f)
}

func (p *Polytope) popHeap() int32 {
	f := heap.Pop(&p.heap).(int32)
	p.faces[f].inHeap = false
	return f
}

// compactHeap drops the deactivated faces still queued and frees their slots.
func (p *Polytope) compactHeap() {
	kept := p.heap.items[:0]
	for _, f := range p.heap.items {
		if p.faces[f].active {
			kept = append(kept, f)
			continue
		}
		p.faces[f].inHeap = false
		p.freeFaces = append(p.freeFaces, f)
	}
	p.heap.items = kept
	heap.Init(&p.heap)
}

func (p *Polytope) allocFace() (int32, error) {
	if len(p.freeFaces) == 0 {
		p.compactHeap()
	}
	if len(p.freeFaces) == 0 {
		return -1, errors.Wrapf(ErrCapacityExceeded, "all %d faces in use", len(p.faces))
	}

	f := p.freeFaces[len(p.freeFaces)-1]
	p.freeFaces = p.freeFaces[:len(p.freeFaces)-1]
	p.faces[f] = face{edge: -1, active: true}

	return f, nil
}

// releaseFace deactivates f. A face still queued is recycled once it leaves the heap.
func (p *Polytope) releaseFace(f int32) {
	p.faces[f].active = false
	if !p.faces[f].inHeap {
		p.freeFaces = append(p.freeFaces, f)
	}
}

func (p *Polytope) allocEdge() (int32, error) {
	if len(p.freeEdges) == 0 {
		return -1, errors.Wrapf(ErrCapacityExceeded, "all %d half-edges in use", len(p.edges))
	}

	e := p.freeEdges[len(p.freeEdges)-1]
	p.freeEdges = p.freeEdges[:len(p.freeEdges)-1]

	return e, nil
}

func (p *Polytope) releaseEdge(e int32) {
	p.edges[e] = halfEdge{next: -1, prev: -1, twin: -1, face: -1, vert: -1}
	p.freeEdges = append(p.freeEdges, e)
}

// Expand pushes the polytope out along the normal of its closest face.
// It returns false once the closest face cannot be improved, which leaves
// the polytope unchanged. Errors leave the polytope unusable.
func (p *Polytope) Expand() (bool, error) {
	for p.heap.Len() > 0 {
		f := p.popHeap()
		if !p.faces[f].active {
			p.freeFaces = append(p.freeFaces, f)
			continue
		}

		closest := p.faces[f]
		eye := gjk.MinkowskiSupport(p.a, p.b, closest.normal)
		delta := eye.Diff.Dot(closest.normal) - closest.distance
		if delta < p.cfg.AbsoluteTolerance ||
			(closest.distance > EPAMinFaceDistance && delta/closest.distance < p.cfg.RelativeTolerance) {
			p.pushHeap(f)
			return false, nil
		}

		if len(p.verts) == cap(p.verts) {
			return false, errors.Wrapf(ErrCapacityExceeded, "all %d vertices in use", cap(p.verts))
		}
		p.verts = append(p.verts, eye)

		if err := p.carveHorizon(eye.Diff, f); err != nil {
			return false, err
		}
		if err := p.patchHorizon(int32(len(p.verts) - 1)); err != nil {
			return false, err
		}
		if err := p.Validate(); err != nil {
			return false, err
		}

		p.iterations++
		return true, nil
	}

	return false, errors.Wrap(ErrTopology, "face heap is empty")
}

// closestFace returns the active face nearest to the origin without removing it.
func (p *Polytope) closestFace() (int32, error) {
	for p.heap.Len() > 0 {
		f := p.heap.items[0]
		if p.faces[f].active {
			return f, nil
		}
		p.popHeap()
		p.freeFaces = append(p.freeFaces, f)
	}

	return -1, errors.Wrap(ErrTopology, "no active face")
}

// faceVertices returns the corners of f in counter-clockwise order seen from outside.
func (p *Polytope) faceVertices(f int32) (a, b, c gjk.MinkowskiPoint) {
	e := p.edges[p.faces[f].edge]
	a = p.verts[p.edges[e.prev].vert]
	b = p.verts[e.vert]
	c = p.verts[p.edges[e.next].vert]
	return a, b, c
}

// ForEachFace calls fn for every active face, in arena order.
func (p *Polytope) ForEachFace(fn func(a, b, c mgl64.Vec3, normal mgl64.Vec3, distance float64)) {
	for f := range p.faces {
		if !p.faces[f].active {
			continue
		}
		a, b, c := p.faceVertices(int32(f))
		fn(a.Diff, b.Diff, c.Diff, p.faces[f].normal, p.faces[f].distance)
	}
}

// Iterations is the number of successful expansions.
func (p *Polytope) Iterations() int {
	return p.iterations
}

// Vertices is the number of support points added so far, seed included.
func (p *Polytope) Vertices() int {
	return len(p.verts)
}
