package actor

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

var (
	// ErrOpenMesh is returned when a half-edge has no twin or a vertex is never referenced.
	ErrOpenMesh = errors.New("mesh is not closed")
	// ErrNonManifold is returned when a directed edge is used by more than one triangle.
	ErrNonManifold = errors.New("mesh is not manifold")
	// ErrNotConvex is returned when a vertex lies in front of a face plane.
	ErrNotConvex = errors.New("mesh is not convex")
	// ErrDegenerateFace is returned for triangles with (near) zero area.
	ErrDegenerateFace = errors.New("mesh has a degenerate face")
)

// Plane is an infinite plane through Origin, facing Normal.
type Plane struct {
	Origin mgl64.Vec3
	Normal mgl64.Vec3
}

// Polygon is a planar convex polygon. Fewer than three vertices describe
// a segment or a point where a plane only grazes a shape.
type Polygon []mgl64.Vec3

// Centroid returns the vertex average of the polygon.
func (p Polygon) Centroid() mgl64.Vec3 {
	var c mgl64.Vec3
	if len(p) == 0 {
		return c
	}
	for _, v := range p {
		c = c.Add(v)
	}

	return c.Mul(1 / float64(len(p)))
}

type meshEdge struct {
	vert int // tip vertex
	next int
	prev int
	twin int
	face int
}

// ConvexMesh is a closed convex triangle mesh stored as half-edges.
// Support queries hill-climb the vertex graph from a cardinal vertex, so
// they stay cheap on meshes with many vertices.
type ConvexMesh struct {
	vertices []mgl64.Vec3
	edges    []meshEdge
	normals  []mgl64.Vec3
	outgoing []int
	cardinal [3][2]int
}

// NewConvexMesh builds a mesh from vertices and counter-clockwise (seen from
// outside) triangles. The mesh must be closed, manifold and convex.
func NewConvexMesh(vertices []mgl64.Vec3, triangles [][3]int) (*ConvexMesh, error) {
	if len(vertices) < 4 || len(triangles) < 4 {
		return nil, errors.Wrapf(ErrOpenMesh, "%d vertices and %d triangles cannot enclose a volume", len(vertices), len(triangles))
	}

	scale := 0.0
	for _, v := range vertices {
		scale = math.Max(scale, v.Len())
	}
	tolerance := 1e-9 * math.Max(scale, 1)

	m := &ConvexMesh{
		vertices: append([]mgl64.Vec3(nil), vertices...),
		edges:    make([]meshEdge, 0, 3*len(triangles)),
		normals:  make([]mgl64.Vec3, 0, len(triangles)),
		outgoing: make([]int, len(vertices)),
	}
	for i := range m.outgoing {
		m.outgoing[i] = -1
	}

	directed := make(map[[2]int]int, 3*len(triangles))
	for f, tri := range triangles {
		for k := 0; k < 3; k++ {
			if tri[k] < 0 || tri[k] >= len(vertices) {
				return nil, errors.Errorf("triangle %d references vertex %d out of range", f, tri[k])
			}
		}
		if tri[0] == tri[1] || tri[1] == tri[2] || tri[2] == tri[0] {
			return nil, errors.Wrapf(ErrDegenerateFace, "triangle %d repeats a vertex", f)
		}

		a, b, c := m.vertices[tri[0]], m.vertices[tri[1]], m.vertices[tri[2]]
		n := b.Sub(a).Cross(c.Sub(a))
		if n.Len() < tolerance*tolerance {
			return nil, errors.Wrapf(ErrDegenerateFace, "triangle %d", f)
		}
		m.normals = append(m.normals, n.Normalize())

		base := len(m.edges)
		for k := 0; k < 3; k++ {
			from, to := tri[k], tri[(k+1)%3]
			key := [2]int{from, to}
			if _, exists := directed[key]; exists {
				return nil, errors.Wrapf(ErrNonManifold, "edge %d->%d", from, to)
			}
			directed[key] = base + k
			m.edges = append(m.edges, meshEdge{
				vert: to,
				next: base + (k+1)%3,
				prev: base + (k+2)%3,
				twin: -1,
				face: f,
			})
			if m.outgoing[from] < 0 {
				m.outgoing[from] = base + k
			}
		}
	}

	for key, e := range directed {
		twin, ok := directed[[2]int{key[1], key[0]}]
		if !ok {
			return nil, errors.Wrapf(ErrOpenMesh, "edge %d->%d has no twin", key[0], key[1])
		}
		m.edges[e].twin = twin
	}

	for v, e := range m.outgoing {
		if e < 0 {
			return nil, errors.Wrapf(ErrOpenMesh, "vertex %d is not referenced", v)
		}
	}

	convexity := 1e-6 * math.Max(scale, 1)
	for f, n := range m.normals {
		origin := m.vertices[m.edges[3*f].vert]
		for v, p := range m.vertices {
			if p.Sub(origin).Dot(n) > convexity {
				return nil, errors.Wrapf(ErrNotConvex, "vertex %d is in front of face %d", v, f)
			}
		}
	}

	for axis := 0; axis < 3; axis++ {
		for v, p := range m.vertices {
			if p[axis] < m.vertices[m.cardinal[axis][0]][axis] {
				m.cardinal[axis][0] = v
			}
			if p[axis] > m.vertices[m.cardinal[axis][1]][axis] {
				m.cardinal[axis][1] = v
			}
		}
	}

	return m, nil
}

// NewBoxMesh returns the 12-triangle mesh of a box with the given half extents.
func NewBoxMesh(halfExtents mgl64.Vec3) (*ConvexMesh, error) {
	vertices := make([]mgl64.Vec3, 8)
	for i := range vertices {
		v := halfExtents
		if i&1 == 0 {
			v[0] = -v[0]
		}
		if i&2 == 0 {
			v[1] = -v[1]
		}
		if i&4 == 0 {
			v[2] = -v[2]
		}
		vertices[i] = v
	}

	return NewConvexMesh(vertices, [][3]int{
		{0, 4, 6}, {0, 6, 2}, // -X
		{1, 3, 7}, {1, 7, 5}, // +X
		{0, 1, 5}, {0, 5, 4}, // -Y
		{2, 6, 7}, {2, 7, 3}, // +Y
		{0, 2, 3}, {0, 3, 1}, // -Z
		{4, 5, 7}, {4, 7, 6}, // +Z
	})
}

// NewLatheMesh revolves a (radius, z) profile around the Z axis. The profile
// runs from the bottom pole to the top pole, both with a zero radius.
func NewLatheMesh(profile []mgl64.Vec2, segments int) (*ConvexMesh, error) {
	const eps = 1e-12

	cleaned := make([]mgl64.Vec2, 0, len(profile))
	for _, p := range profile {
		if len(cleaned) > 0 && p.Sub(cleaned[len(cleaned)-1]).Len() < eps {
			continue
		}
		cleaned = append(cleaned, p)
	}
	if len(cleaned) < 3 || segments < 3 || cleaned[0].X() > eps || cleaned[len(cleaned)-1].X() > eps {
		return nil, errors.Wrap(ErrOpenMesh, "lathe profile must run pole to pole")
	}

	var vertices []mgl64.Vec3
	rings := make([][]int, len(cleaned))
	for k, p := range cleaned {
		if p.X() <= eps {
			if k != 0 && k != len(cleaned)-1 {
				return nil, errors.Wrapf(ErrDegenerateFace, "profile point %d touches the axis", k)
			}
			rings[k] = []int{len(vertices)}
			vertices = append(vertices, mgl64.Vec3{0, 0, p.Y()})
			continue
		}
		for j := 0; j < segments; j++ {
			theta := 2 * math.Pi * float64(j) / float64(segments)
			rings[k] = append(rings[k], len(vertices))
			vertices = append(vertices, mgl64.Vec3{p.X() * math.Cos(theta), p.X() * math.Sin(theta), p.Y()})
		}
	}

	var triangles [][3]int
	for k := 0; k+1 < len(rings); k++ {
		lower, upper := rings[k], rings[k+1]
		for j := 0; j < segments; j++ {
			j1 := (j + 1) % segments
			switch {
			case len(lower) == 1:
				triangles = append(triangles, [3]int{lower[0], upper[j1], upper[j]})
			case len(upper) == 1:
				triangles = append(triangles, [3]int{lower[j], lower[j1], upper[0]})
			default:
				triangles = append(triangles,
					[3]int{lower[j], lower[j1], upper[j1]},
					[3]int{lower[j], upper[j1], upper[j]},
				)
			}
		}
	}

	return NewConvexMesh(vertices, triangles)
}

func (m *ConvexMesh) Type() ShapeType {
	return ShapeTypeConvexMesh
}

// Vertices returns the mesh vertices. The slice must not be modified.
func (m *ConvexMesh) Vertices() []mgl64.Vec3 {
	return m.vertices
}

// Triangles returns the number of faces.
func (m *ConvexMesh) Triangles() int {
	return len(m.normals)
}

func (m *ConvexMesh) Support(direction mgl64.Vec3) mgl64.Vec3 {
	axis := 0
	for i := 1; i < 3; i++ {
		if math.Abs(direction[i]) > math.Abs(direction[axis]) {
			axis = i
		}
	}
	side := 0
	if direction[axis] >= 0 {
		side = 1
	}

	v := m.cardinal[axis][side]
	best := m.vertices[v].Dot(direction)

	// Each step strictly increases the dot product, so the climb visits a vertex at most once.
	for range m.vertices {
		next := -1
		start := m.outgoing[v]
		e := start
		for {
			n := m.edges[e].vert
			if d := m.vertices[n].Dot(direction); d > best {
				best = d
				next = n
			}
			e = m.edges[m.edges[e].twin].next
			if e == start {
				break
			}
		}
		if next < 0 {
			break
		}
		v = next
	}

	return m.vertices[v]
}

// IntersectPlane cuts every edge crossing the plane and orders the crossings
// around their centroid.
func (m *ConvexMesh) IntersectPlane(plane Plane) (Polygon, error) {
	normal := plane.Normal
	if normal.Len() < 1e-12 {
		return nil, nil
	}
	normal = normal.Normalize()

	const eps = 1e-9
	distances := make([]float64, len(m.vertices))
	var points []mgl64.Vec3
	for i, v := range m.vertices {
		distances[i] = v.Sub(plane.Origin).Dot(normal)
		if math.Abs(distances[i]) <= eps {
			points = append(points, v)
		}
	}

	for e, edge := range m.edges {
		if e > edge.twin {
			continue
		}
		from, to := m.edges[edge.prev].vert, edge.vert
		da, db := distances[from], distances[to]
		if (da < -eps && db > eps) || (da > eps && db < -eps) {
			points = append(points, lineIntersectPlane(m.vertices[from], m.vertices[to], plane.Origin, normal))
		}
	}

	return orderPolygon(points, normal), nil
}

// lineIntersectPlane computes the intersection point of a segment with a plane
func lineIntersectPlane(p1, p2, planePoint, planeNormal mgl64.Vec3) mgl64.Vec3 {
	dir := p2.Sub(p1)
	dist := p1.Sub(planePoint).Dot(planeNormal)
	denom := dir.Dot(planeNormal)

	if math.Abs(denom) < 1e-10 {
		return p1 // Segment parallel to plane
	}

	t := -dist / denom
	t = math.Max(0, math.Min(1, t))

	return p1.Add(dir.Mul(t))
}

// tangentBasis returns two unit vectors completing normal into a right-handed frame.
func tangentBasis(normal mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	tangent1 := mgl64.Vec3{1, 0, 0}
	if math.Abs(normal.X()) > 0.9 {
		tangent1 = mgl64.Vec3{0, 1, 0}
	}

	tangent1 = tangent1.Sub(normal.Mul(tangent1.Dot(normal))).Normalize()
	tangent2 := normal.Cross(tangent1).Normalize()

	return tangent1, tangent2
}

func orderPolygon(points []mgl64.Vec3, normal mgl64.Vec3) Polygon {
	const eps = 1e-9

	unique := make(Polygon, 0, len(points))
	for _, p := range points {
		duplicate := false
		for _, q := range unique {
			if p.Sub(q).LenSqr() < eps*eps {
				duplicate = true
				break
			}
		}
		if !duplicate {
			unique = append(unique, p)
		}
	}
	if len(unique) < 3 {
		return unique
	}

	center := unique.Centroid()
	t1, t2 := tangentBasis(normal)
	angles := make(map[int]float64, len(unique))
	index := make([]int, len(unique))
	for i, p := range unique {
		d := p.Sub(center)
		angles[i] = math.Atan2(d.Dot(t2), d.Dot(t1))
		index[i] = i
	}
	sort.Slice(index, func(i, j int) bool {
		return angles[index[i]] < angles[index[j]]
	})

	ordered := make(Polygon, len(unique))
	for i, k := range index {
		ordered[i] = unique[k]
	}

	return dropCollinear(ordered, normal)
}

// dropCollinear removes vertices lying on the segment between their neighbours,
// which appear where a triangulated face diagonal crosses the plane.
func dropCollinear(p Polygon, normal mgl64.Vec3) Polygon {
	for i := 0; len(p) > 3 && i < len(p); {
		prev := p[(i+len(p)-1)%len(p)]
		next := p[(i+1)%len(p)]
		e1, e2 := p[i].Sub(prev), next.Sub(p[i])
		if math.Abs(e1.Cross(e2).Dot(normal)) <= 1e-9*e1.Len()*e2.Len() {
			p = append(p[:i], p[i+1:]...)
			continue
		}
		i++
	}

	return p
}
