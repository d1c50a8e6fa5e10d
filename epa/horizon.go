package epa

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

func (p *Polytope) markVisited(f int32) {
	p.faces[f].visited = true
	p.visited = append(p.visited, f)
}

// carveHorizon removes every face eye can see, starting from the face it was
// found from, and leaves the loop of edges bordering the hole in p.horizon.
// The horizon edges keep their twins on the remaining faces.
func (p *Polytope) carveHorizon(eye mgl64.Vec3, start int32) error {
	p.visited = p.visited[:0]
	p.stack = p.stack[:0]

	p.markVisited(start)
	p.faces[start].visible = true
	p.stack = append(p.stack, start)

	for len(p.stack) > 0 {
		f := p.stack[len(p.stack)-1]
		p.stack = p.stack[:len(p.stack)-1]

		e := p.faces[f].edge
		for k := 0; k < 3; k++ {
			neighbour := p.edges[p.edges[e].twin].face
			if !p.faces[neighbour].visited {
				p.markVisited(neighbour)
				// e.vert is shared by both faces
				if eye.Sub(p.verts[p.edges[e].vert].Diff).Dot(p.faces[neighbour].normal) > 0 {
					if len(p.stack) == cap(p.stack) {
						return errors.Wrap(ErrCapacityExceeded, "carve stack overflow")
					}
					p.faces[neighbour].visible = true
					p.stack = append(p.stack, neighbour)
				}
			}
			e = p.edges[e].next
		}
	}

	if err := p.walkHorizon(); err != nil {
		return err
	}

	// Collect first: releasing an edge clears the links its twin's face is tested through.
	p.dead = p.dead[:0]
	for _, f := range p.visited {
		if !p.faces[f].visible {
			continue
		}
		e := p.faces[f].edge
		for k := 0; k < 3; k++ {
			if p.faces[p.edges[p.edges[e].twin].face].visible {
				p.dead = append(p.dead, e)
			}
			e = p.edges[e].next
		}
	}
	for _, e := range p.dead {
		p.releaseEdge(e)
	}

	for _, f := range p.visited {
		if p.faces[f].visible {
			p.releaseFace(f)
		}
		p.faces[f].visited = false
		p.faces[f].visible = false
	}

	return nil
}

// walkHorizon follows the boundary of the visible region. From a horizon edge
// it rotates around the edge's end vertex until it meets a hidden face; every
// other face around that vertex must be hidden too, otherwise the visible
// region touches itself there and carving it would not leave a disc.
func (p *Polytope) walkHorizon() error {
	p.horizon = p.horizon[:0]

	start := int32(-1)
	for _, f := range p.visited {
		if !p.faces[f].visible {
			continue
		}
		e := p.faces[f].edge
		for k := 0; k < 3 && start < 0; k++ {
			if !p.faces[p.edges[p.edges[e].twin].face].visible {
				start = e
			}
			e = p.edges[e].next
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return errors.Wrap(ErrTopology, "every face is visible, no horizon")
	}

	limit := len(p.edges)
	rotate := func(e int32) int32 {
		return p.edges[p.edges[e].next].twin
	}

	e := start
	for {
		if len(p.horizon) == cap(p.horizon) {
			return errors.Wrap(ErrTopology, "horizon does not close")
		}
		p.horizon = append(p.horizon, e)

		x := rotate(e)
		for steps := 0; p.faces[p.edges[x].face].visible; steps++ {
			if steps > limit {
				return errors.Wrap(ErrTopology, "vertex fan does not close")
			}
			x = rotate(x)
		}
		for y, steps := rotate(x), 0; y != e; y, steps = rotate(y), steps+1 {
			if steps > limit {
				return errors.Wrap(ErrTopology, "vertex fan does not close")
			}
			if p.faces[p.edges[y].face].visible {
				return errors.Wrapf(ErrTopology, "horizon pinched at vertex %d", p.edges[e].vert)
			}
		}

		e = p.edges[x].twin
		if e == start {
			break
		}
	}

	n := len(p.horizon)
	for i, curr := range p.horizon {
		next := p.horizon[(i+1)%n]
		if p.edges[p.edges[next].twin].vert != p.edges[curr].vert {
			return errors.Wrap(ErrTopology, "horizon loop is broken")
		}
	}

	return nil
}

// patchHorizon fans one triangle from every horizon edge to vertex eye.
func (p *Polytope) patchHorizon(eye int32) error {
	apex := p.verts[eye].Diff

	for _, curr := range p.horizon {
		f, err := p.allocFace()
		if err != nil {
			return err
		}
		prev, err := p.allocEdge()
		if err != nil {
			return err
		}
		next, err := p.allocEdge()
		if err != nil {
			return err
		}

		tail := p.edges[p.edges[curr].twin].vert
		tip := p.edges[curr].vert
		a, b := p.verts[tail].Diff, p.verts[tip].Diff

		normal := a.Sub(apex).Cross(b.Sub(apex))
		if normal.Len() < degenerateNormal {
			return errors.Wrapf(ErrTopology, "degenerate face on edge %d-%d", tail, tip)
		}
		normal = normal.Normalize()

		p.faces[f].normal = normal
		p.faces[f].distance = apex.Dot(normal)
		p.faces[f].edge = curr

		p.edges[prev] = halfEdge{next: curr, prev: next, twin: -1, face: f, vert: tail}
		p.edges[next] = halfEdge{next: prev, prev: curr, twin: -1, face: f, vert: eye}
		p.edges[curr].face = f
		p.edges[curr].next = next
		p.edges[curr].prev = prev

		p.pushHeap(f)
	}

	n := len(p.horizon)
	for i, curr := range p.horizon {
		following := p.horizon[(i+1)%n]
		p.edges[p.edges[curr].next].twin = p.edges[following].prev
		p.edges[p.edges[following].prev].twin = p.edges[curr].next
	}

	return nil
}
