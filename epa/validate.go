package epa

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

func (p *Polytope) counts() (vertices, halfEdges, faces int) {
	used := make([]bool, len(p.verts))
	for f := range p.faces {
		if !p.faces[f].active {
			continue
		}
		faces++
		e := p.faces[f].edge
		for k := 0; k < 3; k++ {
			if v := p.edges[e].vert; v >= 0 && int(v) < len(used) && !used[v] {
				used[v] = true
				vertices++
			}
			halfEdges++
			e = p.edges[e].next
		}
	}

	return vertices, halfEdges, faces
}

// EulerCharacteristic returns V - E + F over the active faces. It is 2 for
// every valid polytope.
func (p *Polytope) EulerCharacteristic() int {
	v, he, f := p.counts()
	return v - he/2 + f
}

// Validate checks the half-edge links of every active face, the free list
// accounting and the Euler characteristic. Every violation found is reported.
func (p *Polytope) Validate() error {
	var err error
	violation := func(format string, args ...interface{}) {
		err = multierr.Append(err, errors.Wrapf(ErrTopology, format, args...))
	}

	for f := range p.faces {
		if !p.faces[f].active {
			continue
		}
		e0 := p.faces[f].edge
		e := e0
		for k := 0; k < 3; k++ {
			edge := p.edges[e]
			if edge.face != int32(f) {
				violation("half-edge %d of face %d belongs to face %d", e, f, edge.face)
			}
			if edge.twin < 0 || p.edges[edge.twin].twin != e {
				violation("half-edge %d has no matching twin", e)
			} else if p.edges[edge.twin].face < 0 || !p.faces[p.edges[edge.twin].face].active {
				violation("twin of half-edge %d is on an inactive face", e)
			}
			if edge.next < 0 || p.edges[edge.next].prev != e {
				violation("half-edge %d: next and prev disagree", e)
			} else if twin := p.edges[edge.next].twin; twin < 0 || p.edges[twin].vert != edge.vert {
				violation("half-edge %d: next does not start at its end vertex", e)
			}
			if edge.next < 0 {
				break
			}
			e = edge.next
		}
		if e != e0 {
			violation("face %d is not a triangle", f)
		}
	}

	vertices, halfEdges, faces := p.counts()
	if halfEdges+len(p.freeEdges) != len(p.edges) {
		violation("%d half-edges in use and %d free, arena holds %d", halfEdges, len(p.freeEdges), len(p.edges))
	}
	if p.heap.Len()+len(p.freeFaces) != len(p.faces) {
		violation("%d faces queued and %d free, arena holds %d", p.heap.Len(), len(p.freeFaces), len(p.faces))
	}
	if halfEdges%2 != 0 {
		violation("odd number of half-edges: %d", halfEdges)
	}
	if euler := vertices - halfEdges/2 + faces; euler != 2 {
		violation("Euler characteristic is %d", euler)
	}

	return err
}
