package collide

import (
	"fmt"
	"sort"
	"sync"

	"github.com/akmonengine/collide/actor"
	"github.com/akmonengine/collide/epa"
	"github.com/akmonengine/collide/gjk"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Contact is the answer to a separation-or-penetration query between two shapes.
type Contact struct {
	Status gjk.Status
	// Intersects is true when the shapes overlap by a positive depth.
	Intersects bool
	// Depth of the overlap, set when intersecting.
	Depth float64
	// Distance between the shapes, set when they do not intersect.
	Distance float64
	// Normal is a unit vector from A towards B: the direction to push B out of A,
	// or the direction from A to B across the gap.
	Normal mgl64.Vec3
	// PointA and PointB are the witness points in world space.
	PointA, PointB mgl64.Vec3
}

// Collision is a contact between two bodies of a scene.
type Collision struct {
	BodyA *actor.Body
	BodyB *actor.Body
	Contact
}

// Pair represents a pair of bodies whose bounding boxes overlap
type Pair struct {
	BodyA *actor.Body
	BodyB *actor.Body
	// Index orders the pair among the candidates of one step.
	Index int
}

// collisionPair is a pair GJK found penetrating, with the tetrahedron EPA starts from
type collisionPair struct {
	Pair
	simplex *gjk.Simplex
}

// PairError is the failure of the exact test on one candidate pair.
type PairError struct {
	Pair Pair
	Err  error
}

func (e *PairError) Error() string {
	return fmt.Sprintf("pair %d: %v", e.Pair.Index, e.Err)
}

func (e *PairError) Unwrap() error {
	return e.Err
}

type pairResult struct {
	pair      Pair
	collision Collision
	err       error
}

// Detector runs GJK and, for overlapping shapes, EPA.
// It is safe for concurrent use.
type Detector struct {
	solver *epa.Solver
}

func NewDetector(cfg epa.Config) (*Detector, error) {
	solver, err := epa.NewSolver(cfg)
	if err != nil {
		return nil, err
	}

	return &Detector{solver: solver}, nil
}

// Collide computes the separation or the penetration of a and b.
func (d *Detector) Collide(a, b actor.Convex) (Contact, error) {
	simplex := gjk.SimplexPool.Get().(*gjk.Simplex)
	defer gjk.SimplexPool.Put(simplex)
	simplex.Reset()

	result := gjk.GJK(a, b, simplex)
	if result.Status != gjk.StatusPenetrating {
		return separated(result), nil
	}

	return d.penetrate(a, b, simplex)
}

func separated(result gjk.Result) Contact {
	return Contact{
		Status:   result.Status,
		Distance: result.Distance,
		Normal:   result.Normal,
		PointA:   result.WitnessA,
		PointB:   result.WitnessB,
	}
}

func (d *Detector) penetrate(a, b actor.Convex, simplex *gjk.Simplex) (Contact, error) {
	penetration, err := d.solver.Solve(a, b, simplex)
	if err != nil {
		return Contact{Status: gjk.StatusPenetrating}, errors.Wrap(err, "collide: penetration")
	}

	return Contact{
		Status:     gjk.StatusPenetrating,
		Intersects: penetration.Depth > 0,
		Depth:      penetration.Depth,
		Normal:     penetration.Normal,
		PointA:     penetration.WitnessA,
		PointB:     penetration.WitnessB,
	}, nil
}

// The default configuration always validates.
var defaultDetector, _ = NewDetector(epa.DefaultConfig())

// Collide computes the separation or the penetration of a and b with the default configuration.
func Collide(a, b actor.Convex) (Contact, error) {
	return defaultDetector.Collide(a, b)
}

// NarrowPhase runs the exact test on every candidate pair and returns the
// intersecting ones, ordered by pair index. Pairs that fail are skipped and
// their errors combined; the other results are still returned.
func (d *Detector) NarrowPhase(pairs <-chan Pair, workersCount int) ([]Collision, error) {
	workersCount = max(DEFAULT_WORKERS, workersCount)
	results := d.epaStage(d.gjkStage(pairs, workersCount), workersCount)

	collisions := make([]Collision, 0)
	indices := make([]int, 0)
	var err error
	for r := range results {
		if r.err != nil {
			err = multierr.Append(err, &PairError{Pair: r.pair, Err: r.err})
			continue
		}
		if r.collision.Intersects {
			collisions = append(collisions, r.collision)
			indices = append(indices, r.pair.Index)
		}
	}

	sort.Sort(byIndex{collisions, indices})

	return collisions, err
}

type byIndex struct {
	collisions []Collision
	indices    []int
}

func (s byIndex) Len() int           { return len(s.collisions) }
func (s byIndex) Less(i, j int) bool { return s.indices[i] < s.indices[j] }
func (s byIndex) Swap(i, j int) {
	s.collisions[i], s.collisions[j] = s.collisions[j], s.collisions[i]
	s.indices[i], s.indices[j] = s.indices[j], s.indices[i]
}

// gjkStage filters the pairs down to the penetrating ones.
func (d *Detector) gjkStage(pairChan <-chan Pair, workersCount int) <-chan collisionPair {
	collisionChan := make(chan collisionPair, workersCount)

	go func() {
		var wg sync.WaitGroup
		defer close(collisionChan)

		for range workersCount {
			wg.Add(1)
			go func() {
				defer wg.Done()

				for p := range pairChan {
					simplex := gjk.SimplexPool.Get().(*gjk.Simplex)
					simplex.Reset()

					if result := gjk.GJK(p.BodyA, p.BodyB, simplex); result.Status == gjk.StatusPenetrating {
						collisionChan <- collisionPair{Pair: p, simplex: simplex}
					} else {
						gjk.SimplexPool.Put(simplex)
					}
				}
			}()
		}
		wg.Wait()
	}()

	return collisionChan
}

// epaStage measures the penetration of every pair GJK let through.
func (d *Detector) epaStage(p <-chan collisionPair, workersCount int) <-chan pairResult {
	ch := make(chan pairResult, workersCount)

	go func() {
		var wg sync.WaitGroup
		defer close(ch)

		for range workersCount {
			wg.Add(1)
			go func() {
				defer wg.Done()

				for pair := range p {
					contact, err := d.penetrate(pair.BodyA, pair.BodyB, pair.simplex)
					gjk.SimplexPool.Put(pair.simplex)

					ch <- pairResult{
						pair:      pair.Pair,
						collision: Collision{BodyA: pair.BodyA, BodyB: pair.BodyB, Contact: contact},
						err:       err,
					}
				}
			}()
		}
		wg.Wait()
	}()

	return ch
}
