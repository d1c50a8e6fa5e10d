// Package collide detects contacts between convex rigid bodies.
//
// A Scene keeps its bodies in a bounding volume tree. Every Step refreshes the
// bounding boxes of the bodies, collects the pairs whose boxes overlap (broad
// phase) and runs GJK, then EPA for the overlapping ones, on every candidate
// pair (narrow phase).
//
// Single queries go through Collide or a Detector.
package collide

import (
	"sort"

	"github.com/akmonengine/collide/actor"
	"github.com/akmonengine/collide/bvh"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrUnknownBody is returned when removing a body that is not in the scene.
var ErrUnknownBody = errors.New("collide: body is not in the scene")

type Option func(*Scene)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scene) {
		s.logger = logger
	}
}

func WithDebugger(debugger Debugger) Option {
	return func(s *Scene) {
		s.debugger = debugger
	}
}

type entry struct {
	handle bvh.Handle
	order  uint64
}

// Scene owns a set of bodies and the broadphase tree over them.
// Its methods must be called from one goroutine.
type Scene struct {
	cfg      Config
	tree     *bvh.Tree[*actor.Body]
	detector *Detector

	// List of all bodies in insertion order
	bodies  []*actor.Body
	entries map[*actor.Body]entry
	nextID  uint64

	logger   *zap.Logger
	debugger Debugger

	Events Events
}

func NewScene(cfg Config, opts ...Option) (*Scene, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tree, err := bvh.New[*actor.Body](cfg.Tree)
	if err != nil {
		return nil, err
	}
	detector, err := NewDetector(cfg.EPA)
	if err != nil {
		return nil, err
	}

	s := &Scene{
		cfg:      cfg,
		tree:     tree,
		detector: detector,
		entries:  make(map[*actor.Body]entry),
		logger:   zap.NewNop(),
		Events:   NewEvents(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// AddBody adds a body to the scene. When the tree is full the body is not
// added and the error wraps bvh.ErrOutOfCapacity.
func (s *Scene) AddBody(body *actor.Body) error {
	if _, ok := s.entries[body]; ok {
		return nil
	}

	if err := actor.ValidateShape(body.Geometry.Shape); err != nil {
		return errors.Wrap(err, "collide: adding body")
	}

	body.UpdateAABB()
	handle, err := s.tree.Insert(body.AABB(), body)
	if err != nil {
		s.logger.Warn("body dropped, broadphase tree is full",
			zap.Int("bodies", len(s.bodies)),
			zap.Int("capacity", s.tree.Capacity()),
			zap.Error(err),
		)
		return errors.Wrap(err, "collide: adding body")
	}

	s.entries[body] = entry{handle: handle, order: s.nextID}
	s.nextID++
	s.bodies = append(s.bodies, body)

	return nil
}

// RemoveBody removes a body from the scene
func (s *Scene) RemoveBody(body *actor.Body) error {
	e, ok := s.entries[body]
	if !ok {
		return ErrUnknownBody
	}
	if err := s.tree.Remove(e.handle); err != nil {
		return errors.Wrap(err, "collide: removing body")
	}
	delete(s.entries, body)

	for i, b := range s.bodies {
		if b == body {
			s.bodies = append(s.bodies[:i], s.bodies[i+1:]...)
			break
		}
	}
	s.Events.forget(body)

	return nil
}

// Bodies returns the bodies in insertion order. The slice must not be modified.
func (s *Scene) Bodies() []*actor.Body {
	return s.bodies
}

// Tree exposes the broadphase tree for inspection.
func (s *Scene) Tree() *bvh.Tree[*actor.Body] {
	return s.tree
}

func (s *Scene) Detector() *Detector {
	return s.detector
}

// Step runs one detection pass and returns the intersecting pairs, ordered by
// the insertion order of their bodies. Failed pairs are logged, reported to
// the debugger and returned combined in the error, next to the other results.
func (s *Scene) Step() ([]Collision, error) {
	refreshed, err := s.refresh()
	if err != nil {
		return nil, err
	}

	if s.debugger != nil {
		s.tree.Traverse(s.debugger.DebugTree)
	}

	pairs := s.BroadPhase()
	collisions, err := s.detector.NarrowPhase(feed(pairs), s.cfg.Workers)

	for _, e := range multierr.Errors(err) {
		var pairErr *PairError
		if errors.As(e, &pairErr) {
			s.logger.Error("narrowphase failed",
				zap.Int("pair", pairErr.Pair.Index),
				zap.Uint64("bodyA", s.entries[pairErr.Pair.BodyA].order),
				zap.Uint64("bodyB", s.entries[pairErr.Pair.BodyB].order),
				zap.Error(pairErr.Err),
			)
			if s.debugger != nil {
				s.debugger.DebugFailure(pairErr.Pair, pairErr.Err)
			}
		}
	}
	if s.debugger != nil {
		for _, c := range collisions {
			s.debugger.DebugContact(c)
		}
	}

	s.Events.recordCollisions(collisions)
	s.Events.flush()

	s.logger.Debug("step",
		zap.Int("bodies", len(s.bodies)),
		zap.Int("refreshed", refreshed),
		zap.Int("pairs", len(pairs)),
		zap.Int("contacts", len(collisions)),
	)

	return collisions, err
}

// refresh recomputes the world boxes of the bodies in parallel, then moves
// the leaves whose quantized box changed. It returns the number moved.
func (s *Scene) refresh() (int, error) {
	task(s.cfg.Workers, s.bodies, func(body *actor.Body) {
		body.UpdateAABB()
	})

	moved := 0
	for _, body := range s.bodies {
		ok, err := s.tree.UpdateAABB(s.entries[body].handle, body.AABB())
		if err != nil {
			return moved, errors.Wrap(err, "collide: refreshing tree")
		}
		if ok {
			moved++
		}
	}

	return moved, nil
}

// BroadPhase returns the pairs of bodies whose stored boxes overlap, except
// pairs of static bodies. In a pair, BodyA is the body added first. Pairs are
// sorted by the insertion order of BodyA then BodyB, and indexed in that order.
func (s *Scene) BroadPhase() []Pair {
	pairs := make([]Pair, 0)
	s.tree.Pairs(func(_, _ bvh.Handle, a, b *actor.Body) bool {
		if a.BodyType == actor.BodyTypeStatic && b.BodyType == actor.BodyTypeStatic {
			return true
		}
		if s.entries[b].order < s.entries[a].order {
			a, b = b, a
		}
		pairs = append(pairs, Pair{BodyA: a, BodyB: b})
		return true
	})

	sort.Slice(pairs, func(i, j int) bool {
		ai, aj := s.entries[pairs[i].BodyA].order, s.entries[pairs[j].BodyA].order
		if ai != aj {
			return ai < aj
		}
		return s.entries[pairs[i].BodyB].order < s.entries[pairs[j].BodyB].order
	})
	for i := range pairs {
		pairs[i].Index = i
		if s.debugger != nil {
			s.debugger.DebugPair(pairs[i])
		}
	}

	return pairs
}

func feed(pairs []Pair) <-chan Pair {
	ch := make(chan Pair, len(pairs))
	for _, p := range pairs {
		ch <- p
	}
	close(ch)

	return ch
}
