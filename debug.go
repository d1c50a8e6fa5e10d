package collide

import (
	"github.com/akmonengine/collide/actor"
	"go.uber.org/zap"
)

// Debugger receives what a scene computes during Step, for visualization or
// tracing. Implementations must not mutate the scene.
type Debugger interface {
	// DebugTree is called for every node of the broadphase tree, in pre-order.
	DebugTree(depth int, box actor.AABB, leaf bool)
	// DebugPair is called for every broadphase candidate.
	DebugPair(pair Pair)
	// DebugContact is called for every intersecting pair.
	DebugContact(collision Collision)
	// DebugFailure is called when the exact test of a pair fails.
	DebugFailure(pair Pair, err error)
}

// LogDebugger writes the debug stream to a zap logger at debug level.
type LogDebugger struct {
	Logger *zap.Logger
}

func (d LogDebugger) DebugTree(depth int, box actor.AABB, leaf bool) {
	d.Logger.Debug("tree node",
		zap.Int("depth", depth),
		zap.Bool("leaf", leaf),
		zap.Float64s("min", box.Min[:]),
		zap.Float64s("max", box.Max[:]),
	)
}

func (d LogDebugger) DebugPair(pair Pair) {
	d.Logger.Debug("candidate pair",
		zap.Int("index", pair.Index),
		zap.Float64s("centerA", centerOf(pair.BodyA)),
		zap.Float64s("centerB", centerOf(pair.BodyB)),
	)
}

func (d LogDebugger) DebugContact(c Collision) {
	d.Logger.Debug("contact",
		zap.Float64("depth", c.Depth),
		zap.Float64s("normal", c.Normal[:]),
		zap.Float64s("pointA", c.PointA[:]),
		zap.Float64s("pointB", c.PointB[:]),
	)
}

func (d LogDebugger) DebugFailure(pair Pair, err error) {
	d.Logger.Debug("narrowphase failure", zap.Int("index", pair.Index), zap.Error(err))
}

func centerOf(body *actor.Body) []float64 {
	c := body.Center()
	return c[:]
}
