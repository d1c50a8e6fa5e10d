package collide

import (
	"math"
	"math/rand"
	"testing"

	"github.com/akmonengine/collide/actor"
	"github.com/akmonengine/collide/bvh"
	"github.com/akmonengine/collide/epa"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newTestScene(t *testing.T, cfg Config, opts ...Option) *Scene {
	t.Helper()

	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	scene, err := NewScene(cfg, opts...)
	if err != nil {
		t.Fatalf("NewScene: %v", err)
	}

	return scene
}

type recordingDebugger struct {
	nodes    int
	leaves   int
	pairs    []Pair
	contacts []Collision
	failures []error
}

func (d *recordingDebugger) DebugTree(depth int, box actor.AABB, leaf bool) {
	d.nodes++
	if leaf {
		d.leaves++
	}
}

func (d *recordingDebugger) DebugPair(pair Pair) {
	d.pairs = append(d.pairs, pair)
}

func (d *recordingDebugger) DebugContact(collision Collision) {
	d.contacts = append(d.contacts, collision)
}

func (d *recordingDebugger) DebugFailure(pair Pair, err error) {
	d.failures = append(d.failures, err)
}

func TestNewSceneInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 0

	if _, err := NewScene(cfg); err == nil {
		t.Errorf("expected an error for zero workers")
	}
}

func TestSceneAddRemoveBody(t *testing.T) {
	scene := newTestScene(t, DefaultConfig())
	a := createSphere(mgl64.Vec3{0, 0, 0}, 1, actor.BodyTypeDynamic)
	b := createSphere(mgl64.Vec3{5, 0, 0}, 1, actor.BodyTypeDynamic)

	for _, body := range []*actor.Body{a, b, a} {
		if err := scene.AddBody(body); err != nil {
			t.Fatalf("AddBody: %v", err)
		}
	}
	if len(scene.Bodies()) != 2 || scene.Tree().Len() != 2 {
		t.Fatalf("expected 2 bodies, got %d (tree %d)", len(scene.Bodies()), scene.Tree().Len())
	}

	if err := scene.RemoveBody(a); err != nil {
		t.Fatalf("RemoveBody: %v", err)
	}
	if len(scene.Bodies()) != 1 || scene.Bodies()[0] != b {
		t.Errorf("unexpected bodies after removal")
	}
	if scene.Tree().Len() != 1 {
		t.Errorf("tree still holds %d leaves", scene.Tree().Len())
	}
	if err := scene.Tree().Validate(); err != nil {
		t.Errorf("tree is invalid: %v", err)
	}

	if err := scene.RemoveBody(a); !errors.Is(err, ErrUnknownBody) {
		t.Errorf("expected ErrUnknownBody, got %v", err)
	}
}

func TestSceneAddBodyOutOfCapacity(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	cfg := DefaultConfig()
	cfg.Tree.Capacity = 3
	scene := newTestScene(t, cfg, WithLogger(zap.New(core)))

	for i := 0; i < 2; i++ {
		if err := scene.AddBody(createSphere(mgl64.Vec3{float64(i) * 5, 0, 0}, 1, actor.BodyTypeDynamic)); err != nil {
			t.Fatalf("AddBody %d: %v", i, err)
		}
	}

	err := scene.AddBody(createSphere(mgl64.Vec3{10, 0, 0}, 1, actor.BodyTypeDynamic))
	if !errors.Is(err, bvh.ErrOutOfCapacity) {
		t.Fatalf("expected ErrOutOfCapacity, got %v", err)
	}
	if len(scene.Bodies()) != 2 {
		t.Errorf("the dropped body was kept")
	}
	if logs.Len() != 1 {
		t.Errorf("expected 1 warning, got %d", logs.Len())
	}
}

func TestSceneAddBodyInvalidShape(t *testing.T) {
	scene := newTestScene(t, DefaultConfig())

	flat := actor.NewShapeBody(actor.Transform{Rotation: mgl64.QuatIdent()}, &actor.Cone{Radius: 1, Height: 0}, actor.BodyTypeDynamic)
	if err := scene.AddBody(flat); !errors.Is(err, actor.ErrInvalidShape) {
		t.Fatalf("expected ErrInvalidShape, got %v", err)
	}
	if len(scene.Bodies()) != 0 || scene.Tree().Len() != 0 {
		t.Errorf("the rejected body was kept")
	}
}

func TestSceneStepFewBodies(t *testing.T) {
	scene := newTestScene(t, DefaultConfig())

	collisions, err := scene.Step()
	if err != nil || len(collisions) != 0 {
		t.Fatalf("empty scene: %d collisions, err %v", len(collisions), err)
	}

	if err := scene.AddBody(createSphere(mgl64.Vec3{0, 0, 0}, 1, actor.BodyTypeDynamic)); err != nil {
		t.Fatal(err)
	}
	if pairs := scene.BroadPhase(); len(pairs) != 0 {
		t.Errorf("single body produced %d pairs", len(pairs))
	}
}

func TestSceneStep(t *testing.T) {
	scene := newTestScene(t, DefaultConfig())

	ground := createBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}, actor.BodyTypeStatic)
	wall := createBox(mgl64.Vec3{1, 0, 0}, mgl64.Vec3{1, 1, 1}, actor.BodyTypeStatic)
	ball := createSphere(mgl64.Vec3{2.5, 0, 0}, 1, actor.BodyTypeDynamic)
	far := createSphere(mgl64.Vec3{20, 0, 0}, 1, actor.BodyTypeDynamic)
	for _, body := range []*actor.Body{ground, wall, ball, far} {
		if err := scene.AddBody(body); err != nil {
			t.Fatal(err)
		}
	}

	pairs := scene.BroadPhase()
	for _, p := range pairs {
		if p.BodyA.BodyType == actor.BodyTypeStatic && p.BodyB.BodyType == actor.BodyTypeStatic {
			t.Errorf("static pair reported by the broadphase")
		}
	}

	collisions, err := scene.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(collisions) != 1 {
		t.Fatalf("expected 1 collision, got %d", len(collisions))
	}

	c := collisions[0]
	if c.BodyA != wall || c.BodyB != ball {
		t.Errorf("expected the wall first and the ball second")
	}
	if math.Abs(c.Depth-0.5) > 0.02 {
		t.Errorf("Depth = %v, expected 0.5", c.Depth)
	}
	if !vec3ApproxEqual(c.Normal, mgl64.Vec3{1, 0, 0}, 0.05) {
		t.Errorf("Normal = %v, expected (1, 0, 0)", c.Normal)
	}
}

func TestSceneStepMovingBody(t *testing.T) {
	scene := newTestScene(t, DefaultConfig())
	capture := &eventCapture{}
	scene.Events.Subscribe(CONTACT_ENTER, capture.capture)
	scene.Events.Subscribe(CONTACT_STAY, capture.capture)
	scene.Events.Subscribe(CONTACT_EXIT, capture.capture)

	a := createBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}, actor.BodyTypeDynamic)
	b := createBox(mgl64.Vec3{1.5, 0, 0}, mgl64.Vec3{1, 1, 1}, actor.BodyTypeDynamic)
	for _, body := range []*actor.Body{a, b} {
		if err := scene.AddBody(body); err != nil {
			t.Fatal(err)
		}
	}

	steps := []struct {
		name     string
		position mgl64.Vec3
		contacts int
		expected EventType
	}{
		{"overlapping", mgl64.Vec3{1.5, 0, 0}, 1, CONTACT_ENTER},
		{"still overlapping", mgl64.Vec3{1.8, 0, 0}, 1, CONTACT_STAY},
		{"moved away", mgl64.Vec3{8, 0, 0}, 0, CONTACT_EXIT},
		{"back again", mgl64.Vec3{0, 1.5, 0}, 1, CONTACT_ENTER},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			capture.reset()
			b.SetPosition(step.position)

			collisions, err := scene.Step()
			if err != nil {
				t.Fatalf("Step: %v", err)
			}
			if len(collisions) != step.contacts {
				t.Fatalf("expected %d collisions, got %d", step.contacts, len(collisions))
			}
			if capture.count() != 1 || !capture.hasEventType(step.expected) {
				t.Errorf("expected one event of type %d, got %v", step.expected, capture.events)
			}
			if err := scene.Tree().Validate(); err != nil {
				t.Errorf("tree is invalid: %v", err)
			}
		})
	}
}

func TestSceneDeterminismAcrossWorkers(t *testing.T) {
	build := func(workers int) *Scene {
		cfg := DefaultConfig()
		cfg.Workers = workers
		scene := newTestScene(t, cfg)

		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 200; i++ {
			position := mgl64.Vec3{rng.Float64() * 20, rng.Float64() * 20, rng.Float64() * 20}
			var body *actor.Body
			if i%2 == 0 {
				body = createSphere(position, 0.5+rng.Float64(), actor.BodyTypeDynamic)
			} else {
				body = createBox(position, mgl64.Vec3{1, 0.5, 0.75}, actor.BodyTypeDynamic)
			}
			if err := scene.AddBody(body); err != nil {
				t.Fatal(err)
			}
		}
		return scene
	}

	serial, serialErr := build(1).Step()
	parallel, parallelErr := build(4).Step()
	if (serialErr == nil) != (parallelErr == nil) {
		t.Fatalf("errors differ: %v vs %v", serialErr, parallelErr)
	}

	if len(serial) == 0 {
		t.Fatalf("expected some collisions")
	}
	if len(serial) != len(parallel) {
		t.Fatalf("%d collisions with 1 worker, %d with 4", len(serial), len(parallel))
	}
	for i := range serial {
		if serial[i].Contact != parallel[i].Contact {
			t.Errorf("collision %d differs: %+v vs %+v", i, serial[i].Contact, parallel[i].Contact)
		}
	}
}

func TestSceneDebugger(t *testing.T) {
	debugger := &recordingDebugger{}
	scene := newTestScene(t, DefaultConfig(), WithDebugger(debugger))

	bodies := []*actor.Body{
		createBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}, actor.BodyTypeDynamic),
		createBox(mgl64.Vec3{1.5, 0, 0}, mgl64.Vec3{1, 1, 1}, actor.BodyTypeDynamic),
		createSphere(mgl64.Vec3{10, 0, 0}, 1, actor.BodyTypeDynamic),
	}
	for _, body := range bodies {
		if err := scene.AddBody(body); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := scene.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if debugger.leaves != 3 || debugger.nodes != 5 {
		t.Errorf("tree walk saw %d nodes and %d leaves", debugger.nodes, debugger.leaves)
	}
	if len(debugger.pairs) != 1 || len(debugger.contacts) != 1 || len(debugger.failures) != 0 {
		t.Errorf("unexpected debug stream: %d pairs, %d contacts, %d failures",
			len(debugger.pairs), len(debugger.contacts), len(debugger.failures))
	}
}

func TestSceneStepReportsFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	debugger := &recordingDebugger{}
	cfg := DefaultConfig()
	cfg.EPA.MaxVertices = 5
	scene := newTestScene(t, cfg, WithLogger(zap.New(core)), WithDebugger(debugger))

	if err := scene.AddBody(createSphere(mgl64.Vec3{0, 0, 0}, 1, actor.BodyTypeDynamic)); err != nil {
		t.Fatal(err)
	}
	if err := scene.AddBody(createSphere(mgl64.Vec3{0.5, 0, 0}, 1, actor.BodyTypeDynamic)); err != nil {
		t.Fatal(err)
	}

	collisions, err := scene.Step()
	if !errors.Is(err, epa.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if len(collisions) != 0 {
		t.Errorf("failed pair reported as a collision")
	}
	if logs.Len() != 1 || len(debugger.failures) != 1 {
		t.Errorf("expected the failure logged and debugged once, got %d logs and %d failures",
			logs.Len(), len(debugger.failures))
	}
}
