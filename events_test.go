package collide

import (
	"testing"

	"github.com/akmonengine/collide/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// createTestBody creates a minimal Body for event testing
func createTestBody(position mgl64.Vec3) *actor.Body {
	return actor.NewShapeBody(
		actor.Transform{Position: position, Rotation: mgl64.QuatIdent()},
		&actor.Sphere{Radius: 1.0},
		actor.BodyTypeDynamic,
	)
}

// createTestCollision creates a Collision for testing
func createTestCollision(bodyA, bodyB *actor.Body) Collision {
	return Collision{
		BodyA: bodyA,
		BodyB: bodyB,
		Contact: Contact{
			Intersects: true,
			Depth:      0.1,
			Normal:     mgl64.Vec3{1, 0, 0},
		},
	}
}

type eventCapture struct {
	events []Event
}

func (ec *eventCapture) capture(event Event) {
	ec.events = append(ec.events, event)
}

func (ec *eventCapture) reset() {
	ec.events = ec.events[:0]
}

func (ec *eventCapture) count() int {
	return len(ec.events)
}

func (ec *eventCapture) hasEventType(eventType EventType) bool {
	for _, e := range ec.events {
		if e.Type() == eventType {
			return true
		}
	}
	return false
}

func TestEvents_Subscribe(t *testing.T) {
	events := NewEvents()
	capture := &eventCapture{}

	events.Subscribe(CONTACT_ENTER, capture.capture)

	if len(events.listeners[CONTACT_ENTER]) != 1 {
		t.Errorf("Expected 1 listener for CONTACT_ENTER, got %d", len(events.listeners[CONTACT_ENTER]))
	}
}

func TestEvents_MultipleListeners(t *testing.T) {
	events := NewEvents()
	capture1 := &eventCapture{}
	capture2 := &eventCapture{}

	events.Subscribe(CONTACT_ENTER, capture1.capture)
	events.Subscribe(CONTACT_ENTER, capture2.capture)

	bodyA := createTestBody(mgl64.Vec3{0, 0, 0})
	bodyB := createTestBody(mgl64.Vec3{1, 0, 0})
	events.recordCollisions([]Collision{createTestCollision(bodyA, bodyB)})
	events.flush()

	if capture1.count() != 1 || capture2.count() != 1 {
		t.Errorf("Expected 1 event per listener, got %d and %d", capture1.count(), capture2.count())
	}
}

func TestEvents_Lifecycle(t *testing.T) {
	events := NewEvents()
	capture := &eventCapture{}
	events.Subscribe(CONTACT_ENTER, capture.capture)
	events.Subscribe(CONTACT_STAY, capture.capture)
	events.Subscribe(CONTACT_EXIT, capture.capture)

	bodyA := createTestBody(mgl64.Vec3{0, 0, 0})
	bodyB := createTestBody(mgl64.Vec3{1, 0, 0})
	c := createTestCollision(bodyA, bodyB)

	steps := []struct {
		name       string
		collisions []Collision
		expected   EventType
	}{
		{"first contact enters", []Collision{c}, CONTACT_ENTER},
		{"second contact stays", []Collision{c}, CONTACT_STAY},
		{"no contact exits", nil, CONTACT_EXIT},
		{"contact again enters", []Collision{c}, CONTACT_ENTER},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			capture.reset()
			events.recordCollisions(step.collisions)
			events.flush()

			if capture.count() != 1 {
				t.Fatalf("Expected 1 event, got %d", capture.count())
			}
			if !capture.hasEventType(step.expected) {
				t.Errorf("Expected event type %d, got %d", step.expected, capture.events[0].Type())
			}
		})
	}
}

func TestEvents_ExitCarriesBodies(t *testing.T) {
	events := NewEvents()
	capture := &eventCapture{}
	events.Subscribe(CONTACT_EXIT, capture.capture)

	bodyA := createTestBody(mgl64.Vec3{0, 0, 0})
	bodyB := createTestBody(mgl64.Vec3{1, 0, 0})
	events.recordCollisions([]Collision{createTestCollision(bodyA, bodyB)})
	events.flush()
	events.flush()

	if capture.count() != 1 {
		t.Fatalf("Expected 1 exit event, got %d", capture.count())
	}
	exit, ok := capture.events[0].(ContactExitEvent)
	if !ok {
		t.Fatalf("Expected ContactExitEvent, got %T", capture.events[0])
	}
	if exit.BodyA != bodyA || exit.BodyB != bodyB {
		t.Errorf("Exit event has the wrong bodies")
	}
}

func TestEvents_ExitOrder(t *testing.T) {
	bodies := make([]*actor.Body, 6)
	for i := range bodies {
		bodies[i] = createTestBody(mgl64.Vec3{float64(i), 0, 0})
	}
	var collisions []Collision
	for i := range bodies {
		for j := i + 1; j < len(bodies); j++ {
			collisions = append(collisions, createTestCollision(bodies[i], bodies[j]))
		}
	}

	// Map iteration would shuffle the exits between runs.
	for run := 0; run < 20; run++ {
		events := NewEvents()
		capture := &eventCapture{}
		events.Subscribe(CONTACT_EXIT, capture.capture)

		events.recordCollisions(collisions)
		events.flush()
		// The second pair stays, every other pair exits.
		events.recordCollisions(collisions[1:2])
		events.flush()

		if capture.count() != len(collisions)-1 {
			t.Fatalf("Expected %d exit events, got %d", len(collisions)-1, capture.count())
		}
		expected := append(append([]Collision(nil), collisions[:1]...), collisions[2:]...)
		for i, event := range capture.events {
			exit := event.(ContactExitEvent)
			if exit.BodyA != expected[i].BodyA || exit.BodyB != expected[i].BodyB {
				t.Fatalf("run %d: exit %d is out of order", run, i)
			}
		}

		// The staying pair exits on its own next.
		capture.reset()
		events.flush()
		if capture.count() != 1 || capture.events[0].(ContactExitEvent).BodyB != collisions[1].BodyB || capture.events[0].(ContactExitEvent).BodyA != collisions[1].BodyA {
			t.Fatalf("run %d: expected the staying pair to exit, got %v", run, capture.events)
		}
	}
}

func TestEvents_ForgetRemovedBody(t *testing.T) {
	events := NewEvents()
	capture := &eventCapture{}
	events.Subscribe(CONTACT_EXIT, capture.capture)

	bodyA := createTestBody(mgl64.Vec3{0, 0, 0})
	bodyB := createTestBody(mgl64.Vec3{1, 0, 0})
	events.recordCollisions([]Collision{createTestCollision(bodyA, bodyB)})
	events.flush()

	events.forget(bodyB)
	events.flush()

	if capture.count() != 0 {
		t.Errorf("Expected no exit event for a removed body, got %d", capture.count())
	}
}

func TestEvents_NoListener(t *testing.T) {
	events := NewEvents()

	bodyA := createTestBody(mgl64.Vec3{0, 0, 0})
	bodyB := createTestBody(mgl64.Vec3{1, 0, 0})
	events.recordCollisions([]Collision{createTestCollision(bodyA, bodyB)})
	events.flush()

	if len(events.buffer) != 0 {
		t.Errorf("Expected buffer to be cleared after flush, got %d events", len(events.buffer))
	}
}
