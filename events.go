package collide

import "github.com/akmonengine/collide/actor"

const (
	CONTACT_ENTER EventType = iota
	CONTACT_STAY
	CONTACT_EXIT
)

// pairKey identifies a pair of bodies. Scenes always report a pair with the
// same body as BodyA, so no normalization is needed.
type pairKey struct {
	bodyA *actor.Body
	bodyB *actor.Body
}

type EventType uint8

// Event interface - all events implement this
type Event interface {
	Type() EventType
}

// ContactEnterEvent: the pair intersects and did not on the previous step.
type ContactEnterEvent struct {
	Collision
}

func (e ContactEnterEvent) Type() EventType { return CONTACT_ENTER }

// ContactStayEvent: the pair intersects on consecutive steps.
type ContactStayEvent struct {
	Collision
}

func (e ContactStayEvent) Type() EventType { return CONTACT_STAY }

// ContactExitEvent: the pair intersected on the previous step and no longer does.
type ContactExitEvent struct {
	BodyA *actor.Body
	BodyB *actor.Body
}

func (e ContactExitEvent) Type() EventType { return CONTACT_EXIT }

// EventListener - callback for events
type EventListener func(event Event)

// Events dispatches contact transitions between steps.
type Events struct {
	// Listeners by event type
	listeners map[EventType][]EventListener

	// Event buffer to send at flush
	buffer []Event

	// Contact tracking for Enter/Stay/Exit detection
	previousActivePairs map[pairKey]bool
	currentActivePairs  map[pairKey]bool

	// Active pairs in the order their collisions were recorded. Exit events
	// follow the previous order.
	previousOrder []pairKey
	currentOrder  []pairKey
}

func NewEvents() Events {
	return Events{
		listeners:           make(map[EventType][]EventListener),
		buffer:              make([]Event, 0, 256),
		previousActivePairs: make(map[pairKey]bool),
		currentActivePairs:  make(map[pairKey]bool),
	}
}

// Subscribe adds a listener for an event type
func (e *Events) Subscribe(eventType EventType, listener EventListener) {
	e.listeners[eventType] = append(e.listeners[eventType], listener)
}

// recordCollisions buffers an Enter or Stay event for every collision of the step
func (e *Events) recordCollisions(collisions []Collision) {
	for _, c := range collisions {
		pair := pairKey{bodyA: c.BodyA, bodyB: c.BodyB}
		if !e.currentActivePairs[pair] {
			e.currentOrder = append(e.currentOrder, pair)
		}
		e.currentActivePairs[pair] = true

		if e.previousActivePairs[pair] {
			e.buffer = append(e.buffer, ContactStayEvent{Collision: c})
		} else {
			e.buffer = append(e.buffer, ContactEnterEvent{Collision: c})
		}
	}
}

// forget drops the pairs of a removed body without emitting Exit events
func (e *Events) forget(body *actor.Body) {
	kept := e.previousOrder[:0]
	for _, pair := range e.previousOrder {
		if pair.bodyA == body || pair.bodyB == body {
			delete(e.previousActivePairs, pair)
			continue
		}
		kept = append(kept, pair)
	}
	e.previousOrder = kept
}

// flush buffers the Exit events, sends all buffered events and clears the buffer
func (e *Events) flush() {
	for _, pair := range e.previousOrder {
		if !e.currentActivePairs[pair] {
			e.buffer = append(e.buffer, ContactExitEvent{BodyA: pair.bodyA, BodyB: pair.bodyB})
		}
	}

	// Swap for next step and clear current
	e.previousActivePairs, e.currentActivePairs = e.currentActivePairs, e.previousActivePairs
	clear(e.currentActivePairs)
	e.previousOrder, e.currentOrder = e.currentOrder, e.previousOrder[:0]

	for _, event := range e.buffer {
		if listeners, ok := e.listeners[event.Type()]; ok {
			for _, listener := range listeners {
				listener(event)
			}
		}
	}
	e.buffer = e.buffer[:0]
}
