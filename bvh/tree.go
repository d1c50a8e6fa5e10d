// Package bvh implements a bounding volume hierarchy over axis-aligned boxes,
// used as the broad phase of collision detection.
//
// Nodes live in a fixed-capacity arena. Leaves are addressed by
// generation-checked handles, so a handle to a removed leaf never reaches
// whatever reuses its slot. Stored boxes are snapped outward to a grid so small
// motions do not touch the tree.
package bvh

import (
	"github.com/akmonengine/collide/actor"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	DefaultCapacity = 4096
	DefaultQuantum  = 0.25

	nullNode = -1
	// unknownLeaf marks a free slot whose neighbour in the leaf list is not known.
	unknownLeaf = -2
)

var (
	// ErrOutOfCapacity is returned by inserts when the node arena is full.
	ErrOutOfCapacity = errors.New("bvh: out of capacity")
	// ErrInvalidHandle is returned for handles of removed leaves, or handles that were never issued.
	ErrInvalidHandle = errors.New("bvh: invalid handle")
)

// InsertMode selects the heuristic used by Insert.
type InsertMode string

const (
	// ModeDeep descends to the sibling with the cheapest enlargement. Balanced, O(log n).
	ModeDeep InsertMode = "deep"
	// ModeShallow puts every new leaf under a new root, as its left child. O(1), unbalanced.
	ModeShallow InsertMode = "shallow"
)

type Config struct {
	Capacity int        `yaml:"capacity"`
	Quantum  float64    `yaml:"quantum"`
	Mode     InsertMode `yaml:"mode"`
}

func DefaultConfig() Config {
	return Config{
		Capacity: DefaultCapacity,
		Quantum:  DefaultQuantum,
		Mode:     ModeDeep,
	}
}

func (c Config) Validate() error {
	var err error
	if c.Capacity < 1 {
		err = multierr.Append(err, errors.Errorf("bvh: capacity must be positive, got %d", c.Capacity))
	}
	if c.Quantum < 0 {
		err = multierr.Append(err, errors.Errorf("bvh: quantum must not be negative, got %v", c.Quantum))
	}
	if c.Mode != ModeDeep && c.Mode != ModeShallow {
		err = multierr.Append(err, errors.Errorf("bvh: unknown insert mode %q", c.Mode))
	}

	return err
}

// Handle identifies a leaf. The zero Handle is never valid.
type Handle struct {
	index      int32
	generation uint32
}

type node[T any] struct {
	aabb                actor.AABB
	parent, left, right int32
	content             T

	used       bool
	leaf       bool
	generation uint32

	// active leaf list
	prevLeaf, nextLeaf int32
}

// freeSlot is a free node and the leaf it followed in the leaf list when it was released.
type freeSlot struct {
	node      int32
	preceding int32
}

// Tree is a binary AABB tree holding values of type T in its leaves.
// It is not safe for concurrent mutation.
type Tree[T any] struct {
	cfg   Config
	nodes []node[T]
	free  []freeSlot
	root  int32

	head, tail int32
	leaves     int
}

func New[T any](cfg Config) (*Tree[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Tree[T]{
		cfg:   cfg,
		nodes: make([]node[T], cfg.Capacity),
		free:  make([]freeSlot, 0, cfg.Capacity),
		root:  nullNode,
		head:  nullNode,
		tail:  nullNode,
	}
	for i := cfg.Capacity - 1; i >= 0; i-- {
		t.free = append(t.free, freeSlot{node: int32(i), preceding: int32(i - 1)})
	}
	for i := range t.nodes {
		t.nodes[i].generation = 1
	}

	return t, nil
}

func (t *Tree[T]) Config() Config {
	return t.cfg
}

// Len is the number of leaves.
func (t *Tree[T]) Len() int {
	return t.leaves
}

func (t *Tree[T]) Capacity() int {
	return len(t.nodes)
}

func (t *Tree[T]) FreeNodes() int {
	return len(t.free)
}

func (t *Tree[T]) allocNode(leaf bool) int32 {
	slot := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]

	n := &t.nodes[slot.node]
	*n = node[T]{
		parent:     nullNode,
		left:       nullNode,
		right:      nullNode,
		used:       true,
		leaf:       leaf,
		generation: n.generation,
		prevLeaf:   nullNode,
		nextLeaf:   nullNode,
	}
	if leaf {
		t.link(slot.node, slot.preceding)
		t.leaves++
	}

	return slot.node
}

func (t *Tree[T]) freeNode(i int32) {
	n := &t.nodes[i]
	preceding := int32(unknownLeaf)
	if n.leaf {
		preceding = n.prevLeaf
		t.unlink(i)
		t.leaves--
		n.generation++
	}

	var zero T
	n.content = zero
	n.used = false
	t.free = append(t.free, freeSlot{node: i, preceding: preceding})
}

// link puts leaf i back where its slot used to sit in the leaf list: after
// preceding if it is still a leaf, at the head for nullNode, at the tail otherwise.
func (t *Tree[T]) link(i, preceding int32) {
	n := &t.nodes[i]
	switch {
	case preceding == nullNode:
		n.nextLeaf = t.head
		if t.head != nullNode {
			t.nodes[t.head].prevLeaf = i
		}
		t.head = i
		if t.tail == nullNode {
			t.tail = i
		}
	case preceding >= 0 && t.nodes[preceding].used && t.nodes[preceding].leaf:
		n.prevLeaf = preceding
		n.nextLeaf = t.nodes[preceding].nextLeaf
		if n.nextLeaf != nullNode {
			t.nodes[n.nextLeaf].prevLeaf = i
		} else {
			t.tail = i
		}
		t.nodes[preceding].nextLeaf = i
	default:
		n.prevLeaf = t.tail
		if t.tail != nullNode {
			t.nodes[t.tail].nextLeaf = i
		} else {
			t.head = i
		}
		t.tail = i
	}
}

func (t *Tree[T]) unlink(i int32) {
	n := &t.nodes[i]
	if n.prevLeaf != nullNode {
		t.nodes[n.prevLeaf].nextLeaf = n.nextLeaf
	} else {
		t.head = n.nextLeaf
	}
	if n.nextLeaf != nullNode {
		t.nodes[n.nextLeaf].prevLeaf = n.prevLeaf
	} else {
		t.tail = n.prevLeaf
	}
	n.prevLeaf, n.nextLeaf = nullNode, nullNode
}

func (t *Tree[T]) leaf(h Handle) (int32, error) {
	if h.index < 0 || int(h.index) >= len(t.nodes) {
		return nullNode, errors.Wrapf(ErrInvalidHandle, "index %d", h.index)
	}
	n := &t.nodes[h.index]
	if !n.used || !n.leaf || n.generation != h.generation {
		return nullNode, errors.Wrapf(ErrInvalidHandle, "index %d generation %d", h.index, h.generation)
	}

	return h.index, nil
}

// Insert adds a leaf with the configured heuristic.
func (t *Tree[T]) Insert(box actor.AABB, content T) (Handle, error) {
	return t.insert(box, content, t.cfg.Mode)
}

// InsertShallow wraps the current root and the new leaf under a new root. The
// new leaf is always the left child, so traversals that go left first meet the
// most recently inserted leaves first.
func (t *Tree[T]) InsertShallow(box actor.AABB, content T) (Handle, error) {
	return t.insert(box, content, ModeShallow)
}

// InsertDeep descends from the root towards the child whose box grows the
// least, and pairs the new leaf with the leaf it reaches.
func (t *Tree[T]) InsertDeep(box actor.AABB, content T) (Handle, error) {
	return t.insert(box, content, ModeDeep)
}

func (t *Tree[T]) insert(box actor.AABB, content T, mode InsertMode) (Handle, error) {
	needed := 2
	if t.root == nullNode {
		needed = 1
	}
	if len(t.free) < needed {
		return Handle{}, errors.Wrapf(ErrOutOfCapacity, "%d of %d nodes in use", len(t.nodes)-len(t.free), len(t.nodes))
	}

	leaf := t.allocNode(true)
	t.nodes[leaf].aabb = box.Quantize(t.cfg.Quantum)
	t.nodes[leaf].content = content

	if mode == ModeShallow {
		t.placeShallow(leaf)
	} else {
		t.placeDeep(leaf)
	}

	return Handle{index: leaf, generation: t.nodes[leaf].generation}, nil
}

func (t *Tree[T]) placeShallow(leaf int32) {
	if t.root == nullNode {
		t.root = leaf
		return
	}

	fork := t.allocNode(false)
	t.nodes[fork].left = leaf
	t.nodes[fork].right = t.root
	t.nodes[fork].aabb = t.nodes[t.root].aabb.Union(t.nodes[leaf].aabb)
	t.nodes[leaf].parent = fork
	t.nodes[t.root].parent = fork
	t.root = fork
}

func (t *Tree[T]) placeDeep(leaf int32) {
	if t.root == nullNode {
		t.root = leaf
		return
	}

	box := t.nodes[leaf].aabb
	index := t.root
	for !t.nodes[index].leaf {
		n := &t.nodes[index]
		n.aabb = n.aabb.Union(box)

		left, right := t.nodes[n.left].aabb, t.nodes[n.right].aabb
		costLeft := left.Union(box).Area() + right.Area()
		costRight := right.Union(box).Area() + left.Area()
		if costLeft < costRight {
			index = n.left
		} else {
			index = n.right
		}
	}

	sibling := index
	parent := t.nodes[sibling].parent

	fork := t.allocNode(false)
	t.nodes[fork].parent = parent
	t.nodes[fork].left = sibling
	t.nodes[fork].right = leaf
	t.nodes[fork].aabb = t.nodes[sibling].aabb.Union(box)

	if parent == nullNode {
		t.root = fork
	} else if t.nodes[parent].left == sibling {
		t.nodes[parent].left = fork
	} else {
		t.nodes[parent].right = fork
	}
	t.nodes[sibling].parent = fork
	t.nodes[leaf].parent = fork
}

// detach unhooks leaf from the tree without freeing it. Its parent fork is
// freed and the sibling takes its place.
func (t *Tree[T]) detach(leaf int32) {
	if leaf == t.root {
		t.root = nullNode
		return
	}

	parent := t.nodes[leaf].parent
	grandParent := t.nodes[parent].parent
	sibling := t.nodes[parent].left
	if sibling == leaf {
		sibling = t.nodes[parent].right
	}

	t.nodes[leaf].parent = nullNode
	t.nodes[sibling].parent = grandParent
	t.freeNode(parent)

	if grandParent == nullNode {
		t.root = sibling
		return
	}

	if t.nodes[grandParent].left == parent {
		t.nodes[grandParent].left = sibling
	} else {
		t.nodes[grandParent].right = sibling
	}

	for index := grandParent; index != nullNode; index = t.nodes[index].parent {
		n := &t.nodes[index]
		n.aabb = t.nodes[n.left].aabb.Union(t.nodes[n.right].aabb)
	}
}

// Remove deletes the leaf. The handle is invalid afterwards.
func (t *Tree[T]) Remove(h Handle) error {
	leaf, err := t.leaf(h)
	if err != nil {
		return err
	}

	t.detach(leaf)
	t.freeNode(leaf)

	return nil
}

// UpdateAABB moves the leaf to a new box, reinserting it with the deep
// heuristic. It returns false, leaving the tree untouched, when the box
// quantizes to the one already stored. The handle stays valid.
func (t *Tree[T]) UpdateAABB(h Handle, box actor.AABB) (bool, error) {
	leaf, err := t.leaf(h)
	if err != nil {
		return false, err
	}

	quantized := box.Quantize(t.cfg.Quantum)
	if quantized == t.nodes[leaf].aabb {
		return false, nil
	}

	// detach frees the parent fork that placeDeep needs again
	t.detach(leaf)
	t.nodes[leaf].aabb = quantized
	t.placeDeep(leaf)

	return true, nil
}

// Content returns the value stored with the leaf.
func (t *Tree[T]) Content(h Handle) (T, error) {
	leaf, err := t.leaf(h)
	if err != nil {
		var zero T
		return zero, err
	}

	return t.nodes[leaf].content, nil
}

// AABB returns the quantized box stored for the leaf.
func (t *Tree[T]) AABB(h Handle) (actor.AABB, error) {
	leaf, err := t.leaf(h)
	if err != nil {
		return actor.AABB{}, err
	}

	return t.nodes[leaf].aabb, nil
}
