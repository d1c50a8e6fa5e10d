package bvh

import (
	"github.com/akmonengine/collide/actor"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Node is a read-only view of a tree node, valid until the next mutation.
type Node[T any] struct {
	tree  *Tree[T]
	index int32
}

func (n Node[T]) IsLeaf() bool {
	return n.tree.nodes[n.index].leaf
}

func (n Node[T]) AABB() actor.AABB {
	return n.tree.nodes[n.index].aabb
}

// Children returns the two children of a fork. ok is false for a leaf.
func (n Node[T]) Children() (left, right Node[T], ok bool) {
	nd := &n.tree.nodes[n.index]
	if nd.leaf {
		return Node[T]{}, Node[T]{}, false
	}
	return Node[T]{n.tree, nd.left}, Node[T]{n.tree, nd.right}, true
}

// Leaf returns the handle and content of a leaf. ok is false for a fork.
func (n Node[T]) Leaf() (h Handle, content T, ok bool) {
	nd := &n.tree.nodes[n.index]
	if !nd.leaf {
		return Handle{}, content, false
	}
	return Handle{index: n.index, generation: nd.generation}, nd.content, true
}

// Root returns the root node, or false when the tree is empty.
func (t *Tree[T]) Root() (Node[T], bool) {
	if t.root == nullNode {
		return Node[T]{}, false
	}
	return Node[T]{t, t.root}, true
}

func (t *Tree[T]) handle(i int32) Handle {
	return Handle{index: i, generation: t.nodes[i].generation}
}

// Query calls fn for every leaf whose box overlaps box, pruning forks whose
// box does not. Returning false from fn stops the query.
func (t *Tree[T]) Query(box actor.AABB, fn func(h Handle, content T) bool) {
	if t.root == nullNode {
		return
	}

	stack := make([]int32, 0, 64)
	stack = append(stack, t.root)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[i]
		if !n.aabb.Overlaps(box) {
			continue
		}
		if n.leaf {
			if !fn(t.handle(i), n.content) {
				return
			}
			continue
		}
		stack = append(stack, n.right, n.left)
	}
}

// Pairs calls fn once for every two leaves whose boxes overlap, descending
// both subtrees of each fork left first. Returning false stops the walk.
func (t *Tree[T]) Pairs(fn func(a, b Handle, contentA, contentB T) bool) {
	if t.root == nullNode {
		return
	}

	// b == nullNode: pairs inside subtree a
	type task struct{ a, b int32 }
	stack := make([]task, 0, 64)
	stack = append(stack, task{t.root, nullNode})

	for len(stack) > 0 {
		tk := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if tk.b == nullNode {
			n := &t.nodes[tk.a]
			if n.leaf {
				continue
			}
			stack = append(stack, task{n.left, n.right}, task{n.right, nullNode}, task{n.left, nullNode})
			continue
		}

		a, b := &t.nodes[tk.a], &t.nodes[tk.b]
		if !a.aabb.Overlaps(b.aabb) {
			continue
		}

		switch {
		case a.leaf && b.leaf:
			if !fn(t.handle(tk.a), t.handle(tk.b), a.content, b.content) {
				return
			}
		case a.leaf:
			stack = append(stack, task{tk.a, b.right}, task{tk.a, b.left})
		default:
			stack = append(stack, task{a.right, tk.b}, task{a.left, tk.b})
		}
	}
}

// Traverse visits every node in pre-order, left first, for debug drawing.
func (t *Tree[T]) Traverse(fn func(depth int, box actor.AABB, leaf bool)) {
	if t.root == nullNode {
		return
	}

	type entry struct {
		index int32
		depth int
	}
	stack := []entry{{t.root, 0}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[e.index]
		fn(e.depth, n.aabb, n.leaf)
		if !n.leaf {
			stack = append(stack, entry{n.right, e.depth + 1}, entry{n.left, e.depth + 1})
		}
	}
}

// Leaves iterates the leaves in list order, independent of the tree shape.
// Returning false stops the iteration.
func (t *Tree[T]) Leaves(fn func(h Handle, content T, box actor.AABB) bool) {
	for i := t.head; i != nullNode; i = t.nodes[i].nextLeaf {
		n := &t.nodes[i]
		if !fn(t.handle(i), n.content, n.aabb) {
			return
		}
	}
}

// Height is the number of nodes on the longest root to leaf path, 0 when empty.
func (t *Tree[T]) Height() int {
	height := 0
	t.Traverse(func(depth int, _ actor.AABB, leaf bool) {
		if leaf && depth+1 > height {
			height = depth + 1
		}
	})

	return height
}

// Validate checks the structure of the tree and the free list accounting.
func (t *Tree[T]) Validate() error {
	var err error
	violation := func(format string, args ...interface{}) {
		err = multierr.Append(err, errors.Errorf("bvh: "+format, args...))
	}

	reachable, leaves := 0, 0
	if t.root != nullNode {
		if t.nodes[t.root].parent != nullNode {
			violation("root %d has parent %d", t.root, t.nodes[t.root].parent)
		}

		stack := []int32{t.root}
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			reachable++
			if reachable > len(t.nodes) {
				violation("cycle in tree")
				break
			}

			n := &t.nodes[i]
			if !n.used {
				violation("node %d is reachable but free", i)
			}
			if n.leaf {
				leaves++
				if n.left != nullNode || n.right != nullNode {
					violation("leaf %d has children", i)
				}
				continue
			}

			if n.left == nullNode || n.right == nullNode {
				violation("fork %d is missing a child", i)
				continue
			}
			for _, c := range []int32{n.left, n.right} {
				if t.nodes[c].parent != i {
					violation("child %d of %d points to parent %d", c, i, t.nodes[c].parent)
				}
			}
			if union := t.nodes[n.left].aabb.Union(t.nodes[n.right].aabb); union != n.aabb {
				violation("fork %d box %v is not the union of its children %v", i, n.aabb, union)
			}
			stack = append(stack, n.left, n.right)
		}
	}

	if reachable+len(t.free) != len(t.nodes) {
		violation("%d nodes in the tree and %d free, arena holds %d", reachable, len(t.free), len(t.nodes))
	}
	if leaves != t.leaves {
		violation("%d leaves in the tree, %d counted", leaves, t.leaves)
	}

	listed := 0
	prev := int32(nullNode)
	for i := t.head; i != nullNode && listed <= len(t.nodes); i = t.nodes[i].nextLeaf {
		if t.nodes[i].prevLeaf != prev {
			violation("leaf list broken at %d", i)
		}
		if !t.nodes[i].used || !t.nodes[i].leaf {
			violation("leaf list holds non-leaf %d", i)
		}
		prev = i
		listed++
	}
	if prev != t.tail {
		violation("leaf list tail is %d, expected %d", t.tail, prev)
	}
	if listed != t.leaves {
		violation("leaf list holds %d leaves, %d counted", listed, t.leaves)
	}

	for _, slot := range t.free {
		if t.nodes[slot.node].used {
			violation("node %d is both used and free", slot.node)
		}
	}

	return err
}
