package epa

// faceHeap orders face indices by ascending distance to the origin, ties
// broken by index so the expansion order is deterministic.
// Entries are never removed when a face is deactivated: stale ones are
// dropped when popped, or by compact.
type faceHeap struct {
	items []int32
	faces []face
}

func (h *faceHeap) Len() int {
	return len(h.items)
}

func (h *faceHeap) Less(i, j int) bool {
	fi, fj := &h.faces[h.items[i]], &h.faces[h.items[j]]
	if fi.distance != fj.distance {
		return fi.distance < fj.distance
	}
	return h.items[i] < h.items[j]
}

func (h *faceHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *faceHeap) Push(x interface{}) {
	h.items = append(h.items, x.(int32))
}

func (h *faceHeap) Pop() interface{} {
	n := len(h.items) - 1
	f := h.items[n]
	h.items = h.items[:n]
	return f
}
