// Package rangetree implements the MemoryRangeTree (spec.md §3, §4.E.7):
// a binary search tree over half-open 64-bit address intervals used to
// look up and deduplicate MemoryMapNodes by the address range they
// occupy. Grounded on
// original_source/trunk/insightd/memoryrangetree.h, which is itself a
// from-scratch binary tree with no standard-library or third-party
// counterpart in the example pack — hand-rolled here rather than built
// on github.com/grailbio/base/intervalmap because that type is
// immutable and batch-built (see slab.Index), while this tree needs
// incremental insert with leaf splitting and live prev/next iteration.
//
// Per spec.md §9's design note on cyclic structures ("use an id rather
// than a raw back-pointer for parent/prev links"), nodes live in a
// single arena slice and refer to each other by index rather than by
// pointer.
package rangetree

// id indexes into Tree.nodes. noNode marks an absent link.
type id int

const noNode id = -1

// node is one arena slot: either an internal split point (left/right
// set, items always empty: a range that spans the split is stored in
// both children) or
// a leaf (left/right unset, prev/next chain this leaf to its address
// order neighbors).
type node struct {
	start, end uint64 // half-open interval this node covers

	parent, left, right id
	prev, next          id // leaf chain; unset on internal nodes

	items      []entry
	properties Properties
}

func (n *node) isLeaf() bool { return n.left == noNode && n.right == noNode }

func (n *node) mid() uint64 { return n.start + (n.end-n.start)/2 }

// entry is one inserted item together with the address range it
// occupies, kept alongside the item so split can redistribute it.
type entry struct {
	item       interface{}
	start, end uint64
}

// Properties is the aggregate spec.md §3 attaches to every node:
// "object count, cumulative size". Update/Unite are commutative and
// associative so a node's Properties can be built purely from the
// entries ever routed through it, independent of later splits.
type Properties struct {
	Count     uint64
	TotalSize uint64
}

func (p *Properties) update(size uint64) {
	p.Count++
	p.TotalSize += size
}

func (p *Properties) unite(other Properties) {
	p.Count += other.Count
	p.TotalSize += other.TotalSize
}

// Tree is a MemoryRangeTree over the address range [0, addrSpaceEnd).
// The zero value is not usable; construct with New.
type Tree struct {
	nodes []node
	root  id
	first id
	last  id

	addrSpaceEnd uint64
}

// New returns an empty Tree spanning [0, addrSpaceEnd).
func New(addrSpaceEnd uint64) *Tree {
	return &Tree{root: noNode, first: noNode, last: noNode, addrSpaceEnd: addrSpaceEnd}
}

func (t *Tree) alloc(start, end uint64, parent id) id {
	t.nodes = append(t.nodes, node{start: start, end: end, parent: parent, left: noNode, right: noNode, prev: noNode, next: noNode})
	return id(len(t.nodes) - 1)
}

func (t *Tree) at(i id) *node {
	if i == noNode {
		return nil
	}
	return &t.nodes[i]
}

// Insert adds item at [start, end) (spec.md §4.E.7's insert(node)).
// end must be > start.
func (t *Tree) Insert(item interface{}, start, end uint64) {
	if t.root == noNode {
		t.root = t.alloc(0, t.addrSpaceEnd, noNode)
		t.first = t.root
		t.last = t.root
	}
	t.insertAt(t.root, entry{item: item, start: start, end: end})
}

// insertAt routes e down from n, splitting leaves whose interval is
// strictly larger than e's own range ("when the leaf covers a range
// strictly larger than the node, the leaf splits into two children at
// the midpoint and redistributes existing items", spec.md §4.E.7). An
// item spanning a split point is pushed into both children, so it ends
// up present in every leaf set it overlaps.
func (t *Tree) insertAt(i id, e entry) {
	n := t.at(i)
	n.properties.update(e.end - e.start)

	if n.isLeaf() {
		n.items = append(n.items, e)
		leafSize := n.end - n.start
		itemSize := e.end - e.start
		if leafSize > 1 && leafSize > itemSize {
			t.split(i)
		}
		return
	}

	mid := n.mid()
	switch {
	case e.end <= mid:
		t.insertAt(n.left, e)
	case e.start >= mid:
		t.insertAt(n.right, e)
	default:
		t.insertAt(n.left, e)
		t.insertAt(n.right, e)
	}
}

// split turns leaf i into an internal node with two fresh leaf
// children, relinking the leaf prev/next chain and redistributing i's
// existing items into whichever child (or both) they belong to.
func (t *Tree) split(i id) {
	n := t.at(i)
	mid := n.mid()
	start, end := n.start, n.end
	oldItems := n.items
	oldPrev, oldNext := n.prev, n.next

	left := t.alloc(start, mid, i)
	right := t.alloc(mid, end, i)

	n = t.at(i) // re-fetch: alloc may have grown the slice and invalidated n
	n.left, n.right = left, right
	n.items = nil
	n.prev, n.next = noNode, noNode

	lp, rp := t.at(left), t.at(right)
	lp.prev, lp.next = oldPrev, right
	rp.prev, rp.next = left, oldNext
	if oldPrev != noNode {
		t.at(oldPrev).next = left
	} else {
		t.first = left
	}
	if oldNext != noNode {
		t.at(oldNext).prev = right
	} else {
		t.last = right
	}

	for _, e := range oldItems {
		switch {
		case e.end <= mid:
			t.insertAt(left, e)
		case e.start >= mid:
			t.insertAt(right, e)
		default:
			t.insertAt(left, e)
			t.insertAt(right, e)
		}
	}
}

func (t *Tree) leafAt(addr uint64) id {
	i := t.root
	for i != noNode {
		n := t.at(i)
		if n.isLeaf() {
			return i
		}
		if addr < n.mid() {
			i = n.left
		} else {
			i = n.right
		}
	}
	return noNode
}

// ObjectsAt implements objects_at(addr): the items whose range
// contains addr, found by a single root-to-leaf descent, including any
// items held at internal nodes the descent passes through (those that
// straddle a split point on the way down).
func (t *Tree) ObjectsAt(addr uint64) []interface{} {
	if t.root == noNode {
		return nil
	}
	var out []interface{}
	i := t.root
	for i != noNode {
		n := t.at(i)
		for _, e := range n.items {
			if e.start <= addr && addr < e.end {
				out = append(out, e.item)
			}
		}
		if n.isLeaf() {
			break
		}
		if addr < n.mid() {
			i = n.left
		} else {
			i = n.right
		}
	}
	return out
}

// ObjectsInRange implements objects_in_range(lo, hi): seek to the leaf
// for lo, then walk the leaf chain in address order until past hi,
// unioning each leaf's items (and, along the initial seek, any
// straddling items held above that leaf). An item overlapping more
// than one leaf is deduplicated by identity.
func (t *Tree) ObjectsInRange(lo, hi uint64) []interface{} {
	if t.root == noNode || lo >= hi {
		return nil
	}
	seen := map[interface{}]bool{}
	var out []interface{}
	add := func(e entry) {
		if e.start < hi && lo < e.end && !seen[e.item] {
			seen[e.item] = true
			out = append(out, e.item)
		}
	}

	i := t.root
	for i != noNode {
		n := t.at(i)
		for _, e := range n.items {
			add(e)
		}
		if n.isLeaf() {
			break
		}
		if lo < n.mid() {
			i = n.left
		} else {
			i = n.right
		}
	}

	for leaf := t.leafAt(lo); leaf != noNode; leaf = t.at(leaf).next {
		n := t.at(leaf)
		if n.start >= hi {
			break
		}
		for _, e := range n.items {
			add(e)
		}
	}
	return out
}

// PropertiesAt is properties_of_range(addr, addr+1).
func (t *Tree) PropertiesAt(addr uint64) Properties {
	if addr == ^uint64(0) {
		return t.PropertiesOfRange(addr, addr)
	}
	return t.PropertiesOfRange(addr, addr+1)
}

// PropertiesOfRange implements properties_of_range(lo, hi): aggregates
// summaries along the ancestor path without descending to leaves
// (spec.md §4.E.7) — a node whose interval is fully covered by
// [lo, hi) contributes its Properties directly; only nodes straddling
// lo or hi are descended into.
func (t *Tree) PropertiesOfRange(lo, hi uint64) Properties {
	var result Properties
	if t.root == noNode || lo >= hi {
		return result
	}
	var walk func(i id)
	walk = func(i id) {
		n := t.at(i)
		if n.end <= lo || n.start >= hi {
			return
		}
		if n.start >= lo && n.end <= hi {
			result.unite(n.properties)
			return
		}
		for _, e := range n.items {
			if e.start < hi && lo < e.end {
				result.update(e.end - e.start)
			}
		}
		if !n.isLeaf() {
			walk(n.left)
			walk(n.right)
		}
	}
	walk(t.root)
	return result
}

// Leaf is a read-only handle to one leaf for O(1) chain iteration
// after an O(log N) seek (spec.md §4.E.7's first/last and per-leaf
// prev/next).
type Leaf struct {
	t *Tree
	i id
}

func (l Leaf) valid() bool { return l.i != noNode }

// Start and End return the half-open interval the leaf covers.
func (l Leaf) Start() uint64 { return l.t.at(l.i).start }
func (l Leaf) End() uint64   { return l.t.at(l.i).end }

// Items returns the items held directly at this leaf.
func (l Leaf) Items() []interface{} {
	n := l.t.at(l.i)
	out := make([]interface{}, len(n.items))
	for i, e := range n.items {
		out[i] = e.item
	}
	return out
}

// Next and Prev return the neighboring leaf in address order, or an
// invalid Leaf (Valid() == false) at either end of the chain.
func (l Leaf) Next() Leaf {
	if !l.valid() {
		return Leaf{t: l.t, i: noNode}
	}
	return Leaf{t: l.t, i: l.t.at(l.i).next}
}

func (l Leaf) Prev() Leaf {
	if !l.valid() {
		return Leaf{t: l.t, i: noNode}
	}
	return Leaf{t: l.t, i: l.t.at(l.i).prev}
}

// Valid reports whether l refers to an actual leaf.
func (l Leaf) Valid() bool { return l.valid() }

// First and Last return the lowest- and highest-address leaves.
func (t *Tree) First() Leaf { return Leaf{t: t, i: t.first} }
func (t *Tree) Last() Leaf  { return Leaf{t: t, i: t.last} }

// LeafAt returns the leaf whose interval contains addr.
func (t *Tree) LeafAt(addr uint64) Leaf { return Leaf{t: t, i: t.leafAt(addr)} }
