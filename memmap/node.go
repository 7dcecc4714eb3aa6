// Package memmap implements Component E, the Memory Map Builder
// (spec.md §4.E): it walks a memdevice.Device guided by a ctype.Catalog
// and a rules.Engine, materialising a MemoryMapNode graph.
package memmap

import "github.com/allewwaly/insight-vmi-sub006/ctype"

// NodeID indexes a Node within a Graph's arena, per Design Notes §9's
// "use an id rather than a raw back-pointer" for cyclic structures (the
// node graph is itself cyclic: a linked list's last node points back to
// an earlier one).
type NodeID int

// NoNode marks an absent parent/child link.
const NoNode NodeID = -1

// Mode selects how a Graph records shared sub-objects (spec.md §3:
// "parent edges form a DAG (may be shared..., strict tree under..."):
// ModeTree keeps each Node under exactly one parent, reusing the node
// but dropping the new edge when a second parent would materialise it;
// ModeDAG lets a Node accumulate multiple parents.
type Mode int

const (
	ModeTree Mode = iota
	ModeDAG
)

// Node is spec.md §3's MemoryMapNode: an entry in the reconstructed
// object graph. Invariants: Address != 0 except for roots; Address +
// size-of-Type must not wrap (checked where a Node is materialised, not
// here).
type Node struct {
	ID          NodeID
	Address     uint64
	Type        ctype.ID
	NamePath    string
	Probability float64
	Origin      ctype.Origin
	SeemsValid  bool

	Parents  []NodeID
	Children []NodeID

	// FoundInChains counts how many distinct traversal chains reused
	// this node instead of materialising a fresh one (spec.md §4.E.6:
	// "reuse the existing node (increment its found-in-chains
	// counter)").
	FoundInChains int

	// Depth is the number of dereference/member/array hops from the
	// nearest root, fed into the probability model's depth-based decay
	// (spec.md §4.E.4).
	Depth int

	// Incomplete is true when this node's own expand() returned before
	// every referencing position was resolved (cancellation or
	// interruption mid-expansion). package persist renders it as the
	// "[!]" marker on the indented tree dump (spec.md §6).
	Incomplete bool
}

// Graph owns the Node arena for one memory-map build.
type Graph struct {
	Mode  Mode
	nodes []Node
}

// NewGraph returns an empty Graph.
func NewGraph(mode Mode) *Graph {
	return &Graph{Mode: mode}
}

// Add allocates a new Node and returns its id.
func (g *Graph) Add(n Node) NodeID {
	n.ID = NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	return n.ID
}

// At returns a pointer to the Node for id. Panics on an out-of-range id,
// matching the arena's "ids are only ever handed out by Add" invariant.
func (g *Graph) At(id NodeID) *Node {
	return &g.nodes[id]
}

// Len returns the number of Nodes ever added.
func (g *Graph) Len() int { return len(g.nodes) }

// Link records a parent→child edge, respecting Mode: under ModeTree, a
// child that already has a parent keeps its original parent and the new
// edge is dropped (the caller should treat this as node reuse, per
// spec.md §4.E.6); under ModeDAG, every edge is recorded.
func (g *Graph) Link(parent, child NodeID) {
	p, c := g.At(parent), g.At(child)
	if g.Mode == ModeTree && len(c.Parents) > 0 {
		return
	}
	c.Parents = append(c.Parents, parent)
	p.Children = append(p.Children, child)
}
