package memmap

import (
	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/rangetree"
)

// Candidate is one reinterpretation of a child instance under
// consideration (spec.md §4.E.5): the naive declared-type candidate c0,
// or an AltRefType-derived alternate ci.
type Candidate struct {
	Type        ctype.ID
	Address     uint64
	Probability float64
}

// SelectionMargin is the threshold spec.md §4.E.5 names: "If a unique
// cᵢ has p(cᵢ) − p(c₀) > 0.1, replace; if several are within 0.1 of
// each other, emit all as siblings of the parent, letting the range
// tree later select by overlap; otherwise keep c₀."
const SelectionMargin = 0.1

// SelectionOutcome is what Select decided for one child position.
type SelectionOutcome int

const (
	// KeepDeclared: no alternate beats c0 by more than SelectionMargin.
	KeepDeclared SelectionOutcome = iota
	// ReplaceWithAlternate: a unique candidate beats every other by
	// more than SelectionMargin, and it is not c0.
	ReplaceWithAlternate
	// Siblings: two or more candidates are within SelectionMargin of
	// the best; all are materialised as siblings.
	Siblings
)

// Select implements spec.md §4.E.5. declared is c0; alternates is every
// cᵢ, already scored via Probability. The returned slice is the set to
// materialise.
func Select(declared Candidate, alternates []Candidate) (SelectionOutcome, []Candidate) {
	all := append([]Candidate{declared}, alternates...)
	best := all[0]
	for _, c := range all[1:] {
		if c.Probability > best.Probability {
			best = c
		}
	}
	var within []Candidate
	for _, c := range all {
		if best.Probability-c.Probability <= SelectionMargin {
			within = append(within, c)
		}
	}
	switch {
	case len(within) > 1:
		return Siblings, within
	case within[0].Type == declared.Type:
		return KeepDeclared, []Candidate{declared}
	default:
		return ReplaceWithAlternate, []Candidate{within[0]}
	}
}

// Embeds is the relation spec.md §4.E.6 checks before adding a new
// child: "embeds(existing, candidate) decides one of: equal, first
// embeds second, second embeds first, overlapping (conflict),
// disjoint."
type Embeds int

const (
	Disjoint Embeds = iota
	Equal
	FirstEmbedsSecond
	SecondEmbedsFirst
	Overlapping
)

// embedsRelation compares two [address, address+size) ranges and their
// types.
func embedsRelation(existing, candidate Candidate, existingSize, candidateSize uint64) Embeds {
	ea, eb := existing.Address, existing.Address+existingSize
	ca, cb := candidate.Address, candidate.Address+candidateSize
	switch {
	case ea == ca && eb == cb && existing.Type == candidate.Type:
		return Equal
	case ea <= ca && cb <= eb:
		return FirstEmbedsSecond
	case ca <= ea && eb <= cb:
		return SecondEmbedsFirst
	case cb <= ea || eb <= ca:
		return Disjoint
	default:
		return Overlapping
	}
}

// DuplicateAction is what Builder.materialise does about a candidate,
// decided by consulting the range tree for existing overlapping nodes.
type DuplicateAction int

const (
	// Materialise: no conflicting existing node; add a fresh Node.
	Materialise DuplicateAction = iota
	// Reuse: an equal or embedding existing node covers the candidate;
	// increment its FoundInChains counter instead of adding a new node.
	Reuse
	// Replace: the candidate strictly embeds (and so supersedes) the
	// existing node, or partially overlaps it with a higher probability.
	Replace
	// Conflict: existing and candidate overlap with incompatible
	// types; keep whichever has the higher probability and record the
	// conflict.
	Conflict
)

// ResolveDuplicate implements spec.md §4.E.6: before adding a child at
// address A with type T, query the range tree for overlapping nodes and
// decide what to do about each. candidateSize is the candidate's
// declared type's byte extent (ctype.Catalog.SizeBytes); an existing
// node's extent is looked up the same way from its own declared type.
func ResolveDuplicate(tree *rangetree.Tree, cat *ctype.Catalog, g *Graph, candidate Candidate, candidateSize uint64) (DuplicateAction, NodeID) {
	for _, item := range tree.ObjectsInRange(candidate.Address, candidate.Address+candidateSize) {
		existingID := item.(NodeID)
		existing := g.At(existingID)
		existingCandidate := Candidate{Type: existing.Type, Address: existing.Address, Probability: existing.Probability}
		existingSize, ok := cat.SizeBytes(existing.Type)
		if !ok {
			existingSize = 1
		}
		switch embedsRelation(existingCandidate, candidate, existingSize, candidateSize) {
		case Equal, FirstEmbedsSecond:
			return Reuse, existingID
		case SecondEmbedsFirst:
			return Replace, existingID
		case Overlapping:
			if candidate.Probability > existing.Probability {
				return Replace, existingID
			}
			return Conflict, existingID
		}
	}
	return Materialise, NoNode
}
