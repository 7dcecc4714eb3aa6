package ctype

import (
	"github.com/allewwaly/insight-vmi-sub006/internal/hash"
	"github.com/allewwaly/insight-vmi-sub006/internal/symbol"
)

// Member belongs to exactly one struct/union (spec.md §3). BitOffset and
// BitSize are only meaningful when HasBitField is true.
type Member struct {
	Name        symbol.ID
	Type        ID
	Offset      uint64
	HasBitField bool
	BitOffset   uint8
	BitSize     uint8

	// Alt is this member's AltRefType, probed most-specific first when
	// the Memory Map Builder dereferences this member (spec.md §3).
	Alt *AltRefType

	// Learned facts (spec.md §3): a set of observed constant integer
	// values, a set of observed constant string values, and a
	// not-constant flag that extinguishes both sets once set. Populated
	// by expr.Evaluator's magic-number capture (spec.md §4.C) during AST
	// evaluation, consumed by memmap.probability as a validator
	// (spec.md §4.E.4).
	constInts    map[int64]struct{}
	constStrings map[string]struct{}
	notConstant  bool
}

// ObserveConstInt records a constant integer value assigned to this
// member, unless the member has already been marked not-constant.
func (m *Member) ObserveConstInt(v int64) {
	if m.notConstant {
		return
	}
	if m.constInts == nil {
		m.constInts = map[int64]struct{}{}
	}
	m.constInts[v] = struct{}{}
}

// ObserveConstString records a constant string value assigned to this
// member, unless the member has already been marked not-constant.
func (m *Member) ObserveConstString(v string) {
	if m.notConstant {
		return
	}
	if m.constStrings == nil {
		m.constStrings = map[string]struct{}{}
	}
	m.constStrings[v] = struct{}{}
}

// MarkNotConstant extinguishes both learned-value sets permanently
// (spec.md §3: "a *not-constant* flag that extinguishes both sets once
// set").
func (m *Member) MarkNotConstant() {
	m.notConstant = true
	m.constInts = nil
	m.constStrings = nil
}

// IsConstant reports whether this member still has any learned values
// and has not been marked not-constant.
func (m *Member) IsConstant() bool {
	return !m.notConstant && (len(m.constInts) > 0 || len(m.constStrings) > 0)
}

// MatchesConstInt reports whether v is among the member's learned
// integer values. Used by memmap.probability's magic-number agreement
// term.
func (m *Member) MatchesConstInt(v int64) bool {
	if m.notConstant {
		return false
	}
	_, ok := m.constInts[v]
	return ok
}

// MatchesConstString reports whether v is among the member's learned
// string values.
func (m *Member) MatchesConstString(v string) bool {
	if m.notConstant {
		return false
	}
	_, ok := m.constStrings[v]
	return ok
}

func (m *Member) structuralHash(targetHash func(ID) hash.Hash) hash.Hash {
	h := m.Name.Hash()
	h = h.Merge(targetHash(m.Type))
	h = h.Merge(hash.Uint64(m.Offset))
	if m.HasBitField {
		h = h.Merge(hash.Uint64(uint64(m.BitOffset)))
		h = h.Merge(hash.Uint64(uint64(m.BitSize)))
	}
	return h
}
