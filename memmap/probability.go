package memmap

import "github.com/allewwaly/insight-vmi-sub006/slab"

// AddressRange bounds the kernel virtual-memory range a candidate
// address must fall within (spec.md §4.E.4: "address validity (in
// kernel virtual-memory range, correctly aligned for the type)").
type AddressRange struct {
	Min, Max uint64
}

func (r AddressRange) contains(addr uint64) bool {
	return addr >= r.Min && addr < r.Max
}

// Criteria bundles everything Probability needs to score one candidate
// child instance (spec.md §4.E.4). Each *Known flag lets a criterion
// that genuinely has no signal for this candidate (e.g. no slab index
// loaded, or a member with no learned constant values) drop out of the
// product rather than forcing a false penalty.
type Criteria struct {
	KernelRange AddressRange
	Address     uint64
	Alignment   uint64 // required byte alignment for the candidate's type; 0 = unconstrained
	ReadOK      bool

	SlabKnown    bool
	SlabValidity slab.ObjectValidity

	MagicKnown bool
	MagicMatch bool

	Depth int
}

// depthDecay is the per-level multiplier spec.md §4.E.4 calls
// "depth-based decay"; a design choice (the spec fixes only the
// ordering, not the weights), chosen so a node ten levels deep from the
// nearest root still retains roughly 95% of its otherwise-earned score.
const depthDecay = 0.995

// slabAgreeScore/slabConflictScore/magicScore are the partial-credit
// weights for the softer corroboration terms, versus the hard 0/1 gate
// address sanity and read success use.
const (
	slabAgreeScore    = 1.0
	slabConflictScore = 0.4
	magicAgreeScore   = 1.0
	magicAbsentScore  = 0.85
)

// Probability implements spec.md §4.E.4: "Probability is the product of
// per-criterion scores clamped to [0, 1]; exact weights are
// design-choice but the ordering is fixed: address sanity dominates,
// then slab agreement, then magic-number agreement, then member
// initialisation agreement." Sequential multiplication preserves that
// ordering: an early zero (a failed hard gate) already forces the whole
// product to zero regardless of the softer terms that follow.
func Probability(c Criteria) float64 {
	p := addressScore(c)
	if p == 0 {
		return 0
	}
	p *= slabScore(c)
	p *= magicScore(c)
	p *= depthScore(c)
	return clamp01(p)
}

func addressScore(c Criteria) float64 {
	if !c.KernelRange.contains(c.Address) {
		return 0
	}
	if c.Alignment > 1 && c.Address%c.Alignment != 0 {
		return 0
	}
	if !c.ReadOK {
		return 0
	}
	return 1
}

func slabScore(c Criteria) float64 {
	if !c.SlabKnown {
		return 1
	}
	if c.SlabValidity.Agrees() {
		return slabAgreeScore
	}
	return slabConflictScore
}

func magicScore(c Criteria) float64 {
	if !c.MagicKnown {
		return magicAbsentScore
	}
	if c.MagicMatch {
		return magicAgreeScore
	}
	return 0
}

func depthScore(c Criteria) float64 {
	p := 1.0
	for i := 0; i < c.Depth; i++ {
		p *= depthDecay
	}
	return p
}

func clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
