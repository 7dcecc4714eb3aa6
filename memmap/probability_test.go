package memmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/allewwaly/insight-vmi-sub006/memmap"
	"github.com/allewwaly/insight-vmi-sub006/slab"
)

func baseCriteria() memmap.Criteria {
	return memmap.Criteria{
		KernelRange: memmap.AddressRange{Min: 0xffff880000000000, Max: 0xffffffffffffffff},
		Address:     0xffff880000001000,
		Alignment:   8,
		ReadOK:      true,
	}
}

func TestProbabilityOutOfRangeIsZero(t *testing.T) {
	c := baseCriteria()
	c.Address = 0x1000
	assert.Equal(t, 0.0, memmap.Probability(c))
}

func TestProbabilityMisalignedIsZero(t *testing.T) {
	c := baseCriteria()
	c.Address++
	assert.Equal(t, 0.0, memmap.Probability(c))
}

func TestProbabilityReadFailureIsZero(t *testing.T) {
	c := baseCriteria()
	c.ReadOK = false
	assert.Equal(t, 0.0, memmap.Probability(c))
}

func TestProbabilityFullAgreementIsHighest(t *testing.T) {
	agree := baseCriteria()
	agree.SlabKnown = true
	agree.SlabValidity = slab.OvValid
	agree.MagicKnown = true
	agree.MagicMatch = true

	disagree := baseCriteria()
	disagree.SlabKnown = true
	disagree.SlabValidity = slab.OvConflict
	disagree.MagicKnown = true
	disagree.MagicMatch = false

	assert.Greater(t, memmap.Probability(agree), memmap.Probability(disagree))
}

func TestProbabilityDecaysWithDepth(t *testing.T) {
	shallow := baseCriteria()
	shallow.Depth = 0
	deep := baseCriteria()
	deep.Depth = 10

	assert.Greater(t, memmap.Probability(shallow), memmap.Probability(deep))
}

func TestProbabilityUnknownSlabOrMagicDoesNotPenalize(t *testing.T) {
	c := baseCriteria()
	full := memmap.Probability(c) // SlabKnown/MagicKnown both false.
	assert.Greater(t, full, 0.0)
	assert.LessOrEqual(t, full, 1.0)
}
