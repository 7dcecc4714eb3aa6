package slab_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/internal/symbol"
	"github.com/allewwaly/insight-vmi-sub006/slab"
)

func TestValidateOutcomes(t *testing.T) {
	cat := ctype.NewCatalog()
	fooID := cat.AllocID()
	barID := cat.AllocID()
	cat.Insert(&ctype.Type{ID: fooID, Kind: ctype.KindStruct, Name: symbol.Intern("foo")})
	cat.Insert(&ctype.Type{ID: barID, Kind: ctype.KindStruct, Name: symbol.Intern("bar")})

	idx := slab.BuildIndex([]slab.Object{
		{Address: 0x1000, Size: 64, BaseType: fooID},
		{Address: 0x2000, Size: 32, BaseType: ctype.InvalidID},
	})

	assert.Equal(t, slab.OvValid, idx.Validate(cat, 0x1000, 64, fooID))
	assert.Equal(t, slab.OvConflict, idx.Validate(cat, 0x1000, 64, barID))
	assert.Equal(t, slab.OvEmbedded, idx.Validate(cat, 0x1008, 8, fooID))
	assert.Equal(t, slab.OvNoSlabType, idx.Validate(cat, 0x2000, 32, fooID))
	assert.Equal(t, slab.OvNotFound, idx.Validate(cat, 0x9000, 8, fooID))
}

func TestObjectValidityAgrees(t *testing.T) {
	assert.True(t, slab.OvValid.Agrees())
	assert.True(t, slab.OvValidCastType.Agrees())
	assert.True(t, slab.OvEmbedded.Agrees())
	assert.False(t, slab.OvConflict.Agrees())
	assert.False(t, slab.OvNotFound.Agrees())
}
