package ctype_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/internal/symbol"
)

// buildListHeadModule builds the scenario types from spec.md §8:
//
//	struct list_head { struct list_head *next, *prev; };
//	struct module { int foo; struct list_head list; struct list_head *plist; } modules;
func buildListHeadModule(t *testing.T) (cat *ctype.Catalog, intT, listHeadT, listHeadPtrT, moduleT, modulePtrT ctype.ID) {
	cat = ctype.NewCatalog()

	intID := cat.AllocID()
	listHeadID := cat.AllocID()
	listHeadPtrID := cat.AllocID()
	moduleID := cat.AllocID()
	modulePtrID := cat.AllocID()

	cat.Insert(&ctype.Type{ID: intID, Kind: ctype.KindInteger, Signed: true, Width: 32})
	cat.Insert(&ctype.Type{ID: listHeadPtrID, Kind: ctype.KindPointer, Target: listHeadID})
	cat.Insert(&ctype.Type{
		ID:   listHeadID,
		Kind: ctype.KindStruct,
		Name: symbol.Intern("list_head"),
		Members: []*ctype.Member{
			{Name: symbol.Intern("next"), Type: listHeadPtrID, Offset: 0},
			{Name: symbol.Intern("prev"), Type: listHeadPtrID, Offset: 8},
		},
	})
	cat.Insert(&ctype.Type{ID: modulePtrID, Kind: ctype.KindPointer, Target: moduleID})
	cat.Insert(&ctype.Type{
		ID:   moduleID,
		Kind: ctype.KindStruct,
		Name: symbol.Intern("module"),
		Members: []*ctype.Member{
			{Name: symbol.Intern("foo"), Type: intID, Offset: 0},
			{Name: symbol.Intern("list"), Type: listHeadID, Offset: 8},
			{Name: symbol.Intern("plist"), Type: listHeadPtrID, Offset: 24},
		},
	})
	cat.AddVariable(&ctype.Variable{Name: symbol.Intern("modules"), Type: moduleID, Address: 0x1000})
	return cat, intID, listHeadID, listHeadPtrID, moduleID, modulePtrID
}

func TestByIDAndByName(t *testing.T) {
	cat, _, listHeadID, _, _, _ := buildListHeadModule(t)
	got, ok := cat.ByID(listHeadID)
	require.True(t, ok)
	assert.Equal(t, "struct list_head", got.String())

	byName := cat.ByName("list_head")
	require.Len(t, byName, 1)
	assert.Equal(t, listHeadID, byName[0].ID)

	_, ok = cat.ByID(ctype.ID(99999))
	assert.False(t, ok)
}

func TestEquivalentTypesByStructuralHash(t *testing.T) {
	cat, _, listHeadID, _, _, _ := buildListHeadModule(t)
	equiv := cat.EquivalentTypes(listHeadID)
	assert.Contains(t, equiv, listHeadID)
}

func TestVarsByName(t *testing.T) {
	cat, _, _, _, moduleID, _ := buildListHeadModule(t)
	vars := cat.VarsByName("modules")
	require.Len(t, vars, 1)
	assert.Equal(t, moduleID, vars[0].Type)
}

type fakeExpr struct{ s string }

func (f fakeExpr) ApplyOffset(uint64) (int64, error) { return 0, nil }
func (f fakeExpr) String() string                    { return f.s }

func TestAddAlternateTypeOrderingAndIdempotence(t *testing.T) {
	cat, _, _, _, moduleID, modulePtrID := buildListHeadModule(t)
	members := cat.ByID
	mt, _ := members(moduleID)
	listMember := mt.Members[1] // "list"

	ref := ctype.ReferencingRef{Member: listMember}
	cat.AddAlternateType(ref, modulePtrID, fakeExpr{"most-specific"})
	cat.AddAlternateType(ref, moduleID, fakeExpr{"less-specific"})
	require.Equal(t, 2, listMember.Alt.Len())
	assert.Equal(t, modulePtrID, listMember.Alt.Entries[0].Type)
	assert.Equal(t, moduleID, listMember.Alt.Entries[1].Type)

	// Idempotence (spec.md §8): replaying the same fact adds nothing.
	cat.AddAlternateType(ref, modulePtrID, fakeExpr{"most-specific"})
	assert.Equal(t, 2, listMember.Alt.Len())
}

func TestChangeClockBumpsOnMutation(t *testing.T) {
	cat := ctype.NewCatalog()
	c0 := cat.ChangeClock()
	id := cat.AllocID()
	cat.Insert(&ctype.Type{ID: id, Kind: ctype.KindVoid})
	assert.Greater(t, cat.ChangeClock(), c0)
}

func TestCanonicalStopsAtVoidPointerWithoutDereferencing(t *testing.T) {
	cat := ctype.NewCatalog()
	voidID := cat.AllocID()
	voidPtrID := cat.AllocID()
	typedefID := cat.AllocID()
	cat.Insert(&ctype.Type{ID: voidID, Kind: ctype.KindVoid})
	cat.Insert(&ctype.Type{ID: voidPtrID, Kind: ctype.KindPointer, Target: voidID})
	cat.Insert(&ctype.Type{ID: typedefID, Kind: ctype.KindTypedef, Name: symbol.Intern("voidptr_t"), Target: voidPtrID})

	// Canonicalizing the typedef stops at the pointer, not the void target.
	assert.Equal(t, voidPtrID, cat.Canonical(typedefID))
}

func TestMemberLearnedFacts(t *testing.T) {
	m := &ctype.Member{Name: symbol.Intern("magic")}
	m.ObserveConstInt(0xdeadbeef)
	m.ObserveConstInt(0xcafef00d)
	assert.True(t, m.IsConstant())
	assert.True(t, m.MatchesConstInt(0xdeadbeef))
	assert.False(t, m.MatchesConstInt(42))

	m.MarkNotConstant()
	assert.False(t, m.IsConstant())
	assert.False(t, m.MatchesConstInt(0xdeadbeef))
	// Marking not-constant again, or observing more values, stays extinguished.
	m.ObserveConstInt(7)
	assert.False(t, m.IsConstant())
}
