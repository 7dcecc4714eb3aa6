package symbol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/allewwaly/insight-vmi-sub006/internal/symbol"
)

func TestInternIsStable(t *testing.T) {
	id1 := symbol.Intern("next")
	id2 := symbol.Intern("next")
	assert.Equal(t, id1, id2)
	assert.Equal(t, "next", id1.Str())
}

func TestInternDistinctNames(t *testing.T) {
	a := symbol.Intern("list_head_test_a")
	b := symbol.Intern("list_head_test_b")
	assert.NotEqual(t, a, b)
}

func TestInvalidIsEmptyString(t *testing.T) {
	assert.Equal(t, symbol.Invalid, symbol.Intern(""))
}

func TestHashIsStableAcrossCalls(t *testing.T) {
	id := symbol.Intern("plist")
	assert.Equal(t, id.Hash(), id.Hash())
}
