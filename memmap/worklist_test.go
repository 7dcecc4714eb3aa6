package memmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allewwaly/insight-vmi-sub006/memmap"
)

func TestWorklistPopsHighestProbabilityFirst(t *testing.T) {
	w := memmap.NewWorklist()
	w.Push(1, 0.2)
	w.Push(2, 0.9)
	w.Push(3, 0.5)

	id, prob, ok := w.Pop()
	require.True(t, ok)
	assert.Equal(t, memmap.NodeID(2), id)
	assert.Equal(t, 0.9, prob)

	id, _, ok = w.Pop()
	require.True(t, ok)
	assert.Equal(t, memmap.NodeID(3), id)

	id, _, ok = w.Pop()
	require.True(t, ok)
	assert.Equal(t, memmap.NodeID(1), id)

	_, _, ok = w.Pop()
	assert.False(t, ok)
}

func TestWorklistLen(t *testing.T) {
	w := memmap.NewWorklist()
	assert.Equal(t, 0, w.Len())
	w.Push(1, 0.1)
	w.Push(2, 0.2)
	assert.Equal(t, 2, w.Len())
	w.Pop()
	assert.Equal(t, 1, w.Len())
}
