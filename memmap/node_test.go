package memmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allewwaly/insight-vmi-sub006/memmap"
)

func TestGraphAddAndLinkTree(t *testing.T) {
	g := memmap.NewGraph(memmap.ModeTree)
	root := g.Add(memmap.Node{Address: 0x1000})
	child := g.Add(memmap.Node{Address: 0x2000})
	other := g.Add(memmap.Node{Address: 0x3000})

	g.Link(root, child)
	g.Link(other, child) // under ModeTree, the second parent edge is dropped.

	require.Len(t, g.At(child).Parents, 1)
	assert.Equal(t, root, g.At(child).Parents[0])
	assert.Equal(t, []memmap.NodeID{child}, g.At(root).Children)
	assert.Empty(t, g.At(other).Children)
}

func TestGraphLinkDAGAccumulatesParents(t *testing.T) {
	g := memmap.NewGraph(memmap.ModeDAG)
	a := g.Add(memmap.Node{Address: 0x10})
	b := g.Add(memmap.Node{Address: 0x20})
	shared := g.Add(memmap.Node{Address: 0x30})

	g.Link(a, shared)
	g.Link(b, shared)

	assert.ElementsMatch(t, []memmap.NodeID{a, b}, g.At(shared).Parents)
}

func TestGraphLenAndAt(t *testing.T) {
	g := memmap.NewGraph(memmap.ModeTree)
	assert.Equal(t, 0, g.Len())
	id := g.Add(memmap.Node{Address: 0x42})
	assert.Equal(t, 1, g.Len())
	assert.Equal(t, uint64(0x42), g.At(id).Address)
}
