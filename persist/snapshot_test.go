package persist_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/memmap"
	"github.com/allewwaly/insight-vmi-sub006/persist"
)

func TestSnapshotRoundTripsGraph(t *testing.T) {
	g := memmap.NewGraph(memmap.ModeDAG)
	root := g.Add(memmap.Node{Address: 0x1000, Type: ctype.ID(1), NamePath: "init_task", Probability: 0.9})
	child := g.Add(memmap.Node{Address: 0x2000, Type: ctype.ID(2), NamePath: "init_task.next", Probability: 0.5})
	g.Link(root, child)

	var buf bytes.Buffer
	require.NoError(t, persist.WriteSnapshot(&buf, g))

	got, err := persist.ReadSnapshot(context.Background(), &buf, memmap.ModeDAG)
	require.NoError(t, err)
	require.Equal(t, g.Len(), got.Len())

	assert.Equal(t, g.At(root).Address, got.At(root).Address)
	assert.Equal(t, g.At(root).Children, got.At(root).Children)
	assert.Equal(t, g.At(child).NamePath, got.At(child).NamePath)
	assert.Equal(t, g.At(child).Parents, got.At(child).Parents)
}

func TestSnapshotReadRespectsCancellation(t *testing.T) {
	g := memmap.NewGraph(memmap.ModeTree)
	g.Add(memmap.Node{Address: 0x1000, Type: ctype.ID(1)})

	var buf bytes.Buffer
	require.NoError(t, persist.WriteSnapshot(&buf, g))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := persist.ReadSnapshot(ctx, &buf, memmap.ModeTree)
	assert.Error(t, err)
}
