package persist_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/internal/symbol"
	"github.com/allewwaly/insight-vmi-sub006/memmap"
	"github.com/allewwaly/insight-vmi-sub006/persist"
)

func newIntCatalog(t *testing.T) (*ctype.Catalog, ctype.ID) {
	t.Helper()
	cat := ctype.NewCatalog()
	id := cat.AllocID()
	cat.Insert(&ctype.Type{ID: id, Kind: ctype.KindInteger, Name: symbol.Intern("int"), Width: 32})
	return cat, id
}

func TestWriteMapFormatsFixedFields(t *testing.T) {
	cat, typeID := newIntCatalog(t)
	g := memmap.NewGraph(memmap.ModeTree)
	g.Add(memmap.Node{Address: 0xffff880000001000, Type: typeID, Probability: 0.75})

	var buf bytes.Buffer
	require.NoError(t, persist.WriteMap(&buf, g, cat))

	line := strings.TrimRight(buf.String(), "\n")
	fields := strings.Fields(line)
	require.Len(t, fields, 5)
	assert.Equal(t, "ffff880000001000", fields[0])
	assert.Equal(t, "4", fields[1])
	assert.Equal(t, "0.7500", fields[2])
	assert.Equal(t, "00000001", fields[3])
	assert.Equal(t, `"int"`, fields[4])
}

func TestWriteTreeIndentsByDepthAndMarksIncomplete(t *testing.T) {
	cat, typeID := newIntCatalog(t)
	g := memmap.NewGraph(memmap.ModeTree)
	root := g.Add(memmap.Node{Address: 0x1000, Type: typeID, NamePath: "init_task"})
	child := g.Add(memmap.Node{Address: 0x2000, Type: typeID, NamePath: "init_task.next", Incomplete: true})
	g.Link(root, child)

	var buf bytes.Buffer
	require.NoError(t, persist.WriteTree(&buf, g, cat, root))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.False(t, strings.HasPrefix(lines[0], " "))
	assert.True(t, strings.HasPrefix(lines[1], "  "))
	assert.True(t, strings.HasSuffix(lines[1], "[!]"))
	assert.False(t, strings.HasSuffix(lines[0], "[!]"))
}
