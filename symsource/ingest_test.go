package symsource_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/symsource"
)

// fakeDecoder replays a fixed Record slice, the way a real GobDecoder
// replays a decoded byte stream.
type fakeDecoder struct {
	recs []symsource.Record
	pos  int
}

func (d *fakeDecoder) Next() (symsource.Record, error) {
	if d.pos >= len(d.recs) {
		return symsource.Record{}, io.EOF
	}
	r := d.recs[d.pos]
	d.pos++
	return r, nil
}

func TestIngestBuildsStructWithMemberAndPointerChain(t *testing.T) {
	// file 0 declares: struct task_struct { struct task_struct *next; int pid; };
	// and a root variable "init_task" of that struct type.
	recs := []symsource.Record{
		{Kind: symsource.RecordType, Type: &symsource.TypeRecord{FileIndex: 0, LocalID: 1, Kind: ctype.KindStruct, Name: "task_struct"}},
		{Kind: symsource.RecordType, Type: &symsource.TypeRecord{FileIndex: 0, LocalID: 2, Kind: ctype.KindPointer, Target: 1}},
		{Kind: symsource.RecordType, Type: &symsource.TypeRecord{FileIndex: 0, LocalID: 3, Kind: ctype.KindInteger, Width: 32, Signed: true}},
		{Kind: symsource.RecordMember, Member: &symsource.MemberRecord{FileIndex: 0, OwnerLocalID: 1, Name: "next", TypeLocalID: 2, Offset: 0}},
		{Kind: symsource.RecordMember, Member: &symsource.MemberRecord{FileIndex: 0, OwnerLocalID: 1, Name: "pid", TypeLocalID: 3, Offset: 8}},
		{Kind: symsource.RecordVariable, Variable: &symsource.VariableRecord{FileIndex: 0, Name: "init_task", TypeLocalID: 1, Address: 0xffffffff82000000}},
	}

	cat := ctype.NewCatalog()
	err := symsource.Ingest(context.Background(), cat, []symsource.Source{
		{FileIndex: 0, Decoder: &fakeDecoder{recs: recs}},
	})
	require.NoError(t, err)

	vars := cat.Vars()
	require.Len(t, vars, 1)
	taskStructID := vars[0].Type

	ts, ok := cat.ByID(taskStructID)
	require.True(t, ok)
	require.Len(t, ts.Members, 2)
	assert.Equal(t, "next", ts.Members[0].Name.Str())
	assert.Equal(t, "pid", ts.Members[1].Name.Str())

	nextType, ok := cat.ByID(ts.Members[0].Type)
	require.True(t, ok)
	assert.Equal(t, ctype.KindPointer, nextType.Kind)
	assert.Equal(t, taskStructID, nextType.Target)
}

func TestIngestAcrossTwoFilesSharesGlobalIDSpace(t *testing.T) {
	fileA := []symsource.Record{
		{Kind: symsource.RecordType, Type: &symsource.TypeRecord{FileIndex: 0, LocalID: 1, Kind: ctype.KindInteger, Width: 32}},
	}
	fileB := []symsource.Record{
		{Kind: symsource.RecordType, Type: &symsource.TypeRecord{FileIndex: 1, LocalID: 1, Kind: ctype.KindInteger, Width: 64}},
	}

	cat := ctype.NewCatalog()
	err := symsource.Ingest(context.Background(), cat, []symsource.Source{
		{FileIndex: 0, Decoder: &fakeDecoder{recs: fileA}},
		{FileIndex: 1, Decoder: &fakeDecoder{recs: fileB}},
	})
	require.NoError(t, err)

	a := cat.RemapID(0, 1, 0)
	b := cat.RemapID(1, 1, 0)
	assert.NotEqual(t, a, b)

	ta, ok := cat.ByID(a)
	require.True(t, ok)
	assert.Equal(t, 32, ta.Width)

	tb, ok := cat.ByID(b)
	require.True(t, ok)
	assert.Equal(t, 64, tb.Width)
}
