package symsource_test

import (
	"bytes"
	"encoding/gob"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/internal/kerr"
	"github.com/allewwaly/insight-vmi-sub006/symsource"
)

func encodeRecords(t *testing.T, recs ...symsource.Record) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	for _, r := range recs {
		require.NoError(t, enc.Encode(r))
	}
	return &buf
}

func TestGobDecoderReadsRecordsInOrder(t *testing.T) {
	buf := encodeRecords(t,
		symsource.Record{Kind: symsource.RecordType, Type: &symsource.TypeRecord{FileIndex: 0, LocalID: 1, Kind: ctype.KindInteger, Width: 32}},
		symsource.Record{Kind: symsource.RecordVariable, Variable: &symsource.VariableRecord{FileIndex: 0, Name: "jiffies", Address: 0xffffffff81000000, TypeLocalID: 1}},
	)
	dec := symsource.NewGobDecoder(buf)

	first, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, symsource.RecordType, first.Kind)
	assert.Equal(t, uint32(1), first.Type.LocalID)

	second, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, symsource.RecordVariable, second.Kind)
	assert.Equal(t, "jiffies", second.Variable.Name)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestGobDecoderWrapsCorruptStream(t *testing.T) {
	dec := symsource.NewGobDecoder(bytes.NewReader([]byte("not a gob stream")))
	_, err := dec.Next()
	require.Error(t, err)
	assert.True(t, kerr.Is(kerr.SyntaxError, err))
	var kerrErr *kerr.Error
	assert.True(t, errors.As(err, &kerrErr))
}
