package symsource

import (
	"encoding/gob"
	"io"

	"github.com/pkg/errors"

	"github.com/allewwaly/insight-vmi-sub006/internal/kerr"
)

// Decoder yields Records one at a time. Next returns io.EOF (unwrapped,
// so callers can compare with errors.Is(err, io.EOF)) once the stream is
// exhausted.
type Decoder interface {
	Next() (Record, error)
}

// GobDecoder reads a Record stream encoded with encoding/gob, the same
// serialization the teacher uses for its own AST nodes
// (grailbio-gql/gql/ast.go's encodeGOB/decodeGOB, grailbio-gql/marshal).
// A real kernelsymbolparser-style text/DWARF front end would sit ahead
// of this and emit the same Record stream; GobDecoder is the wire format
// that front end would target.
type GobDecoder struct {
	dec *gob.Decoder
}

// NewGobDecoder wraps r as a Decoder.
func NewGobDecoder(r io.Reader) *GobDecoder {
	return &GobDecoder{dec: gob.NewDecoder(r)}
}

func (d *GobDecoder) Next() (Record, error) {
	var rec Record
	err := d.dec.Decode(&rec)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, io.EOF):
		return Record{}, io.EOF
	default:
		return Record{}, kerr.E(kerr.SyntaxError, "symsource: decode record", errors.Wrap(err, "gob"))
	}
}
