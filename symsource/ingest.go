package symsource

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/pkg/errors"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/internal/kerr"
	"github.com/allewwaly/insight-vmi-sub006/internal/symbol"
)

// Source pairs a Decoder with the file index its records are scoped to
// (spec.md §6's "source-file id").
type Source struct {
	FileIndex int
	Decoder   Decoder
}

// Ingest populates cat from sources using a two-phase discipline
// (Design Notes §9, applied across files rather than within one):
// phase one drains every source — in parallel, via
// github.com/grailbio/base/traverse.Each, the way the teacher shards
// independent per-file work in gql/tsv_table.go — and allocates a
// global ID for every TypeRecord it sees, so a reference to a type
// declared later in the same file, or in a file not yet drained,
// resolves to a stable placeholder ID. Phase two replays the buffered
// records, now that every local id has a global counterpart, resolving
// Target/Params/Returns/Members and inserting the finished Types,
// Members, and Variables.
func Ingest(ctx context.Context, cat *ctype.Catalog, sources []Source) error {
	buffered := make([][]Record, len(sources))

	err := traverse.Each(len(sources), func(i int) error {
		recs, err := drain(sources[i].Decoder)
		if err != nil {
			return kerr.E(kerr.SyntaxError, fmt.Sprintf("symsource: file %d", sources[i].FileIndex), err)
		}
		buffered[i] = recs
		for _, r := range recs {
			if r.Kind == RecordType {
				cat.RemapID(sources[i].FileIndex, r.Type.LocalID, r.Type.ArrayDim)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return kerr.E(kerr.Cancelled, "symsource: ingest interrupted", ctx.Err())
	}

	membersByOwner := map[ctype.ID][]*ctype.Member{}
	declaredSizes := map[ctype.ID]uint64{}
	var pending []*ctype.Type
	var variables []*ctype.Variable

	for i, recs := range buffered {
		fileIndex := sources[i].FileIndex
		for _, r := range recs {
			switch r.Kind {
			case RecordType:
				t := resolveType(cat, fileIndex, r.Type)
				pending = append(pending, t)
				if r.Type.DeclaredSize > 0 {
					declaredSizes[t.ID] = r.Type.DeclaredSize
				}
			case RecordMember:
				owner := cat.RemapID(fileIndex, r.Member.OwnerLocalID, 0)
				membersByOwner[owner] = append(membersByOwner[owner], resolveMember(cat, fileIndex, r.Member))
			case RecordVariable:
				variables = append(variables, resolveVariable(cat, fileIndex, r.Variable))
			}
		}
	}

	for _, t := range pending {
		if ms, ok := membersByOwner[t.ID]; ok {
			t.Members = ms
		}
		cat.Insert(t)
	}
	for _, v := range variables {
		cat.AddVariable(v)
	}

	validateDeclaredSizes(cat, declaredSizes)
	return nil
}

func drain(dec Decoder) ([]Record, error) {
	var out []Record
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func resolveType(cat *ctype.Catalog, fileIndex int, r *TypeRecord) *ctype.Type {
	id := cat.RemapID(fileIndex, r.LocalID, r.ArrayDim)
	t := ctype.NewType(id, r.Kind, fileIndex, r.LocalID)
	t.Name = symbol.Intern(r.Name)
	t.Signed = r.Signed
	t.Width = r.Width
	t.LowPC, t.HighPC = r.LowPC, r.HighPC
	t.ArrayLength = r.ArrayLength
	t.ArrayDimensionIdx = r.ArrayDim

	if len(r.EnumValues) > 0 {
		t.EnumValues = make(map[symbol.ID]int64, len(r.EnumValues))
		for name, val := range r.EnumValues {
			t.EnumValues[symbol.Intern(name)] = val
		}
	}

	switch r.Kind {
	case ctype.KindPointer, ctype.KindArray, ctype.KindTypedef, ctype.KindConst, ctype.KindVolatile:
		if r.Target != 0 {
			t.Target = cat.RemapID(fileIndex, r.Target, 0)
		}
	case ctype.KindFuncPointer, ctype.KindFunction:
		t.Returns = cat.RemapID(fileIndex, r.Returns, 0)
		for _, p := range r.Params {
			t.Params = append(t.Params, cat.RemapID(fileIndex, p, 0))
		}
	}
	return t
}

func resolveMember(cat *ctype.Catalog, fileIndex int, r *MemberRecord) *ctype.Member {
	return &ctype.Member{
		Name:        symbol.Intern(r.Name),
		Type:        cat.RemapID(fileIndex, r.TypeLocalID, 0),
		Offset:      r.Offset,
		HasBitField: r.HasBitField,
		BitOffset:   r.BitOffset,
		BitSize:     r.BitSize,
	}
}

func resolveVariable(cat *ctype.Catalog, fileIndex int, r *VariableRecord) *ctype.Variable {
	return &ctype.Variable{
		Name:       symbol.Intern(r.Name),
		Type:       cat.RemapID(fileIndex, r.TypeLocalID, 0),
		Address:    r.Address,
		FileIndex:  fileIndex,
		PerCPU:     r.PerCPU,
		IsFunction: r.IsFunction,
	}
}

// validateDeclaredSizes logs (but does not fail the ingest on) a
// mismatch between a symbol file's reported byte_size and the size
// Catalog.SizeBytes computes structurally from the inserted Members —
// the softer half of spec.md §7's "structural-hash mismatch on update"
// CatalogError; a declared/computed size disagreement points at a
// parser bug, not catalog corruption, so it is a warning, not a fatal
// error.
func validateDeclaredSizes(cat *ctype.Catalog, declared map[ctype.ID]uint64) {
	for id, want := range declared {
		got, ok := cat.SizeBytes(id)
		if ok && got != want {
			log.Error.Printf("symsource: type %d: declared size %d, computed size %d", id, want, got)
		}
	}
}
