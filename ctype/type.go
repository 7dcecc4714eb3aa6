// Package ctype implements Component A, the Type Catalog: the universe
// of C types, variables, and struct members, interned by structural
// hash (spec.md §3, §4.A).
package ctype

import (
	"github.com/allewwaly/insight-vmi-sub006/internal/hash"
	"github.com/allewwaly/insight-vmi-sub006/internal/symbol"
)

// ID identifies a Type within a Catalog. The pair (origID, fileIndex,
// arrayDimensionIndex) deterministically maps to an ID (spec.md §3); the
// Catalog owns that mapping in idremap.go.
type ID uint32

// InvalidID is never assigned to a real Type.
const InvalidID ID = 0

// Kind tags the Type variant (spec.md §3).
type Kind int

const (
	KindVoid Kind = iota
	KindInteger
	KindFloat
	KindEnum
	KindPointer
	KindArray
	KindFuncPointer
	KindTypedef
	KindConst
	KindVolatile
	KindStruct
	KindUnion
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindEnum:
		return "enum"
	case KindPointer:
		return "pointer"
	case KindArray:
		return "array"
	case KindFuncPointer:
		return "funcpointer"
	case KindTypedef:
		return "typedef"
	case KindConst:
		return "const"
	case KindVolatile:
		return "volatile"
	case KindStruct:
		return "struct"
	case KindUnion:
		return "union"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// IsReferencing reports whether the Kind wraps exactly one other Type
// (Design Notes §9's "IsReferencing" capability trait): Pointer, Array,
// Typedef, Const, Volatile.
func (k Kind) IsReferencing() bool {
	switch k {
	case KindPointer, KindArray, KindTypedef, KindConst, KindVolatile:
		return true
	default:
		return false
	}
}

// IsStructured reports whether the Kind has Members.
func (k Kind) IsStructured() bool {
	return k == KindStruct || k == KindUnion
}

// IsNumeric reports whether the Kind is Integer, Float, or Enum.
func (k Kind) IsNumeric() bool {
	return k == KindInteger || k == KindFloat || k == KindEnum
}

// Type is the tagged variant of spec.md §3. Every field not relevant to
// Kind is left zero; Go has no tagged union, so (per Design Notes §9)
// the 6-level C++ class hierarchy collapses to this one struct plus the
// capability predicates above.
type Type struct {
	ID   ID
	Kind Kind
	Name symbol.ID // empty for anonymous struct/union/enum.

	// Integer
	Signed bool
	Width  int // 8, 16, 32, 64

	// Enum
	EnumValues map[symbol.ID]int64

	// Pointer / Array / Typedef / Const / Volatile
	Target ID

	// Array
	ArrayLength       *uint32 // nil means incomplete ("[]").
	ArrayDimensionIdx int     // spec.md §3: distinct id per dimension.

	// FuncPointer / Function
	Params  []ID
	Returns ID
	// ParamAlts holds each parameter's AltRefType, keyed by parameter
	// index (spec.md §3 lists "function parameter" among the referencing
	// sites an AltRefType can attach to; a parameter has no standalone
	// struct of its own, so its Alt lives here instead).
	ParamAlts map[int]*AltRefType

	// Function
	LowPC, HighPC uint64

	// Struct / Union
	Members []*Member

	// AltRefType attaches to any referencing Kind above (spec.md §3).
	Alt *AltRefType

	// fileIndex/origID identify the symbol file this Type was declared
	// in, used by the id-remapping table (spec.md §6).
	fileIndex int
	origID    uint32
}

// String renders the C spelling of t's kind ("struct module", "int").
func (t *Type) String() string {
	switch t.Kind {
	case KindStruct:
		if t.Name != symbol.Invalid {
			return "struct " + t.Name.Str()
		}
		return "struct <anonymous>"
	case KindUnion:
		if t.Name != symbol.Invalid {
			return "union " + t.Name.Str()
		}
		return "union <anonymous>"
	case KindEnum:
		if t.Name != symbol.Invalid {
			return "enum " + t.Name.Str()
		}
		return "enum <anonymous>"
	case KindTypedef:
		return t.Name.Str()
	default:
		return t.Kind.String()
	}
}

// structuralHash computes the spec.md §3 structural hash: it "includes
// every member's offset, bit layout, and referenced hash" so that two
// structural-hash collisions are impossible by construction (§4.A). c
// resolves Target/Member type hashes; it must not recurse through a
// cycle (struct list_head containing list_head*), so referencing Kinds
// fold in the *target's declared identity* only (kind+name), not its
// full structural hash, breaking the cycle the same way the teacher's
// gql/ast.go ASTNode.hash() folds in a child's cached hash rather than
// re-walking it.
func (t *Type) structuralHash(targetHash func(ID) hash.Hash) hash.Hash {
	h := hash.String(t.Kind.String())
	h = h.Merge(t.Name.Hash())
	switch t.Kind {
	case KindInteger:
		h = h.Merge(hash.Uint64(uint64(t.Width)))
		if t.Signed {
			h = h.Merge(hash.String("signed"))
		}
	case KindFloat:
		h = h.Merge(hash.Uint64(uint64(t.Width)))
	case KindEnum:
		for name, val := range t.EnumValues {
			h = h.Add(name.Hash().Merge(hash.Uint64(uint64(val))))
		}
	case KindPointer, KindTypedef, KindConst, KindVolatile:
		h = h.Merge(targetHash(t.Target))
	case KindArray:
		h = h.Merge(targetHash(t.Target))
		h = h.Merge(hash.Uint64(uint64(t.ArrayDimensionIdx)))
		if t.ArrayLength != nil {
			h = h.Merge(hash.Uint64(uint64(*t.ArrayLength)))
		}
	case KindFuncPointer, KindFunction:
		for _, p := range t.Params {
			h = h.Merge(targetHash(p))
		}
		h = h.Merge(targetHash(t.Returns))
	case KindStruct, KindUnion:
		for _, m := range t.Members {
			h = h.Merge(m.structuralHash(targetHash))
		}
	}
	return h
}
