package cast

import "github.com/allewwaly/insight-vmi-sub006/ctype"

// AstTypeKind tags one link of an AstType chain.
type AstTypeKind int

const (
	AstBase     AstTypeKind = iota // leaf identifier: "int", "struct module", ...
	AstPointer                      // one '*' link.
	AstArray                        // one '[]' link.
	AstConst
	AstVolatile
)

// AstType is the lightweight linked chain of lexical type nodes
// spec.md §3 describes: "{kind, identifier?, next}". It is the canonical
// form used for type comparison during flow analysis, and converts to a
// ctype.ID chain via Catalog.FindBaseTypeByAST's longest-match lookup.
//
// Name and Link back the Identifier()/Next() accessors required by
// ctype.AstTypeNode; they are unexported so the interface methods (which
// must share those identifiers) don't collide with struct fields.
type AstType struct {
	Kind AstTypeKind
	name string // only set when Kind == AstBase.
	link *AstType
}

// NewBase constructs a leaf identifier link ("int", "struct module", ...).
func NewBase(identifier string) *AstType {
	return &AstType{Kind: AstBase, name: identifier}
}

// Identifier implements ctype.AstTypeNode.
func (t *AstType) Identifier() string {
	if t == nil || t.Kind != AstBase {
		return ""
	}
	return t.name
}

// PointerLevels implements ctype.AstTypeNode.
func (t *AstType) PointerLevels() int {
	if t != nil && t.Kind == AstPointer {
		return 1
	}
	return 0
}

// Next implements ctype.AstTypeNode.
func (t *AstType) Next() ctype.AstTypeNode {
	if t == nil || t.link == nil {
		return nil
	}
	return t.link
}

var _ ctype.AstTypeNode = (*AstType)(nil)

// String renders the chain C-style, most-specific link first, e.g.
// "pointer to struct module".
func (t *AstType) String() string {
	if t == nil {
		return "<void>"
	}
	switch t.Kind {
	case AstPointer:
		return "pointer to " + t.link.String()
	case AstArray:
		return "array of " + t.link.String()
	case AstConst:
		return "const " + t.link.String()
	case AstVolatile:
		return "volatile " + t.link.String()
	default:
		return t.name
	}
}

// Equal reports whether two AstType chains denote the same declared
// type, used by the evaluator's "T_src ≡ T_dst" check in §4.B.3 step 2
// once both sides have already been canonicalized by StripAliases.
func (t *AstType) Equal(o *AstType) bool {
	for t != nil && o != nil {
		if t.Kind != o.Kind {
			return false
		}
		if t.Kind == AstBase && t.name != o.name {
			return false
		}
		t, o = t.link, o.link
	}
	return t == nil && o == nil
}

// StripAliases removes Const/Volatile links (spec.md §4.B.3 step 1:
// "Canonicalize both types by stripping typedefs, const, volatile (but
// not pointers or arrays)"). Typedef stripping happens at the catalog
// level (ctype.Catalog.Canonical) once an AstType resolves to a ctype.ID;
// at the AST-chain level there is no Typedef link kind because a
// typedef's expansion is exactly its aliased AstType, indistinguishable
// from having spelled out the target type directly.
func (t *AstType) StripAliases() *AstType {
	if t == nil {
		return nil
	}
	if t.Kind == AstConst || t.Kind == AstVolatile {
		return t.link.StripAliases()
	}
	return &AstType{Kind: t.Kind, name: t.name, link: t.link.StripAliases()}
}

// PointerTo prepends one pointer link, implementing "&e" (§4.B.2).
func PointerTo(t *AstType) *AstType { return &AstType{Kind: AstPointer, link: t} }

// ArrayOf prepends one array link.
func ArrayOf(t *AstType) *AstType { return &AstType{Kind: AstArray, link: t} }

// Deref strips one pointer (or array) link, implementing unary "*p" and
// "a[i]" (§4.B.2). ok is false if t is neither a pointer nor an array
// (PointerOnNonPointer, §4.B.2).
func Deref(t *AstType) (*AstType, bool) {
	t = t.StripAliases()
	if t == nil {
		return nil, false
	}
	if t.Kind == AstPointer || t.Kind == AstArray {
		return t.link, true
	}
	return nil, false
}
