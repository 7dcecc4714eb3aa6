package ctype

// AddressExpression is the pointer-arithmetic expression attached to an
// AltRefType entry (spec.md §3: "an AstExpression describing the pointer
// arithmetic that must be applied to an instance to materialise a value
// of that alternate type"). It is an interface, not a concrete type from
// package expr, so that ctype does not depend on expr (expr imports
// neither ctype nor cast; expr.AddrExpr satisfies this interface
// structurally).
type AddressExpression interface {
	// ApplyOffset returns the byte offset to add to an instance's address
	// to reach the alternate-typed value, given the instance's own
	// address (some expressions are address-relative, e.g.
	// "container_of"-style offsetof subtraction).
	ApplyOffset(instanceAddr uint64) (int64, error)
	String() string
}

// AltRefEntry is one alternate-type candidate: the candidate's Type and
// the expression used to compute its address from the referencing
// site's instance (spec.md §3).
type AltRefEntry struct {
	Type ID
	Expr AddressExpression
}

// AltRefType is attached to any referencing type or symbol
// (spec.md §3). Entries are ordered most-specific first; the Memory Map
// Builder and AST Type Evaluator both rely on that ordering.
type AltRefType struct {
	Entries []AltRefEntry
}

// Add appends a new alternate-type candidate. Per spec.md §8's
// idempotence property ("replaying the same translation unit after
// emitting type-change events does not add new AltRefType entries"), Add
// is a no-op if an entry with the same Type and the same Expr.String()
// already exists.
func (a *AltRefType) Add(typ ID, expr AddressExpression) {
	for _, e := range a.Entries {
		if e.Type == typ && e.Expr.String() == expr.String() {
			return
		}
	}
	a.Entries = append(a.Entries, AltRefEntry{Type: typ, Expr: expr})
}

// Len reports the number of alternate-type candidates.
func (a *AltRefType) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Entries)
}
