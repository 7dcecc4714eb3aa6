package cast

import (
	"fmt"

	"github.com/allewwaly/insight-vmi-sub006/internal/kerr"
)

// TypeEvalDetails is the record carried along type-change propagation
// (spec.md §3): source symbol, source node, root node, context type,
// chain of member accesses applied to the context type, inter-node
// links (for transitive propagation), target type. Immutable once
// emitted.
type TypeEvalDetails struct {
	Sym        *Symbol
	SourceNode Node
	RootNode   Node
	CtxType    *AstType
	CtxMembers []string // ordered member-name path, spec.md §9's splice rule for anonymous unions applied.
	TargetType *AstType
	// InterLinks counts how many assignment hops were walked backwards to
	// reach this event (§4.B.4's "first" vs "last" distinction; the
	// tester in original_source keeps whichever of several concurrently
	// discovered events walked the most links as "first").
	InterLinks int
}

// String joins CtxMembers with "." the way the original tester's
// QStringList::join(".") does, used only for human-readable logging.
func (d TypeEvalDetails) String() string {
	path := ""
	for i, m := range d.CtxMembers {
		if i > 0 {
			path += "."
		}
		path += m
	}
	return d.Sym.Name + ":" + path + " -> " + d.TargetType.String()
}

// suppressed implements spec.md §4.B.3 rule 4's four suppression cases.
func suppressed(sym *Symbol, srcIsPointer bool, dstIsVoidPointer bool, usedWithoutMemberAccess bool) bool {
	switch {
	case dstIsVoidPointer && srcIsPointer:
		// "T_dst is a void pointer and T_src is any pointer."
		return true
	case sym.IsReturn:
		// "T_src was a function-return value."
		return true
	case sym.IsLocal && !srcIsPointer && !sym.Type.Chain.isStructured() && usedWithoutMemberAccess:
		// "T_src is a local of non-struct, non-pointer type used without
		// member access." Pointers are excluded: a bare pointer reread
		// (e.g. spec.md §8 scenario 3's "m = p;") is exactly the case this
		// whole mechanism exists to recover, not noise to suppress.
		return true
	case sym.IsParam && !srcIsPointer && !sym.Type.Chain.isStructured() && usedWithoutMemberAccess:
		// "T_src is a function parameter of non-struct, non-pointer type."
		return true
	default:
		return false
	}
}

// isStructured reports whether the chain's leaf identifier looks like a
// struct/union spelling ("struct X"/"union X"). The AST-chain level has
// no catalog access, so this is a purely syntactic check on the leaf's
// spelling; a typedef name that resolves to a struct in the catalog is
// not recognised as structured.
func (t *AstType) isStructured() bool {
	if t == nil {
		return false
	}
	leaf := t
	for leaf.link != nil {
		leaf = leaf.link
	}
	if leaf.Kind != AstBase {
		return false
	}
	return hasPrefix(leaf.name, "struct ") || hasPrefix(leaf.name, "union ")
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Callback is invoked by Evaluator for every primary-expression type
// change it detects (spec.md §4.B.1: "invoke
// primary_expression_type_change(details)").
type Callback interface {
	PrimaryExpressionTypeChange(d TypeEvalDetails)
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(d TypeEvalDetails)

func (f CallbackFunc) PrimaryExpressionTypeChange(d TypeEvalDetails) { f(d) }

// Fatal reports a translation-unit-aborting error per spec.md §4.B.5:
// unknown AST node kind, unresolved identifier in a non-typedef
// position, or contradictory operand types for an operator whose result
// type is undefined (e.g. "pointer *= pointer", spec.md §8 scenario 5).
// File/line/column come from the offending Node's Pos().
type Fatal struct {
	Err *kerr.Error
}

// Error reports the wrapped *kerr.Error's message, location included.
func (f *Fatal) Error() string { return f.Err.Error() }

// Unwrap returns the *kerr.Error itself rather than its own Cause:
// kerr.Is needs to see the *kerr.Error to read its Kind, not skip
// straight past it to whatever it wraps.
func (f *Fatal) Unwrap() error { return f.Err }

func newFatal(n Node, format string, args ...interface{}) *Fatal {
	loc := n.Pos()
	return &Fatal{kerr.E(kerr.TypeError, loc, fmt.Sprintf(format, args...))}
}
