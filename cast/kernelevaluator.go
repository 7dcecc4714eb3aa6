package cast

import "github.com/allewwaly/insight-vmi-sub006/ctype"

// RefResolver maps a detected type change's symbol/member-path back to
// the concrete catalog site (struct member, global variable, or function
// parameter) it was observed on, per spec.md §3's "any referencing type"
// wording. A real implementation is backed by the same symbol table the
// parser populated Symbol.Name/IsParam/IsLocal from.
type RefResolver interface {
	Resolve(d TypeEvalDetails) (ctype.ReferencingRef, error)
}

// directAddressExpression is a placeholder ctype.AddressExpression that
// records only the human-readable access path a type change was observed
// through. Component C (the expression evaluator) supplies the real
// byte-offset computation; until it is wired in here, ApplyOffset always
// reports a zero adjustment rather than guessing.
type directAddressExpression struct{ desc string }

func (d directAddressExpression) ApplyOffset(uint64) (int64, error) { return 0, nil }
func (d directAddressExpression) String() string                   { return d.desc }

// KernelSourceEvaluator is the Evaluator subclass spec.md §4.B's
// "catalog-merging" consumer uses: every detected type change becomes an
// AddAlternateType fact on the live ctype.Catalog, mirroring how
// original_source's KernelSourceEvaluator feeds the symbol factory
// directly instead of just logging (see ASTTypeEvaluatorTester, which
// only logs, for contrast).
type KernelSourceEvaluator struct {
	*Evaluator
	catalog *ctype.Catalog
	refs    RefResolver
}

// NewKernelSourceEvaluator builds a KernelSourceEvaluator writing facts
// into cat as they are discovered.
func NewKernelSourceEvaluator(resolver MemberResolver, cat *ctype.Catalog, refs RefResolver) *KernelSourceEvaluator {
	k := &KernelSourceEvaluator{catalog: cat, refs: refs}
	k.Evaluator = NewEvaluator(resolver, k)
	return k
}

// PrimaryExpressionTypeChange implements Callback.
func (k *KernelSourceEvaluator) PrimaryExpressionTypeChange(d TypeEvalDetails) {
	ref, err := k.refs.Resolve(d)
	if err != nil {
		return
	}
	target := k.resolveTargetID(d.TargetType)
	if target == ctype.InvalidID {
		return
	}
	k.catalog.AddAlternateType(ref, target, directAddressExpression{desc: d.String()})
}

func (k *KernelSourceEvaluator) resolveTargetID(t *AstType) ctype.ID {
	if t == nil {
		return ctype.InvalidID
	}
	found := k.catalog.FindBaseTypeByAST(t)
	if len(found.WithPointers) == 0 {
		return ctype.InvalidID
	}
	return found.WithPointers[0]
}
