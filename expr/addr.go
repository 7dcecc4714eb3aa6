package expr

import "github.com/allewwaly/insight-vmi-sub006/internal/kerr"

// RuntimeFactory binds a concrete instance address into a Runtime, so the
// same compiled AddrExpr can be replayed against every matching instance
// (spec.md §4.D's expression-action "computes a target address ... from
// the source instance").
type RuntimeFactory func(instanceAddr uint64) Runtime

// AddrExpr implements ctype.AddressExpression (by structural satisfaction
// — expr imports neither ctype nor cast, keeping it a leaf dependency of
// both) by folding Node against the Runtime Factory produces for a given
// instance address.
type AddrExpr struct {
	Node    Node
	Factory RuntimeFactory
}

// ApplyOffset implements ctype.AddressExpression.
func (a AddrExpr) ApplyOffset(instanceAddr uint64) (int64, error) {
	rt := a.Factory(instanceAddr)
	v, ok, err := EvaluateIntExpression(a.Node, rt)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, kerr.E(kerr.EvaluationError, "address expression %q did not fold to a constant for this instance", a.Node.String())
	}
	return v, nil
}

// String implements ctype.AddressExpression.
func (a AddrExpr) String() string { return a.Node.String() }
