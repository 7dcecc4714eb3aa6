package expr

import "github.com/allewwaly/insight-vmi-sub006/internal/kerr"

// EvaluateIntExpression implements spec.md §4.C's
// "evaluate_int_expression(node) → Option<i64>": it returns (value, true)
// only when n folds to Constant(integer) with no runtime dependency;
// (0, false) when the result depends on a missing/runtime type (Runtime,
// GlobalVar, LocalVar, or a constant string); and an error for a genuine
// evaluation failure (Undefined).
func EvaluateIntExpression(n Node, rt Runtime) (int64, bool, error) {
	r, err := n.Eval(rt)
	if err != nil {
		return 0, false, err
	}
	switch r.Kind {
	case Constant:
		if r.IsString {
			return 0, false, nil
		}
		return r.Value, true, nil
	case Undefined:
		return 0, false, kerr.E(kerr.EvaluationError, "expression %q did not evaluate to a constant", n.String())
	default: // Runtime, GlobalVar, LocalVar
		return 0, false, nil
	}
}
