package expr

// ConstMember is the subset of ctype.Member's learned-fact API
// magic-number capture needs. Declared locally (rather than importing
// ctype) so expr stays a leaf package; ctype.Member already satisfies it.
type ConstMember interface {
	ObserveConstInt(v int64)
	ObserveConstString(v string)
	MarkNotConstant()
}

// CaptureMagicNumber implements spec.md §4.C's magic-number capture,
// invoked by the subclass (cast.KernelSourceEvaluator, via a
// ctype.Member) at each assignment whose left-hand side is a struct
// member: if rhs folds to a constant integer, record it; if to a string
// constant, record it; otherwise extinguish the member's learned values.
func CaptureMagicNumber(member ConstMember, rhs Node, rt Runtime) error {
	r, err := rhs.Eval(rt)
	if err != nil {
		member.MarkNotConstant()
		return err
	}
	if r.Kind != Constant {
		member.MarkNotConstant()
		return nil
	}
	if r.IsString {
		member.ObserveConstString(r.StrValue)
	} else {
		member.ObserveConstInt(r.Value)
	}
	return nil
}
