package cast

// MemberResolver looks up a field's declared type given its owning
// struct/union's AstType. A real implementation backs this with a
// ctype.Catalog; tests can supply a map-based stub.
type MemberResolver interface {
	Member(owner *AstType, field string) (*AstType, error)
}

// aggregateFieldResolver optionally extends MemberResolver with
// declaration-order field lookup, needed to check a positional
// initializer leaf (no ".field =" designator) against a struct/union
// aggregate (spec.md §4.B.2's "traversing into the aggregate along
// declaration order"). A resolver that doesn't implement it still
// handles explicitly designated initializers and array elements; bare
// positional struct fields are then left unchecked rather than guessed.
type aggregateFieldResolver interface {
	MemberResolver
	FieldAt(owner *AstType, index int) (string, error)
}

// access is the internal result of walking down to the primary
// expression a (possibly cast-, arithmetic-, or array-wrapped)
// expression ultimately reads (spec.md §4.B.3 step 3). ctx is nil only
// for the not-yet-anchored root of a bare identifier read (see ctxOf).
type access struct {
	sym      *Symbol
	ctx      *AstType
	path     []string
	elemType *AstType
	viaArray bool // last hop was an array index into a value-typed array.
}

// ctxOf returns the access's reported context type: its own ctx if an
// aggregate access chain has anchored one, otherwise (a bare identifier
// read with no member/array/pointer access at all) the symbol's own full
// declared type (spec.md §8 scenario 1: "ctx=Pointer→Struct(module)" for
// a bare `h = m;`).
func (a access) ctxOf() *AstType {
	if a.ctx != nil {
		return a.ctx
	}
	return a.elemType
}

// aliasEntry records, for a Symbol currently holding a value obtained
// through a chain of simple assignments, the ORIGINAL primary-expression
// access that value ultimately came from (spec.md §4.B.4's "first
// declared type along the chain").
type aliasEntry struct {
	sym   *Symbol
	ctx   *AstType
	path  []string
	links int
}

// Evaluator is the bottom-up AST Type Evaluator of spec.md §4.B. One
// Evaluator is used per translation unit (spec.md §4.B.5: "A fatal error
// in one unit must not corrupt the catalog state built so far"; §5: "The
// AST evaluator itself is single-threaded per translation unit... each
// has its own inter-link map").
type Evaluator struct {
	resolver MemberResolver
	cb       Callback

	// aliases is the per-translation-unit inter_links map (spec.md
	// §4.B.4), here keyed by symbol rather than by generic AST node: it
	// tracks which symbols currently hold a value whose true origin is a
	// different, earlier access.
	aliases map[*Symbol]aliasEntry

	// returnOrigins records, per function Symbol, the access a return
	// statement's expression resolved to, so a later Call to that
	// function can extend the chain across the call boundary (§4.B.4).
	returnOrigins map[*Symbol]access
}

// NewEvaluator constructs an Evaluator for one translation unit.
func NewEvaluator(resolver MemberResolver, cb Callback) *Evaluator {
	return &Evaluator{
		resolver:      resolver,
		cb:            cb,
		aliases:       map[*Symbol]aliasEntry{},
		returnOrigins: map[*Symbol]access{},
	}
}

func (e *Evaluator) lookupMember(owner *AstType, field string) (*AstType, error) {
	owner = owner.StripAliases()
	t, err := e.resolver.Member(owner, field)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// accessOf walks n post-order to find the primary expression it reads
// (spec.md §4.B.2, §4.B.3 step 3). Casts and pointer arithmetic are
// transparent for flow-source purposes (§4.B.2: "the *dereferenced* type
// of the [cast] operand is recorded as the source for flow purposes").
func (e *Evaluator) accessOf(n Node) (access, error) {
	switch v := n.(type) {
	case *Ident:
		return access{sym: v.Sym, elemType: v.Sym.Type.Chain}, nil

	case *MemberAccess:
		inner, err := e.accessOf(v.X)
		if err != nil {
			return access{}, err
		}
		if v.Arrow {
			owner, ok := Deref(inner.elemType)
			if !ok {
				return access{}, newFatal(v, "PointerOnNonPointer: %s", v.X.String())
			}
			memberType, err := e.lookupMember(owner, v.Field)
			if err != nil {
				return access{}, err
			}
			return access{sym: inner.sym, ctx: owner, path: []string{v.Field}, elemType: memberType}, nil
		}
		// Dot access: the immediate owner is always inner.elemType
		// stripped, used for member-type lookup regardless of how ctx is
		// reported.
		owner := inner.elemType.StripAliases()
		memberType, err := e.lookupMember(owner, v.Field)
		if err != nil {
			return access{}, err
		}
		if inner.viaArray {
			// spec.md §4.B.2: array element access preserves the
			// enclosing struct as ctx and builds an "f.next"-style path.
			path := append(append([]string{}, inner.path...), v.Field)
			return access{sym: inner.sym, ctx: inner.ctxOf(), path: path, elemType: memberType}, nil
		}
		return access{sym: inner.sym, ctx: owner, path: []string{v.Field}, elemType: memberType}, nil

	case *Index:
		inner, err := e.accessOf(v.X)
		if err != nil {
			return access{}, err
		}
		elemType, ok := Deref(inner.elemType)
		if !ok {
			return access{}, newFatal(v, "PointerOnNonPointer: %s", v.X.String())
		}
		if v.Carrier == CarrierPointer {
			return access{sym: inner.sym, ctx: elemType, elemType: elemType}, nil
		}
		return access{sym: inner.sym, ctx: inner.ctxOf(), path: inner.path, elemType: elemType, viaArray: true}, nil

	case *Unary:
		inner, err := e.accessOf(v.X)
		if err != nil {
			return access{}, err
		}
		switch v.Op {
		case OpDeref:
			elemType, ok := Deref(inner.elemType)
			if !ok {
				return access{}, newFatal(v, "PointerOnNonPointer: %s", v.X.String())
			}
			return access{sym: inner.sym, ctx: elemType, elemType: elemType}, nil
		case OpAddr:
			return access{sym: inner.sym, ctx: inner.ctx, path: inner.path, elemType: PointerTo(inner.elemType)}, nil
		}
		return access{}, newFatal(v, "unknown unary operator")

	case *Cast:
		// Transparent for flow purposes; see the doc comment above.
		return e.accessOf(v.X)

	case *Binary:
		// Pointer arithmetic preserves the pointer operand's identity for
		// flow purposes (spec.md §4.B.2: "pointer ± integer ⇒ pointer").
		return e.accessOf(v.X)

	case *Call:
		if origin, ok := e.returnOrigins[v.Callee]; ok {
			return access{sym: origin.sym, ctx: origin.ctx, path: origin.path, elemType: v.Callee.Type.Chain}, nil
		}
		ret := &Symbol{Name: v.Callee.Name, Type: v.Callee.Type, IsReturn: true}
		return access{sym: ret, elemType: v.Callee.Type.Chain}, nil

	case *StmtExpr:
		return e.accessOf(v.Last)

	case *Cond:
		return e.accessOfCond(v)

	case *CompoundLiteral:
		return e.accessOfCompoundLiteral(v)

	default:
		return access{}, newFatal(n, "unknown AST node kind")
	}
}

// accessOfCond implements spec.md §4.B.2's conditional-operator rule:
// "if either branch's dereferenced type differs from the other's, that
// branch alone drives the type-change emission; otherwise emission is
// suppressed." The operator is symmetric, so the then-branch is
// arbitrarily fixed as the primary expression the single emitted event
// is attributed to; its own access is returned for the enclosing
// expression's flow purposes.
func (e *Evaluator) accessOfCond(n *Cond) (access, error) {
	thenAcc, err := e.accessOf(n.Then)
	if err != nil {
		return access{}, err
	}
	elseAcc, err := e.accessOf(n.Else)
	if err != nil {
		return access{}, err
	}
	thenType := thenAcc.elemType.StripAliases()
	elseType := elseAcc.elemType.StripAliases()
	if !thenType.Equal(elseType) {
		e.cb.PrimaryExpressionTypeChange(TypeEvalDetails{
			Sym:        thenAcc.sym,
			CtxType:    thenAcc.ctxOf(),
			CtxMembers: thenAcc.path,
			TargetType: elseType,
		})
	}
	return thenAcc, nil
}

// accessOfCompoundLiteral implements spec.md §4.B.2's initializer rule:
// each leaf initializer (plain, ".field ="-designated, or "[n] ="-
// designated) is checked against the aggregate subtype it targets, in
// declaration order, and a type-change is emitted when they differ.
func (e *Evaluator) accessOfCompoundLiteral(n *CompoundLiteral) (access, error) {
	owner := n.Target.StripAliases()
	pos := 0
	for _, init := range n.Inits {
		leafType, err := e.designatedLeafType(n, owner, init, &pos)
		if err != nil {
			return access{}, err
		}
		valAcc, err := e.accessOf(init.Value)
		if err != nil {
			return access{}, err
		}
		if leafType != nil && !leafType.StripAliases().Equal(valAcc.elemType.StripAliases()) {
			e.cb.PrimaryExpressionTypeChange(TypeEvalDetails{
				Sym:        valAcc.sym,
				CtxType:    n.Target,
				CtxMembers: valAcc.path,
				TargetType: leafType,
			})
		}
	}
	return access{elemType: n.Target}, nil
}

// designatedLeafType resolves the aggregate subtype a single
// initializer leaf targets (spec.md §4.B.2). *pos tracks the next
// declaration-order slot and is advanced past whichever slot this leaf
// fills, the way a designator re-anchors the position for the plain
// initializers that follow it in C99.
func (e *Evaluator) designatedLeafType(n *CompoundLiteral, owner *AstType, init DesignatedInit, pos *int) (*AstType, error) {
	switch {
	case len(init.FieldPath) > 0:
		if af, ok := e.resolver.(aggregateFieldResolver); ok {
			for i := 0; ; i++ {
				name, err := af.FieldAt(owner, i)
				if err != nil {
					break
				}
				if name == init.FieldPath[0] {
					*pos = i + 1
					break
				}
			}
		}
		cur := owner
		var t *AstType
		for _, field := range init.FieldPath {
			var err error
			t, err = e.lookupMember(cur, field)
			if err != nil {
				return nil, err
			}
			cur = t
		}
		return t, nil

	case init.Index != nil:
		elem, ok := Deref(owner)
		if !ok {
			return nil, newFatal(n, "designated index initializer on non-array aggregate")
		}
		*pos = *init.Index + 1
		return elem, nil

	default:
		af, ok := e.resolver.(aggregateFieldResolver)
		if !ok {
			*pos++
			return nil, nil
		}
		field, err := af.FieldAt(owner, *pos)
		if err != nil {
			return nil, err
		}
		*pos++
		return e.lookupMember(owner, field)
	}
}

// usedWithoutMemberAccess reports whether a is a bare
// symbol read with no member/array/pointer access chain at all, used by
// the spec.md §4.B.3 rule-4 suppression cases.
func (a access) usedWithoutMemberAccess() bool {
	return a.ctx == nil && len(a.path) == 0
}

// EvalAssignment processes "lhs = rhs" (spec.md §4.B.4): it detects a
// direct primary-expression type change (if any) and, if rhs's symbol
// carries forward an alias chain, a transitive "first" change rooted at
// the original declared-type mismatch. It then records lhs's own alias
// entry so later reads of lhs continue the chain.
func (e *Evaluator) EvalAssignment(lhs *Symbol, rhs Node) error {
	acc, err := e.accessOf(rhs)
	if err != nil {
		return err
	}
	dst := lhs.Type.Chain.StripAliases()
	src := acc.elemType.StripAliases()
	dstIsVoidPtr := isVoidPointer(dst)
	srcIsPointer := src != nil && src.Kind == AstPointer

	if !src.Equal(dst) && !suppressed(acc.sym, srcIsPointer, dstIsVoidPtr, acc.usedWithoutMemberAccess()) {
		e.cb.PrimaryExpressionTypeChange(TypeEvalDetails{
			Sym:        acc.sym,
			CtxType:    acc.ctxOf(),
			CtxMembers: acc.path,
			TargetType: dst,
		})

		if origin, ok := e.aliases[acc.sym]; ok && origin.sym != acc.sym {
			e.cb.PrimaryExpressionTypeChange(TypeEvalDetails{
				Sym:        origin.sym,
				CtxType:    origin.ctx,
				CtxMembers: origin.path,
				TargetType: dst,
				InterLinks: origin.links + 1,
			})
		}
	}

	// Record (or extend) lhs's alias entry regardless of whether an event
	// fired this time: a later read may reveal a mismatch this one did
	// not (spec.md §4.B.4's pointer-sensitivity examples).
	if origin, ok := e.aliases[acc.sym]; ok {
		e.aliases[lhs] = aliasEntry{sym: origin.sym, ctx: origin.ctx, path: origin.path, links: origin.links + 1}
	} else {
		e.aliases[lhs] = aliasEntry{sym: acc.sym, ctx: acc.ctxOf(), path: acc.path}
	}
	return nil
}

// EvalInitializer processes a standalone initializer list (spec.md
// §4.B.2): the entry point for a variable declaration's "= { ... }"
// initializer, as opposed to a compound literal nested inside a larger
// expression, which reaches the same traversal through accessOf.
func (e *Evaluator) EvalInitializer(lit *CompoundLiteral) error {
	_, err := e.accessOfCompoundLiteral(lit)
	return err
}

// EvalReturn records fn's return-expression access so a later Call to fn
// extends the chain across the function boundary (spec.md §4.B.4).
func (e *Evaluator) EvalReturn(fn *Symbol, x Node) error {
	acc, err := e.accessOf(x)
	if err != nil {
		return err
	}
	e.returnOrigins[fn] = acc
	return nil
}

func isVoidPointer(t *AstType) bool {
	return t != nil && t.Kind == AstPointer && t.link != nil && t.link.Kind == AstBase && t.link.name == "void"
}

// EvalBinaryTypeError implements spec.md §8 scenario 5: operators whose
// result type is undefined for the given operand kinds are a fatal
// TypeError, e.g. "pointer *= pointer".
func (e *Evaluator) EvalBinaryTypeError(n *Binary, xType, yType *AstType) error {
	xType, yType = xType.StripAliases(), yType.StripAliases()
	xPtr := xType != nil && xType.Kind == AstPointer
	yPtr := yType != nil && yType.Kind == AstPointer
	switch n.Op {
	case OpMulAssign:
		if xPtr && yPtr {
			return newFatal(n, "Pointer *= Pointer")
		}
	case OpMul:
		if xPtr && yPtr {
			return newFatal(n, "Pointer * Pointer")
		}
	case OpMod, OpShl, OpShr:
		if xPtr || yPtr {
			return newFatal(n, "%s on a pointer operand", opName(n.Op))
		}
	}
	return nil
}

func opName(op BinaryOp) string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpMod:
		return "%"
	case OpShl:
		return "<<"
	case OpShr:
		return ">>"
	case OpMulAssign:
		return "*="
	default:
		return "?"
	}
}
