package expr

import (
	"strconv"

	"github.com/allewwaly/insight-vmi-sub006/internal/kerr"
)

// Runtime resolves a bare identifier to its current value (or reports
// that it is only known at instance-evaluation time). A constant-only
// caller (e.g. type-rule load-time validation) can pass a Runtime whose
// Lookup always returns Kind Runtime, driving every containing
// expression's evaluate_int_expression result to None.
type Runtime interface {
	Lookup(name string) (ExpressionResult, error)
}

// Node is a constant-foldable expression subtree (spec.md §4.C). This is
// a deliberately smaller AST than cast.Node: expr only ever evaluates
// self-contained value expressions (sizeof/offsetof operands, rule-action
// address arithmetic, initializer right-hand sides), never type-flow.
type Node interface {
	Eval(rt Runtime) (ExpressionResult, error)
	String() string
}

// IntLit is an integer literal.
type IntLit struct {
	Value     int64
	SizeFlags SizeFlags
}

func (n *IntLit) Eval(Runtime) (ExpressionResult, error) {
	return ExpressionResult{Kind: Constant, SizeFlags: n.SizeFlags, Value: n.Value}, nil
}
func (n *IntLit) String() string { return strconv.FormatInt(n.Value, 10) }

// StringLit is a string literal, spec.md §4.C: "string literals of
// pointer-to-char type are surfaced so that members initialised to
// string constants can be captured as alternate values."
type StringLit struct{ Value string }

func (n *StringLit) Eval(Runtime) (ExpressionResult, error) {
	return ExpressionResult{Kind: Constant, IsString: true, StrValue: n.Value}, nil
}
func (n *StringLit) String() string { return "\"" + n.Value + "\"" }

// Ident is a bare identifier; its value comes from the supplied Runtime.
type Ident struct {
	Name   string
	Global bool // drives GlobalVar vs LocalVar kind when rt reports Runtime.
}

func (n *Ident) Eval(rt Runtime) (ExpressionResult, error) {
	if rt == nil {
		return ExpressionResult{Kind: Undefined}, kerr.E(kerr.EvaluationError, "unresolved identifier %q (no runtime)", n.Name)
	}
	r, err := rt.Lookup(n.Name)
	if err != nil {
		return ExpressionResult{Kind: Undefined}, kerr.E(kerr.EvaluationError, err, "unresolved identifier %q", n.Name)
	}
	if r.Kind == Runtime {
		if n.Global {
			r.Kind = GlobalVar
		} else {
			r.Kind = LocalVar
		}
	}
	return r, nil
}
func (n *Ident) String() string { return n.Name }

// UnaryOp enumerates the unary operators expr folds.
type UnaryOp int

const (
	UNeg UnaryOp = iota
	UNot
	UBitNot
)

// Unary is a unary-operator constant expression.
type Unary struct {
	Op UnaryOp
	X  Node
}

func (n *Unary) Eval(rt Runtime) (ExpressionResult, error) {
	x, err := n.X.Eval(rt)
	if err != nil {
		return ExpressionResult{Kind: Undefined}, err
	}
	if !x.IsConstantInt() {
		return ExpressionResult{Kind: x.Kind, SizeFlags: x.SizeFlags}, nil
	}
	switch n.Op {
	case UNeg:
		return ExpressionResult{Kind: Constant, SizeFlags: x.SizeFlags | Signed, Value: -x.Value}, nil
	case UNot:
		v := int64(0)
		if x.Value == 0 {
			v = 1
		}
		return ExpressionResult{Kind: Constant, SizeFlags: Size32, Value: v}, nil
	case UBitNot:
		return ExpressionResult{Kind: Constant, SizeFlags: x.SizeFlags, Value: ^x.Value}, nil
	}
	return ExpressionResult{Kind: Undefined}, kerr.E(kerr.EvaluationError, "unknown unary operator")
}
func (n *Unary) String() string { return "unary(" + n.X.String() + ")" }

// BinaryOp enumerates the binary operators spec.md §4.C requires folding
// for: "+ - * / % << >> & | ^ && ||".
type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Mod
	Shl
	Shr
	BitAnd
	BitOr
	BitXor
	LAnd
	LOr
)

// Binary is a binary constant expression.
type Binary struct {
	Op   BinaryOp
	X, Y Node
}

func (n *Binary) Eval(rt Runtime) (ExpressionResult, error) {
	x, err := n.X.Eval(rt)
	if err != nil {
		return ExpressionResult{Kind: Undefined}, err
	}
	// Short-circuit && / || the way C does, without evaluating Y when
	// the result is already decided.
	if n.Op == LAnd && x.IsConstantInt() && x.Value == 0 {
		return ExpressionResult{Kind: Constant, SizeFlags: Size32, Value: 0}, nil
	}
	if n.Op == LOr && x.IsConstantInt() && x.Value != 0 {
		return ExpressionResult{Kind: Constant, SizeFlags: Size32, Value: 1}, nil
	}
	y, err := n.Y.Eval(rt)
	if err != nil {
		return ExpressionResult{Kind: Undefined}, err
	}
	if !x.IsConstantInt() || !y.IsConstantInt() {
		flags := x.SizeFlags
		kind := Runtime
		if x.Kind == Undefined || y.Kind == Undefined {
			kind = Undefined
		}
		return ExpressionResult{Kind: kind, SizeFlags: flags}, nil
	}

	flags := promote(x.SizeFlags, y.SizeFlags)
	switch n.Op {
	case Add:
		return ExpressionResult{Kind: Constant, SizeFlags: flags, Value: x.Value + y.Value}, nil
	case Sub:
		return ExpressionResult{Kind: Constant, SizeFlags: flags, Value: x.Value - y.Value}, nil
	case Mul:
		return ExpressionResult{Kind: Constant, SizeFlags: flags, Value: x.Value * y.Value}, nil
	case Div:
		if y.Value == 0 {
			return ExpressionResult{Kind: Undefined}, kerr.E(kerr.EvaluationError, "division by zero")
		}
		return ExpressionResult{Kind: Constant, SizeFlags: flags, Value: x.Value / y.Value}, nil
	case Mod:
		if y.Value == 0 {
			return ExpressionResult{Kind: Undefined}, kerr.E(kerr.EvaluationError, "modulo by zero")
		}
		return ExpressionResult{Kind: Constant, SizeFlags: flags, Value: x.Value % y.Value}, nil
	case Shl:
		return ExpressionResult{Kind: Constant, SizeFlags: x.SizeFlags, Value: x.Value << uint(y.Value)}, nil
	case Shr:
		return ExpressionResult{Kind: Constant, SizeFlags: x.SizeFlags, Value: x.Value >> uint(y.Value)}, nil
	case BitAnd:
		return ExpressionResult{Kind: Constant, SizeFlags: flags, Value: x.Value & y.Value}, nil
	case BitOr:
		return ExpressionResult{Kind: Constant, SizeFlags: flags, Value: x.Value | y.Value}, nil
	case BitXor:
		return ExpressionResult{Kind: Constant, SizeFlags: flags, Value: x.Value ^ y.Value}, nil
	case LAnd:
		v := int64(0)
		if x.Value != 0 && y.Value != 0 {
			v = 1
		}
		return ExpressionResult{Kind: Constant, SizeFlags: Size32, Value: v}, nil
	case LOr:
		v := int64(0)
		if x.Value != 0 || y.Value != 0 {
			v = 1
		}
		return ExpressionResult{Kind: Constant, SizeFlags: Size32, Value: v}, nil
	}
	return ExpressionResult{Kind: Undefined}, kerr.E(kerr.EvaluationError, "unknown binary operator")
}

func (n *Binary) String() string { return "binary(" + n.X.String() + "," + n.Y.String() + ")" }
