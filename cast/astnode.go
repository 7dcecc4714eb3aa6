// Package cast implements Component B, the AST Type Evaluator
// (spec.md §4.B): a bottom-up, context-sensitive type inference over a
// C syntax tree. The C lexer/parser itself is out of scope (spec.md §1);
// this package defines the AST contract a parser must produce (Node and
// its concrete expression/statement kinds below) rather than bundling a
// grammar, mirroring grailbio-gql/gql/ast.go's ASTNode interface (there,
// eval/String/hash/pos; here, String/Pos).
package cast

import "github.com/allewwaly/insight-vmi-sub006/internal/kerr"

// Node is any syntax-tree node the evaluator walks.
type Node interface {
	String() string
	Pos() kerr.Location
}

// DeclaredType describes a symbol's (variable, member, parameter,
// function-return) declared type as seen from the AST side, before any
// catalog lookup. Chain is the AstType chain of the C type spelling
// ("struct module", "int", "list_head *", ...); a parser fills this in
// directly from the declaration it saw.
type DeclaredType struct {
	Chain *AstType
}

// Symbol is a named entity the evaluator can attach a declared type to:
// a local or global variable, a function parameter, or a function
// (for its return type).
type Symbol struct {
	Name    string
	Type    DeclaredType
	// IsParam and IsLocal distinguish the three symbol kinds
	// spec.md §4.B.3 rule 4 suppresses primary-expression changes for
	// ("T_src was a function-return value; T_src is a local of
	// non-struct type used without member access; T_src is a function
	// parameter of non-struct type").
	IsParam  bool
	IsLocal  bool
	IsReturn bool
}

// Ident is a primary expression referencing a Symbol directly.
type Ident struct {
	Pos_ kerr.Location
	Sym  *Symbol
}

func (n *Ident) String() string      { return n.Sym.Name }
func (n *Ident) Pos() kerr.Location { return n.Pos_ }

// UnaryOp enumerates the unary operators §4.B.2 gives semantics for.
type UnaryOp int

const (
	OpDeref UnaryOp = iota // *p
	OpAddr                  // &e
)

// Unary is a unary-operator expression.
type Unary struct {
	Pos_ kerr.Location
	Op   UnaryOp
	X    Node
}

func (n *Unary) String() string      { return "unary(" + n.X.String() + ")" }
func (n *Unary) Pos() kerr.Location { return n.Pos_ }

// BinaryOp enumerates the binary operators §4.B.2 gives semantics for.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpMod
	OpShl
	OpShr
	OpMulAssign // p *= i, only ever an error per spec.md §8 scenario 5.
)

// Binary is a binary arithmetic expression.
type Binary struct {
	Pos_     kerr.Location
	Op       BinaryOp
	X, Y     Node
}

func (n *Binary) String() string      { return "binary(" + n.X.String() + "," + n.Y.String() + ")" }
func (n *Binary) Pos() kerr.Location { return n.Pos_ }

// IndexCarrier distinguishes whether a[i]'s base was declared as an array
// or a pointer (§4.B.2: "records whether the dereferenced carrier was an
// array or a pointer; this distinction is preserved for the context-type
// computation").
type IndexCarrier int

const (
	CarrierUnknown IndexCarrier = iota
	CarrierArray
	CarrierPointer
)

// Index is an array/pointer subscript expression a[i].
type Index struct {
	Pos_    kerr.Location
	X       Node
	Carrier IndexCarrier
}

func (n *Index) String() string      { return n.X.String() + "[]" }
func (n *Index) Pos() kerr.Location { return n.Pos_ }

// MemberAccess is p->m or (*p).m or s.m. Arrow reports whether the
// source used "->"; both forms reduce to the same AstType per §4.B.2.
type MemberAccess struct {
	Pos_  kerr.Location
	X     Node
	Field string
	Arrow bool
}

func (n *MemberAccess) String() string { return n.X.String() + "." + n.Field }
func (n *MemberAccess) Pos() kerr.Location { return n.Pos_ }

// Call is a function-call expression; Callee is the Symbol called (its
// return type drives the result). The evaluator does not walk Args: no
// type change is tracked through a call's arguments.
type Call struct {
	Pos_   kerr.Location
	Callee *Symbol
	Args   []Node
}

func (n *Call) String() string      { return n.Callee.Name + "(...)" }
func (n *Call) Pos() kerr.Location { return n.Pos_ }

// Cast is an explicit C cast expression: (T)x.
type Cast struct {
	Pos_   kerr.Location
	Target *AstType
	X      Node
}

func (n *Cast) String() string      { return "(cast)" + n.X.String() }
func (n *Cast) Pos() kerr.Location { return n.Pos_ }

// Cond is a ternary conditional a ? b : c.
type Cond struct {
	Pos_    kerr.Location
	Then, Else Node
}

func (n *Cond) String() string      { return "cond(...)" }
func (n *Cond) Pos() kerr.Location { return n.Pos_ }

// StmtExpr is a GCC statement expression ({ ...; e; }); its type is e's.
type StmtExpr struct {
	Pos_  kerr.Location
	Last  Node
}

func (n *StmtExpr) String() string      { return "({...})" }
func (n *StmtExpr) Pos() kerr.Location { return n.Pos_ }

// Assign is "lhs = rhs". The evaluator's expression walker rejects Assign
// nodes; assignments are evaluated through Evaluator.EvalAssignment, which
// records symbol-to-symbol alias chains for transitive propagation
// (§4.B.4).
type Assign struct {
	Pos_     kerr.Location
	LHS, RHS Node
}

func (n *Assign) String() string      { return n.LHS.String() + " = " + n.RHS.String() }
func (n *Assign) Pos() kerr.Location { return n.Pos_ }

// Return is a function return statement; its expression is linked to
// every call site's result (§4.B.4, "When the chain passes through a
// function...").
type Return struct {
	Pos_ kerr.Location
	Fn   *Symbol
	X    Node
}

func (n *Return) String() string      { return "return " + n.X.String() }
func (n *Return) Pos() kerr.Location { return n.Pos_ }

// DesignatedInit is one leaf of an initializer list, optionally preceded
// by the designators (".field", "[n]") that select where it lands in the
// aggregate (§4.B.2 "initializers and designated initializers").
type DesignatedInit struct {
	FieldPath []string // e.g. ["f", "next"] for ".f.next ="; empty for positional.
	Index     *int      // set for "[n] =" designators.
	Value     Node
}

// CompoundLiteral is an (possibly designated) initializer list targeting
// a declared aggregate type.
type CompoundLiteral struct {
	Pos_   kerr.Location
	Target *AstType
	Inits  []DesignatedInit
}

func (n *CompoundLiteral) String() string      { return "{...}" }
func (n *CompoundLiteral) Pos() kerr.Location { return n.Pos_ }
