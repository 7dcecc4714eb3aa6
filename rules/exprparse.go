package rules

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/allewwaly/insight-vmi-sub006/expr"
	"github.com/allewwaly/insight-vmi-sub006/internal/kerr"
)

// parseExpression compiles the small arithmetic subset an expression
// action's address expression needs (spec.md §4.D's "a C-like
// expression over the source instance") into an expr.Node: integer
// literals, identifiers, unary -/!/~, and the binary operators
// expr.Binary already models. This is not a C expression grammar (no
// casts, no member access, no calls) — rule files exercise address
// arithmetic only ("instance_base + offsetof(...)"-shaped expressions),
// and the full C grammar lives in package cast's AST, not here.
func parseExpression(src string) (expr.Node, error) {
	p := &exprParser{toks: tokenize(src), src: src}
	n, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, kerr.E(kerr.SyntaxError, "unexpected trailing input in expression %q", src)
	}
	return n, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokInt
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	val  int64
}

func tokenize(src string) []token {
	var toks []token
	r := []rune(src)
	i := 0
	for i < len(r) {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen})
			i++
		case unicode.IsDigit(c):
			j := i
			for j < len(r) && (unicode.IsDigit(r[j]) || r[j] == 'x' || r[j] == 'X' ||
				(r[j] >= 'a' && r[j] <= 'f') || (r[j] >= 'A' && r[j] <= 'F')) {
				j++
			}
			text := string(r[i:j])
			v, _ := strconv.ParseInt(text, 0, 64)
			toks = append(toks, token{kind: tokInt, text: text, val: v})
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(r) && (unicode.IsLetter(r[j]) || unicode.IsDigit(r[j]) || r[j] == '_') {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: string(r[i:j])})
			i = j
		default:
			two := ""
			if i+1 < len(r) {
				two = string(r[i : i+2])
			}
			switch two {
			case "<<", ">>", "&&", "||":
				toks = append(toks, token{kind: tokOp, text: two})
				i += 2
				continue
			}
			toks = append(toks, token{kind: tokOp, text: string(c)})
			i++
		}
	}
	return toks
}

type exprParser struct {
	toks []token
	pos  int
	src  string
}

func (p *exprParser) peek() token {
	if p.pos >= len(p.toks) {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos]
}

func (p *exprParser) next() token {
	t := p.peek()
	p.pos++
	return t
}

// precedence levels, lowest to highest: ||  &&  |  ^  &  == (n/a)  << >>  + -  * / %
var binOps = map[string]expr.BinaryOp{
	"||": expr.LOr, "&&": expr.LAnd,
	"|": expr.BitOr, "^": expr.BitXor, "&": expr.BitAnd,
	"<<": expr.Shl, ">>": expr.Shr,
	"+": expr.Add, "-": expr.Sub,
	"*": expr.Mul, "/": expr.Div, "%": expr.Mod,
}

var precedence = map[string]int{
	"||": 1, "&&": 2, "|": 3, "^": 4, "&": 5,
	"<<": 6, ">>": 6,
	"+": 7, "-": 7,
	"*": 8, "/": 8, "%": 8,
}

func (p *exprParser) parseLogicalOr() (expr.Node, error) {
	return p.parseBinary(1)
}

func (p *exprParser) parseBinary(minPrec int) (expr.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp {
			return left, nil
		}
		prec, ok := precedence[t.text]
		if !ok || prec < minPrec {
			return left, nil
		}
		p.next()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &expr.Binary{Op: binOps[t.text], X: left, Y: right}
	}
}

func (p *exprParser) parseUnary() (expr.Node, error) {
	t := p.peek()
	if t.kind == tokOp {
		switch t.text {
		case "-":
			p.next()
			x, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &expr.Unary{Op: expr.UNeg, X: x}, nil
		case "!":
			p.next()
			x, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &expr.Unary{Op: expr.UNot, X: x}, nil
		case "~":
			p.next()
			x, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &expr.Unary{Op: expr.UBitNot, X: x}, nil
		}
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (expr.Node, error) {
	t := p.next()
	switch t.kind {
	case tokInt:
		return &expr.IntLit{Value: t.val}, nil
	case tokIdent:
		return &expr.Ident{Name: t.text}, nil
	case tokLParen:
		n, err := p.parseLogicalOr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, kerr.E(kerr.SyntaxError, "missing closing paren in expression %q", p.src)
		}
		return n, nil
	default:
		return nil, kerr.E(kerr.SyntaxError, "unexpected token %q in expression %q", strings.TrimSpace(t.text), p.src)
	}
}
