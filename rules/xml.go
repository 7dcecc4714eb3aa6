package rules

import (
	"context"
	"encoding/xml"
	"path"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/expr"
	"github.com/allewwaly/insight-vmi-sub006/internal/kerr"
)

// The element and attribute names below are grounded on
// original_source/trunk/insightd/typeruleparser.cpp (typeknowledge,
// ruleincludes/ruleinclude, scriptincludes/scriptinclude, rules/rule,
// name, description, filter, members/member, action, type, file,
// inline, sourcetype, targettype, expression) and
// original_source/trunk/insightd/typefilter.cpp (typename, typeid,
// variablename, filename, member, match=any|regex|wildcard).

type xmlPattern struct {
	Match string `xml:"match,attr"`
	Text  string `xml:",chardata"`
}

func (p *xmlPattern) toPattern() Pattern {
	if p == nil {
		return Pattern{}
	}
	mode := MatchAuto
	switch strings.ToLower(p.Match) {
	case "regex":
		mode = MatchRegex
	case "wildcard":
		mode = MatchWildcard
	case "any":
		mode = MatchAny
	}
	return Pattern{Text: strings.TrimSpace(p.Text), Mode: mode}
}

type xmlFilter struct {
	TypeName     *xmlPattern `xml:"typename"`
	TypeID       string      `xml:"typeid"`
	VariableName *xmlPattern `xml:"variablename"`
	FileName     *xmlPattern `xml:"filename"`
	Members      []string    `xml:"members>member"`
	OSMin        uint64      `xml:"osmin,attr"`
	OSMax        uint64      `xml:"osmax,attr"`
}

type xmlAction struct {
	Type       string `xml:"type,attr"`
	SourceType string `xml:"sourcetype,attr"`
	TargetType string `xml:"targettype,attr"`
	File       string `xml:"file,attr"`
	Text       string `xml:",chardata"`
}

type xmlRule struct {
	Name        string    `xml:"name"`
	Description string    `xml:"description"`
	Priority    int       `xml:"priority,attr"`
	Filter      xmlFilter `xml:"filter"`
	Action      xmlAction `xml:"action"`
}

type xmlTypeKnowledge struct {
	XMLName        xml.Name  `xml:"typeknowledge"`
	Version        string    `xml:"version,attr"`
	RuleIncludes   []string  `xml:"ruleincludes>ruleinclude"`
	ScriptIncludes []string  `xml:"scriptincludes>scriptinclude"`
	Rules          []xmlRule `xml:"rules>rule"`
}

// Loader reads rule files (spec.md §4.D), resolving nested
// <ruleinclude> files and compiling expression actions against Catalog
// at load time.
type Loader struct {
	Catalog     *ctype.Catalog
	AddrFactory expr.RuntimeFactory

	visited     map[string]bool
	scriptFiles []string
}

// NewLoader constructs a Loader. addrFactory binds the free variables an
// expression action's address expression may reference (e.g.
// "instance_base") to a concrete instance address; see expr.AddrExpr.
func NewLoader(cat *ctype.Catalog, addrFactory expr.RuntimeFactory) *Loader {
	return &Loader{Catalog: cat, AddrFactory: addrFactory, visited: map[string]bool{}}
}

// LoadFile parses path and every file it transitively <ruleinclude>s,
// returning the flattened rule list. ScriptFiles returns the
// <scriptinclude> paths collected across the whole load, for the
// caller's ScriptHost to load once per session.
func (l *Loader) LoadFile(ctx context.Context, p string) ([]*Rule, error) {
	if l.visited[p] {
		return nil, nil
	}
	l.visited[p] = true

	data, err := file.ReadFile(ctx, p)
	if err != nil {
		return nil, kerr.E(kerr.SyntaxError, err, "reading rule file %q", p)
	}
	var doc xmlTypeKnowledge
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, kerr.E(kerr.SyntaxError, err, "parsing rule file %q", p)
	}

	dir := path.Dir(p)
	var rules []*Rule
	for _, inc := range doc.ScriptIncludes {
		l.scriptFiles = append(l.scriptFiles, resolveInclude(dir, inc))
	}
	for _, inc := range doc.RuleIncludes {
		sub, err := l.LoadFile(ctx, resolveInclude(dir, inc))
		if err != nil {
			return nil, err
		}
		rules = append(rules, sub...)
	}
	for i := range doc.Rules {
		r, err := l.compileRule(&doc.Rules[i], p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// ScriptFiles returns every <scriptinclude> path seen across every
// LoadFile call so far, in the order first encountered.
func (l *Loader) ScriptFiles() []string {
	return append([]string(nil), l.scriptFiles...)
}

func resolveInclude(dir, p string) string {
	if path.IsAbs(p) || strings.Contains(p, "://") {
		return p
	}
	return path.Join(dir, p)
}

func (l *Loader) compileRule(x *xmlRule, loc string) (*Rule, error) {
	f := Filter{
		TypeName:     x.Filter.TypeName.toPattern(),
		VariableName: x.Filter.VariableName.toPattern(),
		SymbolFile:   x.Filter.FileName.toPattern(),
		OSVersions:   OSVersionRange{Min: x.Filter.OSMin, Max: x.Filter.OSMax},
	}
	if len(x.Filter.Members) > 0 {
		f.MemberPath = Pattern{Text: strings.Join(x.Filter.Members, "."), Mode: MatchLiteral}
	}
	if x.Filter.TypeID != "" {
		id, err := strconv.ParseUint(strings.TrimSpace(x.Filter.TypeID), 0, 32)
		if err != nil {
			return nil, kerr.E(kerr.SyntaxError, err, "rule %q: invalid typeid %q", x.Name, x.Filter.TypeID)
		}
		f.TypeID = ctype.ID(id)
	}

	action, err := l.compileAction(x)
	if err != nil {
		return nil, kerr.E(kerr.SyntaxError, err, "rule %q", x.Name)
	}

	return &Rule{
		Name:     x.Name,
		Priority: x.Priority,
		Filter:   f,
		Action:   action,
		Location: loc,
	}, nil
}

func (l *Loader) compileAction(x *xmlRule) (Action, error) {
	switch strings.ToLower(x.Action.Type) {
	case "expression":
		return l.compileExpressionAction(x)
	case "inline":
		return &InlineScriptAction{Source: x.Action.Text}, nil
	case "function":
		return &ScriptFileAction{File: x.Action.File, Function: strings.TrimSpace(x.Action.Text)}, nil
	default:
		return nil, kerr.E(kerr.SyntaxError, "unknown action type %q, must be one of expression, inline, function", x.Action.Type)
	}
}

// compileExpressionAction implements spec.md §4.D's load-time check for
// expression actions: "parsing the expression with the C parser,
// type-checking it against the candidate source type, and compiling it
// to an AstExpression." The source-type check is satisfied by resolving
// SourceType through the catalog (reported as an error if unknown); the
// full C parser is package cast's, but address expressions only need
// the arithmetic subset parseExpression compiles.
func (l *Loader) compileExpressionAction(x *xmlRule) (Action, error) {
	node, err := parseExpression(x.Action.Text)
	if err != nil {
		return nil, err
	}
	targetID, err := l.resolveTypeName(x.Action.TargetType)
	if err != nil {
		return nil, kerr.E(kerr.SyntaxError, err, "unresolved targettype %q", x.Action.TargetType)
	}
	if x.Action.SourceType != "" {
		if _, err := l.resolveTypeName(x.Action.SourceType); err != nil {
			return nil, kerr.E(kerr.SyntaxError, err, "unresolved sourcetype %q", x.Action.SourceType)
		}
	}
	return &ExpressionAction{
		Source:     x.Action.Text,
		Expr:       &expr.AddrExpr{Node: node, Factory: l.AddrFactory},
		TargetType: targetID,
	}, nil
}

// bareIdentifier strips a C type spelling ("struct foo *", "union bar",
// "enum baz") down to the bare identifier the catalog indexes Types by
// (ctype.Catalog.ByName keys on the declared name alone, not the
// "struct "/"union "/"enum " keyword or trailing pointer stars).
func bareIdentifier(spelling string) string {
	s := strings.TrimSpace(spelling)
	s = strings.TrimRight(s, "* ")
	for _, kw := range []string{"struct ", "union ", "enum "} {
		if strings.HasPrefix(s, kw) {
			return strings.TrimSpace(s[len(kw):])
		}
	}
	return s
}

func (l *Loader) resolveTypeName(name string) (ctype.ID, error) {
	candidates := l.Catalog.ByName(bareIdentifier(name))
	if len(candidates) == 0 {
		return ctype.InvalidID, kerr.E(kerr.SyntaxError, "no type named %q in catalog", name)
	}
	return candidates[0].ID, nil
}
