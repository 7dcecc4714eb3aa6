// Package rules implements Component D, the Rule Engine: declarative
// filters matched against candidate instances during memory-map
// expansion, with three action kinds that compute or reinterpret a
// candidate's type (spec.md §4.D).
//
// The filter field set and its literal/regex/wildcard pattern
// inference is grounded on original_source/trunk/insightd/typefilter.cpp
// (element names "typename", "typeid", "variablename", "filename",
// "member", "match"); the declarative-validation shape generalizes
// gql/func.go's FormalArg (a struct of optional match criteria,
// validated once at load time rather than per-call).
package rules

import (
	"path"
	"regexp"
	"strings"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
)

// MatchMode controls how a Filter's string-valued clauses are compared
// against a candidate, mirroring typefilter.cpp's "match" attribute
// (any/regex/wildcard) — except here it is inferred from the pattern
// text itself when not pinned, the same inference typefilter.cpp's
// PatternSyntax performs for an unprefixed pattern string.
type MatchMode int

const (
	// MatchAuto infers MatchLiteral/MatchWildcard/MatchRegex from the
	// pattern text: a pattern containing '*', '?', or '[' is treated as
	// a glob (path.Match syntax); a pattern containing any of
	// `^$()|+{}\` not already consumed by the glob check is treated as a
	// regular expression; anything else is an exact literal match.
	MatchAuto MatchMode = iota
	MatchLiteral
	MatchWildcard
	MatchRegex
	// MatchAny matches regardless of the candidate's value, mirroring
	// typefilter.cpp's psAny: the clause is present (so its field is
	// checked for existence) but its text is never compared.
	MatchAny
)

// pattern is one filter clause: a string pattern plus the mode used to
// interpret it. An empty Text always matches (the clause is absent).
type Pattern struct {
	Text string
	Mode MatchMode

	compiledOnce bool
	compiled     *regexp.Regexp
}

func (p *Pattern) resolveMode() MatchMode {
	if p.Mode != MatchAuto {
		return p.Mode
	}
	if strings.ContainsAny(p.Text, "*?[") {
		return MatchWildcard
	}
	if strings.ContainsAny(p.Text, `^$()|+{}\`) {
		return MatchRegex
	}
	return MatchLiteral
}

func (p *Pattern) match(value string) bool {
	if p == nil || p.Text == "" {
		return true
	}
	switch p.resolveMode() {
	case MatchAny:
		return true
	case MatchWildcard:
		ok, err := path.Match(p.Text, value)
		return err == nil && ok
	case MatchRegex:
		if !p.compiledOnce {
			p.compiled, _ = regexp.Compile(p.Text)
			p.compiledOnce = true
		}
		return p.compiled != nil && p.compiled.MatchString(value)
	default:
		return p.Text == value
	}
}

// OSVersionRange bounds a filter to a range of kernel versions,
// inclusive on both ends. A zero Min/Max leaves that end unbounded.
type OSVersionRange struct {
	Min, Max uint64
}

func (r OSVersionRange) contains(v uint64) bool {
	if r.Min != 0 && v < r.Min {
		return false
	}
	if r.Max != 0 && v > r.Max {
		return false
	}
	return true
}

// Filter is a conjunction over every clause present (spec.md §4.D:
// "a filter (a conjunction over: target type name, target type id,
// member-access path, variable name, symbol-file glob, OS-version
// range)"). A clause whose pattern is empty / whose ID is
// ctype.InvalidID / whose OSVersions is the zero value does not
// constrain the match.
type Filter struct {
	TypeName     Pattern
	TypeID       ctype.ID
	MemberPath   Pattern
	VariableName Pattern
	SymbolFile   Pattern
	OSVersions   OSVersionRange
}

// MatchContext is everything about a candidate instance a Filter can be
// evaluated against.
type MatchContext struct {
	Instance     ctype.Instance
	TypeName     string
	MemberPath   string // dot-joined member chain from the referencing root, e.g. "foo.next".
	VariableName string
	SymbolFile   string
	OSVersion    uint64
}

// verdict is the three-way outcome of testing one Filter against one
// MatchContext: full match, a prefix match worth waiting on (the
// eventual member chain might still satisfy MemberPath once the walk
// goes deeper), or no match at all.
type verdict int

const (
	verdictNone verdict = iota
	verdictMatch
	verdictDefer
)

func (f *Filter) evaluate(mc MatchContext) verdict {
	if f.TypeID != ctype.InvalidID && f.TypeID != mc.Instance.Type {
		return verdictNone
	}
	if !f.TypeName.match(mc.TypeName) {
		return verdictNone
	}
	if !f.VariableName.match(mc.VariableName) {
		return verdictNone
	}
	if !f.SymbolFile.match(mc.SymbolFile) {
		return verdictNone
	}
	if mc.OSVersion != 0 && !f.OSVersions.contains(mc.OSVersion) {
		return verdictNone
	}
	if f.MemberPath.Text == "" {
		return verdictMatch
	}
	if f.MemberPath.match(mc.MemberPath) {
		return verdictMatch
	}
	// Literal member chains are the only ones for which "proper prefix"
	// is well defined (spec.md §4.E.3's path is built one hop at a
	// time); wildcard/regex member patterns either match now or never.
	if f.MemberPath.resolveMode() == MatchLiteral && isProperDottedPrefix(mc.MemberPath, f.MemberPath.Text) {
		return verdictDefer
	}
	return verdictNone
}

func isProperDottedPrefix(prefix, full string) bool {
	if prefix == "" {
		return full != ""
	}
	if prefix == full || !strings.HasPrefix(full, prefix) {
		return false
	}
	return full[len(prefix)] == '.'
}
