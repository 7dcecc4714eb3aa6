package rules

import (
	"context"
	"sort"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
)

// ResultKind is the outcome of Engine.Apply (spec.md §4.D).
type ResultKind int

const (
	// NoMatch: no rule's filter matched; the builder proceeds with its
	// own default reinterpretation logic.
	NoMatch ResultKind = iota
	// Match: the highest-priority matching rule produced a concrete
	// instance.
	Match
	// Ambiguous: two or more rules at the same (highest matching)
	// priority produced different instances.
	Ambiguous
	// DefaultHandler: the highest-priority matching rule explicitly
	// requested the builder's default handling.
	DefaultHandler
	// Defer: the current member path is a proper prefix of some rule's
	// required member chain; the builder should re-probe once the walk
	// reaches further in.
	Defer
)

func (k ResultKind) String() string {
	switch k {
	case Match:
		return "Match"
	case Ambiguous:
		return "Ambiguous"
	case DefaultHandler:
		return "DefaultHandler"
	case Defer:
		return "Defer"
	default:
		return "NoMatch"
	}
}

// Result is Engine.Apply's return value.
type Result struct {
	Kind     ResultKind
	Instance ctype.Instance
	Warnings []Warning
}

// Engine indexes Rules by target TypeId for O(1) candidate lookup
// (spec.md §4.D), grounded on
// original_source/libinsight/typeruleengine.cpp's per-type rule list.
// Rules whose Filter.TypeID is ctype.InvalidID apply to every type and
// are consulted alongside the type-specific list.
type Engine struct {
	host     ScriptHost
	byType   map[ctype.ID][]*Rule
	wildcard []*Rule
	built    bool
}

// NewEngine constructs an Engine. host runs script actions; pass
// NopScriptHost{} if no scripting engine is wired.
func NewEngine(host ScriptHost) *Engine {
	if host == nil {
		host = NopScriptHost{}
	}
	return &Engine{host: host, byType: map[ctype.ID][]*Rule{}}
}

// Add registers a rule. Call Build after the last Add and before the
// first Apply.
func (e *Engine) Add(r *Rule) {
	e.built = false
	if r.Filter.TypeID == ctype.InvalidID {
		e.wildcard = append(e.wildcard, r)
		return
	}
	e.byType[r.Filter.TypeID] = append(e.byType[r.Filter.TypeID], r)
}

// Build sorts every rule list by descending priority, stably (so
// insertion order breaks ties deterministically, matching a rule file's
// textual order). Apply calls Build lazily if it has not been called.
func (e *Engine) Build() {
	sortByPriority := func(rs []*Rule) {
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Priority > rs[j].Priority })
	}
	for id := range e.byType {
		sortByPriority(e.byType[id])
	}
	sortByPriority(e.wildcard)
	e.built = true
}

// candidates returns every rule that could possibly apply to mc's type,
// type-specific rules before wildcard rules, both individually sorted
// by descending priority.
func (e *Engine) candidates(typeID ctype.ID) []*Rule {
	return append(append([]*Rule(nil), e.byType[typeID]...), e.wildcard...)
}

// Apply implements spec.md §4.D's apply(inst, member_path) → MatchResult.
func (e *Engine) Apply(ctx context.Context, mc MatchContext) Result {
	if !e.built {
		e.Build()
	}
	rules := e.candidates(mc.Instance.Type)
	if len(rules) == 0 {
		return Result{Kind: NoMatch}
	}

	var warnings []Warning
	deferred := false
	i := 0
	for i < len(rules) {
		tier := rules[i].Priority
		j := i
		var tierResults []ActionResult
		var tierDefer bool
		for j < len(rules) && rules[j].Priority == tier {
			r := rules[j]
			switch r.Filter.evaluate(mc) {
			case verdictMatch:
				res, err := r.Action.Apply(ctx, mc, e.host)
				if err != nil {
					warnings = append(warnings, Warning{Rule: r.Name, Location: r.Location, Err: err})
				} else if res.Matched || res.UseDefaultHandler {
					tierResults = append(tierResults, res)
				}
			case verdictDefer:
				tierDefer = true
			}
			j++
		}
		if len(tierResults) > 0 {
			return resolveTier(tierResults, warnings)
		}
		if tierDefer {
			deferred = true
		}
		i = j
	}
	if deferred {
		return Result{Kind: Defer, Warnings: warnings}
	}
	return Result{Kind: NoMatch, Warnings: warnings}
}

func resolveTier(results []ActionResult, warnings []Warning) Result {
	for _, r := range results {
		if r.UseDefaultHandler {
			return Result{Kind: DefaultHandler, Warnings: warnings}
		}
	}
	first := results[0].Instance
	for _, r := range results[1:] {
		if r.Instance != first {
			return Result{Kind: Ambiguous, Warnings: warnings}
		}
	}
	return Result{Kind: Match, Instance: first, Warnings: warnings}
}
