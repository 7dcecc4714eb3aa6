package rules_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/expr"
	"github.com/allewwaly/insight-vmi-sub006/internal/symbol"
	"github.com/allewwaly/insight-vmi-sub006/rules"
)

func declCatalog() (*ctype.Catalog, ctype.ID, ctype.ID) {
	cat := ctype.NewCatalog()
	foo := &ctype.Type{ID: cat.AllocID(), Kind: ctype.KindStruct, Name: symbol.Intern("foo")}
	cat.Insert(foo)
	bar := &ctype.Type{ID: cat.AllocID(), Kind: ctype.KindStruct, Name: symbol.Intern("bar")}
	cat.Insert(bar)
	return cat, foo.ID, bar.ID
}

func TestFilterMatchesByTypeID(t *testing.T) {
	_, fooID, barID := declCatalog()
	engine := rules.NewEngine(nil)
	engine.Add(&rules.Rule{
		Name:     "r1",
		Priority: 10,
		Filter:   rules.Filter{TypeID: fooID},
		Action: &fixedAction{result: rules.ActionResult{
			Matched:  true,
			Instance: ctype.Instance{Address: 0x2000, Type: barID},
		}},
	})

	res := engine.Apply(context.Background(), rules.MatchContext{
		Instance: ctype.Instance{Address: 0x1000, Type: fooID},
	})
	require.Equal(t, rules.Match, res.Kind)
	assert.EqualValues(t, 0x2000, res.Instance.Address)
	assert.Equal(t, barID, res.Instance.Type)

	// A different type id has no matching rule.
	res2 := engine.Apply(context.Background(), rules.MatchContext{
		Instance: ctype.Instance{Address: 0x1000, Type: barID},
	})
	assert.Equal(t, rules.NoMatch, res2.Kind)
}

func TestEnginePicksHighestPriority(t *testing.T) {
	_, fooID, barID := declCatalog()
	engine := rules.NewEngine(nil)
	engine.Add(&rules.Rule{
		Name: "low", Priority: 1,
		Filter: rules.Filter{TypeID: fooID},
		Action: &fixedAction{result: rules.ActionResult{Matched: true, Instance: ctype.Instance{Address: 1, Type: barID}}},
	})
	engine.Add(&rules.Rule{
		Name: "high", Priority: 5,
		Filter: rules.Filter{TypeID: fooID},
		Action: &fixedAction{result: rules.ActionResult{Matched: true, Instance: ctype.Instance{Address: 2, Type: barID}}},
	})

	res := engine.Apply(context.Background(), rules.MatchContext{Instance: ctype.Instance{Type: fooID}})
	require.Equal(t, rules.Match, res.Kind)
	assert.EqualValues(t, 2, res.Instance.Address)
}

func TestEngineAmbiguousAtSamePriority(t *testing.T) {
	_, fooID, barID := declCatalog()
	engine := rules.NewEngine(nil)
	engine.Add(&rules.Rule{
		Name: "a", Priority: 5,
		Filter: rules.Filter{TypeID: fooID},
		Action: &fixedAction{result: rules.ActionResult{Matched: true, Instance: ctype.Instance{Address: 1, Type: barID}}},
	})
	engine.Add(&rules.Rule{
		Name: "b", Priority: 5,
		Filter: rules.Filter{TypeID: fooID},
		Action: &fixedAction{result: rules.ActionResult{Matched: true, Instance: ctype.Instance{Address: 2, Type: barID}}},
	})

	res := engine.Apply(context.Background(), rules.MatchContext{Instance: ctype.Instance{Type: fooID}})
	assert.Equal(t, rules.Ambiguous, res.Kind)
}

func TestEngineDefersOnMemberPathPrefix(t *testing.T) {
	_, fooID, _ := declCatalog()
	engine := rules.NewEngine(nil)
	engine.Add(&rules.Rule{
		Name: "deep", Priority: 1,
		Filter: rules.Filter{TypeID: fooID, MemberPath: rules.Pattern{Text: "a.b.c", Mode: rules.MatchLiteral}},
		Action: &fixedAction{result: rules.ActionResult{Matched: true}},
	})

	res := engine.Apply(context.Background(), rules.MatchContext{
		Instance:   ctype.Instance{Type: fooID},
		MemberPath: "a.b",
	})
	assert.Equal(t, rules.Defer, res.Kind)
}

func TestEngineDefaultHandlerRequest(t *testing.T) {
	_, fooID, _ := declCatalog()
	engine := rules.NewEngine(nil)
	engine.Add(&rules.Rule{
		Name: "def", Priority: 1,
		Filter: rules.Filter{TypeID: fooID},
		Action: &fixedAction{result: rules.ActionResult{UseDefaultHandler: true}},
	})

	res := engine.Apply(context.Background(), rules.MatchContext{Instance: ctype.Instance{Type: fooID}})
	assert.Equal(t, rules.DefaultHandler, res.Kind)
}

func TestNopScriptHostReportsRuleError(t *testing.T) {
	host := rules.NopScriptHost{}
	_, err := host.EvalInline(context.Background(), "x", rules.MatchContext{TypeName: "struct foo"})
	require.Error(t, err)
}

func TestExpressionActionComputesAddress(t *testing.T) {
	node := &expr.Binary{Op: expr.Add, X: &expr.Ident{Name: "instance_base"}, Y: &expr.IntLit{Value: 16}}
	factory := func(addr uint64) expr.Runtime {
		return mapRuntime{"instance_base": {Kind: expr.Constant, Value: int64(addr)}}
	}
	act := &rules.ExpressionAction{Source: "instance_base + 16", Expr: &expr.AddrExpr{Node: node, Factory: factory}, TargetType: 7}

	res, err := act.Apply(context.Background(), rules.MatchContext{Instance: ctype.Instance{Address: 0x100}}, rules.NopScriptHost{})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.EqualValues(t, 0x110, res.Instance.Address)
	assert.EqualValues(t, 7, res.Instance.Type)
}

// --- test helpers ---

type fixedAction struct {
	result rules.ActionResult
	err    error
}

func (a *fixedAction) Apply(context.Context, rules.MatchContext, rules.ScriptHost) (rules.ActionResult, error) {
	return a.result, a.err
}
func (a *fixedAction) String() string { return "fixed" }

type mapRuntime map[string]expr.ExpressionResult

func (rt mapRuntime) Lookup(name string) (expr.ExpressionResult, error) {
	return rt[name], nil
}
