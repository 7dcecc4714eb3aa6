package rules

import (
	"context"

	"github.com/allewwaly/insight-vmi-sub006/ctype"
	"github.com/allewwaly/insight-vmi-sub006/expr"
	"github.com/allewwaly/insight-vmi-sub006/internal/kerr"
)

// ActionResult is what an Action produces for one matching instance:
// either a concrete reinterpretation (Instance, with Matched true) or a
// request to fall back to the builder's default handling (spec.md §4.D:
// "if a rule requests the default handler, flag DefaultHandler").
type ActionResult struct {
	Instance          ctype.Instance
	Matched           bool
	UseDefaultHandler bool
}

// Action is one of the three kinds spec.md §4.D describes.
type Action interface {
	Apply(ctx context.Context, mc MatchContext, host ScriptHost) (ActionResult, error)
	String() string
}

// ScriptHost runs the scripting-language action bodies. It is an
// interface (rather than embedding a concrete scripting engine) because
// no scripting library appears anywhere in the retrieval pack; callers
// that need live script execution supply their own implementation, and
// NopScriptHost below is the zero-dependency default that reports every
// script action as a rule error (spec.md §4.D: "script exceptions are
// caught and reported as warnings with rule location").
type ScriptHost interface {
	// EvalInline runs a fragment of scripting-language source wrapped in
	// a dedicated function, invoked once per matching instance.
	EvalInline(ctx context.Context, source string, mc MatchContext) (ActionResult, error)
	// CallFunction invokes a named function in an external script file,
	// loaded once per session.
	CallFunction(ctx context.Context, file, function string, mc MatchContext) (ActionResult, error)
}

// NopScriptHost rejects every script action. It is the default ScriptHost
// when the caller has not wired a real scripting engine.
type NopScriptHost struct{}

func (NopScriptHost) EvalInline(_ context.Context, _ string, mc MatchContext) (ActionResult, error) {
	return ActionResult{}, kerr.E(kerr.RuleError, "no script host configured: inline script action for %s", mc.TypeName)
}

func (NopScriptHost) CallFunction(_ context.Context, file, function string, mc MatchContext) (ActionResult, error) {
	return ActionResult{}, kerr.E(kerr.RuleError, "no script host configured: %s::%s for %s", file, function, mc.TypeName)
}

// ExpressionAction computes a target address (by folding Expr against
// the candidate instance) and reinterprets it as TargetType (spec.md
// §4.D: "a C-like expression over the source instance computes a
// target address and a target type ... compiling it to an
// AstExpression"). Expr and TargetType are both resolved once at rule
// load time (see xml.go's compileExpressionAction), not per instance.
type ExpressionAction struct {
	Source     string
	Expr       *expr.AddrExpr
	TargetType ctype.ID
}

func (a *ExpressionAction) Apply(_ context.Context, mc MatchContext, _ ScriptHost) (ActionResult, error) {
	addr, err := a.Expr.ApplyOffset(mc.Instance.Address)
	if err != nil {
		return ActionResult{}, kerr.E(kerr.RuleError, err, "expression action %q", a.Source)
	}
	return ActionResult{
		Matched: true,
		Instance: ctype.Instance{
			Address:  uint64(addr),
			Type:     a.TargetType,
			NamePath: mc.Instance.NamePath,
			Origin:   ctype.OriginRuleEngine,
		},
	}, nil
}

func (a *ExpressionAction) String() string { return "expression: " + a.Source }

// InlineScriptAction wraps a fragment of scripting-language source,
// invoked by the configured ScriptHost per matching instance.
type InlineScriptAction struct {
	Source string
}

func (a *InlineScriptAction) Apply(ctx context.Context, mc MatchContext, host ScriptHost) (ActionResult, error) {
	return host.EvalInline(ctx, a.Source, mc)
}

func (a *InlineScriptAction) String() string { return "inline script" }

// ScriptFileAction invokes a named function in an external script file
// loaded once per session by the configured ScriptHost.
type ScriptFileAction struct {
	File     string
	Function string
}

func (a *ScriptFileAction) Apply(ctx context.Context, mc MatchContext, host ScriptHost) (ActionResult, error) {
	return host.CallFunction(ctx, a.File, a.Function, mc)
}

func (a *ScriptFileAction) String() string { return a.File + "::" + a.Function }
