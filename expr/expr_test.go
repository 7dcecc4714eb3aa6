package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allewwaly/insight-vmi-sub006/expr"
)

func TestConstantFoldingArithmetic(t *testing.T) {
	// (2 + 3) * 4 - 1 = 19
	sum := &expr.Binary{Op: expr.Add, X: &expr.IntLit{Value: 2}, Y: &expr.IntLit{Value: 3}}
	mul := &expr.Binary{Op: expr.Mul, X: sum, Y: &expr.IntLit{Value: 4}}
	sub := &expr.Binary{Op: expr.Sub, X: mul, Y: &expr.IntLit{Value: 1}}

	v, ok, err := expr.EvaluateIntExpression(sub, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 19, v)
}

func TestConstantFoldingBitwiseAndShift(t *testing.T) {
	// (0xFF & 0x0F) << 4 == 0xF0
	and := &expr.Binary{Op: expr.BitAnd, X: &expr.IntLit{Value: 0xFF}, Y: &expr.IntLit{Value: 0x0F}}
	shl := &expr.Binary{Op: expr.Shl, X: and, Y: &expr.IntLit{Value: 4}}

	v, ok, err := expr.EvaluateIntExpression(shl, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 0xF0, v)
}

func TestLogicalShortCircuit(t *testing.T) {
	// 0 && (1/0) must not evaluate the division.
	div := &expr.Binary{Op: expr.Div, X: &expr.IntLit{Value: 1}, Y: &expr.IntLit{Value: 0}}
	and := &expr.Binary{Op: expr.LAnd, X: &expr.IntLit{Value: 0}, Y: div}

	v, ok, err := expr.EvaluateIntExpression(and, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 0, v)
}

func TestDivisionByZeroIsUndefined(t *testing.T) {
	div := &expr.Binary{Op: expr.Div, X: &expr.IntLit{Value: 1}, Y: &expr.IntLit{Value: 0}}
	_, ok, err := expr.EvaluateIntExpression(div, nil)
	assert.False(t, ok)
	assert.Error(t, err)
}

type mapRuntime map[string]expr.ExpressionResult

func (rt mapRuntime) Lookup(name string) (expr.ExpressionResult, error) {
	r, ok := rt[name]
	if !ok {
		return expr.ExpressionResult{Kind: expr.Undefined}, assertErr{name}
	}
	return r, nil
}

type assertErr struct{ name string }

func (e assertErr) Error() string { return "unresolved: " + e.name }

func TestRuntimeDependentExpressionIsNotConstant(t *testing.T) {
	rt := mapRuntime{"current_task": {Kind: expr.Runtime}}
	id := &expr.Ident{Name: "current_task"}
	_, ok, err := expr.EvaluateIntExpression(id, rt)
	require.NoError(t, err)
	assert.False(t, ok, "a runtime-dependent identifier has no constant int value")
}

func TestStringConstantIsNotAnIntExpression(t *testing.T) {
	s := &expr.StringLit{Value: "init_module"}
	_, ok, err := expr.EvaluateIntExpression(s, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

type fakeMember struct {
	ints    []int64
	strs    []string
	marked  bool
}

func (m *fakeMember) ObserveConstInt(v int64)    { m.ints = append(m.ints, v) }
func (m *fakeMember) ObserveConstString(v string) { m.strs = append(m.strs, v) }
func (m *fakeMember) MarkNotConstant()            { m.marked = true; m.ints = nil; m.strs = nil }

func TestCaptureMagicNumberRecordsConstantInt(t *testing.T) {
	m := &fakeMember{}
	require.NoError(t, expr.CaptureMagicNumber(m, &expr.IntLit{Value: 0xdeadbeef}, nil))
	assert.Equal(t, []int64{0xdeadbeef}, m.ints)
	assert.False(t, m.marked)
}

func TestCaptureMagicNumberRecordsConstantString(t *testing.T) {
	m := &fakeMember{}
	require.NoError(t, expr.CaptureMagicNumber(m, &expr.StringLit{Value: "magic"}, nil))
	assert.Equal(t, []string{"magic"}, m.strs)
}

func TestCaptureMagicNumberExtinguishesOnRuntimeValue(t *testing.T) {
	m := &fakeMember{ints: []int64{1}}
	rt := mapRuntime{"x": {Kind: expr.Runtime}}
	require.NoError(t, expr.CaptureMagicNumber(m, &expr.Ident{Name: "x"}, rt))
	assert.True(t, m.marked)
	assert.Nil(t, m.ints)
}

func TestAddrExprAppliesOffsetPerInstance(t *testing.T) {
	// "instance_base + 8"
	node := &expr.Binary{Op: expr.Add, X: &expr.Ident{Name: "instance_base"}, Y: &expr.IntLit{Value: 8}}
	factory := func(instanceAddr uint64) expr.Runtime {
		return mapRuntime{"instance_base": {Kind: expr.Constant, Value: int64(instanceAddr)}}
	}
	ae := expr.AddrExpr{Node: node, Factory: factory}

	off, err := ae.ApplyOffset(0x1000)
	require.NoError(t, err)
	assert.EqualValues(t, 0x1008, off)
}
