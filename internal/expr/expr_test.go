package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateArithmetic(t *testing.T) {
	ctx := NewContext()
	ctx.Price = 1.2345
	ctx.Ind["rsi14"] = map[string]float64{"value": 72.5}
	ctx.Vars["risk_pct"] = 0.02

	v, err := Evaluate("_price * 2", ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.469, v, 1e-9)

	v, err = Evaluate("clamp(ind.rsi14.value, 0, 70)", ctx)
	require.NoError(t, err)
	assert.Equal(t, 70.0, v)

	v, err = Evaluate("iff(ind.rsi14.value > 70, 1, 0)", ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestEvaluateErrors(t *testing.T) {
	ctx := NewContext()

	_, err := Evaluate("1 / 0", ctx)
	assert.Error(t, err)

	_, err = Evaluate("ind.missing.value", ctx)
	assert.Error(t, err)

	_, err = Evaluate("bogus_fn(1)", ctx)
	assert.Error(t, err)
}

func TestConditionTreeEmptyIsFalse(t *testing.T) {
	ctx := NewContext()
	tree := &Tree{Op: And}
	assert.False(t, tree.Evaluate(ctx))
}

func TestConditionTreeAndOr(t *testing.T) {
	ctx := NewContext()
	ctx.Ind["rsi14"] = map[string]float64{"value": 75}
	ctx.Ind["ema50"] = map[string]float64{"value": 1.10}
	ctx.Price = 1.12

	and := &Tree{Op: And, Rules: []*Rule{
		{Description: "rsi overbought", Left: "ind.rsi14.value", Op: ">", Right: "70"},
		{Description: "price above ema", Left: "_price", Op: ">", Right: "ind.ema50.value"},
	}}
	assert.True(t, and.Evaluate(ctx))

	or := &Tree{Op: Or, Rules: []*Rule{
		{Description: "rsi oversold", Left: "ind.rsi14.value", Op: "<", Right: "30"},
		{Description: "price above ema", Left: "_price", Op: ">", Right: "ind.ema50.value"},
	}}
	assert.True(t, or.Evaluate(ctx))

	ok, details := and.EvaluateDetailed(ctx)
	assert.True(t, ok)
	require.Len(t, details, 2)
	assert.True(t, details[0].Passed)
}

func TestConditionFailingRuleIsFalse(t *testing.T) {
	ctx := NewContext()
	tree := &Tree{Op: And, Rules: []*Rule{
		{Description: "unresolved", Left: "ind.missing.value", Op: ">", Right: "0"},
	}}
	assert.False(t, tree.Evaluate(ctx))
}
