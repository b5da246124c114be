package playbook

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridopark/decisioncore/internal/expr"
	"github.com/ridopark/decisioncore/internal/market"
)

const samplePlaybook = `
name: trend_follow
symbol: EURUSD
evaluate_on: ["M15"]
initial_phase: scanning
variables:
  risk_pct: 1.0
circuit_breaker:
  max_consecutive_losses: 2
  max_errors: 5
  cooldown: 1h
phases:
  scanning:
    transitions:
      - name: enter_long
        priority: 10
        to_phase: in_trade
        condition:
          op: AND
          rules:
            - left: "ind.rsi.value"
              op: "<"
              right: "30"
        actions:
          - kind: open_trade
            side: BUY
            lot_expr: "var.risk_pct"
            sl_expr: "_price - 10"
            tp_expr: "_price + 20"
  in_trade:
    timeout:
      timeframe: M15
      bars: 3
    timeout_to_phase: scanning
    position_management:
      - name: trail
        kind: trail_sl
        step_expr: "5"
        when:
          op: AND
          rules:
            - left: "_price"
              op: ">"
              right: "0"
`

func TestLoadAndValidate(t *testing.T) {
	pb, err := Parse([]byte(samplePlaybook))
	require.NoError(t, err)
	assert.Equal(t, "scanning", pb.InitialPhase)
	assert.Equal(t, 2, pb.CircuitBreaker.MaxConsecutiveLosses)
	assert.Equal(t, time.Hour, time.Duration(pb.CircuitBreaker.Cooldown))
	assert.Contains(t, pb.Phases, "in_trade")
}

func TestEngineOpensTradeOnConditionMet(t *testing.T) {
	pb, err := Parse([]byte(samplePlaybook))
	require.NoError(t, err)

	inst := NewInstance(pb, "EURUSD")
	eng := NewEngine(zerolog.Nop())

	ctx := expr.NewContext()
	ctx.Price = 100
	ctx.Ind["rsi"] = map[string]float64{"value": 25}

	events := eng.EvaluateBar(inst, ctx, market.M15, time.Now())
	require.NotNil(t, events.Opened)
	assert.Equal(t, "BUY", events.Opened.Side)
	assert.Equal(t, "in_trade", inst.CurrentPhase)
	assert.Equal(t, 0, inst.BarsInPhase) // reset by TransitionTo
}

func TestPhaseTimeoutPerTimeframeCounter(t *testing.T) {
	pb, err := Parse([]byte(samplePlaybook))
	require.NoError(t, err)

	inst := NewInstance(pb, "EURUSD")
	inst.TransitionTo("in_trade")
	eng := NewEngine(zerolog.Nop())

	ctx := expr.NewContext()
	ctx.Price = 100

	var last StepEvents
	for i := 0; i < 3; i++ {
		last = eng.EvaluateBar(inst, ctx, market.M15, time.Now())
	}
	assert.True(t, last.TimedOut)
	assert.Equal(t, "scanning", inst.CurrentPhase)
}

func TestCircuitBreakerTripsAndCoolsDown(t *testing.T) {
	pb, err := Parse([]byte(samplePlaybook))
	require.NoError(t, err)

	inst := NewInstance(pb, "EURUSD")
	eng := NewEngine(zerolog.Nop())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	eng.NotifyTradeClosed(inst, -1, false, base)
	eng.NotifyTradeClosed(inst, -1, false, base)
	assert.True(t, inst.CB.Tripped)

	ctx := expr.NewContext()
	ctx.Price = 100
	ctx.Ind["rsi"] = map[string]float64{"value": 10}
	events := eng.EvaluateBar(inst, ctx, market.M15, base.Add(2*time.Hour))
	assert.NotNil(t, events.Opened, "cooldown elapsed so circuit breaker should have reset")
}

func TestTrailSLNeverRetreats(t *testing.T) {
	pb, err := Parse([]byte(samplePlaybook))
	require.NoError(t, err)
	inst := NewInstance(pb, "EURUSD")
	inst.TransitionTo("in_trade")
	inst.Position = &OpenPosition{Direction: "BUY", SL: 90}

	eng := NewEngine(zerolog.Nop())
	ctx := expr.NewContext()
	ctx.Price = 100

	eng.EvaluateBar(inst, ctx, market.M15, time.Now())
	assert.Equal(t, 95.0, inst.Position.SL)

	ctx.Price = 92 // price drops; SL must not retreat
	inst.FiredOnceRules = map[string]bool{}
	eng.EvaluateBar(inst, ctx, market.M15, time.Now())
	assert.Equal(t, 95.0, inst.Position.SL)
}
