package live

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridopark/decisioncore/internal/market"
	"github.com/ridopark/decisioncore/internal/playbook"
)

const runnerPlaybookYAML = `
name: simple_trend_live
symbol: EURUSD
evaluate_on: ["M1"]
initial_phase: scanning
variables: {}
risk:
  max_lot: 1.0
phases:
  scanning:
    transitions:
      - name: enter_long
        priority: 10
        to_phase: in_trade
        condition:
          op: AND
          rules:
            - left: "_price"
              op: ">"
              right: "105"
        actions:
          - kind: open_trade
            side: BUY
            lot_expr: "1"
            sl_expr: "_price - 1"
            tp_expr: "_price + 1"
  in_trade:
    transitions:
      - name: exit
        priority: 10
        to_phase: scanning
        condition:
          op: AND
          rules:
            - left: "_price"
              op: ">"
              right: "1000000"
        actions:
          - kind: close_trade
`

type fakeExecutor struct {
	opens  int
	closes int
}

func (f *fakeExecutor) OpenPosition(ctx context.Context, symbol string, intent playbook.TradeIntent) (float64, error) {
	f.opens++
	return intent.SL + 1, nil // pretend fill = midpoint-ish
}

func (f *fakeExecutor) ClosePosition(ctx context.Context, symbol, reason string) (float64, float64, error) {
	f.closes++
	return 0, 10, nil
}

func TestRunnerDrivesPlaybookOnBarClose(t *testing.T) {
	pb, err := playbook.Parse([]byte(runnerPlaybookYAML))
	require.NoError(t, err)
	inst := playbook.NewInstance(pb, "EURUSD")

	src := &fakeSource{bars: []market.Bar{barAt(0)}}
	mgr := NewManager(src, 500, zerolog.Nop())
	eng := playbook.NewEngine(zerolog.Nop())
	exec := &fakeExecutor{}

	NewRunner(mgr, eng, exec, inst, nil, zerolog.Nop())

	require.NoError(t, mgr.Initialize(context.Background(), "EURUSD", []market.Timeframe{market.M1}, 10))
	assert.Equal(t, "scanning", inst.CurrentPhase, "initialization must not drive a decision")

	rising := []market.Bar{barAt(0)}
	price := 100.0
	for i := 1; i < 120; i++ {
		price += 0.1
		b := barAt(i)
		b.Close = price
		b.Open = price
		rising = append(rising, b)
		src.bars = rising
		require.NoError(t, mgr.OnTick(context.Background(), market.Tick{Symbol: "EURUSD", Time: b.OpenTime, Bid: price, Ask: price}))
	}

	assert.Equal(t, "in_trade", inst.CurrentPhase)
	assert.Equal(t, 1, exec.opens)
	require.NotNil(t, inst.Position)
	assert.Equal(t, "BUY", inst.Position.Direction)
}

func TestPollBuildsTickFromMid(t *testing.T) {
	src := &fakeSource{bars: []market.Bar{barAt(0)}}
	mgr := NewManager(src, 500, zerolog.Nop())
	eng := playbook.NewEngine(zerolog.Nop())
	pb, err := playbook.Parse([]byte(runnerPlaybookYAML))
	require.NoError(t, err)
	inst := playbook.NewInstance(pb, "EURUSD")
	r := NewRunner(mgr, eng, &fakeExecutor{}, inst, nil, zerolog.Nop())

	require.NoError(t, mgr.Initialize(context.Background(), "EURUSD", []market.Timeframe{market.M1}, 10))
	require.NoError(t, r.Poll(context.Background(), "EURUSD", 100.5, time.Now()))
}
