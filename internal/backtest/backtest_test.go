package backtest

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridopark/decisioncore/internal/market"
	"github.com/ridopark/decisioncore/internal/playbook"
)

const testPlaybookYAML = `
name: simple_trend
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
            sl_expr: "_price - 0.01"
            tp_expr: "_price + 0.01"
  in_trade:
    timeout:
      timeframe: M1
      bars: 200
    timeout_to_phase: scanning
`

func syntheticTrendBars(n int) []market.Bar {
	bars := make([]market.Bar, n)
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.05
		bars[i] = market.Bar{
			Symbol: "EURUSD", Timeframe: market.M1,
			OpenTime: t.Add(time.Duration(i) * time.Minute),
			Open:     price, High: price + 0.02, Low: price - 0.02, Close: price,
			Volume: 10,
		}
	}
	return bars
}

func TestRunOpensAndClosesTrade(t *testing.T) {
	pb, err := playbook.Parse([]byte(testPlaybookYAML))
	require.NoError(t, err)

	bars := syntheticTrendBars(150)
	barMap := map[market.Timeframe][]market.Bar{market.M1: bars}

	cfg := Config{
		Symbol:           "EURUSD",
		StartingBalance:  10000,
		SpreadPips:       1,
		SlippagePips:     0,
		CommissionPerLot: 0,
	}

	res, err := Run(pb, market.M1, barMap, cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades, "price crosses 105 so a trade should open and eventually close via SL/TP/timeout")
	assert.Equal(t, "BUY", res.Trades[0].Direction)
	assert.NotEmpty(t, res.EquityCurve)
}

func TestComputeMetricsEmptyTrades(t *testing.T) {
	m := ComputeMetrics(nil, []float64{1000}, 1000)
	assert.Equal(t, 0, m.TotalTrades)
}

func TestDrawdownCurveNeverPositive(t *testing.T) {
	curve := []float64{100, 110, 90, 120, 80}
	dd := ComputeDrawdownCurve(curve)
	for _, d := range dd {
		assert.LessOrEqual(t, d, 0.0)
	}
}

func TestPipValueTable(t *testing.T) {
	assert.Equal(t, 0.01, pipValue("USDJPY"))
	assert.Equal(t, 0.1, pipValue("XAUUSD"))
	assert.Equal(t, 0.0001, pipValue("EURUSD"))
}
