package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridopark/decisioncore/internal/market"
)

func syntheticBars(n int) []market.Bar {
	bars := make([]market.Bar, n)
	price := 100.0
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price += float64(i%5) - 2
		bars[i] = market.Bar{
			Symbol: "EURUSD", Timeframe: market.M1,
			OpenTime: t.Add(time.Duration(i) * time.Minute),
			Open:     price, High: price + 1, Low: price - 1, Close: price + 0.3,
			Volume: 100,
		}
	}
	return bars
}

func TestSMAAndEMAAgreePointwiseWithSeries(t *testing.T) {
	bars := syntheticBars(60)
	eng := NewEngine(bars)

	for _, name := range []string{"SMA", "EMA"} {
		series, err := eng.ComputeSeries(name, Params{"period": 20})
		require.NoError(t, err)
		for _, i := range []int{25, 40, 59} {
			at, err := eng.ComputeAt(i, name, Params{"period": 20})
			require.NoError(t, err)
			assert.Greater(t, at["value"], 0.0)
			require.NotNil(t, series["value"][i])
			assert.Equal(t, at["value"], *series["value"][i])
		}
	}
}

func TestMACDHistogramPresentInPointInTime(t *testing.T) {
	bars := syntheticBars(60)
	eng := NewEngine(bars)
	r, err := eng.ComputeAt(50, "MACD", Params{"fast_ema": 12, "slow_ema": 26, "signal": 9})
	require.NoError(t, err)
	_, ok := r["histogram"]
	assert.True(t, ok, "point-in-time MACD must include histogram so both modes agree pointwise")
}

func TestWarmupFormula(t *testing.T) {
	w := ComputeWarmup(map[string]Params{
		"RSI": {"period": 14},
		"ADX": {"period": 30},
	}, 1000)
	// max_period=30 -> 30*1.2=36, clamp(36,20,250)=36
	assert.Equal(t, 36, w)

	w2 := ComputeWarmup(map[string]Params{"RSI": {"period": 5}}, 1000)
	assert.Equal(t, 20, w2) // below the floor of 20
}

func TestUnknownIndicatorErrors(t *testing.T) {
	eng := NewEngine(syntheticBars(10))
	_, err := eng.ComputeAt(5, "NOPE", Params{})
	assert.Error(t, err)
}

func TestComputeSeriesLength(t *testing.T) {
	bars := syntheticBars(30)
	eng := NewEngine(bars)
	series, err := eng.ComputeSeries("RSI", Params{"period": 14})
	require.NoError(t, err)
	assert.Len(t, series["value"], 30)
}
