package live

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridopark/decisioncore/internal/market"
)

type fakeSource struct {
	bars []market.Bar
}

func (f *fakeSource) GetBars(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Bar, error) {
	if len(f.bars) == 0 {
		return nil, nil
	}
	start := len(f.bars) - count
	if start < 0 {
		start = 0
	}
	return append([]market.Bar(nil), f.bars[start:]...), nil
}

func barAt(i int) market.Bar {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute)
	price := 100.0 + float64(i)*0.1
	return market.Bar{Symbol: "EURUSD", Timeframe: market.M1, OpenTime: t, Open: price, High: price + 0.1, Low: price - 0.1, Close: price, Volume: 5}
}

func TestInitializeLoadsBars(t *testing.T) {
	src := &fakeSource{bars: []market.Bar{barAt(0), barAt(1), barAt(2)}}
	m := NewManager(src, 100, zerolog.Nop())

	require.NoError(t, m.Initialize(context.Background(), "EURUSD", []market.Timeframe{market.M1}, 10))
	bars := m.GetBars("EURUSD", market.M1)
	assert.Len(t, bars, 3)
}

func TestFirstBarCloseDoesNotFireCallback(t *testing.T) {
	src := &fakeSource{bars: []market.Bar{barAt(0)}}
	m := NewManager(src, 100, zerolog.Nop())

	fired := 0
	m.OnBarClose(func(symbol string, tf market.Timeframe) { fired++ })

	require.NoError(t, m.Initialize(context.Background(), "EURUSD", []market.Timeframe{market.M1}, 10))
	require.NoError(t, m.OnTick(context.Background(), market.Tick{Symbol: "EURUSD", Time: barAt(0).OpenTime, Bid: 100, Ask: 100.001}))

	assert.Equal(t, 0, fired, "the first observed bar must not look like a close event")
}

func TestSubsequentNewBarFiresCallback(t *testing.T) {
	src := &fakeSource{bars: []market.Bar{barAt(0)}}
	m := NewManager(src, 100, zerolog.Nop())

	fired := 0
	m.OnBarClose(func(symbol string, tf market.Timeframe) { fired++ })

	require.NoError(t, m.Initialize(context.Background(), "EURUSD", []market.Timeframe{market.M1}, 10))

	src.bars = append(src.bars, barAt(1))
	require.NoError(t, m.OnTick(context.Background(), market.Tick{Symbol: "EURUSD", Time: barAt(1).OpenTime, Bid: 100, Ask: 100.001}))

	assert.Equal(t, 1, fired)
	bars := m.GetBars("EURUSD", market.M1)
	require.Len(t, bars, 2)
	assert.Equal(t, barAt(1).OpenTime, bars[1].OpenTime)
}

func TestSameBarDoesNotRefire(t *testing.T) {
	src := &fakeSource{bars: []market.Bar{barAt(0), barAt(1)}}
	m := NewManager(src, 100, zerolog.Nop())

	fired := 0
	m.OnBarClose(func(symbol string, tf market.Timeframe) { fired++ })
	require.NoError(t, m.Initialize(context.Background(), "EURUSD", []market.Timeframe{market.M1}, 10))

	require.NoError(t, m.OnTick(context.Background(), market.Tick{Symbol: "EURUSD", Time: barAt(1).OpenTime, Bid: 100, Ask: 100}))
	require.NoError(t, m.OnTick(context.Background(), market.Tick{Symbol: "EURUSD", Time: barAt(1).OpenTime.Add(time.Second), Bid: 100, Ask: 100}))

	assert.Equal(t, 0, fired, "no new bar arrived yet after initialize, so still no close event")
}

func TestRingBufferTrimsToMaxBars(t *testing.T) {
	all := make([]market.Bar, 0, 5)
	for i := 0; i < 5; i++ {
		all = append(all, barAt(i))
	}
	src := &fakeSource{bars: all[:1]}
	m := NewManager(src, 3, zerolog.Nop())
	require.NoError(t, m.Initialize(context.Background(), "EURUSD", []market.Timeframe{market.M1}, 10))

	for i := 1; i < 5; i++ {
		src.bars = all[:i+1]
		require.NoError(t, m.OnTick(context.Background(), market.Tick{Symbol: "EURUSD", Time: all[i].OpenTime, Bid: 100, Ask: 100}))
	}

	bars := m.GetBars("EURUSD", market.M1)
	assert.Len(t, bars, 3)
	assert.Equal(t, all[4].OpenTime, bars[2].OpenTime)
}

func TestIndicatorCache(t *testing.T) {
	m := NewManager(&fakeSource{}, 100, zerolog.Nop())
	m.CacheIndicator("EURUSD", market.M1, "rsi14", "RSI", map[string]float64{"rsi": 55.5}, barAt(0).OpenTime)

	v, ok := m.GetCachedIndicator("EURUSD", market.M1, "rsi14")
	require.True(t, ok)
	assert.Equal(t, 55.5, v.Values["rsi"])

	_, ok = m.GetCachedIndicator("EURUSD", market.M1, "missing")
	assert.False(t, ok)
}
