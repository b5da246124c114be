package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridopark/decisioncore/internal/market"
)

func TestMultiTFGetAtUnknownIndicatorReturnsError(t *testing.T) {
	bars := syntheticBars(60)
	mtf := NewMultiTF(market.M1, map[market.Timeframe][]market.Bar{market.M1: bars})
	_, err := mtf.GetAt(market.M1, 50, "NOPE", Params{})
	assert.Error(t, err)
}

func TestMultiTFGetAtAlignsHigherTimeframe(t *testing.T) {
	m1 := syntheticBars(120)
	m15 := make([]market.Bar, 0, 8)
	for i := 0; i < len(m1); i += 15 {
		m15 = append(m15, m1[i])
	}
	mtf := NewMultiTF(market.M1, map[market.Timeframe][]market.Bar{market.M1: m1, market.M15: m15})

	r, err := mtf.GetAt(market.M15, 100, "RSI", Params{"period": 14})
	require.NoError(t, err)
	assert.Contains(t, r, "value")
}

func TestKeltnerChannelRegisteredAsPlugin(t *testing.T) {
	eng := NewEngine(syntheticBars(60))
	r, err := eng.ComputeAt(59, "KeltnerChannel", Params{"ema_period": 20, "atr_period": 10, "atr_factor": 2})
	require.NoError(t, err)
	assert.Greater(t, r["upper"], r["middle"])
	assert.Greater(t, r["middle"], r["lower"])
}
