package barcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridopark/decisioncore/internal/market"
)

func sampleBars(n int) []market.Bar {
	bars := make([]market.Bar, n)
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		bars[i] = market.Bar{
			Symbol: "EURUSD", Timeframe: market.M1,
			OpenTime: t.Add(time.Duration(i) * time.Minute),
			Open: 1.1, High: 1.11, Low: 1.09, Close: 1.105, Volume: 100,
		}
	}
	return bars
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	c, err := Open(":memory:")
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	bars := sampleBars(5)
	require.NoError(t, c.SaveBars(ctx, bars))

	loaded, err := c.LoadBars(ctx, "EURUSD", market.M1, 10)
	require.NoError(t, err)
	require.Len(t, loaded, 5)
	assert.True(t, loaded[0].OpenTime.Before(loaded[4].OpenTime), "load must return oldest first")
}

func TestUpsertOverwritesExisting(t *testing.T) {
	c, err := Open(":memory:")
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	bars := sampleBars(1)
	require.NoError(t, c.SaveBars(ctx, bars))

	bars[0].Close = 2.0
	require.NoError(t, c.SaveBars(ctx, bars))

	n, err := c.Count(ctx, "EURUSD", market.M1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	loaded, err := c.LoadBars(ctx, "EURUSD", market.M1, 10)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 2.0, loaded[0].Close)
}

func TestCleanupOldNoOpWhenRetentionZero(t *testing.T) {
	c, err := Open(":memory:")
	require.NoError(t, err)
	defer c.Close()

	n, err := c.CleanupOld(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
