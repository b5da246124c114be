package feed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridopark/decisioncore/internal/market"
)

func TestReadBarCSVWithHeaderAndDateTimeColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")
	content := "<DATE>,<TIME>,<OPEN>,<HIGH>,<LOW>,<CLOSE>,<VOL>\n" +
		"2026.01.01,00:00:00,1.1000,1.1050,1.0950,1.1020,100\n" +
		"2026.01.01,00:01:00,1.1020,1.1060,1.1000,1.1040,120\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	bars, err := ReadBarCSV(path, "EURUSD", market.M1)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 1.1000, bars[0].Open)
	assert.Equal(t, 1.1040, bars[1].Close)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC), bars[1].OpenTime)
}

func TestReadBarCSVNoHeaderTabDelimited(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")
	content := "2026-01-01\t1.1\t1.2\t1.0\t1.15\t50\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	bars, err := ReadBarCSV(path, "EURUSD", market.D1)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 1.15, bars[0].Close)
}

func TestReadTickCSVCombinedTimestamp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ticks.csv")
	content := "timestamp,bid,ask\n" +
		"1767225600,1.1000,1.1002\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ticks, err := ReadTickCSV(path, "EURUSD")
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, 1.1000, ticks[0].Bid)
}

func TestAggregatorEmitsOnBucketChange(t *testing.T) {
	agg := NewAggregator("EURUSD", market.M1)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, emitted := agg.Add(market.Tick{Symbol: "EURUSD", Time: base, Bid: 1.10, Ask: 1.1002})
	assert.False(t, emitted)

	_, emitted = agg.Add(market.Tick{Symbol: "EURUSD", Time: base.Add(30 * time.Second), Bid: 1.11, Ask: 1.1102})
	assert.False(t, emitted, "still in the same minute bucket")

	bar, emitted := agg.Add(market.Tick{Symbol: "EURUSD", Time: base.Add(61 * time.Second), Bid: 1.12, Ask: 1.1202})
	require.True(t, emitted)
	assert.Equal(t, base, bar.OpenTime)
	assert.InDelta(t, 1.1001, bar.Open, 1e-9)
	assert.InDelta(t, 1.1101, bar.Close, 0.0001)

	final, ok := agg.Flush()
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Minute), final.OpenTime)
}

func TestAggregatorFlushEmptyReturnsFalse(t *testing.T) {
	agg := NewAggregator("EURUSD", market.M1)
	_, ok := agg.Flush()
	assert.False(t, ok)
}
