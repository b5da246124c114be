package feed

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridopark/decisioncore/internal/market"
)

func writeHSTHeader(version int32, symbol string, periodMinutes int32) []byte {
	h := make([]byte, hstHeaderSize)
	binary.LittleEndian.PutUint32(h[0:4], uint32(version))
	copy(h[68:80], symbol)
	binary.LittleEndian.PutUint32(h[80:84], uint32(periodMinutes))
	return h
}

func TestReadHSTFileV400(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eurusd.hst")

	buf := writeHSTHeader(400, "EURUSD", 1)

	rec := make([]byte, 44)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	binary.LittleEndian.PutUint32(rec[0:4], uint32(ts))
	putF64(rec, 4, 1.1000)  // open
	putF64(rec, 12, 1.0950) // low
	putF64(rec, 20, 1.1050) // high
	putF64(rec, 28, 1.1020) // close
	putF64(rec, 36, 100)    // volume
	buf = append(buf, rec...)

	require.NoError(t, os.WriteFile(path, buf, 0o644))

	bars, err := ReadHSTFile(path, "IGNORED", market.M5)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "EURUSD", bars[0].Symbol)
	assert.Equal(t, market.M1, bars[0].Timeframe)
	assert.Equal(t, 1.1000, bars[0].Open)
	assert.Equal(t, 1.0950, bars[0].Low)
	assert.Equal(t, 1.1050, bars[0].High)
	assert.Equal(t, 1.1020, bars[0].Close)
	assert.Equal(t, 100.0, bars[0].Volume)
}

func TestReadHSTFileV401(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eurusd401.hst")

	buf := writeHSTHeader(401, "GBPUSD", 60)

	rec := make([]byte, 60)
	ts := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC).Unix()
	binary.LittleEndian.PutUint64(rec[0:8], uint64(ts))
	putF64(rec, 8, 1.2500)  // open
	putF64(rec, 16, 1.2600) // high
	putF64(rec, 24, 1.2400) // low
	putF64(rec, 32, 1.2550) // close
	binary.LittleEndian.PutUint64(rec[40:48], uint64(250))
	buf = append(buf, rec...)

	require.NoError(t, os.WriteFile(path, buf, 0o644))

	bars, err := ReadHSTFile(path, "IGNORED", market.M1)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "GBPUSD", bars[0].Symbol)
	assert.Equal(t, market.H1, bars[0].Timeframe)
	assert.Equal(t, 1.2500, bars[0].Open)
	assert.Equal(t, 1.2600, bars[0].High)
	assert.Equal(t, 1.2400, bars[0].Low)
	assert.Equal(t, 1.2550, bars[0].Close)
	assert.Equal(t, 250.0, bars[0].Volume)
}

func TestReadHSTFileUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.hst")
	buf := writeHSTHeader(999, "EURUSD", 1)
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	_, err := ReadHSTFile(path, "EURUSD", market.M1)
	assert.Error(t, err)
}

func putF64(buf []byte, off int, v float64) {
	binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(v))
}
