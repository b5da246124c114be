package feed

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ridopark/decisioncore/internal/market"
)

const hstHeaderSize = 148

// hstPeriodTimeframe maps an HST header's period (bar length in
// minutes) to our Timeframe. Monthly (43200) has no Timeframe constant
// in internal/market and falls back to the caller-supplied tf.
var hstPeriodTimeframe = map[int32]market.Timeframe{
	1:     market.M1,
	5:     market.M5,
	15:    market.M15,
	30:    market.M30,
	60:    market.H1,
	240:   market.H4,
	1440:  market.D1,
	10080: market.W1,
}

// ReadHSTFile streams an MT4/MT5 "history center" binary file per
// spec.md §4.7/§6.3: a 148-byte header (format version at offset 0, a
// 12-byte ASCIIZ symbol at offset 68, period-in-minutes at offset 80)
// followed by fixed-size bar records — 44 bytes for header version
// 400, 60 bytes for version 401. Bit-exact with
// import_manager.py's _produce_hst, including its v400 field order
// (open, low, high, close — not OHLC) and v401's int64 volume plus
// trailing spread/real_volume fields we read but discard.
//
// symbol and tf are used only as fallbacks: a populated HST symbol or
// a recognized period overrides them, matching the Python producer.
func ReadHSTFile(path string, symbol string, tf market.Timeframe) ([]market.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 64*1024)
	header := make([]byte, hstHeaderSize)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("feed: hst header %s: %w", path, err)
	}

	version := int32(binary.LittleEndian.Uint32(header[0:4]))
	if hstSymbol := strings.TrimRight(string(header[68:80]), "\x00"); hstSymbol != "" {
		symbol = hstSymbol
	}
	period := int32(binary.LittleEndian.Uint32(header[80:84]))
	if want, ok := hstPeriodTimeframe[period]; ok {
		tf = want
	}

	var recordSize int
	switch version {
	case 400:
		recordSize = 44
	case 401:
		recordSize = 60
	default:
		return nil, fmt.Errorf("feed: unknown hst version %d in %s", version, path)
	}

	rec := make([]byte, recordSize)
	var bars []market.Bar
	for {
		if _, err := io.ReadFull(br, rec); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("feed: hst record %s: %w", path, err)
		}
		bars = append(bars, parseHSTRecord(rec, version, symbol, tf))
	}
	return bars, nil
}

func parseHSTRecord(rec []byte, version int32, symbol string, tf market.Timeframe) market.Bar {
	le := binary.LittleEndian
	f64 := func(off int) float64 { return math.Float64frombits(le.Uint64(rec[off : off+8])) }

	var ts int64
	var open, high, low, closePrice, volume float64

	if version == 400 {
		ts = int64(int32(le.Uint32(rec[0:4])))
		open, low, high, closePrice, volume = f64(4), f64(12), f64(20), f64(28), f64(36)
	} else {
		ts = int64(le.Uint64(rec[0:8]))
		open, high, low, closePrice = f64(8), f64(16), f64(24), f64(32)
		volume = float64(int64(le.Uint64(rec[40:48])))
	}

	openTime := time.Unix(ts, 0).UTC()
	return market.Bar{
		Symbol: symbol, Timeframe: tf, OpenTime: openTime, CloseTime: openTime.Add(tf.Duration()),
		Open: open, High: high, Low: low, Close: closePrice, Volume: volume,
	}
}
