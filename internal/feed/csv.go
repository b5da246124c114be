// Package feed reads historical bars/ticks from CSV (spec.md §6.4),
// reads the binary HST history-center format (§4.7/§6.3, hst.go), and
// aggregates a CSV tick stream into bars (§4.7 tick-to-bar rule),
// grounded on chidi150c-coinbase/backtest.go's loadCSV/parseTimeFlexible
// header-sniffing, delimiter-auto-detect style.
package feed

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ridopark/decisioncore/internal/market"
)

var barDateLayouts = []string{"2006.01.02", "2006-01-02", "2006/01/02", "01/02/2006"}

// sniffDelimiter returns '\t' when firstLine holds more tabs than
// commas, and ',' otherwise.
func sniffDelimiter(firstLine string) rune {
	if strings.Count(firstLine, "\t") > strings.Count(firstLine, ",") {
		return '\t'
	}
	return ','
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	return strings.Trim(s, "<>")
}

func hasHeaderTokens(fields []string) bool {
	joined := strings.ToLower(strings.Join(fields, " "))
	return strings.Contains(joined, "date") || strings.Contains(joined, "time") || strings.Contains(joined, "open")
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range barDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("feed: unrecognized date %q", s)
}

// parseTimestamp accepts Unix seconds, Unix milliseconds, or any bar
// date layout, per §6.4's tick-CSV timestamp rule.
func parseTimestamp(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		switch {
		case n > 1_000_000_000_000: // milliseconds
			return time.UnixMilli(n).UTC(), nil
		case n > 0:
			return time.Unix(n, 0).UTC(), nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return parseDate(s)
}

func parseClockTime(date time.Time, clock string) time.Time {
	clock = strings.ReplaceAll(clock, ".", ":")
	parts := strings.Split(clock, ":")
	var h, m, sec int
	if len(parts) > 0 {
		h, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		m, _ = strconv.Atoi(parts[1])
	}
	if len(parts) > 2 {
		sec, _ = strconv.Atoi(parts[2])
	}
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, sec, 0, time.UTC)
}

func readAllRecords(path string) ([][]string, rune, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ',', fmt.Errorf("feed: open %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	firstLine, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, ',', fmt.Errorf("feed: read first line of %s: %w", path, err)
	}
	delim := sniffDelimiter(firstLine)

	full, err := os.Open(path)
	if err != nil {
		return nil, ',', err
	}
	defer full.Close()
	r := csv.NewReader(full)
	r.Comma = delim
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, delim, fmt.Errorf("feed: parse csv %s: %w", path, err)
	}
	return records, delim, nil
}

// ReadBarCSV reads an OHLCV CSV per §6.4's Bar CSV rule: optional
// header (detected by date|time|open tokens), auto-detected
// tab/comma delimiter, <>-stripped fields, and either a combined
// date+time column or separate date/time columns.
func ReadBarCSV(path string, symbol string, tf market.Timeframe) ([]market.Bar, error) {
	records, _, err := readAllRecords(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	start := 0
	if hasHeaderTokens(records[0]) {
		start = 1
	}

	bars := make([]market.Bar, 0, len(records)-start)
	for _, rec := range records[start:] {
		fields := make([]string, len(rec))
		for i, f := range rec {
			fields[i] = clean(f)
		}
		bar, err := parseBarFields(fields, symbol, tf)
		if err != nil {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// parseBarFields handles both separate <date time open high low close
// volume> (7 fields) and single-column <date open high low close
// volume> (6 fields) layouts; in the 6-field layout the date column may
// also carry a space-separated time of day.
func parseBarFields(f []string, symbol string, tf market.Timeframe) (market.Bar, error) {
	var openTime time.Time
	var rest []string

	switch {
	case len(f) >= 7:
		d, err := parseDate(f[0])
		if err != nil {
			return market.Bar{}, err
		}
		openTime = parseClockTime(d, f[1])
		rest = f[2:]
	case len(f) == 6:
		d, err := parseDate(f[0])
		if err != nil {
			parts := strings.Fields(f[0])
			if len(parts) != 2 {
				return market.Bar{}, err
			}
			day, derr := parseDate(parts[0])
			if derr != nil {
				return market.Bar{}, derr
			}
			d = parseClockTime(day, parts[1])
		}
		openTime = d
		rest = f[1:]
	default:
		return market.Bar{}, fmt.Errorf("feed: unexpected bar field count %d", len(f))
	}

	if len(rest) < 4 {
		return market.Bar{}, fmt.Errorf("feed: not enough OHLC fields")
	}
	open, _ := strconv.ParseFloat(rest[0], 64)
	high, _ := strconv.ParseFloat(rest[1], 64)
	low, _ := strconv.ParseFloat(rest[2], 64)
	closePrice, _ := strconv.ParseFloat(rest[3], 64)
	var volume float64
	if len(rest) > 4 {
		volume, _ = strconv.ParseFloat(rest[4], 64)
	}

	return market.Bar{
		Symbol: symbol, Timeframe: tf, OpenTime: openTime, CloseTime: openTime.Add(tf.Duration()),
		Open: open, High: high, Low: low, Close: closePrice, Volume: volume,
	}, nil
}

// ReadTickCSV reads a tick CSV per §6.4's Tick CSV rule: either
// (timestamp, bid, ask[, volume]) or (date, time, bid, ask[, volume]).
func ReadTickCSV(path string, symbol string) ([]market.Tick, error) {
	records, _, err := readAllRecords(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	start := 0
	if hasHeaderTokens(records[0]) {
		start = 1
	}

	ticks := make([]market.Tick, 0, len(records)-start)
	for _, rec := range records[start:] {
		fields := make([]string, len(rec))
		for i, f := range rec {
			fields[i] = clean(f)
		}
		tick, err := parseTickFields(fields, symbol)
		if err != nil {
			continue
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

func parseTickFields(f []string, symbol string) (market.Tick, error) {
	var ts time.Time
	var rest []string

	if len(f) >= 5 || (len(f) == 4 && strings.Contains(f[1], ":")) {
		d, err := parseDate(f[0])
		if err == nil {
			ts = parseClockTime(d, f[1])
			rest = f[2:]
		}
	}
	if rest == nil {
		if len(f) < 2 {
			return market.Tick{}, fmt.Errorf("feed: not enough tick fields")
		}
		t, err := parseTimestamp(f[0])
		if err != nil {
			return market.Tick{}, err
		}
		ts = t
		rest = f[1:]
	}

	if len(rest) < 2 {
		return market.Tick{}, fmt.Errorf("feed: not enough bid/ask fields")
	}
	bid, _ := strconv.ParseFloat(rest[0], 64)
	ask, _ := strconv.ParseFloat(rest[1], 64)
	return market.Tick{Symbol: symbol, Time: ts, Bid: bid, Ask: ask}, nil
}
