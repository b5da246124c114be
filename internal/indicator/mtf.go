package indicator

import (
	"fmt"

	"github.com/ridopark/decisioncore/internal/market"
)

// AlignHigherTF implements §4.3 Multi-Timeframe Alignment: maps a
// primary-timeframe bar index to the index of the largest bar in the
// higher-timeframe series whose OpenTime is <= the primary bar's
// OpenTime. Strictly one-directional — it never looks at a higher
// timeframe bar that opened after the primary bar, which is what
// prevents look-ahead when a playbook references a slower timeframe's
// indicator.
//
// Returns -1 if no higher-timeframe bar qualifies yet (still in
// warmup relative to that timeframe).
func AlignHigherTF(primary []market.Bar, primaryIdx int, higher []market.Bar) int {
	if primaryIdx < 0 || primaryIdx >= len(primary) {
		return -1
	}
	t := primary[primaryIdx].OpenTime
	// Binary search for the rightmost higher[k] with OpenTime <= t.
	lo, hi := 0, len(higher)-1
	result := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if !higher[mid].OpenTime.After(t) {
			result = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return result
}

// MultiTF wraps one Engine per timeframe and exposes a single
// GetAt(symbol-agnostic) lookup that resolves the higher-timeframe bar
// index via AlignHigherTF on every call before delegating to that
// timeframe's Engine.ComputeAt; no alignment is precomputed, and only
// ComputeAt's own result cache is reused between calls.
type MultiTF struct {
	primary market.Timeframe
	bars    map[market.Timeframe][]market.Bar
	engines map[market.Timeframe]*Engine
}

// NewMultiTF builds a multi-timeframe indicator engine. bars maps each
// timeframe present in a playbook's evaluate_on set to its bar array;
// primary is the timeframe the replay loop advances on.
func NewMultiTF(primary market.Timeframe, bars map[market.Timeframe][]market.Bar) *MultiTF {
	m := &MultiTF{primary: primary, bars: bars, engines: make(map[market.Timeframe]*Engine)}
	for tf, b := range bars {
		m.engines[tf] = NewEngine(b)
	}
	return m
}

// GetAt computes indicator `name` on timeframe tf at the bar aligned
// to primaryIdx on the primary timeframe. If tf == primary, no
// alignment lookup is needed.
func (m *MultiTF) GetAt(tf market.Timeframe, primaryIdx int, name string, params Params) (Result, error) {
	eng, ok := m.engines[tf]
	if !ok {
		return nil, errUnknownTimeframe(tf)
	}
	reg, ok := eng.registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown indicator %q", name)
	}

	idx := primaryIdx
	if tf != m.primary {
		idx = AlignHigherTF(m.bars[m.primary], primaryIdx, m.bars[tf])
		if idx < 0 {
			return reg.empty(), nil
		}
	}
	return eng.ComputeAt(idx, name, params)
}

type unknownTimeframeError struct{ tf market.Timeframe }

func (e unknownTimeframeError) Error() string { return "no bars loaded for timeframe " + string(e.tf) }

func errUnknownTimeframe(tf market.Timeframe) error { return unknownTimeframeError{tf: tf} }
