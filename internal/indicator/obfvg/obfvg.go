// Package obfvg implements the order-block + fair-value-gap market
// structure indicator: detection of bullish/bearish order blocks at
// the 2/3-bar sweep-and-reverse offsets, lifecycle tracking
// {active -> tested -> breaker -> reversed}, and three-bar fair value
// gaps with a configurable fill threshold.
package obfvg

import "github.com/ridopark/decisioncore/internal/market"

const (
	StateActive   = 0
	StateTested   = 1
	StateBreaker  = 2
	StateReversed = 3
)

type Output struct {
	NearestBullOBTop    float64
	NearestBullOBBottom float64
	NearestBullOBState  float64
	NearestBearOBTop    float64
	NearestBearOBBottom float64
	NearestBearOBState  float64
	NearestFVGTop       float64
	NearestFVGBottom    float64
	NearestFVGFilledPct float64
}

func (o Output) Fields() map[string]float64 {
	return map[string]float64{
		"bull_ob_top": o.NearestBullOBTop, "bull_ob_bottom": o.NearestBullOBBottom, "bull_ob_state": o.NearestBullOBState,
		"bear_ob_top": o.NearestBearOBTop, "bear_ob_bottom": o.NearestBearOBBottom, "bear_ob_state": o.NearestBearOBState,
		"fvg_top": o.NearestFVGTop, "fvg_bottom": o.NearestFVGBottom, "fvg_filled_pct": o.NearestFVGFilledPct,
	}
}

func Empty() map[string]float64 { return Output{}.Fields() }

type orderBlock struct {
	top, bottom float64
	bullish     bool
	state       int
	testedPct   float64
	index       int // bar index of the order-block candle
}

// detectOBs scans the window ending at i for bullish/bearish order
// blocks: a down-close candle immediately followed (2 or 3 bars
// later) by a break of its high (bullish OB) or an up-close candle
// followed by a break of its low (bearish OB).
func detectOBs(bars []market.Bar, i int) []orderBlock {
	var obs []orderBlock
	lookback := 80
	start := i - lookback
	if start < 0 {
		start = 0
	}
	for k := start; k <= i-2; k++ {
		candidate := bars[k]
		for _, offset := range []int{2, 3} {
			j := k + offset
			if j > i {
				continue
			}
			if candidate.Close < candidate.Open && bars[j].Close > candidate.High {
				obs = append(obs, orderBlock{top: candidate.High, bottom: candidate.Low, bullish: true, state: StateActive, index: k})
			}
			if candidate.Close > candidate.Open && bars[j].Close < candidate.Low {
				obs = append(obs, orderBlock{top: candidate.High, bottom: candidate.Low, bullish: false, state: StateActive, index: k})
			}
		}
	}
	// Lifecycle: mark tested/breaker/reversed using bars after the
	// order block formed, up to and including bar i.
	for idx := range obs {
		ob := &obs[idx]
		for k := ob.index + 1; k <= i; k++ {
			mid := (ob.top + ob.bottom) / 2
			if ob.bullish {
				if bars[k].Low <= ob.top && bars[k].Low > ob.bottom {
					ob.state = StateTested
					ob.testedPct = (ob.top - bars[k].Low) / (ob.top - ob.bottom)
				}
				if bars[k].Close < ob.bottom {
					ob.state = StateBreaker
				}
				if ob.state == StateBreaker && bars[k].Close > mid {
					ob.state = StateReversed
				}
			} else {
				if bars[k].High >= ob.bottom && bars[k].High < ob.top {
					ob.state = StateTested
					ob.testedPct = (bars[k].High - ob.bottom) / (ob.top - ob.bottom)
				}
				if bars[k].Close > ob.top {
					ob.state = StateBreaker
				}
				if ob.state == StateBreaker && bars[k].Close < mid {
					ob.state = StateReversed
				}
			}
		}
	}
	return obs
}

type fvg struct {
	top, bottom float64
	filledPct   float64
}

// detectFVGs finds three-bar fair value gaps: bar k-1's high below
// bar k+1's low (bullish gap) or bar k-1's low above bar k+1's high
// (bearish gap), and tracks how much of the gap price has since
// filled.
func detectFVGs(bars []market.Bar, i int) []fvg {
	var gaps []fvg
	lookback := 80
	start := i - lookback
	if start < 1 {
		start = 1
	}
	for k := start; k <= i-1; k++ {
		if bars[k-1].High < bars[k+1].Low {
			top, bottom := bars[k+1].Low, bars[k-1].High
			gaps = append(gaps, fvg{top: top, bottom: bottom, filledPct: fillPct(bars, k+1, i, top, bottom, true)})
		}
		if bars[k-1].Low > bars[k+1].High {
			top, bottom := bars[k-1].Low, bars[k+1].High
			gaps = append(gaps, fvg{top: top, bottom: bottom, filledPct: fillPct(bars, k+1, i, top, bottom, false)})
		}
	}
	return gaps
}

func fillPct(bars []market.Bar, from, to int, top, bottom float64, bullish bool) float64 {
	if top <= bottom {
		return 0
	}
	var filled float64
	if bullish {
		// price sits above a bullish gap and fills it from the top down
		deepest := top
		for k := from; k <= to; k++ {
			if bars[k].Low < deepest {
				deepest = bars[k].Low
			}
		}
		filled = (top - deepest) / (top - bottom)
	} else {
		// price sits below a bearish gap and fills it from the bottom up
		highest := bottom
		for k := from; k <= to; k++ {
			if bars[k].High > highest {
				highest = bars[k].High
			}
		}
		filled = (highest - bottom) / (top - bottom)
	}
	if filled < 0 {
		filled = 0
	}
	if filled > 1 {
		filled = 1
	}
	return filled
}

// StructureAt computes the nearest active order blocks and FVG
// relative to the current close, matching spec.md §4.2's "emit the
// nearest OB and FVG levels relative to current price."
func StructureAt(bars []market.Bar, i int, params map[string]float64) map[string]float64 {
	if i < 5 {
		return Empty()
	}
	fillThreshold := params["fvg_fill_pct"]
	if fillThreshold <= 0 {
		fillThreshold = 0.5
	}
	price := bars[i].Close

	var out Output
	bestBullDist, bestBearDist, bestFVGDist := -1.0, -1.0, -1.0

	for _, ob := range detectOBs(bars, i) {
		if ob.state == StateReversed {
			continue
		}
		dist := absf(price - (ob.top+ob.bottom)/2)
		if ob.bullish {
			if bestBullDist < 0 || dist < bestBullDist {
				bestBullDist = dist
				out.NearestBullOBTop, out.NearestBullOBBottom = ob.top, ob.bottom
				out.NearestBullOBState = float64(ob.state)
			}
		} else {
			if bestBearDist < 0 || dist < bestBearDist {
				bestBearDist = dist
				out.NearestBearOBTop, out.NearestBearOBBottom = ob.top, ob.bottom
				out.NearestBearOBState = float64(ob.state)
			}
		}
	}
	for _, g := range detectFVGs(bars, i) {
		if g.filledPct >= fillThreshold {
			continue
		}
		dist := absf(price - (g.top+g.bottom)/2)
		if bestFVGDist < 0 || dist < bestFVGDist {
			bestFVGDist = dist
			out.NearestFVGTop, out.NearestFVGBottom, out.NearestFVGFilledPct = g.top, g.bottom, g.filledPct
		}
	}
	return out.Fields()
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
