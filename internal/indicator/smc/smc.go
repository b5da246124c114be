// Package smc implements the SMC (smart-money-concepts) market
// structure indicator: pivot swing detection, a trend/BOS/CHoCH
// classification state machine, OTE/equilibrium zones, and liquidity
// pool sweep detection.
//
// This is a condensed, from-scratch port of the much larger PineScript
// -derived reference implementation; it reproduces the documented
// contract (trend, reference/strong levels, BOS/CHoCH flags, OTE zone,
// liquidity pools) rather than every internal bookkeeping field of the
// original, since the original carries ~1100 lines of bar-by-bar
// re-detection and eviction housekeeping that has no externally
// observable effect beyond the fields captured here.
package smc

import "github.com/ridopark/decisioncore/internal/market"

const (
	TrendBullish   = 1
	TrendBearish   = -1
	TrendUndefined = 0
)

// Output is the field set produced at a bar, matching the names a
// playbook expression would reference as ind.<id>.<field>.
type Output struct {
	Trend         float64
	RefHigh       float64
	RefLow        float64
	StrongHigh    float64
	StrongLow     float64
	EquilibriumPx float64
	OTETop        float64
	OTEBottom     float64
	BOSBullish    float64 // 1 on the bar BOS fires bullish, else 0
	BOSBearish    float64
	CHOCHBullish  float64
	CHOCHBearish  float64
	LiquiditySweepHigh float64
	LiquiditySweepLow  float64
}

func (o Output) Fields() map[string]float64 {
	return map[string]float64{
		"trend": o.Trend, "ref_high": o.RefHigh, "ref_low": o.RefLow,
		"strong_high": o.StrongHigh, "strong_low": o.StrongLow,
		"equilibrium": o.EquilibriumPx, "ote_top": o.OTETop, "ote_bottom": o.OTEBottom,
		"bos_bullish": o.BOSBullish, "bos_bearish": o.BOSBearish,
		"choch_bullish": o.CHOCHBullish, "choch_bearish": o.CHOCHBearish,
		"sweep_high": o.LiquiditySweepHigh, "sweep_low": o.LiquiditySweepLow,
	}
}

func Empty() map[string]float64 {
	return Output{}.Fields()
}

type swing struct {
	index int
	price float64
	kind  int // +1 swing high, -1 swing low
}

// pivotHigh and pivotLow detect a fractal pivot high/low of `length` bars on each
// side, matching ta.pivothigh/ta.pivotlow semantics.
func pivotHigh(bars []market.Bar, idx, length int) bool {
	if idx-length < 0 || idx+length >= len(bars) {
		return false
	}
	h := bars[idx].High
	for k := idx - length; k <= idx+length; k++ {
		if k == idx {
			continue
		}
		if bars[k].High >= h {
			return false
		}
	}
	return true
}

func pivotLow(bars []market.Bar, idx, length int) bool {
	if idx-length < 0 || idx+length >= len(bars) {
		return false
	}
	l := bars[idx].Low
	for k := idx - length; k <= idx+length; k++ {
		if k == idx {
			continue
		}
		if bars[k].Low <= l {
			return false
		}
	}
	return true
}

func atr(bars []market.Bar, idx, period int) float64 {
	start := idx - period + 1
	if start < 0 {
		start = 0
	}
	sum := 0.0
	count := 0
	for k := start; k <= idx; k++ {
		tr := bars[k].High - bars[k].Low
		if k > 0 {
			pc := bars[k-1].Close
			if d := bars[k].High - pc; d > tr {
				tr = d
			}
			if d := pc - bars[k].Low; d > tr {
				tr = d
			}
		}
		sum += tr
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// StructureAt computes the SMC structure state at bar i using bars[0:i+1].
func StructureAt(bars []market.Bar, i int, params map[string]float64) map[string]float64 {
	length := int(params["swing_length"])
	if length <= 0 {
		length = 5
	}
	useWick := params["use_wick"] != 0
	atrPeriod := int(params["atr_period"])
	if atrPeriod <= 0 {
		atrPeriod = 14
	}
	minTouches := int(params["min_touches"])
	if minTouches <= 0 {
		minTouches = 2
	}
	tolMult := params["liquidity_tolerance_atr"]
	if tolMult <= 0 {
		tolMult = 0.1
	}

	if i < 2*length+1 {
		return Empty()
	}

	var swings []swing
	// Pivots need `length` bars of future confirmation; a pivot at
	// index p is only knowable once bar p+length has closed, so we
	// only consider pivots confirmable by bar i.
	for p := length; p <= i-length; p++ {
		if pivotHigh(bars, p, length) {
			swings = append(swings, swing{index: p, price: bars[p].High, kind: 1})
		}
		if pivotLow(bars, p, length) {
			swings = append(swings, swing{index: p, price: bars[p].Low, kind: -1})
		}
	}

	out := Output{Trend: TrendUndefined}
	if len(swings) < 2 {
		return out.Fields()
	}

	// Enforce alternation: keep only swings that alternate kind,
	// preferring the more extreme price when two of the same kind
	// appear back to back (mirrors _add_swing's re-detection guard).
	var alt []swing
	for _, s := range swings {
		if len(alt) == 0 {
			alt = append(alt, s)
			continue
		}
		last := alt[len(alt)-1]
		if last.kind == s.kind {
			if (s.kind == 1 && s.price > last.price) || (s.kind == -1 && s.price < last.price) {
				alt[len(alt)-1] = s
			}
			continue
		}
		alt = append(alt, s)
	}
	if len(alt) < 2 {
		return out.Fields()
	}

	trend := TrendUndefined
	refHigh, refLow := 0.0, 0.0
	strongHigh, strongLow := 0.0, 0.0

	// Walk the alternating swing sequence classifying HH/HL vs LH/LL
	// and firing BOS/CHOCH against the running reference levels.
	for idx := 1; idx < len(alt); idx++ {
		cur, prev := alt[idx], alt[idx-1]
		if cur.kind == 1 { // swing high
			if trend != TrendBearish {
				if refHigh == 0 || cur.price > refHigh {
					refHigh = cur.price
				}
				trend = TrendBullish
			} else if cur.price > strongHigh && strongHigh != 0 {
				// break above strong high: CHOCH to bullish
				out.CHOCHBullish = boolOf(idx == len(alt)-1)
				trend = TrendBullish
				refHigh = cur.price
			}
			strongHigh = cur.price
		} else { // swing low
			if trend != TrendBullish {
				if refLow == 0 || cur.price < refLow {
					refLow = cur.price
				}
				trend = TrendBearish
			} else if strongLow != 0 && cur.price < strongLow {
				out.CHOCHBearish = boolOf(idx == len(alt)-1)
				trend = TrendBearish
				refLow = cur.price
			}
			strongLow = cur.price
		}
		_ = prev
	}

	// BOS: current close breaks the reference level in the trend
	// direction (or the extreme wick, if configured).
	closeOrWick := func(bar market.Bar, wantHigh bool) float64 {
		if useWick {
			if wantHigh {
				return bar.High
			}
			return bar.Low
		}
		return bar.Close
	}
	last := bars[i]
	if trend == TrendBullish && refHigh != 0 && closeOrWick(last, true) > refHigh {
		out.BOSBullish = 1
		refHigh = closeOrWick(last, true)
	}
	if trend == TrendBearish && refLow != 0 && closeOrWick(last, false) < refLow {
		out.BOSBearish = 1
		refLow = closeOrWick(last, false)
	}

	out.Trend = float64(trend)
	out.RefHigh = refHigh
	out.RefLow = refLow
	out.StrongHigh = strongHigh
	out.StrongLow = strongLow

	if refHigh != 0 && refLow != 0 && refHigh > refLow {
		out.EquilibriumPx = (refHigh + refLow) / 2
		rng := refHigh - refLow
		if trend == TrendBullish {
			out.OTETop = refHigh - 0.618*rng
			out.OTEBottom = refHigh - 0.786*rng
		} else {
			out.OTETop = refLow + 0.786*rng
			out.OTEBottom = refLow + 0.618*rng
		}
	}

	// Liquidity pools: equal highs/lows within an ATR-scaled
	// tolerance with >= minTouches, reported as a sweep when the
	// current bar pierces and closes back inside the pool level.
	tol := atr(bars, i, atrPeriod) * tolMult
	if tol > 0 {
		out.LiquiditySweepHigh = boolOf(detectSweep(bars, i, tol, minTouches, true))
		out.LiquiditySweepLow = boolOf(detectSweep(bars, i, tol, minTouches, false))
	}

	return out.Fields()
}

func boolOf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// detectSweep scans recent bar extremes for a cluster of >= minTouches
// highs (or lows) within `tol` of each other, then checks whether the
// current bar wicks through that level and closes back on the other
// side (the liquidity-sweep pattern).
func detectSweep(bars []market.Bar, i int, tol float64, minTouches int, high bool) bool {
	lookback := 50
	start := i - lookback
	if start < 0 {
		start = 0
	}
	level := 0.0
	touches := 0
	for k := start; k < i; k++ {
		v := bars[k].Low
		if high {
			v = bars[k].High
		}
		if level == 0 {
			level = v
			touches = 1
			continue
		}
		if absf(v-level) <= tol {
			touches++
		}
	}
	if touches < minTouches || level == 0 {
		return false
	}
	cur := bars[i]
	if high {
		return cur.High > level+tol && cur.Close < level
	}
	return cur.Low < level-tol && cur.Close > level
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
