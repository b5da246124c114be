// Package tpo implements a rolling TPO (time-price-opportunity) /
// market-profile indicator computing point of control (POC), value
// area high (VAH), and value area low (VAL) over a configurable
// lookback window.
package tpo

import "github.com/ridopark/decisioncore/internal/market"

type Output struct {
	POC float64
	VAH float64
	VAL float64
}

func (o Output) Fields() map[string]float64 {
	return map[string]float64{"poc": o.POC, "vah": o.VAH, "val": o.VAL}
}

func Empty() map[string]float64 { return Output{}.Fields() }

// At buckets the high/low range of every bar in the lookback window
// into price ticks, accumulates touch-time-in-price per tick,
// reports the tick with the most touches as POC, then grows the
// value area outward from POC until it holds valueAreaPct of total
// touches (70% by convention, matching standard market-profile use).
func At(bars []market.Bar, i int, params map[string]float64) map[string]float64 {
	lookback := int(params["lookback"])
	if lookback <= 0 {
		lookback = 50
	}
	tickSize := params["tick_size"]
	valueAreaPct := params["value_area_pct"]
	if valueAreaPct <= 0 {
		valueAreaPct = 0.7
	}

	start := i - lookback + 1
	if start < 0 {
		start = 0
	}
	if i-start < 5 {
		return Empty()
	}

	lo, hi := bars[start].Low, bars[start].High
	for k := start; k <= i; k++ {
		if bars[k].Low < lo {
			lo = bars[k].Low
		}
		if bars[k].High > hi {
			hi = bars[k].High
		}
	}
	if hi <= lo {
		return Empty()
	}
	if tickSize <= 0 {
		tickSize = (hi - lo) / 50
		if tickSize <= 0 {
			return Empty()
		}
	}

	nBuckets := int((hi-lo)/tickSize) + 1
	if nBuckets < 1 {
		nBuckets = 1
	}
	counts := make([]int, nBuckets)
	total := 0
	for k := start; k <= i; k++ {
		b0 := int((bars[k].Low - lo) / tickSize)
		b1 := int((bars[k].High - lo) / tickSize)
		if b1 >= nBuckets {
			b1 = nBuckets - 1
		}
		for b := b0; b <= b1; b++ {
			counts[b]++
			total++
		}
	}
	if total == 0 {
		return Empty()
	}

	pocIdx := 0
	for b := 1; b < nBuckets; b++ {
		if counts[b] > counts[pocIdx] {
			pocIdx = b
		}
	}

	target := int(float64(total) * valueAreaPct)
	covered := counts[pocIdx]
	loIdx, hiIdx := pocIdx, pocIdx
	for covered < target && (loIdx > 0 || hiIdx < nBuckets-1) {
		belowCount, aboveCount := -1, -1
		if loIdx > 0 {
			belowCount = counts[loIdx-1]
		}
		if hiIdx < nBuckets-1 {
			aboveCount = counts[hiIdx+1]
		}
		if aboveCount >= belowCount {
			hiIdx++
			covered += aboveCount
		} else {
			loIdx--
			covered += belowCount
		}
	}

	poc := lo + (float64(pocIdx)+0.5)*tickSize
	vah := lo + (float64(hiIdx)+1)*tickSize
	val := lo + float64(loIdx)*tickSize

	return Output{POC: poc, VAH: vah, VAL: val}.Fields()
}
