package indicator

import (
	"math"

	"github.com/ridopark/decisioncore/internal/market"
)

// registerStandard wires up RSI/EMA/SMA/MACD/Stochastic/Bollinger/
// ATR/ADX/CCI/WilliamsR, matching the field names and sentinel values
// enumerated in spec.md's glossary and grounded on
// original_source/agent/backtest/indicators.py.
func registerStandard(e *Engine) {
	e.Register("SMA", smaCompute, func() Result { return Result{"value": 0} })
	e.Register("EMA", emaCompute, func() Result { return Result{"value": 0} })
	e.Register("RSI", rsiCompute, func() Result { return Result{"value": 50} })
	e.Register("MACD", macdCompute, func() Result { return Result{"macd": 0, "signal": 0, "histogram": 0} })
	e.Register("Stochastic", stochCompute, func() Result { return Result{"k": 50, "d": 50} })
	e.Register("Bollinger", bollingerCompute, func() Result { return Result{"upper": 0, "middle": 0, "lower": 0} })
	e.Register("ATR", atrCompute, func() Result { return Result{"value": 0} })
	e.Register("ADX", adxCompute, func() Result { return Result{"adx": 0, "plus_di": 0, "minus_di": 0} })
	e.Register("CCI", cciCompute, func() Result { return Result{"value": 0} })
	e.Register("WilliamsR", williamsRCompute, func() Result { return Result{"value": -50} })
}

func closes(bars []market.Bar, i int) []float64 {
	out := make([]float64, i+1)
	for k := 0; k <= i; k++ {
		out[k] = bars[k].Close
	}
	return out
}

func intParam(params Params, key string, def int) int {
	if v, ok := params[key]; ok && v > 0 {
		return int(v)
	}
	return def
}

func floatParam(params Params, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

// smaSeries returns the simple moving average ending at each index of
// vals, NaN until period values are available.
func smaSeries(vals []float64, period int) []float64 {
	out := make([]float64, len(vals))
	sum := 0.0
	for i, v := range vals {
		sum += v
		if i >= period {
			sum -= vals[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// emaSeries returns the exponential moving average, seeded with the
// SMA of the first `period` values (the conventional pandas_ta seed).
func emaSeries(vals []float64, period int) []float64 {
	out := make([]float64, len(vals))
	if len(vals) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	seedSum := 0.0
	for i, v := range vals {
		if i < period {
			seedSum += v
			out[i] = math.NaN()
			if i == period-1 {
				out[i] = seedSum / float64(period)
			}
			continue
		}
		out[i] = alpha*v + (1-alpha)*out[i-1]
	}
	if len(vals) < period {
		// not enough data for a seeded EMA: fall back to a plain
		// recursive EMA seeded with the first value.
		out[0] = vals[0]
		for i := 1; i < len(vals); i++ {
			out[i] = alpha*vals[i] + (1-alpha)*out[i-1]
		}
	}
	return out
}

func smaCompute(bars []market.Bar, i int, params Params) Result {
	period := intParam(params, "period", 20)
	c := closes(bars, i)
	s := smaSeries(c, period)
	v := s[len(s)-1]
	if math.IsNaN(v) {
		return Result{"value": bars[i].Close}
	}
	return Result{"value": v}
}

func emaCompute(bars []market.Bar, i int, params Params) Result {
	period := intParam(params, "period", 20)
	c := closes(bars, i)
	s := emaSeries(c, period)
	v := s[len(s)-1]
	if math.IsNaN(v) {
		return Result{"value": bars[i].Close}
	}
	return Result{"value": v}
}

// rsiCompute implements Wilder's RSI.
func rsiCompute(bars []market.Bar, i int, params Params) Result {
	period := intParam(params, "period", 14)
	c := closes(bars, i)
	if len(c) < period+1 {
		return Result{"value": 50}
	}
	var gainSum, lossSum float64
	for k := 1; k <= period; k++ {
		d := c[k] - c[k-1]
		if d > 0 {
			gainSum += d
		} else {
			lossSum += -d
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	for k := period + 1; k < len(c); k++ {
		d := c[k] - c[k-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	if avgLoss == 0 {
		return Result{"value": 100}
	}
	rs := avgGain / avgLoss
	return Result{"value": 100 - 100/(1+rs)}
}

// macdCompute returns macd/signal/histogram. The point-in-time and
// full-series paths always include histogram (the Python original's
// point-in-time path omits it; this port adds it in both modes so
// the two agree pointwise, per spec.md §4.2's "both modes must agree
// pointwise" invariant).
func macdCompute(bars []market.Bar, i int, params Params) Result {
	fast := intParam(params, "fast_ema", 12)
	slow := intParam(params, "slow_ema", 26)
	sig := intParam(params, "signal", 9)
	c := closes(bars, i)
	fastEMA := emaSeries(c, fast)
	slowEMA := emaSeries(c, slow)
	macdLine := make([]float64, len(c))
	for k := range c {
		macdLine[k] = fastEMA[k] - slowEMA[k]
	}
	signalLine := emaSeries(macdLine, sig)
	m := macdLine[len(macdLine)-1]
	s := signalLine[len(signalLine)-1]
	if math.IsNaN(m) {
		m = 0
	}
	if math.IsNaN(s) {
		s = 0
	}
	return Result{"macd": m, "signal": s, "histogram": m - s}
}

func stochCompute(bars []market.Bar, i int, params Params) Result {
	kPeriod := intParam(params, "k_period", 5)
	dPeriod := intParam(params, "d_period", 3)
	smoothing := intParam(params, "slowing", 3)

	rawK := func(idx int) float64 {
		start := idx - kPeriod + 1
		if start < 0 {
			start = 0
		}
		hi, lo := bars[start].High, bars[start].Low
		for k := start; k <= idx; k++ {
			if bars[k].High > hi {
				hi = bars[k].High
			}
			if bars[k].Low < lo {
				lo = bars[k].Low
			}
		}
		if hi == lo {
			return 50
		}
		return 100 * (bars[idx].Close - lo) / (hi - lo)
	}

	window := smoothing
	if window < 1 {
		window = 1
	}
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	sum := 0.0
	count := 0
	ks := make([]float64, 0, i+1)
	for k := 0; k <= i; k++ {
		ks = append(ks, rawK(k))
	}
	for k := start; k <= i; k++ {
		sum += ks[k]
		count++
	}
	kVal := sum / float64(count)

	dStart := i - dPeriod + 1
	if dStart < 0 {
		dStart = 0
	}
	// smoothed %K series for %D averaging
	smoothedK := make([]float64, i+1)
	for idx := 0; idx <= i; idx++ {
		s2 := idx - window + 1
		if s2 < 0 {
			s2 = 0
		}
		sum2, count2 := 0.0, 0
		for k := s2; k <= idx; k++ {
			sum2 += ks[k]
			count2++
		}
		smoothedK[idx] = sum2 / float64(count2)
	}
	dSum, dCount := 0.0, 0
	for k := dStart; k <= i; k++ {
		dSum += smoothedK[k]
		dCount++
	}
	dVal := dSum / float64(dCount)

	return Result{"k": kVal, "d": dVal}
}

func bollingerCompute(bars []market.Bar, i int, params Params) Result {
	period := intParam(params, "period", 20)
	dev := floatParam(params, "deviation", 2.0)
	c := closes(bars, i)
	if len(c) < period {
		p := bars[i].Close
		return Result{"upper": p, "middle": p, "lower": p}
	}
	window := c[len(c)-period:]
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(period)
	variance := 0.0
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(period)
	std := math.Sqrt(variance)
	return Result{"upper": mean + dev*std, "middle": mean, "lower": mean - dev*std}
}

func trueRange(bars []market.Bar, idx int) float64 {
	if idx == 0 {
		return bars[0].High - bars[0].Low
	}
	h, l, pc := bars[idx].High, bars[idx].Low, bars[idx-1].Close
	return math.Max(h-l, math.Max(math.Abs(h-pc), math.Abs(l-pc)))
}

func atrCompute(bars []market.Bar, i int, params Params) Result {
	period := intParam(params, "period", 14)
	if i+1 < period {
		return Result{"value": 0}
	}
	sum := 0.0
	for k := 0; k <= period-1; k++ {
		sum += trueRange(bars, i-period+1+k)
	}
	atr := sum / float64(period)
	// Wilder smoothing across the remaining history, if any.
	start := period
	for k := start; k <= i; k++ {
		tr := trueRange(bars, k)
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return Result{"value": atr}
}

func adxCompute(bars []market.Bar, i int, params Params) Result {
	period := intParam(params, "period", 14)
	if i+1 < period+1 {
		return Result{"adx": 0, "plus_di": 0, "minus_di": 0}
	}
	var plusDM, minusDM, tr []float64
	for k := 1; k <= i; k++ {
		upMove := bars[k].High - bars[k-1].High
		downMove := bars[k-1].Low - bars[k].Low
		pdm, mdm := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			pdm = upMove
		}
		if downMove > upMove && downMove > 0 {
			mdm = downMove
		}
		plusDM = append(plusDM, pdm)
		minusDM = append(minusDM, mdm)
		tr = append(tr, trueRange(bars, k))
	}
	if len(tr) < period {
		return Result{"adx": 0, "plus_di": 0, "minus_di": 0}
	}
	sumTR, sumPDM, sumMDM := 0.0, 0.0, 0.0
	for k := 0; k < period; k++ {
		sumTR += tr[k]
		sumPDM += plusDM[k]
		sumMDM += minusDM[k]
	}
	var dxs []float64
	plusDI := 100 * sumPDM / sumTR
	minusDI := 100 * sumMDM / sumTR
	dxs = append(dxs, dxVal(plusDI, minusDI))
	for k := period; k < len(tr); k++ {
		sumTR = sumTR - sumTR/float64(period) + tr[k]
		sumPDM = sumPDM - sumPDM/float64(period) + plusDM[k]
		sumMDM = sumMDM - sumMDM/float64(period) + minusDM[k]
		plusDI = 100 * sumPDM / sumTR
		minusDI = 100 * sumMDM / sumTR
		dxs = append(dxs, dxVal(plusDI, minusDI))
	}
	adx := 0.0
	n := len(dxs)
	start := n - period
	if start < 0 {
		start = 0
	}
	count := 0
	for k := start; k < n; k++ {
		adx += dxs[k]
		count++
	}
	if count > 0 {
		adx /= float64(count)
	}
	return Result{"adx": adx, "plus_di": plusDI, "minus_di": minusDI}
}

func dxVal(plusDI, minusDI float64) float64 {
	if plusDI+minusDI == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
}

func cciCompute(bars []market.Bar, i int, params Params) Result {
	period := intParam(params, "period", 14)
	if i+1 < period {
		return Result{"value": 0}
	}
	typicals := make([]float64, period)
	for k := 0; k < period; k++ {
		b := bars[i-period+1+k]
		typicals[k] = (b.High + b.Low + b.Close) / 3
	}
	mean := 0.0
	for _, v := range typicals {
		mean += v
	}
	mean /= float64(period)
	meanDev := 0.0
	for _, v := range typicals {
		meanDev += math.Abs(v - mean)
	}
	meanDev /= float64(period)
	if meanDev == 0 {
		return Result{"value": 0}
	}
	current := (bars[i].High + bars[i].Low + bars[i].Close) / 3
	return Result{"value": (current - mean) / (0.015 * meanDev)}
}

func williamsRCompute(bars []market.Bar, i int, params Params) Result {
	period := intParam(params, "period", 14)
	start := i - period + 1
	if start < 0 {
		start = 0
	}
	hi, lo := bars[start].High, bars[start].Low
	for k := start; k <= i; k++ {
		if bars[k].High > hi {
			hi = bars[k].High
		}
		if bars[k].Low < lo {
			lo = bars[k].Low
		}
	}
	if hi == lo {
		return Result{"value": -50}
	}
	return Result{"value": -100 * (hi - bars[i].Close) / (hi - lo)}
}
