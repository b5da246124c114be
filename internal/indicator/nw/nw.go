// Package nw implements the Nadaraya-Watson envelope and
// rational-quadratic kernel regression indicator.
package nw

import (
	"math"

	"github.com/ridopark/decisioncore/internal/market"
)

type EnvelopeOutput struct {
	Estimate float64
	UpperNear, LowerNear float64
	UpperAvg, LowerAvg   float64
	UpperFar, LowerFar   float64
}

func (o EnvelopeOutput) Fields() map[string]float64 {
	return map[string]float64{
		"estimate": o.Estimate,
		"upper_near": o.UpperNear, "lower_near": o.LowerNear,
		"upper_avg": o.UpperAvg, "lower_avg": o.LowerAvg,
		"upper_far": o.UpperFar, "lower_far": o.LowerFar,
	}
}

func EmptyEnvelope() map[string]float64 { return EnvelopeOutput{}.Fields() }

// rationalQuadraticKernel weights observation distance d under
// bandwidth h and relative-weighting r, per the Nadaraya-Watson
// kernel regression used by the PineScript reference.
func rationalQuadraticKernel(d, h, r float64) float64 {
	return math.Pow(1+(d*d)/(2*r*h*h), -r)
}

// EnvelopeAt computes the kernel regression estimate at bar i and its
// upper/lower bands at near/avg/far multiples of a plain 14-bar average
// true range; the true range is not kernel-smoothed.
func EnvelopeAt(bars []market.Bar, i int, params map[string]float64) map[string]float64 {
	h := params["bandwidth"]
	if h <= 0 {
		h = 8
	}
	r := params["relative_weighting"]
	if r <= 0 {
		r = 8
	}
	lookback := int(params["lookback"])
	if lookback <= 0 {
		lookback = 25
	}
	nearMult := paramOr(params, "near_mult", 1.0)
	avgMult := paramOr(params, "avg_mult", 2.0)
	farMult := paramOr(params, "far_mult", 3.0)

	start := i - lookback + 1
	if start < 0 {
		start = 0
	}
	var num, den float64
	for k := start; k <= i; k++ {
		w := rationalQuadraticKernel(float64(i-k), h, r)
		num += w * bars[k].Close
		den += w
	}
	if den == 0 {
		return EmptyEnvelope()
	}
	estimate := num / den

	atrPeriod := 14
	atrVal := atr(bars, i, atrPeriod)

	return EnvelopeOutput{
		Estimate:  estimate,
		UpperNear: estimate + nearMult*atrVal, LowerNear: estimate - nearMult*atrVal,
		UpperAvg: estimate + avgMult*atrVal, LowerAvg: estimate - avgMult*atrVal,
		UpperFar: estimate + farMult*atrVal, LowerFar: estimate - farMult*atrVal,
	}.Fields()
}

type KernelOutput struct {
	Value float64
	Slope float64
}

func (o KernelOutput) Fields() map[string]float64 {
	return map[string]float64{"value": o.Value, "slope": o.Slope}
}

func EmptyKernel() map[string]float64 { return KernelOutput{}.Fields() }

// KernelAt returns the raw kernel-regression estimate and its
// first-difference slope (rate of change bar-over-bar), used as a
// standalone smoothed-trend indicator distinct from the envelope.
func KernelAt(bars []market.Bar, i int, params map[string]float64) map[string]float64 {
	cur := EnvelopeAt(bars, i, params)
	if i == 0 {
		return KernelOutput{Value: cur["estimate"]}.Fields()
	}
	prev := EnvelopeAt(bars, i-1, params)
	return KernelOutput{Value: cur["estimate"], Slope: cur["estimate"] - prev["estimate"]}.Fields()
}

func paramOr(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok && v != 0 {
		return v
	}
	return def
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
