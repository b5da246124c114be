package indicator

import (
	"math"

	"github.com/ridopark/decisioncore/internal/market"
)

func init() {
	RegisterPlugin(Custom{
		Name:     "KeltnerChannel",
		Keywords: []string{"keltner", "keltner channel", "kc", "kelt", "keltner bands", "keltner envelope"},
		Compute:  keltnerChannelCompute,
		Empty:    func() Result { return Result{"upper": 0, "middle": 0, "lower": 0, "width": 0} },
	})
}

// keltnerChannelCompute ports
// original_source/agent/indicators/custom/KeltnerChannel/compute.py:
// an EMA middle line with upper/lower bands offset by atr_factor*ATR,
// width expressed as a percentage of the middle line. The Python
// version reads index -2 to compensate for MT5's PLOT_SHIFT=1
// live-buffer convention; ComputeAt already computes strictly from
// bars[0:i+1] (the last closed bar), so no extra shift applies here.
func keltnerChannelCompute(bars []market.Bar, i int, params Params) Result {
	emaPeriod := intParam(params, "ema_period", 20)
	if emaPeriod < 10 {
		emaPeriod = 10
	}
	atrPeriod := intParam(params, "atr_period", 10)
	if atrPeriod < 3 {
		atrPeriod = 3
	}
	atrFactor := floatParam(params, "atr_factor", 2.0)
	if atrFactor < 1.0 {
		atrFactor = 1.0
	}

	need := emaPeriod
	if atrPeriod > need {
		need = atrPeriod
	}
	empty := Result{"upper": 0, "middle": 0, "lower": 0, "width": 0}
	if i+1 < need+2 {
		return empty
	}

	mid := emaSeries(closes(bars, i), emaPeriod)[i]
	if math.IsNaN(mid) {
		return empty
	}
	atr := atrCompute(bars, i, Params{"period": float64(atrPeriod)})["value"]

	upper := mid + atrFactor*atr
	lower := mid - atrFactor*atr
	width := 0.0
	if mid != 0 {
		width = (upper - lower) / mid * 100.0
	}
	return Result{
		"upper":  round6(upper),
		"middle": round6(mid),
		"lower":  round6(lower),
		"width":  round4(width),
	}
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
