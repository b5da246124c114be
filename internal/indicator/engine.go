// Package indicator implements the dual-mode (point-in-time / full
// series) technical indicator engine described in spec.md §4.2.
package indicator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ridopark/decisioncore/internal/market"
)

// Params is a frozen indicator parameter set, e.g. {"period": 14}.
type Params map[string]float64

// key returns a stable cache key component for a Params map.
func (p Params) key() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%g;", k, p[k])
	}
	return b.String()
}

// Result is one bar's output fields for an indicator, e.g.
// {"macd": 0.0012, "signal": 0.0009, "histogram": 0.0003}.
type Result map[string]float64

// ComputeFunc computes an indicator's point-in-time output at bar
// index i using only bars[0:i+1].
type ComputeFunc func(bars []market.Bar, i int, params Params) Result

// EmptyFunc returns the empty/NaN-sentinel shape for an indicator,
// used before enough bars exist to compute it.
type EmptyFunc func() Result

// Custom is a pluggable indicator module (§4.2 "Custom indicators").
type Custom struct {
	Name    string
	Compute ComputeFunc
	Empty   EmptyFunc
	Keywords []string
}

type registration struct {
	compute ComputeFunc
	empty   EmptyFunc
}

// Engine computes indicators over a fixed bar array, point-in-time or
// as a full series, with point-in-time memoization.
type Engine struct {
	bars     []market.Bar
	registry map[string]registration
	cache    map[string]Result
}

// NewEngine builds an engine over bars with the standard indicator
// set, the market-structure indicators, and every custom indicator
// module registered via RegisterPlugin (plugins.go) pre-registered —
// this is the startup auto-discovery §4.2 describes: every Engine,
// wherever it's constructed (here or via NewMultiTF), picks up every
// plugin an init() func registered before main() ran.
func NewEngine(bars []market.Bar) *Engine {
	e := &Engine{
		bars:     bars,
		registry: make(map[string]registration),
		cache:    make(map[string]Result),
	}
	registerStandard(e)
	registerMarketStructure(e)
	for _, c := range Plugins() {
		e.RegisterCustom(c)
	}
	return e
}

// Register adds or replaces an indicator. Standard and market
// structure indicators call this at construction time; custom
// indicator modules discovered at startup (§4.2) call it too.
func (e *Engine) Register(name string, compute ComputeFunc, empty EmptyFunc) {
	e.registry[name] = registration{compute: compute, empty: empty}
}

// RegisterCustom adopts a Custom module discovered by the plugin
// loader (plugins.go).
func (e *Engine) RegisterCustom(c Custom) {
	e.Register(c.Name, c.Compute, c.Empty)
}

func cacheKey(barIndex int, name string, params Params) string {
	return fmt.Sprintf("%d|%s|%s", barIndex, name, params.key())
}

// ComputeAt returns the point-in-time output at bar index i, using
// only bars[0:i+1], with memoization by (i, name, params) per §4.2
// Caching.
func (e *Engine) ComputeAt(i int, name string, params Params) (Result, error) {
	reg, ok := e.registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown indicator %q", name)
	}
	if i < 0 || i >= len(e.bars) {
		return reg.empty(), nil
	}
	key := cacheKey(i, name, params)
	if r, ok := e.cache[key]; ok {
		return r, nil
	}
	if i < 1 {
		r := reg.empty()
		e.cache[key] = r
		return r, nil
	}
	r := safeCompute(reg.compute, e.bars, i, params, reg.empty)
	e.cache[key] = r
	return r, nil
}

// safeCompute guards every indicator function against panics (e.g. a
// custom module indexing past its own assumptions) so a single bad
// indicator cannot take down the whole evaluation loop, matching
// §4.2's empty-shape-on-failure contract.
func safeCompute(fn ComputeFunc, bars []market.Bar, i int, params Params, empty EmptyFunc) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = empty()
		}
	}()
	return fn(bars, i, params)
}

// ComputeSeries returns, for every output field, an array of length
// len(bars) where entry k depends only on bars[0:k+1]. Every entry is
// produced by iterating ComputeAt; there is no separate vectorized
// full-series path.
func (e *Engine) ComputeSeries(name string, params Params) (map[string][]*float64, error) {
	if _, ok := e.registry[name]; !ok {
		return nil, fmt.Errorf("unknown indicator %q", name)
	}
	n := len(e.bars)
	out := make(map[string][]*float64)
	for i := 0; i < n; i++ {
		r, err := e.ComputeAt(i, name, params)
		if err != nil {
			return nil, err
		}
		if len(out) == 0 {
			for field := range r {
				out[field] = make([]*float64, n)
			}
		}
		for field, v := range r {
			if _, ok := out[field]; !ok {
				out[field] = make([]*float64, n)
			}
			if math.IsNaN(v) {
				continue // still in this indicator's own warmup; leave nil (Python's None)
			}
			vv := v
			out[field][i] = &vv
		}
	}
	return out, nil
}

// periodKeys mirrors PERIOD_KEYS in engine.py: any of these parameter
// names is treated as a "period-like" value when computing warmup.
var periodKeys = map[string]bool{
	"period": true, "length": true, "slow_period": true, "slow_length": true,
	"long_period": true, "timeperiod": true, "lookback": true, "bars_back": true,
}

// ComputeWarmup implements spec.md §4.2's warmup formula:
// clamp(max_period * 1.2, 20, N/4), scanning every configured
// indicator's params for period-like values, special-casing MACD as
// slow+signal.
func ComputeWarmup(indicatorParams map[string]Params, totalBars int) int {
	maxPeriod := 0.0
	for name, params := range indicatorParams {
		if name == "MACD" {
			slow := params["slow_ema"]
			if slow == 0 {
				slow = 26
			}
			sig := params["signal"]
			if sig == 0 {
				sig = 9
			}
			if p := slow + sig; p > maxPeriod {
				maxPeriod = p
			}
			continue
		}
		for k, v := range params {
			if periodKeys[k] && v > maxPeriod {
				maxPeriod = v
			}
		}
	}
	warmup := int(maxPeriod * 1.2)
	lo, hi := 20, totalBars/4
	if warmup < lo {
		warmup = lo
	}
	if hi > 0 && warmup > hi {
		warmup = hi
	}
	return warmup
}

func nan() float64 { return math.NaN() }
