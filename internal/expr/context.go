package expr

import "strings"

// Context is the name-resolution environment for one evaluation: the
// current price, current and previous indicator outputs, playbook
// variables, the open trade snapshot (if any), and risk limits. The
// backtest replay loop and the live Runner each build one per bar
// (§4.1 Name resolution).
type Context struct {
	Price     float64
	Ind       map[string]map[string]float64 // indicator id -> field -> value
	Prev      map[string]map[string]float64
	Vars      map[string]float64
	Trade     map[string]float64 // open_price, sl, tp, lot, pnl
	Risk      map[string]float64 // max_lot, max_daily_trades, max_drawdown_pct, max_open_positions
}

// NewContext returns an empty, ready-to-populate Context.
func NewContext() *Context {
	return &Context{
		Ind:  make(map[string]map[string]float64),
		Prev: make(map[string]map[string]float64),
		Vars: make(map[string]float64),
		Trade: make(map[string]float64),
		Risk:  make(map[string]float64),
	}
}

// Resolve looks up a dotted name per the six root forms in §4.1.
func (c *Context) Resolve(dotted string) (float64, bool) {
	if dotted == "_price" {
		return c.Price, true
	}
	parts := strings.Split(dotted, ".")
	switch parts[0] {
	case "ind":
		if len(parts) != 3 {
			return 0, false
		}
		fields, ok := c.Ind[parts[1]]
		if !ok {
			return 0, false
		}
		v, ok := fields[parts[2]]
		return v, ok
	case "prev":
		if len(parts) != 3 {
			return 0, false
		}
		fields, ok := c.Prev[parts[1]]
		if !ok {
			return 0, false
		}
		v, ok := fields[parts[2]]
		return v, ok
	case "var":
		if len(parts) != 2 {
			return 0, false
		}
		v, ok := c.Vars[parts[1]]
		return v, ok
	case "trade":
		if len(parts) != 2 {
			return 0, false
		}
		v, ok := c.Trade[parts[1]]
		return v, ok
	case "risk":
		if len(parts) != 2 {
			return 0, false
		}
		v, ok := c.Risk[parts[1]]
		return v, ok
	default:
		return 0, false
	}
}
