package backtest

import "strings"

// pipValue returns the pip size for a symbol. Exact constants per
// original_source/agent/backtest/engine.py's _pip_value — these are
// authoritative per DESIGN.md's Open Question resolution, not
// approximations to be refined later.
func pipValue(symbol string) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.Contains(s, "JPY"):
		return 0.01
	case strings.Contains(s, "XAU"):
		return 0.1
	case strings.Contains(s, "XAG"):
		return 0.01
	case strings.Contains(s, "BTC"), strings.Contains(s, "ETH"):
		return 1.0
	default:
		return 0.0001
	}
}

// pipDollarValue returns the approximate account-currency value of one
// pip for the given lot size, per engine.py's _pip_dollar_value.
func pipDollarValue(symbol string, lot float64) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.Contains(s, "XAU"):
		return lot * 100 * 0.1
	case strings.Contains(s, "XAG"):
		return lot * 5000 * 0.01
	case strings.Contains(s, "JPY"):
		return lot * 100000 * 0.01 / 100
	default:
		return lot * 100000 * 0.0001
	}
}
