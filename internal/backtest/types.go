// Package backtest implements the deterministic bar-by-bar replay
// engine and performance metrics suite from spec.md §4.5/§4.6: it
// drives playbook.Engine over a fixed bar array, simulates fills with
// spread/slippage/commission, and computes the full metrics set used
// to grade a playbook.
package backtest

import (
	"time"

	"github.com/google/uuid"
)

// Config is everything a Run needs besides the playbook and bars.
type Config struct {
	Symbol           string
	StartingBalance  float64
	SpreadPips       float64
	SlippagePips     float64
	CommissionPerLot float64
}

// Trade is one closed round-trip.
type Trade struct {
	ID                string
	Direction         string // BUY|SELL
	OpenIndex         int
	CloseIndex        int
	OpenTime          time.Time
	CloseTime         time.Time
	OpenPrice         float64
	ClosePrice        float64
	SL                float64 // 0 means no stop was set
	TP                float64 // 0 means no target was set
	Lot               float64
	PnL               float64
	PnLPips           float64
	Commission        float64
	RRAchieved        *float64
	Outcome           string // win|loss|breakeven
	ExitReason        string // sl|tp|transition|end_of_data
	PhaseAtEntry      string
	VariablesAtEntry  map[string]float64
	IndicatorsAtEntry map[string]map[string]float64
}

func newTradeID() string { return uuid.NewString() }

// Result is a full backtest run's output.
type Result struct {
	Config        Config
	Trades        []Trade
	EquityCurve   []float64
	DrawdownCurve []float64
	Metrics       Metrics
}
