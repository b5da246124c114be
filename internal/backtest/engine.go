package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridopark/decisioncore/internal/expr"
	"github.com/ridopark/decisioncore/internal/indicator"
	"github.com/ridopark/decisioncore/internal/market"
	"github.com/ridopark/decisioncore/internal/playbook"
)

// Run replays pb over bars on the primary timeframe, driving
// playbook.Engine bar by bar exactly as internal/live drives it from
// streamed ticks — the same Engine.EvaluateBar call is the single
// source of truth for transition/timeout/position-management
// decisions (spec §3 invariant vi). Only fill simulation (spread,
// slippage, commission, SL/TP-before-transitions) is backtest-specific
// and lives in this package.
func Run(pb *playbook.Playbook, primary market.Timeframe, bars map[market.Timeframe][]market.Bar, cfg Config, log zerolog.Logger) (*Result, error) {
	primaryBars := bars[primary]
	if len(primaryBars) == 0 {
		return nil, fmt.Errorf("backtest: no bars for primary timeframe %s", primary)
	}

	mtf := indicator.NewMultiTF(primary, bars)

	indParams := make(map[string]indicator.Params, len(pb.Indicators))
	for _, ref := range pb.Indicators {
		indParams[ref.Name] = ref.Params
	}
	warmup := indicator.ComputeWarmup(indParams, len(primaryBars))

	half := cfg.SpreadPips * pipValue(cfg.Symbol) / 2
	slip := cfg.SlippagePips * pipValue(cfg.Symbol)

	inst := playbook.NewInstance(pb, cfg.Symbol)
	eng := playbook.NewEngine(log)

	equity := cfg.StartingBalance
	equityCurve := []float64{equity}
	var trades []Trade
	prevIndicators := map[string]map[string]float64{}

	for i := warmup; i < len(primaryBars); i++ {
		bar := primaryBars[i]

		indicators := make(map[string]map[string]float64, len(pb.Indicators))
		for id, ref := range pb.Indicators {
			r, err := mtf.GetAt(ref.Timeframe, i, ref.Name, ref.Params)
			if err != nil {
				return nil, fmt.Errorf("compute indicator %s at bar %d: %w", id, i, err)
			}
			indicators[id] = r
		}

		ctx := expr.NewContext()
		ctx.Price = bar.Close
		ctx.Ind = indicators
		ctx.Prev = prevIndicators
		ctx.Vars = inst.Variables
		ctx.Risk = map[string]float64{
			"max_lot":           pb.Risk.MaxLot,
			"max_daily_trades":  float64(pb.Risk.MaxDailyTrades),
			"max_drawdown_pct":  pb.Risk.MaxDrawdownPct,
			"max_open_positions": float64(pb.Risk.MaxOpenPositions),
		}
		if inst.Position != nil {
			ctx.Trade = map[string]float64{
				"open_price": inst.Position.OpenPrice,
				"sl":         inst.Position.SL,
				"tp":         inst.Position.TP,
				"lot":        inst.Position.Lot,
				"pnl":        calcPnL(cfg.Symbol, inst.Position.Direction, inst.Position.OpenPrice, bar.Close, inst.Position.Lot),
			}
		}

		// SL/TP hit is checked before any transition, per the replay
		// engine's conservative ordering (engine.go's SL-tie-break).
		if inst.Position != nil {
			if trade, closed := checkSLTP(cfg, inst.Position, bar, i); closed {
				trades = append(trades, trade)
				equity += trade.PnL
				eng.NotifyTradeClosed(inst, trade.PnL, false, bar.OpenTime)
			}
		}

		events := eng.EvaluateBar(inst, ctx, primary, bar.OpenTime)

		if events.Opened != nil && inst.Position == nil {
			openPrice := bar.Close + half + slip
			if events.Opened.Side != "BUY" {
				openPrice = bar.Close - half - slip
			}
			inst.Position = &playbook.OpenPosition{
				Direction:         events.Opened.Side,
				OpenIndex:         i,
				OpenTime:          bar.OpenTime,
				OpenPrice:         openPrice,
				SL:                events.Opened.SL,
				TP:                events.Opened.TP,
				Lot:               events.Opened.Lot,
				PhaseAtEntry:      inst.CurrentPhase,
				VarsAtEntry:       cloneVars(inst.Variables),
				IndicatorsAtEntry: cloneIndicators(indicators),
			}
		}

		if events.RequestClose && inst.Position != nil {
			closePrice := bar.Close - half - slip
			if inst.Position.Direction != "BUY" {
				closePrice = bar.Close + half + slip
			}
			trade := makeTrade(cfg, inst.Position, closePrice, i, bar.OpenTime, "transition")
			trades = append(trades, trade)
			equity += trade.PnL
			eng.NotifyTradeClosed(inst, trade.PnL, false, bar.OpenTime)
		}

		unrealized := 0.0
		if inst.Position != nil {
			unrealized = calcPnL(cfg.Symbol, inst.Position.Direction, inst.Position.OpenPrice, bar.Close, inst.Position.Lot)
		}
		equityCurve = append(equityCurve, equity+unrealized)
		prevIndicators = indicators
	}

	if inst.Position != nil {
		last := primaryBars[len(primaryBars)-1]
		closePrice := last.Close - half - slip
		if inst.Position.Direction != "BUY" {
			closePrice = last.Close + half + slip
		}
		trade := makeTrade(cfg, inst.Position, closePrice, len(primaryBars)-1, last.OpenTime, "end_of_data")
		trades = append(trades, trade)
		equity += trade.PnL
		eng.NotifyTradeClosed(inst, trade.PnL, false, last.OpenTime)
		equityCurve[len(equityCurve)-1] = equity
	}

	return &Result{
		Config:        cfg,
		Trades:        trades,
		EquityCurve:   equityCurve,
		DrawdownCurve: ComputeDrawdownCurve(equityCurve),
		Metrics:       ComputeMetrics(trades, equityCurve, cfg.StartingBalance),
	}, nil
}

// checkSLTP returns a closed trade if SL or TP was hit on bar. If both
// are hit on the same bar, SL wins — the conservative assumption the
// Python reference makes since intrabar path is unknown from OHLC.
func checkSLTP(cfg Config, pos *playbook.OpenPosition, bar market.Bar, idx int) (Trade, bool) {
	slHit, tpHit := false, false
	if pos.Direction == "BUY" {
		slHit = pos.SL != 0 && bar.Low <= pos.SL
		tpHit = pos.TP != 0 && bar.High >= pos.TP
	} else {
		slHit = pos.SL != 0 && bar.High >= pos.SL
		tpHit = pos.TP != 0 && bar.Low <= pos.TP
	}
	switch {
	case slHit:
		return makeTrade(cfg, pos, pos.SL, idx, bar.OpenTime, "sl"), true
	case tpHit:
		return makeTrade(cfg, pos, pos.TP, idx, bar.OpenTime, "tp"), true
	default:
		return Trade{}, false
	}
}

func makeTrade(cfg Config, pos *playbook.OpenPosition, closePrice float64, closeIdx int, closeTime time.Time, reason string) Trade {
	rawPnL := calcPnL(cfg.Symbol, pos.Direction, pos.OpenPrice, closePrice, pos.Lot)
	commission := round2(cfg.CommissionPerLot * pos.Lot)
	pnl := rawPnL - commission
	pips := calcPips(cfg.Symbol, pos.Direction, pos.OpenPrice, closePrice)

	var rr *float64
	if pos.SL != 0 && pos.SL != pos.OpenPrice {
		riskDist := math.Abs(pos.OpenPrice - pos.SL)
		if riskDist > 0 {
			rewardDist := closePrice - pos.OpenPrice
			if pos.Direction != "BUY" {
				rewardDist = pos.OpenPrice - closePrice
			}
			v := round2(rewardDist / riskDist)
			rr = &v
		}
	}

	outcome := "breakeven"
	if pnl > 0 {
		outcome = "win"
	} else if pnl < 0 {
		outcome = "loss"
	}

	return Trade{
		ID:                newTradeID(),
		Direction:         pos.Direction,
		OpenIndex:         pos.OpenIndex,
		CloseIndex:        closeIdx,
		OpenTime:          pos.OpenTime,
		CloseTime:         closeTime,
		OpenPrice:         round5(pos.OpenPrice),
		ClosePrice:        round5(closePrice),
		SL:                round5(pos.SL),
		TP:                round5(pos.TP),
		Lot:               pos.Lot,
		PnL:               round2(pnl),
		PnLPips:           round1(pips),
		Commission:        commission,
		RRAchieved:        rr,
		Outcome:           outcome,
		ExitReason:        reason,
		PhaseAtEntry:      pos.PhaseAtEntry,
		VariablesAtEntry:  pos.VarsAtEntry,
		IndicatorsAtEntry: pos.IndicatorsAtEntry,
	}
}

func calcPnL(symbol, direction string, openPrice, closePrice, lot float64) float64 {
	pip := pipValue(symbol)
	var pips float64
	if direction == "BUY" {
		pips = (closePrice - openPrice) / pip
	} else {
		pips = (openPrice - closePrice) / pip
	}
	return pips * pipDollarValue(symbol, lot)
}

func calcPips(symbol, direction string, openPrice, closePrice float64) float64 {
	pip := pipValue(symbol)
	if direction == "BUY" {
		return (closePrice - openPrice) / pip
	}
	return (openPrice - closePrice) / pip
}

func cloneVars(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneIndicators(m map[string]map[string]float64) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(m))
	for k, v := range m {
		out[k] = cloneVars(v)
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round5(v float64) float64 { return math.Round(v*100000) / 100000 }
