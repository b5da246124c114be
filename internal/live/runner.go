package live

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridopark/decisioncore/internal/expr"
	"github.com/ridopark/decisioncore/internal/indicator"
	"github.com/ridopark/decisioncore/internal/market"
	"github.com/ridopark/decisioncore/internal/playbook"
)

// IndicatorSpec names one configured indicator instance to compute on
// every subscribed timeframe's bar close, over that timeframe's bars.
type IndicatorSpec struct {
	ID     string
	Name   string
	Params indicator.Params
}

// OrderExecutor places and closes orders against the live broker. It
// is the live counterpart of internal/backtest's fill simulation:
// playbook.Engine only decides *that* a trade should open or close,
// the executor decides the actual fill price.
type OrderExecutor interface {
	OpenPosition(ctx context.Context, symbol string, intent playbook.TradeIntent) (fillPrice float64, err error)
	ClosePosition(ctx context.Context, symbol string, reason string) (fillPrice, pnl float64, err error)
}

// Runner drives a single playbook Instance off a Manager's bar-close
// events, running the exact same playbook.Engine.EvaluateBar call the
// backtest engine uses (spec invariant vi).
type Runner struct {
	mgr        *Manager
	eng        *playbook.Engine
	exec       OrderExecutor
	inst       *playbook.Instance
	indicators []IndicatorSpec
	log        zerolog.Logger

	prevIndicators map[string]map[string]float64
}

// NewRunner wires mgr's bar-close events for symbol to drive inst
// through eng, placing orders through exec. EvaluateBar is called on
// every subscribed timeframe's close; which timeframes actually
// produce a decision is gated inside EvaluateBar by the instance's
// *current phase* evaluate-on set (spec §3/§4.4 step 1), not by any
// single "primary" timeframe here — a playbook can evaluate different
// phases on different timeframes.
func NewRunner(mgr *Manager, eng *playbook.Engine, exec OrderExecutor, inst *playbook.Instance, indicators []IndicatorSpec, log zerolog.Logger) *Runner {
	r := &Runner{
		mgr: mgr, eng: eng, exec: exec, inst: inst,
		indicators: indicators, log: log,
		prevIndicators: make(map[string]map[string]float64),
	}
	mgr.OnBarClose(r.handleBarClose)
	return r
}

func (r *Runner) handleBarClose(symbol string, tf market.Timeframe) {
	bars := r.mgr.GetBars(symbol, tf)
	if len(bars) == 0 {
		return
	}
	idx := len(bars) - 1
	ie := indicator.NewEngine(bars)

	ectx := expr.NewContext()
	ectx.Price = bars[idx].Close
	ectx.Risk["max_lot"] = r.inst.Playbook.Risk.MaxLot
	ectx.Risk["max_daily_trades"] = float64(r.inst.Playbook.Risk.MaxDailyTrades)
	ectx.Risk["max_drawdown_pct"] = r.inst.Playbook.Risk.MaxDrawdownPct
	ectx.Risk["max_open_positions"] = float64(r.inst.Playbook.Risk.MaxOpenPositions)

	for _, spec := range r.indicators {
		res, err := ie.ComputeAt(idx, spec.Name, spec.Params)
		if err != nil {
			r.log.Warn().Err(err).Str("indicator", spec.Name).Msg("indicator compute failed")
			continue
		}
		fields := map[string]float64(res)
		ectx.Ind[spec.ID] = fields
		if prev, ok := r.prevIndicators[spec.ID]; ok {
			ectx.Prev[spec.ID] = prev
		}
		r.prevIndicators[spec.ID] = fields
		r.mgr.CacheIndicator(symbol, tf, spec.ID, spec.Name, fields, bars[idx].OpenTime)
	}

	if r.inst.Position != nil {
		ectx.Trade["open_price"] = r.inst.Position.OpenPrice
		ectx.Trade["sl"] = r.inst.Position.SL
		ectx.Trade["tp"] = r.inst.Position.TP
		ectx.Trade["lot"] = r.inst.Position.Lot
	}

	ctx := context.Background()
	now := bars[idx].OpenTime
	ev := r.eng.EvaluateBar(r.inst, ectx, tf, now)

	if ev.Opened != nil {
		fill, err := r.exec.OpenPosition(ctx, symbol, *ev.Opened)
		if err != nil {
			r.log.Error().Err(err).Str("symbol", symbol).Msg("open order failed")
			r.eng.NotifyTradeClosed(r.inst, 0, true, now)
		} else {
			r.inst.Position = &playbook.OpenPosition{
				Direction: ev.Opened.Side, OpenIndex: idx, OpenTime: now,
				OpenPrice: fill, SL: ev.Opened.SL, TP: ev.Opened.TP, Lot: ev.Opened.Lot,
				PhaseAtEntry: r.inst.CurrentPhase,
			}
		}
	}

	if ev.RequestClose && r.inst.Position != nil {
		fill, pnl, err := r.exec.ClosePosition(ctx, symbol, ev.CloseReason)
		_ = fill
		r.eng.NotifyTradeClosed(r.inst, pnl, err != nil, now)
	}
}

// Poll ticks the manager forward once, using now as the tick time with
// the latest known mid price as a synthetic quote — a convenience for
// adapters that only expose bar polling rather than a real tick feed.
func (r *Runner) Poll(ctx context.Context, symbol string, mid float64, now time.Time) error {
	return r.mgr.OnTick(ctx, market.Tick{Symbol: symbol, Time: now, Bid: mid, Ask: mid})
}
