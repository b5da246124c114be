package playbook

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridopark/decisioncore/internal/expr"
	"github.com/ridopark/decisioncore/internal/market"
)

// TradeIntent is the output of an open_trade action: the playbook has
// decided to open a position, but sizing/fill is the caller's job
// (backtest broker simulation or live bridge).
type TradeIntent struct {
	Side    string
	Lot     float64
	SL      float64
	TP      float64
	Reason  string
}

// ManagementEvent is one fired position-management rule.
type ManagementEvent struct {
	Kind  ManagementKind
	Value float64
	Name  string
}

// StepEvents summarizes everything that happened while evaluating one
// bar against one instance, for the caller (backtest replay loop or
// live data manager) to act on.
type StepEvents struct {
	TimedOut        bool
	Transitioned    bool
	FromPhase       string
	ToPhase         string
	TransitionName  string
	Opened          *TradeIntent
	RequestClose    bool
	CloseReason     string
	Management      []ManagementEvent
	Logs            []string
	CircuitBreakerBlocked bool
}

// Engine evaluates playbook transitions and position-management rules
// against an Instance. It carries no state of its own — every piece of
// mutable state lives on the Instance — which is what lets the exact
// same Engine be driven from both the backtest replay loop and the
// live data manager and produce identical decisions from identical
// bars (spec §3 invariant vi).
type Engine struct {
	Log zerolog.Logger
}

// NewEngine returns a playbook Engine logging through l.
func NewEngine(l zerolog.Logger) *Engine {
	return &Engine{Log: l}
}

// EvaluateBar runs one bar's worth of playbook logic for inst: bumps
// counters, resolves a lazy circuit-breaker cooldown, checks the
// current phase's timeout, evaluates transitions in priority order,
// and — if a position is open — runs position-management rules.
//
// tf is the timeframe this bar belongs to; the playbook may be
// evaluated on several timeframes and each keeps its own
// phase_timeframe_bars counter (spec §4.4 step 5, invariant vi), which
// is why this port tracks per-timeframe counters rather than the
// single counter the backtest-only Python reference used.
func (e *Engine) EvaluateBar(inst *Instance, ctx *expr.Context, tf market.Timeframe, now time.Time) StepEvents {
	var ev StepEvents

	ph := inst.phase()
	if ph == nil {
		return ev
	}

	// Only evaluate if this timeframe is in the current phase's
	// evaluate-on set (spec §3/§4.4 step 1; playbook_engine.py:154).
	if !ph.evaluatesOn(tf, inst.Playbook.EvaluateOn) {
		return ev
	}

	inst.BarsInPhase++
	inst.PhaseTimeframeBars[tf]++

	e.maybeResetCircuitBreaker(inst, now)

	if ph.Timeout != nil && ph.Timeout.Timeframe == tf && inst.PhaseTimeframeBars[tf] >= ph.Timeout.Bars {
		ev.TimedOut = true
		e.applyTransition(inst, ctx, &ev, ph.TimeoutToPhase, "__timeout__")
		return ev
	}

	if t := e.selectTransition(ph, ctx); t != nil {
		e.runActions(inst, ctx, &ev, t)
		if t.ToPhase != "" && t.ToPhase != inst.CurrentPhase {
			e.applyTransition(inst, ctx, &ev, t.ToPhase, t.Name)
			return ev
		}
	}

	if inst.Position != nil {
		e.runPositionManagement(inst, ctx, &ev, ph)
	}

	return ev
}

// selectTransition returns the highest-priority transition whose
// condition evaluates true, or nil. Ties broken by declaration order.
func (e *Engine) selectTransition(ph *Phase, ctx *expr.Context) *Transition {
	ordered := make([]*Transition, len(ph.Transitions))
	copy(ordered, ph.Transitions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })
	for _, t := range ordered {
		if t.Condition.Evaluate(ctx) {
			return t
		}
	}
	return nil
}

func (e *Engine) applyTransition(inst *Instance, ctx *expr.Context, ev *StepEvents, toPhase, name string) {
	ev.Transitioned = true
	ev.FromPhase = inst.CurrentPhase
	ev.ToPhase = toPhase
	ev.TransitionName = name
	inst.TransitionTo(toPhase)
}

func (e *Engine) runActions(inst *Instance, ctx *expr.Context, ev *StepEvents, t *Transition) {
	for _, a := range t.Actions {
		switch a.Kind {
		case ActionSetVar:
			v, err := expr.Evaluate(a.Expr, ctx)
			if err != nil {
				e.Log.Warn().Err(err).Str("var", a.Var).Msg("set_var expression failed")
				continue
			}
			inst.Variables[a.Var] = v
			ctx.Vars[a.Var] = v

		case ActionOpenTrade:
			if inst.CB.Tripped {
				ev.CircuitBreakerBlocked = true
				continue
			}
			lot, _ := expr.Evaluate(a.LotExpr, ctx)
			sl, _ := expr.Evaluate(a.SLExpr, ctx)
			tp, _ := expr.Evaluate(a.TPExpr, ctx)
			ev.Opened = &TradeIntent{Side: a.Side, Lot: lot, SL: sl, TP: tp, Reason: t.Name}

		case ActionCloseTrade:
			ev.RequestClose = true
			ev.CloseReason = t.Name

		case ActionLog:
			ev.Logs = append(ev.Logs, a.Message)
			e.Log.Info().Str("phase", inst.CurrentPhase).Msg(a.Message)
		}
	}
}

func (e *Engine) runPositionManagement(inst *Instance, ctx *expr.Context, ev *StepEvents, ph *Phase) {
	for _, rule := range ph.PositionManagement {
		if rule.Once && inst.FiredOnceRules[rule.Name] {
			continue
		}
		if !rule.When.Evaluate(ctx) {
			continue
		}
		switch rule.Kind {
		case ManageModifySL:
			v, err := expr.Evaluate(rule.ValueExpr, ctx)
			if err != nil {
				continue
			}
			inst.Position.SL = v
			ev.Management = append(ev.Management, ManagementEvent{Kind: rule.Kind, Value: v, Name: rule.Name})

		case ManageModifyTP:
			v, err := expr.Evaluate(rule.ValueExpr, ctx)
			if err != nil {
				continue
			}
			inst.Position.TP = v
			ev.Management = append(ev.Management, ManagementEvent{Kind: rule.Kind, Value: v, Name: rule.Name})

		case ManageTrailSL:
			step, err := expr.Evaluate(rule.StepExpr, ctx)
			if err != nil {
				continue
			}
			newSL := inst.Position.SL
			if inst.Position.Direction == "BUY" {
				candidate := ctx.Price - step
				if candidate > newSL {
					newSL = candidate
				}
			} else {
				candidate := ctx.Price + step
				if newSL == 0 || candidate < newSL {
					newSL = candidate
				}
			}
			if newSL != inst.Position.SL {
				inst.Position.SL = newSL
				ev.Management = append(ev.Management, ManagementEvent{Kind: rule.Kind, Value: newSL, Name: rule.Name})
			}

		case ManagePartialClose:
			ev.Management = append(ev.Management, ManagementEvent{Kind: rule.Kind, Value: rule.PartialPct, Name: rule.Name})
		}
		if rule.Once {
			inst.FiredOnceRules[rule.Name] = true
		}
	}
}

// NotifyTradeClosed updates circuit-breaker counters from a realized
// outcome and applies the current phase's on_trade_closed transition
// if it has one, mirroring playbook_engine.py's notify_trade_closed in
// full. Both backtest and live route every close (SL/TP, close_trade,
// end-of-data) through this single function so they pick the same
// post-close phase from identical bars (spec §3 invariant vi).
func (e *Engine) NotifyTradeClosed(inst *Instance, pnl float64, wasError bool, now time.Time) {
	inst.Position = nil
	cb := inst.Playbook.CircuitBreaker

	if wasError {
		inst.CB.ErrorCount++
	} else if pnl < 0 {
		inst.CB.ConsecutiveLosses++
	} else {
		inst.CB.ConsecutiveLosses = 0
	}

	if cb.MaxConsecutiveLosses > 0 && inst.CB.ConsecutiveLosses >= cb.MaxConsecutiveLosses ||
		cb.MaxErrors > 0 && inst.CB.ErrorCount >= cb.MaxErrors {
		inst.CB.Tripped = true
		inst.CB.TrippedAt = now
	}

	if ph := inst.phase(); ph != nil && ph.OnTradeClosed != nil && ph.OnTradeClosed.ToPhase != "" {
		inst.TransitionTo(ph.OnTradeClosed.ToPhase)
	}
}

func (e *Engine) maybeResetCircuitBreaker(inst *Instance, now time.Time) {
	if !inst.CB.Tripped {
		return
	}
	cd := time.Duration(inst.Playbook.CircuitBreaker.Cooldown)
	if cd <= 0 {
		return
	}
	if now.Sub(inst.CB.TrippedAt) >= cd {
		inst.CB.Tripped = false
		inst.CB.ConsecutiveLosses = 0
		inst.CB.ErrorCount = 0
	}
}
