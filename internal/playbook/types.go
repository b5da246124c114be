// Package playbook implements the declarative multi-phase trading
// state machine described in spec.md §4.4: phases, priority-ordered
// transitions with AND/OR condition trees, position-management rules,
// and circuit-breaker tracking. The same Engine type drives both the
// live data manager and the backtest engine, which is what lets them
// produce identical decisions from identical bars (§3 invariant vi).
package playbook

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ridopark/decisioncore/internal/expr"
	"github.com/ridopark/decisioncore/internal/market"
)

type yamlNode = yaml.Node

// ActionKind enumerates the action verbs a transition or a
// position-management rule can execute.
type ActionKind string

const (
	ActionSetVar     ActionKind = "set_var"
	ActionOpenTrade  ActionKind = "open_trade"
	ActionCloseTrade ActionKind = "close_trade"
	ActionLog        ActionKind = "log"
)

// ManagementKind enumerates position-management rule verbs.
type ManagementKind string

const (
	ManageModifySL     ManagementKind = "modify_sl"
	ManageModifyTP     ManagementKind = "modify_tp"
	ManageTrailSL      ManagementKind = "trail_sl"
	ManagePartialClose ManagementKind = "partial_close"
)

// Action is one step of a transition's action list.
type Action struct {
	Kind ActionKind `yaml:"kind"`

	// set_var
	Var  string `yaml:"var,omitempty"`
	Expr string `yaml:"expr,omitempty"`

	// open_trade
	Side    string `yaml:"side,omitempty"` // BUY|SELL
	LotExpr string `yaml:"lot_expr,omitempty"`
	SLExpr  string `yaml:"sl_expr,omitempty"`
	TPExpr  string `yaml:"tp_expr,omitempty"`

	// log
	Message string `yaml:"message,omitempty"`
}

// PositionRule is a once-per-bar position-management action gated by
// a condition, evaluated only while the instance holds an open trade.
type PositionRule struct {
	Name       string         `yaml:"name"`
	When       *expr.Tree     `yaml:"when"`
	Kind       ManagementKind `yaml:"kind"`
	ValueExpr  string         `yaml:"value_expr,omitempty"`
	StepExpr   string         `yaml:"step_expr,omitempty"` // trail_sl step size
	Once       bool           `yaml:"once,omitempty"`
	PartialPct float64        `yaml:"partial_pct,omitempty"` // partial_close
}

// Timeout fires a phase transition after `Bars` evaluated bars on
// Timeframe have elapsed since phase entry.
type Timeout struct {
	Timeframe market.Timeframe `yaml:"timeframe"`
	Bars      int              `yaml:"bars"`
}

// Transition is one priority-ordered edge out of a phase.
type Transition struct {
	Name      string      `yaml:"name"`
	Priority  int         `yaml:"priority"`
	Condition *expr.Tree  `yaml:"condition"`
	Actions   []Action    `yaml:"actions"`
	ToPhase   string      `yaml:"to_phase"`
}

// Phase is one state of the playbook.
type Phase struct {
	Name               string             `yaml:"name"`
	EvaluateOn         []market.Timeframe `yaml:"evaluate_on"`
	Transitions        []*Transition      `yaml:"transitions"`
	Timeout            *Timeout           `yaml:"timeout,omitempty"`
	TimeoutToPhase     string             `yaml:"timeout_to_phase,omitempty"`
	PositionManagement []PositionRule     `yaml:"position_management,omitempty"`
	OnTradeClosed      *Transition        `yaml:"on_trade_closed,omitempty"`
}

// evaluatesOn reports whether tf is in this phase's evaluate-on set.
// An empty set falls back to the playbook's own evaluate_on list, so
// playbooks that don't need per-phase timeframes keep working
// unchanged (spec.md §3 "Phase: evaluate-on timeframes").
func (p *Phase) evaluatesOn(tf market.Timeframe, playbookDefault []market.Timeframe) bool {
	set := p.EvaluateOn
	if len(set) == 0 {
		set = playbookDefault
	}
	for _, want := range set {
		if want == tf {
			return true
		}
	}
	return false
}

// Duration unmarshals a Go duration string ("5m", "1h30m") from YAML,
// the way the rest of this codebase's configs spell out durations.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yamlNode) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// CircuitBreakerConfig bounds consecutive losses / errors before the
// playbook stops opening new trades for a cooldown period.
type CircuitBreakerConfig struct {
	MaxConsecutiveLosses int      `yaml:"max_consecutive_losses"`
	MaxErrors            int      `yaml:"max_errors"`
	Cooldown             Duration `yaml:"cooldown"`
}

// RiskConfig carries the account-level limits exposed to condition
// trees as risk.max_lot / risk.max_daily_trades / risk.max_drawdown_pct.
type RiskConfig struct {
	MaxLot           float64 `yaml:"max_lot"`
	MaxDailyTrades   int     `yaml:"max_daily_trades"`
	MaxDrawdownPct   float64 `yaml:"max_drawdown_pct"`
	MaxOpenPositions int     `yaml:"max_open_positions"`
}

// Playbook is the full declarative definition: phases plus default
// variables plus the timeframes it evaluates on.
type Playbook struct {
	Name           string                  `yaml:"name"`
	Symbol         string                  `yaml:"symbol"`
	EvaluateOn     []market.Timeframe      `yaml:"evaluate_on"`
	Phases         map[string]*Phase       `yaml:"phases"`
	InitialPhase   string                  `yaml:"initial_phase"`
	Variables      map[string]float64      `yaml:"variables"`
	Risk           RiskConfig              `yaml:"risk"`
	CircuitBreaker CircuitBreakerConfig    `yaml:"circuit_breaker"`
	Indicators     map[string]IndicatorRef `yaml:"indicators"`
}

// IndicatorRef names an indicator instance a playbook references as
// ind.<ID>.<field> / prev.<ID>.<field>.
type IndicatorRef struct {
	ID        string             `yaml:"id"`
	Name      string             `yaml:"name"`
	Timeframe market.Timeframe   `yaml:"timeframe"`
	Params    map[string]float64 `yaml:"params"`
}

// CircuitBreakerState is the per-instance circuit breaker bookkeeping
// from playbook_engine.py's notify_trade_closed/_check_circuit_breaker.
type CircuitBreakerState struct {
	ConsecutiveLosses int
	ErrorCount        int
	Tripped           bool
	TrippedAt         time.Time
}

// OpenPosition is the instance's current trade, if any.
type OpenPosition struct {
	Direction         string // BUY|SELL
	OpenIndex         int
	OpenTime          time.Time
	OpenPrice         float64
	SL, TP            float64
	Lot               float64
	PhaseAtEntry      string
	VarsAtEntry       map[string]float64
	IndicatorsAtEntry map[string]map[string]float64
}

// Instance is one running copy of a Playbook against one symbol.
type Instance struct {
	Playbook *Playbook
	Symbol   string

	CurrentPhase       string
	BarsInPhase        int
	PhaseTimeframeBars map[market.Timeframe]int
	Variables          map[string]float64
	FiredOnceRules     map[string]bool
	Disabled           bool

	Position *OpenPosition
	CB       CircuitBreakerState
}

// NewInstance seeds a fresh instance at the playbook's initial phase
// with its default variables.
func NewInstance(pb *Playbook, symbol string) *Instance {
	vars := make(map[string]float64, len(pb.Variables))
	for k, v := range pb.Variables {
		vars[k] = v
	}
	return &Instance{
		Playbook:           pb,
		Symbol:             symbol,
		CurrentPhase:       pb.InitialPhase,
		PhaseTimeframeBars: make(map[market.Timeframe]int),
		Variables:          vars,
		FiredOnceRules:     make(map[string]bool),
	}
}

// TransitionTo moves the instance to a new phase, resetting all
// per-phase counters (§4.4: "transition_to resets bars_in_phase /
// phase_timeframe_bars / fired_once_rules").
func (inst *Instance) TransitionTo(phase string) {
	inst.CurrentPhase = phase
	inst.BarsInPhase = 0
	inst.PhaseTimeframeBars = make(map[market.Timeframe]int)
	inst.FiredOnceRules = make(map[string]bool)
}

func (inst *Instance) phase() *Phase {
	return inst.Playbook.Phases[inst.CurrentPhase]
}
