// Package risk is the account-level risk gate (spec.md SPEC_FULL
// supplemental section): kill switch, per-strategy daily trade counts,
// exposure and drawdown checks, sitting between a playbook's
// open_trade decision and the live broker bridge.
//
// Grounded on original_source/agent/risk_manager.py in full. Bypassed
// in backtests (internal/backtest fills synchronously against
// historical bars and has no live broker exposure to gate).
package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridopark/decisioncore/internal/playbook"
)

// Action is what the caller should do with a blocked signal.
type Action string

const (
	ActionPass  Action = "pass"
	ActionBlock Action = "block"
	ActionKill  Action = "kill"
)

// Decision is the outcome of a risk check.
type Decision struct {
	Approved bool
	Reason   string
	Action   Action
}

func approved(reason string) Decision { return Decision{Approved: true, Reason: reason, Action: ActionPass} }
func blocked(reason string) Decision  { return Decision{Approved: false, Reason: reason, Action: ActionBlock} }
func killed(reason string) Decision   { return Decision{Approved: false, Reason: reason, Action: ActionKill} }

// Autonomy mirrors strategy.models.Autonomy: how much a strategy is
// allowed to act without a human confirming each trade.
type Autonomy string

const (
	SignalOnly Autonomy = "signal_only"
	SemiAuto   Autonomy = "semi_auto"
	FullAuto   Autonomy = "full_auto"
)

// Account is the subset of bridge.Account the risk gate needs.
type Account struct {
	Balance float64
	Equity  float64
}

// OpenExposure is one currently-open position's lot size, for the
// global exposure check.
type OpenExposure struct {
	Lot float64
}

// Manager enforces global and per-strategy risk limits.
type Manager struct {
	MaxTotalLots           float64
	MaxAccountDrawdownPct  float64
	DailyLossLimit         float64

	mu              sync.Mutex
	killSwitch      bool
	dailyTrades     map[string]int
	lastResetDate   time.Time
	initialBalance  map[string]float64
	log             zerolog.Logger
}

// NewManager returns a Manager with sane global defaults, matching
// risk_manager.py's __init__ constants.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		MaxTotalLots:          1.0,
		MaxAccountDrawdownPct: 10.0,
		DailyLossLimit:        500.0,
		dailyTrades:           make(map[string]int),
		initialBalance:        make(map[string]float64),
		log:                   log,
	}
}

// CheckOpenTrade applies every risk rule to a pending open_trade
// decision for strategyID against inst's playbook risk config, the
// caller's currently open positions, and the account snapshot.
func (m *Manager) CheckOpenTrade(strategyID string, autonomy Autonomy, pb *playbook.Playbook, intent playbook.TradeIntent, openPositions []OpenExposure, account *Account, now time.Time) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.maybeResetDaily(now)

	if m.killSwitch {
		return blocked("kill switch is active")
	}
	if autonomy == SignalOnly {
		return approved("signal-only mode, user decides")
	}

	risk := pb.Risk
	if risk.MaxLot <= 0 {
		return blocked("max lot is 0, trading disabled")
	}

	count := m.dailyTrades[strategyID]
	if risk.MaxDailyTrades > 0 && count >= risk.MaxDailyTrades {
		return blocked("daily trade limit reached")
	}

	if risk.MaxOpenPositions > 0 && len(openPositions) >= risk.MaxOpenPositions {
		return blocked("max open positions reached")
	}

	var totalLots float64
	for _, p := range openPositions {
		totalLots += p.Lot
	}
	if m.MaxTotalLots > 0 && totalLots+intent.Lot > m.MaxTotalLots {
		return blocked("total exposure would exceed limit")
	}

	if account != nil {
		initial, seen := m.initialBalance[strategyID]
		if !seen {
			initial = account.Balance
			m.initialBalance[strategyID] = initial
		}

		var drawdownPct float64
		if initial > 0 {
			drawdownPct = (initial - account.Equity) / initial * 100
		}

		if risk.MaxDrawdownPct > 0 && drawdownPct > risk.MaxDrawdownPct {
			if autonomy == FullAuto {
				return killed("per-strategy drawdown exceeds limit")
			}
			return blocked("per-strategy drawdown exceeds limit")
		}

		if m.MaxAccountDrawdownPct > 0 && drawdownPct > m.MaxAccountDrawdownPct {
			return killed("account drawdown exceeds global limit")
		}
	}

	return approved("all risk checks passed")
}

// RecordTrade increments strategyID's daily trade counter.
func (m *Manager) RecordTrade(strategyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyTrades[strategyID]++
}

// ActivateKillSwitch halts all trading until deactivated.
func (m *Manager) ActivateKillSwitch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killSwitch = true
	m.log.Warn().Msg("kill switch activated, all trading halted")
}

// DeactivateKillSwitch resumes trading.
func (m *Manager) DeactivateKillSwitch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killSwitch = false
	m.log.Info().Msg("kill switch deactivated")
}

// KillSwitchActive reports whether the kill switch is currently tripped.
func (m *Manager) KillSwitchActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killSwitch
}

func (m *Manager) maybeResetDaily(now time.Time) {
	today := now.UTC().Truncate(24 * time.Hour)
	if m.lastResetDate.IsZero() {
		m.lastResetDate = today
		return
	}
	if !today.Equal(m.lastResetDate) {
		m.dailyTrades = make(map[string]int)
		m.lastResetDate = today
	}
}
