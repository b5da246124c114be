package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridopark/decisioncore/internal/playbook"
)

func samplePB(risk playbook.RiskConfig) *playbook.Playbook {
	return &playbook.Playbook{Name: "pb", Risk: risk}
}

func TestSignalOnlyAlwaysApproves(t *testing.T) {
	m := NewManager(zerolog.Nop())
	pb := samplePB(playbook.RiskConfig{MaxLot: 0})
	d := m.CheckOpenTrade("s1", SignalOnly, pb, playbook.TradeIntent{Lot: 1}, nil, nil, time.Now())
	assert.True(t, d.Approved)
}

func TestKillSwitchBlocksEverything(t *testing.T) {
	m := NewManager(zerolog.Nop())
	m.ActivateKillSwitch()
	pb := samplePB(playbook.RiskConfig{MaxLot: 1, MaxDailyTrades: 10, MaxOpenPositions: 5})
	d := m.CheckOpenTrade("s1", FullAuto, pb, playbook.TradeIntent{Lot: 0.1}, nil, nil, time.Now())
	assert.False(t, d.Approved)
	assert.Equal(t, ActionBlock, d.Action)
}

func TestMaxDailyTradesBlocks(t *testing.T) {
	m := NewManager(zerolog.Nop())
	pb := samplePB(playbook.RiskConfig{MaxLot: 1, MaxDailyTrades: 1, MaxOpenPositions: 5})
	now := time.Now()

	d1 := m.CheckOpenTrade("s1", FullAuto, pb, playbook.TradeIntent{Lot: 0.1}, nil, nil, now)
	require.True(t, d1.Approved)
	m.RecordTrade("s1")

	d2 := m.CheckOpenTrade("s1", FullAuto, pb, playbook.TradeIntent{Lot: 0.1}, nil, nil, now)
	assert.False(t, d2.Approved)
	assert.Contains(t, d2.Reason, "daily trade limit")
}

func TestMaxOpenPositionsBlocks(t *testing.T) {
	m := NewManager(zerolog.Nop())
	pb := samplePB(playbook.RiskConfig{MaxLot: 1, MaxDailyTrades: 10, MaxOpenPositions: 1})
	open := []OpenExposure{{Lot: 0.1}}
	d := m.CheckOpenTrade("s1", FullAuto, pb, playbook.TradeIntent{Lot: 0.1}, open, nil, time.Now())
	assert.False(t, d.Approved)
}

func TestDrawdownFullAutoEscalatesToKill(t *testing.T) {
	m := NewManager(zerolog.Nop())
	pb := samplePB(playbook.RiskConfig{MaxLot: 1, MaxDailyTrades: 10, MaxOpenPositions: 5, MaxDrawdownPct: 5})
	now := time.Now()

	acct := &Account{Balance: 10000, Equity: 10000}
	d1 := m.CheckOpenTrade("s1", FullAuto, pb, playbook.TradeIntent{Lot: 0.1}, nil, acct, now)
	require.True(t, d1.Approved)

	acct2 := &Account{Balance: 10000, Equity: 9000} // 10% drawdown vs initial balance
	d2 := m.CheckOpenTrade("s1", FullAuto, pb, playbook.TradeIntent{Lot: 0.1}, nil, acct2, now)
	assert.False(t, d2.Approved)
	assert.Equal(t, ActionKill, d2.Action)
}

func TestDrawdownSemiAutoBlocksNotKills(t *testing.T) {
	m := NewManager(zerolog.Nop())
	pb := samplePB(playbook.RiskConfig{MaxLot: 1, MaxDailyTrades: 10, MaxOpenPositions: 5, MaxDrawdownPct: 5})
	now := time.Now()
	acct := &Account{Balance: 10000, Equity: 10000}
	m.CheckOpenTrade("s1", SemiAuto, pb, playbook.TradeIntent{Lot: 0.1}, nil, acct, now)

	acct2 := &Account{Balance: 10000, Equity: 9000}
	d := m.CheckOpenTrade("s1", SemiAuto, pb, playbook.TradeIntent{Lot: 0.1}, nil, acct2, now)
	assert.False(t, d.Approved)
	assert.Equal(t, ActionBlock, d.Action)
}

func TestDailyTradesResetOnNewDay(t *testing.T) {
	m := NewManager(zerolog.Nop())
	pb := samplePB(playbook.RiskConfig{MaxLot: 1, MaxDailyTrades: 1, MaxOpenPositions: 5})
	day1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 1, 0, 0, 0, time.UTC)

	m.CheckOpenTrade("s1", FullAuto, pb, playbook.TradeIntent{Lot: 0.1}, nil, nil, day1)
	m.RecordTrade("s1")
	blocked := m.CheckOpenTrade("s1", FullAuto, pb, playbook.TradeIntent{Lot: 0.1}, nil, nil, day1)
	require.False(t, blocked.Approved)

	allowed := m.CheckOpenTrade("s1", FullAuto, pb, playbook.TradeIntent{Lot: 0.1}, nil, nil, day2)
	assert.True(t, allowed.Approved)
}
