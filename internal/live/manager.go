// Package live implements the streaming data manager from spec.md
// §4.8: per-(symbol,timeframe) ring-buffered bars, tick-to-bar close
// detection with first-detection suppression, and an indicator value
// cache, grounded on original_source/agent/data_manager.py.
package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridopark/decisioncore/internal/market"
)

// BarSource is the subset of the broker bridge the data manager needs:
// pull the last `count` bars for a symbol/timeframe. internal/bridge
// implements this; kept as a narrow interface here to avoid a
// live->bridge import and to make the manager trivially testable with
// a fake source.
type BarSource interface {
	GetBars(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Bar, error)
}

type bufKey struct {
	symbol string
	tf     market.Timeframe
}

type indicatorKey struct {
	symbol string
	tf     market.Timeframe
	id     string
}

// IndicatorValue is the latest cached value for one indicator instance
// on one symbol/timeframe.
type IndicatorValue struct {
	ID        string
	Name      string
	Symbol    string
	Timeframe market.Timeframe
	Values    map[string]float64
	BarTime   time.Time
}

// BarCloseFunc is invoked whenever a new bar closes for a subscribed
// symbol/timeframe, after the buffer has been updated.
type BarCloseFunc func(symbol string, tf market.Timeframe)

// Manager buffers bars per (symbol, timeframe), caches indicator
// values, and detects bar closes from streamed ticks.
type Manager struct {
	source  BarSource
	maxBars int
	log     zerolog.Logger

	mu            sync.Mutex
	bars          map[bufKey][]market.Bar
	lastBarTime   map[bufKey]time.Time
	ticks         map[string]market.Tick
	indicators    map[indicatorKey]IndicatorValue
	subscriptions map[string]map[market.Timeframe]bool
	onBarClose    []BarCloseFunc
}

// NewManager returns a Manager pulling bars from source, keeping at
// most maxBars per (symbol, timeframe) buffer.
func NewManager(source BarSource, maxBars int, log zerolog.Logger) *Manager {
	return &Manager{
		source:        source,
		maxBars:       maxBars,
		log:           log,
		bars:          make(map[bufKey][]market.Bar),
		lastBarTime:   make(map[bufKey]time.Time),
		ticks:         make(map[string]market.Tick),
		indicators:    make(map[indicatorKey]IndicatorValue),
		subscriptions: make(map[string]map[market.Timeframe]bool),
	}
}

// Subscribe registers interest in a symbol's timeframes so OnTick
// knows which timeframes to poll for bar closes.
func (m *Manager) Subscribe(symbol string, timeframes ...market.Timeframe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.subscriptions[symbol]
	if !ok {
		set = make(map[market.Timeframe]bool)
		m.subscriptions[symbol] = set
	}
	for _, tf := range timeframes {
		set[tf] = true
	}
}

// OnBarClose registers a callback invoked after a new bar closes.
func (m *Manager) OnBarClose(fn BarCloseFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onBarClose = append(m.onBarClose, fn)
}

// Initialize pre-fetches barCount bars for every timeframe and
// subscribes symbol to them.
func (m *Manager) Initialize(ctx context.Context, symbol string, timeframes []market.Timeframe, barCount int) error {
	m.Subscribe(symbol, timeframes...)
	for _, tf := range timeframes {
		bars, err := m.source.GetBars(ctx, symbol, tf, barCount)
		if err != nil {
			return fmt.Errorf("live: initialize %s/%s: %w", symbol, tf, err)
		}
		if len(bars) == 0 {
			continue
		}
		key := bufKey{symbol, tf}
		m.mu.Lock()
		m.bars[key] = trimToMax(bars, m.maxBars)
		m.lastBarTime[key] = bars[len(bars)-1].OpenTime
		m.mu.Unlock()
		m.log.Info().Str("symbol", symbol).Str("tf", string(tf)).Int("bars", len(bars)).Msg("loaded bars")
	}
	return nil
}

// OnTick updates the latest tick cache and checks every subscribed
// timeframe for a newly closed bar.
func (m *Manager) OnTick(ctx context.Context, tick market.Tick) error {
	m.mu.Lock()
	m.ticks[tick.Symbol] = tick
	tfs := make([]market.Timeframe, 0, len(m.subscriptions[tick.Symbol]))
	for tf := range m.subscriptions[tick.Symbol] {
		tfs = append(tfs, tf)
	}
	m.mu.Unlock()

	for _, tf := range tfs {
		if err := m.checkNewBar(ctx, tick.Symbol, tf); err != nil {
			return err
		}
	}
	return nil
}

// checkNewBar polls the bridge for the latest bar and, if its
// OpenTime is newer than what's buffered, appends it and fires
// bar-close callbacks — unless this is the very first bar observed
// for the key, which only seeds lastBarTime (data_manager.py's
// "skip first-time detection" rule: initialization must not look like
// a close event to whatever is listening).
func (m *Manager) checkNewBar(ctx context.Context, symbol string, tf market.Timeframe) error {
	bars, err := m.source.GetBars(ctx, symbol, tf, 2)
	if err != nil {
		return fmt.Errorf("live: check new bar %s/%s: %w", symbol, tf, err)
	}
	if len(bars) == 0 {
		return nil
	}
	latest := bars[len(bars)-1]
	key := bufKey{symbol, tf}

	m.mu.Lock()
	prevTime, hadPrev := m.lastBarTime[key]
	isNew := !hadPrev || latest.OpenTime.After(prevTime)
	if !isNew {
		m.mu.Unlock()
		return nil
	}
	m.lastBarTime[key] = latest.OpenTime

	buf := m.bars[key]
	if len(buf) == 0 || buf[len(buf)-1].OpenTime.Before(latest.OpenTime) {
		buf = append(buf, latest)
		m.bars[key] = trimToMax(buf, m.maxBars)
	}
	callbacks := append([]BarCloseFunc(nil), m.onBarClose...)
	m.mu.Unlock()

	if !hadPrev {
		return nil // initialization, not a real close event
	}

	m.log.Debug().Str("symbol", symbol).Str("tf", string(tf)).Time("bar_time", latest.OpenTime).Msg("new bar closed")
	for _, cb := range callbacks {
		cb(symbol, tf)
	}
	return nil
}

// CacheIndicator stores the latest computed indicator values for a
// symbol/timeframe/id triple.
func (m *Manager) CacheIndicator(symbol string, tf market.Timeframe, id, name string, values map[string]float64, barTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indicators[indicatorKey{symbol, tf, id}] = IndicatorValue{
		ID: id, Name: name, Symbol: symbol, Timeframe: tf, Values: values, BarTime: barTime,
	}
}

// GetCachedIndicator returns the cached value for id, if any.
func (m *Manager) GetCachedIndicator(symbol string, tf market.Timeframe, id string) (IndicatorValue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.indicators[indicatorKey{symbol, tf, id}]
	return v, ok
}

// GetTick returns the last observed tick for symbol, if any.
func (m *Manager) GetTick(symbol string) (market.Tick, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.ticks[symbol]
	return t, ok
}

// GetBars returns a copy of the buffered bars for symbol/timeframe.
func (m *Manager) GetBars(symbol string, tf market.Timeframe) []market.Bar {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := m.bars[bufKey{symbol, tf}]
	out := make([]market.Bar, len(buf))
	copy(out, buf)
	return out
}

func trimToMax(bars []market.Bar, max int) []market.Bar {
	if max <= 0 || len(bars) <= max {
		return bars
	}
	return bars[len(bars)-max:]
}
