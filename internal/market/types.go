// Package market holds the shared OHLCV/tick/timeframe data model used
// across the indicator engine, playbook state machine, backtest engine,
// and live data manager.
package market

import "time"

// Timeframe is a bar period identifier, e.g. "M1", "H1", "D1".
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
	W1  Timeframe = "W1"
)

// Seconds returns the duration of one bar on this timeframe.
func (tf Timeframe) Seconds() int64 {
	switch tf {
	case M1:
		return 60
	case M5:
		return 300
	case M15:
		return 900
	case M30:
		return 1800
	case H1:
		return 3600
	case H4:
		return 14400
	case D1:
		return 86400
	case W1:
		return 604800
	default:
		return 60
	}
}

// Duration is Seconds() as a time.Duration, convenient for scheduling.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Seconds()) * time.Second
}

// Bar is one OHLCV candle. OpenTime identifies the bar; CloseTime is
// OpenTime plus the timeframe duration and is only informative (never
// used to key a bar, per the no-look-ahead alignment rule in §4.3).
type Bar struct {
	Symbol    string
	Timeframe Timeframe
	OpenTime  time.Time
	CloseTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Tick is a single bid/ask quote.
type Tick struct {
	Symbol string
	Time   time.Time
	Bid    float64
	Ask    float64
}

// Mid returns the midpoint price of the tick.
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}
