package feed

import (
	"time"

	"github.com/ridopark/decisioncore/internal/market"
)

// Aggregator builds bars from a tick stream per spec.md §4.7's
// tick-to-bar rule: the bar-open timestamp is
// floor(tick_ts/tf_seconds)*tf_seconds; a running bar accumulates
// O/H/L/C/volume and is emitted whenever the bucket changes. Flush
// emits whatever bucket is still open, for end-of-stream handling.
type Aggregator struct {
	tf      market.Timeframe
	symbol  string
	current *market.Bar
}

// NewAggregator returns an Aggregator bucketing ticks for symbol into tf bars.
func NewAggregator(symbol string, tf market.Timeframe) *Aggregator {
	return &Aggregator{tf: tf, symbol: symbol}
}

func bucketStart(ts time.Time, tf market.Timeframe) time.Time {
	secs := tf.Seconds()
	unix := ts.Unix()
	bucket := (unix / secs) * secs
	return time.Unix(bucket, 0).UTC()
}

// Add ingests one tick, returning a finished bar and true if this tick
// closed the previous bucket.
func (a *Aggregator) Add(tick market.Tick) (market.Bar, bool) {
	mid := tick.Mid()
	open := bucketStart(tick.Time, a.tf)

	if a.current == nil {
		a.current = &market.Bar{
			Symbol: a.symbol, Timeframe: a.tf, OpenTime: open, CloseTime: open.Add(a.tf.Duration()),
			Open: mid, High: mid, Low: mid, Close: mid, Volume: 1,
		}
		return market.Bar{}, false
	}

	if open.Equal(a.current.OpenTime) {
		if mid > a.current.High {
			a.current.High = mid
		}
		if mid < a.current.Low {
			a.current.Low = mid
		}
		a.current.Close = mid
		a.current.Volume++
		return market.Bar{}, false
	}

	finished := *a.current
	a.current = &market.Bar{
		Symbol: a.symbol, Timeframe: a.tf, OpenTime: open, CloseTime: open.Add(a.tf.Duration()),
		Open: mid, High: mid, Low: mid, Close: mid, Volume: 1,
	}
	return finished, true
}

// Flush returns the in-progress bucket, if any, for end-of-stream.
func (a *Aggregator) Flush() (market.Bar, bool) {
	if a.current == nil {
		return market.Bar{}, false
	}
	b := *a.current
	a.current = nil
	return b, true
}
