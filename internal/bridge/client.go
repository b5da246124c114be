// Package bridge is a thin HTTP/JSON client for the broker sidecar
// (spec.md §6.1): one command envelope over a single endpoint, typed
// wrapper methods per command, and transport reset on timeout.
//
// Grounded on original_source/agent/bridge.py for the exact command
// set (GET_TICK/GET_BARS/GET_INDICATOR/OPEN_ORDER/CLOSE_ORDER/
// MODIFY_ORDER/GET_POSITIONS/GET_ACCOUNT/SUBSCRIBE) and its
// reset-the-socket-on-timeout behavior, and on
// chidi150c-coinbase/broker_bridge.go for the Go shape of a thin
// JSON-over-HTTP bridge client. bridge.py talks to its EA over ZeroMQ
// REQ/REP; no example repo in this pack imports a ZMQ binding, so this
// port keeps the same one-request-one-reply command contract over
// plain net/http+encoding/json instead, consistent with
// chidi150c-coinbase's own choice for an equivalent sidecar.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ridopark/decisioncore/internal/market"
)

// Client is a rate-limited HTTP client for the broker bridge sidecar.
type Client struct {
	base    string
	hc      *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithTimeout overrides the default 5s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

// WithRateLimit overrides the default 20 requests/sec throttle.
func WithRateLimit(rps int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), rps) }
}

// New returns a Client against baseURL, e.g. "http://127.0.0.1:8787".
func New(baseURL string, log zerolog.Logger, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "http://127.0.0.1:8787"
	}
	c := &Client{
		base:    base,
		hc:      &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(20), 20),
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// command is the envelope every call sends: {"command": "...", ...params}.
func (c *Client) command(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("bridge: rate limit wait: %w", err)
	}

	body := map[string]any{"command": name}
	for k, v := range params {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("bridge: marshal %s: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/command", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("bridge: build request %s: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil || isTimeout(err) {
			c.log.Warn().Str("command", name).Err(err).Msg("bridge timeout, resetting transport")
			c.resetTransport()
		}
		return map[string]any{"success": false, "error": err.Error()}, nil
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("bridge: read response %s: %w", name, err)
	}
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("bridge: %s returned %d: %s", name, res.StatusCode, string(raw))
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("bridge: decode %s response: %w", name, err)
	}
	return out, nil
}

// resetTransport drops pooled connections, the HTTP analogue of
// bridge.py's "close and recreate the REQ socket" behavior on timeout
// — a REQ/REP socket left mid-exchange after a timeout is unusable for
// the next request.
func (c *Client) resetTransport() {
	c.hc.CloseIdleConnections()
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	t, ok := err.(timeout)
	return ok && t.Timeout()
}

func succeeded(resp map[string]any) bool {
	v, ok := resp["success"]
	if !ok {
		return true // commands without a success envelope are treated as ok
	}
	b, _ := v.(bool)
	return b
}

func errString(resp map[string]any) string {
	if v, ok := resp["error"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown error"
}

func floatField(m map[string]any, key string) float64 {
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// GetTick fetches the latest bid/ask for symbol.
func (c *Client) GetTick(ctx context.Context, symbol string) (market.Tick, error) {
	resp, err := c.command(ctx, "GET_TICK", map[string]any{"symbol": symbol})
	if err != nil {
		return market.Tick{}, err
	}
	if !succeeded(resp) {
		return market.Tick{}, fmt.Errorf("bridge: GET_TICK %s: %s", symbol, errString(resp))
	}
	return market.Tick{
		Symbol: symbol,
		Bid:    floatField(resp, "bid"),
		Ask:    floatField(resp, "ask"),
		Time:   parseTime(stringField(resp, "timestamp")),
	}, nil
}

// GetBars implements live.BarSource: fetch the last count bars.
func (c *Client) GetBars(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Bar, error) {
	resp, err := c.command(ctx, "GET_BARS", map[string]any{
		"symbol": symbol, "timeframe": string(tf), "count": count,
	})
	if err != nil {
		return nil, err
	}
	if !succeeded(resp) {
		return nil, fmt.Errorf("bridge: GET_BARS %s/%s: %s", symbol, tf, errString(resp))
	}
	rawBars, _ := resp["bars"].([]any)
	bars := make([]market.Bar, 0, len(rawBars))
	for _, rb := range rawBars {
		m, ok := rb.(map[string]any)
		if !ok {
			continue
		}
		open := parseTime(stringField(m, "time"))
		bars = append(bars, market.Bar{
			Symbol: symbol, Timeframe: tf, OpenTime: open, CloseTime: open.Add(tf.Duration()),
			Open: floatField(m, "open"), High: floatField(m, "high"),
			Low: floatField(m, "low"), Close: floatField(m, "close"),
			Volume: floatField(m, "volume"),
		})
	}
	return bars, nil
}

// GetIndicator asks the bridge's own platform to compute an indicator
// (used when the remote platform's native indicator library is the
// source of truth instead of internal/indicator).
func (c *Client) GetIndicator(ctx context.Context, symbol string, tf market.Timeframe, name string, params map[string]float64, count int) (map[string][]float64, error) {
	resp, err := c.command(ctx, "GET_INDICATOR", map[string]any{
		"symbol": symbol, "timeframe": string(tf), "indicator": name, "params": params, "count": count,
	})
	if err != nil {
		return nil, err
	}
	if !succeeded(resp) {
		return nil, fmt.Errorf("bridge: GET_INDICATOR %s on %s/%s: %s", name, symbol, tf, errString(resp))
	}
	values, _ := resp["values"].(map[string]any)
	out := make(map[string][]float64, len(values))
	for field, v := range values {
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		fs := make([]float64, len(arr))
		for i, av := range arr {
			fs[i], _ = av.(float64)
		}
		out[field] = fs
	}
	return out, nil
}

// OrderResult is the bridge's response to an order command.
type OrderResult struct {
	Success bool
	Ticket  int
	Price   float64
	Error   string
}

// OpenOrder places a market order. orderType is "BUY" or "SELL".
func (c *Client) OpenOrder(ctx context.Context, symbol, orderType string, lot, sl, tp float64) (OrderResult, error) {
	params := map[string]any{"symbol": symbol, "type": orderType, "lot": lot}
	if sl != 0 {
		params["sl"] = sl
	}
	if tp != 0 {
		params["tp"] = tp
	}
	resp, err := c.command(ctx, "OPEN_ORDER", params)
	if err != nil {
		return OrderResult{}, err
	}
	return OrderResult{
		Success: succeeded(resp),
		Ticket:  int(floatField(resp, "ticket")),
		Price:   floatField(resp, "price"),
		Error:   errString(resp),
	}, nil
}

// CloseOrder closes an open position by ticket.
func (c *Client) CloseOrder(ctx context.Context, ticket int) (OrderResult, error) {
	resp, err := c.command(ctx, "CLOSE_ORDER", map[string]any{"ticket": ticket})
	if err != nil {
		return OrderResult{}, err
	}
	return OrderResult{
		Success: succeeded(resp),
		Price:   floatField(resp, "price"),
		Error:   errString(resp),
	}, nil
}

// ModifyOrder changes SL/TP on an open position by ticket.
func (c *Client) ModifyOrder(ctx context.Context, ticket int, sl, tp float64) error {
	params := map[string]any{"ticket": ticket}
	if sl != 0 {
		params["sl"] = sl
	}
	if tp != 0 {
		params["tp"] = tp
	}
	resp, err := c.command(ctx, "MODIFY_ORDER", params)
	if err != nil {
		return err
	}
	if !succeeded(resp) {
		return fmt.Errorf("bridge: MODIFY_ORDER %d: %s", ticket, errString(resp))
	}
	return nil
}

// Position mirrors the bridge's open-position shape.
type Position struct {
	Ticket       int
	Symbol       string
	Direction    string
	Lot          float64
	OpenPrice    float64
	CurrentPrice float64
	SL, TP       float64
	PnL          float64
	OpenTime     time.Time
}

// GetPositions lists all currently open positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	resp, err := c.command(ctx, "GET_POSITIONS", nil)
	if err != nil {
		return nil, err
	}
	if !succeeded(resp) {
		return nil, fmt.Errorf("bridge: GET_POSITIONS: %s", errString(resp))
	}
	rawPositions, _ := resp["positions"].([]any)
	out := make([]Position, 0, len(rawPositions))
	for _, rp := range rawPositions {
		m, ok := rp.(map[string]any)
		if !ok {
			continue
		}
		direction := "BUY"
		if floatField(m, "type") != 0 {
			direction = "SELL"
		}
		out = append(out, Position{
			Ticket: int(floatField(m, "ticket")), Symbol: stringField(m, "symbol"),
			Direction: direction, Lot: floatField(m, "lot"),
			OpenPrice: floatField(m, "open_price"), CurrentPrice: floatField(m, "current_price"),
			SL: floatField(m, "sl"), TP: floatField(m, "tp"), PnL: floatField(m, "pnl"),
			OpenTime: parseTime(stringField(m, "open_time")),
		})
	}
	return out, nil
}

// Account is the bridge's account-state snapshot.
type Account struct {
	Balance     float64
	Equity      float64
	Margin      float64
	FreeMargin  float64
	MarginLevel float64
	Profit      float64
}

// GetAccount fetches the current account balance/equity/margin state.
func (c *Client) GetAccount(ctx context.Context) (Account, error) {
	resp, err := c.command(ctx, "GET_ACCOUNT", nil)
	if err != nil {
		return Account{}, err
	}
	if !succeeded(resp) {
		return Account{}, fmt.Errorf("bridge: GET_ACCOUNT: %s", errString(resp))
	}
	return Account{
		Balance: floatField(resp, "balance"), Equity: floatField(resp, "equity"),
		Margin: floatField(resp, "margin"), FreeMargin: floatField(resp, "free_margin"),
		MarginLevel: floatField(resp, "margin_level"), Profit: floatField(resp, "profit"),
	}, nil
}

// SubscribeSymbols asks the bridge's tick feed to start streaming symbols.
func (c *Client) SubscribeSymbols(ctx context.Context, symbols []string) error {
	resp, err := c.command(ctx, "SUBSCRIBE", map[string]any{"symbols": symbols})
	if err != nil {
		return err
	}
	if !succeeded(resp) {
		return fmt.Errorf("bridge: SUBSCRIBE: %s", errString(resp))
	}
	return nil
}

// Ping checks whether the bridge/EA is responding.
func (c *Client) Ping(ctx context.Context) bool {
	resp, err := c.command(ctx, "GET_ACCOUNT", nil)
	return err == nil && succeeded(resp)
}
