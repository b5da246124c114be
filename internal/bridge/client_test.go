package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridopark/decisioncore/internal/market"
)

func newTestServer(t *testing.T, handler func(cmd string, body map[string]any) map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		cmd, _ := body["command"].(string)
		resp := handler(cmd, body)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetTick(t *testing.T) {
	srv := newTestServer(t, func(cmd string, body map[string]any) map[string]any {
		assert.Equal(t, "GET_TICK", cmd)
		assert.Equal(t, "EURUSD", body["symbol"])
		return map[string]any{"success": true, "bid": 1.1000, "ask": 1.1002, "timestamp": "2026-01-01T00:00:00Z"}
	})
	c := New(srv.URL, zerolog.Nop())

	tick, err := c.GetTick(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.1000, tick.Bid)
	assert.Equal(t, 1.1002, tick.Ask)
}

func TestGetBars(t *testing.T) {
	srv := newTestServer(t, func(cmd string, body map[string]any) map[string]any {
		return map[string]any{
			"success": true,
			"bars": []any{
				map[string]any{"time": "2026-01-01T00:00:00Z", "open": 1.1, "high": 1.2, "low": 1.0, "close": 1.15, "volume": 10.0},
			},
		}
	})
	c := New(srv.URL, zerolog.Nop())

	bars, err := c.GetBars(context.Background(), "EURUSD", market.M1, 1)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 1.15, bars[0].Close)
}

func TestOpenOrderFailure(t *testing.T) {
	srv := newTestServer(t, func(cmd string, body map[string]any) map[string]any {
		return map[string]any{"success": false, "error": "no margin"}
	})
	c := New(srv.URL, zerolog.Nop())

	res, err := c.OpenOrder(context.Background(), "EURUSD", "BUY", 1.0, 1.09, 1.11)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "no margin", res.Error)
}

func TestPingUsesGetAccount(t *testing.T) {
	calls := 0
	srv := newTestServer(t, func(cmd string, body map[string]any) map[string]any {
		calls++
		assert.Equal(t, "GET_ACCOUNT", cmd)
		return map[string]any{"success": true, "balance": 1000.0}
	})
	c := New(srv.URL, zerolog.Nop())

	assert.True(t, c.Ping(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestRateLimitWaitRespectsContext(t *testing.T) {
	srv := newTestServer(t, func(cmd string, body map[string]any) map[string]any {
		return map[string]any{"success": true}
	})
	c := New(srv.URL, zerolog.Nop(), WithRateLimit(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)

	_, err := c.GetTick(ctx, "EURUSD")
	assert.Error(t, err)
}
