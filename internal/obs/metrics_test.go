package obs

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	RecordTransition("simple_trend", "enter_long")
	RecordTrade("simple_trend", "win")
	SetEquity("simple_trend", 10500.25)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "decisioncore_decisions_total")
	assert.Contains(t, body, "decisioncore_equity")
}
