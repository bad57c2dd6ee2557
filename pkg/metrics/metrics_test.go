package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveCommand("ADD", "ok")
	m.ObserveCommand("ADD", "ok")
	m.ObserveCommand("CANCEL", "not_found")
	m.ObserveRound(50.5, 8, 1)
	m.SetResting("BUY", 3)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.SinkFailed("kafka")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("ADD", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("CANCEL", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rounds))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.volume))
	assert.Equal(t, 50.5, testutil.ToFloat64(m.clearingPx))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.resting.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sinkFailures.WithLabelValues("kafka")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCommand("ADD", "ok")
	m.ObserveRound(1, 1, 1)
	m.SetResting("SELL", 1)
	m.SessionOpened()
	m.SessionClosed()
	m.SinkFailed("redis")
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRound(10, 2, 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "batch_auction_matched_volume_total 2"))
}
