package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveMessage("confirmation", "applied")
	m.ObserveMessage("confirmation", "applied")
	m.ObserveMessage("cancellation", "not_found")

	finished := time.Unix(1_750_000_000, 0)
	m.ObserveRun(finished, 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messages.WithLabelValues("confirmation", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("cancellation", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs))
	assert.Equal(t, 1_750_000_000.0, testutil.ToFloat64(m.lastRun))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveMessage("notice", "applied")
		m.ObserveRun(time.Now(), time.Second)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveMessage("notice", "applied")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `chocosync_messages_total{outcome="applied",workflow="notice"} 1`)
}
