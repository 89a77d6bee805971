package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRequest("getFramePos", "ok", 0.01)
	m.ObserveRequest("getFramePos", "ok", 0.02)
	m.ObserveRequest("getFramePos", "error", 0.02)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("getFramePos", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("getFramePos", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("x", "ok", 1)
		m.SetInterceptorRefs("origin", 2)
	})
}
