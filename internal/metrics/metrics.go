package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the hub's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Requests     *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	Interceptors *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hub_requests_total",
				Help: "Requests dispatched by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hub_request_duration_seconds",
				Help:    "Time spent handling a request",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		Interceptors: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hub_interceptors_active",
				Help: "Operations currently holding an interceptor",
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(m.Requests, m.Duration, m.Interceptors)
	return m
}

func (m *Metrics) ObserveRequest(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(kind, outcome).Inc()
	m.Duration.WithLabelValues(kind).Observe(seconds)
}

func (m *Metrics) SetInterceptorRefs(kind string, n int) {
	if m == nil {
		return
	}
	m.Interceptors.WithLabelValues(kind).Set(float64(n))
}
