package remote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency вызова удаленного API (включая ретраи)
	RequestDuration *prometheus.HistogramVec
	// Попытки, ушедшие на повтор
	RetriesTotal prometheus.Counter
	// Saturation: состояние Circuit Breaker (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "remote_api_request_duration_seconds",
			Help:    "Latency of proxied remote API calls.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "status"}),

		RetriesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "remote_api_retries_total",
			Help: "Remote API attempts that were retried.",
		}),

		CircuitBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "remote_api_circuit_breaker_state",
			Help: "Current state of the remote API circuit breaker (0=closed, 1=half-open, 2=open).",
		}),
	}
}
