package svcrouter

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by the router.
type Metrics struct {
	cacheLookups       *prometheus.CounterVec
	invocations        *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	responses          *prometheus.CounterVec
}

// NewMetrics creates the router metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "svcrouter",
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Total number of response cache lookups by result (hit, miss).",
			},
			[]string{"result"},
		),
		invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "svcrouter",
				Subsystem: "backend",
				Name:      "invocations_total",
				Help:      "Total number of backend invocations by service and result.",
			},
			[]string{"service", "result"},
		),
		invocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "svcrouter",
				Subsystem: "backend",
				Name:      "invocation_seconds",
				Help:      "Duration of backend invocations in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		responses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "svcrouter",
				Name:      "responses_total",
				Help:      "Total number of routed responses by status code.",
			},
			[]string{"code"},
		),
	}
	// make the series visible before the first request
	for _, result := range []string{"hit", "miss"} {
		m.cacheLookups.WithLabelValues(result)
	}
	return m
}

func (m *Metrics) cacheLookup(hit bool) {
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) invocation(service string, err error, took time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.invocations.WithLabelValues(service, result).Inc()
	m.invocationDuration.WithLabelValues(service).Observe(took.Seconds())
}

func (m *Metrics) response(statusCode int) {
	m.responses.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}
