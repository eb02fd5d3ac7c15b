package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quotes"

// Metrics holds the Prometheus collectors exported on /-/metrics.
type Metrics struct {
	pollsTotal     *prometheus.CounterVec
	quotesFetched  prometheus.Counter
	quotesIngested prometheus.Counter
	quotesSkipped  prometheus.Counter
	httpDuration   *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		pollsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Polls of the remote quote source by outcome.",
		}, []string{"outcome"}),
		quotesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_fetched_total",
			Help:      "Quotes received from the remote source.",
		}),
		quotesIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_ingested_total",
			Help:      "Remote quotes added to the store.",
		}),
		quotesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_skipped_total",
			Help:      "Remote quotes skipped as empty or already seen.",
		}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of API requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// ObservePoll records the outcome of one poll.
func (m *Metrics) ObservePoll(fetched, added, skipped int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	m.pollsTotal.WithLabelValues(outcome).Inc()
	m.quotesFetched.Add(float64(fetched))
	m.quotesIngested.Add(float64(added))
	m.quotesSkipped.Add(float64(skipped))
}
