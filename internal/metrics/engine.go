package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsync",
			Name:      "page_fetches_total",
			Help:      "Total number of result pages fetched from a store.",
		},
		[]string{"kind", "outcome"},
	)

	pageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsync",
			Name:      "page_fetch_duration_seconds",
			Help:      "Duration of a single page fetch in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	recordsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsync",
			Name:      "records_fetched_total",
			Help:      "Total number of records read from a store.",
		},
		[]string{"kind"},
	)

	requestCharge = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsync",
			Name:      "request_charge_total",
			Help:      "Total store-reported request charge.",
		},
		[]string{"kind", "operation"},
	)

	mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsync",
			Name:      "mutations_total",
			Help:      "Total number of point upserts and deletes by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	batchRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsync",
			Name:      "batch_rows_total",
			Help:      "Rows processed by batch update and batch delete, by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	breakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docsync",
			Name:      "breaker_state",
			Help:      "Store circuit breaker state: 0 closed, 1 open, 2 half-open.",
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docsync",
			Name:      "sessions_active",
			Help:      "Number of open grid sessions.",
		},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObservePage records one page fetch against a store of the given kind.
func ObservePage(kind string, records int, charge float64, d time.Duration, err error) {
	pageFetches.WithLabelValues(kind, outcome(err)).Inc()
	pageDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		return
	}
	recordsFetched.WithLabelValues(kind).Add(float64(records))
	requestCharge.WithLabelValues(kind, "query").Add(charge)
}

// ObserveMutation records a point upsert or delete.
func ObserveMutation(kind, operation string, charge float64, err error) {
	mutations.WithLabelValues(operation, outcome(err)).Inc()
	if err == nil {
		requestCharge.WithLabelValues(kind, operation).Add(charge)
	}
}

// ObserveBatch records the per-row outcome counts of a batch operation.
func ObserveBatch(operation string, succeeded, failed int) {
	batchRows.WithLabelValues(operation, "ok").Add(float64(succeeded))
	batchRows.WithLabelValues(operation, "error").Add(float64(failed))
}

// SetBreakerState publishes the store breaker state.
func SetBreakerState(state int) {
	breakerState.Set(float64(state))
}

func SessionOpened() { activeSessions.Inc() }
func SessionClosed() { activeSessions.Dec() }
