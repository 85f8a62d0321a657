// Package metrics exposes Prometheus collectors for the ledger, the oracle
// and the HTTP layer, plus a standalone server that serves them.
package metrics

import (
	"time"

	"github.com/flashbots/noisyagg/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ledgerOperations counts ledger operations by outcome.
	// Labels: operation, outcome (ok or the error class)
	ledgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Subsystem: "ledger",
		Name:      "operations_total",
		Help:      "Ledger operations by outcome",
	}, []string{"operation", "outcome"})

	// ledgerOperationLatency measures ledger operation latency, including
	// time spent waiting for the ledger lock.
	ledgerOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: common.PackageName,
		Subsystem: "ledger",
		Name:      "operation_duration_seconds",
		Help:      "Ledger operation latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"operation"})

	oracleQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: common.PackageName,
		Subsystem: "oracle",
		Name:      "queue_depth",
		Help:      "Decryption jobs waiting for a worker",
	})

	// oracleDeliveries counts callback deliveries.
	// Labels: outcome (delivered, decrypt_error, delivery_error)
	oracleDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Subsystem: "oracle",
		Name:      "deliveries_total",
		Help:      "Decryption results delivered to the ledger",
	}, []string{"outcome"})

	// eventWrites counts audit events persisted by the event store.
	// Labels: outcome (ok, error)
	eventWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Subsystem: "events",
		Name:      "writes_total",
		Help:      "Audit events written to the event store",
	}, []string{"outcome"})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the ingress rate limiter",
	})
)

// RecordOperation counts one ledger operation and its latency.
func RecordOperation(operation, outcome string, elapsed time.Duration) {
	ledgerOperations.WithLabelValues(operation, outcome).Inc()
	ledgerOperationLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// SetOracleQueueDepth reports the oracle's pending job count.
func SetOracleQueueDepth(n int) {
	oracleQueueDepth.Set(float64(n))
}

// RecordOracleDelivery counts one oracle delivery attempt.
func RecordOracleDelivery(outcome string) {
	oracleDeliveries.WithLabelValues(outcome).Inc()
}

// RecordEventWrite counts one event store write.
func RecordEventWrite(err error) {
	if err != nil {
		eventWrites.WithLabelValues("error").Inc()
		return
	}
	eventWrites.WithLabelValues("ok").Inc()
}

// RecordRateLimited counts one request rejected by the rate limiter.
func RecordRateLimited() {
	rateLimited.Inc()
}
