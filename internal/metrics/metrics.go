// Package metrics exposes store operation counters and latencies to
// Prometheus. Collectors are registered on a caller-supplied registerer so
// that several stores can live in one process.
package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
)

const (
	Namespace = "clusterstore"

	MetricOperations           = "operations_total"
	MetricOperationDuration    = "operation_duration_seconds"
	MetricReservedTransactions = "reserved_transactions"

	// ResultOK labels operations that returned no error. Failed operations
	// are labelled with their error code.
	ResultOK = "ok"
)

// Recorder records one sample per store operation.
type Recorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NopRecorder drops every sample.
var NopRecorder *Recorder

// New registers the store collectors on reg. reserved reports the number of
// transaction handles holding a connection. db, when set, adds the pool
// statistics collector.
func New(reg prometheus.Registerer, reserved func() float64, db *sql.DB) (*Recorder, error) {
	r := &Recorder{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      MetricOperations,
				Help:      "Store operations by cluster, operation and result.",
			},
			[]string{"cluster", "op", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      MetricOperationDuration,
				Help:      "Store operation latency.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"cluster", "op"},
		),
	}

	cs := []prometheus.Collector{r.operations, r.duration}
	if reserved != nil {
		cs = append(cs, prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      MetricReservedTransactions,
				Help:      "Transaction handles holding a reserved connection.",
			},
			reserved,
		))
	}
	if db != nil {
		cs = append(cs, collectors.NewDBStatsCollector(db, Namespace))
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(errors.New(errors.Configuration, err.Error()), "registering metrics")
		}
	}
	return r, nil
}

// Observe records an operation that started at start and ended with err.
func (r *Recorder) Observe(cluster, op string, start time.Time, err error) {
	if r == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = string(errors.CodeOf(err))
	}
	r.operations.WithLabelValues(cluster, op, result).Inc()
	r.duration.WithLabelValues(cluster, op).Observe(time.Since(start).Seconds())
}
