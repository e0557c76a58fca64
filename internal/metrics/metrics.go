// Package metrics exposes Prometheus collectors for the snapshot service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotCaptures counts acquisition cycles that produced a new snapshot.
	SnapshotCaptures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotewatch_snapshot_captures_total",
		Help: "The total number of successful snapshot captures.",
	})
	// TransientMisses counts cycles where extraction yielded no records.
	TransientMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotewatch_transient_misses_total",
		Help: "The total number of acquisition cycles that extracted zero records.",
	})
	// FetchErrors counts renderer failures, labeled by stage (init or render).
	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotewatch_fetch_errors_total",
		Help: "The total number of renderer failures, labeled by stage.",
	}, []string{"stage"})
	// PersistWrites counts completed durable writes of the snapshot mirror.
	PersistWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotewatch_persist_writes_total",
		Help: "The total number of durable snapshot writes.",
	})
	// PersistErrors counts failed durable write attempts.
	PersistErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotewatch_persist_errors_total",
		Help: "The total number of failed durable snapshot writes.",
	})
	// SnapshotRecords reports the record count of the live snapshot.
	SnapshotRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quotewatch_snapshot_records",
		Help: "The number of records in the current in-memory snapshot.",
	})
	// BackoffSeconds reports the next retry delay of the acquisition loop.
	BackoffSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quotewatch_backoff_seconds",
		Help: "The acquisition loop's current retry backoff in seconds.",
	})
)
