// Package metrics exposes Prometheus counters for request logging.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Events counts request log events by direction, edge and level.
	Events = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqlog_events_total",
			Help: "Total number of request log events emitted",
		},
		[]string{"direction", "edge", "level"},
	)

	// JSONTruncations counts JSON lines that exceeded max_json_data_to_log.
	JSONTruncations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqlog_json_truncations_total",
			Help: "Total number of JSON log lines that exceeded the configured size limit",
		},
	)

	// SinkDropped counts entries dropped because the sink buffer was full.
	SinkDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqlog_sink_dropped_total",
			Help: "Total number of request log entries dropped because the sink buffer was full",
		},
	)

	// SinkWriteFailures counts failed batch writes to the sink store.
	SinkWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqlog_sink_write_failures_total",
			Help: "Total number of failed batch writes to the request log sink",
		},
	)

	// UnknownMasks counts lookups of mask names that are not registered.
	UnknownMasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqlog_unknown_masks_total",
			Help: "Total number of sanitize calls that referenced an unregistered mask name",
		},
		[]string{"name"},
	)
)
