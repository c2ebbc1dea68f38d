// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fragment status labels for FragmentsReceivedTotal.
const (
	StatusInProgress  = "in_progress"
	StatusCompleted   = "completed"
	StatusDuplicate   = "duplicate"
	StatusMalformed   = "malformed"
	StatusUnknownRule = "unknown_rule"
	StatusRejected    = "rejected"
)

var (
	// FragmentsReceivedTotal counts fragments fed to reassembly by outcome
	FragmentsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schc_fragments_received_total",
			Help: "Total number of fragments received",
		},
		[]string{"status"},
	)

	// FragmentsSentTotal counts fragments emitted by senders
	FragmentsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "schc_fragments_sent_total",
			Help: "Total number of fragments sent",
		},
	)

	// ReassemblyActiveBuffers tracks partial messages awaiting fragments
	ReassemblyActiveBuffers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "schc_reassembly_active_buffers",
			Help: "Number of reassembly buffers in progress",
		},
	)

	// ReassemblyExpiredTotal counts buffers dropped by TTL
	ReassemblyExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "schc_reassembly_expired_total",
			Help: "Total number of reassembly buffers expired",
		},
	)

	// ReassemblyEvictedTotal counts buffers dropped by limits or explicit eviction
	ReassemblyEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "schc_reassembly_evicted_total",
			Help: "Total number of reassembly buffers evicted",
		},
	)

	// MessagesCompletedTotal counts reassembled messages
	MessagesCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "schc_messages_completed_total",
			Help: "Total number of messages reassembled",
		},
	)

	// MessageBytes tracks reassembled message sizes
	MessageBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schc_message_bytes",
			Help:    "Size of reassembled messages in bytes",
			Buckets: prometheus.ExponentialBuckets(8, 2, 12), // 8, 16, ..., 16384
		},
	)

	// SinkErrorsTotal counts delivery failures by sink
	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schc_sink_errors_total",
			Help: "Total number of sink delivery errors",
		},
		[]string{"sink"},
	)
)
