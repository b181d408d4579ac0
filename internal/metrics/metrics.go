// Package metrics defines the prometheus metrics shared across the
// toolkit's packages.
//
// When defining new operations or metrics, these are helpful values to track:
//  - things coming into or going out of the system: packets, frames, programs.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WireParseTotal counts parse attempts for each layer, by outcome.
	//
	// Example usage:
	//   metrics.WireParseTotal.WithLabelValues("ipv4", "ok").Inc()
	WireParseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktstack_wire_parse_total",
			Help: "Number of wire-format parse attempts, by layer and outcome.",
		}, []string{"layer", "outcome"})

	// ChecksumMismatchTotal counts IPv4/TCP/UDP checksum verification failures.
	ChecksumMismatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktstack_checksum_mismatch_total",
			Help: "Number of checksum verification failures, by layer.",
		}, []string{"layer"})

	// RingFullTotal counts ring buffer writes rejected because the buffer was full.
	RingFullTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pktstack_ring_full_total",
			Help: "Number of ring buffer writes rejected as BufferFull.",
		})

	// RingEmptyTotal counts ring buffer reads rejected because the buffer was empty.
	RingEmptyTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pktstack_ring_empty_total",
			Help: "Number of ring buffer reads rejected as BufferEmpty.",
		})

	// PoolAllocationGauge tracks the current outstanding packet pool allocation count.
	PoolAllocationGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pktstack_pool_allocations",
			Help: "Current number of outstanding packet pool buffer allocations.",
		})

	// CongestionPhaseTransitionTotal counts congestion-control phase transitions.
	CongestionPhaseTransitionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktstack_cc_phase_transition_total",
			Help: "Number of congestion control phase transitions, by algorithm and phase.",
		}, []string{"algorithm", "phase"})

	// RTOHistogram tracks the computed retransmission timeout.
	RTOHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pktstack_rto_seconds",
			Help:    "Computed retransmission timeout distribution (seconds).",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 20),
		})

	// GROFlushTotal counts GRO flow flushes, by reason.
	GROFlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktstack_gro_flush_total",
			Help: "Number of GRO flow flushes, by reason (timeout, noncontiguous, explicit).",
		}, []string{"reason"})

	// GSOSegmentsTotal counts child segments produced by GSO.
	GSOSegmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pktstack_gso_segments_total",
			Help: "Number of child segments produced by GSO/TSO.",
		})

	// VMExecutionTotal counts filter VM executions, by verdict outcome.
	VMExecutionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktstack_vm_execution_total",
			Help: "Number of filter VM executions, by outcome (verdict, trap kind).",
		}, []string{"outcome"})

	// EngineDroppedTotal counts frames the engine dropped: frames
	// DecodeBatch could not decode, and packets dropped on a full worker
	// queue or a full output channel.
	EngineDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pktstack_engine_dropped_total",
			Help: "Number of input frames dropped: decode failures and full engine queues.",
		})

	// EngineBatchHistogram tracks the size of batches submitted to the engine.
	EngineBatchHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pktstack_engine_batch_size",
			Help:    "Distribution of packet counts per batch submitted to the engine.",
			Buckets: prometheus.LinearBuckets(1, 8, 16),
		})

	// CaptureDroppedTotal counts captured packets evicted from the ring before inspection.
	CaptureDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pktstack_capture_dropped_total",
			Help: "Number of captured packets evicted from the capture ring (FIFO overflow).",
		})

	// ConnTableSizeGauge tracks the number of entries in the connection table.
	ConnTableSizeGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pktstack_conntrack_size",
			Help: "Current number of entries in the connection table.",
		})
)

// init prints a log message to let the operator know that the package has
// been loaded and the metrics registered. The metrics are auto-registered,
// which means this happens as soon as the package is imported.
func init() {
	log.Println("Prometheus metrics in pktstack/internal/metrics are registered.")
}
