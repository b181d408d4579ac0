// Package cc implements the BBR and CUBIC congestion-control state
// machines. Congestion control is dispatched at runtime by an algorithm
// tag rather than through open-ended interface polymorphism, per this
// toolkit's preference for a single tagged-variant dispatch point over
// unbounded dynamic dispatch.
package cc

import (
	"time"

	"github.com/netkit/pktstack/internal/metrics"
	"github.com/netkit/pktstack/rtt"
)

// MSS is the maximum segment size assumed by both algorithms.
const MSS = 1460

// Phase is the congestion-control phase tag shared by both algorithms,
// though not every phase is reachable from every algorithm.
type Phase int

// Congestion control phases.
const (
	PhaseSlowStart Phase = iota
	PhaseCongestionAvoidance
	PhaseFastRecovery
	PhaseLossRecovery
	PhaseProbeRTT
)

func (p Phase) String() string {
	switch p {
	case PhaseSlowStart:
		return "slow_start"
	case PhaseCongestionAvoidance:
		return "congestion_avoidance"
	case PhaseFastRecovery:
		return "fast_recovery"
	case PhaseLossRecovery:
		return "loss_recovery"
	case PhaseProbeRTT:
		return "probe_rtt"
	default:
		return "unknown"
	}
}

// Algorithm is the tag selecting which congestion-control state machine a
// Controller runs.
type Algorithm int

// Supported algorithms.
const (
	AlgorithmBBR Algorithm = iota
	AlgorithmCUBIC
)

func (a Algorithm) String() string {
	if a == AlgorithmBBR {
		return "bbr"
	}
	return "cubic"
}

// Controller is a tagged variant over the BBR and CUBIC state machines. A
// Controller's Algorithm never changes after construction; exactly one of
// its embedded states is active.
type Controller struct {
	Algorithm Algorithm
	bbr       *BBR
	cubic     *Cubic
}

// NewController creates a Controller running alg, with an initial
// congestion window of 10*MSS as recommended by RFC 6928.
func NewController(alg Algorithm) *Controller {
	c := &Controller{Algorithm: alg}
	switch alg {
	case AlgorithmBBR:
		c.bbr = newBBR()
	case AlgorithmCUBIC:
		c.cubic = newCubic()
	}
	return c
}

// OnAck advances the active state machine on an ACK covering bytesAcked
// bytes, with RTT sample rttSample observed at time now.
func (c *Controller) OnAck(bytesAcked uint32, rttSample time.Duration, now time.Time) {
	before := c.Phase()
	switch c.Algorithm {
	case AlgorithmBBR:
		c.bbr.onAck(bytesAcked, rttSample, now)
	case AlgorithmCUBIC:
		c.cubic.onAck(bytesAcked, rttSample, now)
	}
	if after := c.Phase(); after != before {
		metrics.CongestionPhaseTransitionTotal.WithLabelValues(c.Algorithm.String(), after.String()).Inc()
	}
}

// OnLoss signals a loss event (e.g. a retransmission timeout or triple
// duplicate ACK) to the active state machine.
func (c *Controller) OnLoss() {
	switch c.Algorithm {
	case AlgorithmBBR:
		c.bbr.onLoss()
	case AlgorithmCUBIC:
		c.cubic.onLoss()
	}
	metrics.CongestionPhaseTransitionTotal.WithLabelValues(c.Algorithm.String(), c.Phase().String()).Inc()
}

// Cwnd returns the current congestion window in bytes.
func (c *Controller) Cwnd() uint32 {
	if c.Algorithm == AlgorithmBBR {
		return c.bbr.Cwnd
	}
	return c.cubic.Cwnd
}

// Ssthresh returns the current slow-start threshold in bytes.
func (c *Controller) Ssthresh() uint32 {
	if c.Algorithm == AlgorithmBBR {
		return c.bbr.Ssthresh
	}
	return c.cubic.Ssthresh
}

// Phase returns the active state machine's phase tag.
func (c *Controller) Phase() Phase {
	if c.Algorithm == AlgorithmBBR {
		return c.bbr.Phase
	}
	return c.cubic.Phase
}

// RTTEstimator returns the embedded RTT estimator of the active state
// machine.
func (c *Controller) RTTEstimator() *rtt.Estimator {
	if c.Algorithm == AlgorithmBBR {
		return c.bbr.RTT
	}
	return c.cubic.RTT
}

// BBRSnapshot returns the BBR-specific state, or nil if the controller is
// not running BBR.
func (c *Controller) BBRSnapshot() *BBR {
	return c.bbr
}

// CubicSnapshot returns the CUBIC-specific state, or nil if the controller
// is not running CUBIC.
func (c *Controller) CubicSnapshot() *Cubic {
	return c.cubic
}
