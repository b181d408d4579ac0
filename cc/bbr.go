package cc

import (
	"time"

	"github.com/netkit/pktstack/rtt"
)

// pacingGainCycle is the eight-phase pacing-gain cycle BBR walks through
// during steady-state CongestionAvoidance.
var pacingGainCycle = [8]float64{1.25, 0.75, 1, 1, 1, 1, 1, 1}

const probeRTTInterval = 10 * time.Second

// BBR is the bandwidth- and RTT-probing congestion control state machine
// described in spec.md §4.5.
type BBR struct {
	Cwnd     uint32
	Ssthresh uint32

	BtlBw float64 // estimated bottleneck bandwidth, bytes/second
	RTT   *rtt.Estimator

	Phase Phase

	probeRTTAnchor time.Time
	cycleIndex     int

	PacingGain float64
	CwndGain   float64
}

func newBBR() *BBR {
	return &BBR{
		Cwnd:       10 * MSS,
		RTT:        rtt.NewEstimator(),
		Phase:      PhaseSlowStart,
		PacingGain: 1,
		CwndGain:   1,
	}
}

// bdp returns the bandwidth-delay product: bottleneck bandwidth * min RTT
// (approximated here with SRTT, matching spec.md §4.5's BDP = btlbw*SRTT).
func (b *BBR) bdp() float64 {
	srtt, ok := b.RTT.SRTT()
	if !ok {
		return 0
	}
	return b.BtlBw * srtt.Seconds()
}

func (b *BBR) onAck(bytesAcked uint32, rttSample time.Duration, now time.Time) {
	b.RTT.AddSample(rttSample)

	if rttSample > 0 {
		delta := float64(bytesAcked) / rttSample.Seconds()
		if delta > b.BtlBw {
			b.BtlBw = delta
		}
	}

	switch b.Phase {
	case PhaseSlowStart:
		b.Cwnd += bytesAcked
		if float64(b.Cwnd) >= 2*b.bdp() && b.bdp() > 0 {
			b.Phase = PhaseCongestionAvoidance
			b.Ssthresh = b.Cwnd
			b.CwndGain = 1
			b.probeRTTAnchor = now
		}
	case PhaseCongestionAvoidance:
		b.congestionAvoidance(bytesAcked, now)
	case PhaseProbeRTT:
		if now.Sub(b.probeRTTAnchor) >= probeRTTInterval {
			b.Phase = PhaseCongestionAvoidance
			b.probeRTTAnchor = now
		}
	case PhaseLossRecovery:
		// A single ACK is enough evidence of recovery; resume probing.
		b.Phase = PhaseCongestionAvoidance
		b.probeRTTAnchor = now
	}
}

func (b *BBR) congestionAvoidance(bytesAcked uint32, now time.Time) {
	if b.probeRTTAnchor.IsZero() {
		b.probeRTTAnchor = now
	}
	if now.Sub(b.probeRTTAnchor) >= probeRTTInterval {
		b.Phase = PhaseProbeRTT
		b.Cwnd = 4 * MSS
		b.probeRTTAnchor = now
		return
	}

	b.PacingGain = pacingGainCycle[b.cycleIndex%len(pacingGainCycle)]
	b.cycleIndex++

	target := b.bdp() * b.CwndGain
	if target > float64(b.Cwnd) {
		grow := bytesAcked
		if grow > MSS {
			grow = MSS
		}
		b.Cwnd += grow
		if float64(b.Cwnd) > target {
			b.Cwnd = uint32(target)
		}
	}
}

func (b *BBR) onLoss() {
	b.Phase = PhaseLossRecovery
	b.Ssthresh = b.Cwnd / 2
	if b.Ssthresh < 2*MSS {
		b.Ssthresh = 2 * MSS
	}
	b.Cwnd = b.Ssthresh
	b.BtlBw = 0.9 * b.BtlBw
}

// PacingRate returns the current pacing rate in bytes/second: BtlBw *
// PacingGain.
func (b *BBR) PacingRate() float64 {
	return b.BtlBw * b.PacingGain
}
