package cc

import (
	"math"
	"time"

	"github.com/netkit/pktstack/rtt"
)

// defaultInitialSsthresh is large enough that SlowStart does not cross it
// until a real loss event sets a realistic value, matching conventional
// TCP startup behavior.
const defaultInitialSsthresh = 1 << 30

// Cubic is the loss-based, cubic-growth congestion control state machine
// described in spec.md §4.6.
type Cubic struct {
	Cwnd     uint32
	Ssthresh uint32
	RTT      *rtt.Estimator
	Phase    Phase

	Wmax   uint32
	K      float64
	C      float64
	Beta   float64
	Origin float64

	epochStart    time.Time
	epochComputed bool
}

func newCubic() *Cubic {
	return &Cubic{
		Cwnd:     10 * MSS,
		Ssthresh: defaultInitialSsthresh,
		RTT:      rtt.NewEstimator(),
		Phase:    PhaseSlowStart,
		C:        0.4,
		Beta:     0.7,
	}
}

func (c *Cubic) onAck(bytesAcked uint32, rttSample time.Duration, now time.Time) {
	c.RTT.AddSample(rttSample)

	switch c.Phase {
	case PhaseSlowStart:
		c.Cwnd += bytesAcked
		if c.Cwnd >= c.Ssthresh {
			c.Phase = PhaseCongestionAvoidance
			c.epochStart = now
			c.epochComputed = false
		}
	case PhaseCongestionAvoidance:
		c.congestionAvoidance(bytesAcked, now)
	case PhaseFastRecovery:
		c.Cwnd += bytesAcked
		if c.Cwnd >= c.Ssthresh {
			c.Phase = PhaseCongestionAvoidance
			c.epochStart = now
			c.epochComputed = false
		}
	}
}

func (c *Cubic) congestionAvoidance(bytesAcked uint32, now time.Time) {
	if c.epochStart.IsZero() {
		c.epochStart = now
	}
	if !c.epochComputed {
		if c.Cwnd < c.Wmax {
			c.K = math.Cbrt(float64(c.Wmax-c.Cwnd) / c.C)
			c.Origin = float64(c.Wmax)
		} else {
			c.K = 0
			c.Origin = float64(c.Cwnd)
		}
		c.epochComputed = true
	}

	t := now.Sub(c.epochStart).Seconds()
	target := c.Origin + c.C*math.Pow(t-c.K, 3)

	if target > float64(c.Cwnd) {
		grow := target - float64(c.Cwnd)
		if grow > float64(bytesAcked) {
			grow = float64(bytesAcked)
		}
		c.Cwnd += uint32(grow)
	} else if c.Cwnd > 0 {
		c.Cwnd += bytesAcked / c.Cwnd
		if c.Cwnd == 0 {
			c.Cwnd = 1
		}
	}
}

func (c *Cubic) onLoss() {
	c.Wmax = c.Cwnd
	c.Ssthresh = uint32(float64(c.Cwnd) * c.Beta)
	c.Cwnd = c.Ssthresh
	c.Phase = PhaseFastRecovery
	c.epochStart = time.Time{}
	c.epochComputed = false
}
