package cc

import (
	"testing"
	"time"
)

func TestBBRSlowStartExit(t *testing.T) {
	c := NewController(AlgorithmBBR)
	now := time.Unix(0, 0)
	rttSample := 50 * time.Millisecond
	for i := 0; i < 200 && c.Phase() == PhaseSlowStart; i++ {
		c.OnAck(MSS, rttSample, now)
		now = now.Add(rttSample)
	}
	if c.Phase() != PhaseCongestionAvoidance {
		t.Fatalf("expected transition to CongestionAvoidance, got %v", c.Phase())
	}
	bdp := c.BBRSnapshot().BtlBw * rttSample.Seconds()
	if float64(c.Cwnd()) < 2*bdp-1 {
		t.Errorf("expected cwnd >= 2*BDP at transition, cwnd=%d bdp=%f", c.Cwnd(), bdp)
	}
}

func TestBBROnLoss(t *testing.T) {
	c := NewController(AlgorithmBBR)
	c.BBRSnapshot().Cwnd = 100 * MSS
	c.BBRSnapshot().BtlBw = 1000
	c.OnLoss()
	if c.Phase() != PhaseLossRecovery {
		t.Errorf("expected LossRecovery, got %v", c.Phase())
	}
	if c.Cwnd() != 50*MSS {
		t.Errorf("expected cwnd halved to 50*MSS, got %d", c.Cwnd())
	}
	if c.Ssthresh() != 50*MSS {
		t.Errorf("expected ssthresh=50*MSS, got %d", c.Ssthresh())
	}
}

func TestCubicLossResponse(t *testing.T) {
	c := NewController(AlgorithmCUBIC)
	c.CubicSnapshot().Cwnd = 100 * MSS
	c.OnLoss()
	want := uint32(float64(100*MSS) * 0.7)
	if c.Cwnd() != want {
		t.Errorf("expected cwnd=%d, got %d", want, c.Cwnd())
	}
	if c.Ssthresh() != want {
		t.Errorf("expected ssthresh=%d, got %d", want, c.Ssthresh())
	}
	if c.Phase() != PhaseFastRecovery {
		t.Errorf("expected FastRecovery, got %v", c.Phase())
	}
	if c.CubicSnapshot().Wmax != 100*MSS {
		t.Errorf("expected Wmax=100*MSS, got %d", c.CubicSnapshot().Wmax)
	}
}

func TestCubicSlowStartThenCongestionAvoidance(t *testing.T) {
	c := NewController(AlgorithmCUBIC)
	c.CubicSnapshot().Ssthresh = 11 * MSS // force an early crossing
	now := time.Unix(0, 0)
	for i := 0; i < 10 && c.Phase() == PhaseSlowStart; i++ {
		c.OnAck(MSS, 50*time.Millisecond, now)
		now = now.Add(50 * time.Millisecond)
	}
	if c.Phase() != PhaseCongestionAvoidance {
		t.Fatalf("expected CongestionAvoidance, got %v", c.Phase())
	}
}
