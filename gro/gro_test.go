package gro

import (
	"testing"
	"time"

	"github.com/netkit/pktstack/wire"
)

// fixedClock pins an aggregator's clock so the 100us aggregation timeout
// can't fire mid-test on a slow machine.
func fixedClock(a *Aggregator) *time.Time {
	now := time.Unix(0, 0)
	a.now = func() time.Time { return now }
	return &now
}

func tuple() wire.FlowKey {
	return wire.FlowKey{
		SrcIP: [4]byte{192, 168, 1, 100}, DstIP: [4]byte{192, 168, 1, 1},
		SrcPort: 12345, DstPort: 80, Protocol: wire.ProtocolTCP,
	}
}

func seg(seqNum uint32, payloadLen int) *wire.TCPSegment {
	return &wire.TCPSegment{
		SequenceNumber: seqNum,
		Flags:          wire.TCPFlags{ACK: true, PSH: true},
		Payload:        make([]byte, payloadLen),
	}
}

func TestGROMergeContiguous(t *testing.T) {
	a := NewAggregator()
	fixedClock(a)
	key := tuple()
	for _, s := range []uint32{1000, 1100, 1200} {
		if flushed, did := a.Aggregate(key, seg(s, 100)); did {
			t.Fatalf("unexpected flush while aggregating contiguous segments: %+v", flushed)
		}
	}
	out := a.FlushAll()
	if len(out) != 1 {
		t.Fatalf("expected 1 merged segment, got %d", len(out))
	}
	if out[0].SequenceNumber != 1000 || len(out[0].Payload) != 300 {
		t.Errorf("expected seq=1000 len=300, got seq=%d len=%d", out[0].SequenceNumber, len(out[0].Payload))
	}
}

func TestGRONonContiguousSegmentFlushesAndStartsNewFlow(t *testing.T) {
	a := NewAggregator()
	fixedClock(a)
	key := tuple()
	a.Aggregate(key, seg(1000, 100))
	a.Aggregate(key, seg(1100, 100))
	a.Aggregate(key, seg(1200, 100))
	// A gap: seq should have been 1300, not 1301.
	flushed, did := a.Aggregate(key, seg(1301, 50))
	if !did {
		t.Fatalf("expected a flush on the non-contiguous segment")
	}
	if flushed.SequenceNumber != 1000 || len(flushed.Payload) != 300 {
		t.Errorf("expected flushed seq=1000 len=300, got seq=%d len=%d", flushed.SequenceNumber, len(flushed.Payload))
	}
	// The gapped segment should have started its own new flow.
	out := a.FlushAll()
	if len(out) != 1 || out[0].SequenceNumber != 1301 {
		t.Fatalf("expected new flow starting at 1301, got %+v", out)
	}
}

func TestGROSYNFlagsNotAggregated(t *testing.T) {
	a := NewAggregator()
	fixedClock(a)
	key := tuple()
	a.Aggregate(key, seg(1000, 10))
	s := seg(1010, 10)
	s.Flags.SYN = true
	flushed, did := a.Aggregate(key, s)
	if !did || flushed.SequenceNumber != 1000 {
		t.Fatalf("expected the SYN segment to be refused and the live flow flushed, got did=%v flushed=%+v", did, flushed)
	}
}

func TestLRODisabledPassesThrough(t *testing.T) {
	l := NewLRO()
	key := tuple()
	s := seg(1000, 10)
	out, did := l.Aggregate(key, s)
	if !did || out != s {
		t.Errorf("expected disabled LRO to pass the segment through unchanged")
	}
}

func TestLROEnabledAggregates(t *testing.T) {
	l := NewLRO()
	l.SetEnabled(true)
	fixedClock(l.aggregator)
	key := tuple()
	l.Aggregate(key, seg(1000, 100))
	if _, did := l.Aggregate(key, seg(1100, 100)); did {
		t.Errorf("expected contiguous segment to be absorbed, not flushed")
	}
}

func TestGROFlushTimeouts(t *testing.T) {
	a := NewAggregator()
	now := fixedClock(a)
	a.Aggregate(tuple(), seg(1000, 100))

	young := tuple()
	young.DstPort = 443
	*now = now.Add(50 * time.Microsecond)
	a.Aggregate(young, seg(5000, 100))

	*now = now.Add(60 * time.Microsecond)
	out := a.FlushTimeouts()
	if len(out) != 1 || out[0].SequenceNumber != 1000 {
		t.Fatalf("expected only the aged flow flushed, got %+v", out)
	}
	rest := a.FlushAll()
	if len(rest) != 1 || rest[0].SequenceNumber != 5000 {
		t.Fatalf("expected the young flow still live, got %+v", rest)
	}
}

func TestGROTimedOutFlowFlushesOnAggregate(t *testing.T) {
	a := NewAggregator()
	now := fixedClock(a)
	key := tuple()
	a.Aggregate(key, seg(1000, 100))
	*now = now.Add(200 * time.Microsecond)
	flushed, did := a.Aggregate(key, seg(1100, 100))
	if !did || flushed.SequenceNumber != 1000 {
		t.Fatalf("expected the aged flow to flush even for a contiguous segment, got did=%v flushed=%+v", did, flushed)
	}
}
