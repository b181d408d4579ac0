// Package capture implements packet capture: a filtered, bounded ring of
// recent packets, a flow/protocol analyzer, and a classic PCAP file
// writer (optionally piped through an external zstd process).
package capture

import (
	"sync"
	"time"

	"github.com/netkit/pktstack/filtervm"
	"github.com/netkit/pktstack/internal/metrics"
	"github.com/netkit/pktstack/wire"
)

// Record is one captured packet: the raw Ethernet frame bytes observed
// on the wire plus the time they were captured.
type Record struct {
	Timestamp time.Time
	Data      []byte
}

// Ring is a bounded, FIFO capture buffer. Only Ethernet frames carrying
// an IPv4 payload are ever considered; everything else is silently not
// kept. A considered frame is then run through the ring's structured
// Filter (if any) and every configured filtervm Program (if any), all
// with AND semantics — every check must pass for the frame to be kept.
// When the ring is at capacity, the oldest record is evicted to make
// room for the newest.
type Ring struct {
	mu       sync.Mutex
	records  []Record
	capacity int
	filter   *Filter
	programs []*filtervm.Program
	now      func() time.Time
}

// NewRing creates a capture ring holding up to capacity records. filter
// may be nil to impose no structured constraint; programs are additional
// filtervm bytecode filters evaluated over the frame's IPv4 packet (the
// Ethernet payload), all
// of which must return a non-zero verdict for a frame to be kept.
func NewRing(capacity int, filter *Filter, programs ...*filtervm.Program) *Ring {
	return &Ring{
		capacity: capacity,
		filter:   filter,
		programs: programs,
		now:      time.Now,
	}
}

// Offer parses frame as an Ethernet frame and, only if it carries an
// IPv4 payload, evaluates it against the ring's structured filter and
// filtervm programs. If every check passes, frame is appended to the
// ring, evicting the oldest record first if the ring is full. It
// reports whether the frame was kept.
func (r *Ring) Offer(frame []byte) (bool, error) {
	eth, err := wire.ParseEthernet(frame)
	if err != nil || eth.EtherType != wire.EtherTypeIPv4 {
		return false, nil
	}
	ip, err := wire.ParseIPv4(eth.Payload)
	if err != nil {
		return false, nil
	}

	var srcPort, dstPort uint16
	havePorts := false
	switch ip.Protocol {
	case wire.ProtocolTCP:
		if seg, err := wire.ParseTCP(ip.Payload); err == nil {
			srcPort, dstPort, havePorts = seg.SourcePort, seg.DestinationPort, true
		}
	case wire.ProtocolUDP:
		if dg, err := wire.ParseUDP(ip.Payload); err == nil {
			srcPort, dstPort, havePorts = dg.SourcePort, dg.DestinationPort, true
		}
	}
	if !r.filter.match(ip, srcPort, dstPort, havePorts) {
		return false, nil
	}

	for _, p := range r.programs {
		// Canned filtervm programs are built against an IPv4-at-offset-0
		// layout; hand them the IP packet, not the Ethernet frame.
		verdict, err := filtervm.Interpret(p, eth.Payload)
		if err != nil {
			return false, err
		}
		if verdict == 0 {
			return false, nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) >= r.capacity {
		r.records = r.records[1:]
		metrics.CaptureDroppedTotal.Inc()
	}
	r.records = append(r.records, Record{Timestamp: r.now(), Data: append([]byte(nil), frame...)})
	return true, nil
}

// Snapshot returns a copy of the records currently held, oldest first.
func (r *Ring) Snapshot() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Len reports how many records the ring currently holds.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
