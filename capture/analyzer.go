package capture

import (
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/netkit/pktstack/wire"
)

// FlowStats accumulates per-flow packet and byte counts along with the
// first and last time the flow was observed. The CSV field tags control
// gocsv's marshaling when exporting a flow table.
type FlowStats struct {
	SrcIP     string    `csv:"src_ip"`
	DstIP     string    `csv:"dst_ip"`
	SrcPort   uint16    `csv:"src_port"`
	DstPort   uint16    `csv:"dst_port"`
	Protocol  uint8     `csv:"protocol"`
	Packets   uint64    `csv:"packets"`
	Bytes     uint64    `csv:"bytes"`
	FirstSeen time.Time `csv:"first_seen"`
	LastSeen  time.Time `csv:"last_seen"`
}

// ProtocolStats is the packet and byte count for one IP protocol.
type ProtocolStats struct {
	Packets uint64
	Bytes   uint64
}

// Analyzer maintains running per-protocol counters and a per-flow table
// built from a stream of IPv4 packets.
type Analyzer struct {
	mu         sync.Mutex
	protocols  map[uint8]*ProtocolStats
	flows      map[wire.FlowKey]*FlowStats
	totalBytes uint64
	now        func() time.Time
}

// NewAnalyzer creates an empty Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		protocols: make(map[uint8]*ProtocolStats),
		flows:     make(map[wire.FlowKey]*FlowStats),
		now:       time.Now,
	}
}

// Observe parses frame as an Ethernet frame carrying an IPv4 payload and
// folds it into the protocol counters and flow table. A frame that
// isn't Ethernet-over-IPv4 is not an analyzer error; it's simply outside
// what this package considers (see Ring.Offer's identical gating).
// Packets whose transport layer this package doesn't recognize only
// count toward the protocol counters.
func (a *Analyzer) Observe(frame []byte) error {
	eth, err := wire.ParseEthernet(frame)
	if err != nil || eth.EtherType != wire.EtherTypeIPv4 {
		return nil
	}
	ip, err := wire.ParseIPv4(eth.Payload)
	if err != nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	ps, ok := a.protocols[ip.Protocol]
	if !ok {
		ps = &ProtocolStats{}
		a.protocols[ip.Protocol] = ps
	}
	ps.Packets++
	ps.Bytes += uint64(len(frame))
	a.totalBytes += uint64(len(frame))

	var key wire.FlowKey
	switch ip.Protocol {
	case wire.ProtocolTCP:
		seg, err := wire.ParseTCP(ip.Payload)
		if err != nil {
			return nil
		}
		key = wire.TCPFlowKey(ip, seg)
	case wire.ProtocolUDP:
		dg, err := wire.ParseUDP(ip.Payload)
		if err != nil {
			return nil
		}
		key = wire.UDPFlowKey(ip, dg)
	default:
		return nil
	}

	now := a.now()
	fs, ok := a.flows[key]
	if !ok {
		fs = &FlowStats{
			SrcIP: ipString(key.SrcIP), DstIP: ipString(key.DstIP),
			SrcPort: key.SrcPort, DstPort: key.DstPort, Protocol: key.Protocol,
			FirstSeen: now,
		}
		a.flows[key] = fs
	}
	fs.Packets++
	fs.Bytes += uint64(len(frame))
	fs.LastSeen = now
	return nil
}

// ProtocolCounts returns a snapshot of packet and byte counts by IP
// protocol number.
func (a *Analyzer) ProtocolCounts() map[uint8]ProtocolStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[uint8]ProtocolStats, len(a.protocols))
	for k, v := range a.protocols {
		out[k] = *v
	}
	return out
}

// TotalBytes returns the byte count summed across every observed IPv4
// frame, regardless of transport protocol.
func (a *Analyzer) TotalBytes() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalBytes
}

// TopFlows returns the n flows with the most bytes observed, descending.
// If fewer than n flows exist, all of them are returned.
func (a *Analyzer) TopFlows(n int) []FlowStats {
	a.mu.Lock()
	all := make([]FlowStats, 0, len(a.flows))
	for _, fs := range a.flows {
		all = append(all, *fs)
	}
	a.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Bytes > all[j].Bytes })
	if n < len(all) {
		all = all[:n]
	}
	return all
}

// WriteCSV marshals the full flow table to w in CSV form.
func (a *Analyzer) WriteCSV(w io.Writer) error {
	flows := a.TopFlows(len(a.flows) + 1)
	return gocsv.Marshal(flows, w)
}

func ipString(ip [4]byte) string {
	return net.IP(ip[:]).String()
}
