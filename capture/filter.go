package capture

import "github.com/netkit/pktstack/wire"

// Filter is the structured capture filter: protocol, source/destination
// IP, and source/destination port, each independently optional. A nil
// field imposes no constraint; all non-nil fields must match (AND
// semantics). Only IPv4-carrying Ethernet frames are ever considered —
// a frame that fails to parse as Ethernet-over-IPv4 never matches,
// regardless of which fields (if any) are set.
type Filter struct {
	Protocol *uint8
	SrcIP    *[4]byte
	DstIP    *[4]byte
	SrcPort  *uint16
	DstPort  *uint16
}

// match reports whether ip, and the transport ports if present, satisfy
// every field f sets.
func (f *Filter) match(ip *wire.IPv4Packet, srcPort, dstPort uint16, havePorts bool) bool {
	if f == nil {
		return true
	}
	if f.Protocol != nil && *f.Protocol != ip.Protocol {
		return false
	}
	if f.SrcIP != nil && *f.SrcIP != ip.Source {
		return false
	}
	if f.DstIP != nil && *f.DstIP != ip.Destination {
		return false
	}
	if f.SrcPort != nil && (!havePorts || *f.SrcPort != srcPort) {
		return false
	}
	if f.DstPort != nil && (!havePorts || *f.DstPort != dstPort) {
		return false
	}
	return true
}
