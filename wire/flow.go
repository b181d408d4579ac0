package wire

// FlowKey is the five-tuple identifying a flow for offload and analysis
// purposes: source/destination IP, source/destination port, and protocol.
type FlowKey struct {
	SrcIP    [4]byte
	DstIP    [4]byte
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// TCPFlowKey derives the flow key for a TCP segment observed within the
// given IPv4 endpoints.
func TCPFlowKey(ip *IPv4Packet, seg *TCPSegment) FlowKey {
	return FlowKey{
		SrcIP: ip.Source, DstIP: ip.Destination,
		SrcPort: seg.SourcePort, DstPort: seg.DestinationPort,
		Protocol: ProtocolTCP,
	}
}

// UDPFlowKey derives the flow key for a UDP datagram observed within the
// given IPv4 endpoints.
func UDPFlowKey(ip *IPv4Packet, dg *UDPDatagram) FlowKey {
	return FlowKey{
		SrcIP: ip.Source, DstIP: ip.Destination,
		SrcPort: dg.SourcePort, DstPort: dg.DestinationPort,
		Protocol: ProtocolUDP,
	}
}
