package capture

import (
	"fmt"
	"net"

	"github.com/netkit/pktstack/wire"
)

// Format renders a captured frame as one human-readable summary line:
//
//	<timestamp> <proto> <src> -> <dst> <size> bytes :<sport> -> :<dport> [<flags>]
//
// with microsecond timestamp precision. The port and flag suffixes only
// appear when the transport layer parses (ports for TCP/UDP, flags for
// TCP). A frame that doesn't parse as Ethernet-over-IPv4 is rendered
// with just its length.
func Format(rec Record) string {
	ts := rec.Timestamp.Format("15:04:05.000000")
	eth, err := wire.ParseEthernet(rec.Data)
	if err != nil || eth.EtherType != wire.EtherTypeIPv4 {
		return fmt.Sprintf("%s unparsed %d bytes", ts, len(rec.Data))
	}
	ip, err := wire.ParseIPv4(eth.Payload)
	if err != nil {
		return fmt.Sprintf("%s unparsed %d bytes", ts, len(rec.Data))
	}

	src := net.IP(ip.Source[:]).String()
	dst := net.IP(ip.Destination[:]).String()

	switch ip.Protocol {
	case wire.ProtocolTCP:
		seg, err := wire.ParseTCP(ip.Payload)
		if err != nil {
			return fmt.Sprintf("%s TCP %s -> %s %d bytes", ts, src, dst, len(rec.Data))
		}
		return fmt.Sprintf("%s TCP %s -> %s %d bytes :%d -> :%d [%s]",
			ts, src, dst, len(rec.Data), seg.SourcePort, seg.DestinationPort, flagString(seg.Flags))
	case wire.ProtocolUDP:
		dg, err := wire.ParseUDP(ip.Payload)
		if err != nil {
			return fmt.Sprintf("%s UDP %s -> %s %d bytes", ts, src, dst, len(rec.Data))
		}
		return fmt.Sprintf("%s UDP %s -> %s %d bytes :%d -> :%d",
			ts, src, dst, len(rec.Data), dg.SourcePort, dg.DestinationPort)
	case wire.ProtocolICMP:
		return fmt.Sprintf("%s ICMP %s -> %s %d bytes", ts, src, dst, len(rec.Data))
	default:
		return fmt.Sprintf("%s proto=%d %s -> %s %d bytes", ts, ip.Protocol, src, dst, len(rec.Data))
	}
}

func flagString(f wire.TCPFlags) string {
	s := ""
	if f.SYN {
		s += "S"
	}
	if f.ACK {
		s += "A"
	}
	if f.FIN {
		s += "F"
	}
	if f.RST {
		s += "R"
	}
	if f.PSH {
		s += "P"
	}
	if f.URG {
		s += "U"
	}
	if s == "" {
		return "."
	}
	return s
}
