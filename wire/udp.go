package wire

import (
	"encoding/binary"

	"github.com/netkit/pktstack/internal/metrics"
)

// udpHeaderLen is the fixed UDP header length.
const udpHeaderLen = 8

// UDPDatagram is a parsed UDP datagram.
type UDPDatagram struct {
	SourcePort      uint16
	DestinationPort uint16
	Length          uint16 // header + payload
	Checksum        uint16
	Payload         []byte
}

// ParseUDP parses a UDP datagram from buf.
func ParseUDP(buf []byte) (*UDPDatagram, error) {
	if len(buf) < udpHeaderLen {
		metrics.WireParseTotal.WithLabelValues("udp", "invalid_length").Inc()
		return nil, &InvalidLengthError{Observed: len(buf)}
	}
	d := &UDPDatagram{
		SourcePort:      binary.BigEndian.Uint16(buf[0:2]),
		DestinationPort: binary.BigEndian.Uint16(buf[2:4]),
		Length:          binary.BigEndian.Uint16(buf[4:6]),
		Checksum:        binary.BigEndian.Uint16(buf[6:8]),
	}
	d.Payload = append([]byte(nil), buf[8:]...)
	metrics.WireParseTotal.WithLabelValues("udp", "ok").Inc()
	return d, nil
}

// Serialize lays out the datagram and computes the pseudo-header checksum.
// A computed checksum of zero is transmitted as 0xFFFF, since a zero
// checksum on the wire signals "not computed".
func (d *UDPDatagram) Serialize(ctx IPEndpoints) []byte {
	d.Length = uint16(udpHeaderLen + len(d.Payload))
	out := make([]byte, d.Length)
	binary.BigEndian.PutUint16(out[0:2], d.SourcePort)
	binary.BigEndian.PutUint16(out[2:4], d.DestinationPort)
	binary.BigEndian.PutUint16(out[4:6], d.Length)
	// Checksum field (6:8) left zero for the sum pass below.
	copy(out[8:], d.Payload)

	sum := checksumWithPseudoHeader(ctx.Source, ctx.Destination, ProtocolUDP, out)
	if sum == 0 {
		sum = 0xFFFF
	}
	d.Checksum = sum
	binary.BigEndian.PutUint16(out[6:8], d.Checksum)
	return out
}

// VerifyChecksum reports whether the datagram's checksum verifies. A wire
// checksum of zero always verifies (it signals the sender did not compute
// one).
func (d *UDPDatagram) VerifyChecksum(ctx IPEndpoints) bool {
	if d.Checksum == 0 {
		return true
	}
	out := make([]byte, udpHeaderLen+len(d.Payload))
	binary.BigEndian.PutUint16(out[0:2], d.SourcePort)
	binary.BigEndian.PutUint16(out[2:4], d.DestinationPort)
	binary.BigEndian.PutUint16(out[4:6], d.Length)
	binary.BigEndian.PutUint16(out[6:8], d.Checksum)
	copy(out[8:], d.Payload)

	ok := checksumWithPseudoHeader(ctx.Source, ctx.Destination, ProtocolUDP, out) == 0
	if !ok {
		metrics.ChecksumMismatchTotal.WithLabelValues("udp").Inc()
	}
	return ok
}
