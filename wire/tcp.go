package wire

import (
	"encoding/binary"

	"github.com/netkit/pktstack/internal/metrics"
)

// tcpHeaderMinLen is the minimum TCP header length: a data offset of 5
// 32-bit words.
const tcpHeaderMinLen = 20

// TCPFlags holds the six TCP control bits, wire-order low-to-high: FIN,
// SYN, RST, PSH, ACK, URG.
type TCPFlags struct {
	FIN bool
	SYN bool
	RST bool
	PSH bool
	ACK bool
	URG bool
}

func (f TCPFlags) encode() uint8 {
	var b uint8
	if f.FIN {
		b |= 0x01
	}
	if f.SYN {
		b |= 0x02
	}
	if f.RST {
		b |= 0x04
	}
	if f.PSH {
		b |= 0x08
	}
	if f.ACK {
		b |= 0x10
	}
	if f.URG {
		b |= 0x20
	}
	return b
}

func decodeTCPFlags(b uint8) TCPFlags {
	return TCPFlags{
		FIN: b&0x01 != 0,
		SYN: b&0x02 != 0,
		RST: b&0x04 != 0,
		PSH: b&0x08 != 0,
		ACK: b&0x10 != 0,
		URG: b&0x20 != 0,
	}
}

// IPEndpoints is the pair of IPv4 addresses needed to build the pseudo
// header for TCP/UDP checksums.
type IPEndpoints struct {
	Source      [4]byte
	Destination [4]byte
}

// TCPSegment is a parsed TCP segment.
type TCPSegment struct {
	SourcePort      uint16
	DestinationPort uint16
	SequenceNumber  uint32
	AckNumber       uint32
	DataOffset      uint8 // in 32-bit words, >= 5
	Flags           TCPFlags
	Window          uint16
	Checksum        uint16
	UrgentPointer   uint16
	Options         []byte
	Payload         []byte
}

// ParseTCP parses a TCP segment from buf.
func ParseTCP(buf []byte) (*TCPSegment, error) {
	if len(buf) < tcpHeaderMinLen {
		metrics.WireParseTotal.WithLabelValues("tcp", "invalid_length").Inc()
		return nil, &InvalidLengthError{Observed: len(buf)}
	}
	dataOffset := buf[12] >> 4
	headerLen := int(dataOffset) * 4
	if headerLen < tcpHeaderMinLen || len(buf) < headerLen {
		metrics.WireParseTotal.WithLabelValues("tcp", "invalid_length").Inc()
		return nil, &InvalidLengthError{Observed: len(buf)}
	}
	s := &TCPSegment{
		SourcePort:      binary.BigEndian.Uint16(buf[0:2]),
		DestinationPort: binary.BigEndian.Uint16(buf[2:4]),
		SequenceNumber:  binary.BigEndian.Uint32(buf[4:8]),
		AckNumber:       binary.BigEndian.Uint32(buf[8:12]),
		DataOffset:      dataOffset,
		Flags:           decodeTCPFlags(buf[13]),
		Window:          binary.BigEndian.Uint16(buf[14:16]),
		Checksum:        binary.BigEndian.Uint16(buf[16:18]),
		UrgentPointer:   binary.BigEndian.Uint16(buf[18:20]),
	}
	s.Options = append([]byte(nil), buf[20:headerLen]...)
	s.Payload = append([]byte(nil), buf[headerLen:]...)
	metrics.WireParseTotal.WithLabelValues("tcp", "ok").Inc()
	return s, nil
}

// Serialize lays out the segment, computing the checksum over the
// pseudo-header plus the segment using ctx's endpoints.
func (s *TCPSegment) Serialize(ctx IPEndpoints) []byte {
	headerLen := int(s.DataOffset) * 4
	if headerLen < tcpHeaderMinLen {
		headerLen = tcpHeaderMinLen
		s.DataOffset = 5
	}
	out := make([]byte, headerLen+len(s.Payload))
	binary.BigEndian.PutUint16(out[0:2], s.SourcePort)
	binary.BigEndian.PutUint16(out[2:4], s.DestinationPort)
	binary.BigEndian.PutUint32(out[4:8], s.SequenceNumber)
	binary.BigEndian.PutUint32(out[8:12], s.AckNumber)
	out[12] = s.DataOffset << 4
	out[13] = s.Flags.encode()
	binary.BigEndian.PutUint16(out[14:16], s.Window)
	// Checksum field (16:18) left zero for the sum pass below.
	binary.BigEndian.PutUint16(out[18:20], s.UrgentPointer)
	copy(out[20:headerLen], s.Options)
	copy(out[headerLen:], s.Payload)

	s.Checksum = checksumWithPseudoHeader(ctx.Source, ctx.Destination, ProtocolTCP, out)
	binary.BigEndian.PutUint16(out[16:18], s.Checksum)
	return out
}

// VerifyChecksum recomputes the pseudo-header checksum over the serialized
// segment and reports whether it sums to zero.
func (s *TCPSegment) VerifyChecksum(ctx IPEndpoints) bool {
	headerLen := int(s.DataOffset) * 4
	out := make([]byte, headerLen+len(s.Payload))
	binary.BigEndian.PutUint16(out[0:2], s.SourcePort)
	binary.BigEndian.PutUint16(out[2:4], s.DestinationPort)
	binary.BigEndian.PutUint32(out[4:8], s.SequenceNumber)
	binary.BigEndian.PutUint32(out[8:12], s.AckNumber)
	out[12] = s.DataOffset << 4
	out[13] = s.Flags.encode()
	binary.BigEndian.PutUint16(out[14:16], s.Window)
	binary.BigEndian.PutUint16(out[16:18], s.Checksum)
	binary.BigEndian.PutUint16(out[18:20], s.UrgentPointer)
	copy(out[20:headerLen], s.Options)
	copy(out[headerLen:], s.Payload)

	ok := checksumWithPseudoHeader(ctx.Source, ctx.Destination, ProtocolTCP, out) == 0
	if !ok {
		metrics.ChecksumMismatchTotal.WithLabelValues("tcp").Inc()
	}
	return ok
}
