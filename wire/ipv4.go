package wire

import (
	"encoding/binary"
	"math/rand"

	"github.com/netkit/pktstack/internal/metrics"
)

// IP protocol numbers this package understands.
const (
	ProtocolICMP uint8 = 1
	ProtocolTCP  uint8 = 6
	ProtocolUDP  uint8 = 17
)

// ipv4HeaderMinLen is the minimum IHL of 5 32-bit words.
const ipv4HeaderMinLen = 20

// IPv4Packet is a parsed IPv4 header plus payload. Options are copied as
// opaque bytes; length is derived from IHL.
type IPv4Packet struct {
	Version        uint8
	IHL            uint8 // header length in 32-bit words, >= 5
	DSCP           uint8
	ECN            uint8
	TotalLength    uint16
	Identification uint16
	DontFragment   bool
	MoreFragments  bool
	FragmentOffset uint16
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	Source         [4]byte
	Destination    [4]byte
	Options        []byte
	Payload        []byte
}

// ParseIPv4 parses an IPv4 packet from buf.
func ParseIPv4(buf []byte) (*IPv4Packet, error) {
	if len(buf) < ipv4HeaderMinLen {
		metrics.WireParseTotal.WithLabelValues("ipv4", "invalid_length").Inc()
		return nil, &InvalidLengthError{Observed: len(buf)}
	}
	version := buf[0] >> 4
	if version != 4 {
		metrics.WireParseTotal.WithLabelValues("ipv4", "invalid_version").Inc()
		return nil, ErrInvalidVersion
	}
	ihl := buf[0] & 0x0F
	headerLen := int(ihl) * 4
	if headerLen < ipv4HeaderMinLen || len(buf) < headerLen {
		metrics.WireParseTotal.WithLabelValues("ipv4", "invalid_length").Inc()
		return nil, &InvalidLengthError{Observed: len(buf)}
	}

	flagsAndOffset := binary.BigEndian.Uint16(buf[6:8])
	protocol := buf[9]
	switch protocol {
	case ProtocolICMP, ProtocolTCP, ProtocolUDP:
	default:
		metrics.WireParseTotal.WithLabelValues("ipv4", "unsupported_protocol").Inc()
		return nil, &UnsupportedProtocolError{Value: protocol}
	}

	if flagsAndOffset&0x2000 != 0 || flagsAndOffset&0x1FFF != 0 {
		metrics.WireParseTotal.WithLabelValues("ipv4", "fragmented").Inc()
		return nil, ErrFragmentationNotSupported
	}

	p := &IPv4Packet{
		Version:        version,
		IHL:            ihl,
		DSCP:           buf[1] >> 2,
		ECN:            buf[1] & 0x03,
		TotalLength:    binary.BigEndian.Uint16(buf[2:4]),
		Identification: binary.BigEndian.Uint16(buf[4:6]),
		DontFragment:   flagsAndOffset&0x4000 != 0,
		MoreFragments:  flagsAndOffset&0x2000 != 0,
		FragmentOffset: flagsAndOffset & 0x1FFF,
		TTL:            buf[8],
		Protocol:       protocol,
		Checksum:       binary.BigEndian.Uint16(buf[10:12]),
	}
	copy(p.Source[:], buf[12:16])
	copy(p.Destination[:], buf[16:20])
	p.Options = append([]byte(nil), buf[20:headerLen]...)
	p.Payload = append([]byte(nil), buf[headerLen:]...)
	metrics.WireParseTotal.WithLabelValues("ipv4", "ok").Inc()
	return p, nil
}

// randUint16 is the pseudorandom source for Identification. A deterministic
// seed is acceptable for tests; production should draw from a platform
// entropy source, which math/rand's top-level functions do since Go 1.20.
var randUint16 = func() uint16 {
	return uint16(rand.Intn(1 << 16))
}

// Serialize lays out the header at fixed offsets, zeroing the checksum
// field during layout and overwriting it in a second pass. Identification
// is sampled fresh per call unless already non-zero.
func (p *IPv4Packet) Serialize() []byte {
	headerLen := int(p.IHL) * 4
	if headerLen < ipv4HeaderMinLen {
		headerLen = ipv4HeaderMinLen
		p.IHL = 5
	}
	totalLen := headerLen + len(p.Payload)
	out := make([]byte, totalLen)

	out[0] = (p.Version << 4) | (p.IHL & 0x0F)
	out[1] = (p.DSCP << 2) | (p.ECN & 0x03)
	p.TotalLength = uint16(totalLen)
	binary.BigEndian.PutUint16(out[2:4], p.TotalLength)
	if p.Identification == 0 {
		p.Identification = randUint16()
	}
	binary.BigEndian.PutUint16(out[4:6], p.Identification)
	flagsAndOffset := p.FragmentOffset & 0x1FFF
	if p.DontFragment {
		flagsAndOffset |= 0x4000
	}
	if p.MoreFragments {
		flagsAndOffset |= 0x2000
	}
	binary.BigEndian.PutUint16(out[6:8], flagsAndOffset)
	out[8] = p.TTL
	out[9] = p.Protocol
	// Checksum field (10:12) left zero for the sum pass below.
	copy(out[12:16], p.Source[:])
	copy(out[16:20], p.Destination[:])
	copy(out[20:headerLen], p.Options)
	copy(out[headerLen:], p.Payload)

	p.Checksum = InternetChecksum(out[:headerLen])
	binary.BigEndian.PutUint16(out[10:12], p.Checksum)
	return out
}

// VerifyChecksum reports whether the one's-complement sum over the
// serialized header (including the checksum field as transmitted) is zero.
func (p *IPv4Packet) VerifyChecksum() bool {
	headerLen := int(p.IHL) * 4
	header := make([]byte, headerLen)
	header[0] = (p.Version << 4) | (p.IHL & 0x0F)
	header[1] = (p.DSCP << 2) | (p.ECN & 0x03)
	binary.BigEndian.PutUint16(header[2:4], p.TotalLength)
	binary.BigEndian.PutUint16(header[4:6], p.Identification)
	flagsAndOffset := p.FragmentOffset & 0x1FFF
	if p.DontFragment {
		flagsAndOffset |= 0x4000
	}
	if p.MoreFragments {
		flagsAndOffset |= 0x2000
	}
	binary.BigEndian.PutUint16(header[6:8], flagsAndOffset)
	header[8] = p.TTL
	header[9] = p.Protocol
	binary.BigEndian.PutUint16(header[10:12], p.Checksum)
	copy(header[12:16], p.Source[:])
	copy(header[16:20], p.Destination[:])
	copy(header[20:], p.Options)

	ok := InternetChecksum(header) == 0
	if !ok {
		metrics.ChecksumMismatchTotal.WithLabelValues("ipv4").Inc()
	}
	return ok
}
