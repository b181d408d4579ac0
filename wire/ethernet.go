package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/netkit/pktstack/internal/metrics"
)

// MacAddress is a 6-octet hardware address.
type MacAddress [6]byte

// Broadcast reports whether the address is the all-ones broadcast address.
func (m MacAddress) Broadcast() bool {
	for _, b := range m {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// Multicast reports whether the address has the multicast bit (the low bit
// of the first octet) set.
func (m MacAddress) Multicast() bool {
	return m[0]&0x01 != 0
}

func (m MacAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// EtherType identifies the payload protocol carried by an Ethernet frame.
type EtherType uint16

// Supported EtherType values.
const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeIPv6 EtherType = 0x86DD
)

// EthernetHeaderLen is the fixed Ethernet II header length: dst MAC, src
// MAC, EtherType.
const EthernetHeaderLen = 14

// EthernetFrame is a parsed Ethernet II frame. No FCS/preamble is
// materialized.
type EthernetFrame struct {
	Destination MacAddress
	Source      MacAddress
	EtherType   EtherType
	Payload     []byte
}

// ParseEthernet parses an Ethernet II frame from buf.
func ParseEthernet(buf []byte) (*EthernetFrame, error) {
	if len(buf) < EthernetHeaderLen {
		metrics.WireParseTotal.WithLabelValues("ethernet", "invalid_length").Inc()
		return nil, &InvalidLengthError{Observed: len(buf)}
	}
	et := EtherType(binary.BigEndian.Uint16(buf[12:14]))
	switch et {
	case EtherTypeIPv4, EtherTypeARP, EtherTypeIPv6:
	default:
		metrics.WireParseTotal.WithLabelValues("ethernet", "unsupported_ethertype").Inc()
		return nil, &UnsupportedEtherTypeError{Value: uint16(et)}
	}
	f := &EthernetFrame{EtherType: et}
	copy(f.Destination[:], buf[0:6])
	copy(f.Source[:], buf[6:12])
	f.Payload = append([]byte(nil), buf[14:]...)
	metrics.WireParseTotal.WithLabelValues("ethernet", "ok").Inc()
	return f, nil
}

// Serialize lays out the frame in network byte order at fixed offsets.
func (f *EthernetFrame) Serialize() []byte {
	out := make([]byte, EthernetHeaderLen+len(f.Payload))
	copy(out[0:6], f.Destination[:])
	copy(out[6:12], f.Source[:])
	binary.BigEndian.PutUint16(out[12:14], uint16(f.EtherType))
	copy(out[14:], f.Payload)
	return out
}
