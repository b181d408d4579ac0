package wire

import (
	"testing"

	"github.com/go-test/deep"
)

func TestEthernetRoundTrip(t *testing.T) {
	f := &EthernetFrame{
		Destination: MacAddress{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		Source:      MacAddress{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		EtherType:   EtherTypeIPv4,
		Payload:     []byte("hello"),
	}
	got, err := ParseEthernet(f.Serialize())
	if err != nil {
		t.Fatalf("ParseEthernet: %v", err)
	}
	if diff := deep.Equal(f, got); diff != nil {
		t.Errorf("round trip mismatch: %v", diff)
	}
}

func TestEthernetInvalidLength(t *testing.T) {
	_, err := ParseEthernet(make([]byte, 10))
	if _, ok := err.(*InvalidLengthError); !ok {
		t.Errorf("expected InvalidLengthError, got %v", err)
	}
}

func TestEthernetUnsupportedEtherType(t *testing.T) {
	buf := make([]byte, 14)
	buf[12] = 0x88
	buf[13] = 0x08 // 802.1Q, not supported
	_, err := ParseEthernet(buf)
	if _, ok := err.(*UnsupportedEtherTypeError); !ok {
		t.Errorf("expected UnsupportedEtherTypeError, got %v", err)
	}
}

func TestIPv4RoundTripAndChecksum(t *testing.T) {
	p := &IPv4Packet{
		Version:     4,
		IHL:         5,
		TTL:         64,
		Protocol:    ProtocolTCP,
		Source:      [4]byte{192, 168, 1, 100},
		Destination: [4]byte{192, 168, 1, 1},
		Payload:     []byte("Hello, TCP!"),
	}
	wire := p.Serialize()
	got, err := ParseIPv4(wire)
	if err != nil {
		t.Fatalf("ParseIPv4: %v", err)
	}
	if diff := deep.Equal(p, got); diff != nil {
		t.Errorf("round trip mismatch: %v", diff)
	}
	if !got.VerifyChecksum() {
		t.Errorf("expected checksum to verify")
	}
}

func TestIPv4ChecksumSensitivity(t *testing.T) {
	p := &IPv4Packet{
		Version: 4, IHL: 5, TTL: 64, Protocol: ProtocolUDP,
		Source: [4]byte{10, 0, 0, 1}, Destination: [4]byte{10, 0, 0, 2},
	}
	wire := p.Serialize()
	for bit := 0; bit < 8*20; bit++ {
		corrupted := append([]byte(nil), wire...)
		byteIdx, bitIdx := bit/8, uint(bit%8)
		if byteIdx == 10 || byteIdx == 11 {
			continue // flipping the checksum field itself can still "verify" trivially in some cases
		}
		corrupted[byteIdx] ^= 1 << bitIdx
		pkt, err := ParseIPv4(corrupted)
		if err != nil {
			continue
		}
		if pkt.VerifyChecksum() {
			t.Errorf("bit %d: expected checksum mismatch after corruption", bit)
		}
	}
}

func TestIPv4UnsupportedProtocol(t *testing.T) {
	p := &IPv4Packet{Version: 4, IHL: 5, TTL: 64, Protocol: 99}
	wire := p.Serialize()
	_, err := ParseIPv4(wire)
	uerr, ok := err.(*UnsupportedProtocolError)
	if !ok {
		t.Fatalf("expected UnsupportedProtocolError, got %v", err)
	}
	if uerr.Value != 99 {
		t.Errorf("expected value 99, got %d", uerr.Value)
	}
}

func TestIPv4FragmentedPacketRejected(t *testing.T) {
	p := &IPv4Packet{
		Version: 4, IHL: 5, TTL: 64, Protocol: ProtocolUDP,
		Source: [4]byte{10, 0, 0, 1}, Destination: [4]byte{10, 0, 0, 2},
		MoreFragments: true,
	}
	buf := p.Serialize()
	if _, err := ParseIPv4(buf); err != ErrFragmentationNotSupported {
		t.Errorf("expected ErrFragmentationNotSupported for MF set, got %v", err)
	}

	p2 := &IPv4Packet{
		Version: 4, IHL: 5, TTL: 64, Protocol: ProtocolUDP,
		Source: [4]byte{10, 0, 0, 1}, Destination: [4]byte{10, 0, 0, 2},
		FragmentOffset: 10,
	}
	buf2 := p2.Serialize()
	if _, err := ParseIPv4(buf2); err != ErrFragmentationNotSupported {
		t.Errorf("expected ErrFragmentationNotSupported for non-zero fragment offset, got %v", err)
	}
}

func TestIPv4InvalidVersion(t *testing.T) {
	buf := make([]byte, 20)
	buf[0] = 0x55 // version 5
	_, err := ParseIPv4(buf)
	if err != ErrInvalidVersion {
		t.Errorf("expected ErrInvalidVersion, got %v", err)
	}
}

func TestTCPRoundTrip(t *testing.T) {
	ctx := IPEndpoints{Source: [4]byte{192, 168, 1, 100}, Destination: [4]byte{192, 168, 1, 1}}
	s := &TCPSegment{
		SourcePort: 12345, DestinationPort: 80,
		SequenceNumber: 1000, AckNumber: 0,
		DataOffset: 5,
		Flags:      TCPFlags{SYN: true},
		Window:     65535,
		Payload:    []byte("Hello, TCP!"),
	}
	wire := s.Serialize(ctx)
	got, err := ParseTCP(wire)
	if err != nil {
		t.Fatalf("ParseTCP: %v", err)
	}
	if diff := deep.Equal(s, got); diff != nil {
		t.Errorf("round trip mismatch: %v", diff)
	}
	if !got.VerifyChecksum(ctx) {
		t.Errorf("expected TCP checksum to verify")
	}
}

func TestUDPRoundTripAndChecksum(t *testing.T) {
	ctx := IPEndpoints{Source: [4]byte{10, 0, 0, 1}, Destination: [4]byte{10, 0, 0, 2}}
	d := &UDPDatagram{
		SourcePort: 53000, DestinationPort: 53,
		Payload: []byte("DNS Query Data"),
	}
	wire := d.Serialize(ctx)
	got, err := ParseUDP(wire)
	if err != nil {
		t.Fatalf("ParseUDP: %v", err)
	}
	if diff := deep.Equal(d, got); diff != nil {
		t.Errorf("round trip mismatch: %v", diff)
	}
	if !got.VerifyChecksum(ctx) {
		t.Errorf("expected UDP checksum to verify")
	}
}

func TestUDPZeroChecksumNotComputed(t *testing.T) {
	d := &UDPDatagram{SourcePort: 1, DestinationPort: 2, Checksum: 0, Length: 8}
	if !d.VerifyChecksum(IPEndpoints{}) {
		t.Errorf("a zero wire checksum must always verify")
	}
}

func TestQUICFrameRoundTrip(t *testing.T) {
	f, err := ParseQUIC([]byte{0x40, 0x01, 0x02})
	if err != nil {
		t.Fatalf("ParseQUIC: %v", err)
	}
	got := f.Serialize()
	if len(got) != 3 || got[0] != 0x40 {
		t.Errorf("unexpected serialized frame: %v", got)
	}
}

func TestQUICStreamFlowControl(t *testing.T) {
	s := NewQUICStreamSet(100)
	if err := s.Append(4, 10); err != ErrStreamNotFound {
		t.Fatalf("Append to an unopened stream = %v, want ErrStreamNotFound", err)
	}
	s.OpenStream(4)
	if err := s.Append(4, 60); err != nil {
		t.Fatalf("Append within the limit: %v", err)
	}
	if err := s.Append(4, 50); err != ErrFlowControlExceeded {
		t.Fatalf("Append past the limit = %v, want ErrFlowControlExceeded", err)
	}
	offset, err := s.Offset(4)
	if err != nil || offset != 60 {
		t.Errorf("Offset = %d, %v; a rejected append must not advance the offset", offset, err)
	}
	if err := s.Append(4, 40); err != nil {
		t.Errorf("Append up to exactly the limit: %v", err)
	}
	if err := s.CloseStream(4); err != nil {
		t.Errorf("CloseStream: %v", err)
	}
	if _, err := s.Offset(4); err != ErrStreamNotFound {
		t.Errorf("Offset after close = %v, want ErrStreamNotFound", err)
	}
}

func TestEndToEndIPv4TCPScenario(t *testing.T) {
	tcpCtx := IPEndpoints{Source: [4]byte{192, 168, 1, 100}, Destination: [4]byte{192, 168, 1, 1}}
	tcpSeg := &TCPSegment{
		SourcePort: 12345, DestinationPort: 80,
		SequenceNumber: 1000, Flags: TCPFlags{SYN: true}, Window: 65535,
		Payload: []byte("Hello, TCP!"),
	}
	tcpBytes := tcpSeg.Serialize(tcpCtx)

	ip := &IPv4Packet{
		Version: 4, IHL: 5, TTL: 64, Protocol: ProtocolTCP,
		Source: tcpCtx.Source, Destination: tcpCtx.Destination,
		Payload: tcpBytes,
	}
	ipBytes := ip.Serialize()

	eth := &EthernetFrame{
		Destination: MacAddress{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		Source:      MacAddress{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		EtherType:   EtherTypeIPv4,
		Payload:     ipBytes,
	}
	ethBytes := eth.Serialize()

	gotEth, err := ParseEthernet(ethBytes)
	if err != nil {
		t.Fatalf("ParseEthernet: %v", err)
	}
	gotIP, err := ParseIPv4(gotEth.Payload)
	if err != nil {
		t.Fatalf("ParseIPv4: %v", err)
	}
	if !gotIP.VerifyChecksum() {
		t.Errorf("expected IPv4 checksum to verify")
	}
	gotTCP, err := ParseTCP(gotIP.Payload)
	if err != nil {
		t.Fatalf("ParseTCP: %v", err)
	}
	if gotTCP.SequenceNumber != 1000 || string(gotTCP.Payload) != "Hello, TCP!" {
		t.Errorf("unexpected TCP fields: %+v", gotTCP)
	}
}
