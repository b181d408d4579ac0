package filtervm

// The canned programs below assume a packet buffer starting at the IPv4
// header with no IP options (a 20-byte IPv4 header), so the TCP header
// begins at byte offset 20. They are meant as worked examples of the
// instruction set, not a general-purpose filter compiler.

// TCPSYNFilter builds a program that returns 1 for a TCP segment with the
// SYN flag set, 0 otherwise.
func TCPSYNFilter() *Program {
	return &Program{
		Name: "tcp-syn-filter",
		Instructions: []Instruction{
			LoadAbsolute(32),    // R0 = word covering the data-offset and flags bytes
			Store(1, 16),        // R1 = 16
			Shr(0, 1),           // R0 >>= 16
			Store(1, 0xFF),      // R1 = 0xFF
			And(0, 1),           // R0 = flags byte
			Store(1, 0x02),      // R1 = SYN bit
			And(0, 1),           // R0 = flags byte & SYN bit
			JumpEqual(0, 0x02, 2),
			Store(0, 0),
			Return(0),
			Store(0, 1),
			Return(0),
		},
	}
}

// TCPPortFilter builds a program that returns 1 when the TCP destination
// port equals port, 0 otherwise.
func TCPPortFilter(port uint16) *Program {
	return &Program{
		Name: "tcp-port-filter",
		Instructions: []Instruction{
			LoadAbsolute(20), // R0 = source port (high 16) | destination port (low 16)
			Store(1, 0xFFFF),
			And(0, 1), // R0 = destination port
			JumpEqual(0, int64(port), 2),
			Store(0, 0),
			Return(0),
			Store(0, 1),
			Return(0),
		},
	}
}
