package filtervm

import "github.com/netkit/pktstack/internal/metrics"

// Interpret runs p against packet and returns the verdict register value
// at the point execution halted. p must have already passed Verify;
// Interpret does not re-run the static checks, only the dynamic ones
// (memory bounds, division by zero, step count).
func Interpret(p *Program, packet []byte) (int64, error) {
	verdict, err := interpret(p, packet)
	metrics.VMExecutionTotal.WithLabelValues(outcomeLabel(err)).Inc()
	return verdict, err
}

func outcomeLabel(err error) string {
	switch err {
	case nil:
		return "ok"
	case ErrOutOfBoundsMemoryAccess:
		return "out_of_bounds"
	case ErrDivisionByZero:
		return "division_by_zero"
	case ErrMaximumIterationsExceeded:
		return "step_cap_exceeded"
	default:
		return "error"
	}
}

func interpret(p *Program, packet []byte) (int64, error) {
	var regs [NumRegisters]int64
	pc := 0
	steps := 0

	for {
		if pc < 0 || pc >= len(p.Instructions) {
			return regs[0], nil
		}
		if steps >= MaxSteps {
			return 0, ErrMaximumIterationsExceeded
		}
		steps++

		ins := p.Instructions[pc]
		next := pc + 1

		switch ins.Op {
		case OpLoadAbsolute:
			word, err := loadWord(packet, int(ins.Offset))
			if err != nil {
				return 0, err
			}
			regs[0] = word

		case OpLoadIndirect:
			word, err := loadWord(packet, int(ins.Offset)+int(regs[ins.Reg]))
			if err != nil {
				return 0, err
			}
			regs[0] = word

		case OpLoadRegister:
			regs[ins.Dst] = regs[ins.Src]

		case OpStore:
			regs[ins.Reg] = ins.Imm

		case OpAdd:
			regs[ins.Dst] = int64(uint64(regs[ins.Dst]) + uint64(regs[ins.Src]))
		case OpSub:
			regs[ins.Dst] = int64(uint64(regs[ins.Dst]) - uint64(regs[ins.Src]))
		case OpMul:
			regs[ins.Dst] = int64(uint64(regs[ins.Dst]) * uint64(regs[ins.Src]))
		case OpDiv:
			if regs[ins.Src] == 0 {
				return 0, ErrDivisionByZero
			}
			regs[ins.Dst] = regs[ins.Dst] / regs[ins.Src]
		case OpAnd:
			regs[ins.Dst] = regs[ins.Dst] & regs[ins.Src]
		case OpOr:
			regs[ins.Dst] = regs[ins.Dst] | regs[ins.Src]
		case OpXor:
			regs[ins.Dst] = regs[ins.Dst] ^ regs[ins.Src]
		case OpShl:
			regs[ins.Dst] = int64(uint64(regs[ins.Dst]) << uint(regs[ins.Src]))
		case OpShr:
			regs[ins.Dst] = int64(uint64(regs[ins.Dst]) >> uint(regs[ins.Src]))

		case OpJumpEqual:
			if regs[ins.Reg] == ins.Imm {
				next = pc + 1 + int(ins.Offset)
			}
		case OpJumpNotEqual:
			if regs[ins.Reg] != ins.Imm {
				next = pc + 1 + int(ins.Offset)
			}
		case OpJumpGreater:
			if regs[ins.Reg] > ins.Imm {
				next = pc + 1 + int(ins.Offset)
			}
		case OpJumpLess:
			if regs[ins.Reg] < ins.Imm {
				next = pc + 1 + int(ins.Offset)
			}
		case OpJump:
			next = pc + 1 + int(ins.Offset)

		case OpReturn:
			return regs[ins.Reg], nil
		case OpExit:
			return regs[0], nil
		case OpCall:
			// No helper functions are wired up; Call consumes a step and
			// falls through.
		}

		pc = next
	}
}

// loadWord reads a big-endian 32-bit word from packet at offset, bounds
// checked against the packet's actual length.
func loadWord(packet []byte, offset int) (int64, error) {
	if offset < 0 || offset+4 > len(packet) {
		return 0, ErrOutOfBoundsMemoryAccess
	}
	word := uint32(packet[offset])<<24 | uint32(packet[offset+1])<<16 |
		uint32(packet[offset+2])<<8 | uint32(packet[offset+3])
	return int64(word), nil
}
