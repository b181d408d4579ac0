package filtervm

// NumRegisters is the size of the VM's register file, R0..R15.
const NumRegisters = 16

// MaxProgramLength is the maximum number of instructions a well-formed
// program may contain.
const MaxProgramLength = 4096

// MaxSteps bounds interpreter execution: exceeding it traps
// ErrMaximumIterationsExceeded. This is the VM's only cancellation
// mechanism.
const MaxSteps = 10000

// Opcode identifies an instruction's operation.
type Opcode uint8

// Supported opcodes.
const (
	OpLoadAbsolute Opcode = iota
	OpLoadIndirect
	OpLoadRegister
	OpStore
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpJumpEqual
	OpJumpNotEqual
	OpJumpGreater
	OpJumpLess
	OpJump
	OpReturn
	OpExit
	OpCall
)

// Instruction is a single VM instruction. Not every field is meaningful
// for every opcode; see the constructor functions below for the field an
// opcode actually uses.
type Instruction struct {
	Op     Opcode
	Dst    uint8
	Src    uint8
	Reg    uint8
	Offset int32 // packet byte offset (loads) or relative jump distance
	Imm    int64
	CallID uint32
}

// LoadAbsolute loads the big-endian 32-bit word at the given packet offset
// into R0.
func LoadAbsolute(offset int32) Instruction {
	return Instruction{Op: OpLoadAbsolute, Offset: offset}
}

// LoadIndirect loads the big-endian 32-bit word at offset+R[reg] into R0.
func LoadIndirect(offset int32, reg uint8) Instruction {
	return Instruction{Op: OpLoadIndirect, Offset: offset, Reg: reg}
}

// LoadRegister copies R[src] into R[dst].
func LoadRegister(dst, src uint8) Instruction {
	return Instruction{Op: OpLoadRegister, Dst: dst, Src: src}
}

// Store sets R[reg] to the literal imm.
func Store(reg uint8, imm int64) Instruction {
	return Instruction{Op: OpStore, Reg: reg, Imm: imm}
}

// Add sets R[dst] <- R[dst] + R[src] with wrapping arithmetic.
func Add(dst, src uint8) Instruction { return Instruction{Op: OpAdd, Dst: dst, Src: src} }

// Sub sets R[dst] <- R[dst] - R[src] with wrapping arithmetic.
func Sub(dst, src uint8) Instruction { return Instruction{Op: OpSub, Dst: dst, Src: src} }

// Mul sets R[dst] <- R[dst] * R[src] with wrapping arithmetic.
func Mul(dst, src uint8) Instruction { return Instruction{Op: OpMul, Dst: dst, Src: src} }

// Div sets R[dst] <- R[dst] / R[src]; traps ErrDivisionByZero if R[src]==0.
func Div(dst, src uint8) Instruction { return Instruction{Op: OpDiv, Dst: dst, Src: src} }

// And sets R[dst] <- R[dst] & R[src].
func And(dst, src uint8) Instruction { return Instruction{Op: OpAnd, Dst: dst, Src: src} }

// Or sets R[dst] <- R[dst] | R[src].
func Or(dst, src uint8) Instruction { return Instruction{Op: OpOr, Dst: dst, Src: src} }

// Xor sets R[dst] <- R[dst] ^ R[src].
func Xor(dst, src uint8) Instruction { return Instruction{Op: OpXor, Dst: dst, Src: src} }

// Shl sets R[dst] <- R[dst] << R[src].
func Shl(dst, src uint8) Instruction { return Instruction{Op: OpShl, Dst: dst, Src: src} }

// Shr sets R[dst] <- R[dst] >> R[src].
func Shr(dst, src uint8) Instruction { return Instruction{Op: OpShr, Dst: dst, Src: src} }

// JumpEqual jumps offset instructions (relative to the instruction after
// this one) if R[reg] == imm.
func JumpEqual(reg uint8, imm int64, offset int32) Instruction {
	return Instruction{Op: OpJumpEqual, Reg: reg, Imm: imm, Offset: offset}
}

// JumpNotEqual jumps if R[reg] != imm.
func JumpNotEqual(reg uint8, imm int64, offset int32) Instruction {
	return Instruction{Op: OpJumpNotEqual, Reg: reg, Imm: imm, Offset: offset}
}

// JumpGreater jumps if R[reg] > imm.
func JumpGreater(reg uint8, imm int64, offset int32) Instruction {
	return Instruction{Op: OpJumpGreater, Reg: reg, Imm: imm, Offset: offset}
}

// JumpLess jumps if R[reg] < imm.
func JumpLess(reg uint8, imm int64, offset int32) Instruction {
	return Instruction{Op: OpJumpLess, Reg: reg, Imm: imm, Offset: offset}
}

// Jump unconditionally jumps offset instructions, relative to the
// instruction after this one.
func Jump(offset int32) Instruction {
	return Instruction{Op: OpJump, Offset: offset}
}

// Return halts execution and yields R[reg] as the verdict.
func Return(reg uint8) Instruction {
	return Instruction{Op: OpReturn, Reg: reg}
}

// Exit halts execution and yields R0 as the verdict.
func Exit() Instruction {
	return Instruction{Op: OpExit}
}

// Call is a no-op placeholder for a future helper-function call
// mechanism; it consumes one step and otherwise does nothing.
func Call(id uint32) Instruction {
	return Instruction{Op: OpCall, CallID: id}
}

// isTerminator reports whether ins halts execution.
func (ins Instruction) isTerminator() bool {
	return ins.Op == OpReturn || ins.Op == OpExit
}

// isJump reports whether ins is a jump (conditional or unconditional).
func (ins Instruction) isJump() bool {
	switch ins.Op {
	case OpJumpEqual, OpJumpNotEqual, OpJumpGreater, OpJumpLess, OpJump:
		return true
	default:
		return false
	}
}

// Program is a named, ordered sequence of instructions.
type Program struct {
	Name         string
	Instructions []Instruction
}
