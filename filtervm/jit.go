package filtervm

// CompiledProgram is the output of the conceptual JIT compiler: a
// placeholder native-code byte sequence plus per-instruction lowering
// descriptors. Nothing in this package executes the emitted bytes;
// Compile exists to demonstrate the translation a real backend would
// perform, and CompiledProgram.Run falls back to the bytecode
// interpreter so the two paths always agree on every input.
type CompiledProgram struct {
	source *Program
	ops    []NativeOp
	code   []byte
}

// NativeOp names the conceptual native operation an instruction would
// lower to. Only the two opcodes the JIT shim recognizes get a dedicated
// mnemonic; everything else lowers to an "unsupported" descriptor and is
// left to the interpreter fallback.
type NativeOp struct {
	Mnemonic string
	Source   Instruction
}

// Placeholder opcode bytes. The prologue/epilogue follow the usual
// x86-64 frame setup shape; the per-instruction bytes are tags, not
// encodable machine instructions.
var (
	jitPrologue = []byte{0x55, 0x48, 0x89, 0xE5} // push rbp; mov rbp, rsp
	jitEpilogue = []byte{0x5D, 0xC3}             // pop rbp; ret
)

const (
	jitOpStore       = 0xB8 // mov r, imm shape
	jitOpAdd         = 0x01 // add r, r shape
	jitOpUnsupported = 0x90 // nop; interpreter fallback
)

// Compile verifies p and translates it into a CompiledProgram. It does
// not emit executable machine code: the returned byte sequence is a
// prologue, one placeholder opcode byte per instruction (Store lowers to
// a mov-immediate tag, Add to an add-register tag), and an epilogue.
func Compile(p *Program) (*CompiledProgram, error) {
	if err := Verify(p); err != nil {
		return nil, err
	}

	ops := make([]NativeOp, len(p.Instructions))
	code := make([]byte, 0, len(jitPrologue)+len(p.Instructions)+len(jitEpilogue))
	code = append(code, jitPrologue...)
	for i, ins := range p.Instructions {
		switch ins.Op {
		case OpStore:
			ops[i] = NativeOp{Mnemonic: "mov_imm", Source: ins}
			code = append(code, jitOpStore)
		case OpAdd:
			ops[i] = NativeOp{Mnemonic: "add_reg", Source: ins}
			code = append(code, jitOpAdd)
		default:
			ops[i] = NativeOp{Mnemonic: "unsupported", Source: ins}
			code = append(code, jitOpUnsupported)
		}
	}
	code = append(code, jitEpilogue...)
	return &CompiledProgram{source: p, ops: ops, code: code}, nil
}

// Ops exposes the lowered instruction descriptors, chiefly for tests that
// want to confirm which instructions the shim actually lowers.
func (c *CompiledProgram) Ops() []NativeOp {
	return c.ops
}

// Code returns the emitted placeholder byte sequence.
func (c *CompiledProgram) Code() []byte {
	return c.code
}

// Run executes the compiled program. Since no native code is ever
// generated, this always delegates to the bytecode interpreter against
// the original source program.
func (c *CompiledProgram) Run(packet []byte) (int64, error) {
	return Interpret(c.source, packet)
}
