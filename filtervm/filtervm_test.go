package filtervm

import (
	"testing"
)

func TestVerifyRejectsOversizedProgram(t *testing.T) {
	insns := make([]Instruction, MaxProgramLength+1)
	for i := range insns {
		insns[i] = Store(0, 1)
	}
	insns[len(insns)-1] = Return(0)
	p := &Program{Instructions: insns}
	if err := Verify(p); err != ErrProgramTooLarge {
		t.Fatalf("got %v, want ErrProgramTooLarge", err)
	}
}

func TestVerifyRejectsOutOfBoundsJump(t *testing.T) {
	p := &Program{Instructions: []Instruction{
		JumpGreater(0, 0, 100),
		Return(0),
	}}
	if err := Verify(p); err != ErrInvalidJump {
		t.Fatalf("got %v, want ErrInvalidJump", err)
	}
}

func TestVerifyRejectsMissingTerminator(t *testing.T) {
	p := &Program{Instructions: []Instruction{Store(0, 1)}}
	if err := Verify(p); err != ErrMissingTerminator {
		t.Fatalf("got %v, want ErrMissingTerminator", err)
	}
}

func TestVerifyAcceptsWellFormedProgram(t *testing.T) {
	p := &Program{Instructions: []Instruction{Store(0, 1), Return(0)}}
	if err := Verify(p); err != nil {
		t.Fatalf("unexpected verify error: %v", err)
	}
}

// TestConditionalJumpVerdict exercises the branch-to-accept shape: a
// register set above a threshold, a JumpGreater that skips the
// reject path straight to the accept path.
func TestConditionalJumpVerdict(t *testing.T) {
	p := &Program{Instructions: []Instruction{
		Store(0, 200),
		JumpGreater(0, 100, 2),
		Store(0, 0),
		Return(0),
		Store(0, 1),
		Return(0),
	}}
	if err := Verify(p); err != nil {
		t.Fatalf("unexpected verify error: %v", err)
	}
	verdict, err := Interpret(p, nil)
	if err != nil {
		t.Fatalf("unexpected interpret error: %v", err)
	}
	if verdict != 1 {
		t.Fatalf("verdict = %d, want 1", verdict)
	}
}

// TestInterpretFallsThroughPastLastInstruction covers a program that
// passes Verify (it has a Return, and its one jump target is in-bounds)
// but whose taken branch falls off the end of the instruction slice on
// ordinary fall-through rather than hitting a terminator.
func TestInterpretFallsThroughPastLastInstruction(t *testing.T) {
	p := &Program{Instructions: []Instruction{
		Store(0, 1),
		JumpGreater(0, 0, 1),
		Return(0),
		Add(0, 0),
	}}
	if err := Verify(p); err != nil {
		t.Fatalf("unexpected verify error: %v", err)
	}
	verdict, err := Interpret(p, nil)
	if err != nil {
		t.Fatalf("unexpected interpret error: %v", err)
	}
	if verdict != 2 {
		t.Fatalf("verdict = %d, want 2 (R0 as left by the Store, doubled by the Add the jump lands on)", verdict)
	}
}

func TestInterpretOutOfBoundsLoad(t *testing.T) {
	p := &Program{Instructions: []Instruction{
		LoadAbsolute(1000),
		Return(0),
	}}
	packet := make([]byte, 20)
	if _, err := Interpret(p, packet); err != ErrOutOfBoundsMemoryAccess {
		t.Fatalf("got %v, want ErrOutOfBoundsMemoryAccess", err)
	}
}

func TestInterpretDivisionByZero(t *testing.T) {
	p := &Program{Instructions: []Instruction{
		Store(0, 10),
		Store(1, 0),
		Div(0, 1),
		Return(0),
	}}
	if _, err := Interpret(p, nil); err != ErrDivisionByZero {
		t.Fatalf("got %v, want ErrDivisionByZero", err)
	}
}

func TestInterpretStepCap(t *testing.T) {
	// An infinite loop: jump back to itself forever.
	p := &Program{Instructions: []Instruction{
		Jump(-1),
		Return(0),
	}}
	if _, err := Interpret(p, nil); err != ErrMaximumIterationsExceeded {
		t.Fatalf("got %v, want ErrMaximumIterationsExceeded", err)
	}
}

func TestTCPSYNFilterMatchesSYNSegment(t *testing.T) {
	p := TCPSYNFilter()
	if err := Verify(p); err != nil {
		t.Fatalf("unexpected verify error: %v", err)
	}
	packet := make([]byte, 40)
	packet[33] = 0x02 // SYN flag set, matching the byte this program inspects
	verdict, err := Interpret(p, packet)
	if err != nil {
		t.Fatalf("unexpected interpret error: %v", err)
	}
	if verdict != 1 {
		t.Fatalf("verdict = %d, want 1", verdict)
	}
}

func TestTCPSYNFilterRejectsNonSYNSegment(t *testing.T) {
	p := TCPSYNFilter()
	packet := make([]byte, 40)
	packet[33] = 0x10 // ACK only
	verdict, err := Interpret(p, packet)
	if err != nil {
		t.Fatalf("unexpected interpret error: %v", err)
	}
	if verdict != 0 {
		t.Fatalf("verdict = %d, want 0", verdict)
	}
}

func TestTCPPortFilterMatchesConfiguredPort(t *testing.T) {
	p := TCPPortFilter(80)
	packet := make([]byte, 40)
	packet[22] = 0x00
	packet[23] = 80
	verdict, err := Interpret(p, packet)
	if err != nil {
		t.Fatalf("unexpected interpret error: %v", err)
	}
	if verdict != 1 {
		t.Fatalf("verdict = %d, want 1", verdict)
	}
}

func TestTCPPortFilterRejectsOtherPort(t *testing.T) {
	p := TCPPortFilter(80)
	packet := make([]byte, 40)
	packet[22] = 0x1F
	packet[23] = 0x90 // port 8080
	verdict, err := Interpret(p, packet)
	if err != nil {
		t.Fatalf("unexpected interpret error: %v", err)
	}
	if verdict != 0 {
		t.Fatalf("verdict = %d, want 0", verdict)
	}
}

func TestCompileFallsBackToInterpreter(t *testing.T) {
	p := TCPSYNFilter()
	compiled, err := Compile(p)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	packet := make([]byte, 40)
	packet[33] = 0x02
	verdict, err := compiled.Run(packet)
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if verdict != 1 {
		t.Fatalf("verdict = %d, want 1", verdict)
	}

	var sawMovImm bool
	for _, op := range compiled.Ops() {
		if op.Mnemonic == "mov_imm" {
			sawMovImm = true
		}
	}
	if !sawMovImm {
		t.Errorf("expected at least one mov_imm lowering for a Store instruction")
	}
}

func TestCompileEmitsPrologueAndEpilogue(t *testing.T) {
	p := &Program{Instructions: []Instruction{Store(0, 1), Add(0, 0), Return(0)}}
	compiled, err := Compile(p)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	code := compiled.Code()
	wantLen := len(jitPrologue) + len(p.Instructions) + len(jitEpilogue)
	if len(code) != wantLen {
		t.Fatalf("code length = %d, want %d", len(code), wantLen)
	}
	if code[0] != jitPrologue[0] || code[len(code)-1] != jitEpilogue[len(jitEpilogue)-1] {
		t.Errorf("code missing prologue/epilogue framing: % x", code)
	}
}

func TestCompileRejectsInvalidProgram(t *testing.T) {
	p := &Program{Instructions: []Instruction{Store(0, 1)}} // no terminator
	if _, err := Compile(p); err != ErrMissingTerminator {
		t.Fatalf("got %v, want ErrMissingTerminator", err)
	}
}

func TestInterpreterAndCompiledAgree(t *testing.T) {
	programs := []*Program{
		TCPSYNFilter(),
		TCPPortFilter(80),
		{Name: "arith", Instructions: []Instruction{
			Store(1, 7), Store(2, 6), LoadRegister(3, 1), Mul(3, 2), Return(3),
		}},
	}
	packet := make([]byte, 40)
	packet[33] = 0x02
	packet[23] = 80
	for _, p := range programs {
		compiled, err := Compile(p)
		if err != nil {
			t.Fatalf("%s: unexpected compile error: %v", p.Name, err)
		}
		want, errI := Interpret(p, packet)
		got, errC := compiled.Run(packet)
		if errI != errC || want != got {
			t.Errorf("%s: interpreter (%d, %v) and compiled (%d, %v) disagree", p.Name, want, errI, got, errC)
		}
	}
}
