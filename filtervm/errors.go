// Package filtervm hosts a 16-register packet-filter bytecode virtual
// machine in the spirit of classic BPF: a static verifier, a bounded
// interpreter, and a conceptual JIT shim that never emits real machine
// code.
package filtervm

import "errors"

// Verifier errors. The verifier converts an invalid program to one of
// these before any interpretation is attempted.
var (
	ErrProgramTooLarge   = errors.New("filtervm: program exceeds maximum length")
	ErrInvalidJump       = errors.New("filtervm: jump target out of bounds")
	ErrMissingTerminator = errors.New("filtervm: program has no Exit or Return instruction")
)

// Interpreter runtime errors. The interpreter raises exactly one of these
// and halts on it.
var (
	ErrOutOfBoundsMemoryAccess   = errors.New("filtervm: packet load out of bounds")
	ErrDivisionByZero            = errors.New("filtervm: division by zero")
	ErrMaximumIterationsExceeded = errors.New("filtervm: exceeded maximum instruction count")
)
