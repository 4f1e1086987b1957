package interpreter

import "fmt"

// RuntimeError reports a VM-internal inconsistency: an operand of the
// wrong concrete type, a stack underflow, a jump target outside the
// instruction stream. Like compiler.InternalError, this means the bytecode
// was not produced by this package's own compiler — never a user-facing
// script error.
type RuntimeError struct {
	Message string
}

func (e RuntimeError) Error() string {
	return fmt.Sprintf("interpreter: runtime error: %s", e.Message)
}

func runtimeErrorf(format string, args ...any) error {
	return RuntimeError{Message: fmt.Sprintf(format, args...)}
}
