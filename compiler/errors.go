package compiler

import "fmt"

// InternalError reports that the compiler found an AST shape the
// validator should already have rejected or normalized (e.g. a missing
// positional argument, or an argument of the wrong concrete type). It is
// a bug-class error, distinct from a user-facing script error, since by
// the time Compile runs the script has already passed validation.
type InternalError struct {
	Message string
}

func (e InternalError) Error() string {
	return fmt.Sprintf("compiler: internal error: %s", e.Message)
}

func internalf(format string, args ...any) error {
	return InternalError{Message: fmt.Sprintf(format, args...)}
}
