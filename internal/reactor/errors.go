package reactor

import "fmt"

// InvariantViolation marks a reactor-internal logic error: a precondition
// the reactor itself should have guaranteed did not hold. It is never
// expected from client behavior and is always a bug in this package.
type InvariantViolation struct {
	Op  string
	Msg string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("reactor: invariant violation in %s: %s", e.Op, e.Msg)
}

func invariantf(op, format string, args ...any) {
	panic(&InvariantViolation{Op: op, Msg: fmt.Sprintf(format, args...)})
}
