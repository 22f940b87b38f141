package vm

import (
	"errors"
	"fmt"
)

// Object-system errors. Callers match them with errors.Is; the runtime
// wraps them with the object and method involved.
var (
	ErrNoCurrentObject = errors.New("no current object; called outside the context of a method")
	ErrUnknownMethod   = errors.New("unknown method")
	ErrObjectDestroyed = errors.New("object has been destroyed")
	ErrNotInFilter     = errors.New("called from outside of a filter")
	ErrCyclicHierarchy = errors.New("class hierarchy would be cyclic")
	ErrDuplicateObject = errors.New("object already exists")
	ErrNoSuchObject    = errors.New("no such object")
	ErrBadOption       = errors.New("bad option")
)

// ErrStackExhausted is the panic value raised when the activation-record
// store cannot grow any further.
var ErrStackExhausted = errors.New("call stack exhausted")

// ContractViolation is raised when a caller breaks an invariant of the
// call stack: finishing a handle twice, finishing out of order, or using a
// record whose native frame is gone.
type ContractViolation struct {
	Op  string
	Msg string
}

func (v *ContractViolation) Error() string {
	return fmt.Sprintf("call stack contract violation in %s: %s", v.Op, v.Msg)
}
