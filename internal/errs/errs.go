// Package errs implements the error taxonomy of the runtime.
//
// A single wrapping struct keyed by a small enum, plus a propagation-policy
// helper so callers don't have to re-derive the "surfaces to caller vs.
// reified as outcome" table by hand.
package errs

import "fmt"

// Kind is the taxonomy key of a runtime error.
type Kind string

const (
	KindInvalidStructure Kind = "invalid_structure"
	KindUnhandledOutcome Kind = "unhandled_outcome"
	KindExecutionFault   Kind = "execution_fault"
	KindCancelled        Kind = "cancelled"
	KindPersistenceFault Kind = "persistence_fault"
	KindMissingLibrary   Kind = "missing_library"
)

// Error is the taxonomy-keyed wrapper used throughout the runtime.
type Error struct {
	Kind Kind
	Op   string // the mutation/operation that failed, e.g. "add_transition"
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" && e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func InvalidStructure(op string, err error) *Error { return New(KindInvalidStructure, op, err) }
func UnhandledOutcome(op string, err error) *Error { return New(KindUnhandledOutcome, op, err) }
func ExecutionFault(op string, err error) *Error   { return New(KindExecutionFault, op, err) }
func Cancelled(op string) *Error                   { return New(KindCancelled, op, nil) }
func PersistenceFault(op string, err error) *Error { return New(KindPersistenceFault, op, err) }
func MissingLibrary(op string, err error) *Error   { return New(KindMissingLibrary, op, err) }

// Surfaces reports whether this error's kind propagates to the caller
// as opposed to being reified as an outcome
// and flowing through a transition.
func (e *Error) Surfaces() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindInvalidStructure, KindMissingLibrary, KindPersistenceFault:
		return true
	default:
		return false
	}
}

// Is supports errors.Is matching purely on Kind, ignoring Op/Err, so
// callers can write errors.Is(err, errs.New(errs.KindInvalidStructure, "", nil)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return e.Kind == t.Kind
}
