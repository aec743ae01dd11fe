package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can decide whether to retry,
// alert or surface the outcome.
type ErrorKind string

const (
	// KindPrecondition: rejected at the gate, no state changed.
	KindPrecondition ErrorKind = "PRECONDITION_VIOLATION"
	// KindActionFailure: a critical action failed, or the actions left too
	// little to repay the loan.
	KindActionFailure ErrorKind = "ACTION_FAILURE"
	// KindProfitShortfall: realized profit below the strategy minimum.
	KindProfitShortfall ErrorKind = "PROFIT_SHORTFALL"
	// KindVenue: a venue reverted or returned less than the minimum output.
	KindVenue ErrorKind = "VENUE_ERROR"
	// KindIntegrity: reentrancy, untrusted callback or initiator mismatch.
	KindIntegrity ErrorKind = "INTEGRITY_VIOLATION"
	// KindInternal: infrastructure failure such as a storage write.
	KindInternal ErrorKind = "INTERNAL"
)

// String returns the string representation of ErrorKind.
func (k ErrorKind) String() string {
	return string(k)
}

// Error carries a kind and the operation that produced it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the outermost *Error in err's chain,
// or an empty kind when err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Precondition wraps err as a precondition violation.
func Precondition(op string, err error) error {
	return NewError(KindPrecondition, op, err)
}

// Integrity wraps err as an integrity violation.
func Integrity(op string, err error) error {
	return NewError(KindIntegrity, op, err)
}
