package state

import (
	"errors"
	"fmt"

	fpmath "PerpAMM/internal/math"
)

// Kind classifies a rejected operation.
type Kind int32

const (
	KindUnknown Kind = iota
	InvalidCaller
	WrongStatus
	InsufficientMargin
	ArithmeticOverflow
	DivisionByZero
	InvalidParameter
	SlippageExceeded
	Expired
)

func (k Kind) String() string {
	switch k {
	case InvalidCaller:
		return "InvalidCaller"
	case WrongStatus:
		return "WrongStatus"
	case InsufficientMargin:
		return "InsufficientMargin"
	case ArithmeticOverflow:
		return "ArithmeticOverflow"
	case DivisionByZero:
		return "DivisionByZero"
	case InvalidParameter:
		return "InvalidParameter"
	case SlippageExceeded:
		return "SlippageExceeded"
	case Expired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Error is a rejected operation: the kind, the operation and the condition
// that failed (e.g. "im unsafe").
type Error struct {
	Kind   Kind
	Op     string
	Reason string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Reason)
}

// Is matches another *Error of the same kind, so errors.Is(err,
// state.ErrWrongStatus) works for any operation and reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

var (
	ErrInvalidCaller      = &Error{Kind: InvalidCaller}
	ErrWrongStatus        = &Error{Kind: WrongStatus}
	ErrInsufficientMargin = &Error{Kind: InsufficientMargin}
	ErrInvalidParameter   = &Error{Kind: InvalidParameter}
	ErrSlippageExceeded   = &Error{Kind: SlippageExceeded}
	ErrExpired            = &Error{Kind: Expired}
	ErrArithmeticOverflow = &Error{Kind: ArithmeticOverflow}
)

// Errorf builds an *Error.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// KindOf classifies any error returned by the core, including fixed-point
// failures.
func KindOf(err error) Kind {
	var e *Error
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &e):
		return e.Kind
	case errors.Is(err, fpmath.ErrOverflow):
		return ArithmeticOverflow
	case errors.Is(err, fpmath.ErrDivisionByZero):
		return DivisionByZero
	case errors.Is(err, fpmath.ErrInvalidParameter):
		return InvalidParameter
	default:
		return KindUnknown
	}
}
