package math

import "errors"

var (
	ErrOverflow         = errors.New("arithmetic overflow")
	ErrDivisionByZero   = errors.New("division by zero")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Error reports a failed fixed-point operation. It is returned by the
// package-level functions and used as the panic value of Int methods.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "fixed point " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Recover converts a fixed-point panic into an error stored in *errp.
// Other panics are re-raised. Use as: defer fpmath.Recover(&err).
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(*Error); ok {
		*errp = e
		return
	}
	panic(r)
}
