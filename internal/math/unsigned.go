package math

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	wadU     = uint256.MustFromBig(wad)
	halfWadU = uint256.MustFromBig(halfWad)
)

// Uint is an unsigned fixed-point number with 18 implied decimals backed by
// a 256-bit word. It is used for quantities that can never be negative,
// such as pool-share balances and supply.
type Uint struct {
	v uint256.Int
}

// UintFromInt converts a non-negative Int.
func UintFromInt(a Int) (Uint, error) {
	if a.IsNegative() {
		return Uint{}, &Error{Op: "to uint", Err: fmt.Errorf("%w: negative value %s", ErrInvalidParameter, a)}
	}
	u, overflow := uint256.FromBig(a.big())
	if overflow {
		return Uint{}, &Error{Op: "to uint", Err: ErrOverflow}
	}
	return Uint{v: *u}, nil
}

// MustUint is UintFromInt that panics with *Error.
func MustUint(a Int) Uint {
	u, err := UintFromInt(a)
	if err != nil {
		panic(err)
	}
	return u
}

// Int converts back to a signed value. Values above the int256 maximum fail.
func (u Uint) Int() (Int, error) {
	return FromBig(u.v.ToBig())
}

// MustInt is Int that panics with *Error.
func (u Uint) MustInt() Int {
	return must(u.Int())
}

func (u Uint) IsZero() bool   { return u.v.IsZero() }
func (u Uint) Cmp(o Uint) int { return u.v.Cmp(&o.v) }
func (u Uint) String() string { return u.MustInt().String() }
func (u Uint) Raw() string    { return u.v.Dec() }

func (u Uint) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.v.Dec())
}

func (u *Uint) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return u.v.SetFromDecimal(s)
}

// UAdd returns a+b, failing on wrap-around.
func UAdd(a, b Uint) (Uint, error) {
	var z Uint
	if _, overflow := z.v.AddOverflow(&a.v, &b.v); overflow {
		return Uint{}, &Error{Op: "uadd", Err: ErrOverflow}
	}
	return z, nil
}

// USub returns a-b, failing when b > a.
func USub(a, b Uint) (Uint, error) {
	var z Uint
	if _, underflow := z.v.SubOverflow(&a.v, &b.v); underflow {
		return Uint{}, &Error{Op: "usub", Err: ErrOverflow}
	}
	return z, nil
}

// UMul returns a*b/10^18 rounded half up.
func UMul(a, b Uint) (Uint, error) {
	var z Uint
	if _, overflow := z.v.MulOverflow(&a.v, &b.v); overflow {
		return Uint{}, &Error{Op: "umul", Err: ErrOverflow}
	}
	if _, overflow := z.v.AddOverflow(&z.v, halfWadU); overflow {
		return Uint{}, &Error{Op: "umul", Err: ErrOverflow}
	}
	z.v.Div(&z.v, wadU)
	return z, nil
}

// UDiv returns a*10^18/b rounded half up.
func UDiv(a, b Uint) (Uint, error) {
	if b.v.IsZero() {
		return Uint{}, &Error{Op: "udiv", Err: ErrDivisionByZero}
	}
	var z Uint
	if _, overflow := z.v.MulOverflow(&a.v, wadU); overflow {
		return Uint{}, &Error{Op: "udiv", Err: ErrOverflow}
	}
	return uroundQuo("udiv", z, b)
}

// UFrac returns a*b/c with one rounding step.
func UFrac(a, b, c Uint) (Uint, error) {
	if c.v.IsZero() {
		return Uint{}, &Error{Op: "ufrac", Err: ErrDivisionByZero}
	}
	var z Uint
	if _, overflow := z.v.MulOverflow(&a.v, &b.v); overflow {
		return Uint{}, &Error{Op: "ufrac", Err: ErrOverflow}
	}
	return uroundQuo("ufrac", z, c)
}

func uroundQuo(op string, x, d Uint) (Uint, error) {
	half := new(uint256.Int).Rsh(&d.v, 1)
	if _, overflow := x.v.AddOverflow(&x.v, half); overflow {
		return Uint{}, &Error{Op: op, Err: ErrOverflow}
	}
	x.v.Div(&x.v, &d.v)
	return x, nil
}
