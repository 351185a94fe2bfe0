package math

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// Decimals is the number of implied decimal places carried by Int and Uint.
const Decimals = 18

var (
	bigOne  = big.NewInt(1)
	bigTwo  = big.NewInt(2)
	bigTen  = big.NewInt(10)
	wad     = new(big.Int).Exp(bigTen, big.NewInt(Decimals), nil)
	halfWad = new(big.Int).Quo(wad, bigTwo)

	maxInt256 = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)
	minInt256 = new(big.Int).Neg(new(big.Int).Lsh(bigOne, 255))
)

// Pooled scratch integers for intermediate products.
var scratchPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getScratch() *big.Int {
	return scratchPool.Get().(*big.Int)
}

func putScratch(v *big.Int) {
	v.SetInt64(0)
	scratchPool.Put(v)
}

// Int is a signed fixed-point number with 18 implied decimals, bounded to the
// int256 range. The zero value is 0. Int values are immutable; every
// operation returns a fresh value.
//
// Methods panic with *Error when a checked operation fails. Callers that
// need an error instead use the package-level functions (Mul, Div, Frac, ...)
// or recover with Recover.
type Int struct {
	v *big.Int
}

var (
	// Zero is 0.
	Zero = Int{}
	// One is 1.0, i.e. 10^18 raw units.
	One = Int{v: wad}
)

// FromInt64 returns n whole units (n * 10^18 raw).
func FromInt64(n int64) Int {
	return Int{v: new(big.Int).Mul(big.NewInt(n), wad)}
}

// Raw returns an Int holding n raw units (n * 10^-18).
func Raw(n int64) Int {
	return Int{v: big.NewInt(n)}
}

// FromBig wraps a raw big.Int. It fails outside the int256 range.
func FromBig(raw *big.Int) (Int, error) {
	if raw == nil {
		return Zero, nil
	}
	if err := checkInt("from big", raw); err != nil {
		return Zero, err
	}
	return Int{v: new(big.Int).Set(raw)}, nil
}

// MustFromBig is FromBig that panics with *Error.
func MustFromBig(raw *big.Int) Int {
	return must(FromBig(raw))
}

// Parse reads a decimal string such as "-6883.333333333333333333" or "63700".
// At most 18 fractional digits are accepted.
func Parse(s string) (Int, error) {
	orig := s
	s = strings.TrimSpace(s)
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if intPart == "" && (!hasDot || fracPart == "") {
		return Zero, &Error{Op: "parse", Err: fmt.Errorf("%w: %q is not a decimal", ErrInvalidParameter, orig)}
	}
	if len(fracPart) > Decimals {
		return Zero, &Error{Op: "parse", Err: fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidParameter, orig, Decimals)}
	}
	digits := intPart + fracPart + strings.Repeat("0", Decimals-len(fracPart))
	for _, c := range digits {
		if c < '0' || c > '9' {
			return Zero, &Error{Op: "parse", Err: fmt.Errorf("%w: %q is not a decimal", ErrInvalidParameter, orig)}
		}
	}
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Zero, &Error{Op: "parse", Err: fmt.Errorf("%w: %q is not a decimal", ErrInvalidParameter, orig)}
	}
	if neg {
		v.Neg(v)
	}
	if err := checkInt("parse", v); err != nil {
		return Zero, err
	}
	return Int{v: v}, nil
}

// MustParse is Parse that panics. Intended for constants and tests.
func MustParse(s string) Int {
	return must(Parse(s))
}

// ParseRaw reads a base-10 integer string of raw units.
func ParseRaw(s string) (Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return Zero, &Error{Op: "parse raw", Err: fmt.Errorf("%w: %q is not an integer", ErrInvalidParameter, s)}
	}
	if err := checkInt("parse raw", v); err != nil {
		return Zero, err
	}
	return Int{v: v}, nil
}

// MustParseRaw is ParseRaw that panics.
func MustParseRaw(s string) Int {
	return must(ParseRaw(s))
}

func (a Int) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// BigInt returns a copy of the raw value.
func (a Int) BigInt() *big.Int {
	return new(big.Int).Set(a.big())
}

// RawString returns the raw integer in base 10.
func (a Int) RawString() string {
	return a.big().String()
}

// String renders the value as a decimal with trailing zeros trimmed.
func (a Int) String() string {
	v := a.big()
	abs := new(big.Int).Abs(v)
	q, r := new(big.Int).QuoRem(abs, wad, new(big.Int))
	s := q.String()
	if r.Sign() != 0 {
		frac := r.String()
		frac = strings.Repeat("0", Decimals-len(frac)) + frac
		s += "." + strings.TrimRight(frac, "0")
	}
	if v.Sign() < 0 {
		s = "-" + s
	}
	return s
}

func (a Int) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Int) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a Int) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Int) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a Int) Sign() int        { return a.big().Sign() }
func (a Int) IsZero() bool     { return a.Sign() == 0 }
func (a Int) Cmp(b Int) int    { return a.big().Cmp(b.big()) }
func (a Int) Equal(b Int) bool { return a.Cmp(b) == 0 }
func (a Int) LT(b Int) bool    { return a.Cmp(b) < 0 }
func (a Int) LTE(b Int) bool   { return a.Cmp(b) <= 0 }
func (a Int) GT(b Int) bool    { return a.Cmp(b) > 0 }
func (a Int) GTE(b Int) bool   { return a.Cmp(b) >= 0 }
func (a Int) IsNegative() bool { return a.Sign() < 0 }
func (a Int) IsPositive() bool { return a.Sign() > 0 }

func (a Int) Min(b Int) Int {
	if a.LTE(b) {
		return a
	}
	return b
}

func (a Int) Max(b Int) Int {
	if a.GTE(b) {
		return a
	}
	return b
}

func (a Int) Add(b Int) Int {
	return must(result("add", new(big.Int).Add(a.big(), b.big())))
}

func (a Int) Sub(b Int) Int {
	return must(result("sub", new(big.Int).Sub(a.big(), b.big())))
}

func (a Int) Neg() Int {
	return must(result("neg", new(big.Int).Neg(a.big())))
}

func (a Int) Abs() Int {
	return must(result("abs", new(big.Int).Abs(a.big())))
}

// MulInt multiplies the raw value by an integer count (no rescaling).
func (a Int) MulInt(n int64) Int {
	return must(result("mul int", new(big.Int).Mul(a.big(), big.NewInt(n))))
}

// QuoInt divides the raw value by an integer count, truncating toward zero.
func (a Int) QuoInt(n int64) Int {
	if n == 0 {
		panic(&Error{Op: "quo int", Err: ErrDivisionByZero})
	}
	return Int{v: new(big.Int).Quo(a.big(), big.NewInt(n))}
}

// Whole returns the integer part, truncated toward zero.
func (a Int) Whole() int64 {
	return new(big.Int).Quo(a.big(), wad).Int64()
}

// Rem returns the truncated remainder of the raw values (sign of a).
func (a Int) Rem(m Int) Int {
	if m.IsZero() {
		panic(&Error{Op: "rem", Err: ErrDivisionByZero})
	}
	return Int{v: new(big.Int).Rem(a.big(), m.big())}
}

// IsMultipleOf reports whether a is an exact multiple of m.
func (a Int) IsMultipleOf(m Int) bool {
	return a.Rem(m).IsZero()
}

func (a Int) Mul(b Int) Int         { return must(Mul(a, b)) }
func (a Int) Div(b Int) Int         { return must(Div(a, b)) }
func (a Int) Frac(b, c Int) Int     { return must(Frac(a, b, c)) }
func (a Int) Powi(n int64) Int      { return must(Powi(a, n)) }
func (a Int) Ln() Int               { return must(Ln(a)) }
func (a Int) Ceil(m Int) Int        { return must(Ceil(a, m)) }
func (a Int) RoundHalfUp(p Int) Int { return must(RoundHalfUp(a, p)) }

// Mul returns a*b/10^18, rounded half away from zero. It fails when the
// unscaled product leaves the int256 range.
func Mul(a, b Int) (Int, error) {
	t := getScratch()
	defer putScratch(t)
	t.Mul(a.big(), b.big())
	if err := checkInt("mul", t); err != nil {
		return Zero, err
	}
	return roundQuo("mul", t, wad)
}

// Div returns a*10^18/b, rounded half away from zero.
func Div(a, b Int) (Int, error) {
	if b.IsZero() {
		return Zero, &Error{Op: "div", Err: ErrDivisionByZero}
	}
	t := getScratch()
	defer putScratch(t)
	t.Mul(a.big(), wad)
	d := new(big.Int).Set(b.big())
	if d.Sign() < 0 {
		t.Neg(t)
		d.Neg(d)
	}
	if err := checkInt("div", t); err != nil {
		return Zero, err
	}
	return roundQuo("div", t, d)
}

// Frac returns a*b/c with a single rounding step at the end.
func Frac(a, b, c Int) (Int, error) {
	if c.IsZero() {
		return Zero, &Error{Op: "frac", Err: ErrDivisionByZero}
	}
	t := getScratch()
	defer putScratch(t)
	t.Mul(a.big(), b.big())
	d := new(big.Int).Set(c.big())
	if d.Sign() < 0 {
		t.Neg(t)
		d.Neg(d)
	}
	if err := checkInt("frac", t); err != nil {
		return Zero, err
	}
	return roundQuo("frac", t, d)
}

// RoundHalfUp rounds v to the nearest multiple of p. Ties round away from
// zero, so -1.5 becomes -2 and 1.5 becomes 2.
func RoundHalfUp(v, p Int) (Int, error) {
	if p.Sign() <= 0 {
		return Zero, &Error{Op: "round half up", Err: fmt.Errorf("%w: precision must be positive", ErrInvalidParameter)}
	}
	q, err := roundQuo("round half up", v.big(), p.big())
	if err != nil {
		return Zero, err
	}
	return result("round half up", new(big.Int).Mul(q.big(), p.big()))
}

// Ceil returns the smallest multiple of m that is >= v.
func Ceil(v, m Int) (Int, error) {
	if m.Sign() <= 0 {
		return Zero, &Error{Op: "ceil", Err: fmt.Errorf("%w: precision must be positive", ErrInvalidParameter)}
	}
	r := new(big.Int).Mod(v.big(), m.big())
	if r.Sign() == 0 {
		return v, nil
	}
	out := new(big.Int).Sub(m.big(), r)
	return result("ceil", out.Add(out, v.big()))
}

// roundQuo divides x by a positive d after offsetting x by d/2 in the
// direction of its sign.
func roundQuo(op string, x, d *big.Int) (Int, error) {
	t := new(big.Int).Quo(d, bigTwo)
	if x.Sign() >= 0 {
		t.Add(x, t)
	} else {
		t.Sub(x, t)
	}
	if err := checkInt(op, t); err != nil {
		return Zero, err
	}
	return Int{v: t.Quo(t, d)}, nil
}

func result(op string, v *big.Int) (Int, error) {
	if err := checkInt(op, v); err != nil {
		return Zero, err
	}
	return Int{v: v}, nil
}

func checkInt(op string, v *big.Int) error {
	if v.Cmp(maxInt256) > 0 || v.Cmp(minInt256) < 0 {
		return &Error{Op: op, Err: ErrOverflow}
	}
	return nil
}

func must(v Int, err error) Int {
	if err != nil {
		if e, ok := err.(*Error); ok {
			panic(e)
		}
		panic(&Error{Op: "fixed point", Err: err})
	}
	return v
}
