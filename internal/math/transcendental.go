package math

import (
	"fmt"
	"math/big"
)

// ln is evaluated at 38 decimals and rounded to 18.
var (
	lnScale   = new(big.Int).Exp(bigTen, big.NewInt(38), nil)
	lnRescale = new(big.Int).Exp(bigTen, big.NewInt(38-Decimals), nil)
	lnCap     = new(big.Int).Exp(bigTen, big.NewInt(40), nil)
	ln2Scaled = lnUnit(new(big.Int).Mul(lnScale, bigTwo))
)

// Powi raises x to a non-negative integer power by repeated squaring. Every
// squaring step rounds like Mul.
func Powi(x Int, n int64) (Int, error) {
	if n < 0 {
		return Zero, &Error{Op: "powi", Err: fmt.Errorf("%w: negative exponent %d", ErrInvalidParameter, n)}
	}
	z := One
	if n%2 != 0 {
		z = x
	}
	var err error
	for n /= 2; n != 0; n /= 2 {
		if x, err = Mul(x, x); err != nil {
			return Zero, err
		}
		if n%2 != 0 {
			if z, err = Mul(z, x); err != nil {
				return Zero, err
			}
		}
	}
	return z, nil
}

// Ln returns the natural logarithm of x. The domain is (0, 1e22]; the result
// is within 1 raw unit of the exact value.
func Ln(x Int) (Int, error) {
	v := x.big()
	if v.Sign() <= 0 {
		return Zero, &Error{Op: "ln", Err: fmt.Errorf("%w: logE of non-positive number", ErrInvalidParameter)}
	}
	if v.Cmp(lnCap) > 0 {
		return Zero, &Error{Op: "ln", Err: fmt.Errorf("%w: logE only accepts v <= 1e22", ErrInvalidParameter)}
	}

	// x = y * 2^k with y in [1, 2)
	y := new(big.Int).Mul(v, lnRescale)
	twoScaled := new(big.Int).Mul(lnScale, bigTwo)
	k := int64(0)
	for y.Cmp(twoScaled) >= 0 {
		y.Rsh(y, 1)
		k++
	}
	for y.Cmp(lnScale) < 0 {
		y.Lsh(y, 1)
		k--
	}

	r := lnUnit(y)
	r.Add(r, new(big.Int).Mul(ln2Scaled, big.NewInt(k)))
	return roundQuo("ln", r, lnRescale)
}

// LogBase returns ln(x)/ln(base).
func LogBase(base, x Int) (Int, error) {
	lx, err := Ln(x)
	if err != nil {
		return Zero, err
	}
	lb, err := Ln(base)
	if err != nil {
		return Zero, err
	}
	return Div(lx, lb)
}

// lnUnit evaluates ln(y) for y in [1, 2] at lnScale using
// ln(y) = 2 * atanh((y-1)/(y+1)).
func lnUnit(y *big.Int) *big.Int {
	num := new(big.Int).Sub(y, lnScale)
	den := new(big.Int).Add(y, lnScale)
	z := new(big.Int).Mul(num, lnScale)
	z.Quo(z, den)
	z2 := new(big.Int).Mul(z, z)
	z2.Quo(z2, lnScale)

	sum := new(big.Int)
	term := new(big.Int).Set(z)
	q := new(big.Int)
	for i := int64(1); term.Sign() != 0; i += 2 {
		sum.Add(sum, q.Quo(term, big.NewInt(i)))
		term.Mul(term, z2)
		term.Quo(term, lnScale)
	}
	return sum.Mul(sum, bigTwo)
}
