package math

import (
	"fmt"
	"sort"
)

// FundingPeriod is the number of seconds over which a premium of one unit
// accrues one unit of funding per contract (8 hours).
const FundingPeriod = 28800

// FundingCurve is the path of the premium EMA between two funding updates.
// After k seconds the EMA is v(k) = Premium + (V0 - Premium) * (1 - Alpha)^k.
// Each second accrues f(v(k)): v clamped to [-Limit, Limit], then moved
// toward zero by Dampener (values inside the band accrue nothing).
type FundingCurve struct {
	Alpha    Int
	V0       Int
	Premium  Int
	Limit    Int
	Dampener Int
}

// EMA returns v(n).
func (c FundingCurve) EMA(n int64) (Int, error) {
	b, err := Powi(One.Sub(c.Alpha), n)
	if err != nil {
		return Zero, err
	}
	d, err := Mul(c.V0.Sub(c.Premium), b)
	if err != nil {
		return Zero, err
	}
	return d.Add(c.Premium), nil
}

// Accumulate returns the EMA after n seconds and the left Riemann sum
// sum_{k=0}^{n-1} f(v(k)). The sum is evaluated in closed form per region
// of f, splitting at the seconds where the path crosses +-Dampener and
// +-Limit.
func (c FundingCurve) Accumulate(n int64) (vt, acc Int, err error) {
	defer Recover(&err)
	if n <= 0 {
		return Zero, Zero, &Error{Op: "accumulate", Err: fmt.Errorf("%w: we can't go back in time", ErrInvalidParameter)}
	}
	if vt, err = c.EMA(n); err != nil {
		return Zero, Zero, err
	}

	thresholds := []Int{c.Limit.Neg(), c.Dampener.Neg(), c.Dampener, c.Limit}
	lo, hi := c.V0.Min(vt), c.V0.Max(vt)
	cuts := []int64{0, n}
	for _, th := range thresholds {
		if th.GT(lo) && th.LT(hi) {
			t, err := c.TimeOn(th)
			if err != nil {
				return Zero, Zero, err
			}
			if t > 0 && t < n {
				cuts = append(cuts, t)
			}
		}
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i] < cuts[j] })

	acc = Zero
	for i := 0; i+1 < len(cuts); i++ {
		x, y := cuts[i], cuts[i+1]
		if x == y {
			continue
		}
		tail, err := c.EMA(y - 1)
		if err != nil {
			return Zero, Zero, err
		}
		part, err := c.segment(tail, x, y)
		if err != nil {
			return Zero, Zero, err
		}
		acc = acc.Add(part)
	}
	return vt, acc, nil
}

// segment sums f over [x, y). Every v(k) after x lies in the region of
// tail = v(y-1); v(x) may sit on the boundary, where f agrees on both sides.
func (c FundingCurve) segment(tail Int, x, y int64) (Int, error) {
	span := y - x
	switch {
	case tail.LTE(c.Limit.Neg()):
		return c.Dampener.Sub(c.Limit).MulInt(span), nil
	case tail.GTE(c.Limit):
		return c.Limit.Sub(c.Dampener).MulInt(span), nil
	case tail.Abs().LTE(c.Dampener):
		return Zero, nil
	}
	sum, err := c.Integrate(x, y)
	if err != nil {
		return Zero, err
	}
	if tail.IsNegative() {
		return sum.Add(c.Dampener.MulInt(span)), nil
	}
	return sum.Sub(c.Dampener.MulInt(span)), nil
}

// TimeOn returns the first whole second at which the path reaches y:
// ceil(log_{1-Alpha}((y - Premium) / (V0 - Premium))).
func (c FundingCurve) TimeOn(y Int) (int64, error) {
	if y.Equal(c.Premium) {
		return 0, &Error{Op: "time on curve", Err: fmt.Errorf("%w: no solution 1 on funding curve", ErrInvalidParameter)}
	}
	ratio, err := Div(y.Sub(c.Premium), c.V0.Sub(c.Premium))
	if err != nil {
		return 0, err
	}
	if ratio.Sign() <= 0 {
		return 0, &Error{Op: "time on curve", Err: fmt.Errorf("%w: no solution 2 on funding curve", ErrInvalidParameter)}
	}
	if ratio.GTE(One) {
		return 0, &Error{Op: "time on curve", Err: fmt.Errorf("%w: no solution 3 on funding curve", ErrInvalidParameter)}
	}
	t, err := LogBase(One.Sub(c.Alpha), ratio)
	if err != nil {
		return 0, err
	}
	if t, err = Ceil(t, One); err != nil {
		return 0, err
	}
	return t.Whole(), nil
}

// Integrate returns sum_{k=x}^{y-1} v(k)
// = (V0 - Premium) * ((1-Alpha)^x - (1-Alpha)^y) / Alpha + Premium * (y - x).
func (c FundingCurve) Integrate(x, y int64) (Int, error) {
	if x > y {
		return Zero, &Error{Op: "integrate", Err: fmt.Errorf("%w: integrate reversed", ErrInvalidParameter)}
	}
	if c.Alpha.IsZero() {
		return c.V0.MulInt(y - x), nil
	}
	b := One.Sub(c.Alpha)
	bx, err := Powi(b, x)
	if err != nil {
		return Zero, err
	}
	by, err := Powi(b, y)
	if err != nil {
		return Zero, err
	}
	r, err := Mul(c.V0.Sub(c.Premium), bx.Sub(by))
	if err != nil {
		return Zero, err
	}
	if r, err = Div(r, c.Alpha); err != nil {
		return Zero, err
	}
	return r.Add(c.Premium.MulInt(y - x)), nil
}
