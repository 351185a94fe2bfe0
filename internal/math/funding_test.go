package math_test

import (
	"testing"

	fpmath "PerpAMM/internal/math"
)

var emaAlpha = raw("3327787021630616")

// bruteForce sums f(v(k)) for k in [0, n) one second at a time.
func bruteForce(t *testing.T, c fpmath.FundingCurve, n int64) fpmath.Int {
	t.Helper()
	acc := fpmath.Zero
	for k := int64(0); k < n; k++ {
		v, err := c.EMA(k)
		if err != nil {
			t.Fatal(err)
		}
		v = v.Max(c.Limit.Neg()).Min(c.Limit)
		switch {
		case v.GT(c.Dampener):
			acc = acc.Add(v.Sub(c.Dampener))
		case v.LT(c.Dampener.Neg()):
			acc = acc.Add(v.Add(c.Dampener))
		}
	}
	return acc
}

func curve(v0, premium string) fpmath.FundingCurve {
	index := fpmath.FromInt64(7000)
	return fpmath.FundingCurve{
		Alpha:    emaAlpha,
		V0:       fpmath.MustParse(v0),
		Premium:  fpmath.MustParse(premium),
		Limit:    fpmath.MustParse("0.005").Mul(index),
		Dampener: fpmath.MustParse("0.0005").Mul(index),
	}
}

func TestFundingCurve_MatchesBruteForce(t *testing.T) {
	tests := []struct {
		name        string
		v0, premium string
		n           int64
	}{
		{"inside dampener", "0", "1", 50},
		{"rising through every band", "0", "1650.617283950617283951", 400},
		{"falling through every band", "0", "-636.363636363636363636", 400},
		{"decaying from above limit", "60", "0", 900},
		{"starting clamped, staying clamped", "-500", "-400", 30},
		{"crossing zero", "-40", "40", 700},
	}
	tolerance := fpmath.Raw(1_000_000_000_000)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := curve(tt.v0, tt.premium)
			vt, acc, err := c.Accumulate(tt.n)
			if err != nil {
				t.Fatal(err)
			}
			want := bruteForce(t, c, tt.n)
			if diff := acc.Sub(want).Abs(); diff.GT(tolerance) {
				t.Errorf("acc = %s, brute force %s (diff %s)", acc, want, diff)
			}
			ema, err := c.EMA(tt.n)
			if err != nil {
				t.Fatal(err)
			}
			if !vt.Equal(ema) {
				t.Errorf("vt = %s, want %s", vt, ema)
			}
		})
	}
}

func TestFundingCurve_ZeroPremiumAccruesNothing(t *testing.T) {
	vt, acc, err := curve("0", "0").Accumulate(3600)
	if err != nil {
		t.Fatal(err)
	}
	if !vt.IsZero() || !acc.IsZero() {
		t.Errorf("vt=%s acc=%s, want zero", vt, acc)
	}
}

func TestFundingCurve_RejectsNonPositiveSpan(t *testing.T) {
	if _, _, err := curve("0", "1").Accumulate(0); err == nil {
		t.Error("expected error for n=0")
	}
}

func TestFundingCurve_Integrate(t *testing.T) {
	c := curve("10", "0")
	got, err := c.Integrate(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	assertNear(t, "integrate(0,1)", got, "10000000000000000000", 100)
	if _, err := c.Integrate(2, 1); err == nil {
		t.Error("expected error for reversed range")
	}
}
