package math_test

import (
	"errors"
	"strings"
	"testing"

	fpmath "PerpAMM/internal/math"
)

func assertNear(t *testing.T, name string, got fpmath.Int, want string, tolerance int64) {
	t.Helper()
	diff := got.Sub(raw(want)).Abs()
	if diff.GT(fpmath.Raw(tolerance)) {
		t.Errorf("%s = %s, want %s (tolerance %d)", name, got.RawString(), want, tolerance)
	}
}

func TestPowi(t *testing.T) {
	base := raw("987654321012345678")
	tests := []struct {
		n         int64
		want      string
		tolerance int64
	}{
		{0, "1000000000000000000", 100},
		{1, "987654321012345678", 100},
		{2, "975461057814357565", 100},
		{3, "963418328729623793", 100},
		{30, "688888672631861173", 100},
		{31, "680383874221316927", 100},
		{300, "24070795168472815", 10000},
		{301, "23773624858345269", 10000},
	}
	for _, tt := range tests {
		got, err := fpmath.Powi(base, tt.n)
		if err != nil {
			t.Fatal(err)
		}
		assertNear(t, "powi", got, tt.want, tt.tolerance)
	}

	slow := raw("999999900000000000")
	got, err := fpmath.Powi(slow, 100000)
	if err != nil {
		t.Fatal(err)
	}
	assertNear(t, "0.9999999^100000", got, "990049833254143103", 10000)
	got, err = fpmath.Powi(slow, 100001)
	if err != nil {
		t.Fatal(err)
	}
	assertNear(t, "0.9999999^100001", got, "990049734249159778", 10000)

	if _, err := fpmath.Powi(base, -1); !errors.Is(err, fpmath.ErrInvalidParameter) {
		t.Errorf("negative exponent: got %v", err)
	}
}

func TestLn(t *testing.T) {
	tests := []struct {
		x, want string
	}{
		{"1975308642024691356", "680724660586388155"},
		{"987654321012345678", "-12422519973557154"},
		{"1000000000000000000", "0"},
		{"1000000000000000001", "1"},
		{"100000000000000000", "-2302585092994045684"},
		{"500000000000000000", "-693147180559945309"},
		{"3000000000000000000", "1098612288668109691"},
		{"10000000000000000000", "2302585092994045684"},
		{"1234500000000000000", "210666029803097142"},
		{"2718281828459045235", "1000000000000000000"},
		{"2718281828459045234", "999999999999999999"},
		{"10000000000000000000000000000000000000000", "50656872045869005048"},
	}
	for _, tt := range tests {
		got, err := fpmath.Ln(raw(tt.x))
		if err != nil {
			t.Fatalf("Ln(%s): %v", tt.x, err)
		}
		assertNear(t, "ln("+tt.x+")", got, tt.want, 1)
	}

	if got := fpmath.One.Ln(); !got.IsZero() {
		t.Errorf("ln(1) = %s, want exactly 0", got.RawString())
	}
}

func TestLn_Domain(t *testing.T) {
	_, err := fpmath.Ln(raw("10000000000000000000000000000000000000001"))
	if !errors.Is(err, fpmath.ErrInvalidParameter) {
		t.Fatalf("above cap: got %v, want ErrInvalidParameter", err)
	}
	if !strings.Contains(err.Error(), "only accepts") {
		t.Errorf("message %q should mention the accepted domain", err)
	}
	for _, x := range []string{"0", "-1"} {
		if _, err := fpmath.Ln(raw(x)); !errors.Is(err, fpmath.ErrInvalidParameter) {
			t.Errorf("Ln(%s): got %v", x, err)
		}
	}
}

func TestLogBase(t *testing.T) {
	tests := []struct {
		base, x, want string
	}{
		{"900000000000000000", "1900000000000000000", "-6091977456307344157"},
		{"1900000000000000000", "900000000000000000", "-164150311975407507"},
		{"1900000000000000000", "2900000000000000000", "1658805469484154444"},
	}
	for _, tt := range tests {
		got, err := fpmath.LogBase(raw(tt.base), raw(tt.x))
		if err != nil {
			t.Fatal(err)
		}
		assertNear(t, "log_"+tt.base+"("+tt.x+")", got, tt.want, 100)
	}
}
