package state_test

import (
	"testing"

	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"
)

func mustDec(s string) fpmath.Int {
	return fpmath.MustParse(s)
}

// ============================================================================
// Test: Position open / close / pnl
// ============================================================================

func TestPosition_OpenFromFlat(t *testing.T) {
	var p state.Position
	p = p.Open(state.SideLong, mustDec("7777.777777777777777778"), mustDec("1"), state.Accumulators{})

	if p.Side != state.SideLong {
		t.Fatalf("side: got %s, want LONG", p.Side)
	}
	if !p.Size.Equal(mustDec("1")) {
		t.Errorf("size: got %s, want 1", p.Size)
	}
	if !p.EntryValue.Equal(mustDec("7777.777777777777777778")) {
		t.Errorf("entry value: got %s", p.EntryValue)
	}
}

func TestPosition_PnLKeepsOneRawUnit(t *testing.T) {
	var p state.Position
	p = p.Open(state.SideLong, mustDec("7777.777777777777777778"), mustDec("1"), state.Accumulators{})

	got := p.PnL(mustDec("7000"), state.Accumulators{})
	if want := mustDec("-777.777777777777777779"); !got.Equal(want) {
		t.Errorf("pnl: got %s, want %s", got, want)
	}

	if got := p.PnL(mustDec("7777.777777777777777778"), state.Accumulators{}); !got.IsZero() {
		t.Errorf("pnl at entry: got %s, want 0", got)
	}
}

func TestPosition_ShortPnL(t *testing.T) {
	var p state.Position
	p = p.Open(state.SideShort, mustDec("100"), mustDec("2"), state.Accumulators{})

	got := p.PnL(mustDec("90"), state.Accumulators{})
	if want := mustDec("19.999999999999999999"); !got.Equal(want) {
		t.Errorf("pnl: got %s, want %s", got, want)
	}
}

func TestPosition_CloseFull(t *testing.T) {
	var p state.Position
	p = p.Open(state.SideLong, mustDec("7777.777777777777777778"), mustDec("1"), state.Accumulators{})

	next, rpnl := p.Close(mustDec("8000"), mustDec("1"), state.Accumulators{})
	if !next.IsFlat() || !next.Size.IsZero() || !next.EntryValue.IsZero() {
		t.Errorf("expected flat zero position, got %+v", next)
	}
	if want := mustDec("222.222222222222222221"); !rpnl.Equal(want) {
		t.Errorf("rpnl: got %s, want %s", rpnl, want)
	}
}

func TestPosition_ClosePartialScalesEntry(t *testing.T) {
	var p state.Position
	p = p.Open(state.SideLong, mustDec("100"), mustDec("3"), state.Accumulators{})

	next, rpnl := p.Close(mustDec("110"), mustDec("1"), state.Accumulators{})
	if want := mustDec("9.999999999999999999"); !rpnl.Equal(want) {
		t.Errorf("rpnl: got %s, want %s", rpnl, want)
	}
	if next.Side != state.SideLong || !next.Size.Equal(mustDec("2")) {
		t.Errorf("remaining: got %s %s", next.Side, next.Size)
	}
	if !next.EntryValue.Equal(mustDec("200")) {
		t.Errorf("remaining entry value: got %s, want 200", next.EntryValue)
	}
}

func TestPosition_TradeFlipsThroughFlat(t *testing.T) {
	var p state.Position
	p = p.Open(state.SideLong, mustDec("7000"), mustDec("1"), state.Accumulators{})

	next, rpnl, opened, closed := p.Trade(state.SideShort, mustDec("7100"), mustDec("2"), state.Accumulators{})
	if !opened.Equal(mustDec("1")) || !closed.Equal(mustDec("1")) {
		t.Fatalf("opened/closed: got %s/%s, want 1/1", opened, closed)
	}
	if want := mustDec("99.999999999999999999"); !rpnl.Equal(want) {
		t.Errorf("rpnl: got %s, want %s", rpnl, want)
	}
	if next.Side != state.SideShort || !next.Size.Equal(mustDec("1")) || !next.EntryValue.Equal(mustDec("7100")) {
		t.Errorf("next: got %s %s @ %s", next.Side, next.Size, next.EntryValue)
	}
}

func TestPosition_TradeSameSideMerges(t *testing.T) {
	var p state.Position
	p = p.Open(state.SideLong, mustDec("100"), mustDec("1"), state.Accumulators{})

	next, rpnl, opened, closed := p.Trade(state.SideLong, mustDec("200"), mustDec("1"), state.Accumulators{})
	if !rpnl.IsZero() || !closed.IsZero() || !opened.Equal(mustDec("1")) {
		t.Errorf("rpnl=%s opened=%s closed=%s", rpnl, opened, closed)
	}
	if !next.EntryValue.Equal(mustDec("300")) || !next.Size.Equal(mustDec("2")) {
		t.Errorf("merged: got %s @ %s", next.Size, next.EntryValue)
	}
}

// ============================================================================
// Test: Accumulators
// ============================================================================

func TestPosition_SocialLossIsRetroactive(t *testing.T) {
	var long, short state.Position
	acc := state.Accumulators{}
	long = long.Open(state.SideLong, mustDec("7000"), mustDec("2"), acc)
	short = short.Open(state.SideShort, mustDec("7000"), mustDec("2"), acc)

	before := long.PnL(mustDec("7000"), acc)
	acc.LongSocialLoss = mustDec("666")
	after := long.PnL(mustDec("7000"), acc)

	if diff := before.Sub(after); !diff.Equal(mustDec("1332")) {
		t.Errorf("long pnl shift: got %s, want 1332", diff)
	}
	if got := short.PnL(mustDec("7000"), acc); !got.IsZero() {
		t.Errorf("short pnl must not move: got %s", got)
	}
}

func TestPosition_SocialLossSnapshotOnOpen(t *testing.T) {
	acc := state.Accumulators{LongSocialLoss: mustDec("10")}
	var p state.Position
	p = p.Open(state.SideLong, mustDec("100"), mustDec("1"), acc)

	if got := p.SocialLoss(acc); !got.IsZero() {
		t.Errorf("fresh position accrued social loss %s", got)
	}
}

func TestPosition_FundingSign(t *testing.T) {
	var long, short state.Position
	acc := state.Accumulators{}
	long = long.Open(state.SideLong, mustDec("100"), mustDec("1"), acc)
	short = short.Open(state.SideShort, mustDec("100"), mustDec("1"), acc)

	acc.FundingLoss = mustDec("10")
	if got := long.FundingLoss(acc); !got.Equal(mustDec("10")) {
		t.Errorf("long funding loss: got %s, want 10", got)
	}
	if got := short.FundingLoss(acc); !got.Equal(mustDec("-10")) {
		t.Errorf("short funding loss: got %s, want -10", got)
	}
	if got := long.PnL(mustDec("100"), acc); !got.Equal(mustDec("-10")) {
		t.Errorf("long pnl: got %s, want -10", got)
	}
	if got := short.PnL(mustDec("100"), acc); !got.Equal(mustDec("10")) {
		t.Errorf("short pnl: got %s, want 10", got)
	}
}

func TestSide_Counter(t *testing.T) {
	if state.SideLong.Counter() != state.SideShort || state.SideShort.Counter() != state.SideLong {
		t.Error("counter side mismatch")
	}
	if state.SideFlat.Counter() != state.SideFlat {
		t.Error("flat has no counter side")
	}
}

func TestParseSide(t *testing.T) {
	for in, want := range map[string]state.Side{"buy": state.SideLong, "LONG": state.SideLong, "sell": state.SideShort, "short": state.SideShort} {
		got, err := state.ParseSide(in)
		if err != nil || got != want {
			t.Errorf("ParseSide(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := state.ParseSide("up"); err == nil {
		t.Error("expected error for unknown side")
	}
}
