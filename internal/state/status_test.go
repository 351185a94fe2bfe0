package state_test

import (
	"errors"
	"math"
	"testing"

	"PerpAMM/internal/state"
)

func TestStatus_OneWayTransitions(t *testing.T) {
	cases := []struct {
		from, to state.Status
		ok       bool
	}{
		{state.StatusNormal, state.StatusSettling, true},
		{state.StatusSettling, state.StatusSettled, true},
		{state.StatusNormal, state.StatusSettled, false},
		{state.StatusSettling, state.StatusNormal, false},
		{state.StatusSettled, state.StatusNormal, false},
		{state.StatusSettled, state.StatusSettling, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.ok {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestPhases_Require(t *testing.T) {
	if err := state.NotSettled.Require("deposit", state.StatusSettling); err != nil {
		t.Errorf("deposit in SETTLING: %v", err)
	}
	err := state.InNormal.Require("withdraw", state.StatusSettling)
	if !errors.Is(err, state.ErrWrongStatus) {
		t.Fatalf("expected WrongStatus, got %v", err)
	}
	if state.KindOf(err) != state.WrongStatus {
		t.Errorf("kind: got %s", state.KindOf(err))
	}
	if !state.AnyPhase.Allows(state.StatusSettled) {
		t.Error("AnyPhase must allow SETTLED")
	}
}

func TestCall_HeightAfter(t *testing.T) {
	c := state.Call{Block: 10}
	h, err := c.HeightAfter("apply", 5)
	if err != nil || h != 15 {
		t.Fatalf("got %d, %v", h, err)
	}

	c.Block = math.MaxUint64 - 2
	if _, err := c.HeightAfter("apply", 5); !errors.Is(err, state.ErrArithmeticOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
	if h, err := c.HeightAfter("apply", 2); err != nil || h != math.MaxUint64 {
		t.Errorf("got %d, %v", h, err)
	}
}
