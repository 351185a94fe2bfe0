package state_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"
)

func TestAtomic_CommitKeepsWrites(t *testing.T) {
	var j state.Journal
	x := 1
	m := map[string]int{}

	err := state.Atomic(&j, func() error {
		state.Assign(&j, &x, 2)
		state.Put(&j, m, "a", 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, x)
	assert.Equal(t, 1, m["a"])
	assert.False(t, j.InTransaction())
}

func TestAtomic_ErrorRevertsEverything(t *testing.T) {
	var j state.Journal
	x := 1
	m := map[string]int{"a": 1}
	boom := errors.New("boom")

	err := state.Atomic(&j, func() error {
		state.Assign(&j, &x, 2)
		state.Put(&j, m, "a", 5)
		state.Put(&j, m, "b", 7)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, x)
	assert.Equal(t, map[string]int{"a": 1}, m)
}

func TestAtomic_RecoversFixedPointPanic(t *testing.T) {
	var j state.Journal
	x := 1

	err := state.Atomic(&j, func() error {
		state.Assign(&j, &x, 2)
		_ = fpmath.One.Div(fpmath.Zero)
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fpmath.ErrDivisionByZero))
	assert.Equal(t, state.DivisionByZero, state.KindOf(err))
	assert.Equal(t, 1, x)
}

func TestAtomic_NestedJoinsOuter(t *testing.T) {
	var j state.Journal
	x := 1

	err := state.Atomic(&j, func() error {
		if err := state.Atomic(&j, func() error {
			state.Assign(&j, &x, 2)
			return nil
		}); err != nil {
			return err
		}
		return errors.New("outer fails")
	})
	require.Error(t, err)
	assert.Equal(t, 1, x, "inner write must revert with the outer transaction")
}

func TestView_AlwaysReverts(t *testing.T) {
	var j state.Journal
	x := 1
	var seen int
	err := state.View(&j, func() error {
		state.Assign(&j, &x, 9)
		seen = x
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9, seen)
	assert.Equal(t, 1, x)
}

func TestAuthorizer(t *testing.T) {
	var j state.Journal
	a := state.NewAuthorizer()
	gov, user := uuid.New(), uuid.New()
	a.Grant(&j, state.RoleGovernance, gov)

	assert.NoError(t, a.Authorize("set", gov, user, state.RoleGovernance))
	assert.NoError(t, a.Authorize("deposit", user, user, state.RoleSelf))

	err := a.Authorize("set", user, user, state.RoleGovernance)
	assert.True(t, errors.Is(err, state.ErrInvalidCaller))

	err = state.Atomic(&j, func() error {
		a.Revoke(&j, state.RoleGovernance, gov)
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.True(t, a.Has(state.RoleGovernance, gov), "revoke must roll back")
	assert.Equal(t, []uuid.UUID{gov}, a.Members(state.RoleGovernance))
}
