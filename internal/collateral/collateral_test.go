package collateral_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpAMM/internal/collateral"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"
)

func TestToken_TransferInOut(t *testing.T) {
	tok := collateral.NewToken()
	a := uuid.New()
	require.NoError(t, tok.Mint(a, fpmath.FromInt64(100)))

	require.NoError(t, tok.TransferIn(a, fpmath.FromInt64(60)))
	assert.Equal(t, "40", tok.BalanceOf(a).String())
	assert.Equal(t, "60", tok.Custody().String())

	err := tok.TransferIn(a, fpmath.FromInt64(41))
	assert.ErrorIs(t, err, collateral.ErrInsufficientFunds)

	require.NoError(t, tok.TransferOut(a, fpmath.FromInt64(10)))
	assert.Equal(t, "50", tok.BalanceOf(a).String())
	assert.ErrorIs(t, tok.TransferOut(a, fpmath.FromInt64(51)), collateral.ErrInsufficientFunds)
	assert.Equal(t, "100", tok.Supply().String())
}

func TestStage_FlushRunsQueuedTransfers(t *testing.T) {
	tok := collateral.NewToken()
	a, b := uuid.New(), uuid.New()
	require.NoError(t, tok.Mint(a, fpmath.FromInt64(10)))

	j := &state.Journal{}
	stage := collateral.NewStage(tok, j)
	stage.In(a, fpmath.FromInt64(10))
	stage.Out(b, fpmath.FromInt64(4))
	stage.In(a, fpmath.Zero)
	assert.Equal(t, 2, stage.Pending())

	require.NoError(t, stage.Flush())
	assert.Zero(t, stage.Pending())
	assert.Equal(t, "4", tok.BalanceOf(b).String())
	assert.Equal(t, "6", tok.Custody().String())
}

func TestStage_FailedFlushReversesExecutedTransfers(t *testing.T) {
	tok := collateral.NewToken()
	a, b := uuid.New(), uuid.New()
	require.NoError(t, tok.Mint(a, fpmath.FromInt64(10)))

	stage := collateral.NewStage(tok, &state.Journal{})
	stage.In(a, fpmath.FromInt64(10))
	stage.Out(b, fpmath.FromInt64(11))

	err := stage.Flush()
	require.ErrorIs(t, err, collateral.ErrInsufficientFunds)
	assert.Equal(t, "10", tok.BalanceOf(a).String())
	assert.True(t, tok.Custody().IsZero())
	assert.True(t, tok.BalanceOf(b).IsZero())
}

func TestStage_RollbackDropsQueuedTransfers(t *testing.T) {
	tok := collateral.NewToken()
	j := &state.Journal{}
	stage := collateral.NewStage(tok, j)

	err := state.Atomic(j, func() error {
		stage.In(uuid.New(), fpmath.One)
		return assert.AnError
	})
	require.Error(t, err)
	assert.Zero(t, stage.Pending())
}
