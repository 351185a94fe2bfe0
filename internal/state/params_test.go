package state_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"
)

func TestParams_WithKnownKeys(t *testing.T) {
	p := state.DefaultParams()

	next, err := p.With(state.ParamInitialMarginRate, mustDec("0.2"))
	require.NoError(t, err)
	assert.Equal(t, "0.2", next.InitialMarginRate.String())
	assert.Equal(t, "0.1", p.InitialMarginRate.String(), "receiver must be untouched")

	next, err = next.With(state.ParamWithdrawalLockBlockCount, fpmath.Raw(12))
	require.NoError(t, err)
	assert.Equal(t, uint64(12), next.WithdrawalLockBlockCount)

	got, err := next.Get(state.ParamWithdrawalLockBlockCount)
	require.NoError(t, err)
	assert.True(t, got.Equal(fpmath.Raw(12)))
}

func TestParams_RejectsUnknownKey(t *testing.T) {
	_, err := state.DefaultParams().With("fundingRate", fpmath.One)
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrInvalidParameter))
	assert.Contains(t, err.Error(), "key not exists")

	_, err = state.DefaultParams().Get("fundingRate")
	assert.True(t, errors.Is(err, state.ErrInvalidParameter))
}

func TestParams_MarginRateOrdering(t *testing.T) {
	p := state.DefaultParams()

	_, err := p.With(state.ParamMaintenanceMarginRate, mustDec("0.1"))
	assert.Error(t, err, "mmr must stay below imr")

	_, err = p.With(state.ParamInitialMarginRate, mustDec("0.05"))
	assert.Error(t, err, "imr must stay above mmr")

	_, err = p.With(state.ParamLiquidationPenaltyRate, mustDec("0.05"))
	assert.Error(t, err, "penalty must stay below mmr")

	_, err = p.With(state.ParamEMAAlpha, fpmath.Zero)
	assert.Error(t, err)
}

func TestParams_LotSizes(t *testing.T) {
	p := state.DefaultParams()

	p, err := p.With(state.ParamLotSize, fpmath.Raw(10))
	require.Error(t, err, "trading lot 1 is not a multiple of 10")

	p = state.DefaultParams()
	p, err = p.With(state.ParamTradingLotSize, fpmath.Raw(10))
	require.NoError(t, err)
	p, err = p.With(state.ParamLotSize, fpmath.Raw(5))
	require.NoError(t, err)
	_, err = p.With(state.ParamTradingLotSize, fpmath.Raw(12))
	assert.Error(t, err)
}

func TestParams_ZeroRecordAcceptsGenesisOrder(t *testing.T) {
	var p state.Params
	var err error
	for _, kv := range []struct {
		k string
		v fpmath.Int
	}{
		{state.ParamInitialMarginRate, mustDec("0.1")},
		{state.ParamMaintenanceMarginRate, mustDec("0.05")},
		{state.ParamLiquidationPenaltyRate, mustDec("0.005")},
		{state.ParamPenaltyFundRate, mustDec("0.005")},
		{state.ParamLotSize, fpmath.Raw(1)},
		{state.ParamTradingLotSize, fpmath.Raw(1)},
	} {
		p, err = p.With(kv.k, kv.v)
		require.NoError(t, err, kv.k)
	}
}

func TestSocialLossParam(t *testing.T) {
	side, ok := state.SocialLossParam(state.ParamLongSocialLoss)
	assert.True(t, ok)
	assert.Equal(t, state.SideLong, side)

	_, ok = state.SocialLossParam(state.ParamPoolFeeRate)
	assert.False(t, ok)
}

func TestParseParam(t *testing.T) {
	v, err := state.ParseParam(state.ParamWithdrawalLockBlockCount, "5")
	require.NoError(t, err)
	p, err := state.DefaultParams().With(state.ParamWithdrawalLockBlockCount, v)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), p.WithdrawalLockBlockCount)

	v, err = state.ParseParam(state.ParamInitialMarginRate, "0.2")
	require.NoError(t, err)
	assert.Equal(t, "0.2", v.String())

	_, err = state.ParseParam(state.ParamBrokerLockBlockCount, "1.5")
	assert.Error(t, err)
}
