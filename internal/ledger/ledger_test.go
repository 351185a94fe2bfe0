package ledger_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpAMM/internal/collateral"
	"PerpAMM/internal/event"
	"PerpAMM/internal/ledger"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"
)

func mustDec(s string) fpmath.Int {
	return fpmath.MustParse(s)
}

// staticPrice is a price source with a mark price set by the test and no
// funding.
type staticPrice struct {
	mark fpmath.Int
}

func (p *staticPrice) CurrentMarkPrice() (fpmath.Int, error) {
	return p.mark, nil
}

func (p *staticPrice) CurrentAccumulatedFundingPerContract() (fpmath.Int, error) {
	return fpmath.Zero, nil
}

type fixture struct {
	token *collateral.Token
	price *staticPrice
	perp  *ledger.Perpetual

	gov, exchange, proxy uuid.UUID
	u1, u2, u3           uuid.UUID
	block                uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		token:    collateral.NewToken(),
		price:    &staticPrice{mark: mustDec("7000")},
		gov:      uuid.New(),
		exchange: uuid.New(),
		proxy:    ledger.SystemAccount(ledger.SystemAMMProxy),
		u1:       uuid.New(),
		u2:       uuid.New(),
		u3:       uuid.New(),
		block:    10,
	}
	f.perp = ledger.New(&state.Journal{}, f.token, ledger.Config{
		Governance: f.gov,
		Params:     state.DefaultParams(),
	})
	f.perp.SetPriceSource(f.price)
	require.NoError(t, f.perp.GrantRole(f.call(f.gov), state.RoleExchange, f.exchange))
	require.NoError(t, f.perp.GrantRole(f.call(f.gov), state.RoleAMMProxy, f.proxy))
	for _, id := range []uuid.UUID{f.u1, f.u2, f.u3, f.gov} {
		require.NoError(t, f.token.Mint(id, mustDec("100000")))
	}
	return f
}

func (f *fixture) call(id uuid.UUID) state.Call {
	return state.Call{Caller: id, Block: f.block, Timestamp: 1000}
}

// matched opens u1 LONG 1 and u2 SHORT 1 at 7000 through the exchange.
func (f *fixture) matched(t *testing.T, d1, d2 string) {
	t.Helper()
	require.NoError(t, f.perp.Deposit(f.call(f.u1), mustDec(d1)))
	require.NoError(t, f.perp.Deposit(f.call(f.u2), mustDec(d2)))
	require.NoError(t, f.perp.SetBroker(f.call(f.u1), f.exchange))
	require.NoError(t, f.perp.SetBroker(f.call(f.u2), f.exchange))
	f.block += 5
	require.NoError(t, f.perp.MatchTrade(f.call(f.exchange), f.u1, f.u2, state.SideLong, mustDec("7000"), mustDec("1")))
}

func TestAccountPath(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	assert.Equal(t, "user:550e8400-e29b-41d4-a716-446655440000", ledger.AccountPath(id))
	assert.Equal(t, "system:dev", ledger.AccountPath(ledger.SystemAccount(ledger.SystemDev)))
	assert.Equal(t, ledger.AccountScopeSystem, ledger.ScopeOf(ledger.SystemAccount(ledger.SystemAMMProxy)))
	assert.Equal(t, ledger.AccountScopeUser, ledger.ScopeOf(id))
}

func TestDepositAndWithdraw(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.perp.Deposit(f.call(f.u1), mustDec("1000")))
	assert.Equal(t, "1000", f.perp.Cash(f.u1).Balance.String())
	assert.Equal(t, "99000", f.token.BalanceOf(f.u1).String())
	assert.Equal(t, "1000", f.token.Custody().String())

	err := f.perp.Withdraw(f.call(f.u1), mustDec("100"))
	assert.ErrorIs(t, err, &state.Error{Kind: state.InsufficientMargin, Reason: "insufficient applied balance"})

	require.NoError(t, f.perp.ApplyForWithdrawal(f.call(f.u1), mustDec("300")))
	assert.Equal(t, uint64(15), f.perp.Cash(f.u1).AppliedHeight)

	f.block = 12
	err = f.perp.Withdraw(f.call(f.u1), mustDec("100"))
	assert.ErrorIs(t, err, &state.Error{Kind: state.WrongStatus, Reason: "applied height not reached"})

	f.block = 15
	require.NoError(t, f.perp.Withdraw(f.call(f.u1), mustDec("100")))
	cash := f.perp.Cash(f.u1)
	assert.Equal(t, "900", cash.Balance.String())
	assert.Equal(t, "200", cash.AppliedBalance.String())
	assert.Equal(t, "99100", f.token.BalanceOf(f.u1).String())

	assert.ErrorIs(t, f.perp.Withdraw(f.call(f.u1), mustDec("250")), state.ErrInsufficientMargin)
	assert.ErrorIs(t, f.perp.Deposit(f.call(f.u1), fpmath.Zero), state.ErrInvalidParameter)
}

func TestDeposit_FailedTransferRollsBack(t *testing.T) {
	f := newFixture(t)
	poor := uuid.New()
	pending := f.perp.Outbox().Len()
	err := f.perp.Deposit(f.call(poor), mustDec("1"))
	require.ErrorIs(t, err, collateral.ErrInsufficientFunds)
	assert.True(t, f.perp.Cash(poor).Balance.IsZero())
	assert.Equal(t, pending, f.perp.Outbox().Len())
}

func TestWithdraw_MustStayIMSafe(t *testing.T) {
	f := newFixture(t)
	f.matched(t, "1000", "10000")
	require.NoError(t, f.perp.ApplyForWithdrawal(f.call(f.u1), mustDec("300")))
	f.block += 5

	err := f.perp.Withdraw(f.call(f.u1), mustDec("300"))
	assert.ErrorIs(t, err, &state.Error{Kind: state.InsufficientMargin, Reason: "withdrawal im unsafe"})
	assert.Equal(t, "930", f.perp.Cash(f.u1).Balance.String())

	require.NoError(t, f.perp.ApplyForWithdrawal(f.call(f.u1), mustDec("230")))
	f.block += 5
	require.NoError(t, f.perp.Withdraw(f.call(f.u1), mustDec("230")))

	available, err := f.perp.AvailableMargin(f.u1)
	require.NoError(t, err)
	assert.True(t, available.IsZero())
}

func TestMatchTrade(t *testing.T) {
	f := newFixture(t)
	f.matched(t, "10000", "10000")

	p1, p2 := f.perp.Position(f.u1), f.perp.Position(f.u2)
	assert.Equal(t, state.SideLong, p1.Side)
	assert.Equal(t, state.SideShort, p2.Side)
	assert.Equal(t, "7000", p1.EntryValue.String())
	assert.Equal(t, "9930", f.perp.Cash(f.u1).Balance.String())
	assert.Equal(t, "9930", f.perp.Cash(f.u2).Balance.String())
	assert.Equal(t, "140", f.perp.Cash(f.perp.Dev()).Balance.String())
	assert.Equal(t, "1", f.perp.TotalSize(state.SideLong).String())
	assert.Equal(t, "1", f.perp.TotalSize(state.SideShort).String())
	require.NoError(t, ledger.ValidatePositions(f.perp))
}

func TestMatchTrade_Rejections(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.perp.Deposit(f.call(f.u1), mustDec("10000")))
	require.NoError(t, f.perp.Deposit(f.call(f.u3), mustDec("10000")))
	require.NoError(t, f.perp.SetBroker(f.call(f.u1), f.exchange))
	require.NoError(t, f.perp.SetBroker(f.call(f.u3), f.exchange))

	err := f.perp.MatchTrade(f.call(f.exchange), f.u1, f.u3, state.SideLong, mustDec("7000"), mustDec("1"))
	assert.ErrorIs(t, err, state.ErrInvalidCaller, "broker lock has not expired")

	f.block += 5
	err = f.perp.MatchTrade(f.call(f.u2), f.u1, f.u3, state.SideLong, mustDec("7000"), mustDec("1"))
	assert.ErrorIs(t, err, state.ErrInvalidCaller)

	err = f.perp.MatchTrade(f.call(f.exchange), f.u1, f.u1, state.SideLong, mustDec("7000"), mustDec("1"))
	assert.ErrorIs(t, err, state.ErrInvalidParameter)

	err = f.perp.MatchTrade(f.call(f.exchange), f.u1, f.u3, state.SideLong, mustDec("7000"), mustDec("20"))
	assert.ErrorIs(t, err, &state.Error{Kind: state.InsufficientMargin, Reason: "im unsafe"})
	assert.True(t, f.perp.Position(f.u1).IsFlat())
	assert.Equal(t, "10000", f.perp.Cash(f.u1).Balance.String())
}

func TestTrade_OnlyProxy(t *testing.T) {
	f := newFixture(t)
	_, err := f.perp.Trade(f.call(f.u1), f.u1, state.SideLong, mustDec("7000"), mustDec("1"))
	assert.ErrorIs(t, err, state.ErrInvalidCaller)

	err = f.perp.TransferCash(f.call(f.u1), f.u1, f.u2, mustDec("1"), "gift")
	assert.ErrorIs(t, err, state.ErrInvalidCaller)
}

func TestTrade_UnbalancedIsRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.perp.Deposit(f.call(f.u1), mustDec("10000")))
	_, err := f.perp.Trade(f.call(f.proxy), f.u1, state.SideLong, mustDec("7000"), mustDec("1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open interest imbalance")
	assert.True(t, f.perp.Position(f.u1).IsFlat())
}

func TestLiquidate(t *testing.T) {
	f := underwater(t)

	_, _, err := f.perp.Liquidate(f.call(f.u3), f.u1, mustDec("1"))
	assert.ErrorIs(t, err, &state.Error{Kind: state.InvalidParameter, Reason: "safe account"})

	f.price.mark = mustDec("6600")
	_, _, err = f.perp.Liquidate(f.call(f.u1), f.u1, mustDec("1"))
	assert.ErrorIs(t, err, state.ErrInvalidCaller)

	price, amount, err := f.perp.Liquidate(f.call(f.u3), f.u1, mustDec("1"))
	require.NoError(t, err)
	assert.Equal(t, "6600", price.String())
	assert.Equal(t, "1", amount.String())

	assert.True(t, f.perp.Position(f.u1).IsFlat())
	assert.Equal(t, "263.999999999999999999", f.perp.Cash(f.u1).Balance.String())
	pos := f.perp.Position(f.u3)
	assert.Equal(t, state.SideLong, pos.Side)
	assert.Equal(t, "6600", pos.EntryValue.String())
	assert.Equal(t, "10033", f.perp.Cash(f.u3).Balance.String())
	assert.Equal(t, "33", f.perp.InsuranceFund().Balance.String())
}

func TestLiquidate_BankruptcyRecordsShortfall(t *testing.T) {
	f := underwater(t)
	require.NoError(t, f.perp.DepositToInsuranceFund(f.call(f.gov), mustDec("100")))

	f.price.mark = mustDec("6000")
	bankrupt, err := f.perp.IsBankrupt(f.u1)
	require.NoError(t, err)
	assert.True(t, bankrupt)

	_, _, err = f.perp.Liquidate(f.call(f.u3), f.u1, mustDec("1"))
	require.NoError(t, err)

	fund := f.perp.InsuranceFund()
	assert.True(t, fund.Balance.IsZero())
	assert.Equal(t, "200.000000000000000001", fund.ShortShortfall.String())
	assert.True(t, fund.LongShortfall.IsZero())
	assert.True(t, f.perp.Cash(f.u1).Balance.IsZero())
	assert.Equal(t, "10030", f.perp.Cash(f.u3).Balance.String())

	require.NoError(t, ledger.ValidateConservation(f.perp, f.token.Custody(), fpmath.Raw(10)))
}

func TestInsuranceFund(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.perp.DepositToInsuranceFund(f.call(f.u1), mustDec("100")))
	assert.Equal(t, "100", f.perp.InsuranceFund().Balance.String())

	assert.ErrorIs(t, f.perp.WithdrawFromInsuranceFund(f.call(f.u1), mustDec("10")), state.ErrInvalidCaller)
	assert.ErrorIs(t, f.perp.WithdrawFromInsuranceFund(f.call(f.gov), mustDec("101")), state.ErrInsufficientMargin)

	before := f.token.BalanceOf(f.gov)
	require.NoError(t, f.perp.WithdrawFromInsuranceFund(f.call(f.gov), mustDec("40")))
	assert.Equal(t, "60", f.perp.InsuranceFund().Balance.String())
	assert.Equal(t, before.Add(mustDec("40")).String(), f.token.BalanceOf(f.gov).String())
}

func TestSetParameter(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.perp.SetParameter(f.call(f.gov), state.ParamPoolFeeRate, mustDec("0.02")))
	assert.Equal(t, "0.02", f.perp.Params().PoolFeeRate.String())

	assert.ErrorIs(t, f.perp.SetParameter(f.call(f.u1), state.ParamPoolFeeRate, mustDec("0.03")), state.ErrInvalidCaller)
	assert.ErrorIs(t, f.perp.SetParameter(f.call(f.gov), "noSuchKey", fpmath.One), state.ErrInvalidParameter)
	assert.ErrorIs(t, f.perp.SetParameter(f.call(f.gov), state.ParamLongSocialLoss, fpmath.One), state.ErrWrongStatus)

	last := f.perp.Outbox().Drain()
	require.NotEmpty(t, last)
	changed, ok := last[len(last)-1].(*event.ParameterChanged)
	require.True(t, ok)
	assert.Equal(t, state.ParamPoolFeeRate, changed.Name)
	assert.Equal(t, "0.01", changed.Previous.String())
}

func TestGlobalSettlement(t *testing.T) {
	f := newFixture(t)
	f.matched(t, "10000", "10000")

	assert.ErrorIs(t, f.perp.BeginGlobalSettlement(f.call(f.u1), mustDec("7000")), state.ErrInvalidCaller)
	assert.ErrorIs(t, f.perp.EndGlobalSettlement(f.call(f.gov)), state.ErrWrongStatus)
	assert.ErrorIs(t, f.perp.SetCashBalance(f.call(f.gov), f.u1, fpmath.One), state.ErrWrongStatus)

	pnl, err := f.perp.PnL(f.u1)
	require.NoError(t, err)
	require.NoError(t, f.perp.BeginGlobalSettlement(f.call(f.gov), mustDec("7000")))
	after, err := f.perp.PnL(f.u1)
	require.NoError(t, err)
	assert.Equal(t, pnl.String(), after.String())
	assert.ErrorIs(t, f.perp.BeginGlobalSettlement(f.call(f.gov), mustDec("7000")), state.ErrWrongStatus)

	require.NoError(t, f.perp.SetParameter(f.call(f.gov), state.ParamLongSocialLoss, mustDec("666")))
	after, err = f.perp.PnL(f.u1)
	require.NoError(t, err)
	assert.Equal(t, "666", pnl.Sub(after).String())
	assert.ErrorIs(t, f.perp.SetParameter(f.call(f.gov), state.ParamLongSocialLoss, mustDec("600")), state.ErrInvalidParameter)
	assert.ErrorIs(t, f.perp.SetParameter(f.call(f.gov), state.ParamInitialMarginRate, mustDec("0.2")), state.ErrWrongStatus)

	assert.ErrorIs(t, f.perp.Withdraw(f.call(f.u1), fpmath.One), state.ErrWrongStatus)
	assert.ErrorIs(t, f.perp.MatchTrade(f.call(f.exchange), f.u1, f.u2, state.SideLong, mustDec("7000"), mustDec("1")), state.ErrWrongStatus)
	require.NoError(t, f.perp.Deposit(f.call(f.u3), mustDec("10")))
	require.NoError(t, f.perp.ApplyForWithdrawal(f.call(f.u3), mustDec("10")))
	_, err = f.perp.Settle(f.call(f.u1))
	assert.ErrorIs(t, err, state.ErrWrongStatus)

	require.NoError(t, f.perp.EndGlobalSettlement(f.call(f.gov)))
	assert.Equal(t, state.StatusSettled, f.perp.Status())
	assert.ErrorIs(t, f.perp.Deposit(f.call(f.u1), fpmath.One), state.ErrWrongStatus)
	assert.ErrorIs(t, f.perp.SetParameter(f.call(f.gov), state.ParamLongSocialLoss, mustDec("1000")), state.ErrWrongStatus)
	_, _, err = f.perp.Liquidate(f.call(f.u3), f.u1, mustDec("1"))
	assert.ErrorIs(t, err, state.ErrWrongStatus)

	w1 := f.token.BalanceOf(f.u1)
	payout, err := f.perp.Settle(f.call(f.u1))
	require.NoError(t, err)
	assert.Equal(t, "9264", payout.String())
	assert.Equal(t, w1.Add(payout).String(), f.token.BalanceOf(f.u1).String())
	assert.True(t, f.perp.Position(f.u1).IsFlat())

	payout, err = f.perp.Settle(f.call(f.u1))
	require.NoError(t, err)
	assert.True(t, payout.IsZero())

	payout, err = f.perp.Settle(f.call(f.u2))
	require.NoError(t, err)
	assert.Equal(t, "9930", payout.String())
}

func TestSetCashBalance(t *testing.T) {
	f := newFixture(t)
	f.matched(t, "10000", "10000")
	require.NoError(t, f.perp.BeginGlobalSettlement(f.call(f.gov), mustDec("7000")))

	assert.ErrorIs(t, f.perp.SetCashBalance(f.call(f.u1), f.u1, mustDec("1")), state.ErrInvalidCaller)
	require.NoError(t, f.perp.SetCashBalance(f.call(f.gov), f.u1, mustDec("10928")))
	require.NoError(t, f.perp.EndGlobalSettlement(f.call(f.gov)))

	payout, err := f.perp.Settle(f.call(f.u1))
	require.NoError(t, err)
	assert.Equal(t, "10928", payout.String())
}

func TestSnapshotRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.matched(t, "10000", "10000")

	data, err := json.Marshal(f.perp.Snapshot())
	require.NoError(t, err)
	var snap ledger.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	restored := ledger.New(&state.Journal{}, f.token, ledger.Config{Params: state.DefaultParams()})
	restored.SetPriceSource(f.price)
	require.NoError(t, restored.Restore(snap))

	assert.Equal(t, f.perp.Accounts(), restored.Accounts())
	for _, id := range f.perp.Accounts() {
		assert.Equal(t, f.perp.Cash(id).Balance.String(), restored.Cash(id).Balance.String())
		assert.Equal(t, f.perp.Position(id).EntryValue.String(), restored.Position(id).EntryValue.String())
		assert.Equal(t, f.perp.Position(id).Side, restored.Position(id).Side)
	}
	assert.Equal(t, f.exchange, restored.CurrentBroker(f.u1, f.block))
	assert.True(t, restored.Authorizer().Has(state.RoleGovernance, f.gov))
	assert.True(t, restored.Authorizer().Has(state.RoleExchange, f.exchange))
	assert.Equal(t, "1", restored.TotalSize(state.SideLong).String())
}

func TestBroker_TakesEffectAfterLock(t *testing.T) {
	f := newFixture(t)
	other := uuid.New()

	require.NoError(t, f.perp.SetBroker(f.call(f.u1), f.exchange))
	assert.Equal(t, uuid.Nil, f.perp.CurrentBroker(f.u1, f.block+4))
	assert.Equal(t, f.exchange, f.perp.CurrentBroker(f.u1, f.block+5))

	f.block += 5
	require.NoError(t, f.perp.SetBroker(f.call(f.u1), other))
	assert.Equal(t, f.exchange, f.perp.CurrentBroker(f.u1, f.block))
	assert.Equal(t, other, f.perp.CurrentBroker(f.u1, f.block+5))
}

func TestRevokeRole(t *testing.T) {
	f := newFixture(t)
	f.matched(t, "1000", "1000")

	require.NoError(t, f.perp.RevokeRole(f.call(f.gov), state.RoleExchange, f.exchange))
	err := f.perp.MatchTrade(f.call(f.exchange), f.u1, f.u2, state.SideLong, mustDec("7000"), mustDec("1"))
	assert.ErrorIs(t, err, state.ErrInvalidCaller)

	assert.ErrorIs(t, f.perp.RevokeRole(f.call(f.u1), state.RoleExchange, f.u1), state.ErrInvalidCaller)
	assert.ErrorIs(t, f.perp.GrantRole(f.call(f.gov), state.RoleSelf, f.u1), state.ErrInvalidParameter)
}

// underwater opens u1 LONG 1 at 7000 on 800 of cash against u2, with u3
// funded to liquidate and whole-contract lots.
func underwater(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	require.NoError(t, f.perp.SetParameter(f.call(f.gov), state.ParamTradingLotSize, mustDec("1")))
	require.NoError(t, f.perp.SetParameter(f.call(f.gov), state.ParamLotSize, mustDec("1")))
	f.matched(t, "800", "10000")
	require.NoError(t, f.perp.Deposit(f.call(f.u3), mustDec("10000")))
	return f
}

func TestLiquidate_AllowedWhileSettling(t *testing.T) {
	f := underwater(t)
	require.NoError(t, f.perp.BeginGlobalSettlement(f.call(f.gov), mustDec("6300")))

	price, amount, err := f.perp.Liquidate(f.call(f.u3), f.u1, mustDec("1"))
	require.NoError(t, err)
	assert.Equal(t, "6300", price.String())
	assert.Equal(t, "1", amount.String())
	assert.True(t, f.perp.Position(f.u1).IsFlat())
	assert.Equal(t, state.SideLong, f.perp.Position(f.u3).Side)
	assert.Equal(t, state.StatusSettling, f.perp.Status())

	require.NoError(t, ledger.ValidateConservation(f.perp, f.token.Custody(), fpmath.Raw(10)))
}

func TestSocialLoss_RetiresShortfall(t *testing.T) {
	f := underwater(t)
	require.NoError(t, f.perp.DepositToInsuranceFund(f.call(f.gov), mustDec("100")))
	f.price.mark = mustDec("6000")
	_, _, err := f.perp.Liquidate(f.call(f.u3), f.u1, mustDec("1"))
	require.NoError(t, err)
	shortfall := f.perp.InsuranceFund().ShortShortfall
	require.Equal(t, "200.000000000000000001", shortfall.String())
	require.Equal(t, "1", f.perp.TotalSize(state.SideShort).String())

	require.NoError(t, f.perp.BeginGlobalSettlement(f.call(f.gov), mustDec("6000")))
	require.NoError(t, ledger.ValidateConservation(f.perp, f.token.Custody(), fpmath.Raw(10)))
	f.perp.Outbox().Drain()

	require.NoError(t, f.perp.SetParameter(f.call(f.gov), state.ParamShortSocialLoss, mustDec("100")))
	assert.Equal(t, "100.000000000000000001", f.perp.InsuranceFund().ShortShortfall.String())
	require.NoError(t, ledger.ValidateConservation(f.perp, f.token.Custody(), fpmath.Raw(10)))

	require.NoError(t, f.perp.SetParameter(f.call(f.gov), state.ParamShortSocialLoss, shortfall))
	fund := f.perp.InsuranceFund()
	assert.True(t, fund.ShortShortfall.IsZero())
	assert.True(t, fund.LongShortfall.IsZero())
	require.NoError(t, ledger.ValidateConservation(f.perp, f.token.Custody(), fpmath.Raw(10)))

	events := f.perp.Outbox().Drain()
	require.Len(t, events, 2)
	first := events[0].(*event.ParameterChanged)
	second := events[1].(*event.ParameterChanged)
	assert.Equal(t, "100", first.ShortfallRetired.String())
	assert.Equal(t, "100.000000000000000001", second.ShortfallRetired.String())

	// Raising the accumulator past the shortfall retires nothing more.
	require.NoError(t, f.perp.SetParameter(f.call(f.gov), state.ParamShortSocialLoss, mustDec("300")))
	assert.True(t, f.perp.InsuranceFund().ShortShortfall.IsZero())
}

func TestLockHeights_RejectOverflow(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.perp.Deposit(f.call(f.u1), mustDec("1000")))
	f.block = math.MaxUint64 - 1

	assert.ErrorIs(t, f.perp.ApplyForWithdrawal(f.call(f.u1), mustDec("100")), state.ErrArithmeticOverflow)
	assert.ErrorIs(t, f.perp.SetBroker(f.call(f.u1), f.exchange), state.ErrArithmeticOverflow)
	assert.True(t, f.perp.Cash(f.u1).AppliedBalance.IsZero())
	assert.Equal(t, uuid.Nil, f.perp.CurrentBroker(f.u1, math.MaxUint64))
}
