package amm

import (
	"PerpAMM/internal/event"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

var two = fpmath.FromInt64(2)

// CreatePool seeds an empty pool with amount contracts at the index price.
// The provider pays 2 * index * amount into the pool, takes the short side
// of the pool's initial long and receives amount shares.
func (a *AMM) CreatePool(c state.Call, amount fpmath.Int) error {
	const op = "create pool"
	pc := a.begin(c)
	return a.perp.Atomic(func() error {
		if err := a.requireNormal(op); err != nil {
			return err
		}
		if err := a.requireTradingLot(op, amount); err != nil {
			return err
		}
		if !a.perp.Position(a.proxy).IsFlat() || !a.shares.TotalSupply().IsZero() {
			return state.Errorf(state.InvalidParameter, op, "pool not empty")
		}
		if err := a.initFunding(op); err != nil {
			return err
		}
		price := a.funding.LastIndexPrice
		trader := c.Caller
		if err := a.perp.TransferCash(pc, trader, a.proxy, price.Mul(amount).Mul(two), "create pool"); err != nil {
			return err
		}
		opened, err := a.exchangePosition(pc, trader, state.SideShort, price, amount)
		if err != nil {
			return err
		}
		if err := a.shares.Mint(trader, amount); err != nil {
			return err
		}
		if err := a.forceFunding(op); err != nil {
			return err
		}
		a.out.Emit(&event.PoolCreated{Provider: trader, Amount: amount, Price: price, Shares: amount})
		return a.checkSafety(op, trader, opened)
	})
}

// AddLiquidity adds amount contracts at the fair price x / y: the provider
// pays 2 * price * amount, goes short amount and receives
// supply * amount / y shares.
func (a *AMM) AddLiquidity(c state.Call, amount fpmath.Int) error {
	const op = "add liquidity"
	pc := a.begin(c)
	return a.perp.Atomic(func() error {
		if err := a.requireNormal(op); err != nil {
			return err
		}
		if err := a.requireTradingLot(op, amount); err != nil {
			return err
		}
		x, y, err := a.currentXY(op)
		if err != nil {
			return err
		}
		if !x.IsPositive() || !y.IsPositive() {
			return state.Errorf(state.InvalidParameter, op, "empty pool")
		}
		price := x.Div(y)
		trader := c.Caller
		if err := a.perp.TransferCash(pc, trader, a.proxy, price.Mul(amount).Mul(two), "add liquidity"); err != nil {
			return err
		}
		opened, err := a.exchangePosition(pc, trader, state.SideShort, price, amount)
		if err != nil {
			return err
		}
		minted, err := shareOf(a.shares.TotalSupply(), amount, y)
		if err != nil {
			return err
		}
		if err := a.shares.Mint(trader, minted); err != nil {
			return err
		}
		if err := a.forceFunding(op); err != nil {
			return err
		}
		a.out.Emit(&event.LiquidityAdded{
			Provider: trader,
			Amount:   amount,
			Price:    price,
			Shares:   minted,
			Supply:   a.shares.TotalSupply(),
		})
		return a.checkSafety(op, trader, opened)
	})
}

// DepositAndAddLiquidity deposits collateral and adds liquidity in one
// transaction.
func (a *AMM) DepositAndAddLiquidity(c state.Call, depositAmount, amount fpmath.Int) error {
	return a.perp.Atomic(func() error {
		if depositAmount.IsPositive() {
			if err := a.perp.Deposit(c, depositAmount); err != nil {
				return err
			}
		}
		return a.AddLiquidity(c, amount)
	})
}

// RemoveLiquidity burns shareAmount shares for the matching slice of the
// pool position, rounded down to the trading lot. The provider takes the
// long side of that slice at the fair price and is paid 2 * price * amount.
func (a *AMM) RemoveLiquidity(c state.Call, shareAmount fpmath.Int) error {
	const op = "remove liquidity"
	pc := a.begin(c)
	return a.perp.Atomic(func() error {
		if err := a.requireNormal(op); err != nil {
			return err
		}
		trader := c.Caller
		if !shareAmount.IsPositive() {
			return state.Errorf(state.InvalidParameter, op, "invalid share amount %s", shareAmount)
		}
		if a.shares.BalanceOf(trader).LT(shareAmount) {
			return state.Errorf(state.InsufficientMargin, op, "shareBalance limited")
		}
		x, y, err := a.currentXY(op)
		if err != nil {
			return err
		}
		if !x.IsPositive() || !y.IsPositive() {
			return state.Errorf(state.InvalidParameter, op, "empty pool")
		}
		price := x.Div(y)
		amount, err := shareOf(y, shareAmount, a.shares.TotalSupply())
		if err != nil {
			return err
		}
		if lot := a.perp.Params().TradingLotSize; lot.IsPositive() {
			amount = amount.Sub(amount.Rem(lot))
		}
		if !amount.IsPositive() {
			return state.Errorf(state.InvalidParameter, op, "share amount %s is below one trading lot", shareAmount)
		}
		opened, err := a.exchangePosition(pc, trader, state.SideLong, price, amount)
		if err != nil {
			return err
		}
		if err := a.shares.Burn(trader, shareAmount); err != nil {
			return err
		}
		if err := a.perp.TransferCash(pc, a.proxy, trader, price.Mul(amount).Mul(two), "remove liquidity"); err != nil {
			return err
		}
		if err := a.forceFunding(op); err != nil {
			return err
		}
		a.out.Emit(&event.LiquidityRemoved{
			Provider: trader,
			Amount:   amount,
			Price:    price,
			Shares:   shareAmount,
			Supply:   a.shares.TotalSupply(),
		})
		return a.checkSafety(op, trader, opened)
	})
}

// SettleShare redeems all of the caller's shares once the perpetual is
// SETTLED. The pool position is first closed at the settlement price; the
// holder receives cash * shares / supply, the last holder the remainder.
func (a *AMM) SettleShare(c state.Call) (payout fpmath.Int, err error) {
	const op = "settle share"
	pc := a.begin(c)
	err = a.perp.Atomic(func() error {
		if err := state.InSettled.Require(op, a.perp.Status()); err != nil {
			return err
		}
		trader := c.Caller
		shares := a.shares.BalanceOf(trader)
		if !shares.IsPositive() {
			return state.Errorf(state.InvalidParameter, op, "shareBalance limited")
		}
		if err := a.perp.ClosePositionAtSettlement(pc, a.proxy); err != nil {
			return err
		}
		cash := a.perp.Cash(a.proxy).Balance.Max(fpmath.Zero)
		supply := a.shares.TotalSupply()
		payout = cash
		if shares.LT(supply) {
			if payout, err = shareOf(cash, shares, supply); err != nil {
				return err
			}
		}
		if err := a.shares.Burn(trader, shares); err != nil {
			return err
		}
		if err := a.perp.PayOut(pc, a.proxy, trader, payout); err != nil {
			return err
		}
		a.out.Emit(&event.ShareSettled{Provider: trader, Shares: shares, Payout: payout})
		return nil
	})
	return payout, err
}

// TransferShares moves pool shares between holders. Allowed until the
// perpetual is SETTLED.
func (a *AMM) TransferShares(c state.Call, to uuid.UUID, amount fpmath.Int) error {
	const op = "transfer shares"
	a.AdvanceTo(c.Timestamp)
	return a.perp.Atomic(func() error {
		if err := state.NotSettled.Require(op, a.perp.Status()); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return state.Errorf(state.InvalidParameter, op, "invalid share amount %s", amount)
		}
		if a.shares.BalanceOf(c.Caller).LT(amount) {
			return state.Errorf(state.InsufficientMargin, op, "shareBalance limited")
		}
		if err := a.shares.Transfer(c.Caller, to, amount); err != nil {
			return err
		}
		a.out.Emit(&event.ShareTransferred{From: c.Caller, To: to, Shares: amount})
		return nil
	})
}

// exchangePosition trades amount between trader (on side) and the pool
// (on the counter side) at price.
func (a *AMM) exchangePosition(pc state.Call, trader uuid.UUID, side state.Side, price, amount fpmath.Int) (fpmath.Int, error) {
	opened, err := a.perp.Trade(pc, trader, side, price, amount)
	if err != nil {
		return fpmath.Zero, err
	}
	if _, err := a.perp.Trade(pc, a.proxy, side.Counter(), price, amount); err != nil {
		return fpmath.Zero, err
	}
	return opened, nil
}

func (a *AMM) checkSafety(op string, trader uuid.UUID, opened fpmath.Int) error {
	if err := a.perp.CheckTraderSafety(op, trader, opened); err != nil {
		return err
	}
	return a.perp.RequireSafe(op, a.proxy, "amm unsafe")
}

// shareOf returns v * num / den on unsigned 256-bit words with a single
// rounding step.
func shareOf(v, num, den fpmath.Int) (fpmath.Int, error) {
	uv, err := fpmath.UintFromInt(v)
	if err != nil {
		return fpmath.Zero, err
	}
	un, err := fpmath.UintFromInt(num)
	if err != nil {
		return fpmath.Zero, err
	}
	ud, err := fpmath.UintFromInt(den)
	if err != nil {
		return fpmath.Zero, err
	}
	r, err := fpmath.UFrac(uv, un, ud)
	if err != nil {
		return fpmath.Zero, err
	}
	return r.Int()
}
