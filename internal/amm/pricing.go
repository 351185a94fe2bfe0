package amm

import (
	"PerpAMM/internal/ledger"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// poolState values the pool account without consulting the ledger's price
// source: x is cash net of entry value and accrued social and funding
// losses (floored at zero), y is the position size.
func (a *AMM) poolState() (x, y fpmath.Int, err error) {
	defer fpmath.Recover(&err)
	pos := a.perp.Position(a.proxy)
	acc := state.Accumulators{
		LongSocialLoss:  a.perp.SocialLossPerContract(state.SideLong),
		ShortSocialLoss: a.perp.SocialLossPerContract(state.SideShort),
		FundingLoss:     a.funding.AccumulatedFundingPerContract,
	}
	x = a.perp.Cash(a.proxy).Balance.
		Sub(pos.EntryValue).
		Sub(pos.SocialLoss(acc)).
		Sub(pos.FundingLoss(acc))
	return x.Max(fpmath.Zero), pos.Size, nil
}

// currentXY brings funding up to date and returns the pool state.
func (a *AMM) currentXY(op string) (x, y fpmath.Int, err error) {
	if err := a.fundingUpdate(op); err != nil {
		return fpmath.Zero, fpmath.Zero, err
	}
	return a.poolState()
}

func (a *AMM) fairPrice() (fpmath.Int, error) {
	x, y, err := a.poolState()
	if err != nil {
		return fpmath.Zero, err
	}
	return fpmath.Div(x, y)
}

// CurrentAvailableMargin returns x, the pool's available margin.
func (a *AMM) CurrentAvailableMargin() (x fpmath.Int, err error) {
	err = a.perp.View(func() error {
		var e error
		x, _, e = a.currentXY("available margin")
		return e
	})
	return x, err
}

// PositionSize returns y, the pool's position size.
func (a *AMM) PositionSize() fpmath.Int {
	return a.perp.Position(a.proxy).Size
}

// CurrentFairPrice returns x / y.
func (a *AMM) CurrentFairPrice() (price fpmath.Int, err error) {
	err = a.perp.View(func() error {
		x, y, e := a.currentXY("fair price")
		if e != nil {
			return e
		}
		if !y.IsPositive() {
			return state.Errorf(state.InvalidParameter, "fair price", "empty pool")
		}
		price, e = fpmath.Div(x, y)
		return e
	})
	return price, err
}

// BuyPrice quotes the price of buying amount from the pool: x / (y - amount).
func (a *AMM) BuyPrice(amount fpmath.Int) (price fpmath.Int, err error) {
	err = a.perp.View(func() error {
		var e error
		price, e = a.buyPrice("buy price", amount)
		return e
	})
	return price, err
}

// SellPrice quotes the price of selling amount to the pool: x / (y + amount).
func (a *AMM) SellPrice(amount fpmath.Int) (price fpmath.Int, err error) {
	err = a.perp.View(func() error {
		var e error
		price, e = a.sellPrice("sell price", amount)
		return e
	})
	return price, err
}

func (a *AMM) buyPrice(op string, amount fpmath.Int) (fpmath.Int, error) {
	x, y, err := a.currentXY(op)
	if err != nil {
		return fpmath.Zero, err
	}
	if !x.IsPositive() || !y.IsPositive() {
		return fpmath.Zero, state.Errorf(state.InvalidParameter, op, "empty pool")
	}
	if amount.GTE(y) {
		return fpmath.Zero, state.Errorf(state.InvalidParameter, op, "amount %s exceeds pool size %s", amount, y)
	}
	return fpmath.Div(x, y.Sub(amount))
}

func (a *AMM) sellPrice(op string, amount fpmath.Int) (fpmath.Int, error) {
	x, y, err := a.currentXY(op)
	if err != nil {
		return fpmath.Zero, err
	}
	if !x.IsPositive() || !y.IsPositive() {
		return fpmath.Zero, state.Errorf(state.InvalidParameter, op, "empty pool")
	}
	return fpmath.Div(x, y.Add(amount))
}

// Buy opens or increases a long for the caller against the pool. The fill
// price must not exceed limitPrice and the call must land by deadline.
func (a *AMM) Buy(c state.Call, amount, limitPrice fpmath.Int, deadline int64) (fpmath.Int, error) {
	return a.trade(c, c.Caller, state.SideLong, amount, limitPrice, deadline)
}

// Sell is Buy's mirror: the fill price must not be below limitPrice.
func (a *AMM) Sell(c state.Call, amount, limitPrice fpmath.Int, deadline int64) (fpmath.Int, error) {
	return a.trade(c, c.Caller, state.SideShort, amount, limitPrice, deadline)
}

// BuyFromWhitelisted buys on behalf of trader; only the exchange may call it.
func (a *AMM) BuyFromWhitelisted(c state.Call, trader uuid.UUID, amount, limitPrice fpmath.Int, deadline int64) (fpmath.Int, error) {
	if err := a.perp.Authorizer().Authorize("buy from whitelisted", c.Caller, trader, state.RoleExchange); err != nil {
		return fpmath.Zero, err
	}
	return a.trade(c, trader, state.SideLong, amount, limitPrice, deadline)
}

// SellFromWhitelisted sells on behalf of trader; only the exchange may call it.
func (a *AMM) SellFromWhitelisted(c state.Call, trader uuid.UUID, amount, limitPrice fpmath.Int, deadline int64) (fpmath.Int, error) {
	if err := a.perp.Authorizer().Authorize("sell from whitelisted", c.Caller, trader, state.RoleExchange); err != nil {
		return fpmath.Zero, err
	}
	return a.trade(c, trader, state.SideShort, amount, limitPrice, deadline)
}

// DepositAndBuy deposits collateral and buys in one transaction.
func (a *AMM) DepositAndBuy(c state.Call, depositAmount, amount, limitPrice fpmath.Int, deadline int64) (price fpmath.Int, err error) {
	err = a.perp.Atomic(func() error {
		if depositAmount.IsPositive() {
			if err := a.perp.Deposit(c, depositAmount); err != nil {
				return err
			}
		}
		var e error
		price, e = a.trade(c, c.Caller, state.SideLong, amount, limitPrice, deadline)
		return e
	})
	return price, err
}

// DepositAndSell deposits collateral and sells in one transaction.
func (a *AMM) DepositAndSell(c state.Call, depositAmount, amount, limitPrice fpmath.Int, deadline int64) (price fpmath.Int, err error) {
	err = a.perp.Atomic(func() error {
		if depositAmount.IsPositive() {
			if err := a.perp.Deposit(c, depositAmount); err != nil {
				return err
			}
		}
		var e error
		price, e = a.trade(c, c.Caller, state.SideShort, amount, limitPrice, deadline)
		return e
	})
	return price, err
}

// trade fills amount on side for trader against the pool at the bonding
// curve price, then charges the pool fee (to the pool) and the dev fee.
func (a *AMM) trade(c state.Call, trader uuid.UUID, side state.Side, amount, limitPrice fpmath.Int, deadline int64) (price fpmath.Int, err error) {
	op := "buy"
	if side == state.SideShort {
		op = "sell"
	}
	pc := a.begin(c)
	err = a.perp.Atomic(func() error {
		if err := a.requireNormal(op); err != nil {
			return err
		}
		if err := a.requireTradingLot(op, amount); err != nil {
			return err
		}
		var e error
		if side == state.SideLong {
			if price, e = a.buyPrice(op, amount); e != nil {
				return e
			}
			if limitPrice.LT(price) {
				return state.Errorf(state.SlippageExceeded, op, "price limited")
			}
		} else {
			if price, e = a.sellPrice(op, amount); e != nil {
				return e
			}
			if limitPrice.GT(price) {
				return state.Errorf(state.SlippageExceeded, op, "price limited")
			}
		}
		if a.now > deadline {
			return state.Errorf(state.Expired, op, "deadline exceeded")
		}

		opened, err := a.exchangePosition(pc, trader, side, price, amount)
		if err != nil {
			return err
		}
		if err := a.chargeFees(pc, trader, price.Mul(amount)); err != nil {
			return err
		}
		if err := a.forceFunding(op); err != nil {
			return err
		}
		return a.checkSafety(op, trader, opened)
	})
	return price, err
}

func (a *AMM) chargeFees(pc state.Call, trader uuid.UUID, notional fpmath.Int) error {
	p := a.perp.Params()
	if err := a.perp.TransferCash(pc, trader, a.proxy, notional.Mul(p.PoolFeeRate), "pool fee"); err != nil {
		return err
	}
	return a.perp.TransferCash(pc, trader, a.perp.Dev(), notional.Mul(p.PoolDevFeeRate), "pool dev fee")
}

var _ ledger.PriceSource = (*AMM)(nil)
