package ledger

import (
	"PerpAMM/internal/event"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// Trade applies one leg of an AMM trade to trader: the opposite exposure is
// closed at price with its realized PnL booked to cash, the rest opens on
// side. Only the AMM proxy may call it, and only while NORMAL. The caller is
// responsible for the post-trade margin checks (CheckTraderSafety).
func (l *Perpetual) Trade(c state.Call, trader uuid.UUID, side state.Side, price, amount fpmath.Int) (opened fpmath.Int, err error) {
	const op = "trade"
	err = l.Atomic(func() error {
		if err := l.auth.Authorize(op, c.Caller, trader, state.RoleAMMProxy); err != nil {
			return err
		}
		if err := state.InNormal.Require(op, l.status); err != nil {
			return err
		}
		if err := l.validateFill(op, side, price, amount, l.params.LotSize); err != nil {
			return err
		}
		var e error
		opened, _, e = l.trade(trader, side, price, amount)
		return e
	})
	return opened, err
}

func (l *Perpetual) validateFill(op string, side state.Side, price, amount, lot fpmath.Int) error {
	if side != state.SideLong && side != state.SideShort {
		return state.Errorf(state.InvalidParameter, op, "invalid side")
	}
	if !price.IsPositive() {
		return state.Errorf(state.InvalidParameter, op, "invalid price %s", price)
	}
	if !amount.IsPositive() {
		return state.Errorf(state.InvalidParameter, op, "invalid amount %s", amount)
	}
	if lot.IsPositive() && !amount.IsMultipleOf(lot) {
		return state.Errorf(state.InvalidParameter, op, "invalid lot size")
	}
	return nil
}

// trade is the unchecked position update shared by trades, liquidation and
// settlement.
func (l *Perpetual) trade(id uuid.UUID, side state.Side, price, amount fpmath.Int) (opened, closed fpmath.Int, err error) {
	acc, err := l.Accumulators()
	if err != nil {
		return fpmath.Zero, fpmath.Zero, err
	}
	next, rpnl, opened, closed := l.positions[id].Trade(side, price, amount, acc)
	l.setPosition(id, next)
	cash := l.addCash(id, rpnl)
	l.out.Emit(&event.Trade{
		Account:     id,
		Side:        side,
		Price:       price,
		Amount:      amount,
		Opened:      opened,
		Closed:      closed,
		RealizedPnL: rpnl,
		Position:    next,
		Balance:     cash.Balance,
	})
	return opened, closed, nil
}

// MatchTrade settles an exchange-matched trade between taker and maker.
// Both must have the calling exchange as their current broker. Dev fees
// are charged on the notional; each side that opened exposure must be
// initial-margin safe, the others maintenance-margin safe.
func (l *Perpetual) MatchTrade(c state.Call, taker, maker uuid.UUID, takerSide state.Side, price, amount fpmath.Int) error {
	const op = "match trade"
	return l.Atomic(func() error {
		if err := l.auth.Authorize(op, c.Caller, uuid.Nil, state.RoleExchange); err != nil {
			return err
		}
		if err := state.InNormal.Require(op, l.status); err != nil {
			return err
		}
		if taker == maker {
			return state.Errorf(state.InvalidParameter, op, "self trade")
		}
		if err := l.validateFill(op, takerSide, price, amount, l.params.TradingLotSize); err != nil {
			return err
		}
		for _, id := range []uuid.UUID{taker, maker} {
			if l.CurrentBroker(id, c.Block) != c.Caller {
				return state.Errorf(state.InvalidCaller, op, "invalid broker for %s", id)
			}
		}

		takerOpened, _, err := l.trade(taker, takerSide, price, amount)
		if err != nil {
			return err
		}
		makerOpened, _, err := l.trade(maker, takerSide.Counter(), price, amount)
		if err != nil {
			return err
		}

		value := price.Mul(amount)
		l.transferCash(taker, l.dev, value.Mul(l.params.TakerDevFeeRate), "taker dev fee")
		l.transferCash(maker, l.dev, value.Mul(l.params.MakerDevFeeRate), "maker dev fee")

		if err := l.CheckTraderSafety(op, taker, takerOpened); err != nil {
			return err
		}
		return l.CheckTraderSafety(op, maker, makerOpened)
	})
}

// SetBroker schedules broker to act for the caller after the broker lock
// window.
func (l *Perpetual) SetBroker(c state.Call, broker uuid.UUID) error {
	const op = "set broker"
	return l.Atomic(func() error {
		if err := state.NotSettled.Require(op, l.status); err != nil {
			return err
		}
		height, err := c.HeightAfter(op, l.params.BrokerLockBlockCount)
		if err != nil {
			return err
		}
		rec := brokerRecord{
			Previous:      l.CurrentBroker(c.Caller, c.Block),
			Current:       broker,
			AppliedHeight: height,
		}
		state.Put(l.j, l.brokers, c.Caller, rec)
		l.out.Emit(&event.BrokerChanged{Account: c.Caller, Broker: broker, AppliedHeight: rec.AppliedHeight})
		return nil
	})
}

// CurrentBroker returns the broker of id effective at block.
func (l *Perpetual) CurrentBroker(id uuid.UUID, block uint64) uuid.UUID {
	rec := l.brokers[id]
	if block >= rec.AppliedHeight {
		return rec.Current
	}
	return rec.Previous
}
