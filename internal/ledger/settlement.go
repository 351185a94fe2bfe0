package ledger

import (
	"PerpAMM/internal/event"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// BeginGlobalSettlement freezes trading at price (NORMAL -> SETTLING).
// Funding is brought up to date first and stays frozen afterwards.
func (l *Perpetual) BeginGlobalSettlement(c state.Call, price fpmath.Int) error {
	const op = "begin global settlement"
	return l.Atomic(func() error {
		if err := l.auth.Authorize(op, c.Caller, uuid.Nil, state.RoleGovernance); err != nil {
			return err
		}
		if err := l.transition(op, state.StatusSettling); err != nil {
			return err
		}
		if !price.IsPositive() {
			return state.Errorf(state.InvalidParameter, op, "invalid settlement price %s", price)
		}
		if l.price != nil {
			if _, err := l.price.CurrentAccumulatedFundingPerContract(); err != nil {
				return err
			}
		}
		state.Assign(l.j, &l.status, state.StatusSettling)
		state.Assign(l.j, &l.settlementPrice, price)
		l.out.Emit(&event.SettlementBegun{Price: price})
		return nil
	})
}

// EndGlobalSettlement opens redemption (SETTLING -> SETTLED).
func (l *Perpetual) EndGlobalSettlement(c state.Call) error {
	const op = "end global settlement"
	return l.Atomic(func() error {
		if err := l.auth.Authorize(op, c.Caller, uuid.Nil, state.RoleGovernance); err != nil {
			return err
		}
		if err := l.transition(op, state.StatusSettled); err != nil {
			return err
		}
		state.Assign(l.j, &l.status, state.StatusSettled)
		l.out.Emit(&event.SettlementEnded{Price: l.settlementPrice})
		return nil
	})
}

func (l *Perpetual) transition(op string, next state.Status) error {
	if !l.status.CanTransitionTo(next) {
		return state.Errorf(state.WrongStatus, op, "wrong perpetual status %s", l.status)
	}
	return nil
}

// SetCashBalance overrides an account's cash while settling.
func (l *Perpetual) SetCashBalance(c state.Call, id uuid.UUID, value fpmath.Int) error {
	const op = "set cash balance"
	return l.Atomic(func() error {
		if err := l.auth.Authorize(op, c.Caller, uuid.Nil, state.RoleGovernance); err != nil {
			return err
		}
		if err := state.InSettling.Require(op, l.status); err != nil {
			return err
		}
		cash := l.cash[id]
		prev := cash.Balance
		cash.Balance = value
		l.setCash(id, cash)
		l.out.Emit(&event.CashBalanceSet{Account: id, Previous: prev, Balance: value})
		return nil
	})
}

// Settle redeems the caller's account once SETTLED: the position closes at
// the settlement price and max(cash, 0) is paid out. Settling an already
// settled account does nothing.
func (l *Perpetual) Settle(c state.Call) (payout fpmath.Int, err error) {
	const op = "settle"
	err = l.Atomic(func() error {
		if err := state.InSettled.Require(op, l.status); err != nil {
			return err
		}
		var e error
		payout, e = l.settle(c.Caller, c.Caller)
		return e
	})
	return payout, err
}

func (l *Perpetual) settle(id, recipient uuid.UUID) (fpmath.Int, error) {
	rpnl, err := l.closeAtSettlement(id)
	if err != nil {
		return fpmath.Zero, err
	}
	cash := l.cash[id]
	if cash.Balance.IsZero() && cash.AppliedBalance.IsZero() && rpnl.IsZero() {
		return fpmath.Zero, nil
	}
	payout := cash.Balance.Max(fpmath.Zero)
	l.setCash(id, state.CashAccount{})
	l.stage.Out(recipient, payout)
	l.out.Emit(&event.Settle{
		Account:     id,
		Price:       l.settlementPrice,
		RealizedPnL: rpnl,
		Payout:      payout,
	})
	return payout, nil
}

func (l *Perpetual) closeAtSettlement(id uuid.UUID) (fpmath.Int, error) {
	pos := l.positions[id]
	if pos.IsFlat() {
		return fpmath.Zero, nil
	}
	before := l.cash[id].Balance
	if _, _, err := l.trade(id, pos.Side.Counter(), l.settlementPrice, pos.Size); err != nil {
		return fpmath.Zero, err
	}
	return l.cash[id].Balance.Sub(before), nil
}

// ClosePositionAtSettlement closes account's position at the settlement
// price without paying out. The AMM proxy uses it to value the pool before
// redeeming shares.
func (l *Perpetual) ClosePositionAtSettlement(c state.Call, id uuid.UUID) error {
	const op = "close position at settlement"
	return l.Atomic(func() error {
		if err := l.auth.Authorize(op, c.Caller, id, state.RoleAMMProxy); err != nil {
			return err
		}
		if err := state.InSettled.Require(op, l.status); err != nil {
			return err
		}
		_, err := l.closeAtSettlement(id)
		return err
	})
}

// PayOut sends amount of from's cash to an external wallet once SETTLED.
// The AMM proxy uses it to redeem pool shares.
func (l *Perpetual) PayOut(c state.Call, from, to uuid.UUID, amount fpmath.Int) error {
	const op = "pay out"
	return l.Atomic(func() error {
		if err := l.auth.Authorize(op, c.Caller, from, state.RoleAMMProxy); err != nil {
			return err
		}
		if err := state.InSettled.Require(op, l.status); err != nil {
			return err
		}
		cash := l.cash[from]
		if amount.IsNegative() || amount.GT(cash.Balance) {
			return state.Errorf(state.InsufficientMargin, op, "insufficient cash")
		}
		cash.Balance = cash.Balance.Sub(amount)
		l.setCash(from, cash)
		l.stage.Out(to, amount)
		l.out.Emit(&event.Withdrawal{Account: from, Amount: amount, Balance: cash.Balance, Applied: cash.AppliedBalance})
		return nil
	})
}
