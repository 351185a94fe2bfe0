package ledger

import (
	"PerpAMM/internal/event"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// Deposit credits amount to the caller and pulls it from the caller's wallet.
func (l *Perpetual) Deposit(c state.Call, amount fpmath.Int) error {
	return l.Atomic(func() error {
		return l.deposit("deposit", c.Caller, amount)
	})
}

// DepositFor deposits on behalf of trader. The AMM proxy and the exchange
// use it for deposit-and-trade calls.
func (l *Perpetual) DepositFor(c state.Call, trader uuid.UUID, amount fpmath.Int) error {
	const op = "deposit for"
	return l.Atomic(func() error {
		if err := l.auth.Authorize(op, c.Caller, trader, state.RoleAMMProxy, state.RoleExchange, state.RoleSelf); err != nil {
			return err
		}
		return l.deposit(op, trader, amount)
	})
}

func (l *Perpetual) deposit(op string, id uuid.UUID, amount fpmath.Int) error {
	if err := state.NotSettled.Require(op, l.status); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return state.Errorf(state.InvalidParameter, op, "invalid amount %s", amount)
	}
	cash := l.addCash(id, amount)
	l.stage.In(id, amount)
	l.out.Emit(&event.Deposit{Account: id, Amount: amount, Balance: cash.Balance})
	return nil
}

// ApplyForWithdrawal starts the withdrawal lock for amount. A new
// application replaces the previous one; zero cancels it.
func (l *Perpetual) ApplyForWithdrawal(c state.Call, amount fpmath.Int) error {
	const op = "apply for withdrawal"
	return l.Atomic(func() error {
		if err := state.NotSettled.Require(op, l.status); err != nil {
			return err
		}
		if amount.IsNegative() {
			return state.Errorf(state.InvalidParameter, op, "invalid amount %s", amount)
		}
		height, err := c.HeightAfter(op, l.params.WithdrawalLockBlockCount)
		if err != nil {
			return err
		}
		cash := l.cash[c.Caller]
		cash.AppliedBalance = amount
		cash.AppliedHeight = height
		l.setCash(c.Caller, cash)
		l.out.Emit(&event.WithdrawalApplied{
			Account:       c.Caller,
			Amount:        amount,
			AppliedHeight: cash.AppliedHeight,
		})
		return nil
	})
}

// Withdraw pays out part of an applied withdrawal once its lock expired.
// The account must remain initial-margin safe.
func (l *Perpetual) Withdraw(c state.Call, amount fpmath.Int) error {
	const op = "withdraw"
	return l.Atomic(func() error {
		if err := state.InNormal.Require(op, l.status); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return state.Errorf(state.InvalidParameter, op, "invalid amount %s", amount)
		}
		cash := l.cash[c.Caller]
		if amount.GT(cash.AppliedBalance) {
			return state.Errorf(state.InsufficientMargin, op, "insufficient applied balance")
		}
		if !cash.Unlocked(c.Block) {
			return state.Errorf(state.WrongStatus, op, "applied height not reached")
		}
		cash.Balance = cash.Balance.Sub(amount)
		cash.AppliedBalance = cash.AppliedBalance.Sub(amount)
		l.setCash(c.Caller, cash)
		if err := l.RequireIMSafe(op, c.Caller, "withdrawal im unsafe"); err != nil {
			return err
		}
		l.stage.Out(c.Caller, amount)
		l.out.Emit(&event.Withdrawal{
			Account: c.Caller,
			Amount:  amount,
			Balance: cash.Balance,
			Applied: cash.AppliedBalance,
		})
		return nil
	})
}

// TransferCash moves cash from one ledger account to another. Only the AMM
// proxy may call it; the AMM uses it for fees, prizes and liquidity.
func (l *Perpetual) TransferCash(c state.Call, from, to uuid.UUID, amount fpmath.Int, reason string) error {
	const op = "transfer cash"
	return l.Atomic(func() error {
		if err := l.auth.Authorize(op, c.Caller, from, state.RoleAMMProxy); err != nil {
			return err
		}
		if amount.IsNegative() {
			return state.Errorf(state.InvalidParameter, op, "invalid amount %s", amount)
		}
		l.transferCash(from, to, amount, reason)
		return nil
	})
}

// DepositToInsuranceFund adds the caller's collateral to the fund.
func (l *Perpetual) DepositToInsuranceFund(c state.Call, amount fpmath.Int) error {
	const op = "deposit to insurance fund"
	return l.Atomic(func() error {
		if err := state.NotSettled.Require(op, l.status); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return state.Errorf(state.InvalidParameter, op, "invalid amount %s", amount)
		}
		fund := l.insurance
		fund.Balance = fund.Balance.Add(amount)
		state.Assign(l.j, &l.insurance, fund)
		l.stage.In(c.Caller, amount)
		l.out.Emit(&event.InsuranceFundChanged{Account: c.Caller, Amount: amount, Balance: fund.Balance})
		return nil
	})
}

// WithdrawFromInsuranceFund pays fund collateral to governance.
func (l *Perpetual) WithdrawFromInsuranceFund(c state.Call, amount fpmath.Int) error {
	const op = "withdraw from insurance fund"
	return l.Atomic(func() error {
		if err := l.auth.Authorize(op, c.Caller, uuid.Nil, state.RoleGovernance); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return state.Errorf(state.InvalidParameter, op, "invalid amount %s", amount)
		}
		fund := l.insurance
		if amount.GT(fund.Balance) {
			return state.Errorf(state.InsufficientMargin, op, "insufficient funds")
		}
		fund.Balance = fund.Balance.Sub(amount)
		state.Assign(l.j, &l.insurance, fund)
		l.stage.Out(c.Caller, amount)
		l.out.Emit(&event.InsuranceFundChanged{Account: c.Caller, Amount: amount.Neg(), Balance: fund.Balance})
		return nil
	})
}
