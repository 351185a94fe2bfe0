package ledger

import (
	"PerpAMM/internal/event"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// Liquidate lets the caller take over up to maxAmount of an unsafe
// victim's position at the mark price. The victim pays the liquidation
// penalty to the caller and the penalty fund rate to the insurance fund. A
// bankrupt victim's negative cash is covered by the insurance fund as far
// as it goes; the rest is recorded as a shortfall of the opposite side for
// governance to socialize while settling.
func (l *Perpetual) Liquidate(c state.Call, victim uuid.UUID, maxAmount fpmath.Int) (price, amount fpmath.Int, err error) {
	const op = "liquidate"
	err = l.Atomic(func() error {
		liquidator := c.Caller
		if liquidator == victim {
			return state.Errorf(state.InvalidCaller, op, "self liquidate")
		}
		if err := state.NotSettled.Require(op, l.status); err != nil {
			return err
		}
		p := l.params
		if !maxAmount.IsPositive() || !maxAmount.IsMultipleOf(p.LotSize) {
			return state.Errorf(state.InvalidParameter, op, "invalid lot size")
		}
		m, err := l.margin(victim)
		if err != nil {
			return err
		}
		if m.IsSafe() {
			return state.Errorf(state.InvalidParameter, op, "safe account")
		}

		pos := l.positions[victim]
		price = m.MarkPrice
		amount = l.liquidationAmount(m, pos).Min(maxAmount)
		amount = amount.Min(pos.Size.Sub(pos.Size.Rem(p.LotSize)))
		if !amount.IsPositive() {
			return state.Errorf(state.InvalidParameter, op, "nothing to liquidate")
		}

		side := pos.Side
		if _, _, err := l.trade(victim, side.Counter(), price, amount); err != nil {
			return err
		}
		opened, _, err := l.trade(liquidator, side, price, amount)
		if err != nil {
			return err
		}

		value := price.Mul(amount)
		lp := value.Mul(p.LiquidationPenaltyRate)
		fp := value.Mul(p.PenaltyFundRate)
		l.transferCash(victim, liquidator, lp, "liquidation penalty")
		l.addCash(victim, fp.Neg())
		fund := l.insurance
		fund.Balance = fund.Balance.Add(fp)

		covered, shortfall := fpmath.Zero, fpmath.Zero
		if cash := l.cash[victim]; cash.Balance.IsNegative() {
			deficit := cash.Balance.Neg()
			covered, shortfall = fund.ComputeCoverage(deficit)
			fund.Balance = fund.Balance.Sub(covered)
			fund = fund.WithShortfall(side.Counter(), shortfall)
			l.addCash(victim, deficit)
		}
		state.Assign(l.j, &l.insurance, fund)

		if opened.IsPositive() {
			err = l.RequireIMSafe(op, liquidator, "liquidator im unsafe")
		} else {
			err = l.RequireSafe(op, liquidator, "liquidator unsafe")
		}
		if err != nil {
			return err
		}

		l.out.Emit(&event.Liquidation{
			Liquidator:        liquidator,
			Victim:            victim,
			Side:              side,
			Price:             price,
			Amount:            amount,
			LiquidatorPenalty: lp,
			FundPenalty:       fp,
			Covered:           covered,
			Shortfall:         shortfall,
			VictimBalance:     l.cash[victim].Balance,
			LiquidatorBalance: l.cash[liquidator].Balance,
		})
		return nil
	})
	if err != nil {
		return fpmath.Zero, fpmath.Zero, err
	}
	return price, amount, nil
}

// liquidationAmount is the size to close so that the victim is back at
// initial margin after penalties, rounded up to the lot size and capped at
// the position size. When penalties exceed the initial margin rate the
// whole position goes.
func (l *Perpetual) liquidationAmount(m state.Margin, pos state.Position) fpmath.Int {
	p := l.params
	rate := p.LiquidationPenaltyRate.Add(p.PenaltyFundRate).Sub(p.InitialMarginRate)
	if rate.Sign() >= 0 || !m.MarkPrice.IsPositive() {
		return pos.Size
	}
	amount := m.MarginBalance.Sub(m.PositionMargin).Div(rate).Div(m.MarkPrice)
	if amount.IsPositive() {
		amount = amount.Ceil(p.LotSize)
	}
	return amount.Min(pos.Size)
}
