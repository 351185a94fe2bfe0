package state

import fpmath "PerpAMM/internal/math"

// Margin is an account valued at a mark price.
//
//	MarginBalance     = cash + PnL
//	PositionMargin    = mark * size * initialMarginRate
//	MaintenanceMargin = mark * size * maintenanceMarginRate
//	AvailableMargin   = MarginBalance - PositionMargin - appliedBalance
type Margin struct {
	MarkPrice         fpmath.Int
	PnL               fpmath.Int
	MarginBalance     fpmath.Int
	PositionMargin    fpmath.Int
	MaintenanceMargin fpmath.Int
	AvailableMargin   fpmath.Int
}

// ComputeMargin values cash and pos at mark.
func ComputeMargin(cash CashAccount, pos Position, acc Accumulators, mark fpmath.Int, p Params) Margin {
	value := pos.Value(mark)
	m := Margin{
		MarkPrice:         mark,
		PnL:               pos.PnL(mark, acc),
		PositionMargin:    value.Mul(p.InitialMarginRate),
		MaintenanceMargin: value.Mul(p.MaintenanceMarginRate),
	}
	m.MarginBalance = cash.Balance.Add(m.PnL)
	m.AvailableMargin = m.MarginBalance.Sub(m.PositionMargin).Sub(cash.AppliedBalance)
	return m
}

// IsIMSafe returns true if the account can open exposure.
func (m Margin) IsIMSafe() bool {
	return !m.AvailableMargin.IsNegative()
}

// IsSafe returns true if the account is above maintenance margin.
func (m Margin) IsSafe() bool {
	return m.MarginBalance.GTE(m.MaintenanceMargin)
}

// IsBankrupt returns true if the margin balance is negative.
func (m Margin) IsBankrupt() bool {
	return m.MarginBalance.IsNegative()
}
