package state

import fpmath "PerpAMM/internal/math"

// InsuranceFund absorbs liquidation penalties and covers bankrupt accounts.
// Losses it cannot cover stay recorded per side until governance socializes
// them during settlement.
type InsuranceFund struct {
	Balance        fpmath.Int `json:"balance"`
	LongShortfall  fpmath.Int `json:"longShortfall"`
	ShortShortfall fpmath.Int `json:"shortShortfall"`
}

// CanCoverDeficit checks if the fund alone can absorb deficit.
func (f InsuranceFund) CanCoverDeficit(deficit fpmath.Int) bool {
	return f.Balance.GTE(deficit)
}

// ComputeCoverage returns how much of deficit the fund covers and what
// remains uncovered.
func (f InsuranceFund) ComputeCoverage(deficit fpmath.Int) (covered, remaining fpmath.Int) {
	if f.CanCoverDeficit(deficit) {
		return deficit, fpmath.Zero
	}
	covered = f.Balance.Max(fpmath.Zero)
	return covered, deficit.Sub(covered)
}

// Shortfall returns the unsocialized loss borne by side.
func (f InsuranceFund) Shortfall(side Side) fpmath.Int {
	if side == SideLong {
		return f.LongShortfall
	}
	if side == SideShort {
		return f.ShortShortfall
	}
	return fpmath.Zero
}

// WithShortfall returns a copy with loss added to side's shortfall.
func (f InsuranceFund) WithShortfall(side Side, loss fpmath.Int) InsuranceFund {
	switch side {
	case SideLong:
		f.LongShortfall = f.LongShortfall.Add(loss)
	case SideShort:
		f.ShortShortfall = f.ShortShortfall.Add(loss)
	}
	return f
}

// RetireShortfall removes up to amount from side's shortfall once the loss
// has been moved into that side's social-loss accumulator. It returns the
// updated fund and the amount actually retired.
func (f InsuranceFund) RetireShortfall(side Side, amount fpmath.Int) (InsuranceFund, fpmath.Int) {
	retired := f.Shortfall(side).Min(amount.Max(fpmath.Zero))
	f = f.WithShortfall(side, retired.Neg())
	return f, retired
}
