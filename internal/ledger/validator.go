package ledger

import (
	"fmt"

	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"
)

// ValidateOpenInterest verifies every long is matched by a short and no
// size is booked as flat.
func ValidateOpenInterest(l *Perpetual) error {
	long, short := l.totals[state.SideLong], l.totals[state.SideShort]
	if !long.Equal(short) {
		return fmt.Errorf("open interest imbalance: long %s, short %s", long, short)
	}
	if flat := l.totals[state.SideFlat]; !flat.IsZero() {
		return fmt.Errorf("flat open interest is non-zero: %s", flat)
	}
	return nil
}

// ValidatePositions verifies side == FLAT iff size == 0 for every account
// and that the totals match the sum of positions.
func ValidatePositions(l *Perpetual) error {
	sums := map[state.Side]fpmath.Int{}
	for id, pos := range l.positions {
		if pos.IsFlat() != pos.Size.IsZero() {
			return fmt.Errorf("position %s has side %s with size %s", AccountPath(id), pos.Side, pos.Size)
		}
		if pos.Size.IsNegative() {
			return fmt.Errorf("position %s has negative size %s", AccountPath(id), pos.Size)
		}
		sums[pos.Side] = sums[pos.Side].Add(pos.Size)
	}
	for _, side := range []state.Side{state.SideLong, state.SideShort} {
		if !sums[side].Equal(l.totals[side]) {
			return fmt.Errorf("total %s size %s does not match positions %s", side, l.totals[side], sums[side])
		}
	}
	return nil
}

// TotalCash returns the cash held on the ledger: every account plus the
// insurance fund.
func TotalCash(l *Perpetual) fpmath.Int {
	total := l.insurance.Balance
	for _, c := range l.cash {
		total = total.Add(c.Balance)
	}
	return total
}

// CustodySurplus returns custody minus everything the ledger owes: margin
// balances at the current mark price and the insurance fund. Uncovered
// bankruptcy shortfalls are added back, since the ledger still owes them
// until governance socializes them.
func CustodySurplus(l *Perpetual, custody fpmath.Int) (fpmath.Int, error) {
	owed := l.insurance.Balance
	err := l.View(func() error {
		for _, id := range l.Accounts() {
			m, err := l.margin(id)
			if err != nil {
				return err
			}
			owed = owed.Add(m.MarginBalance)
		}
		return nil
	})
	if err != nil {
		return fpmath.Zero, err
	}
	shortfall := l.insurance.LongShortfall.Add(l.insurance.ShortShortfall)
	return custody.Sub(owed).Add(shortfall), nil
}

// ValidateConservation fails when custody and the ledger disagree by more
// than tolerance. Rounding leaves a few raw units of dust per position.
func ValidateConservation(l *Perpetual, custody, tolerance fpmath.Int) error {
	surplus, err := CustodySurplus(l, custody)
	if err != nil {
		return err
	}
	if surplus.Abs().GT(tolerance) {
		return fmt.Errorf("custody and ledger differ by %s (tolerance %s)", surplus, tolerance)
	}
	return nil
}
