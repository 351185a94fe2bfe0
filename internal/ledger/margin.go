package ledger

import (
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// margin values id at the current mark price.
func (l *Perpetual) margin(id uuid.UUID) (state.Margin, error) {
	mark, err := l.MarkPrice()
	if err != nil {
		return state.Margin{}, err
	}
	acc, err := l.Accumulators()
	if err != nil {
		return state.Margin{}, err
	}
	return state.ComputeMargin(l.cash[id], l.positions[id], acc, mark, l.params), nil
}

// Margin values id at the current mark price without side effects.
func (l *Perpetual) Margin(id uuid.UUID) (m state.Margin, err error) {
	err = l.View(func() error {
		var e error
		m, e = l.margin(id)
		return e
	})
	return m, err
}

// PnL is the unrealized PnL of id at the mark price.
func (l *Perpetual) PnL(id uuid.UUID) (fpmath.Int, error) {
	m, err := l.Margin(id)
	return m.PnL, err
}

// MarginBalance is cash plus PnL.
func (l *Perpetual) MarginBalance(id uuid.UUID) (fpmath.Int, error) {
	m, err := l.Margin(id)
	return m.MarginBalance, err
}

// AvailableMargin is what id can still commit to new exposure.
func (l *Perpetual) AvailableMargin(id uuid.UUID) (fpmath.Int, error) {
	m, err := l.Margin(id)
	return m.AvailableMargin, err
}

func (l *Perpetual) IsSafe(id uuid.UUID) (bool, error) {
	m, err := l.Margin(id)
	return m.IsSafe(), err
}

func (l *Perpetual) IsIMSafe(id uuid.UUID) (bool, error) {
	m, err := l.Margin(id)
	return m.IsIMSafe(), err
}

func (l *Perpetual) IsBankrupt(id uuid.UUID) (bool, error) {
	m, err := l.Margin(id)
	return m.IsBankrupt(), err
}

// RequireSafe fails with InsufficientMargin unless id is above maintenance
// margin.
func (l *Perpetual) RequireSafe(op string, id uuid.UUID, reason string) error {
	m, err := l.margin(id)
	if err != nil {
		return err
	}
	if !m.IsSafe() {
		return state.Errorf(state.InsufficientMargin, op, "%s", reason)
	}
	return nil
}

// RequireIMSafe fails with InsufficientMargin unless id is above initial
// margin.
func (l *Perpetual) RequireIMSafe(op string, id uuid.UUID, reason string) error {
	m, err := l.margin(id)
	if err != nil {
		return err
	}
	if !m.IsIMSafe() {
		return state.Errorf(state.InsufficientMargin, op, "%s", reason)
	}
	return nil
}

// CheckTraderSafety is the post-trade check: a trader that opened exposure
// must be initial-margin safe, one that only reduced it must stay above
// maintenance margin.
func (l *Perpetual) CheckTraderSafety(op string, id uuid.UUID, opened fpmath.Int) error {
	if opened.IsPositive() {
		return l.RequireIMSafe(op, id, "im unsafe")
	}
	return l.RequireSafe(op, id, "sender unsafe")
}
