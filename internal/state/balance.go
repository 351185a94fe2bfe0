package state

import fpmath "PerpAMM/internal/math"

// CashAccount is an account's settled collateral. AppliedBalance is the
// amount requested for withdrawal; it can be withdrawn once the block
// reaches AppliedHeight.
type CashAccount struct {
	Balance        fpmath.Int `json:"balance"`
	AppliedBalance fpmath.Int `json:"appliedBalance"`
	AppliedHeight  uint64     `json:"appliedHeight"`
}

// Unlocked reports whether the applied withdrawal is past its lock window.
func (c CashAccount) Unlocked(block uint64) bool {
	return block >= c.AppliedHeight
}
