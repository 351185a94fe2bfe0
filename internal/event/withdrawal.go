package event

import (
	fpmath "PerpAMM/internal/math"

	"github.com/google/uuid"
)

// WithdrawalApplied starts the withdrawal lock window.
type WithdrawalApplied struct {
	Account       uuid.UUID  `json:"account"`
	Amount        fpmath.Int `json:"amount"`
	AppliedHeight uint64     `json:"appliedHeight"`
}

func (w *WithdrawalApplied) EventType() EventType {
	return EventTypeWithdrawalApplied
}

func (w *WithdrawalApplied) AccountID() uuid.UUID {
	return w.Account
}

// Withdrawal pays collateral out of an account.
type Withdrawal struct {
	Account uuid.UUID  `json:"account"`
	Amount  fpmath.Int `json:"amount"`
	Balance fpmath.Int `json:"balance"`
	Applied fpmath.Int `json:"appliedBalance"`
}

func (w *Withdrawal) EventType() EventType {
	return EventTypeWithdrawal
}

func (w *Withdrawal) AccountID() uuid.UUID {
	return w.Account
}
