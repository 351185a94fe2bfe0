package event

import (
	fpmath "PerpAMM/internal/math"

	"github.com/google/uuid"
)

// Deposit credits collateral to an account.
type Deposit struct {
	Account uuid.UUID  `json:"account"`
	Amount  fpmath.Int `json:"amount"`
	Balance fpmath.Int `json:"balance"` // cash after the deposit
}

func (d *Deposit) EventType() EventType {
	return EventTypeDeposit
}

func (d *Deposit) AccountID() uuid.UUID {
	return d.Account
}

// InsuranceFundChanged is a deposit to or withdrawal from the insurance fund.
// Amount is negative for withdrawals.
type InsuranceFundChanged struct {
	Account uuid.UUID  `json:"account"`
	Amount  fpmath.Int `json:"amount"`
	Balance fpmath.Int `json:"balance"` // fund balance afterwards
}

func (i *InsuranceFundChanged) EventType() EventType {
	return EventTypeInsuranceFundChanged
}

func (i *InsuranceFundChanged) AccountID() uuid.UUID {
	return i.Account
}
