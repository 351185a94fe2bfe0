package event

import (
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// Trade is one leg of an executed trade with the account's resulting
// position and cash.
type Trade struct {
	Account     uuid.UUID  `json:"account"`
	Side        state.Side `json:"side"`
	Price       fpmath.Int `json:"price"`
	Amount      fpmath.Int `json:"amount"`
	Opened      fpmath.Int `json:"opened"`
	Closed      fpmath.Int `json:"closed"`
	RealizedPnL fpmath.Int `json:"realizedPnl"`

	Position state.Position `json:"position"`
	Balance  fpmath.Int     `json:"balance"`
}

func (t *Trade) EventType() EventType {
	return EventTypeTrade
}

func (t *Trade) AccountID() uuid.UUID {
	return t.Account
}

// CashTransfer moves cash between two ledger accounts (fees, prizes,
// liquidity moves).
type CashTransfer struct {
	From        uuid.UUID  `json:"from"`
	To          uuid.UUID  `json:"to"`
	Amount      fpmath.Int `json:"amount"`
	Reason      string     `json:"reason"`
	FromBalance fpmath.Int `json:"fromBalance"`
	ToBalance   fpmath.Int `json:"toBalance"`
}

func (c *CashTransfer) EventType() EventType {
	return EventTypeCashTransfer
}

func (c *CashTransfer) AccountID() uuid.UUID {
	return c.From
}
