package event

import (
	fpmath "PerpAMM/internal/math"

	"github.com/google/uuid"
)

// SettlementBegun freezes trading at Price.
type SettlementBegun struct {
	Price fpmath.Int `json:"price"`
}

func (s *SettlementBegun) EventType() EventType { return EventTypeSettlementBegun }
func (s *SettlementBegun) AccountID() uuid.UUID { return uuid.Nil }

// SettlementEnded opens redemption.
type SettlementEnded struct {
	Price fpmath.Int `json:"price"`
}

func (s *SettlementEnded) EventType() EventType { return EventTypeSettlementEnded }
func (s *SettlementEnded) AccountID() uuid.UUID { return uuid.Nil }

// CashBalanceSet is a governance override of an account's cash.
type CashBalanceSet struct {
	Account  uuid.UUID  `json:"account"`
	Previous fpmath.Int `json:"previous"`
	Balance  fpmath.Int `json:"balance"`
}

func (c *CashBalanceSet) EventType() EventType { return EventTypeCashBalanceSet }
func (c *CashBalanceSet) AccountID() uuid.UUID { return c.Account }

// Settle is an account's final redemption.
type Settle struct {
	Account     uuid.UUID  `json:"account"`
	Price       fpmath.Int `json:"price"`
	RealizedPnL fpmath.Int `json:"realizedPnl"`
	Payout      fpmath.Int `json:"payout"`
}

func (s *Settle) EventType() EventType { return EventTypeSettle }
func (s *Settle) AccountID() uuid.UUID { return s.Account }
