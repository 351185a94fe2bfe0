package event

import (
	fpmath "PerpAMM/internal/math"

	"github.com/google/uuid"
)

// PoolCreated seeds the AMM from an empty pool.
type PoolCreated struct {
	Provider uuid.UUID  `json:"provider"`
	Amount   fpmath.Int `json:"amount"`
	Price    fpmath.Int `json:"price"`
	Shares   fpmath.Int `json:"shares"`
}

func (p *PoolCreated) EventType() EventType { return EventTypePoolCreated }
func (p *PoolCreated) AccountID() uuid.UUID { return p.Provider }

// LiquidityAdded mints pool shares.
type LiquidityAdded struct {
	Provider uuid.UUID  `json:"provider"`
	Amount   fpmath.Int `json:"amount"`
	Price    fpmath.Int `json:"price"`
	Shares   fpmath.Int `json:"shares"`
	Supply   fpmath.Int `json:"supply"`
}

func (l *LiquidityAdded) EventType() EventType { return EventTypeLiquidityAdded }
func (l *LiquidityAdded) AccountID() uuid.UUID { return l.Provider }

// LiquidityRemoved burns pool shares.
type LiquidityRemoved struct {
	Provider uuid.UUID  `json:"provider"`
	Amount   fpmath.Int `json:"amount"`
	Price    fpmath.Int `json:"price"`
	Shares   fpmath.Int `json:"shares"`
	Supply   fpmath.Int `json:"supply"`
}

func (l *LiquidityRemoved) EventType() EventType { return EventTypeLiquidityRemoved }
func (l *LiquidityRemoved) AccountID() uuid.UUID { return l.Provider }

// ShareSettled redeems pool shares after settlement.
type ShareSettled struct {
	Provider uuid.UUID  `json:"provider"`
	Shares   fpmath.Int `json:"shares"`
	Payout   fpmath.Int `json:"payout"`
}

func (s *ShareSettled) EventType() EventType { return EventTypeShareSettled }
func (s *ShareSettled) AccountID() uuid.UUID { return s.Provider }

// ShareTransferred moves pool shares between holders.
type ShareTransferred struct {
	From   uuid.UUID  `json:"from"`
	To     uuid.UUID  `json:"to"`
	Shares fpmath.Int `json:"shares"`
}

func (s *ShareTransferred) EventType() EventType { return EventTypeShareTransferred }
func (s *ShareTransferred) AccountID() uuid.UUID { return s.From }
