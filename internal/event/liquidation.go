package event

import (
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// Liquidation transfers part of an unsafe position to the liquidator at the
// mark price.
type Liquidation struct {
	Liquidator uuid.UUID  `json:"liquidator"`
	Victim     uuid.UUID  `json:"victim"`
	Side       state.Side `json:"side"` // victim's side before liquidation
	Price      fpmath.Int `json:"price"`
	Amount     fpmath.Int `json:"amount"`

	LiquidatorPenalty fpmath.Int `json:"liquidatorPenalty"`
	FundPenalty       fpmath.Int `json:"fundPenalty"`

	// Bankruptcy: the part of the victim's negative cash the insurance fund
	// absorbed, and what is left for governance to socialize.
	Covered   fpmath.Int `json:"covered"`
	Shortfall fpmath.Int `json:"shortfall"`

	VictimBalance     fpmath.Int `json:"victimBalance"`
	LiquidatorBalance fpmath.Int `json:"liquidatorBalance"`
}

func (l *Liquidation) EventType() EventType {
	return EventTypeLiquidation
}

func (l *Liquidation) AccountID() uuid.UUID {
	return l.Victim
}
