package event

import (
	fpmath "PerpAMM/internal/math"

	"github.com/google/uuid"
)

// FundingUpdated is emitted when the funding state advances to Timestamp.
type FundingUpdated struct {
	Timestamp          int64      `json:"timestamp"`
	IndexPrice         fpmath.Int `json:"indexPrice"`
	IndexTimestamp     int64      `json:"indexTimestamp"`
	EMAPremium         fpmath.Int `json:"emaPremium"`
	AccumulatedFunding fpmath.Int `json:"accumulatedFundingPerContract"`
}

func (f *FundingUpdated) EventType() EventType {
	return EventTypeFundingUpdated
}

func (f *FundingUpdated) AccountID() uuid.UUID {
	return uuid.Nil
}

// IndexUpdated records a new oracle reading pulled by Caller, who earns
// Prize when the index changed.
type IndexUpdated struct {
	Caller    uuid.UUID  `json:"caller"`
	Price     fpmath.Int `json:"price"`
	Timestamp int64      `json:"timestamp"`
	Prize     fpmath.Int `json:"prize"`
}

func (i *IndexUpdated) EventType() EventType {
	return EventTypeIndexUpdated
}

func (i *IndexUpdated) AccountID() uuid.UUID {
	return i.Caller
}
