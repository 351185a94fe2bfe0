package event

import (
	fpmath "PerpAMM/internal/math"

	"github.com/google/uuid"
)

// ParameterChanged records a governance parameter write, including the
// social-loss accumulators. ShortfallRetired is the bankruptcy shortfall a
// social-loss write cleared from the insurance fund.
type ParameterChanged struct {
	Name             string     `json:"name"`
	Previous         fpmath.Int `json:"previous"`
	Value            fpmath.Int `json:"value"`
	ShortfallRetired fpmath.Int `json:"shortfallRetired"`
}

func (p *ParameterChanged) EventType() EventType {
	return EventTypeParameterChanged
}

func (p *ParameterChanged) AccountID() uuid.UUID {
	return uuid.Nil
}

// BrokerChanged schedules a new broker for an account.
type BrokerChanged struct {
	Account       uuid.UUID `json:"account"`
	Broker        uuid.UUID `json:"broker"`
	AppliedHeight uint64    `json:"appliedHeight"`
}

func (b *BrokerChanged) EventType() EventType {
	return EventTypeBrokerChanged
}

func (b *BrokerChanged) AccountID() uuid.UUID {
	return b.Account
}

// RoleChanged records a grant or revocation.
type RoleChanged struct {
	Account uuid.UUID `json:"account"`
	Role    string    `json:"role"`
	Granted bool      `json:"granted"`
}

func (r *RoleChanged) EventType() EventType {
	return EventTypeRoleChanged
}

func (r *RoleChanged) AccountID() uuid.UUID {
	return r.Account
}
