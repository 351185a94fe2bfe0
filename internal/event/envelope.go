package event

import "github.com/google/uuid"

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDeposit
	EventTypeWithdrawalApplied
	EventTypeWithdrawal
	EventTypeTrade
	EventTypeCashTransfer
	EventTypeLiquidation
	EventTypeSettlementBegun
	EventTypeSettlementEnded
	EventTypeParameterChanged
	EventTypeCashBalanceSet
	EventTypeSettle
	EventTypePoolCreated
	EventTypeLiquidityAdded
	EventTypeLiquidityRemoved
	EventTypeShareSettled
	EventTypeShareTransferred
	EventTypeFundingUpdated
	EventTypeIndexUpdated
	EventTypeBrokerChanged
	EventTypeInsuranceFundChanged
	EventTypeRoleChanged
)

// EventEnvelope wraps every committed event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Operation and idempotency key of the request that produced the event
	Op        string
	RequestID string

	// Event type discriminator
	EventType EventType

	// Primary account (uuid.Nil for protocol-wide events)
	Account uuid.UUID

	// Logical clock of the request (NOT wall-clock)
	Block     uint64
	Timestamp int64

	// JSON-encoded event
	Payload []byte

	// SHA-256 chain: H(prev || seq || payload digest)
	StateHash [32]byte
	PrevHash  [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// EventType returns the discriminator
	EventType() EventType

	// AccountID returns the primary account (uuid.Nil for global events)
	AccountID() uuid.UUID
}

var eventTypeNames = map[EventType]string{
	EventTypeDeposit:              "Deposit",
	EventTypeWithdrawalApplied:    "WithdrawalApplied",
	EventTypeWithdrawal:           "Withdrawal",
	EventTypeTrade:                "Trade",
	EventTypeCashTransfer:         "CashTransfer",
	EventTypeLiquidation:          "Liquidation",
	EventTypeSettlementBegun:      "SettlementBegun",
	EventTypeSettlementEnded:      "SettlementEnded",
	EventTypeParameterChanged:     "ParameterChanged",
	EventTypeCashBalanceSet:       "CashBalanceSet",
	EventTypeSettle:               "Settle",
	EventTypePoolCreated:          "PoolCreated",
	EventTypeLiquidityAdded:       "LiquidityAdded",
	EventTypeLiquidityRemoved:     "LiquidityRemoved",
	EventTypeShareSettled:         "ShareSettled",
	EventTypeShareTransferred:     "ShareTransferred",
	EventTypeFundingUpdated:       "FundingUpdated",
	EventTypeIndexUpdated:         "IndexUpdated",
	EventTypeBrokerChanged:        "BrokerChanged",
	EventTypeInsuranceFundChanged: "InsuranceFundChanged",
	EventTypeRoleChanged:          "RoleChanged",
}

func (et EventType) String() string {
	if s, ok := eventTypeNames[et]; ok {
		return s
	}
	return "Unknown"
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(s string) EventType {
	for et, name := range eventTypeNames {
		if name == s {
			return et
		}
	}
	return EventTypeUnknown
}
