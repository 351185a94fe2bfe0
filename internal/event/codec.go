package event

import (
	"encoding/json"
	"fmt"
)

var factories = map[EventType]func() Event{
	EventTypeDeposit:              func() Event { return &Deposit{} },
	EventTypeWithdrawalApplied:    func() Event { return &WithdrawalApplied{} },
	EventTypeWithdrawal:           func() Event { return &Withdrawal{} },
	EventTypeTrade:                func() Event { return &Trade{} },
	EventTypeCashTransfer:         func() Event { return &CashTransfer{} },
	EventTypeLiquidation:          func() Event { return &Liquidation{} },
	EventTypeSettlementBegun:      func() Event { return &SettlementBegun{} },
	EventTypeSettlementEnded:      func() Event { return &SettlementEnded{} },
	EventTypeParameterChanged:     func() Event { return &ParameterChanged{} },
	EventTypeCashBalanceSet:       func() Event { return &CashBalanceSet{} },
	EventTypeSettle:               func() Event { return &Settle{} },
	EventTypePoolCreated:          func() Event { return &PoolCreated{} },
	EventTypeLiquidityAdded:       func() Event { return &LiquidityAdded{} },
	EventTypeLiquidityRemoved:     func() Event { return &LiquidityRemoved{} },
	EventTypeShareSettled:         func() Event { return &ShareSettled{} },
	EventTypeShareTransferred:     func() Event { return &ShareTransferred{} },
	EventTypeFundingUpdated:       func() Event { return &FundingUpdated{} },
	EventTypeIndexUpdated:         func() Event { return &IndexUpdated{} },
	EventTypeBrokerChanged:        func() Event { return &BrokerChanged{} },
	EventTypeInsuranceFundChanged: func() Event { return &InsuranceFundChanged{} },
	EventTypeRoleChanged:          func() Event { return &RoleChanged{} },
}

// Encode serializes an event payload. Amounts are decimal strings.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a payload of the given type.
func Decode(t EventType, payload []byte) (Event, error) {
	newEvent, ok := factories[t]
	if !ok {
		return nil, fmt.Errorf("decode: unknown event type %d", t)
	}
	e := newEvent()
	if err := json.Unmarshal(payload, e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return e, nil
}
