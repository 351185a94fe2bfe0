package event_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpAMM/internal/event"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"
)

func TestEventTypeNames(t *testing.T) {
	for et := event.EventTypeDeposit; et <= event.EventTypeRoleChanged; et++ {
		name := et.String()
		require.NotEqual(t, "Unknown", name, "event type %d has no name", et)
		assert.Equal(t, et, event.ParseEventType(name))
	}
	assert.Equal(t, event.EventTypeUnknown, event.ParseEventType("Bogus"))
}

func TestDecode_Trade(t *testing.T) {
	id := uuid.New()
	in := &event.Trade{
		Account:     id,
		Side:        state.SideShort,
		Price:       fpmath.MustParse("6363.636363636363636364"),
		Amount:      fpmath.One,
		Opened:      fpmath.One,
		RealizedPnL: fpmath.Zero,
		Position: state.Position{
			Side:       state.SideShort,
			Size:       fpmath.One,
			EntryValue: fpmath.MustParse("6363.636363636363636364"),
		},
		Balance: fpmath.MustParse("1904.545454545454545454"),
	}
	payload, err := event.Encode(in)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"side":"SHORT"`)

	out, err := event.Decode(event.EventTypeTrade, payload)
	require.NoError(t, err)
	trade, ok := out.(*event.Trade)
	require.True(t, ok)
	assert.Equal(t, id, trade.AccountID())
	assert.Equal(t, in.Price.String(), trade.Price.String())
	assert.Equal(t, state.SideShort, trade.Position.Side)
	assert.Equal(t, in.Balance.String(), trade.Balance.String())
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := event.Decode(event.EventTypeUnknown, []byte(`{}`))
	assert.Error(t, err)
}

func TestOutbox_RolledBackEmitsAreDropped(t *testing.T) {
	j := &state.Journal{}
	out := event.NewOutbox(j)
	out.Emit(&event.SettlementBegun{Price: fpmath.One})

	err := state.Atomic(j, func() error {
		out.Emit(&event.SettlementEnded{Price: fpmath.One})
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, out.Len())

	require.NoError(t, state.Atomic(j, func() error {
		out.Emit(&event.SettlementEnded{Price: fpmath.One})
		return nil
	}))
	events := out.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, event.EventTypeSettlementEnded, events[1].EventType())
	assert.Zero(t, out.Len())
}
