package projection_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpAMM/internal/core"
	"PerpAMM/internal/event"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/projection"
	"PerpAMM/internal/state"
)

var (
	alice = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	bob   = uuid.MustParse("00000000-0000-0000-0000-0000000000b2")
)

func env(seq int64, t event.EventType) *event.EventEnvelope {
	return &event.EventEnvelope{Sequence: seq, EventType: t, Timestamp: 1000 + seq}
}

func requireDecimal(t *testing.T, want string, got interface{}) {
	t.Helper()
	d, ok := got.(decimal.Decimal)
	require.True(t, ok, "expected decimal.Decimal, got %T", got)
	assert.True(t, d.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, d)
}

func TestPlan_Deposit(t *testing.T) {
	stmts := projection.Plan(env(4, event.EventTypeDeposit), &event.Deposit{
		Account: alice,
		Amount:  fpmath.MustParse("10"),
		Balance: fpmath.MustParse("110.5"),
	})

	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0].SQL, "projection.accounts")
	assert.Equal(t, alice, stmts[0].Args[0])
	requireDecimal(t, "110.5", stmts[0].Args[1])
	assert.Equal(t, int64(4), stmts[0].Args[2])
}

func TestPlan_CashTransferUpdatesBothSides(t *testing.T) {
	stmts := projection.Plan(env(5, event.EventTypeCashTransfer), &event.CashTransfer{
		From:        alice,
		To:          bob,
		Amount:      fpmath.MustParse("1"),
		Reason:      "fee",
		FromBalance: fpmath.MustParse("99"),
		ToBalance:   fpmath.MustParse("1"),
	})

	require.Len(t, stmts, 2)
	assert.Equal(t, alice, stmts[0].Args[0])
	requireDecimal(t, "99", stmts[0].Args[1])
	assert.Equal(t, bob, stmts[1].Args[0])
	requireDecimal(t, "1", stmts[1].Args[1])
}

func TestPlan_TradeWritesPositionAndTrade(t *testing.T) {
	stmts := projection.Plan(env(9, event.EventTypeTrade), &event.Trade{
		Account:     alice,
		Side:        state.SideLong,
		Price:       fpmath.MustParse("7000"),
		Amount:      fpmath.MustParse("2"),
		Opened:      fpmath.MustParse("2"),
		Closed:      fpmath.Zero,
		RealizedPnL: fpmath.MustParse("-3.25"),
		Position: state.Position{
			Side:       state.SideLong,
			Size:       fpmath.MustParse("2"),
			EntryValue: fpmath.MustParse("14000"),
		},
		Balance: fpmath.MustParse("500"),
	})

	require.Len(t, stmts, 2)

	pos := stmts[0]
	assert.Contains(t, pos.SQL, "realized_pnl = projection.accounts.realized_pnl + $6")
	assert.Equal(t, "LONG", pos.Args[2])
	requireDecimal(t, "2", pos.Args[3])
	requireDecimal(t, "14000", pos.Args[4])
	requireDecimal(t, "-3.25", pos.Args[5])
	assert.Equal(t, int64(9), pos.Args[6])

	trade := stmts[1]
	assert.Contains(t, trade.SQL, "projection.trades")
	assert.Equal(t, int64(9), trade.Args[0])
	requireDecimal(t, "7000", trade.Args[3])
	assert.Equal(t, int64(1009), trade.Args[6])
}

func TestPlan_FundingUpdated(t *testing.T) {
	stmts := projection.Plan(env(2, event.EventTypeFundingUpdated), &event.FundingUpdated{
		Timestamp:          1060,
		IndexPrice:         fpmath.MustParse("7000"),
		IndexTimestamp:     1000,
		EMAPremium:         fpmath.MustParse("0.5"),
		AccumulatedFunding: fpmath.MustParse("0.000001"),
	})

	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0].SQL, "projection.funding_history")
	assert.Equal(t, int64(1060), stmts[0].Args[1])
	requireDecimal(t, "0.000001", stmts[0].Args[5])
}

func TestPlan_IgnoresUnprojectedEvents(t *testing.T) {
	assert.Empty(t, projection.Plan(env(1, event.EventTypeSettlementBegun), &event.SettlementBegun{}))
}

func funding(seq, ts int64) projection.FundingHistoryEntry {
	return projection.FundingHistoryEntry{
		Sequence:           seq,
		Timestamp:          ts,
		IndexPrice:         fpmath.MustParse("7000"),
		EMAPremium:         fpmath.Zero,
		AccumulatedFunding: fpmath.Zero,
	}
}

func TestFundingHistory_EvictsOldest(t *testing.T) {
	h := projection.NewFundingHistory(2)
	h.Add(funding(1, 100))
	h.Add(funding(2, 200))
	h.Add(funding(3, 300))

	got := h.Range(0, 1000, 10)
	require.Len(t, got, 2)
	assert.Equal(t, int64(200), got[0].Timestamp)
	assert.Equal(t, int64(300), got[1].Timestamp)
}

func TestFundingHistory_IgnoresNonAdvancingTimestamps(t *testing.T) {
	h := projection.NewFundingHistory(10)
	h.Add(funding(1, 100))
	h.Add(funding(2, 100))
	h.Add(funding(3, 50))

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, int64(1), latest.Sequence)
}

func TestFundingHistory_RangeIsHalfOpenAndLimited(t *testing.T) {
	h := projection.NewFundingHistory(10)
	for i := int64(1); i <= 5; i++ {
		h.Add(funding(i, i*100))
	}

	got := h.Range(200, 500, 10)
	require.Len(t, got, 3)
	assert.Equal(t, int64(200), got[0].Timestamp)
	assert.Equal(t, int64(400), got[2].Timestamp)

	assert.Len(t, h.Range(0, 1000, 2), 2)

	_, ok := projection.NewFundingHistory(1).Latest()
	assert.False(t, ok)
}

func TestApply_WithoutDatabaseTracksFunding(t *testing.T) {
	h := projection.NewFundingHistory(8)
	pw := projection.NewProjectionWorker(nil, nil, h, nil, zerolog.Nop())

	err := pw.Apply(context.Background(), core.CoreOutput{
		Envelope: env(3, event.EventTypeFundingUpdated),
		Event: &event.FundingUpdated{
			Timestamp:          1200,
			IndexPrice:         fpmath.MustParse("7100"),
			IndexTimestamp:     1190,
			EMAPremium:         fpmath.Zero,
			AccumulatedFunding: fpmath.MustParse("1.5"),
		},
	})
	require.NoError(t, err)

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, int64(3), latest.Sequence)
	assert.Equal(t, "1.5", latest.AccumulatedFunding.String())
	assert.Equal(t, int64(1190), latest.IndexTimestamp)
}
