package amm

import (
	"sort"

	"PerpAMM/internal/event"
	"PerpAMM/internal/ledger"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/oracle"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// FundingState is the AMM's premium EMA and the funding accumulator it
// feeds. Premiums are in price units: fair price minus index price.
type FundingState struct {
	Initialized                   bool       `json:"initialized"`
	LastFundingTime               int64      `json:"lastFundingTime"`
	LastPremium                   fpmath.Int `json:"lastPremium"`
	LastEMAPremium                fpmath.Int `json:"lastEMAPremium"`
	LastIndexPrice                fpmath.Int `json:"lastIndexPrice"`
	LastIndexTimestamp            int64      `json:"lastIndexTimestamp"`
	AccumulatedFundingPerContract fpmath.Int `json:"accumulatedFundingPerContract"`
}

// AMM prices the perpetual against its pooled account. The pool account is
// the proxy identity: every ledger call the AMM makes is signed by it.
//
// Not thread-safe: the engine serializes all calls.
type AMM struct {
	perp   *ledger.Perpetual
	feeder oracle.PriceFeeder
	j      *state.Journal
	out    *event.Outbox
	proxy  uuid.UUID
	shares *ShareToken

	funding FundingState
	now     int64
}

// New wires an AMM to perp: it grants the proxy role to the pool account
// and registers itself as the ledger's price source.
func New(perp *ledger.Perpetual, feeder oracle.PriceFeeder, proxy uuid.UUID) *AMM {
	if proxy == uuid.Nil {
		proxy = ledger.SystemAccount(ledger.SystemAMMProxy)
	}
	a := &AMM{
		perp:   perp,
		feeder: feeder,
		j:      perp.Journal(),
		out:    perp.Outbox(),
		proxy:  proxy,
		shares: NewShareToken(perp.Journal()),
	}
	perp.Authorizer().Grant(a.j, state.RoleAMMProxy, proxy)
	perp.SetPriceSource(a)
	return a
}

// Proxy returns the pool account.
func (a *AMM) Proxy() uuid.UUID {
	return a.proxy
}

// Shares returns the pool-share token.
func (a *AMM) Shares() *ShareToken {
	return a.shares
}

// LastFundingState returns the funding state as of the last update.
func (a *AMM) LastFundingState() FundingState {
	return a.funding
}

// AdvanceTo moves the AMM clock forward to timestamp. Earlier timestamps
// are ignored. Ledger valuations between AMM calls use this clock.
func (a *AMM) AdvanceTo(timestamp int64) {
	if timestamp > a.now {
		a.now = timestamp
	}
}

// Now returns the AMM clock.
func (a *AMM) Now() int64 {
	return a.now
}

func (a *AMM) begin(c state.Call) state.Call {
	a.AdvanceTo(c.Timestamp)
	return c.As(a.proxy)
}

func (a *AMM) requireNormal(op string) error {
	return state.InNormal.Require(op, a.perp.Status())
}

func (a *AMM) requireTradingLot(op string, amount fpmath.Int) error {
	lot := a.perp.Params().TradingLotSize
	if !amount.IsPositive() || (lot.IsPositive() && !amount.IsMultipleOf(lot)) {
		return state.Errorf(state.InvalidParameter, op, "invalid trading lot size")
	}
	return nil
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
