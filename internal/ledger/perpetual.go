package ledger

import (
	"sort"

	"PerpAMM/internal/collateral"
	"PerpAMM/internal/event"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// PriceSource values positions while the perpetual is NORMAL. The AMM
// implements it; reading may advance the AMM's funding state, which is
// journaled like any other write.
type PriceSource interface {
	CurrentMarkPrice() (fpmath.Int, error)
	CurrentAccumulatedFundingPerContract() (fpmath.Int, error)
}

// Config is the genesis configuration of a Perpetual.
type Config struct {
	Governance uuid.UUID
	Dev        uuid.UUID
	Params     state.Params
}

type brokerRecord struct {
	Previous      uuid.UUID
	Current       uuid.UUID
	AppliedHeight uint64
}

// Perpetual is the margin ledger of one perpetual contract: cash and
// position per account, open-interest totals, social-loss accumulators,
// insurance fund, brokers and the settlement lifecycle.
//
// Not thread-safe: the engine serializes all calls. Every write goes
// through the shared journal.
type Perpetual struct {
	j     *state.Journal
	auth  *state.Authorizer
	out   *event.Outbox
	stage *collateral.Stage
	price PriceSource

	dev             uuid.UUID
	status          state.Status
	settlementPrice fpmath.Int
	params          state.Params
	longSocialLoss  fpmath.Int
	shortSocialLoss fpmath.Int
	insurance       state.InsuranceFund

	cash      map[uuid.UUID]state.CashAccount
	positions map[uuid.UUID]state.Position
	totals    map[state.Side]fpmath.Int
	brokers   map[uuid.UUID]brokerRecord
}

func New(j *state.Journal, vault collateral.Vault, cfg Config) *Perpetual {
	if cfg.Dev == uuid.Nil {
		cfg.Dev = SystemAccount(SystemDev)
	}
	l := &Perpetual{
		j:         j,
		auth:      state.NewAuthorizer(),
		out:       event.NewOutbox(j),
		stage:     collateral.NewStage(vault, j),
		dev:       cfg.Dev,
		params:    cfg.Params,
		cash:      make(map[uuid.UUID]state.CashAccount),
		positions: make(map[uuid.UUID]state.Position),
		totals:    make(map[state.Side]fpmath.Int),
		brokers:   make(map[uuid.UUID]brokerRecord),
	}
	if cfg.Governance != uuid.Nil {
		l.auth.Grant(j, state.RoleGovernance, cfg.Governance)
	}
	return l
}

// SetPriceSource wires the AMM.
func (l *Perpetual) SetPriceSource(ps PriceSource) {
	l.price = ps
}

// Journal returns the transaction journal shared with the AMM.
func (l *Perpetual) Journal() *state.Journal {
	return l.j
}

// Outbox returns the event buffer of the transaction in flight.
func (l *Perpetual) Outbox() *event.Outbox {
	return l.out
}

func (l *Perpetual) Authorizer() *state.Authorizer {
	return l.auth
}

// Dev returns the account collecting dev fees.
func (l *Perpetual) Dev() uuid.UUID {
	return l.dev
}

func (l *Perpetual) Status() state.Status {
	return l.status
}

func (l *Perpetual) SettlementPrice() fpmath.Int {
	return l.settlementPrice
}

func (l *Perpetual) Params() state.Params {
	return l.params
}

func (l *Perpetual) InsuranceFund() state.InsuranceFund {
	return l.insurance
}

// Cash returns the cash account of id.
func (l *Perpetual) Cash(id uuid.UUID) state.CashAccount {
	return l.cash[id]
}

// Position returns the position of id.
func (l *Perpetual) Position(id uuid.UUID) state.Position {
	return l.positions[id]
}

// TotalSize returns the open interest on side.
func (l *Perpetual) TotalSize(side state.Side) fpmath.Int {
	return l.totals[side]
}

// Accounts lists every account with cash or a position, in a stable order.
func (l *Perpetual) Accounts() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(l.cash))
	for id := range l.cash {
		seen[id] = struct{}{}
	}
	for id := range l.positions {
		seen[id] = struct{}{}
	}
	ids := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

// Atomic runs fn as one all-or-nothing transaction. At the outermost level
// it checks the open-interest invariant and then executes the staged
// collateral transfers; a failure in either reverts fn.
func (l *Perpetual) Atomic(fn func() error) error {
	if l.j.InTransaction() {
		return fn()
	}
	return state.Atomic(l.j, func() error {
		if err := fn(); err != nil {
			return err
		}
		// Once SETTLED, accounts close against the settlement price one at
		// a time and open interest no longer nets.
		if l.status != state.StatusSettled {
			if err := ValidateOpenInterest(l); err != nil {
				return err
			}
		}
		return l.stage.Flush()
	})
}

// View runs fn against the current state and reverts whatever it wrote.
func (l *Perpetual) View(fn func() error) error {
	return state.View(l.j, fn)
}

// Accumulators returns the social-loss and funding accumulators.
func (l *Perpetual) Accumulators() (state.Accumulators, error) {
	acc := state.Accumulators{
		LongSocialLoss:  l.longSocialLoss,
		ShortSocialLoss: l.shortSocialLoss,
	}
	if l.price != nil {
		f, err := l.price.CurrentAccumulatedFundingPerContract()
		if err != nil {
			return acc, err
		}
		acc.FundingLoss = f
	}
	return acc, nil
}

// MarkPrice is the AMM mark price while NORMAL and the settlement price
// afterwards.
func (l *Perpetual) MarkPrice() (fpmath.Int, error) {
	if l.status != state.StatusNormal {
		return l.settlementPrice, nil
	}
	if l.price == nil {
		return fpmath.Zero, state.Errorf(state.InvalidParameter, "mark price", "no price source")
	}
	return l.price.CurrentMarkPrice()
}

func (l *Perpetual) setCash(id uuid.UUID, c state.CashAccount) {
	state.Put(l.j, l.cash, id, c)
}

func (l *Perpetual) addCash(id uuid.UUID, delta fpmath.Int) state.CashAccount {
	c := l.cash[id]
	c.Balance = c.Balance.Add(delta)
	l.setCash(id, c)
	return c
}

func (l *Perpetual) setPosition(id uuid.UUID, next state.Position) {
	prev := l.positions[id]
	if !prev.Size.IsZero() {
		state.Put(l.j, l.totals, prev.Side, l.totals[prev.Side].Sub(prev.Size))
	}
	if !next.Size.IsZero() {
		state.Put(l.j, l.totals, next.Side, l.totals[next.Side].Add(next.Size))
	}
	state.Put(l.j, l.positions, id, next)
}

// transferCash moves cash between ledger accounts and emits a CashTransfer.
func (l *Perpetual) transferCash(from, to uuid.UUID, amount fpmath.Int, reason string) {
	if amount.IsZero() || from == to {
		return
	}
	fc := l.addCash(from, amount.Neg())
	tc := l.addCash(to, amount)
	l.out.Emit(&event.CashTransfer{
		From:        from,
		To:          to,
		Amount:      amount,
		Reason:      reason,
		FromBalance: fc.Balance,
		ToBalance:   tc.Balance,
	})
}
