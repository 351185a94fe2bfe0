package ledger

import (
	"fmt"

	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// AccountSnapshot is one account's persisted state.
type AccountSnapshot struct {
	Account  uuid.UUID         `json:"account"`
	Cash     state.CashAccount `json:"cash"`
	Position state.Position    `json:"position"`
}

// BrokerSnapshot is one broker assignment.
type BrokerSnapshot struct {
	Account       uuid.UUID `json:"account"`
	Previous      uuid.UUID `json:"previous"`
	Current       uuid.UUID `json:"current"`
	AppliedHeight uint64    `json:"appliedHeight"`
}

// RoleSnapshot lists the holders of one role.
type RoleSnapshot struct {
	Role    string      `json:"role"`
	Members []uuid.UUID `json:"members"`
}

// Snapshot is the full ledger state in a JSON-friendly form.
type Snapshot struct {
	Status          state.Status        `json:"status"`
	SettlementPrice fpmath.Int          `json:"settlementPrice"`
	Params          state.Params        `json:"params"`
	LongSocialLoss  fpmath.Int          `json:"longSocialLossPerContract"`
	ShortSocialLoss fpmath.Int          `json:"shortSocialLossPerContract"`
	InsuranceFund   state.InsuranceFund `json:"insuranceFund"`
	Dev             uuid.UUID           `json:"dev"`
	Accounts        []AccountSnapshot   `json:"accounts"`
	Brokers         []BrokerSnapshot    `json:"brokers"`
	Roles           []RoleSnapshot      `json:"roles"`
}

var snapshotRoles = []state.Role{state.RoleGovernance, state.RoleExchange, state.RoleAMMProxy}

// Snapshot exports the ledger.
func (l *Perpetual) Snapshot() Snapshot {
	s := Snapshot{
		Status:          l.status,
		SettlementPrice: l.settlementPrice,
		Params:          l.params,
		LongSocialLoss:  l.longSocialLoss,
		ShortSocialLoss: l.shortSocialLoss,
		InsuranceFund:   l.insurance,
		Dev:             l.dev,
	}
	for _, id := range l.Accounts() {
		s.Accounts = append(s.Accounts, AccountSnapshot{
			Account:  id,
			Cash:     l.cash[id],
			Position: l.positions[id],
		})
	}
	for _, id := range sortedKeys(l.brokers) {
		rec := l.brokers[id]
		s.Brokers = append(s.Brokers, BrokerSnapshot{
			Account:       id,
			Previous:      rec.Previous,
			Current:       rec.Current,
			AppliedHeight: rec.AppliedHeight,
		})
	}
	for _, r := range snapshotRoles {
		if members := l.auth.Members(r); len(members) > 0 {
			s.Roles = append(s.Roles, RoleSnapshot{Role: r.String(), Members: members})
		}
	}
	return s
}

// Restore replaces the ledger state with s. Open-interest totals are
// recomputed from the positions and checked.
func (l *Perpetual) Restore(s Snapshot) error {
	if l.j.InTransaction() {
		return fmt.Errorf("restore inside a transaction")
	}
	l.status = s.Status
	l.settlementPrice = s.SettlementPrice
	l.params = s.Params
	l.longSocialLoss = s.LongSocialLoss
	l.shortSocialLoss = s.ShortSocialLoss
	l.insurance = s.InsuranceFund
	if s.Dev != uuid.Nil {
		l.dev = s.Dev
	}
	l.cash = make(map[uuid.UUID]state.CashAccount, len(s.Accounts))
	l.positions = make(map[uuid.UUID]state.Position, len(s.Accounts))
	l.totals = make(map[state.Side]fpmath.Int)
	for _, a := range s.Accounts {
		l.cash[a.Account] = a.Cash
		if !a.Position.IsFlat() {
			l.positions[a.Account] = a.Position
			l.totals[a.Position.Side] = l.totals[a.Position.Side].Add(a.Position.Size)
		}
	}
	l.brokers = make(map[uuid.UUID]brokerRecord, len(s.Brokers))
	for _, b := range s.Brokers {
		l.brokers[b.Account] = brokerRecord{Previous: b.Previous, Current: b.Current, AppliedHeight: b.AppliedHeight}
	}
	l.auth.Reset()
	for _, r := range s.Roles {
		role, ok := state.ParseRole(r.Role)
		if !ok {
			return fmt.Errorf("unknown role %q in snapshot", r.Role)
		}
		for _, id := range r.Members {
			l.auth.Grant(l.j, role, id)
		}
	}
	if err := ValidatePositions(l); err != nil {
		return err
	}
	if l.status == state.StatusSettled {
		return nil
	}
	return ValidateOpenInterest(l)
}

func sortedKeys[V any](m map[uuid.UUID]V) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}
