package amm

import (
	"fmt"

	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// ShareToken is the pool-share ledger: balances and supply are unsigned
// 18-decimal amounts. Writes are journaled.
type ShareToken struct {
	j        *state.Journal
	balances map[uuid.UUID]fpmath.Uint
	supply   fpmath.Uint
}

func NewShareToken(j *state.Journal) *ShareToken {
	return &ShareToken{j: j, balances: make(map[uuid.UUID]fpmath.Uint)}
}

// BalanceOf returns the shares held by id.
func (s *ShareToken) BalanceOf(id uuid.UUID) fpmath.Int {
	return s.balances[id].MustInt()
}

// TotalSupply returns the outstanding shares.
func (s *ShareToken) TotalSupply() fpmath.Int {
	return s.supply.MustInt()
}

// Mint creates amount shares for to.
func (s *ShareToken) Mint(to uuid.UUID, amount fpmath.Int) error {
	u, err := fpmath.UintFromInt(amount)
	if err != nil {
		return err
	}
	supply, err := fpmath.UAdd(s.supply, u)
	if err != nil {
		return err
	}
	bal, err := fpmath.UAdd(s.balances[to], u)
	if err != nil {
		return err
	}
	state.Assign(s.j, &s.supply, supply)
	state.Put(s.j, s.balances, to, bal)
	return nil
}

// Burn destroys amount of from's shares.
func (s *ShareToken) Burn(from uuid.UUID, amount fpmath.Int) error {
	u, err := fpmath.UintFromInt(amount)
	if err != nil {
		return err
	}
	bal, err := fpmath.USub(s.balances[from], u)
	if err != nil {
		return fmt.Errorf("burn %s from %s: %w", amount, from, err)
	}
	supply, err := fpmath.USub(s.supply, u)
	if err != nil {
		return err
	}
	state.Assign(s.j, &s.supply, supply)
	state.Put(s.j, s.balances, from, bal)
	return nil
}

// Transfer moves amount shares from one holder to another.
func (s *ShareToken) Transfer(from, to uuid.UUID, amount fpmath.Int) error {
	u, err := fpmath.UintFromInt(amount)
	if err != nil {
		return err
	}
	fromBal, err := fpmath.USub(s.balances[from], u)
	if err != nil {
		return fmt.Errorf("transfer %s from %s: %w", amount, from, err)
	}
	state.Put(s.j, s.balances, from, fromBal)
	toBal, err := fpmath.UAdd(s.balances[to], u)
	if err != nil {
		return err
	}
	state.Put(s.j, s.balances, to, toBal)
	return nil
}

// Holders lists accounts with a non-zero balance in a stable order.
func (s *ShareToken) Holders() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.balances))
	for id, bal := range s.balances {
		if !bal.IsZero() {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids
}
