package collateral

import (
	"fmt"

	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

type direction uint8

const (
	transferIn direction = iota
	transferOut
)

type transfer struct {
	dir     direction
	account uuid.UUID
	amount  fpmath.Int
}

// Stage queues vault transfers during a transaction and runs them once the
// ledger mutation is complete. Queued transfers are journaled; a rollback
// drops them.
type Stage struct {
	vault   Vault
	j       *state.Journal
	pending []transfer
}

func NewStage(v Vault, j *state.Journal) *Stage {
	return &Stage{vault: v, j: j}
}

// In queues a transfer from account into custody.
func (s *Stage) In(account uuid.UUID, amount fpmath.Int) {
	s.queue(transfer{transferIn, account, amount})
}

// Out queues a transfer from custody to account.
func (s *Stage) Out(account uuid.UUID, amount fpmath.Int) {
	s.queue(transfer{transferOut, account, amount})
}

func (s *Stage) queue(t transfer) {
	if !t.amount.IsPositive() {
		return
	}
	n := len(s.pending)
	s.j.Record(func() { s.pending = s.pending[:n] })
	s.pending = append(s.pending, t)
}

// Flush executes queued transfers in order. If one fails, the transfers
// already executed are reversed and the error is returned so the caller
// rolls the transaction back.
func (s *Stage) Flush() error {
	for i, t := range s.pending {
		if err := s.exec(t); err != nil {
			for k := i - 1; k >= 0; k-- {
				_ = s.exec(s.pending[k].reverse())
			}
			return fmt.Errorf("collateral transfer %d of %d: %w", i+1, len(s.pending), err)
		}
	}
	s.pending = s.pending[:0]
	return nil
}

// Pending returns the number of queued transfers.
func (s *Stage) Pending() int {
	return len(s.pending)
}

func (s *Stage) exec(t transfer) error {
	if t.dir == transferIn {
		return s.vault.TransferIn(t.account, t.amount)
	}
	return s.vault.TransferOut(t.account, t.amount)
}

func (t transfer) reverse() transfer {
	if t.dir == transferIn {
		t.dir = transferOut
	} else {
		t.dir = transferIn
	}
	return t
}
