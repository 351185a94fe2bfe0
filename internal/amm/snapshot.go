package amm

import (
	"fmt"

	fpmath "PerpAMM/internal/math"

	"github.com/google/uuid"
)

// ShareBalance is one pool-share holding.
type ShareBalance struct {
	Account uuid.UUID  `json:"account"`
	Shares  fpmath.Int `json:"shares"`
}

// Snapshot is the AMM state outside the ledger.
type Snapshot struct {
	Proxy   uuid.UUID      `json:"proxy"`
	Now     int64          `json:"now"`
	Funding FundingState   `json:"funding"`
	Shares  []ShareBalance `json:"shares"`
}

// Snapshot exports the AMM.
func (a *AMM) Snapshot() Snapshot {
	s := Snapshot{Proxy: a.proxy, Now: a.now, Funding: a.funding}
	for _, id := range a.shares.Holders() {
		s.Shares = append(s.Shares, ShareBalance{Account: id, Shares: a.shares.BalanceOf(id)})
	}
	return s
}

// Restore replaces the AMM state with s. The ledger must be restored
// first; the proxy identity is fixed at construction.
func (a *AMM) Restore(s Snapshot) error {
	if s.Proxy != uuid.Nil && s.Proxy != a.proxy {
		return fmt.Errorf("restore: snapshot proxy %s does not match %s", s.Proxy, a.proxy)
	}
	shares := NewShareToken(a.j)
	for _, b := range s.Shares {
		if err := shares.Mint(b.Account, b.Shares); err != nil {
			return err
		}
	}
	a.shares = shares
	a.funding = s.Funding
	a.now = s.Now
	return nil
}
