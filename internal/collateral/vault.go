package collateral

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	fpmath "PerpAMM/internal/math"

	"github.com/google/uuid"
)

// ErrInsufficientFunds is returned when a wallet or the custody balance
// cannot cover a transfer.
var ErrInsufficientFunds = errors.New("collateral: insufficient funds")

// Vault moves the collateral token between external wallets and the
// protocol's custody.
type Vault interface {
	TransferIn(from uuid.UUID, amount fpmath.Int) error
	TransferOut(to uuid.UUID, amount fpmath.Int) error
}

// Token is an in-memory collateral token: wallet balances plus the amount
// held in custody by the protocol.
type Token struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]fpmath.Int
	custody fpmath.Int
	supply  fpmath.Int
}

func NewToken() *Token {
	return &Token{wallets: make(map[uuid.UUID]fpmath.Int)}
}

// Mint credits amount to a wallet.
func (t *Token) Mint(to uuid.UUID, amount fpmath.Int) error {
	if amount.IsNegative() {
		return fmt.Errorf("collateral: mint negative amount %s", amount)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wallets[to] = t.wallets[to].Add(amount)
	t.supply = t.supply.Add(amount)
	return nil
}

func (t *Token) TransferIn(from uuid.UUID, amount fpmath.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	bal := t.wallets[from]
	if bal.LT(amount) {
		return fmt.Errorf("%w: wallet %s has %s, needs %s", ErrInsufficientFunds, from, bal, amount)
	}
	t.wallets[from] = bal.Sub(amount)
	t.custody = t.custody.Add(amount)
	return nil
}

func (t *Token) TransferOut(to uuid.UUID, amount fpmath.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.custody.LT(amount) {
		return fmt.Errorf("%w: custody has %s, needs %s", ErrInsufficientFunds, t.custody, amount)
	}
	t.custody = t.custody.Sub(amount)
	t.wallets[to] = t.wallets[to].Add(amount)
	return nil
}

// BalanceOf returns a wallet balance.
func (t *Token) BalanceOf(id uuid.UUID) fpmath.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wallets[id]
}

// Custody returns the amount held by the protocol.
func (t *Token) Custody() fpmath.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.custody
}

// Supply returns the total minted amount.
func (t *Token) Supply() fpmath.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.supply
}

// Wallets lists wallet holders in a stable order.
func (t *Token) Wallets() []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(t.wallets))
	for id := range t.wallets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
