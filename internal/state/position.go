package state

import (
	"fmt"
	"strings"

	fpmath "PerpAMM/internal/math"
)

// Side represents position direction
type Side int32

const (
	SideFlat Side = iota
	SideLong
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "LONG"
	case SideShort:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// Counter returns the opposite side. Flat has no counter side.
func (s Side) Counter() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	default:
		return SideFlat
	}
}

// ParseSide accepts "long"/"buy" and "short"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "long", "buy":
		return SideLong, nil
	case "short", "sell":
		return SideShort, nil
	case "flat", "":
		return SideFlat, nil
	default:
		return SideFlat, fmt.Errorf("unknown side %q", s)
	}
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	v, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Accumulators are the global per-contract loss counters every position is
// valued against. A position stores accumulator*size at its last mutation;
// the difference to the current value is the loss accrued since.
type Accumulators struct {
	LongSocialLoss  fpmath.Int `json:"longSocialLossPerContract"`
	ShortSocialLoss fpmath.Int `json:"shortSocialLossPerContract"`
	FundingLoss     fpmath.Int `json:"accumulatedFundingPerContract"`
}

// SocialLoss returns the social loss per contract of a side.
func (a Accumulators) SocialLoss(side Side) fpmath.Int {
	switch side {
	case SideLong:
		return a.LongSocialLoss
	case SideShort:
		return a.ShortSocialLoss
	default:
		return fpmath.Zero
	}
}

// Position is one account's position. Invariant: Side == SideFlat iff Size == 0.
type Position struct {
	Side             Side       `json:"side"`
	Size             fpmath.Int `json:"size"`
	EntryValue       fpmath.Int `json:"entryValue"`
	EntrySocialLoss  fpmath.Int `json:"entrySocialLoss"`
	EntryFundingLoss fpmath.Int `json:"entryFundingLoss"`
}

// IsFlat returns true if the position has no exposure.
func (p Position) IsFlat() bool {
	return p.Side == SideFlat
}

// Value is the position notional at price.
func (p Position) Value(price fpmath.Int) fpmath.Int {
	return price.Mul(p.Size)
}

// SocialLoss is the social loss accrued since the position was last touched.
func (p Position) SocialLoss(acc Accumulators) fpmath.Int {
	return acc.SocialLoss(p.Side).Mul(p.Size).Sub(p.EntrySocialLoss)
}

// FundingLoss is the funding paid since the position was last touched.
// Longs pay positive funding, shorts receive it.
func (p Position) FundingLoss(acc Accumulators) fpmath.Int {
	loss := acc.FundingLoss.Mul(p.Size).Sub(p.EntryFundingLoss)
	if p.Side == SideShort {
		return loss.Neg()
	}
	return loss
}

// PnL is the unrealized profit at price net of accrued social and funding
// losses.
func (p Position) PnL(price fpmath.Int, acc Accumulators) fpmath.Int {
	if p.IsFlat() {
		return fpmath.Zero
	}
	profit := directional(p.Side, p.Value(price), p.EntryValue)
	return profit.Sub(p.SocialLoss(acc)).Sub(p.FundingLoss(acc))
}

// Open adds amount contracts on side at price. The position must be flat or
// already on side.
func (p Position) Open(side Side, price, amount fpmath.Int, acc Accumulators) Position {
	if p.IsFlat() {
		p.Side = side
	}
	p.Size = p.Size.Add(amount)
	p.EntryValue = p.EntryValue.Add(price.Mul(amount))
	p.EntrySocialLoss = p.EntrySocialLoss.Add(acc.SocialLoss(side).Mul(amount))
	p.EntryFundingLoss = p.EntryFundingLoss.Add(acc.FundingLoss.Mul(amount))
	return p
}

// Close removes amount contracts at price and returns the remaining position
// and the realized PnL. amount must not exceed the size.
func (p Position) Close(price, amount fpmath.Int, acc Accumulators) (Position, fpmath.Int) {
	if amount.IsZero() {
		return p, fpmath.Zero
	}
	entryValue, entrySocial, entryFunding := p.EntryValue, p.EntrySocialLoss, p.EntryFundingLoss
	if !amount.Equal(p.Size) {
		entryValue = p.EntryValue.Frac(amount, p.Size)
		entrySocial = p.EntrySocialLoss.Frac(amount, p.Size)
		entryFunding = p.EntryFundingLoss.Frac(amount, p.Size)
	}

	rpnl := directional(p.Side, price.Mul(amount), entryValue)
	rpnl = rpnl.Sub(acc.SocialLoss(p.Side).Mul(amount).Sub(entrySocial))
	funding := acc.FundingLoss.Mul(amount).Sub(entryFunding)
	if p.Side == SideShort {
		funding = funding.Neg()
	}
	rpnl = rpnl.Sub(funding)

	rest := p.Size.Sub(amount)
	if rest.IsZero() {
		return Position{}, rpnl
	}
	return Position{
		Side:             p.Side,
		Size:             rest,
		EntryValue:       p.EntryValue.Frac(rest, p.Size),
		EntrySocialLoss:  p.EntrySocialLoss.Frac(rest, p.Size),
		EntryFundingLoss: p.EntryFundingLoss.Frac(rest, p.Size),
	}, rpnl
}

// Trade applies a fill on side: the opposite exposure is closed first and
// the rest opens on side.
func (p Position) Trade(side Side, price, amount fpmath.Int, acc Accumulators) (next Position, rpnl, opened, closed fpmath.Int) {
	next, rpnl = p, fpmath.Zero
	opened, closed = amount, fpmath.Zero
	if !p.IsFlat() && p.Side != side {
		closed = p.Size.Min(amount)
		opened = amount.Sub(closed)
		next, rpnl = p.Close(price, closed, acc)
	}
	if opened.IsPositive() {
		next = next.Open(side, price, opened, acc)
	}
	return next, rpnl, opened, closed
}

// directional returns value-entry for longs and entry-value for shorts,
// keeping one raw unit in the protocol's favour whenever it is non-zero.
func directional(side Side, value, entry fpmath.Int) fpmath.Int {
	profit := value.Sub(entry)
	if side == SideShort {
		profit = entry.Sub(value)
	}
	if !profit.IsZero() {
		profit = profit.Sub(fpmath.Raw(1))
	}
	return profit
}
