package query

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	fpmath "PerpAMM/internal/math"
)

// Amounts are rendered as decimal strings so 18-decimal values survive
// JSON clients that parse numbers as float64.

// AccountResponse is an account's cash, position and margin at the
// current mark price.
type AccountResponse struct {
	Account        uuid.UUID `json:"account"`
	Cash           string    `json:"cash"`
	AppliedBalance string    `json:"applied_balance"`
	AppliedHeight  uint64    `json:"applied_height"`
	Shares         string    `json:"shares"`
	Broker         uuid.UUID `json:"broker"`

	Side             string `json:"side"`
	Size             string `json:"size"`
	EntryValue       string `json:"entry_value"`
	EntrySocialLoss  string `json:"entry_social_loss"`
	EntryFundingLoss string `json:"entry_funding_loss"`

	// Derived at query time, not stored
	MarkPrice         string `json:"mark_price"`
	UnrealizedPnL     string `json:"unrealized_pnl"`
	MarginBalance     string `json:"margin_balance"`
	PositionMargin    string `json:"position_margin"`
	MaintenanceMargin string `json:"maintenance_margin"`
	AvailableMargin   string `json:"available_margin"`
	IsSafe            bool   `json:"is_safe"`
	IsIMSafe          bool   `json:"is_im_safe"`
	IsBankrupt        bool   `json:"is_bankrupt"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// PoolResponse describes the AMM pool and its funding state.
type PoolResponse struct {
	Proxy           uuid.UUID `json:"proxy"`
	Cash            string    `json:"cash"`
	PositionSide    string    `json:"position_side"`
	PositionSize    string    `json:"position_size"`
	ShareSupply     string    `json:"share_supply"`
	AvailableMargin string    `json:"available_margin,omitempty"`
	FairPrice       string    `json:"fair_price,omitempty"`
	MarkPrice       string    `json:"mark_price,omitempty"`

	IndexPrice         string `json:"index_price"`
	IndexTimestamp     int64  `json:"index_timestamp"`
	PremiumRate        string `json:"premium_rate,omitempty"`
	FundingRate        string `json:"funding_rate,omitempty"`
	AccumulatedFunding string `json:"accumulated_funding_per_contract"`
	LastFundingTime    int64  `json:"last_funding_time"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// QuoteResponse is the price the pool would trade amount at.
type QuoteResponse struct {
	Side   string `json:"side"`
	Amount string `json:"amount"`
	Price  string `json:"price"`
}

// SystemResponse is the protocol-wide state.
type SystemResponse struct {
	Status            string            `json:"status"`
	SettlementPrice   string            `json:"settlement_price"`
	InsuranceFund     string            `json:"insurance_fund"`
	Shortfall         map[string]string `json:"shortfall"`
	OpenInterest      map[string]string `json:"open_interest"`
	SocialLossPerUnit map[string]string `json:"social_loss_per_contract"`
	Params            map[string]string `json:"params"`
	Accounts          int               `json:"accounts"`
	Sequence          int64             `json:"sequence"`
	StateHash         string            `json:"state_hash"`
}

// FundingPoint is one funding update.
type FundingPoint struct {
	Sequence           int64  `json:"sequence"`
	Timestamp          int64  `json:"timestamp"`
	IndexPrice         string `json:"index_price"`
	IndexTimestamp     int64  `json:"index_timestamp"`
	EMAPremium         string `json:"ema_premium"`
	AccumulatedFunding string `json:"accumulated_funding_per_contract"`
}

// TradeResponse is one trade leg from the trades projection.
type TradeResponse struct {
	Sequence    int64     `json:"sequence"`
	Account     uuid.UUID `json:"account"`
	Side        string    `json:"side"`
	Price       string    `json:"price"`
	Amount      string    `json:"amount"`
	RealizedPnL string    `json:"realized_pnl"`
	Timestamp   int64     `json:"timestamp"`
}

// EventResponse is a committed event from the event log.
type EventResponse struct {
	Sequence  int64       `json:"sequence"`
	Op        string      `json:"op"`
	RequestID string      `json:"request_id,omitempty"`
	EventType string      `json:"event_type"`
	Block     int64       `json:"block"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	BrokenInvariants map[string]string `json:"broken_invariants,omitempty"`
	AsOfSequence     int64             `json:"as_of_sequence"`
}

// Amount renders a fixed-point value as a decimal string.
func Amount(v fpmath.Int) string {
	return Decimal(v).String()
}

// Decimal converts a fixed-point value without loss.
func Decimal(v fpmath.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.BigInt(), -fpmath.Decimals)
}

// ParseAmount reads a decimal string into fixed point, rejecting more than
// 18 fractional digits.
func ParseAmount(s string) (fpmath.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fpmath.Zero, err
	}
	if d.Exponent() < -fpmath.Decimals && !d.Equal(d.Truncate(fpmath.Decimals)) {
		return fpmath.Zero, fmt.Errorf("%s: more than %d decimals", s, fpmath.Decimals)
	}
	return fpmath.ParseRaw(d.Shift(fpmath.Decimals).Truncate(0).String())
}
