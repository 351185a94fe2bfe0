package state

import (
	"math"

	fpmath "PerpAMM/internal/math"
)

// Governance parameter names.
const (
	ParamInitialMarginRate        = "initialMarginRate"
	ParamMaintenanceMarginRate    = "maintenanceMarginRate"
	ParamLiquidationPenaltyRate   = "liquidationPenaltyRate"
	ParamPenaltyFundRate          = "penaltyFundRate"
	ParamTakerDevFeeRate          = "takerDevFeeRate"
	ParamMakerDevFeeRate          = "makerDevFeeRate"
	ParamLotSize                  = "lotSize"
	ParamTradingLotSize           = "tradingLotSize"
	ParamWithdrawalLockBlockCount = "withdrawalLockBlockCount"
	ParamBrokerLockBlockCount     = "brokerLockBlockCount"
	ParamPoolFeeRate              = "poolFeeRate"
	ParamPoolDevFeeRate           = "poolDevFeeRate"
	ParamUpdatePremiumPrize       = "updatePremiumPrize"
	ParamEMAAlpha                 = "emaAlpha"
	ParamMarkPremiumLimit         = "markPremiumLimit"
	ParamFundingDampener          = "fundingDampener"

	// Social-loss accumulators share the parameter interface but live in
	// the ledger and are writable only while settling.
	ParamLongSocialLoss  = "longSocialLossPerContracts"
	ParamShortSocialLoss = "shortSocialLossPerContracts"
)

// ParamNames lists every key accepted by Params.With, in display order.
var ParamNames = []string{
	ParamInitialMarginRate,
	ParamMaintenanceMarginRate,
	ParamLiquidationPenaltyRate,
	ParamPenaltyFundRate,
	ParamTakerDevFeeRate,
	ParamMakerDevFeeRate,
	ParamLotSize,
	ParamTradingLotSize,
	ParamWithdrawalLockBlockCount,
	ParamBrokerLockBlockCount,
	ParamPoolFeeRate,
	ParamPoolDevFeeRate,
	ParamUpdatePremiumPrize,
	ParamEMAAlpha,
	ParamMarkPremiumLimit,
	ParamFundingDampener,
}

// SocialLossParam maps a social-loss key to its side.
func SocialLossParam(name string) (Side, bool) {
	switch name {
	case ParamLongSocialLoss:
		return SideLong, true
	case ParamShortSocialLoss:
		return SideShort, true
	default:
		return SideFlat, false
	}
}

// ParseParam parses a textual value for name. Block counts are plain
// integers; every other parameter is an 18-decimal number.
func ParseParam(name, s string) (fpmath.Int, error) {
	if name == ParamWithdrawalLockBlockCount || name == ParamBrokerLockBlockCount {
		return fpmath.ParseRaw(s)
	}
	return fpmath.Parse(s)
}

// Params is the governance parameter record shared by the ledger and the
// AMM. Rates are fixed-point; lot sizes are raw fixed-point quantities;
// block counts are plain integers.
type Params struct {
	InitialMarginRate      fpmath.Int `json:"initialMarginRate"`
	MaintenanceMarginRate  fpmath.Int `json:"maintenanceMarginRate"`
	LiquidationPenaltyRate fpmath.Int `json:"liquidationPenaltyRate"`
	PenaltyFundRate        fpmath.Int `json:"penaltyFundRate"`
	TakerDevFeeRate        fpmath.Int `json:"takerDevFeeRate"`
	MakerDevFeeRate        fpmath.Int `json:"makerDevFeeRate"`
	LotSize                fpmath.Int `json:"lotSize"`
	TradingLotSize         fpmath.Int `json:"tradingLotSize"`

	WithdrawalLockBlockCount uint64 `json:"withdrawalLockBlockCount"`
	BrokerLockBlockCount     uint64 `json:"brokerLockBlockCount"`

	PoolFeeRate        fpmath.Int `json:"poolFeeRate"`
	PoolDevFeeRate     fpmath.Int `json:"poolDevFeeRate"`
	UpdatePremiumPrize fpmath.Int `json:"updatePremiumPrize"`
	EMAAlpha           fpmath.Int `json:"emaAlpha"`
	MarkPremiumLimit   fpmath.Int `json:"markPremiumLimit"`
	FundingDampener    fpmath.Int `json:"fundingDampener"`
}

// DefaultParams returns the genesis parameter set.
func DefaultParams() Params {
	return Params{
		InitialMarginRate:        fpmath.MustParse("0.1"),
		MaintenanceMarginRate:    fpmath.MustParse("0.05"),
		LiquidationPenaltyRate:   fpmath.MustParse("0.005"),
		PenaltyFundRate:          fpmath.MustParse("0.005"),
		TakerDevFeeRate:          fpmath.MustParse("0.01"),
		MakerDevFeeRate:          fpmath.MustParse("0.01"),
		LotSize:                  fpmath.Raw(1),
		TradingLotSize:           fpmath.Raw(1),
		WithdrawalLockBlockCount: 5,
		BrokerLockBlockCount:     5,
		PoolFeeRate:              fpmath.MustParse("0.01"),
		PoolDevFeeRate:           fpmath.MustParse("0.005"),
		UpdatePremiumPrize:       fpmath.One,
		EMAAlpha:                 fpmath.Raw(3327787021630616), // 2 / (600 + 1)
		MarkPremiumLimit:         fpmath.MustParse("0.005"),
		FundingDampener:          fpmath.MustParse("0.0005"),
	}
}

// With returns a copy of p with name set to v. Block counts take the raw
// integer of v. Unknown names and values that break the relations between
// margin rates are rejected with InvalidParameter.
func (p Params) With(name string, v fpmath.Int) (Params, error) {
	const op = "set parameter"
	switch name {
	case ParamInitialMarginRate:
		if !v.IsPositive() || v.LTE(p.MaintenanceMarginRate) {
			return p, Errorf(InvalidParameter, op, "%s must be positive and above maintenance margin rate", name)
		}
		p.InitialMarginRate = v
	case ParamMaintenanceMarginRate:
		if !v.IsPositive() || v.GTE(p.InitialMarginRate) ||
			v.LTE(p.LiquidationPenaltyRate) || v.LTE(p.PenaltyFundRate) {
			return p, Errorf(InvalidParameter, op, "%s must be between penalty rates and initial margin rate", name)
		}
		p.MaintenanceMarginRate = v
	case ParamLiquidationPenaltyRate:
		if v.IsNegative() || v.GTE(p.MaintenanceMarginRate) {
			return p, Errorf(InvalidParameter, op, "%s must be below maintenance margin rate", name)
		}
		p.LiquidationPenaltyRate = v
	case ParamPenaltyFundRate:
		if v.IsNegative() || v.GTE(p.MaintenanceMarginRate) {
			return p, Errorf(InvalidParameter, op, "%s must be below maintenance margin rate", name)
		}
		p.PenaltyFundRate = v
	case ParamTakerDevFeeRate:
		if v.Abs().GTE(fpmath.One) {
			return p, Errorf(InvalidParameter, op, "%s out of range", name)
		}
		p.TakerDevFeeRate = v
	case ParamMakerDevFeeRate:
		if v.Abs().GTE(fpmath.One) {
			return p, Errorf(InvalidParameter, op, "%s out of range", name)
		}
		p.MakerDevFeeRate = v
	case ParamLotSize:
		if !v.IsPositive() || !p.TradingLotSize.IsMultipleOf(v) {
			return p, Errorf(InvalidParameter, op, "trading lot size must be a multiple of lot size")
		}
		p.LotSize = v
	case ParamTradingLotSize:
		if !v.IsPositive() || (p.LotSize.IsPositive() && !v.IsMultipleOf(p.LotSize)) {
			return p, Errorf(InvalidParameter, op, "trading lot size must be a multiple of lot size")
		}
		p.TradingLotSize = v
	case ParamWithdrawalLockBlockCount, ParamBrokerLockBlockCount:
		raw := v.BigInt()
		if raw.Sign() < 0 || !raw.IsUint64() || raw.Uint64() > math.MaxInt64 {
			return p, Errorf(InvalidParameter, op, "%s must be a non-negative block count", name)
		}
		if name == ParamWithdrawalLockBlockCount {
			p.WithdrawalLockBlockCount = raw.Uint64()
		} else {
			p.BrokerLockBlockCount = raw.Uint64()
		}
	case ParamPoolFeeRate:
		if v.IsNegative() || v.GTE(fpmath.One) {
			return p, Errorf(InvalidParameter, op, "%s out of range", name)
		}
		p.PoolFeeRate = v
	case ParamPoolDevFeeRate:
		if v.IsNegative() || v.GTE(fpmath.One) {
			return p, Errorf(InvalidParameter, op, "%s out of range", name)
		}
		p.PoolDevFeeRate = v
	case ParamUpdatePremiumPrize:
		if v.IsNegative() {
			return p, Errorf(InvalidParameter, op, "%s must not be negative", name)
		}
		p.UpdatePremiumPrize = v
	case ParamEMAAlpha:
		if !v.IsPositive() || v.GT(fpmath.One) {
			return p, Errorf(InvalidParameter, op, "%s must be in (0, 1]", name)
		}
		p.EMAAlpha = v
	case ParamMarkPremiumLimit:
		if v.IsNegative() {
			return p, Errorf(InvalidParameter, op, "%s must not be negative", name)
		}
		p.MarkPremiumLimit = v
	case ParamFundingDampener:
		if v.IsNegative() {
			return p, Errorf(InvalidParameter, op, "%s must not be negative", name)
		}
		p.FundingDampener = v
	default:
		return p, Errorf(InvalidParameter, op, "key not exists: %q", name)
	}
	return p, nil
}

// Get returns the value of name. Block counts are returned as raw integers.
func (p Params) Get(name string) (fpmath.Int, error) {
	switch name {
	case ParamInitialMarginRate:
		return p.InitialMarginRate, nil
	case ParamMaintenanceMarginRate:
		return p.MaintenanceMarginRate, nil
	case ParamLiquidationPenaltyRate:
		return p.LiquidationPenaltyRate, nil
	case ParamPenaltyFundRate:
		return p.PenaltyFundRate, nil
	case ParamTakerDevFeeRate:
		return p.TakerDevFeeRate, nil
	case ParamMakerDevFeeRate:
		return p.MakerDevFeeRate, nil
	case ParamLotSize:
		return p.LotSize, nil
	case ParamTradingLotSize:
		return p.TradingLotSize, nil
	case ParamWithdrawalLockBlockCount:
		return fpmath.Raw(int64(p.WithdrawalLockBlockCount)), nil
	case ParamBrokerLockBlockCount:
		return fpmath.Raw(int64(p.BrokerLockBlockCount)), nil
	case ParamPoolFeeRate:
		return p.PoolFeeRate, nil
	case ParamPoolDevFeeRate:
		return p.PoolDevFeeRate, nil
	case ParamUpdatePremiumPrize:
		return p.UpdatePremiumPrize, nil
	case ParamEMAAlpha:
		return p.EMAAlpha, nil
	case ParamMarkPremiumLimit:
		return p.MarkPremiumLimit, nil
	case ParamFundingDampener:
		return p.FundingDampener, nil
	default:
		return fpmath.Zero, Errorf(InvalidParameter, "get parameter", "key not exists: %q", name)
	}
}
