package core

import (
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// Operation names double as idempotency namespaces and metric labels.
const (
	OpDeposit                   = "deposit"
	OpApplyForWithdrawal        = "apply_for_withdrawal"
	OpWithdraw                  = "withdraw"
	OpDepositToInsuranceFund    = "deposit_to_insurance_fund"
	OpWithdrawFromInsuranceFund = "withdraw_from_insurance_fund"
	OpSetParameter              = "set_parameter"
	OpGrantRole                 = "grant_role"
	OpRevokeRole                = "revoke_role"
	OpSetBroker                 = "set_broker"
	OpMatchTrade                = "match_trade"
	OpLiquidate                 = "liquidate"
	OpBeginGlobalSettlement     = "begin_global_settlement"
	OpEndGlobalSettlement       = "end_global_settlement"
	OpSetCashBalance            = "set_cash_balance"
	OpSettle                    = "settle"
	OpCreatePool                = "create_pool"
	OpAddLiquidity              = "add_liquidity"
	OpDepositAndAddLiquidity    = "deposit_and_add_liquidity"
	OpRemoveLiquidity           = "remove_liquidity"
	OpSettleShare               = "settle_share"
	OpTransferShares            = "transfer_shares"
	OpBuy                       = "buy"
	OpSell                      = "sell"
	OpBuyFromWhitelisted        = "buy_from_whitelisted"
	OpSellFromWhitelisted       = "sell_from_whitelisted"
	OpDepositAndBuy             = "deposit_and_buy"
	OpDepositAndSell            = "deposit_and_sell"
	OpUpdateIndex               = "update_index"
)

// --- Margin ledger ---

func (e *Engine) Deposit(req Request, amount fpmath.Int) (Result, error) {
	return e.execute(req, OpDeposit, func(c state.Call) error {
		return e.perp.Deposit(c, amount)
	})
}

func (e *Engine) ApplyForWithdrawal(req Request, amount fpmath.Int) (Result, error) {
	return e.execute(req, OpApplyForWithdrawal, func(c state.Call) error {
		return e.perp.ApplyForWithdrawal(c, amount)
	})
}

func (e *Engine) Withdraw(req Request, amount fpmath.Int) (Result, error) {
	return e.execute(req, OpWithdraw, func(c state.Call) error {
		return e.perp.Withdraw(c, amount)
	})
}

func (e *Engine) DepositToInsuranceFund(req Request, amount fpmath.Int) (Result, error) {
	return e.execute(req, OpDepositToInsuranceFund, func(c state.Call) error {
		return e.perp.DepositToInsuranceFund(c, amount)
	})
}

func (e *Engine) WithdrawFromInsuranceFund(req Request, amount fpmath.Int) (Result, error) {
	return e.execute(req, OpWithdrawFromInsuranceFund, func(c state.Call) error {
		return e.perp.WithdrawFromInsuranceFund(c, amount)
	})
}

// --- Governance ---

func (e *Engine) SetParameter(req Request, name string, value fpmath.Int) (Result, error) {
	return e.execute(req, OpSetParameter, func(c state.Call) error {
		return e.perp.SetParameter(c, name, value)
	})
}

func (e *Engine) GrantRole(req Request, role state.Role, id uuid.UUID) (Result, error) {
	return e.execute(req, OpGrantRole, func(c state.Call) error {
		return e.perp.GrantRole(c, role, id)
	})
}

func (e *Engine) RevokeRole(req Request, role state.Role, id uuid.UUID) (Result, error) {
	return e.execute(req, OpRevokeRole, func(c state.Call) error {
		return e.perp.RevokeRole(c, role, id)
	})
}

func (e *Engine) SetCashBalance(req Request, id uuid.UUID, value fpmath.Int) (Result, error) {
	return e.execute(req, OpSetCashBalance, func(c state.Call) error {
		return e.perp.SetCashBalance(c, id, value)
	})
}

// --- Exchange ---

func (e *Engine) SetBroker(req Request, broker uuid.UUID) (Result, error) {
	return e.execute(req, OpSetBroker, func(c state.Call) error {
		return e.perp.SetBroker(c, broker)
	})
}

func (e *Engine) MatchTrade(req Request, taker, maker uuid.UUID, takerSide state.Side, price, amount fpmath.Int) (Result, error) {
	return e.execute(req, OpMatchTrade, func(c state.Call) error {
		return e.perp.MatchTrade(c, taker, maker, takerSide, price, amount)
	})
}

// --- Liquidation and settlement ---

// Liquidate returns the liquidation price and the amount taken over.
func (e *Engine) Liquidate(req Request, victim uuid.UUID, maxAmount fpmath.Int) (Result, error) {
	var price, amount fpmath.Int
	res, err := e.execute(req, OpLiquidate, func(c state.Call) (err error) {
		price, amount, err = e.perp.Liquidate(c, victim, maxAmount)
		return err
	})
	res.Price, res.Amount = price, amount
	return res, err
}

func (e *Engine) BeginGlobalSettlement(req Request, price fpmath.Int) (Result, error) {
	return e.execute(req, OpBeginGlobalSettlement, func(c state.Call) error {
		return e.perp.BeginGlobalSettlement(c, price)
	})
}

func (e *Engine) EndGlobalSettlement(req Request) (Result, error) {
	return e.execute(req, OpEndGlobalSettlement, func(c state.Call) error {
		return e.perp.EndGlobalSettlement(c)
	})
}

// Settle returns the payout in Amount.
func (e *Engine) Settle(req Request) (Result, error) {
	var payout fpmath.Int
	res, err := e.execute(req, OpSettle, func(c state.Call) (err error) {
		payout, err = e.perp.Settle(c)
		return err
	})
	res.Amount = payout
	return res, err
}

// --- AMM liquidity ---

func (e *Engine) CreatePool(req Request, amount fpmath.Int) (Result, error) {
	return e.execute(req, OpCreatePool, func(c state.Call) error {
		return e.amm.CreatePool(c, amount)
	})
}

func (e *Engine) AddLiquidity(req Request, amount fpmath.Int) (Result, error) {
	return e.execute(req, OpAddLiquidity, func(c state.Call) error {
		return e.amm.AddLiquidity(c, amount)
	})
}

func (e *Engine) DepositAndAddLiquidity(req Request, depositAmount, amount fpmath.Int) (Result, error) {
	return e.execute(req, OpDepositAndAddLiquidity, func(c state.Call) error {
		return e.amm.DepositAndAddLiquidity(c, depositAmount, amount)
	})
}

func (e *Engine) RemoveLiquidity(req Request, shareAmount fpmath.Int) (Result, error) {
	return e.execute(req, OpRemoveLiquidity, func(c state.Call) error {
		return e.amm.RemoveLiquidity(c, shareAmount)
	})
}

// SettleShare returns the payout in Amount.
func (e *Engine) SettleShare(req Request) (Result, error) {
	var payout fpmath.Int
	res, err := e.execute(req, OpSettleShare, func(c state.Call) (err error) {
		payout, err = e.amm.SettleShare(c)
		return err
	})
	res.Amount = payout
	return res, err
}

func (e *Engine) TransferShares(req Request, to uuid.UUID, amount fpmath.Int) (Result, error) {
	return e.execute(req, OpTransferShares, func(c state.Call) error {
		return e.amm.TransferShares(c, to, amount)
	})
}

// --- AMM trading ---

// TradeOrder is an AMM market order. Trader is only used by the
// whitelisted variants; DepositAmount only by the deposit-and-trade ones.
type TradeOrder struct {
	Trader        uuid.UUID
	Side          state.Side
	Amount        fpmath.Int
	LimitPrice    fpmath.Int
	Deadline      int64
	DepositAmount fpmath.Int
}

// Trade runs an AMM order and returns the execution price in Price.
func (e *Engine) Trade(req Request, o TradeOrder) (Result, error) {
	var op string
	var run func(c state.Call) (fpmath.Int, error)
	buy := o.Side == state.SideLong
	switch {
	case o.Trader != uuid.Nil && buy:
		op = OpBuyFromWhitelisted
		run = func(c state.Call) (fpmath.Int, error) {
			return e.amm.BuyFromWhitelisted(c, o.Trader, o.Amount, o.LimitPrice, o.Deadline)
		}
	case o.Trader != uuid.Nil:
		op = OpSellFromWhitelisted
		run = func(c state.Call) (fpmath.Int, error) {
			return e.amm.SellFromWhitelisted(c, o.Trader, o.Amount, o.LimitPrice, o.Deadline)
		}
	case o.DepositAmount.IsPositive() && buy:
		op = OpDepositAndBuy
		run = func(c state.Call) (fpmath.Int, error) {
			return e.amm.DepositAndBuy(c, o.DepositAmount, o.Amount, o.LimitPrice, o.Deadline)
		}
	case o.DepositAmount.IsPositive():
		op = OpDepositAndSell
		run = func(c state.Call) (fpmath.Int, error) {
			return e.amm.DepositAndSell(c, o.DepositAmount, o.Amount, o.LimitPrice, o.Deadline)
		}
	case buy:
		op = OpBuy
		run = func(c state.Call) (fpmath.Int, error) {
			return e.amm.Buy(c, o.Amount, o.LimitPrice, o.Deadline)
		}
	default:
		op = OpSell
		run = func(c state.Call) (fpmath.Int, error) {
			return e.amm.Sell(c, o.Amount, o.LimitPrice, o.Deadline)
		}
	}

	if o.Side != state.SideLong && o.Side != state.SideShort {
		return Result{}, state.Errorf(state.InvalidParameter, op, "side must be long or short")
	}
	var price fpmath.Int
	res, err := e.execute(req, op, func(c state.Call) (err error) {
		price, err = run(c)
		return err
	})
	res.Price = price
	return res, err
}

func (e *Engine) UpdateIndex(req Request) (Result, error) {
	return e.execute(req, OpUpdateIndex, func(c state.Call) error {
		return e.amm.UpdateIndex(c)
	})
}
