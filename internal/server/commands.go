package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"PerpAMM/internal/core"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/query"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// CommandRequest is the JSON body of POST /v1/commands/{op}. Only the
// fields an operation reads need to be set. Amounts and prices are decimal
// strings. The server stamps the block and timestamp.
type CommandRequest struct {
	RequestID string    `json:"request_id"`
	Caller    uuid.UUID `json:"caller"`

	Amount        string `json:"amount,omitempty"`
	DepositAmount string `json:"deposit_amount,omitempty"`
	Price         string `json:"price,omitempty"`
	LimitPrice    string `json:"limit_price,omitempty"`
	Deadline      int64  `json:"deadline,omitempty"`
	Side          string `json:"side,omitempty"`

	// Account is the operation's counterparty: the liquidation victim,
	// the whitelisted trader, the share recipient, the role holder, the
	// broker or the account whose cash is set. Maker is the maker of an
	// exchange match.
	Account uuid.UUID `json:"account,omitempty"`
	Maker   uuid.UUID `json:"maker,omitempty"`

	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`
	Role  string `json:"role,omitempty"`
}

// CommandResponse lists the committed events of a command.
type CommandResponse struct {
	Op     string         `json:"op"`
	Events []EventSummary `json:"events"`
	Price  string         `json:"price,omitempty"`
	Amount string         `json:"amount,omitempty"`
}

type EventSummary struct {
	Sequence  int64  `json:"sequence"`
	EventType string `json:"event_type"`
	StateHash string `json:"state_hash"`
}

type commandFunc func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error)

// commands maps an operation name to its engine call.
var commands = map[string]commandFunc{
	core.OpDeposit: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		amount, err := c.amount()
		if err != nil {
			return core.Result{}, err
		}
		return e.Deposit(req, amount)
	},
	core.OpApplyForWithdrawal: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		amount, err := c.amount()
		if err != nil {
			return core.Result{}, err
		}
		return e.ApplyForWithdrawal(req, amount)
	},
	core.OpWithdraw: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		amount, err := c.amount()
		if err != nil {
			return core.Result{}, err
		}
		return e.Withdraw(req, amount)
	},
	core.OpDepositToInsuranceFund: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		amount, err := c.amount()
		if err != nil {
			return core.Result{}, err
		}
		return e.DepositToInsuranceFund(req, amount)
	},
	core.OpWithdrawFromInsuranceFund: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		amount, err := c.amount()
		if err != nil {
			return core.Result{}, err
		}
		return e.WithdrawFromInsuranceFund(req, amount)
	},
	core.OpSetParameter: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		if c.Value == "" {
			return core.Result{}, fmt.Errorf("%w: value is required", errBadRequest)
		}
		value, err := state.ParseParam(c.Name, c.Value)
		if err != nil {
			return core.Result{}, fmt.Errorf("%w: value: %v", errBadRequest, err)
		}
		return e.SetParameter(req, c.Name, value)
	},
	core.OpGrantRole: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		role, err := c.role()
		if err != nil {
			return core.Result{}, err
		}
		return e.GrantRole(req, role, c.Account)
	},
	core.OpRevokeRole: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		role, err := c.role()
		if err != nil {
			return core.Result{}, err
		}
		return e.RevokeRole(req, role, c.Account)
	},
	core.OpSetBroker: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		return e.SetBroker(req, c.Account)
	},
	core.OpMatchTrade: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		side, err := c.side()
		if err != nil {
			return core.Result{}, err
		}
		price, err := decimalField("price", c.Price)
		if err != nil {
			return core.Result{}, err
		}
		amount, err := c.amount()
		if err != nil {
			return core.Result{}, err
		}
		return e.MatchTrade(req, c.Account, c.Maker, side, price, amount)
	},
	core.OpLiquidate: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		amount, err := c.amount()
		if err != nil {
			return core.Result{}, err
		}
		return e.Liquidate(req, c.Account, amount)
	},
	core.OpBeginGlobalSettlement: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		price, err := decimalField("price", c.Price)
		if err != nil {
			return core.Result{}, err
		}
		return e.BeginGlobalSettlement(req, price)
	},
	core.OpEndGlobalSettlement: func(e *core.Engine, req core.Request, _ *CommandRequest) (core.Result, error) {
		return e.EndGlobalSettlement(req)
	},
	core.OpSetCashBalance: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		value, err := decimalField("value", c.Value)
		if err != nil {
			return core.Result{}, err
		}
		return e.SetCashBalance(req, c.Account, value)
	},
	core.OpSettle: func(e *core.Engine, req core.Request, _ *CommandRequest) (core.Result, error) {
		return e.Settle(req)
	},
	core.OpCreatePool: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		amount, err := c.amount()
		if err != nil {
			return core.Result{}, err
		}
		return e.CreatePool(req, amount)
	},
	core.OpAddLiquidity: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		amount, err := c.amount()
		if err != nil {
			return core.Result{}, err
		}
		return e.AddLiquidity(req, amount)
	},
	core.OpDepositAndAddLiquidity: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		deposit, err := decimalField("deposit_amount", c.DepositAmount)
		if err != nil {
			return core.Result{}, err
		}
		amount, err := c.amount()
		if err != nil {
			return core.Result{}, err
		}
		return e.DepositAndAddLiquidity(req, deposit, amount)
	},
	core.OpRemoveLiquidity: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		amount, err := c.amount()
		if err != nil {
			return core.Result{}, err
		}
		return e.RemoveLiquidity(req, amount)
	},
	core.OpSettleShare: func(e *core.Engine, req core.Request, _ *CommandRequest) (core.Result, error) {
		return e.SettleShare(req)
	},
	core.OpTransferShares: func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		amount, err := c.amount()
		if err != nil {
			return core.Result{}, err
		}
		return e.TransferShares(req, c.Account, amount)
	},
	core.OpBuy:                 trade(state.SideLong, false, false),
	core.OpSell:                trade(state.SideShort, false, false),
	core.OpBuyFromWhitelisted:  trade(state.SideLong, true, false),
	core.OpSellFromWhitelisted: trade(state.SideShort, true, false),
	core.OpDepositAndBuy:       trade(state.SideLong, false, true),
	core.OpDepositAndSell:      trade(state.SideShort, false, true),
	core.OpUpdateIndex: func(e *core.Engine, req core.Request, _ *CommandRequest) (core.Result, error) {
		return e.UpdateIndex(req)
	},
}

func trade(side state.Side, whitelisted, deposit bool) commandFunc {
	return func(e *core.Engine, req core.Request, c *CommandRequest) (core.Result, error) {
		o := core.TradeOrder{Side: side, Deadline: c.Deadline}
		var err error
		if o.Amount, err = c.amount(); err != nil {
			return core.Result{}, err
		}
		if o.LimitPrice, err = decimalField("limit_price", c.LimitPrice); err != nil {
			return core.Result{}, err
		}
		if whitelisted {
			if c.Account == uuid.Nil {
				return core.Result{}, fmt.Errorf("%w: account is required", errBadRequest)
			}
			o.Trader = c.Account
		}
		if deposit {
			if o.DepositAmount, err = decimalField("deposit_amount", c.DepositAmount); err != nil {
				return core.Result{}, err
			}
			if !o.DepositAmount.IsPositive() {
				return core.Result{}, fmt.Errorf("%w: deposit_amount must be positive", errBadRequest)
			}
		}
		return e.Trade(req, o)
	}
}

func decimalField(name, s string) (fpmath.Int, error) {
	if s == "" {
		return fpmath.Zero, fmt.Errorf("%w: %s is required", errBadRequest, name)
	}
	v, err := query.ParseAmount(s)
	if err != nil {
		return fpmath.Zero, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return v, nil
}

func (c *CommandRequest) amount() (fpmath.Int, error) {
	return decimalField("amount", c.Amount)
}

func (c *CommandRequest) side() (state.Side, error) {
	side, err := state.ParseSide(c.Side)
	if err != nil {
		return side, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return side, nil
}

func (c *CommandRequest) role() (state.Role, error) {
	role, ok := state.ParseRole(c.Role)
	if !ok {
		return 0, fmt.Errorf("%w: unknown role %q", errBadRequest, c.Role)
	}
	return role, nil
}

// stamp builds the call context from the server clock: one block per
// second. A wall clock that stepped back reuses the engine's last clock.
func (h *handlers) stamp(caller uuid.UUID) state.Call {
	block, ts := h.engine.Clock()
	if now := h.now().Unix(); now > ts {
		ts = now
	}
	if ts > 0 && uint64(ts) > block {
		block = uint64(ts)
	}
	return state.Call{Caller: caller, Block: block, Timestamp: ts}
}

// handleCommand decodes a command, runs it through the engine and renders
// the committed events.
func (h *handlers) handleCommand(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	op := params["op"]
	run, ok := commands[op]
	if !ok {
		return fmt.Errorf("%w: unknown operation %q", errNotFound, op)
	}

	var c CommandRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if c.Caller == uuid.Nil {
		return fmt.Errorf("%w: caller is required", errBadRequest)
	}

	req := core.Request{ID: c.RequestID, Call: h.stamp(c.Caller)}
	res, err := run(h.engine, req, &c)
	if err != nil {
		return err
	}

	resp := CommandResponse{Op: op, Events: make([]EventSummary, 0, len(res.Events))}
	for _, env := range res.Events {
		resp.Events = append(resp.Events, EventSummary{
			Sequence:  env.Sequence,
			EventType: env.EventType.String(),
			StateHash: fmt.Sprintf("%x", env.StateHash),
		})
	}
	if !res.Price.IsZero() {
		resp.Price = query.Amount(res.Price)
	}
	if !res.Amount.IsZero() {
		resp.Amount = query.Amount(res.Amount)
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}
