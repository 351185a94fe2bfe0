package amm

import (
	"PerpAMM/internal/event"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"
)

// IndexPrice reads the oracle.
func (a *AMM) IndexPrice() (fpmath.Int, int64, error) {
	return a.feeder.IndexPrice()
}

func (a *AMM) readIndex(op string) (fpmath.Int, int64, error) {
	price, ts, err := a.feeder.IndexPrice()
	if err != nil {
		return fpmath.Zero, 0, state.Errorf(state.InvalidParameter, op, "index price: %v", err)
	}
	if !price.IsPositive() {
		return fpmath.Zero, 0, state.Errorf(state.InvalidParameter, op, "invalid index price %s", price)
	}
	if ts > a.now {
		return fpmath.Zero, 0, state.Errorf(state.InvalidParameter, op, "index timestamp %d is after block time %d", ts, a.now)
	}
	if a.funding.Initialized && ts < a.funding.LastIndexTimestamp {
		return fpmath.Zero, 0, state.Errorf(state.InvalidParameter, op, "index timestamp went back")
	}
	return price, ts, nil
}

// initFunding starts the funding clock at the current index.
func (a *AMM) initFunding(op string) error {
	price, ts, err := a.readIndex(op)
	if err != nil {
		return err
	}
	fs := a.funding
	fs.Initialized = true
	fs.LastFundingTime = a.now
	fs.LastIndexPrice = price
	fs.LastIndexTimestamp = ts
	fs.LastPremium = fpmath.Zero
	fs.LastEMAPremium = fpmath.Zero
	state.Assign(a.j, &a.funding, fs)
	return nil
}

// fundingUpdate advances funding unless it already ran at the current
// time. Funding is frozen once settlement begins.
func (a *AMM) fundingUpdate(op string) error {
	if !a.funding.Initialized || a.perp.Status() != state.StatusNormal {
		return nil
	}
	if a.now == a.funding.LastFundingTime {
		return nil
	}
	return a.forceFunding(op)
}

// forceFunding advances funding to the index timestamp (with the premium
// and index of the previous step) and then to the current time, and
// re-captures the premium against the new pool state.
func (a *AMM) forceFunding(op string) error {
	if !a.funding.Initialized || a.perp.Status() != state.StatusNormal {
		return nil
	}
	price, ts, err := a.readIndex(op)
	if err != nil {
		return err
	}
	before := a.funding.LastFundingTime
	if ts > a.funding.LastFundingTime {
		if err := a.step(ts, price, ts); err != nil {
			return err
		}
	}
	if err := a.step(a.now, price, ts); err != nil {
		return err
	}
	if a.funding.LastFundingTime != before {
		fs := a.funding
		a.out.Emit(&event.FundingUpdated{
			Timestamp:          fs.LastFundingTime,
			IndexPrice:         fs.LastIndexPrice,
			IndexTimestamp:     fs.LastIndexTimestamp,
			EMAPremium:         fs.LastEMAPremium,
			AccumulatedFunding: fs.AccumulatedFundingPerContract,
		})
	}
	return nil
}

// step accrues funding over [LastFundingTime, end) and then records the
// new index and premium.
func (a *AMM) step(end int64, index fpmath.Int, indexTs int64) error {
	fs := a.funding
	if end < fs.LastFundingTime {
		return state.Errorf(state.InvalidParameter, "funding", "we can't go back in time")
	}
	if end > fs.LastFundingTime {
		p := a.perp.Params()
		curve := fpmath.FundingCurve{
			Alpha:    p.EMAAlpha,
			V0:       fs.LastEMAPremium,
			Premium:  fs.LastPremium,
			Limit:    p.MarkPremiumLimit.Mul(fs.LastIndexPrice),
			Dampener: p.FundingDampener.Mul(fs.LastIndexPrice),
		}
		vt, acc, err := curve.Accumulate(end - fs.LastFundingTime)
		if err != nil {
			return err
		}
		fs.AccumulatedFundingPerContract = fs.AccumulatedFundingPerContract.Add(acc.QuoInt(fpmath.FundingPeriod))
		fs.LastEMAPremium = vt
		fs.LastFundingTime = end
	}
	fs.LastIndexPrice = index
	fs.LastIndexTimestamp = indexTs
	fs.LastPremium = fpmath.Zero
	state.Assign(a.j, &a.funding, fs)

	// The premium is measured against the pool valued at the new accumulator.
	_, y, err := a.poolState()
	if err != nil {
		return err
	}
	if y.IsPositive() {
		fair, err := a.fairPrice()
		if err != nil {
			return err
		}
		fs.LastPremium = fair.Sub(index)
		state.Assign(a.j, &a.funding, fs)
	}
	return nil
}

// markPrice is the index plus the EMA premium clamped to
// +-markPremiumLimit * index.
func (a *AMM) markPrice() fpmath.Int {
	fs := a.funding
	limit := a.perp.Params().MarkPremiumLimit.Mul(fs.LastIndexPrice)
	premium := fs.LastEMAPremium.Max(limit.Neg()).Min(limit)
	return fs.LastIndexPrice.Add(premium)
}

// CurrentMarkPrice brings funding up to date and returns the mark price.
// Before the pool exists the mark price is the index price.
func (a *AMM) CurrentMarkPrice() (price fpmath.Int, err error) {
	err = a.perp.View(func() error {
		var e error
		price, e = a.currentMarkPrice()
		return e
	})
	return price, err
}

func (a *AMM) currentMarkPrice() (fpmath.Int, error) {
	if !a.funding.Initialized {
		price, _, err := a.readIndex("mark price")
		return price, err
	}
	if err := a.fundingUpdate("mark price"); err != nil {
		return fpmath.Zero, err
	}
	return a.markPrice(), nil
}

// CurrentAccumulatedFundingPerContract brings funding up to date and
// returns the accumulator.
func (a *AMM) CurrentAccumulatedFundingPerContract() (acc fpmath.Int, err error) {
	err = a.perp.View(func() error {
		if e := a.fundingUpdate("accumulated funding"); e != nil {
			return e
		}
		acc = a.funding.AccumulatedFundingPerContract
		return nil
	})
	return acc, err
}

// CurrentPremiumRate is mark / index - 1.
func (a *AMM) CurrentPremiumRate() (rate fpmath.Int, err error) {
	err = a.perp.View(func() error {
		var e error
		rate, e = a.premiumRate()
		return e
	})
	return rate, err
}

func (a *AMM) premiumRate() (fpmath.Int, error) {
	mark, err := a.currentMarkPrice()
	if err != nil {
		return fpmath.Zero, err
	}
	index := mark
	if a.funding.Initialized {
		index = a.funding.LastIndexPrice
	}
	rate, err := fpmath.Div(mark, index)
	if err != nil {
		return fpmath.Zero, err
	}
	return rate.Sub(fpmath.One), nil
}

// CurrentFundingRate is the premium rate moved toward zero by the funding
// dampener: max(rate, D) + min(rate, -D).
func (a *AMM) CurrentFundingRate() (fpmath.Int, error) {
	rate, err := a.CurrentPremiumRate()
	if err != nil {
		return fpmath.Zero, err
	}
	d := a.perp.Params().FundingDampener
	return rate.Max(d).Add(rate.Min(d.Neg())), nil
}

// UpdateIndex pulls the oracle and brings funding up to date. When the
// index changed the caller earns updatePremiumPrize from the dev account,
// which must stay above maintenance margin.
func (a *AMM) UpdateIndex(c state.Call) error {
	const op = "update index"
	pc := a.begin(c)
	return a.perp.Atomic(func() error {
		if err := a.requireNormal(op); err != nil {
			return err
		}
		if !a.funding.Initialized {
			return state.Errorf(state.InvalidParameter, op, "funding initialization required")
		}
		old := a.funding.LastIndexPrice
		if err := a.forceFunding(op); err != nil {
			return err
		}
		prize := fpmath.Zero
		if !a.funding.LastIndexPrice.Equal(old) {
			prize = a.perp.Params().UpdatePremiumPrize
			dev := a.perp.Dev()
			if err := a.perp.TransferCash(pc, dev, c.Caller, prize, "update index prize"); err != nil {
				return err
			}
			if err := a.perp.RequireSafe(op, dev, "dev unsafe"); err != nil {
				return err
			}
		}
		a.out.Emit(&event.IndexUpdated{
			Caller:    c.Caller,
			Price:     a.funding.LastIndexPrice,
			Timestamp: a.funding.LastIndexTimestamp,
			Prize:     prize,
		})
		return nil
	})
}
